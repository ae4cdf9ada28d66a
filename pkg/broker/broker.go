/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package broker implements the delivery contract: publish with fan-out, lease with a
// visibility timeout, ack and nack.
package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fastqueue/fastqueue/internal/pkg/log"
	"github.com/fastqueue/fastqueue/pkg/errors"
	"github.com/fastqueue/fastqueue/pkg/filter"
	"github.com/fastqueue/fastqueue/pkg/store"
)

var logger = log.New("broker")

const (
	defaultLeaseLimit = 10
	maxLeaseLimit     = 100
)

type metricsProvider interface {
	MessagesPublished(count int)
	MessagesConsumed(count int)
	MessageAcked()
	MessageNacked()
	PublishTime(value time.Duration)
	ConsumeTime(value time.Duration)
}

// PublishParams holds the payload and attributes of a published message.
type PublishParams struct {
	Data       json.RawMessage
	Attributes map[string]string
}

// Service routes published messages into queues and hands them out to consumers.
type Service struct {
	topics   store.TopicStore
	queues   store.QueueStore
	messages store.MessageStore
	metrics  metricsProvider
	now      func() time.Time
}

// New returns a new broker service.
func New(topics store.TopicStore, queues store.QueueStore, messages store.MessageStore,
	metrics metricsProvider) *Service {
	return &Service{
		topics:   topics,
		queues:   queues,
		messages: messages,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish fans the message out to every queue subscribed to the topic whose filters
// admit the attributes. The copies are created atomically; a topic with no admitting
// queues yields an empty result.
func (s *Service) Publish(ctx context.Context, topicID string, params *PublishParams) ([]*store.Message, error) {
	startTime := time.Now()

	defer func() { s.metrics.PublishTime(time.Since(startTime)) }()

	if len(params.Data) == 0 {
		return nil, errors.NewBadRequestf("message data must not be empty")
	}

	topic, err := s.topics.Get(ctx, topicID)
	if err != nil {
		return nil, err
	}

	queues, err := s.queues.ListByTopic(ctx, topic.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()

	messages := make([]*store.Message, 0, len(queues))

	for _, queue := range queues {
		if !filter.Admit(queue.MessageFilters, params.Attributes) {
			logger.Debugf("Message to topic [%s] not admitted to queue [%s]", topicID, queue.ID)

			continue
		}

		messages = append(messages, &store.Message{
			ID:          uuid.New().String(),
			QueueID:     queue.ID,
			Data:        params.Data,
			Attributes:  params.Attributes,
			ExpiredAt:   now.Add(queue.MessageRetention()),
			ScheduledAt: now.Add(queue.DeliveryDelay()),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if len(messages) == 0 {
		return messages, nil
	}

	if err := s.messages.CreateBatch(ctx, messages); err != nil {
		return nil, err
	}

	s.metrics.MessagesPublished(len(messages))

	logger.Debugf("Published message to topic [%s]: %d copies", topicID, len(messages))

	return messages, nil
}

// Lease returns up to limit consumable messages from the queue and hides them from
// other consumers for the queue's ack deadline. The delivery count of each returned
// message is incremented.
func (s *Service) Lease(ctx context.Context, queueID string, limit int) ([]*store.Message, error) {
	startTime := time.Now()

	defer func() { s.metrics.ConsumeTime(time.Since(startTime)) }()

	queue, err := s.queues.Get(ctx, queueID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.Lease(ctx, queue, normalizeLeaseLimit(limit), s.now())
	if err != nil {
		return nil, err
	}

	if len(messages) > 0 {
		s.metrics.MessagesConsumed(len(messages))
	}

	return messages, nil
}

// Ack deletes the message. Unknown and malformed IDs are ignored, so acking after the
// visibility timeout has handed the message to another consumer is harmless.
func (s *Service) Ack(ctx context.Context, messageID string) error {
	if _, err := uuid.Parse(messageID); err != nil {
		logger.Debugf("Ignoring ack of malformed message ID [%s]", messageID)

		return nil
	}

	if err := s.messages.Ack(ctx, messageID); err != nil {
		return err
	}

	s.metrics.MessageAcked()

	return nil
}

// Nack makes the message immediately consumable again without touching its delivery
// count. Unknown and malformed IDs are ignored.
func (s *Service) Nack(ctx context.Context, messageID string) error {
	if _, err := uuid.Parse(messageID); err != nil {
		logger.Debugf("Ignoring nack of malformed message ID [%s]", messageID)

		return nil
	}

	if err := s.messages.Nack(ctx, messageID, s.now()); err != nil {
		return err
	}

	s.metrics.MessageNacked()

	return nil
}

func normalizeLeaseLimit(limit int) int {
	if limit <= 0 {
		return defaultLeaseLimit
	}

	if limit > maxLeaseLimit {
		return maxLeaseLimit
	}

	return limit
}
