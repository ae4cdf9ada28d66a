/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package queue manages the lifecycle and parameters of queues, including stats,
// purge, redrive and dead-queue wiring.
package queue

import (
	"context"
	"time"

	"github.com/fastqueue/fastqueue/internal/pkg/identity"
	"github.com/fastqueue/fastqueue/internal/pkg/log"
	"github.com/fastqueue/fastqueue/pkg/errors"
	"github.com/fastqueue/fastqueue/pkg/store"
)

var logger = log.New("queue")

// Limits bounds the tunable queue parameters.
type Limits struct {
	MinAckDeadlineSeconds      int
	MaxAckDeadlineSeconds      int
	MinMessageRetentionSeconds int
	MaxMessageRetentionSeconds int
	MinMessageMaxDeliveries    int
	MaxMessageMaxDeliveries    int
	MinDeliveryDelaySeconds    int
	MaxDeliveryDelaySeconds    int
}

// DefaultLimits returns the standard parameter bounds.
func DefaultLimits() Limits {
	return Limits{
		MinAckDeadlineSeconds:      1,
		MaxAckDeadlineSeconds:      600,
		MinMessageRetentionSeconds: 600,
		MaxMessageRetentionSeconds: 1209600,
		MinMessageMaxDeliveries:    1,
		MaxMessageMaxDeliveries:    1000,
		MinDeliveryDelaySeconds:    1,
		MaxDeliveryDelaySeconds:    900,
	}
}

// Params holds the caller-supplied queue attributes.
type Params struct {
	TopicID                 *string
	DeadQueueID             *string
	AckDeadlineSeconds      int
	MessageRetentionSeconds int
	MessageFilters          map[string][]string
	MessageMaxDeliveries    *int
	DeliveryDelaySeconds    *int
}

// Service implements queue lifecycle operations on top of the store.
type Service struct {
	topics   store.TopicStore
	queues   store.QueueStore
	messages store.MessageStore
	limits   Limits
	now      func() time.Time
}

// New returns a new queue service.
func New(topics store.TopicStore, queues store.QueueStore, messages store.MessageStore, limits Limits) *Service {
	return &Service{
		topics:   topics,
		queues:   queues,
		messages: messages,
		limits:   limits,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create creates a new queue with the given ID and parameters.
func (s *Service) Create(ctx context.Context, id string, params *Params) (*store.Queue, error) {
	if err := identity.Validate(id); err != nil {
		return nil, err
	}

	if err := s.validateParams(ctx, id, params); err != nil {
		return nil, err
	}

	now := s.now()

	queue := &store.Queue{
		ID:                      id,
		TopicID:                 params.TopicID,
		DeadQueueID:             params.DeadQueueID,
		AckDeadlineSeconds:      params.AckDeadlineSeconds,
		MessageRetentionSeconds: params.MessageRetentionSeconds,
		MessageFilters:          params.MessageFilters,
		MessageMaxDeliveries:    params.MessageMaxDeliveries,
		DeliveryDelaySeconds:    params.DeliveryDelaySeconds,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := s.queues.Create(ctx, queue); err != nil {
		return nil, err
	}

	logger.Debugf("Created queue [%s]", id)

	return queue, nil
}

// Update replaces the parameters of an existing queue. The creation timestamp is
// preserved.
func (s *Service) Update(ctx context.Context, id string, params *Params) (*store.Queue, error) {
	existing, err := s.queues.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.validateParams(ctx, id, params); err != nil {
		return nil, err
	}

	queue := &store.Queue{
		ID:                      id,
		TopicID:                 params.TopicID,
		DeadQueueID:             params.DeadQueueID,
		AckDeadlineSeconds:      params.AckDeadlineSeconds,
		MessageRetentionSeconds: params.MessageRetentionSeconds,
		MessageFilters:          params.MessageFilters,
		MessageMaxDeliveries:    params.MessageMaxDeliveries,
		DeliveryDelaySeconds:    params.DeliveryDelaySeconds,
		CreatedAt:               existing.CreatedAt,
		UpdatedAt:               s.now(),
	}

	if err := s.queues.Update(ctx, queue); err != nil {
		return nil, err
	}

	logger.Debugf("Updated queue [%s]", id)

	return queue, nil
}

// Get returns the queue with the given ID.
func (s *Service) Get(ctx context.Context, id string) (*store.Queue, error) {
	return s.queues.Get(ctx, id)
}

// List returns queues ordered by ID.
func (s *Service) List(ctx context.Context, offset, limit int) ([]*store.Queue, error) {
	return s.queues.List(ctx, normalizeOffset(offset), normalizeLimit(limit))
}

// Delete removes the queue along with its messages. Queues pointing at it as their
// dead queue are detached.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.queues.Delete(ctx, id); err != nil {
		return err
	}

	logger.Debugf("Deleted queue [%s]", id)

	return nil
}

// Stats returns the number of consumable messages on the queue and the age of the
// oldest one.
func (s *Service) Stats(ctx context.Context, id string) (*store.QueueStats, error) {
	queue, err := s.queues.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.queues.Stats(ctx, queue, s.now())
}

// Purge deletes every message on the queue.
func (s *Service) Purge(ctx context.Context, id string) error {
	if _, err := s.queues.Get(ctx, id); err != nil {
		return err
	}

	purged, err := s.messages.Purge(ctx, id)
	if err != nil {
		return err
	}

	logger.Debugf("Purged %d messages from queue [%s]", purged, id)

	return nil
}

// Redrive moves every currently-consumable message from the source queue to the
// destination queue, resetting delivery attempts and recomputing the retention and
// delivery-delay horizons against the destination.
func (s *Service) Redrive(ctx context.Context, id, destinationID string) error {
	if err := identity.Validate(destinationID); err != nil {
		return err
	}

	source, err := s.queues.Get(ctx, id)
	if err != nil {
		return err
	}

	destination, err := s.queues.Get(ctx, destinationID)
	if err != nil {
		return err
	}

	moved, err := s.messages.Redrive(ctx, source, destination, s.now())
	if err != nil {
		return err
	}

	logger.Debugf("Redrove %d messages from queue [%s] to queue [%s]", moved, id, destinationID)

	return nil
}

//nolint:cyclop
func (s *Service) validateParams(ctx context.Context, id string, params *Params) error {
	if params.AckDeadlineSeconds < s.limits.MinAckDeadlineSeconds ||
		params.AckDeadlineSeconds > s.limits.MaxAckDeadlineSeconds {
		return errors.NewBadRequestf("ack_deadline_seconds must be in range [%d, %d]",
			s.limits.MinAckDeadlineSeconds, s.limits.MaxAckDeadlineSeconds)
	}

	if params.MessageRetentionSeconds < s.limits.MinMessageRetentionSeconds ||
		params.MessageRetentionSeconds > s.limits.MaxMessageRetentionSeconds {
		return errors.NewBadRequestf("message_retention_seconds must be in range [%d, %d]",
			s.limits.MinMessageRetentionSeconds, s.limits.MaxMessageRetentionSeconds)
	}

	if params.MessageMaxDeliveries != nil {
		if *params.MessageMaxDeliveries < s.limits.MinMessageMaxDeliveries ||
			*params.MessageMaxDeliveries > s.limits.MaxMessageMaxDeliveries {
			return errors.NewBadRequestf("message_max_deliveries must be in range [%d, %d]",
				s.limits.MinMessageMaxDeliveries, s.limits.MaxMessageMaxDeliveries)
		}
	}

	if params.DeliveryDelaySeconds != nil {
		if *params.DeliveryDelaySeconds < s.limits.MinDeliveryDelaySeconds ||
			*params.DeliveryDelaySeconds > s.limits.MaxDeliveryDelaySeconds {
			return errors.NewBadRequestf("delivery_delay_seconds must be in range [%d, %d]",
				s.limits.MinDeliveryDelaySeconds, s.limits.MaxDeliveryDelaySeconds)
		}
	}

	if (params.DeadQueueID == nil) != (params.MessageMaxDeliveries == nil) {
		return errors.NewBadRequestf("dead_queue_id and message_max_deliveries must be set together")
	}

	if params.DeadQueueID != nil && *params.DeadQueueID == id {
		return errors.NewBadRequestf("queue [%s] cannot be its own dead queue", id)
	}

	if params.TopicID != nil {
		if err := identity.Validate(*params.TopicID); err != nil {
			return err
		}

		if _, err := s.topics.Get(ctx, *params.TopicID); err != nil {
			return err
		}
	}

	if params.DeadQueueID != nil {
		if err := identity.Validate(*params.DeadQueueID); err != nil {
			return err
		}

		if _, err := s.queues.Get(ctx, *params.DeadQueueID); err != nil {
			return err
		}
	}

	return nil
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}

	return offset
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}

	if limit > maxLimit {
		return maxLimit
	}

	return limit
}
