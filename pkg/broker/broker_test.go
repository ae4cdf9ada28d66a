/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fastqueue/fastqueue/pkg/errors"
	"github.com/fastqueue/fastqueue/pkg/mocks"
	"github.com/fastqueue/fastqueue/pkg/store"
)

func TestService_Publish(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fans out to every admitting queue", func(t *testing.T) {
		topics, queues, messages, metrics := newFixtures(t)

		addQueue(t, queues, "plain", "orders-topic", nil)
		addQueue(t, queues, "red-only", "orders-topic", map[string][]string{"color": {"red"}})
		addQueue(t, queues, "other-topic-queue", "other-topic", nil)

		s := New(topics, queues, messages, metrics)
		s.now = func() time.Time { return now }

		created, err := s.Publish(context.Background(), "orders-topic", &PublishParams{
			Data:       json.RawMessage(`{"k":1}`),
			Attributes: map[string]string{"color": "red", "size": "L"},
		})
		require.NoError(t, err)
		require.Len(t, created, 2)

		require.Len(t, messages.Batches, 1)
		require.Len(t, messages.Batches[0], 2)

		queueIDs := []string{created[0].QueueID, created[1].QueueID}
		require.ElementsMatch(t, []string{"plain", "red-only"}, queueIDs)

		for _, m := range created {
			_, err := uuid.Parse(m.ID)
			require.NoError(t, err)
			require.Equal(t, 0, m.DeliveryAttempts)
			require.Equal(t, now.Add(time.Hour), m.ExpiredAt)
			require.Equal(t, now, m.ScheduledAt)
		}

		require.Equal(t, 2, metrics.published)
	})

	t.Run("filters reject non-matching attributes", func(t *testing.T) {
		topics, queues, messages, metrics := newFixtures(t)

		addQueue(t, queues, "red-only", "orders-topic", map[string][]string{"color": {"red"}})

		s := New(topics, queues, messages, metrics)

		created, err := s.Publish(context.Background(), "orders-topic", &PublishParams{
			Data:       json.RawMessage(`{"k":1}`),
			Attributes: map[string]string{"color": "blue"},
		})
		require.NoError(t, err)
		require.Empty(t, created)
		require.Empty(t, messages.Batches)
		require.Zero(t, metrics.published)
	})

	t.Run("delivery delay shifts scheduled_at", func(t *testing.T) {
		topics, queues, messages, metrics := newFixtures(t)

		delay := 30

		queue := addQueue(t, queues, "delayed", "orders-topic", nil)
		queue.DeliveryDelaySeconds = &delay
		require.NoError(t, queues.Update(context.Background(), queue))

		s := New(topics, queues, messages, metrics)
		s.now = func() time.Time { return now }

		created, err := s.Publish(context.Background(), "orders-topic", &PublishParams{
			Data: json.RawMessage(`{"k":1}`),
		})
		require.NoError(t, err)
		require.Len(t, created, 1)
		require.Equal(t, now.Add(30*time.Second), created[0].ScheduledAt)
	})

	t.Run("no subscribing queues -> empty result", func(t *testing.T) {
		topics, queues, messages, metrics := newFixtures(t)

		s := New(topics, queues, messages, metrics)

		created, err := s.Publish(context.Background(), "orders-topic", &PublishParams{
			Data: json.RawMessage(`{"k":1}`),
		})
		require.NoError(t, err)
		require.Empty(t, created)
		require.Empty(t, messages.Batches)
	})

	t.Run("missing topic -> not found", func(t *testing.T) {
		topics, queues, messages, metrics := newFixtures(t)

		s := New(topics, queues, messages, metrics)

		_, err := s.Publish(context.Background(), "missing", &PublishParams{
			Data: json.RawMessage(`{"k":1}`),
		})
		require.Error(t, err)
		require.True(t, errors.IsNotFound(err))
	})

	t.Run("empty data -> bad request", func(t *testing.T) {
		topics, queues, messages, metrics := newFixtures(t)

		s := New(topics, queues, messages, metrics)

		_, err := s.Publish(context.Background(), "orders-topic", &PublishParams{})
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
	})
}

func TestService_Lease(t *testing.T) {
	t.Run("returns leased messages and counts them", func(t *testing.T) {
		topics, queues, messages, metrics := newFixtures(t)

		addQueue(t, queues, "orders", "orders-topic", nil)

		messages.LeaseResult = []*store.Message{
			{ID: uuid.New().String(), QueueID: "orders", DeliveryAttempts: 1},
			{ID: uuid.New().String(), QueueID: "orders", DeliveryAttempts: 1},
		}

		s := New(topics, queues, messages, metrics)

		leased, err := s.Lease(context.Background(), "orders", 0)
		require.NoError(t, err)
		require.Len(t, leased, 2)
		require.Equal(t, 2, metrics.consumed)
	})

	t.Run("limit is clamped", func(t *testing.T) {
		topics, queues, messages, metrics := newFixtures(t)

		addQueue(t, queues, "orders", "orders-topic", nil)

		for i := 0; i < 150; i++ {
			messages.LeaseResult = append(messages.LeaseResult,
				&store.Message{ID: uuid.New().String(), QueueID: "orders"})
		}

		s := New(topics, queues, messages, metrics)

		leased, err := s.Lease(context.Background(), "orders", 500)
		require.NoError(t, err)
		require.Len(t, leased, maxLeaseLimit)
	})

	t.Run("missing queue -> not found", func(t *testing.T) {
		topics, queues, messages, metrics := newFixtures(t)

		s := New(topics, queues, messages, metrics)

		_, err := s.Lease(context.Background(), "missing", 10)
		require.Error(t, err)
		require.True(t, errors.IsNotFound(err))
	})
}

func TestService_Ack(t *testing.T) {
	topics, queues, messages, metrics := newFixtures(t)

	s := New(topics, queues, messages, metrics)

	id := uuid.New().String()

	require.NoError(t, s.Ack(context.Background(), id))
	require.Equal(t, []string{id}, messages.AckedIDs)
	require.Equal(t, 1, metrics.acked)

	t.Run("malformed ID is ignored", func(t *testing.T) {
		require.NoError(t, s.Ack(context.Background(), "not-a-uuid"))
		require.Len(t, messages.AckedIDs, 1)
		require.Equal(t, 1, metrics.acked)
	})
}

func TestService_Nack(t *testing.T) {
	topics, queues, messages, metrics := newFixtures(t)

	s := New(topics, queues, messages, metrics)

	id := uuid.New().String()

	require.NoError(t, s.Nack(context.Background(), id))
	require.Equal(t, []string{id}, messages.NackedIDs)
	require.Equal(t, 1, metrics.nacked)

	t.Run("malformed ID is ignored", func(t *testing.T) {
		require.NoError(t, s.Nack(context.Background(), "not-a-uuid"))
		require.Len(t, messages.NackedIDs, 1)
		require.Equal(t, 1, metrics.nacked)
	})
}

type recordingMetrics struct {
	published int
	consumed  int
	acked     int
	nacked    int
}

func (m *recordingMetrics) MessagesPublished(count int) { m.published += count }
func (m *recordingMetrics) MessagesConsumed(count int)  { m.consumed += count }
func (m *recordingMetrics) MessageAcked()               { m.acked++ }
func (m *recordingMetrics) MessageNacked()              { m.nacked++ }
func (m *recordingMetrics) PublishTime(time.Duration)   {}
func (m *recordingMetrics) ConsumeTime(time.Duration)   {}

func newFixtures(t *testing.T) (*mocks.TopicStore, *mocks.QueueStore, *mocks.MessageStore, *recordingMetrics) {
	t.Helper()

	topics := mocks.NewTopicStore()

	require.NoError(t, topics.Create(context.Background(), &store.Topic{ID: "orders-topic"}))
	require.NoError(t, topics.Create(context.Background(), &store.Topic{ID: "other-topic"}))

	return topics, mocks.NewQueueStore(), mocks.NewMessageStore(), &recordingMetrics{}
}

func addQueue(t *testing.T, queues *mocks.QueueStore, id, topicID string,
	filters map[string][]string) *store.Queue {
	t.Helper()

	queue := &store.Queue{
		ID:                      id,
		TopicID:                 &topicID,
		AckDeadlineSeconds:      30,
		MessageRetentionSeconds: 3600,
		MessageFilters:          filters,
	}

	require.NoError(t, queues.Create(context.Background(), queue))

	return queue
}
