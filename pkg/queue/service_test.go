/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fastqueue/fastqueue/pkg/errors"
	"github.com/fastqueue/fastqueue/pkg/mocks"
	"github.com/fastqueue/fastqueue/pkg/store"
)

func TestService_Create(t *testing.T) {
	t.Run("success with all parameters", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		_, err := s.Create(context.Background(), "orders-dead", minimalParams())
		require.NoError(t, err)

		created, err := s.Create(context.Background(), "orders", &Params{
			TopicID:                 strPtr("orders-topic"),
			DeadQueueID:             strPtr("orders-dead"),
			AckDeadlineSeconds:      60,
			MessageRetentionSeconds: 7200,
			MessageFilters:          map[string][]string{"color": {"red"}},
			MessageMaxDeliveries:    intPtr(5),
			DeliveryDelaySeconds:    intPtr(30),
		})
		require.NoError(t, err)
		require.Equal(t, "orders", created.ID)
		require.Equal(t, created.CreatedAt, created.UpdatedAt)
		require.True(t, created.DeadLetterEnabled())

		got, err := s.Get(context.Background(), "orders")
		require.NoError(t, err)
		require.Equal(t, "orders-topic", *got.TopicID)
	})

	t.Run("invalid id -> bad request", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		_, err := s.Create(context.Background(), "not valid!", minimalParams())
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
	})

	t.Run("duplicate -> already exists", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		_, err := s.Create(context.Background(), "orders", minimalParams())
		require.NoError(t, err)

		_, err = s.Create(context.Background(), "orders", minimalParams())
		require.Error(t, err)
		require.True(t, errors.IsAlreadyExists(err))
	})

	t.Run("ack deadline out of range -> bad request", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		params := minimalParams()
		params.AckDeadlineSeconds = 601

		_, err := s.Create(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
		require.Contains(t, err.Error(), "ack_deadline_seconds")
	})

	t.Run("retention out of range -> bad request", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		params := minimalParams()
		params.MessageRetentionSeconds = 599

		_, err := s.Create(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
		require.Contains(t, err.Error(), "message_retention_seconds")
	})

	t.Run("max deliveries out of range -> bad request", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		_, err := s.Create(context.Background(), "orders-dead", minimalParams())
		require.NoError(t, err)

		params := minimalParams()
		params.DeadQueueID = strPtr("orders-dead")
		params.MessageMaxDeliveries = intPtr(1001)

		_, err = s.Create(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
		require.Contains(t, err.Error(), "message_max_deliveries")
	})

	t.Run("delivery delay out of range -> bad request", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		params := minimalParams()
		params.DeliveryDelaySeconds = intPtr(901)

		_, err := s.Create(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
		require.Contains(t, err.Error(), "delivery_delay_seconds")
	})

	t.Run("dead queue without max deliveries -> bad request", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		_, err := s.Create(context.Background(), "orders-dead", minimalParams())
		require.NoError(t, err)

		params := minimalParams()
		params.DeadQueueID = strPtr("orders-dead")

		_, err = s.Create(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
		require.Contains(t, err.Error(), "must be set together")
	})

	t.Run("max deliveries without dead queue -> bad request", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		params := minimalParams()
		params.MessageMaxDeliveries = intPtr(5)

		_, err := s.Create(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
	})

	t.Run("self-referencing dead queue -> bad request", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		params := minimalParams()
		params.DeadQueueID = strPtr("orders")
		params.MessageMaxDeliveries = intPtr(5)

		_, err := s.Create(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
		require.Contains(t, err.Error(), "own dead queue")
	})

	t.Run("malformed topic id -> bad request", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		params := minimalParams()
		params.TopicID = strPtr("not a valid id!")

		_, err := s.Create(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
		require.False(t, errors.IsNotFound(err))
	})

	t.Run("malformed dead queue id -> bad request", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		params := minimalParams()
		params.DeadQueueID = strPtr("not a valid id!")
		params.MessageMaxDeliveries = intPtr(5)

		_, err := s.Create(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
		require.False(t, errors.IsNotFound(err))
	})

	t.Run("missing topic -> not found", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		params := minimalParams()
		params.TopicID = strPtr("missing-topic")

		_, err := s.Create(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsNotFound(err))
	})

	t.Run("missing dead queue -> not found", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		params := minimalParams()
		params.DeadQueueID = strPtr("missing-dead")
		params.MessageMaxDeliveries = intPtr(5)

		_, err := s.Create(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsNotFound(err))
	})
}

func TestService_Update(t *testing.T) {
	t.Run("preserves created_at and advances updated_at", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())
		s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

		created, err := s.Create(context.Background(), "orders", minimalParams())
		require.NoError(t, err)

		s.now = func() time.Time { return time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC) }

		params := minimalParams()
		params.AckDeadlineSeconds = 120

		updated, err := s.Update(context.Background(), "orders", params)
		require.NoError(t, err)
		require.Equal(t, created.CreatedAt, updated.CreatedAt)
		require.True(t, updated.UpdatedAt.After(updated.CreatedAt))
		require.Equal(t, 120, updated.AckDeadlineSeconds)
	})

	t.Run("missing queue -> not found", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		_, err := s.Update(context.Background(), "missing", minimalParams())
		require.Error(t, err)
		require.True(t, errors.IsNotFound(err))
	})

	t.Run("invalid params -> bad request", func(t *testing.T) {
		topics, queues, messages := newStores(t)

		s := New(topics, queues, messages, DefaultLimits())

		_, err := s.Create(context.Background(), "orders", minimalParams())
		require.NoError(t, err)

		params := minimalParams()
		params.AckDeadlineSeconds = 0

		_, err = s.Update(context.Background(), "orders", params)
		require.Error(t, err)
		require.True(t, errors.IsBadRequest(err))
	})
}

func TestService_List(t *testing.T) {
	topics, queues, messages := newStores(t)

	s := New(topics, queues, messages, DefaultLimits())

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Create(context.Background(), id, minimalParams())
		require.NoError(t, err)
	}

	list, err := s.List(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)

	list, err = s.List(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "c", list[0].ID)
}

func TestService_Delete(t *testing.T) {
	topics, queues, messages := newStores(t)

	s := New(topics, queues, messages, DefaultLimits())

	_, err := s.Create(context.Background(), "orders", minimalParams())
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), "orders"))

	err = s.Delete(context.Background(), "orders")
	require.Error(t, err)
	require.True(t, errors.IsNotFound(err))
}

func TestService_Stats(t *testing.T) {
	topics, queues, messages := newStores(t)

	s := New(topics, queues, messages, DefaultLimits())

	_, err := s.Create(context.Background(), "orders", minimalParams())
	require.NoError(t, err)

	queues.StatsByID["orders"] = &store.QueueStats{
		NumUndeliveredMessages:         7,
		OldestUnackedMessageAgeSeconds: 42,
	}

	stats, err := s.Stats(context.Background(), "orders")
	require.NoError(t, err)
	require.Equal(t, int64(7), stats.NumUndeliveredMessages)
	require.Equal(t, int64(42), stats.OldestUnackedMessageAgeSeconds)

	_, err = s.Stats(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, errors.IsNotFound(err))
}

func TestService_Purge(t *testing.T) {
	topics, queues, messages := newStores(t)

	s := New(topics, queues, messages, DefaultLimits())

	_, err := s.Create(context.Background(), "orders", minimalParams())
	require.NoError(t, err)

	require.NoError(t, s.Purge(context.Background(), "orders"))
	require.Equal(t, []string{"orders"}, messages.PurgedQueues)

	err = s.Purge(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, errors.IsNotFound(err))
	require.Len(t, messages.PurgedQueues, 1)
}

func TestService_Redrive(t *testing.T) {
	topics, queues, messages := newStores(t)

	s := New(topics, queues, messages, DefaultLimits())

	_, err := s.Create(context.Background(), "orders-dead", minimalParams())
	require.NoError(t, err)

	_, err = s.Create(context.Background(), "orders", minimalParams())
	require.NoError(t, err)

	require.NoError(t, s.Redrive(context.Background(), "orders-dead", "orders"))
	require.Equal(t, [][2]string{{"orders-dead", "orders"}}, messages.Redrives)

	err = s.Redrive(context.Background(), "missing", "orders")
	require.Error(t, err)
	require.True(t, errors.IsNotFound(err))

	err = s.Redrive(context.Background(), "orders", "missing")
	require.Error(t, err)
	require.True(t, errors.IsNotFound(err))
	require.Len(t, messages.Redrives, 1)

	err = s.Redrive(context.Background(), "orders", "not a valid id!")
	require.Error(t, err)
	require.True(t, errors.IsBadRequest(err))
	require.False(t, errors.IsNotFound(err))
	require.Len(t, messages.Redrives, 1)
}

func newStores(t *testing.T) (*mocks.TopicStore, *mocks.QueueStore, *mocks.MessageStore) {
	t.Helper()

	topics := mocks.NewTopicStore()

	require.NoError(t, topics.Create(context.Background(), &store.Topic{ID: "orders-topic"}))

	return topics, mocks.NewQueueStore(), mocks.NewMessageStore()
}

func minimalParams() *Params {
	return &Params{
		AckDeadlineSeconds:      30,
		MessageRetentionSeconds: 3600,
	}
}

func strPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}
