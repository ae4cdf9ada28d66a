/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fastqueue/fastqueue/pkg/errors"
	"github.com/fastqueue/fastqueue/pkg/mocks"
	"github.com/fastqueue/fastqueue/pkg/store"
)

func TestService_Run(t *testing.T) {
	t.Run("expires messages on every queue", func(t *testing.T) {
		queues := mocks.NewQueueStore()
		messages := mocks.NewMessageStore()
		metrics := &recordingMetrics{}

		addQueue(t, queues, "a", nil, nil)
		addQueue(t, queues, "b", nil, nil)

		messages.ExpiredCount = 3

		s := New(queues, messages, metrics)

		require.NoError(t, s.Run(context.Background()))
		require.ElementsMatch(t, [][2]string{{"a", ""}, {"b", ""}}, messages.Sweeps)
		require.Equal(t, 6, metrics.expired)
		require.Zero(t, metrics.deadLettered)
	})

	t.Run("migrates over-delivered messages to the dead queue", func(t *testing.T) {
		queues := mocks.NewQueueStore()
		messages := mocks.NewMessageStore()
		metrics := &recordingMetrics{}

		maxDeliveries := 2

		addQueue(t, queues, "dead", nil, nil)
		addQueue(t, queues, "orders", strPtr("dead"), &maxDeliveries)

		messages.MigrateCount = 2

		s := New(queues, messages, metrics)

		require.NoError(t, s.Run(context.Background()))
		require.ElementsMatch(t, [][2]string{{"dead", ""}, {"orders", "dead"}}, messages.Sweeps)
		require.Equal(t, 2, metrics.deadLettered)
	})

	t.Run("queue without dead queue is only expired", func(t *testing.T) {
		queues := mocks.NewQueueStore()
		messages := mocks.NewMessageStore()
		metrics := &recordingMetrics{}

		addQueue(t, queues, "orders", nil, nil)

		s := New(queues, messages, metrics)

		require.NoError(t, s.Run(context.Background()))
		require.Equal(t, [][2]string{{"orders", ""}}, messages.Sweeps)
		require.Zero(t, metrics.deadLettered)
	})

	t.Run("unresolvable dead queue still expires and does not abort the sweep", func(t *testing.T) {
		queues := mocks.NewQueueStore()
		messages := mocks.NewMessageStore()
		metrics := &recordingMetrics{}

		maxDeliveries := 2

		addQueue(t, queues, "a", strPtr("missing-dead"), &maxDeliveries)
		addQueue(t, queues, "b", nil, nil)

		s := New(queues, messages, metrics)

		require.NoError(t, s.Run(context.Background()))
		require.ElementsMatch(t, [][2]string{{"a", ""}, {"b", ""}}, messages.Sweeps)
		require.Zero(t, metrics.deadLettered)
	})

	t.Run("list failure aborts the sweep", func(t *testing.T) {
		queues := mocks.NewQueueStore()
		messages := mocks.NewMessageStore()
		metrics := &recordingMetrics{}

		queues.Err = errors.NewTransientf("connection reset")

		s := New(queues, messages, metrics)

		err := s.Run(context.Background())
		require.Error(t, err)
		require.True(t, errors.IsTransient(err))
	})
}

type recordingMetrics struct {
	expired      int
	deadLettered int
}

func (m *recordingMetrics) MessagesExpired(count int)      { m.expired += count }
func (m *recordingMetrics) MessagesDeadLettered(count int) { m.deadLettered += count }
func (m *recordingMetrics) CleanupTime(time.Duration)      {}

func addQueue(t *testing.T, queues *mocks.QueueStore, id string, deadQueueID *string,
	maxDeliveries *int) {
	t.Helper()

	require.NoError(t, queues.Create(context.Background(), &store.Queue{
		ID:                      id,
		DeadQueueID:             deadQueueID,
		MessageMaxDeliveries:    maxDeliveries,
		AckDeadlineSeconds:      30,
		MessageRetentionSeconds: 3600,
	}))
}

func strPtr(s string) *string {
	return &s
}
