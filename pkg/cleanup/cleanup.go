/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cleanup removes expired messages and migrates over-delivered messages to
// dead queues. It is intended to run as a periodic task on a single instance.
package cleanup

import (
	"context"
	"time"

	"github.com/fastqueue/fastqueue/internal/pkg/log"
	"github.com/fastqueue/fastqueue/pkg/store"
)

var logger = log.New("cleanup")

const pageSize = 100

type metricsProvider interface {
	MessagesExpired(count int)
	MessagesDeadLettered(count int)
	CleanupTime(value time.Duration)
}

// Service sweeps every queue in the system.
type Service struct {
	queues   store.QueueStore
	messages store.MessageStore
	metrics  metricsProvider
	now      func() time.Time
}

// New returns a new cleanup service.
func New(queues store.QueueStore, messages store.MessageStore, metrics metricsProvider) *Service {
	return &Service{
		queues:   queues,
		messages: messages,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one sweep: for each queue it deletes expired messages and, when the
// queue has a dead queue configured, moves over-delivered messages there, committing
// both steps in a single per-queue transaction. A failure on one queue is logged and
// does not abort the sweep.
func (s *Service) Run(ctx context.Context) error {
	startTime := time.Now()

	defer func() { s.metrics.CleanupTime(time.Since(startTime)) }()

	for offset := 0; ; offset += pageSize {
		queues, err := s.queues.List(ctx, offset, pageSize)
		if err != nil {
			return err
		}

		if len(queues) == 0 {
			return nil
		}

		for _, queue := range queues {
			s.sweepQueue(ctx, queue)
		}

		if len(queues) < pageSize {
			return nil
		}
	}
}

func (s *Service) sweepQueue(ctx context.Context, queue *store.Queue) {
	var deadQueue *store.Queue

	if queue.DeadLetterEnabled() {
		resolved, err := s.queues.Get(ctx, *queue.DeadQueueID)
		if err != nil {
			logger.Warnf("Error resolving dead queue [%s] of queue [%s], expiring only: %s",
				*queue.DeadQueueID, queue.ID, err)
		} else {
			deadQueue = resolved
		}
	}

	expired, migrated, err := s.messages.Sweep(ctx, queue, deadQueue, s.now())
	if err != nil {
		logger.Warnf("Error sweeping queue [%s]: %s", queue.ID, err)

		return
	}

	if expired > 0 {
		s.metrics.MessagesExpired(int(expired))

		logger.Debugf("Deleted %d expired messages from queue [%s]", expired, queue.ID)
	}

	if migrated > 0 {
		s.metrics.MessagesDeadLettered(int(migrated))

		logger.Debugf("Moved %d over-delivered messages from queue [%s] to queue [%s]",
			migrated, queue.ID, deadQueue.ID)
	}
}
