/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastqueue/fastqueue/pkg/errors"
	"github.com/fastqueue/fastqueue/pkg/store"
)

const queueColumns = `id, topic_id, dead_queue_id, ack_deadline_seconds, message_retention_seconds,
	message_filters, message_max_deliveries, delivery_delay_seconds, created_at, updated_at`

// QueueStore implements store.QueueStore on postgres.
type QueueStore struct {
	pool *pgxpool.Pool
}

// NewQueueStore returns a postgres-backed queue store.
func NewQueueStore(pool *pgxpool.Pool) *QueueStore {
	return &QueueStore{pool: pool}
}

// Create persists a new queue.
func (s *QueueStore) Create(ctx context.Context, queue *store.Queue) error {
	filters, err := filtersParam(queue.MessageFilters)
	if err != nil {
		return errors.NewBadRequest(err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO queues (id, topic_id, dead_queue_id, ack_deadline_seconds, message_retention_seconds,
			message_filters, message_max_deliveries, delivery_delay_seconds, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		queue.ID, queue.TopicID, queue.DeadQueueID, queue.AckDeadlineSeconds, queue.MessageRetentionSeconds,
		filters, queue.MessageMaxDeliveries, queue.DeliveryDelaySeconds, queue.CreatedAt, queue.UpdatedAt)
	if err != nil {
		return asStoreError(err, "queue [%s] not found", queue.ID)
	}

	return nil
}

// Update overwrites the queue's parameters. created_at is left untouched.
func (s *QueueStore) Update(ctx context.Context, queue *store.Queue) error {
	filters, err := filtersParam(queue.MessageFilters)
	if err != nil {
		return errors.NewBadRequest(err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE queues SET topic_id = $2, dead_queue_id = $3, ack_deadline_seconds = $4,
			message_retention_seconds = $5, message_filters = $6, message_max_deliveries = $7,
			delivery_delay_seconds = $8, updated_at = $9
		 WHERE id = $1`,
		queue.ID, queue.TopicID, queue.DeadQueueID, queue.AckDeadlineSeconds,
		queue.MessageRetentionSeconds, filters, queue.MessageMaxDeliveries,
		queue.DeliveryDelaySeconds, queue.UpdatedAt)
	if err != nil {
		return asStoreError(err, "queue [%s] not found", queue.ID)
	}

	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundf("queue [%s] not found", queue.ID)
	}

	return nil
}

// Get returns the queue with the given ID.
func (s *QueueStore) Get(ctx context.Context, id string) (*store.Queue, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM queues WHERE id = $1`, id)

	queue, err := scanQueue(row)
	if err != nil {
		return nil, asStoreError(err, "queue [%s] not found", id)
	}

	return queue, nil
}

// List returns queues ordered by ID.
func (s *QueueStore) List(ctx context.Context, offset, limit int) ([]*store.Queue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+queueColumns+` FROM queues ORDER BY id OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, asStoreError(err, "queues not found")
	}

	return collectQueues(rows)
}

// ListByTopic returns every queue subscribed to the given topic, ordered by ID.
func (s *QueueStore) ListByTopic(ctx context.Context, topicID string) ([]*store.Queue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+queueColumns+` FROM queues WHERE topic_id = $1 ORDER BY id`, topicID)
	if err != nil {
		return nil, asStoreError(err, "queues not found")
	}

	return collectQueues(rows)
}

// Delete removes the queue. Messages are removed by the ON DELETE CASCADE action on
// messages.queue_id and inbound dead_queue_id references are nulled by ON DELETE SET NULL.
func (s *QueueStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM queues WHERE id = $1`, id)
	if err != nil {
		return asStoreError(err, "queue [%s] not found", id)
	}

	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundf("queue [%s] not found", id)
	}

	return nil
}

// Stats computes the consumable backlog of the queue at the given instant.
func (s *QueueStore) Stats(ctx context.Context, queue *store.Queue, now time.Time) (*store.QueueStats, error) {
	query := `SELECT count(*), min(created_at) FROM messages
		WHERE queue_id = $1 AND expired_at >= $2 AND scheduled_at <= $2`
	args := []interface{}{queue.ID, now}

	if queue.DeadLetterEnabled() {
		query += ` AND delivery_attempts < $3`
		args = append(args, *queue.MessageMaxDeliveries)
	}

	var (
		count  int64
		oldest *time.Time
	)

	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count, &oldest); err != nil {
		return nil, asStoreError(err, "queue [%s] not found", queue.ID)
	}

	stats := &store.QueueStats{NumUndeliveredMessages: count}

	if oldest != nil {
		stats.OldestUnackedMessageAgeSeconds = int64(now.Sub(*oldest).Seconds())
	}

	return stats, nil
}

func scanQueue(row pgx.Row) (*store.Queue, error) {
	var (
		queue   store.Queue
		filters []byte
	)

	err := row.Scan(&queue.ID, &queue.TopicID, &queue.DeadQueueID, &queue.AckDeadlineSeconds,
		&queue.MessageRetentionSeconds, &filters, &queue.MessageMaxDeliveries,
		&queue.DeliveryDelaySeconds, &queue.CreatedAt, &queue.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if filters != nil {
		if err := json.Unmarshal(filters, &queue.MessageFilters); err != nil {
			return nil, err
		}
	}

	return &queue, nil
}

func collectQueues(rows pgx.Rows) ([]*store.Queue, error) {
	defer rows.Close()

	queues := make([]*store.Queue, 0)

	for rows.Next() {
		queue, err := scanQueue(rows)
		if err != nil {
			return nil, asStoreError(err, "queues not found")
		}

		queues = append(queues, queue)
	}

	if err := rows.Err(); err != nil {
		return nil, asStoreError(err, "queues not found")
	}

	return queues, nil
}

func filtersParam(filters map[string][]string) (interface{}, error) {
	if filters == nil {
		return nil, nil
	}

	return json.Marshal(filters)
}
