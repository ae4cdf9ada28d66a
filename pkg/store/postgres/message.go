/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastqueue/fastqueue/pkg/store"
)

const messageColumns = `id::text, queue_id, data, attributes, delivery_attempts,
	expired_at, scheduled_at, created_at, updated_at`

// The locking CTE selects eligible rows with FOR UPDATE SKIP LOCKED so concurrent
// consumers lease disjoint row sets without blocking. The UPDATE in the same statement
// publishes the new visibility window atomically with the lock.
const leaseSQL = `
WITH eligible AS (
	SELECT id FROM messages
	WHERE queue_id = $1 AND expired_at >= $2 AND scheduled_at <= $2
	ORDER BY scheduled_at
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)
UPDATE messages m
SET delivery_attempts = m.delivery_attempts + 1, scheduled_at = $4, updated_at = $2
FROM eligible e
WHERE m.id = e.id
RETURNING m.id::text, m.queue_id, m.data, m.attributes, m.delivery_attempts,
	m.expired_at, m.scheduled_at, m.created_at, m.updated_at`

const leaseMaxDeliveriesSQL = `
WITH eligible AS (
	SELECT id FROM messages
	WHERE queue_id = $1 AND expired_at >= $2 AND scheduled_at <= $2 AND delivery_attempts < $5
	ORDER BY scheduled_at
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)
UPDATE messages m
SET delivery_attempts = m.delivery_attempts + 1, scheduled_at = $4, updated_at = $2
FROM eligible e
WHERE m.id = e.id
RETURNING m.id::text, m.queue_id, m.data, m.attributes, m.delivery_attempts,
	m.expired_at, m.scheduled_at, m.created_at, m.updated_at`

const redriveSQL = `
WITH moved AS (
	SELECT id FROM messages
	WHERE queue_id = $1 AND expired_at >= $2 AND scheduled_at <= $2
	FOR UPDATE SKIP LOCKED
)
UPDATE messages m
SET queue_id = $3, delivery_attempts = 0, expired_at = $4, scheduled_at = $5, updated_at = $2
FROM moved
WHERE m.id = moved.id`

const redriveMaxDeliveriesSQL = `
WITH moved AS (
	SELECT id FROM messages
	WHERE queue_id = $1 AND expired_at >= $2 AND scheduled_at <= $2 AND delivery_attempts < $6
	FOR UPDATE SKIP LOCKED
)
UPDATE messages m
SET queue_id = $3, delivery_attempts = 0, expired_at = $4, scheduled_at = $5, updated_at = $2
FROM moved
WHERE m.id = moved.id`

const migrateOverDeliveredSQL = `
WITH over AS (
	SELECT id FROM messages
	WHERE queue_id = $1 AND delivery_attempts >= $2
	FOR UPDATE SKIP LOCKED
)
UPDATE messages m
SET queue_id = $3, delivery_attempts = 0, expired_at = $4, scheduled_at = $5, updated_at = $6
FROM over
WHERE m.id = over.id`

// MessageStore implements store.MessageStore on postgres.
type MessageStore struct {
	pool *pgxpool.Pool
}

// NewMessageStore returns a postgres-backed message store.
func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// CreateBatch inserts the given messages in a single transaction, so a publish fan-out
// either lands in every admitting queue or in none.
func (s *MessageStore) CreateBatch(ctx context.Context, messages []*store.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return asStoreError(err, "messages not found")
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && !stderrors.Is(err, pgx.ErrTxClosed) {
			logger.Warnf("Error rolling back transaction: %s", err)
		}
	}()

	batch := &pgx.Batch{}

	for _, message := range messages {
		attributes, err := attributesParam(message.Attributes)
		if err != nil {
			return asStoreError(err, "messages not found")
		}

		batch.Queue(
			`INSERT INTO messages (id, queue_id, data, attributes, delivery_attempts,
				expired_at, scheduled_at, created_at, updated_at)
			 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
			message.ID, message.QueueID, []byte(message.Data), attributes, message.DeliveryAttempts,
			message.ExpiredAt, message.ScheduledAt, message.CreatedAt, message.UpdatedAt)
	}

	results := tx.SendBatch(ctx, batch)

	for range messages {
		if _, err := results.Exec(); err != nil {
			if closeErr := results.Close(); closeErr != nil {
				logger.Warnf("Error closing batch results: %s", closeErr)
			}

			return asStoreError(err, "messages not found")
		}
	}

	if err := results.Close(); err != nil {
		return asStoreError(err, "messages not found")
	}

	if err := tx.Commit(ctx); err != nil {
		return asStoreError(err, "messages not found")
	}

	return nil
}

// Lease atomically claims up to limit consumable rows of the queue. Rows locked by a
// concurrent lease are skipped; the call never blocks and may return fewer rows than
// requested, including none.
func (s *MessageStore) Lease(ctx context.Context, queue *store.Queue, limit int, now time.Time) ([]*store.Message, error) {
	visibleAgain := now.Add(queue.AckDeadline())

	var rows pgx.Rows

	var err error

	if queue.DeadLetterEnabled() {
		rows, err = s.pool.Query(ctx, leaseMaxDeliveriesSQL,
			queue.ID, now, limit, visibleAgain, *queue.MessageMaxDeliveries)
	} else {
		rows, err = s.pool.Query(ctx, leaseSQL, queue.ID, now, limit, visibleAgain)
	}

	if err != nil {
		return nil, asStoreError(err, "queue [%s] not found", queue.ID)
	}

	return collectMessages(rows)
}

// Ack deletes the row by ID. A missing row is a no-op.
func (s *MessageStore) Ack(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1::uuid`, id); err != nil {
		return asStoreError(err, "message [%s] not found", id)
	}

	return nil
}

// Nack re-exposes the row by scheduling it immediately. A missing row is a no-op.
// delivery_attempts is left untouched.
func (s *MessageStore) Nack(ctx context.Context, id string, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE messages SET scheduled_at = $2, updated_at = $2 WHERE id = $1::uuid`, id, now)
	if err != nil {
		return asStoreError(err, "message [%s] not found", id)
	}

	return nil
}

// Purge deletes every message of the queue.
func (s *MessageStore) Purge(ctx context.Context, queueID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE queue_id = $1`, queueID)
	if err != nil {
		return 0, asStoreError(err, "queue [%s] not found", queueID)
	}

	return tag.RowsAffected(), nil
}

// Redrive bulk-moves every currently consumable message from the source queue to the
// destination queue. The moved rows get delivery_attempts reset and their time columns
// recomputed against the destination's retention and delivery delay.
func (s *MessageStore) Redrive(ctx context.Context, source, destination *store.Queue, now time.Time) (int64, error) {
	expiredAt := now.Add(destination.MessageRetention())
	scheduledAt := now.Add(destination.DeliveryDelay())

	var (
		tag pgconn.CommandTag
		err error
	)

	if source.DeadLetterEnabled() {
		tag, err = s.pool.Exec(ctx, redriveMaxDeliveriesSQL,
			source.ID, now, destination.ID, expiredAt, scheduledAt, *source.MessageMaxDeliveries)
	} else {
		tag, err = s.pool.Exec(ctx, redriveSQL, source.ID, now, destination.ID, expiredAt, scheduledAt)
	}

	if err != nil {
		return 0, asStoreError(err, "queue [%s] not found", source.ID)
	}

	return tag.RowsAffected(), nil
}

// Sweep removes the queue's messages whose retention horizon has passed and, when a dead
// queue is given, rehomes messages that reached the queue's delivery maximum there, with
// counters reset and time columns recomputed against the dead queue. Both statements run
// in one transaction so the queue observes a single cleanup commit.
func (s *MessageStore) Sweep(ctx context.Context, queue, deadQueue *store.Queue, now time.Time) (expired, migrated int64, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, asStoreError(err, "queue [%s] not found", queue.ID)
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && !stderrors.Is(err, pgx.ErrTxClosed) {
			logger.Warnf("Error rolling back transaction: %s", err)
		}
	}()

	tag, err := tx.Exec(ctx,
		`DELETE FROM messages WHERE queue_id = $1 AND expired_at <= $2`, queue.ID, now)
	if err != nil {
		return 0, 0, asStoreError(err, "queue [%s] not found", queue.ID)
	}

	expired = tag.RowsAffected()

	if deadQueue != nil {
		expiredAt := now.Add(deadQueue.MessageRetention())
		scheduledAt := now.Add(deadQueue.DeliveryDelay())

		tag, err = tx.Exec(ctx, migrateOverDeliveredSQL,
			queue.ID, *queue.MessageMaxDeliveries, deadQueue.ID, expiredAt, scheduledAt, now)
		if err != nil {
			return 0, 0, asStoreError(err, "queue [%s] not found", queue.ID)
		}

		migrated = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, asStoreError(err, "queue [%s] not found", queue.ID)
	}

	return expired, migrated, nil
}

func scanMessage(row pgx.Row) (*store.Message, error) {
	var (
		message    store.Message
		data       []byte
		attributes []byte
	)

	err := row.Scan(&message.ID, &message.QueueID, &data, &attributes, &message.DeliveryAttempts,
		&message.ExpiredAt, &message.ScheduledAt, &message.CreatedAt, &message.UpdatedAt)
	if err != nil {
		return nil, err
	}

	message.Data = json.RawMessage(data)

	if attributes != nil {
		if err := json.Unmarshal(attributes, &message.Attributes); err != nil {
			return nil, err
		}
	}

	return &message, nil
}

func collectMessages(rows pgx.Rows) ([]*store.Message, error) {
	defer rows.Close()

	messages := make([]*store.Message, 0)

	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, asStoreError(err, "messages not found")
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, asStoreError(err, "messages not found")
	}

	return messages, nil
}

func attributesParam(attributes map[string]string) (interface{}, error) {
	if attributes == nil {
		return nil, nil
	}

	return json.Marshal(attributes)
}
