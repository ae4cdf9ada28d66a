/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package store defines the persistent entities of the broker and the contract that a
// storage provider must fulfill. The postgres sub-package contains the production
// implementation.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Topic is a named publish point. Messages published to a topic are fanned out to every
// queue subscribed to it.
type Topic struct {
	ID        string
	CreatedAt time.Time
}

// Queue is a durable collection of messages with a lease protocol.
type Queue struct {
	ID                      string
	TopicID                 *string
	DeadQueueID             *string
	AckDeadlineSeconds      int
	MessageRetentionSeconds int
	MessageFilters          map[string][]string
	MessageMaxDeliveries    *int
	DeliveryDelaySeconds    *int
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// AckDeadline returns the queue's visibility timeout as a duration.
func (q *Queue) AckDeadline() time.Duration {
	return time.Duration(q.AckDeadlineSeconds) * time.Second
}

// MessageRetention returns the queue's retention horizon as a duration.
func (q *Queue) MessageRetention() time.Duration {
	return time.Duration(q.MessageRetentionSeconds) * time.Second
}

// DeliveryDelay returns the queue's initial scheduling delay, or zero when unset.
func (q *Queue) DeliveryDelay() time.Duration {
	if q.DeliveryDelaySeconds == nil {
		return 0
	}

	return time.Duration(*q.DeliveryDelaySeconds) * time.Second
}

// DeadLetterEnabled returns true if over-delivered messages on this queue are routed to a
// dead queue. Both parameters must be set; message_max_deliveries alone does not gate
// consumption.
func (q *Queue) DeadLetterEnabled() bool {
	return q.DeadQueueID != nil && q.MessageMaxDeliveries != nil
}

// Message is a single unit of data owned by a queue.
type Message struct {
	ID               string
	QueueID          string
	Data             json.RawMessage
	Attributes       map[string]string
	DeliveryAttempts int
	ExpiredAt        time.Time
	ScheduledAt      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// QueueStats describes the consumable backlog of a queue.
type QueueStats struct {
	NumUndeliveredMessages         int64
	OldestUnackedMessageAgeSeconds int64
}

// TopicStore provides durable persistence of topics.
type TopicStore interface {
	// Create persists a new topic. Returns an 'already exists' error on identity collision.
	Create(ctx context.Context, topic *Topic) error

	// Get returns the topic with the given ID, or a 'not found' error.
	Get(ctx context.Context, id string) (*Topic, error)

	// List returns topics ordered by ID.
	List(ctx context.Context, offset, limit int) ([]*Topic, error)

	// Delete removes the topic and, in the same transaction, detaches every queue
	// subscribed to it. Returns a 'not found' error when the topic does not exist.
	Delete(ctx context.Context, id string) error
}

// QueueStore provides durable persistence of queues.
type QueueStore interface {
	// Create persists a new queue. Returns an 'already exists' error on identity collision.
	Create(ctx context.Context, queue *Queue) error

	// Update overwrites the queue's parameters, preserving created_at.
	Update(ctx context.Context, queue *Queue) error

	// Get returns the queue with the given ID, or a 'not found' error.
	Get(ctx context.Context, id string) (*Queue, error)

	// List returns queues ordered by ID.
	List(ctx context.Context, offset, limit int) ([]*Queue, error)

	// ListByTopic returns every queue subscribed to the given topic, ordered by ID.
	ListByTopic(ctx context.Context, topicID string) ([]*Queue, error)

	// Delete removes the queue, cascading to its messages and nulling dead_queue_id on
	// queues pointing at it. Returns a 'not found' error when the queue does not exist.
	Delete(ctx context.Context, id string) error

	// Stats computes the consumable backlog of the queue at the given instant.
	Stats(ctx context.Context, queue *Queue, now time.Time) (*QueueStats, error)
}

// MessageStore provides durable persistence of messages, including the atomic lease
// primitive on which the delivery contract rests.
type MessageStore interface {
	// CreateBatch inserts the given messages in a single transaction. Either all rows are
	// committed or none.
	CreateBatch(ctx context.Context, messages []*Message) error

	// Lease atomically selects up to limit consumable rows of the queue, skipping rows
	// held by a concurrent lease, increments delivery_attempts and pushes scheduled_at
	// forward by the queue's ack deadline. It returns the post-update rows and never
	// blocks on locked rows; fewer than limit rows (possibly zero) is a normal result.
	Lease(ctx context.Context, queue *Queue, limit int, now time.Time) ([]*Message, error)

	// Ack deletes the row by ID. A missing row is a no-op.
	Ack(ctx context.Context, id string) error

	// Nack re-exposes the row by setting scheduled_at to now. A missing row is a no-op.
	Nack(ctx context.Context, id string, now time.Time) error

	// Purge deletes every message of the queue and returns the number of rows removed.
	Purge(ctx context.Context, queueID string) (int64, error)

	// Redrive bulk-moves every currently consumable message from the source queue to the
	// destination queue, resetting delivery counters and recomputing the time columns
	// against the destination's parameters. Returns the number of rows moved.
	Redrive(ctx context.Context, source, destination *Queue, now time.Time) (int64, error)

	// Sweep removes every message of the queue whose expired_at is not after now and,
	// when deadQueue is non-nil, rehomes messages whose delivery_attempts reached the
	// queue's maximum into the dead queue, resetting counters and recomputing time
	// columns against the dead queue's parameters. Both steps commit in a single
	// transaction. Returns the number of rows deleted and the number of rows moved.
	Sweep(ctx context.Context, queue, deadQueue *Queue, now time.Time) (expired, migrated int64, err error)
}

// CoordinationStore is a small key/value store used to coordinate singleton duties
// (such as the cleanup task) across server instances sharing a database.
type CoordinationStore interface {
	// Put stores the value under the given key.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value stored under the given key, or a 'not found' error.
	Get(ctx context.Context, key string) ([]byte, error)
}
