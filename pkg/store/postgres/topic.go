/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastqueue/fastqueue/pkg/errors"
	"github.com/fastqueue/fastqueue/pkg/store"
)

// TopicStore implements store.TopicStore on postgres.
type TopicStore struct {
	pool *pgxpool.Pool
}

// NewTopicStore returns a postgres-backed topic store.
func NewTopicStore(pool *pgxpool.Pool) *TopicStore {
	return &TopicStore{pool: pool}
}

// Create persists a new topic.
func (s *TopicStore) Create(ctx context.Context, topic *store.Topic) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO topics (id, created_at) VALUES ($1, $2)`,
		topic.ID, topic.CreatedAt)
	if err != nil {
		return asStoreError(err, "topic [%s] not found", topic.ID)
	}

	return nil
}

// Get returns the topic with the given ID.
func (s *TopicStore) Get(ctx context.Context, id string) (*store.Topic, error) {
	var topic store.Topic

	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at FROM topics WHERE id = $1`, id).
		Scan(&topic.ID, &topic.CreatedAt)
	if err != nil {
		return nil, asStoreError(err, "topic [%s] not found", id)
	}

	return &topic, nil
}

// List returns topics ordered by ID.
func (s *TopicStore) List(ctx context.Context, offset, limit int) ([]*store.Topic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at FROM topics ORDER BY id OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, asStoreError(err, "topics not found")
	}

	defer rows.Close()

	topics := make([]*store.Topic, 0)

	for rows.Next() {
		var topic store.Topic

		if err := rows.Scan(&topic.ID, &topic.CreatedAt); err != nil {
			return nil, asStoreError(err, "topics not found")
		}

		topics = append(topics, &topic)
	}

	if err := rows.Err(); err != nil {
		return nil, asStoreError(err, "topics not found")
	}

	return topics, nil
}

// Delete removes the topic. Queues subscribed to it are detached by the
// ON DELETE SET NULL action on queues.topic_id, within the same statement's transaction.
func (s *TopicStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM topics WHERE id = $1`, id)
	if err != nil {
		return asStoreError(err, "topic [%s] not found", id)
	}

	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundf("topic [%s] not found", id)
	}

	return nil
}
