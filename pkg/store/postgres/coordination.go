/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CoordinationStore implements store.CoordinationStore on postgres. It backs the task
// manager's permit protocol so that only one server instance per database runs the
// periodic cleanup.
type CoordinationStore struct {
	pool *pgxpool.Pool
}

// NewCoordinationStore returns a postgres-backed coordination store.
func NewCoordinationStore(pool *pgxpool.Pool) *CoordinationStore {
	return &CoordinationStore{pool: pool}
}

// Put stores the value under the given key, overwriting any previous value.
func (s *CoordinationStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO coordination (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return asStoreError(err, "coordination key [%s] not found", key)
	}

	return nil
}

// Get returns the value stored under the given key.
func (s *CoordinationStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.pool.QueryRow(ctx,
		`SELECT value FROM coordination WHERE key = $1`, key).Scan(&value)
	if err != nil {
		return nil, asStoreError(err, "coordination key [%s] not found", key)
	}

	return value, nil
}
