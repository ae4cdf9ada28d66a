/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package postgres implements the broker's store contract on PostgreSQL. Concurrency
// control for the lease primitive is delegated to row-level locks with
// FOR UPDATE SKIP LOCKED, so multiple consumers (and multiple server processes) can
// safely share a queue.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastqueue/fastqueue/internal/pkg/log"
	"github.com/fastqueue/fastqueue/pkg/errors"
)

var logger = log.New("store")

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"

	maxConnectRetries = 10
)

// The time columns accumulate long, mostly-sequential ranges as queues fill up, which is
// what BRIN indexes are good at.
const schema = `
CREATE TABLE IF NOT EXISTS topics (
	id varchar(128) PRIMARY KEY,
	created_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS queues (
	id varchar(128) PRIMARY KEY,
	topic_id varchar(128) REFERENCES topics (id) ON DELETE SET NULL,
	dead_queue_id varchar(128) REFERENCES queues (id) ON DELETE SET NULL,
	ack_deadline_seconds integer NOT NULL,
	message_retention_seconds integer NOT NULL,
	message_filters jsonb,
	message_max_deliveries integer,
	delivery_delay_seconds integer,
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_queues_topic_id ON queues (topic_id);

CREATE TABLE IF NOT EXISTS messages (
	id uuid PRIMARY KEY,
	queue_id varchar(128) NOT NULL REFERENCES queues (id) ON DELETE CASCADE,
	data jsonb NOT NULL,
	attributes jsonb,
	delivery_attempts integer NOT NULL,
	expired_at timestamptz NOT NULL,
	scheduled_at timestamptz NOT NULL,
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_messages_queue_id ON messages (queue_id);
CREATE INDEX IF NOT EXISTS ix_messages_expired_at ON messages USING brin (expired_at);
CREATE INDEX IF NOT EXISTS ix_messages_scheduled_at ON messages USING brin (scheduled_at);
CREATE INDEX IF NOT EXISTS ix_messages_expired_at_scheduled_at ON messages USING brin (expired_at, scheduled_at);

CREATE TABLE IF NOT EXISTS coordination (
	key varchar(256) PRIMARY KEY,
	value jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
`

// Connect opens a pgx connection pool for the given database URL, retrying with
// exponential backoff until the database becomes reachable.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	var pool *pgxpool.Pool

	err = backoff.Retry(func() error {
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}

		if err := p.Ping(ctx); err != nil {
			p.Close()

			logger.Infof("Database not reachable yet: %s. Retrying ...", err)

			return err
		}

		pool = p

		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxConnectRetries), ctx))
	if err != nil {
		return nil, errors.NewTransientf("connect to database: %s", err)
	}

	return pool, nil
}

// Migrate applies the broker schema. All statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return errors.NewTransientf("apply schema: %s", err)
	}

	logger.Debugf("Applied broker schema")

	return nil
}

// asStoreError converts a pgx error into one of the typed error kinds. Any error that is
// not classifiable is surfaced as transient.
func asStoreError(err error, notFoundFormat string, a ...interface{}) error {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NewNotFoundf(notFoundFormat, a...)
	}

	var pgErr *pgconn.PgError

	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return errors.NewAlreadyExists(err)
		case foreignKeyViolationCode:
			return errors.NewNotFound(err)
		}
	}

	return errors.NewTransient(err)
}
