/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package topic manages the lifecycle of topics.
package topic

import (
	"context"
	"time"

	"github.com/fastqueue/fastqueue/internal/pkg/identity"
	"github.com/fastqueue/fastqueue/internal/pkg/log"
	"github.com/fastqueue/fastqueue/pkg/store"
)

var logger = log.New("topic")

// Service implements topic lifecycle operations on top of the store.
type Service struct {
	topics store.TopicStore
	now    func() time.Time
}

// New returns a new topic service.
func New(topics store.TopicStore) *Service {
	return &Service{
		topics: topics,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create creates a new topic with the given ID.
func (s *Service) Create(ctx context.Context, id string) (*store.Topic, error) {
	if err := identity.Validate(id); err != nil {
		return nil, err
	}

	topic := &store.Topic{
		ID:        id,
		CreatedAt: s.now(),
	}

	if err := s.topics.Create(ctx, topic); err != nil {
		return nil, err
	}

	logger.Debugf("Created topic [%s]", id)

	return topic, nil
}

// Get returns the topic with the given ID.
func (s *Service) Get(ctx context.Context, id string) (*store.Topic, error) {
	return s.topics.Get(ctx, id)
}

// List returns topics ordered by ID.
func (s *Service) List(ctx context.Context, offset, limit int) ([]*store.Topic, error) {
	return s.topics.List(ctx, normalizeOffset(offset), normalizeLimit(limit))
}

// Delete removes the topic. Every queue subscribed to it is detached in the same
// transaction; queues and their messages survive.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.topics.Delete(ctx, id); err != nil {
		return err
	}

	logger.Debugf("Deleted topic [%s]", id)

	return nil
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}

	return offset
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}

	if limit > maxLimit {
		return maxLimit
	}

	return limit
}
