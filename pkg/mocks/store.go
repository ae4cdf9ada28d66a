/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mocks contains in-memory implementations of the store contracts for use in
// unit tests. They mimic the error semantics of the postgres implementation but keep
// everything in maps guarded by a mutex.
package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fastqueue/fastqueue/pkg/errors"
	"github.com/fastqueue/fastqueue/pkg/store"
)

// TopicStore is an in-memory store.TopicStore.
type TopicStore struct {
	mutex  sync.RWMutex
	topics map[string]*store.Topic

	Err error // when set, every operation fails with this error
}

// NewTopicStore returns a new in-memory topic store.
func NewTopicStore() *TopicStore {
	return &TopicStore{topics: make(map[string]*store.Topic)}
}

// Create stores the topic.
func (m *TopicStore) Create(_ context.Context, topic *store.Topic) error {
	if m.Err != nil {
		return m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.topics[topic.ID]; ok {
		return errors.NewAlreadyExistsf("topic [%s] already exists", topic.ID)
	}

	t := *topic
	m.topics[topic.ID] = &t

	return nil
}

// Get returns the topic.
func (m *TopicStore) Get(_ context.Context, id string) (*store.Topic, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	topic, ok := m.topics[id]
	if !ok {
		return nil, errors.NewNotFoundf("topic [%s] not found", id)
	}

	t := *topic

	return &t, nil
}

// List returns topics ordered by ID.
func (m *TopicStore) List(_ context.Context, offset, limit int) ([]*store.Topic, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ids := make([]string, 0, len(m.topics))
	for id := range m.topics {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	topics := make([]*store.Topic, 0)

	for i, id := range ids {
		if i < offset {
			continue
		}

		if len(topics) == limit {
			break
		}

		t := *m.topics[id]
		topics = append(topics, &t)
	}

	return topics, nil
}

// Delete removes the topic.
func (m *TopicStore) Delete(_ context.Context, id string) error {
	if m.Err != nil {
		return m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.topics[id]; !ok {
		return errors.NewNotFoundf("topic [%s] not found", id)
	}

	delete(m.topics, id)

	return nil
}

// QueueStore is an in-memory store.QueueStore.
type QueueStore struct {
	mutex  sync.RWMutex
	queues map[string]*store.Queue

	Err       error // when set, every operation fails with this error
	StatsByID map[string]*store.QueueStats
}

// NewQueueStore returns a new in-memory queue store.
func NewQueueStore() *QueueStore {
	return &QueueStore{
		queues:    make(map[string]*store.Queue),
		StatsByID: make(map[string]*store.QueueStats),
	}
}

// Create stores the queue.
func (m *QueueStore) Create(_ context.Context, queue *store.Queue) error {
	if m.Err != nil {
		return m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.queues[queue.ID]; ok {
		return errors.NewAlreadyExistsf("queue [%s] already exists", queue.ID)
	}

	q := *queue
	m.queues[queue.ID] = &q

	return nil
}

// Update overwrites the queue.
func (m *QueueStore) Update(_ context.Context, queue *store.Queue) error {
	if m.Err != nil {
		return m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.queues[queue.ID]; !ok {
		return errors.NewNotFoundf("queue [%s] not found", queue.ID)
	}

	q := *queue
	m.queues[queue.ID] = &q

	return nil
}

// Get returns the queue.
func (m *QueueStore) Get(_ context.Context, id string) (*store.Queue, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	queue, ok := m.queues[id]
	if !ok {
		return nil, errors.NewNotFoundf("queue [%s] not found", id)
	}

	q := *queue

	return &q, nil
}

// List returns queues ordered by ID.
func (m *QueueStore) List(_ context.Context, offset, limit int) ([]*store.Queue, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ids := make([]string, 0, len(m.queues))
	for id := range m.queues {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	queues := make([]*store.Queue, 0)

	for i, id := range ids {
		if i < offset {
			continue
		}

		if len(queues) == limit {
			break
		}

		q := *m.queues[id]
		queues = append(queues, &q)
	}

	return queues, nil
}

// ListByTopic returns queues subscribed to the topic, ordered by ID.
func (m *QueueStore) ListByTopic(_ context.Context, topicID string) ([]*store.Queue, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ids := make([]string, 0)

	for id, queue := range m.queues {
		if queue.TopicID != nil && *queue.TopicID == topicID {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	queues := make([]*store.Queue, 0, len(ids))

	for _, id := range ids {
		q := *m.queues[id]
		queues = append(queues, &q)
	}

	return queues, nil
}

// Delete removes the queue.
func (m *QueueStore) Delete(_ context.Context, id string) error {
	if m.Err != nil {
		return m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.queues[id]; !ok {
		return errors.NewNotFoundf("queue [%s] not found", id)
	}

	delete(m.queues, id)

	for _, queue := range m.queues {
		if queue.DeadQueueID != nil && *queue.DeadQueueID == id {
			queue.DeadQueueID = nil
		}
	}

	return nil
}

// Stats returns the stats configured in StatsByID, or zeros.
func (m *QueueStore) Stats(_ context.Context, queue *store.Queue, _ time.Time) (*store.QueueStats, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if stats, ok := m.StatsByID[queue.ID]; ok {
		return stats, nil
	}

	return &store.QueueStats{}, nil
}

// MessageStore is an in-memory store.MessageStore. Lease results are configured via
// LeaseResult; bulk operations record their invocations and return configured counts.
type MessageStore struct {
	mutex sync.Mutex

	Err         error // when set, every operation fails with this error
	LeaseResult []*store.Message

	Batches      [][]*store.Message
	AckedIDs     []string
	NackedIDs    []string
	PurgedQueues []string
	Redrives     [][2]string
	Sweeps       [][2]string // queue ID and dead queue ID, "" when no dead queue

	PurgeCount   int64
	RedriveCount int64
	ExpiredCount int64
	MigrateCount int64
}

// NewMessageStore returns a new in-memory message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// CreateBatch records the batch.
func (m *MessageStore) CreateBatch(_ context.Context, messages []*store.Message) error {
	if m.Err != nil {
		return m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.Batches = append(m.Batches, messages)

	return nil
}

// Lease returns the configured lease result.
func (m *MessageStore) Lease(_ context.Context, _ *store.Queue, limit int, _ time.Time) ([]*store.Message, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if len(m.LeaseResult) > limit {
		return m.LeaseResult[:limit], nil
	}

	return m.LeaseResult, nil
}

// Ack records the acked ID.
func (m *MessageStore) Ack(_ context.Context, id string) error {
	if m.Err != nil {
		return m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.AckedIDs = append(m.AckedIDs, id)

	return nil
}

// Nack records the nacked ID.
func (m *MessageStore) Nack(_ context.Context, id string, _ time.Time) error {
	if m.Err != nil {
		return m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.NackedIDs = append(m.NackedIDs, id)

	return nil
}

// Purge records the purged queue and returns PurgeCount.
func (m *MessageStore) Purge(_ context.Context, queueID string) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.PurgedQueues = append(m.PurgedQueues, queueID)

	return m.PurgeCount, nil
}

// Redrive records the source/destination pair and returns RedriveCount.
func (m *MessageStore) Redrive(_ context.Context, source, destination *store.Queue, _ time.Time) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.Redrives = append(m.Redrives, [2]string{source.ID, destination.ID})

	return m.RedriveCount, nil
}

// Sweep records the queue/dead-queue pair and returns ExpiredCount and, when a dead
// queue is given, MigrateCount.
func (m *MessageStore) Sweep(_ context.Context, queue, deadQueue *store.Queue, _ time.Time) (int64, int64, error) {
	if m.Err != nil {
		return 0, 0, m.Err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if deadQueue == nil {
		m.Sweeps = append(m.Sweeps, [2]string{queue.ID, ""})

		return m.ExpiredCount, 0, nil
	}

	m.Sweeps = append(m.Sweeps, [2]string{queue.ID, deadQueue.ID})

	return m.ExpiredCount, m.MigrateCount, nil
}

// CoordinationStore is an in-memory store.CoordinationStore.
type CoordinationStore struct {
	mutex  sync.RWMutex
	values map[string][]byte

	ErrGet error
	ErrPut error
}

// NewCoordinationStore returns a new in-memory coordination store.
func NewCoordinationStore() *CoordinationStore {
	return &CoordinationStore{values: make(map[string][]byte)}
}

// Put stores the value.
func (m *CoordinationStore) Put(_ context.Context, key string, value []byte) error {
	if m.ErrPut != nil {
		return m.ErrPut
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.values[key] = value

	return nil
}

// Get returns the value.
func (m *CoordinationStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.ErrGet != nil {
		return nil, m.ErrGet
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, errors.NewNotFoundf("key [%s] not found", key)
	}

	return value, nil
}
