/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package taskmgr runs registered tasks periodically, coordinating through the
// database so that each task runs on exactly one instance in a cluster.
package taskmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fastqueue/fastqueue/internal/pkg/log"
	"github.com/fastqueue/fastqueue/pkg/errors"
	"github.com/fastqueue/fastqueue/pkg/lifecycle"
	"github.com/fastqueue/fastqueue/pkg/store"
)

var logger = log.New("task-manager")

const (
	coordinationPermitKey = "task-permit"
	defaultCheckInterval  = 10 * time.Second
)

type status = string

const (
	statusIdle    status = "idle"
	statusRunning status = "running"
)

// permit is an entry in the coordination store that assigns the duty of running a
// task to a single instance. Every instance in the cluster must be connected to the
// same database. During startup, or after the duty holder goes down, more than one
// instance may briefly hold the duty; this resolves itself on the next check.
type permit struct {
	TaskID        string `json:"task_id"`
	CurrentHolder string `json:"current_holder"`
	Status        string `json:"status"`
	UpdatedTime   int64  `json:"updated_time"` // Unix timestamp.
}

// Manager runs scheduled tasks on exactly one server instance in a cluster.
type Manager struct {
	*lifecycle.Lifecycle

	interval          time.Duration
	tasks             map[string]*registration
	done              chan struct{}
	coordinationStore store.CoordinationStore
	instanceID        string
	mutex             sync.RWMutex
}

// New returns a new task manager. Register each task with RegisterTask, then call
// Start. Stop shuts down the run loop; a task that is mid-run finishes.
func New(coordinationStore store.CoordinationStore, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	m := &Manager{
		interval:          interval,
		done:              make(chan struct{}),
		coordinationStore: coordinationStore,
		instanceID:        uuid.New().String(),
		tasks:             make(map[string]*registration),
	}

	m.Lifecycle = lifecycle.New("task-manager",
		lifecycle.WithStart(m.start),
		lifecycle.WithStop(m.stop))

	return m
}

// InstanceID returns the unique ID of this server instance.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// RegisterTask registers a task to be run periodically at the given interval.
func (m *Manager) RegisterTask(id string, interval time.Duration, task func()) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.tasks[id] = &registration{
		handle:   task,
		id:       id,
		interval: interval,
	}
}

func (m *Manager) getTasks() []*registration {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	tasks := make([]*registration, 0, len(m.tasks))

	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}

	return tasks
}

func (m *Manager) start() {
	go func() {
		logger.Infof("Started task manager [%s]", m.instanceID)

		for {
			select {
			case <-time.After(m.interval):
				for _, t := range m.getTasks() {
					if err := m.run(t); err != nil {
						logger.Errorf("Error running task [%s]: %s", t.id, err)
					}
				}
			case <-m.done:
				logger.Debugf("Stopped task manager [%s]", m.instanceID)

				return
			}
		}
	}()
}

func (m *Manager) stop() {
	close(m.done)
}

func (m *Manager) run(t *registration) error {
	if t.isRunning() {
		logger.Debugf("Task [%s] is still running. Refreshing the permit to show that I'm alive.", t.id)

		if err := m.updatePermit(t.id, statusRunning); err != nil {
			logger.Warnf("Error updating status of task [%s]: %s", t.id, err)
		}

		return nil
	}

	ok, err := m.shouldRun(t)
	if err != nil {
		return fmt.Errorf("should run: %w", err)
	}

	if !ok {
		logger.Debugf("Not running task [%s]", t.id)

		return nil
	}

	if err := m.updatePermit(t.id, statusRunning); err != nil {
		return fmt.Errorf("update permit for task: %w", err)
	}

	go func(t *registration) {
		logger.Debugf("Running task [%s]", t.id)

		t.run()

		if err := m.updatePermit(t.id, statusIdle); err != nil {
			logger.Errorf("Error updating permit for task [%s]: %s", t.id, err)
		}

		logger.Debugf("Finished running task [%s]", t.id)
	}(t)

	return nil
}

func (m *Manager) shouldRun(t *registration) (bool, error) {
	currentPermitBytes, err := m.coordinationStore.Get(context.Background(), getPermitKey(t.id))
	if err != nil {
		if errors.IsNotFound(err) {
			logger.Infof("No existing permit found for task [%s]. I will take on the duty of running it.", t.id)

			return true, nil
		}

		return false, fmt.Errorf("get permit for task [%s]: %w", t.id, err)
	}

	var currentPermit permit

	if err := json.Unmarshal(currentPermitBytes, &currentPermit); err != nil {
		return false, fmt.Errorf("unmarshal permit for task [%s]: %w", t.id, err)
	}

	// The permit timestamp is truncated to a second, so the elapsed time is too.
	timeSinceLastUpdate := time.Since(time.Unix(currentPermit.UpdatedTime, 0)).Truncate(time.Second)

	if currentPermit.CurrentHolder == m.instanceID {
		if timeSinceLastUpdate < t.interval {
			logger.Debugf("It's my duty to run task [%s] but it's not time yet (last run %s ago)",
				t.id, timeSinceLastUpdate)

			return false, nil
		}

		return true, nil
	}

	// Take the duty away from the current holder only when the permit has gone stale,
	// i.e. the holder has not refreshed it within the check interval plus the task's
	// run interval. All instances in the cluster are assumed to use the same check
	// interval.
	maxTime := m.interval + t.interval

	if timeSinceLastUpdate > maxTime {
		logger.Infof("Permit holder [%s] of task [%s] has not updated the permit in %s, which exceeds %s. "+
			"It may be down, so I will take over.",
			currentPermit.CurrentHolder, t.id, timeSinceLastUpdate, maxTime)

		return true, nil
	}

	logger.Debugf("Not running task [%s] since instance [%s] holds the permit and ran it recently",
		t.id, currentPermit.CurrentHolder)

	return false, nil
}

func (m *Manager) updatePermit(taskID string, status status) error {
	p := permit{
		TaskID:        taskID,
		CurrentHolder: m.instanceID,
		Status:        status,
		UpdatedTime:   time.Now().Unix(),
	}

	permitBytes, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal permit: %w", err)
	}

	if err := m.coordinationStore.Put(context.Background(), getPermitKey(taskID), permitBytes); err != nil {
		return fmt.Errorf("store permit: %w", err)
	}

	logger.Debugf("Updated permit for task [%s] with status [%s]", taskID, status)

	return nil
}

func getPermitKey(taskID string) string {
	return coordinationPermitKey + "_" + taskID
}

type registration struct {
	handle   func()
	running  uint32
	id       string
	interval time.Duration
}

func (r *registration) run() {
	if !atomic.CompareAndSwapUint32(&r.running, 0, 1) {
		// Already running.
		return
	}

	r.handle()

	atomic.StoreUint32(&r.running, 0)
}

func (r *registration) isRunning() bool {
	return atomic.LoadUint32(&r.running) == 1
}
