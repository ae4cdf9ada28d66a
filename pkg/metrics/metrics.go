/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package metrics exposes Prometheus instrumentation for the broker and the cleanup
// sweeper.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fastqueue/fastqueue/internal/pkg/log"
)

var logger = log.New("metrics")

const (
	namespace = "fastqueue"

	brokerSubsystem  = "broker"
	cleanupSubsystem = "cleanup"
)

var (
	createOnce sync.Once //nolint:gochecknoglobals
	instance   *Metrics  //nolint:gochecknoglobals
)

// Metrics manages the Prometheus collectors.
type Metrics struct {
	messagesPublished    prometheus.Counter
	messagesConsumed     prometheus.Counter
	messagesAcked        prometheus.Counter
	messagesNacked       prometheus.Counter
	publishTime          prometheus.Histogram
	consumeTime          prometheus.Histogram
	messagesExpired      prometheus.Counter
	messagesDeadLettered prometheus.Counter
	cleanupTime          prometheus.Histogram
}

// Get returns the metrics instance, registering the collectors on first use.
func Get() *Metrics {
	createOnce.Do(func() {
		instance = newMetrics()
	})

	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{
		messagesPublished: newCounter(brokerSubsystem, "messages_published_total",
			"The number of message copies created by publishes."),
		messagesConsumed: newCounter(brokerSubsystem, "messages_consumed_total",
			"The number of messages handed out by leases."),
		messagesAcked: newCounter(brokerSubsystem, "messages_acked_total",
			"The number of acknowledged messages."),
		messagesNacked: newCounter(brokerSubsystem, "messages_nacked_total",
			"The number of negatively acknowledged messages."),
		publishTime: newHistogram(brokerSubsystem, "publish_seconds",
			"The time (in seconds) that it takes to publish a message."),
		consumeTime: newHistogram(brokerSubsystem, "consume_seconds",
			"The time (in seconds) that it takes to lease a batch of messages."),
		messagesExpired: newCounter(cleanupSubsystem, "messages_expired_total",
			"The number of messages deleted because their retention horizon passed."),
		messagesDeadLettered: newCounter(cleanupSubsystem, "messages_dead_lettered_total",
			"The number of over-delivered messages moved to dead queues."),
		cleanupTime: newHistogram(cleanupSubsystem, "sweep_seconds",
			"The time (in seconds) that it takes to sweep all queues."),
	}

	prometheus.MustRegister(
		m.messagesPublished, m.messagesConsumed, m.messagesAcked, m.messagesNacked,
		m.publishTime, m.consumeTime,
		m.messagesExpired, m.messagesDeadLettered, m.cleanupTime,
	)

	return m
}

// MessagesPublished increments the number of published message copies.
func (m *Metrics) MessagesPublished(count int) {
	m.messagesPublished.Add(float64(count))
}

// MessagesConsumed increments the number of leased messages.
func (m *Metrics) MessagesConsumed(count int) {
	m.messagesConsumed.Add(float64(count))
}

// MessageAcked increments the number of acknowledged messages.
func (m *Metrics) MessageAcked() {
	m.messagesAcked.Inc()
}

// MessageNacked increments the number of negatively acknowledged messages.
func (m *Metrics) MessageNacked() {
	m.messagesNacked.Inc()
}

// PublishTime records the time it took to publish a message.
func (m *Metrics) PublishTime(value time.Duration) {
	m.publishTime.Observe(value.Seconds())

	logger.Debugf("Publish time: %s", value)
}

// ConsumeTime records the time it took to lease a batch of messages.
func (m *Metrics) ConsumeTime(value time.Duration) {
	m.consumeTime.Observe(value.Seconds())

	logger.Debugf("Consume time: %s", value)
}

// MessagesExpired increments the number of expired messages.
func (m *Metrics) MessagesExpired(count int) {
	m.messagesExpired.Add(float64(count))
}

// MessagesDeadLettered increments the number of dead-lettered messages.
func (m *Metrics) MessagesDeadLettered(count int) {
	m.messagesDeadLettered.Add(float64(count))
}

// CleanupTime records the time it took to sweep all queues.
func (m *Metrics) CleanupTime(value time.Duration) {
	m.cleanupTime.Observe(value.Seconds())

	logger.Debugf("Cleanup time: %s", value)
}

// NewHandler returns the Prometheus exposition handler.
func NewHandler() http.Handler {
	return promhttp.Handler()
}

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func newHistogram(subsystem, name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}
