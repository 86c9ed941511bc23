// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics implements the metrics publisher (C8): it registers
// the exporter's Prometheus series and translates collector/monitor
// snapshots into gauge and counter updates.
//
// Every queue and exchange series is a Gauge, not a Counter, even for
// values with names like "messages sent" — see DESIGN.md's Open
// Question decision: these are point-in-time samples of an upstream
// windowed counter, and Prometheus's rate() over a Counter that can
// both increase and reset would misrepresent them.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/netflexity/mq-exporter/pkg/collector"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
	"github.com/netflexity/mq-exporter/pkg/sanitize"
)

const namespace = "anypoint_mq"

// Metrics holds every registered series. Construct once per process
// via New and share the pointer across the collection, monitor, and
// notification components.
type Metrics struct {
	QueueMessagesInQueue  *prometheus.GaugeVec
	QueueMessagesInFlight *prometheus.GaugeVec
	QueueMessagesSent     *prometheus.GaugeVec
	QueueMessagesReceived *prometheus.GaugeVec
	QueueMessagesAcked    *prometheus.GaugeVec
	QueueSizeBytes        *prometheus.GaugeVec
	QueueAvgMessageSize   *prometheus.GaugeVec
	QueueInfo             *prometheus.GaugeVec
	QueueHealthScore      *prometheus.GaugeVec

	ExchangeMessagesPublished *prometheus.GaugeVec
	ExchangeMessagesDelivered *prometheus.GaugeVec

	ScrapeErrorsTotal      *prometheus.CounterVec
	ScrapeDurationSeconds  prometheus.Histogram
	LastScrapeTimestamp    prometheus.Gauge

	NotificationsTotal       *prometheus.CounterVec
	NotificationsFailedTotal *prometheus.CounterVec
}

// New registers every series against reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests, so
// concurrent test packages never collide on the global registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	queueLabels := []string{"queue", "environment", "region"}
	exchangeLabels := []string{"exchange", "environment", "region"}

	return &Metrics{
		QueueMessagesInQueue: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_messages_in_queue",
			Help: "Number of messages currently in the queue.",
		}, queueLabels),
		QueueMessagesInFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_messages_in_flight",
			Help: "Number of messages delivered but not yet acknowledged.",
		}, queueLabels),
		QueueMessagesSent: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_messages_sent",
			Help: "Messages sent to the queue within the stats window.",
		}, queueLabels),
		QueueMessagesReceived: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_messages_received",
			Help: "Messages received from the queue within the stats window.",
		}, queueLabels),
		QueueMessagesAcked: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_messages_acked",
			Help: "Messages acknowledged within the stats window.",
		}, queueLabels),
		QueueSizeBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_size_bytes",
			Help: "Total size of the queue's contents in bytes, when reported.",
		}, queueLabels),
		QueueAvgMessageSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_average_message_size_bytes",
			Help: "Average message size in bytes, when reported.",
		}, queueLabels),
		QueueInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_info",
			Help: "Constant 1, carries queue metadata as labels.",
		}, append(append([]string{}, queueLabels...), "is_fifo", "is_dlq", "max_deliveries", "ttl")),
		QueueHealthScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_health_score",
			Help: "Composite health score in [0,1]; see the QueueHealth monitor for the formula.",
		}, queueLabels),

		ExchangeMessagesPublished: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "exchange_messages_published",
			Help: "Messages published to the exchange within the stats window.",
		}, exchangeLabels),
		ExchangeMessagesDelivered: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "exchange_messages_delivered",
			Help: "Messages delivered from the exchange within the stats window.",
		}, exchangeLabels),

		ScrapeErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "scrape_errors_total",
			Help: "Total scrape errors by cause.",
		}, []string{"cause"}),
		ScrapeDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "scrape_duration_seconds",
			Help:    "Duration of a full collection cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		LastScrapeTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_scrape_timestamp_seconds",
			Help: "Unix timestamp of the most recently completed collection cycle.",
		}),

		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Total notifications dispatched, by monitor, channel, channel type, and status.",
		}, []string{"monitor", "channel", "type", "status"}),
		NotificationsFailedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_failed_total",
			Help: "Total notification dispatch failures, by monitor, channel, channel type, and error.",
		}, []string{"monitor", "channel", "type", "error"}),
	}
}

// RecordScrapeDuration implements collector.Recorder.
func (m *Metrics) RecordScrapeDuration(d time.Duration) {
	m.ScrapeDurationSeconds.Observe(d.Seconds())
}

// RecordLastScrapeTimestamp implements collector.Recorder.
func (m *Metrics) RecordLastScrapeTimestamp(t time.Time) {
	m.LastScrapeTimestamp.Set(float64(t.Unix()))
}

// IncScrapeError implements collector.Recorder.
func (m *Metrics) IncScrapeError(cause string) {
	m.ScrapeErrorsTotal.WithLabelValues(cause).Inc()
}

var _ collector.Recorder = (*Metrics)(nil)

// Publish resets and re-populates every queue/exchange series from the
// given snapshot, so a destination that disappeared between scrapes
// also disappears from exported metrics rather than reporting a frozen
// last value forever.
func (m *Metrics) Publish(queues []collector.QueueEntry, exchanges []collector.ExchangeEntry) {
	m.QueueMessagesInQueue.Reset()
	m.QueueMessagesInFlight.Reset()
	m.QueueMessagesSent.Reset()
	m.QueueMessagesReceived.Reset()
	m.QueueMessagesAcked.Reset()
	m.QueueSizeBytes.Reset()
	m.QueueAvgMessageSize.Reset()
	m.QueueInfo.Reset()

	for _, q := range queues {
		name := sanitize.Name(q.Destination.Name, q.Destination.ID)
		labels := prometheus.Labels{
			"queue":       name,
			"environment": q.Destination.Environment.Name,
			"region":      q.Destination.Region,
		}
		m.QueueMessagesInQueue.With(labels).Set(float64(q.Stats.MessagesInQueue))
		m.QueueMessagesInFlight.With(labels).Set(float64(q.Stats.MessagesInFlight))
		m.QueueMessagesSent.With(labels).Set(float64(q.Stats.MessagesSent))
		m.QueueMessagesReceived.With(labels).Set(float64(q.Stats.MessagesReceived))
		m.QueueMessagesAcked.With(labels).Set(float64(q.Stats.MessagesAcked))
		if q.Stats.QueueSizeBytes != nil {
			m.QueueSizeBytes.With(labels).Set(*q.Stats.QueueSizeBytes)
		}
		if q.Stats.AverageMessageSize != nil {
			m.QueueAvgMessageSize.With(labels).Set(*q.Stats.AverageMessageSize)
		}
		m.QueueInfo.With(prometheus.Labels{
			"queue":          name,
			"environment":    q.Destination.Environment.Name,
			"region":         q.Destination.Region,
			"is_fifo":        boolLabel(q.Destination.FIFO),
			"is_dlq":         boolLabel(q.IsDLQ),
			"max_deliveries": strconv.Itoa(q.Destination.MaxDeliveries),
			"ttl":            strconv.FormatInt(q.Destination.DefaultTTLMillis, 10),
		}).Set(1)
	}

	m.ExchangeMessagesPublished.Reset()
	m.ExchangeMessagesDelivered.Reset()
	for _, e := range exchanges {
		labels := prometheus.Labels{
			"exchange":    sanitize.Name(e.Destination.Name, e.Destination.ID),
			"environment": e.Destination.Environment.Name,
			"region":      e.Destination.Region,
		}
		m.ExchangeMessagesPublished.With(labels).Set(float64(e.Stats.MessagesPublished))
		m.ExchangeMessagesDelivered.With(labels).Set(float64(e.Stats.MessagesDelivered))
	}
}

// SetHealthScore records the QueueHealth monitor's composite score for
// one queue. Called from the monitor evaluator, not from Publish,
// because health scores are computed on the monitor evaluation cadence,
// which can differ from the scrape cadence.
func (m *Metrics) SetHealthScore(destination mqtypes.Destination, score float64) {
	m.QueueHealthScore.With(prometheus.Labels{
		"queue":       sanitize.Name(destination.Name, destination.ID),
		"environment": destination.Environment.Name,
		"region":      destination.Region,
	}).Set(score)
}

// RecordNotification implements the C7 dispatch-outcome contract.
func (m *Metrics) RecordNotification(monitor, channel, channelType, status string) {
	m.NotificationsTotal.WithLabelValues(monitor, channel, channelType, status).Inc()
}

// RecordNotificationFailure records a dispatch failure with its error class.
func (m *Metrics) RecordNotificationFailure(monitor, channel, channelType, errClass string) {
	m.NotificationsFailedTotal.WithLabelValues(monitor, channel, channelType, errClass).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
