package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netflexity/mq-exporter/pkg/collector"
	"github.com/netflexity/mq-exporter/pkg/config"
	"github.com/netflexity/mq-exporter/pkg/license"
	"github.com/netflexity/mq-exporter/pkg/logging"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Service: "mq-exporter-test", Quiet: true})
}

type staticStats struct {
	queues []collector.QueueEntry
}

func (s staticStats) Snapshot() ([]collector.QueueEntry, []collector.ExchangeEntry) {
	return s.queues, nil
}

type capturingDispatcher struct {
	mu      sync.Mutex
	results []mqtypes.MonitorResult
}

func (d *capturingDispatcher) Dispatch(ctx context.Context, def config.MonitorDefinition, result mqtypes.MonitorResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, result)
}

func (d *capturingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.results)
}

func enterpriseLicense() *license.License {
	return license.Resolve("NFX-AAAA-AAAA-AAAA", nil)
}

func queueEntry(name string, inQueue, inFlight, received int64, isDLQ bool) collector.QueueEntry {
	return collector.QueueEntry{
		Destination: mqtypes.Destination{Name: name, Environment: mqtypes.EnvironmentRef{Name: "Production"}, Region: "us-east-1"},
		Stats: mqtypes.QueueStats{
			MessagesInQueue:  inQueue,
			MessagesInFlight: inFlight,
			MessagesReceived: received,
		},
		IsDLQ: isDLQ,
	}
}

func TestEvaluateAll_QueueDepthTriggers(t *testing.T) {
	stats := staticStats{queues: []collector.QueueEntry{queueEntry("orders", 150, 0, 0, false)}}
	disp := &capturingDispatcher{}
	e := New(stats, disp, enterpriseLicense(), 60, testLogger())

	def := config.MonitorDefinition{Name: "depth", Type: "QueueDepth", Target: "*", Condition: "GT", Threshold: 100, Enabled: true, Severity: "Warning"}
	results := e.EvaluateAll(context.Background(), []config.MonitorDefinition{def})

	require.Len(t, results, 1)
	assert.True(t, results[0].Triggered)
	assert.Equal(t, 1, disp.count())
}

func TestEvaluateAll_DlqAlert_RequiresDLQFlag(t *testing.T) {
	stats := staticStats{queues: []collector.QueueEntry{
		queueEntry("orders-dlq", 3, 0, 0, true),
		queueEntry("orders", 3, 0, 0, false),
	}}
	disp := &capturingDispatcher{}
	e := New(stats, disp, enterpriseLicense(), 60, testLogger())

	def := config.MonitorDefinition{Name: "dlq", Type: "DlqAlert", Target: "*", Condition: "GT", Threshold: 0, Enabled: true, Severity: "Critical"}
	results := e.EvaluateAll(context.Background(), []config.MonitorDefinition{def})

	require.Len(t, results, 2)
	var dlqResult, normalResult mqtypes.MonitorResult
	for _, r := range results {
		if r.DestinationName == "orders-dlq" {
			dlqResult = r
		} else {
			normalResult = r
		}
	}
	assert.True(t, dlqResult.Triggered)
	assert.False(t, normalResult.Triggered)
}

func TestEvaluateAll_Cooldown_SuppressesSecondNotification(t *testing.T) {
	stats := staticStats{queues: []collector.QueueEntry{queueEntry("orders-dlq", 3, 0, 0, true)}}
	disp := &capturingDispatcher{}
	e := New(stats, disp, enterpriseLicense(), 60, testLogger())

	def := config.MonitorDefinition{Name: "dlq", Type: "DlqAlert", Target: "*-dlq", Condition: "GT", Threshold: 0, CooldownMinutes: 15, Enabled: true, Severity: "Critical"}

	e.EvaluateAll(context.Background(), []config.MonitorDefinition{def})
	assert.Equal(t, 1, disp.count())

	// Force the cooldown check by manipulating lastNotified backward.
	key := stateKey{monitor: "dlq", destination: "orders-dlq", environment: "Production", region: "us-east-1"}
	e.store.mu.Lock()
	st := e.store.states[key]
	e.store.mu.Unlock()
	st.mu.Lock()
	stillWithinCooldown := time.Since(st.lastNotified) < 15*time.Minute
	st.mu.Unlock()
	require.True(t, stillWithinCooldown)

	results := e.EvaluateAll(context.Background(), []config.MonitorDefinition{def})
	require.Len(t, results, 1)
	assert.True(t, results[0].Triggered, "still triggered even though notification is suppressed")
	assert.Equal(t, 1, disp.count(), "cooldown must suppress the second dispatch")

	// 20 minutes later the cooldown has elapsed.
	st.mu.Lock()
	st.lastNotified = time.Now().Add(-20 * time.Minute)
	st.mu.Unlock()
	e.EvaluateAll(context.Background(), []config.MonitorDefinition{def})
	assert.Equal(t, 2, disp.count())
}

func TestEvaluateAll_ThroughputDrop(t *testing.T) {
	stats := staticStats{}
	disp := &capturingDispatcher{}
	e := New(stats, disp, enterpriseLicense(), 60, testLogger())
	def := config.MonitorDefinition{Name: "drop", Type: "ThroughputDrop", Target: "*", Condition: "LTE", Threshold: -50, EvaluationWindowMinutes: 2, Enabled: true, Severity: "Warning"}

	history := []int64{100, 100, 100, 100, 100, 40, 40}
	var lastResult mqtypes.MonitorResult
	for _, v := range history {
		entry := queueEntry("orders", 0, 0, v, false)
		e.stats = staticStats{queues: []collector.QueueEntry{entry}}
		results := e.EvaluateAll(context.Background(), []config.MonitorDefinition{def})
		lastResult = results[0]
	}

	assert.True(t, lastResult.Triggered)
	pct, ok := lastResult.Metadata["percentChange"].(float64)
	require.True(t, ok)
	assert.InDelta(t, -51.7, pct, 0.5)
}

func TestEvaluateAll_QueueHealthScore(t *testing.T) {
	stats := staticStats{queues: []collector.QueueEntry{queueEntry("orders", 1000, 300, 1000, false)}}
	disp := &capturingDispatcher{}
	e := New(stats, disp, enterpriseLicense(), 60, testLogger())
	def := config.MonitorDefinition{Name: "health", Type: "QueueHealth", Target: "*", Condition: "LT", Threshold: 101, Enabled: true, Severity: "Info"}

	results := e.EvaluateAll(context.Background(), []config.MonitorDefinition{def})
	require.Len(t, results, 1)
	assert.InDelta(t, 69.98, results[0].CurrentValue, 0.5)
}

func TestEvaluateAll_LicenseGatesEvaluation(t *testing.T) {
	stats := staticStats{queues: []collector.QueueEntry{queueEntry("orders", 150, 0, 0, false)}}
	disp := &capturingDispatcher{}
	openSource := license.Resolve("", nil)
	e := New(stats, disp, openSource, 60, testLogger())
	def := config.MonitorDefinition{Name: "depth", Type: "QueueDepth", Target: "*", Condition: "GT", Threshold: 100, Enabled: true}

	results := e.EvaluateAll(context.Background(), []config.MonitorDefinition{def})
	assert.Nil(t, results)
	assert.Equal(t, 0, disp.count())
}

func TestEvaluateAll_DisabledDefinitionSkipped(t *testing.T) {
	stats := staticStats{queues: []collector.QueueEntry{queueEntry("orders", 150, 0, 0, false)}}
	disp := &capturingDispatcher{}
	e := New(stats, disp, enterpriseLicense(), 60, testLogger())
	def := config.MonitorDefinition{Name: "depth", Type: "QueueDepth", Target: "*", Condition: "GT", Threshold: 100, Enabled: false}

	results := e.EvaluateAll(context.Background(), []config.MonitorDefinition{def})
	assert.Empty(t, results)
}

func TestCondition_AllOperators(t *testing.T) {
	assert.True(t, condition("GT", 5, 3))
	assert.False(t, condition("GT", 3, 3))
	assert.True(t, condition("LT", 2, 3))
	assert.True(t, condition("GTE", 3, 3))
	assert.True(t, condition("LTE", 3, 3))
	assert.True(t, condition("EQ", 3.0001, 3))
	assert.False(t, condition("EQ", 3.01, 3))
}
