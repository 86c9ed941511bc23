// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package monitor implements the monitor evaluator (C5) and the alert
// state / cooldown gate (C6): it matches destinations to monitor
// definitions, maintains per-(monitor, destination) windowed state,
// evaluates thresholds and trends, and hands triggered, cooldown-gated
// results to a notification dispatcher.
package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/netflexity/mq-exporter/pkg/collector"
	"github.com/netflexity/mq-exporter/pkg/config"
	"github.com/netflexity/mq-exporter/pkg/license"
	"github.com/netflexity/mq-exporter/pkg/logging"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
	"github.com/netflexity/mq-exporter/pkg/sanitize"
)

const epsilon = 1e-3

// StatsSource supplies the latest collection snapshot; satisfied by
// *collector.Collector.
type StatsSource interface {
	Snapshot() (queues []collector.QueueEntry, exchanges []collector.ExchangeEntry)
}

// Dispatcher delivers a triggered, cooldown-cleared result to its
// configured channels; satisfied by pkg/notify's Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, def config.MonitorDefinition, result mqtypes.MonitorResult)
}

// HealthScoreRecorder publishes the QueueHealth composite score as a
// gauge; satisfied by pkg/metrics.Metrics.
type HealthScoreRecorder interface {
	SetHealthScore(destination mqtypes.Destination, score float64)
}

type nopHealthScoreRecorder struct{}

func (nopHealthScoreRecorder) SetHealthScore(mqtypes.Destination, float64) {}

// Evaluator runs the monitor evaluation cycle.
type Evaluator struct {
	stats       StatsSource
	dispatcher  Dispatcher
	healthScore HealthScoreRecorder
	license     *license.License
	store       *Store
	logger      *logging.Logger

	intervalSec int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithHealthScoreRecorder wires a HealthScoreRecorder.
func WithHealthScoreRecorder(r HealthScoreRecorder) Option {
	return func(e *Evaluator) { e.healthScore = r }
}

// New creates an Evaluator.
func New(stats StatsSource, dispatcher Dispatcher, lic *license.License, intervalSeconds int, logger *logging.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		stats:       stats,
		dispatcher:  dispatcher,
		healthScore: nopHealthScoreRecorder{},
		license:     lic,
		store:       NewStore(),
		logger:      logger,
		intervalSec: intervalSeconds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run blocks, evaluating every intervalSeconds, until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context, definitions []config.MonitorDefinition) {
	interval := time.Duration(e.intervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		e.EvaluateAll(ctx, definitions)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// EvaluateAll runs one evaluation cycle over every enabled definition,
// per §4.5. The caller is responsible for gating on monitors.enabled;
// EvaluateAll itself gates on the license tier, per the "pure
// feature-flag concern, checked at the entry point" design note.
func (e *Evaluator) EvaluateAll(ctx context.Context, definitions []config.MonitorDefinition) []mqtypes.MonitorResult {
	if !e.license.CanUseMonitors() {
		e.logger.Warn("monitors require the enterprise tier, skipping evaluation cycle")
		return nil
	}

	queues, _ := e.stats.Snapshot()
	var results []mqtypes.MonitorResult
	for _, def := range definitions {
		if !def.Enabled {
			continue
		}
		for _, entry := range queues {
			sanitizedName := sanitize.Name(entry.Destination.Name, entry.Destination.ID)
			matched, err := sanitize.MatchGlob(def.Target, sanitizedName)
			if err != nil || !matched {
				continue
			}
			result := e.evaluateOne(def, entry)
			results = append(results, result)
			if result.Triggered {
				e.gate(ctx, def, result)
			}
		}
	}
	return results
}

// evaluateOne evaluates one (definition, destination) pair.
func (e *Evaluator) evaluateOne(def config.MonitorDefinition, entry collector.QueueEntry) mqtypes.MonitorResult {
	key := stateKey{
		monitor:     def.Name,
		destination: sanitize.Name(entry.Destination.Name, entry.Destination.ID),
		environment: entry.Destination.Environment.Name,
		region:      entry.Destination.Region,
	}
	state := e.store.getOrCreate(key)

	state.mu.Lock()
	defer state.mu.Unlock()

	window := def.EvaluationWindowMinutes
	if window < 1 {
		window = 1
	}

	var (
		currentValue float64
		triggered    bool
		message      string
		metadata     = map[string]any{}
	)

	switch def.Type {
	case "QueueDepth":
		currentValue = float64(entry.Stats.MessagesInQueue)
		state.append(currentValue)
		triggered = condition(def.Condition, currentValue, def.Threshold)
		message = fmt.Sprintf("queue depth %.0f %s threshold %.0f", currentValue, def.Condition, def.Threshold)

	case "DlqAlert":
		currentValue = float64(entry.Stats.MessagesInQueue)
		state.append(currentValue)
		triggered = entry.IsDLQ && condition(def.Condition, currentValue, def.Threshold)
		message = fmt.Sprintf("dead-letter queue depth %.0f %s threshold %.0f", currentValue, def.Condition, def.Threshold)

	case "ThroughputDrop", "ThroughputSpike":
		currentValue = float64(entry.Stats.MessagesReceived)
		state.append(currentValue)
		if len(state.buffer) < 2 {
			triggered = false
			message = "insufficient history for throughput evaluation"
			break
		}
		recent := recentAvg(state.buffer, window)
		baselineAvg, _ := populationStats(state.buffer)
		pctChange := 0.0
		if baselineAvg != 0 {
			pctChange = ((recent - baselineAvg) / baselineAvg) * 100
		}
		metadata["percentChange"] = pctChange
		if def.Type == "ThroughputDrop" {
			triggered = pctChange <= def.Threshold
			message = fmt.Sprintf("throughput changed %.1f%% (drop threshold %.1f%%)", pctChange, def.Threshold)
		} else {
			triggered = pctChange >= def.Threshold
			message = fmt.Sprintf("throughput changed %.1f%% (spike threshold %.1f%%)", pctChange, def.Threshold)
		}

	case "QueueHealth":
		score := e.computeHealthScore(entry, state)
		currentValue = score
		state.append(score)
		e.healthScore.SetHealthScore(entry.Destination, score/100)
		triggered = condition(def.Condition, score, def.Threshold)
		message = fmt.Sprintf("health score %.2f %s threshold %.2f", score, def.Condition, def.Threshold)

	case "Custom":
		triggered = false
		message = "custom monitor type never triggers"

	default:
		triggered = false
		message = fmt.Sprintf("unknown monitor type %q", def.Type)
	}

	now := time.Now()
	if triggered {
		state.lastTriggered = now
		state.consecutiveTriggered++
	} else {
		state.consecutiveTriggered = 0
	}
	metadata["consecutiveTriggeredCount"] = state.consecutiveTriggered

	severity := mqtypes.SeverityInfo
	switch def.Severity {
	case "Warning":
		severity = mqtypes.SeverityWarning
	case "Critical":
		severity = mqtypes.SeverityCritical
	}

	return mqtypes.MonitorResult{
		MonitorName:     def.Name,
		DestinationName: key.destination,
		Environment:     key.environment,
		Region:          key.region,
		Triggered:       triggered,
		CurrentValue:    currentValue,
		ThresholdValue:  def.Threshold,
		Message:         message,
		Severity:        severity,
		EvaluatedAt:     now,
		Metadata:        metadata,
	}
}

// computeHealthScore implements the composite score in §4.5. The
// instability penalty is computed from the state's baseline as it
// stood before this cycle's sample is appended, since the cycle's own
// not-yet-observed value cannot itself be evidence of instability.
func (e *Evaluator) computeHealthScore(entry collector.QueueEntry, state *State) float64 {
	score := 100.0

	depthPenalty := math.Min(20, math.Log10(float64(entry.Stats.MessagesInQueue)+1)*5)
	score -= depthPenalty

	if entry.IsDLQ && entry.Stats.MessagesInQueue > 0 {
		score -= 30
	}

	if entry.Stats.MessagesReceived > 0 {
		lagRatio := float64(entry.Stats.MessagesInFlight) / float64(entry.Stats.MessagesReceived)
		if lagRatio > 0.1 {
			score -= math.Min(25, lagRatio*50)
		}
	}

	if len(state.buffer) > 0 {
		baselineAvg, baselineStdDev := populationStats(state.buffer)
		if baselineAvg != 0 {
			cv := baselineStdDev / baselineAvg
			if cv > 0.5 {
				score -= math.Min(15, cv*20)
			}
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// condition evaluates GT/LT/GTE/LTE/EQ; PctChange is handled only by
// the throughput monitor types, never reaching here.
func condition(op string, current, threshold float64) bool {
	switch op {
	case "GT":
		return current > threshold
	case "LT":
		return current < threshold
	case "GTE":
		return current >= threshold
	case "LTE":
		return current <= threshold
	case "EQ":
		return math.Abs(current-threshold) <= epsilon
	default:
		return false
	}
}

// gate implements C6: it drops the result's notification unless the
// cooldown has elapsed, dispatching and stamping last-notified only on
// pass. The MonitorResult itself is still returned to the caller
// (e.g. for /api/monitors) regardless of the gate's decision.
func (e *Evaluator) gate(ctx context.Context, def config.MonitorDefinition, result mqtypes.MonitorResult) {
	key := stateKey{monitor: def.Name, destination: result.DestinationName, environment: result.Environment, region: result.Region}
	state := e.store.getOrCreate(key)

	state.mu.Lock()
	cooldown := time.Duration(def.CooldownMinutes) * time.Minute
	now := time.Now()
	allowed := state.lastNotified.IsZero() || now.Sub(state.lastNotified) >= cooldown
	state.mu.Unlock()

	if !allowed {
		return
	}

	e.dispatcher.Dispatch(ctx, def, result)

	state.mu.Lock()
	state.lastNotified = now
	state.mu.Unlock()
}

// StateSnapshot exposes one (monitor, destination) state for the
// control-plane API, without handing out the internal mutex.
func (e *Evaluator) StateSnapshot(monitor, destination, environment, region string) (Snapshot, bool) {
	key := stateKey{monitor: monitor, destination: destination, environment: environment, region: region}
	e.store.mu.Lock()
	state, ok := e.store.states[key]
	e.store.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return state.Snapshot(), true
}
