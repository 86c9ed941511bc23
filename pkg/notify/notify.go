// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify implements the notification dispatcher (C7): given a
// triggered MonitorResult, it resolves the channel names attached to the
// monitor definition, looks each one up in the configured registry, and
// attempts delivery to every one of them, isolating per-channel failures
// so that one misconfigured or unreachable channel never blocks delivery
// to its siblings.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/netflexity/mq-exporter/pkg/mqtypes"
)

// Alert is the channel-agnostic shape every Channel renders into its own
// payload. It is built once per dispatch from a MonitorResult and the
// destination name it concerns, so channel implementations never see the
// wider MonitorDefinition.
type Alert struct {
	MonitorName     string
	DestinationName string
	Environment     string
	Region          string
	Severity        mqtypes.Severity
	Message         string
	CurrentValue    float64
	ThresholdValue  float64
	Metadata        map[string]any
	TriggeredAt     time.Time
}

// FromResult builds an Alert from an evaluated MonitorResult.
func FromResult(result mqtypes.MonitorResult) Alert {
	return Alert{
		MonitorName:     result.MonitorName,
		DestinationName: result.DestinationName,
		Environment:     result.Environment,
		Region:          result.Region,
		Severity:        result.Severity,
		Message:         result.Message,
		CurrentValue:    result.CurrentValue,
		ThresholdValue:  result.ThresholdValue,
		Metadata:        result.Metadata,
		TriggeredAt:     result.EvaluatedAt,
	}
}

// Title renders a one-line alert title, shared by every channel that
// wants a subject/heading distinct from the body.
func (a Alert) Title() string {
	return fmt.Sprintf("[%s] %s on %s", a.Severity, a.MonitorName, a.DestinationName)
}

// Summary renders a one-line human summary, used as the Email body and
// the PagerDuty/webhook "summary" field.
func (a Alert) Summary() string {
	return fmt.Sprintf("%s: %s (current=%.2f, threshold=%.2f, env=%s, region=%s)",
		a.Title(), a.Message, a.CurrentValue, a.ThresholdValue, a.Environment, a.Region)
}

// Channel is the common behavior every notification channel implements,
// per the DATA MODEL's ChannelConfig/NotificationChannel design note:
// send, name, type, and whether it is ready to be used.
type Channel interface {
	// Send delivers alert through this channel. Errors are always
	// wrapped with mqerrors.ErrChannel by the caller, not here.
	Send(ctx context.Context, alert Alert) error
	// Name is the configured channel instance's name (config.ChannelConfig.Name).
	Name() string
	// Type is the channel kind string, matching config.ChannelConfig.Type
	// ("Slack", "PagerDuty", "Email", "Teams", "Webhook").
	Type() string
	// Configured reports whether this channel's mandatory fields were
	// non-empty at construction time.
	Configured() bool
}

// HTTPDoer is the narrow interface every HTTP-based channel depends on,
// so tests can inject a mock transport instead of a real *http.Client,
// matching pkg/mqclient's HTTPDoer pattern.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder publishes per-dispatch notification counters; satisfied by
// pkg/metrics.Metrics.
type Recorder interface {
	RecordNotification(monitor, channel, channelType, status string)
	RecordNotificationFailure(monitor, channel, channelType, errClass string)
}

type nopRecorder struct{}

func (nopRecorder) RecordNotification(string, string, string, string)        {}
func (nopRecorder) RecordNotificationFailure(string, string, string, string) {}
