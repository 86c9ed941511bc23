// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/netflexity/mq-exporter/pkg/mqtypes"
)

// pagerDutyEventsURL is the PagerDuty Events API v2 enqueue endpoint.
const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// PagerDutyChannel enqueues a PagerDuty Events API v2 trigger event,
// per §4.7's dedup-key and severity-mapping rules.
type PagerDutyChannel struct {
	name       string
	routingKey string
	doer       HTTPDoer
}

// NewPagerDutyChannel creates a PagerDutyChannel.
func NewPagerDutyChannel(name, routingKey string, doer HTTPDoer) *PagerDutyChannel {
	return &PagerDutyChannel{name: name, routingKey: routingKey, doer: doer}
}

func (c *PagerDutyChannel) Name() string { return c.name }
func (c *PagerDutyChannel) Type() string { return "PagerDuty" }

func (c *PagerDutyChannel) Configured() bool {
	return strings.TrimSpace(c.routingKey) != ""
}

// mapSeverity maps a MonitorResult severity to a PagerDuty severity,
// per §4.7: Info→info, Warning→warning, Critical→critical.
func mapSeverity(s mqtypes.Severity) string {
	switch s {
	case mqtypes.SeverityWarning:
		return "warning"
	case mqtypes.SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

func (c *PagerDutyChannel) Send(ctx context.Context, alert Alert) error {
	dedupKey := fmt.Sprintf("amq-monitor-%s-%s-%s", alert.MonitorName, alert.DestinationName, alert.Environment)

	customDetails := map[string]any{
		"monitor":     alert.MonitorName,
		"destination": alert.DestinationName,
		"environment": alert.Environment,
		"region":      alert.Region,
		"current":     alert.CurrentValue,
		"threshold":   alert.ThresholdValue,
		"message":     alert.Message,
	}
	for k, v := range alert.Metadata {
		customDetails[k] = v
	}

	payload := map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]any{
			"summary":        alert.Summary(),
			"source":         "mq-exporter",
			"severity":       mapSeverity(alert.Severity),
			"timestamp":      alert.TriggeredAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			"component":      "anypoint-mq",
			"group":          alert.Environment,
			"class":          "queue-monitor",
			"custom_details": customDetails,
		},
	}
	return postJSON(ctx, c.doer, pagerDutyEventsURL, payload, nil)
}
