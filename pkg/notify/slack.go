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

// SlackChannel posts a Slack incoming-webhook message: a top-level text
// line plus a single color-coded attachment carrying the structured
// fields, per §4.7's Slack payload shape.
type SlackChannel struct {
	name       string
	webhookURL string
	doer       HTTPDoer
}

// NewSlackChannel creates a SlackChannel.
func NewSlackChannel(name, webhookURL string, doer HTTPDoer) *SlackChannel {
	return &SlackChannel{name: name, webhookURL: webhookURL, doer: doer}
}

func (c *SlackChannel) Name() string { return c.name }
func (c *SlackChannel) Type() string { return "Slack" }

func (c *SlackChannel) Configured() bool {
	return strings.TrimSpace(c.webhookURL) != ""
}

func severityColor(s mqtypes.Severity) string {
	switch s {
	case mqtypes.SeverityCritical:
		return "#ff0000"
	case mqtypes.SeverityWarning:
		return "#ff9500"
	default:
		return "#36a64f"
	}
}

func (c *SlackChannel) Send(ctx context.Context, alert Alert) error {
	field := func(title, value string, short bool) map[string]any {
		return map[string]any{"title": title, "value": value, "short": short}
	}
	payload := map[string]any{
		"text": alert.Title(),
		"attachments": []map[string]any{
			{
				"color": severityColor(alert.Severity),
				"title": fmt.Sprintf("Destination: %s", alert.DestinationName),
				"text":  alert.Message,
				"fields": []map[string]any{
					field("Environment", alert.Environment, true),
					field("Region", alert.Region, true),
					field("Current", fmt.Sprintf("%.2f", alert.CurrentValue), true),
					field("Threshold", fmt.Sprintf("%.2f", alert.ThresholdValue), true),
					field("Triggered At", alert.TriggeredAt.Format("2006-01-02T15:04:05Z07:00"), false),
				},
				"footer": "mq-exporter",
			},
		},
	}
	return postJSON(ctx, c.doer, c.webhookURL, payload, nil)
}
