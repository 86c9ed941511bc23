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

// TeamsChannel posts a Microsoft Teams incoming-webhook MessageCard with
// a single facts section, per §4.7's Teams payload shape.
type TeamsChannel struct {
	name       string
	webhookURL string
	doer       HTTPDoer
}

// NewTeamsChannel creates a TeamsChannel.
func NewTeamsChannel(name, webhookURL string, doer HTTPDoer) *TeamsChannel {
	return &TeamsChannel{name: name, webhookURL: webhookURL, doer: doer}
}

func (c *TeamsChannel) Name() string { return c.name }
func (c *TeamsChannel) Type() string { return "Teams" }

func (c *TeamsChannel) Configured() bool {
	return strings.TrimSpace(c.webhookURL) != ""
}

func severityColorHex(s mqtypes.Severity) string {
	switch s {
	case mqtypes.SeverityCritical:
		return "ff0000"
	case mqtypes.SeverityWarning:
		return "ff9500"
	default:
		return "36a64f"
	}
}

func (c *TeamsChannel) Send(ctx context.Context, alert Alert) error {
	fact := func(name, value string) map[string]any {
		return map[string]any{"name": name, "value": value}
	}
	payload := map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColorHex(alert.Severity),
		"summary":    alert.Summary(),
		"title":      alert.Title(),
		"text":       alert.Message,
		"sections": []map[string]any{
			{
				"activityTitle":    "Queue Monitor Alert",
				"activitySubtitle": fmt.Sprintf("Environment: %s | Region: %s", alert.Environment, alert.Region),
				"facts": []map[string]any{
					fact("Destination", alert.DestinationName),
					fact("Monitor", alert.MonitorName),
					fact("Severity", alert.Severity.String()),
					fact("Current", fmt.Sprintf("%.2f", alert.CurrentValue)),
					fact("Threshold", fmt.Sprintf("%.2f", alert.ThresholdValue)),
					fact("Triggered At", alert.TriggeredAt.Format("2006-01-02T15:04:05Z07:00")),
				},
			},
		},
	}
	return postJSON(ctx, c.doer, c.webhookURL, payload, nil)
}
