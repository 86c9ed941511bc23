// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"context"
	"strings"
)

// WebhookChannel POSTs a generic JSON payload to an arbitrary URL, with
// caller-configured headers, per §4.7's "generic JSON body" shape.
type WebhookChannel struct {
	name    string
	url     string
	headers map[string]string
	doer    HTTPDoer
}

// NewWebhookChannel creates a WebhookChannel.
func NewWebhookChannel(name, url string, headers map[string]string, doer HTTPDoer) *WebhookChannel {
	return &WebhookChannel{name: name, url: url, headers: headers, doer: doer}
}

func (c *WebhookChannel) Name() string { return c.name }
func (c *WebhookChannel) Type() string { return "Webhook" }

func (c *WebhookChannel) Configured() bool {
	return strings.TrimSpace(c.url) != ""
}

// Send builds the generic webhook payload: monitor, destination,
// severity, current/threshold, metadata, timestamp.
func (c *WebhookChannel) Send(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"alertType":   "anypoint_mq_monitor",
		"source":      "mq-exporter",
		"monitor":     alert.MonitorName,
		"destination": alert.DestinationName,
		"environment": alert.Environment,
		"region":      alert.Region,
		"severity":    alert.Severity.String(),
		"message":     alert.Message,
		"current":     alert.CurrentValue,
		"threshold":   alert.ThresholdValue,
		"metadata":    alert.Metadata,
		"summary":     alert.Summary(),
		"timestamp":   alert.TriggeredAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	return postJSON(ctx, c.doer, c.url, payload, c.headers)
}
