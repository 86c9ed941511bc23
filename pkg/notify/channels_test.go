// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netflexity/mq-exporter/pkg/mqtypes"
)

type capturedRequest struct {
	url     string
	headers http.Header
	body    map[string]any
}

type mockDoer struct {
	requests   []capturedRequest
	statusCode int
	err        error
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, _ := io.ReadAll(req.Body)
	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)
	m.requests = append(m.requests, capturedRequest{url: req.URL.String(), headers: req.Header, body: decoded})

	status := m.statusCode
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("ok"))}, nil
}

func testAlert() Alert {
	return Alert{
		MonitorName:     "queue-depth",
		DestinationName: "orders",
		Environment:     "Production",
		Region:          "us-east-1",
		Severity:        mqtypes.SeverityWarning,
		Message:         "queue depth 150 GT threshold 100",
		CurrentValue:    150,
		ThresholdValue:  100,
		Metadata:        map[string]any{"consecutiveTriggeredCount": 1},
		TriggeredAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestWebhookChannel_Send_PostsGenericPayload(t *testing.T) {
	doer := &mockDoer{}
	ch := NewWebhookChannel("ops-webhook", "https://example.com/hook", map[string]string{"X-Api-Key": "secret"}, doer)

	require.True(t, ch.Configured())
	require.NoError(t, ch.Send(context.Background(), testAlert()))
	require.Len(t, doer.requests, 1)

	req := doer.requests[0]
	assert.Equal(t, "https://example.com/hook", req.url)
	assert.Equal(t, "secret", req.headers.Get("X-Api-Key"))
	assert.Equal(t, "queue-depth", req.body["monitor"])
	assert.Equal(t, "orders", req.body["destination"])
	assert.Equal(t, "Warning", req.body["severity"])
}

func TestWebhookChannel_Unconfigured_WithoutURL(t *testing.T) {
	ch := NewWebhookChannel("bad", "", nil, &mockDoer{})
	assert.False(t, ch.Configured())
}

func TestSlackChannel_Send_BuildsColorCodedAttachment(t *testing.T) {
	doer := &mockDoer{}
	ch := NewSlackChannel("slack-ops", "https://hooks.slack.com/services/x", doer)

	require.NoError(t, ch.Send(context.Background(), testAlert()))
	require.Len(t, doer.requests, 1)

	body := doer.requests[0].body
	attachments, ok := body["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
	attachment := attachments[0].(map[string]any)
	assert.Equal(t, "#ff9500", attachment["color"])
	fields, ok := attachment["fields"].([]any)
	require.True(t, ok)
	assert.Len(t, fields, 5)
}

func TestSlackChannel_CriticalSeverity_IsRed(t *testing.T) {
	assert.Equal(t, "#ff0000", severityColor(mqtypes.SeverityCritical))
	assert.Equal(t, "#36a64f", severityColor(mqtypes.SeverityInfo))
}

func TestTeamsChannel_Send_BuildsMessageCard(t *testing.T) {
	doer := &mockDoer{}
	ch := NewTeamsChannel("teams-ops", "https://outlook.office.com/webhook/x", doer)

	require.NoError(t, ch.Send(context.Background(), testAlert()))
	require.Len(t, doer.requests, 1)

	body := doer.requests[0].body
	assert.Equal(t, "MessageCard", body["@type"])
	sections, ok := body["sections"].([]any)
	require.True(t, ok)
	require.Len(t, sections, 1)
	section := sections[0].(map[string]any)
	facts, ok := section["facts"].([]any)
	require.True(t, ok)
	assert.Len(t, facts, 6)
}

func TestPagerDutyChannel_Send_BuildsDedupKeyAndSeverity(t *testing.T) {
	doer := &mockDoer{}
	ch := NewPagerDutyChannel("pd-ops", "R0UT1NGKEY", doer)

	require.NoError(t, ch.Send(context.Background(), testAlert()))
	require.Len(t, doer.requests, 1)

	req := doer.requests[0]
	assert.Equal(t, pagerDutyEventsURL, req.url)
	assert.Equal(t, "trigger", req.body["event_action"])
	assert.Equal(t, "amq-monitor-queue-depth-orders-Production", req.body["dedup_key"])

	payload := req.body["payload"].(map[string]any)
	assert.Equal(t, "warning", payload["severity"])
}

func TestPagerDutyChannel_SeverityMapping(t *testing.T) {
	assert.Equal(t, "info", mapSeverity(mqtypes.SeverityInfo))
	assert.Equal(t, "warning", mapSeverity(mqtypes.SeverityWarning))
	assert.Equal(t, "critical", mapSeverity(mqtypes.SeverityCritical))
}

type mockMailSender struct {
	addr string
	from string
	to   []string
	msg  []byte
	err  error
}

func (m *mockMailSender) SendMail(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	m.addr, m.from, m.to, m.msg = addr, from, to, msg
	return m.err
}

func TestEmailChannel_Send_BuildsMessageWithTitleAndSummary(t *testing.T) {
	mailer := &mockMailSender{}
	ch := NewEmailChannel("ops-email", "oncall@example.com", "alerts@example.com", "smtp.example.com", 587, nil, mailer)

	require.True(t, ch.Configured())
	require.NoError(t, ch.Send(context.Background(), testAlert()))

	assert.Equal(t, "smtp.example.com:587", mailer.addr)
	assert.Equal(t, []string{"oncall@example.com"}, mailer.to)
	msg := string(mailer.msg)
	assert.Contains(t, msg, "Subject: [Warning] queue-depth on orders")
	assert.Contains(t, msg, "queue depth 150 GT threshold 100")
}

func TestEmailChannel_Unconfigured_MissingHost(t *testing.T) {
	ch := NewEmailChannel("bad", "oncall@example.com", "alerts@example.com", "", 0, nil, &mockMailSender{})
	assert.False(t, ch.Configured())
}

func TestPostJSON_NonSuccessStatus_ReturnsError(t *testing.T) {
	doer := &mockDoer{statusCode: http.StatusInternalServerError}
	err := postJSON(context.Background(), doer, "https://example.com", map[string]any{"a": 1}, nil)
	assert.Error(t, err)
}
