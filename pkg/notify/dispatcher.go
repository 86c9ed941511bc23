// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"time"

	"github.com/netflexity/mq-exporter/pkg/config"
	"github.com/netflexity/mq-exporter/pkg/license"
	"github.com/netflexity/mq-exporter/pkg/logging"
	"github.com/netflexity/mq-exporter/pkg/mqerrors"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
)

// ErrChannelNotFound is returned by TestChannel for an unknown name.
var ErrChannelNotFound = errors.New("notification channel not found")

// ErrChannelNotConfigured is returned by TestChannel for a channel whose
// mandatory fields were left empty.
var ErrChannelNotConfigured = errors.New("notification channel not configured")

// Dispatcher is the C7 dispatcher: a name-keyed registry of Channel plus
// the dispatch/test operations over it.
type Dispatcher struct {
	channels map[string]Channel
	recorder Recorder
	logger   *logging.Logger
}

// New builds a Dispatcher's channel registry from cfgs, skipping any
// channel that is disabled, not permitted by the license tier, or of an
// unrecognized type. A channel whose type is licensed but whose
// mandatory fields are empty is still registered (so /api/monitors can
// report *why* it was excluded via Configured()); it is simply never
// sent to.
func New(cfgs []config.ChannelConfig, lic *license.License, doer HTTPDoer, mailer MailSender, recorder Recorder, logger *logging.Logger) *Dispatcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	d := &Dispatcher{
		channels: make(map[string]Channel, len(cfgs)),
		recorder: recorder,
		logger:   logger,
	}
	for _, cc := range cfgs {
		if !cc.Enabled {
			continue
		}
		if !lic.CanUseChannelType(cc.Type) {
			logger.Warn("notification channel requires a higher license tier, skipping", "channel", cc.Name, "type", cc.Type)
			continue
		}
		ch := buildChannel(cc, doer, mailer)
		if ch == nil {
			logger.Warn("unrecognized notification channel type, skipping", "channel", cc.Name, "type", cc.Type)
			continue
		}
		d.channels[cc.Name] = ch
	}
	return d
}

func buildChannel(cc config.ChannelConfig, doer HTTPDoer, mailer MailSender) Channel {
	switch cc.Type {
	case "Slack":
		return NewSlackChannel(cc.Name, cc.Webhook, doer)
	case "Teams":
		return NewTeamsChannel(cc.Name, cc.Webhook, doer)
	case "Webhook":
		return NewWebhookChannel(cc.Name, cc.Webhook, cc.Headers, doer)
	case "PagerDuty":
		return NewPagerDutyChannel(cc.Name, cc.RoutingKey, doer)
	case "Email":
		var auth smtp.Auth
		return NewEmailChannel(cc.Name, cc.Recipient, cc.Sender, cc.SMTPHost, cc.SMTPPort, auth, mailer)
	default:
		return nil
	}
}

// Dispatch implements monitor.Dispatcher: it resolves def.Channels
// against the registry and attempts delivery to every one, isolating
// per-channel failures per §4.7.
func (d *Dispatcher) Dispatch(ctx context.Context, def config.MonitorDefinition, result mqtypes.MonitorResult) {
	alert := FromResult(result)
	for _, name := range def.Channels {
		d.sendOne(ctx, def.Name, name, alert)
	}
}

func (d *Dispatcher) sendOne(ctx context.Context, monitorName, channelName string, alert Alert) {
	ch, ok := d.channels[channelName]
	if !ok {
		d.logger.Warn("notification channel not found", "monitor", monitorName, "channel", channelName)
		d.recorder.RecordNotificationFailure(monitorName, channelName, "unknown", "channel_not_found")
		return
	}
	if !ch.Configured() {
		d.logger.Warn("notification channel not configured", "monitor", monitorName, "channel", channelName)
		d.recorder.RecordNotificationFailure(monitorName, channelName, ch.Type(), "not_configured")
		return
	}

	if err := ch.Send(ctx, alert); err != nil {
		wrapped := fmt.Errorf("%w: %s/%s delivery failed: %v", mqerrors.ErrChannel, channelName, ch.Type(), err)
		d.logger.Error("notification delivery failed", "monitor", monitorName, "channel", channelName, "type", ch.Type(), "error", wrapped.Error())
		d.recorder.RecordNotificationFailure(monitorName, channelName, ch.Type(), "delivery_failed")
		return
	}
	d.logger.Debug("notification delivered", "monitor", monitorName, "channel", channelName, "type", ch.Type())
	d.recorder.RecordNotification(monitorName, channelName, ch.Type(), "success")
}

// TestChannel sends a synthetic alert through channelName without
// requiring a real monitor trigger, per the supplemented "test channel"
// feature grounded on the original's NotificationDispatcher.testChannel.
func (d *Dispatcher) TestChannel(ctx context.Context, channelName string) error {
	ch, ok := d.channels[channelName]
	if !ok {
		return ErrChannelNotFound
	}
	if !ch.Configured() {
		return ErrChannelNotConfigured
	}

	alert := Alert{
		MonitorName:     "test-monitor",
		DestinationName: "test-destination",
		Environment:     "test-environment",
		Region:          "test-region",
		Severity:        mqtypes.SeverityInfo,
		Message:         "This is a test alert from the Anypoint MQ exporter.",
		CurrentValue:    42,
		ThresholdValue:  100,
		TriggeredAt:     time.Now(),
	}
	if err := ch.Send(ctx, alert); err != nil {
		return fmt.Errorf("%w: %s/%s delivery failed: %v", mqerrors.ErrChannel, channelName, ch.Type(), err)
	}
	return nil
}

// ChannelInfo reports a channel's type and whether it is configured, for
// the supplemented per-channel "configured" predicate at
// /api/monitors/{name}. The second return is false if name is unknown.
func (d *Dispatcher) ChannelInfo(name string) (channelType string, configured bool, found bool) {
	ch, ok := d.channels[name]
	if !ok {
		return "", false, false
	}
	return ch.Type(), ch.Configured(), true
}
