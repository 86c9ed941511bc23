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
	"net/smtp"
	"strings"
)

// MailSender is the narrow collaborator EmailChannel depends on, so
// tests can inject a fake instead of dialing a real SMTP server. It
// mirrors net/smtp.SendMail's signature.
type MailSender interface {
	SendMail(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// smtpMailSender adapts net/smtp.SendMail to MailSender. No third-party
// mail library appears anywhere in the example corpus, so this channel
// is the one deliberate standard-library exception in pkg/notify.
type smtpMailSender struct{}

func (smtpMailSender) SendMail(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	return smtp.SendMail(addr, a, from, to, msg)
}

// EmailChannel delivers an alert as a plain-text email, per §4.7: subject
// is the alert title, body is the alert summary.
type EmailChannel struct {
	name      string
	recipient string
	sender    string
	smtpHost  string
	smtpPort  int
	auth      smtp.Auth
	mailer    MailSender
}

// NewEmailChannel creates an EmailChannel. auth may be nil for SMTP
// relays that don't require authentication (e.g. an internal relay).
func NewEmailChannel(name, recipient, sender, smtpHost string, smtpPort int, auth smtp.Auth, mailer MailSender) *EmailChannel {
	if mailer == nil {
		mailer = smtpMailSender{}
	}
	return &EmailChannel{
		name:      name,
		recipient: recipient,
		sender:    sender,
		smtpHost:  smtpHost,
		smtpPort:  smtpPort,
		auth:      auth,
		mailer:    mailer,
	}
}

func (c *EmailChannel) Name() string { return c.name }
func (c *EmailChannel) Type() string { return "Email" }

func (c *EmailChannel) Configured() bool {
	return strings.TrimSpace(c.recipient) != "" && strings.TrimSpace(c.sender) != "" && strings.TrimSpace(c.smtpHost) != ""
}

func (c *EmailChannel) Send(ctx context.Context, alert Alert) error {
	subject := alert.Title()
	body := alert.Summary()
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", c.sender, c.recipient, subject, body)

	addr := fmt.Sprintf("%s:%d", c.smtpHost, c.smtpPort)
	if err := c.mailer.SendMail(addr, c.auth, c.sender, []string{c.recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail via %s: %w", addr, err)
	}
	return nil
}
