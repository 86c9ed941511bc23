// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mqtypes holds the domain entities shared across the
// authentication, discovery, collection, and monitor-evaluation layers,
// so none of those packages need to import one another just to pass
// values around.
package mqtypes

import "time"

// Credential is an opaque bearer token obtained from the upstream
// authentication endpoint.
type Credential struct {
	AccessToken string
	TokenType   string
	IssuedAt    time.Time
	TTLSeconds  int
	Scope       string // diagnostics only, never placed on a metric label
}

// safetyMargin is the buffer before expiry at which a Credential is
// treated as no-longer-valid, so a refresh always completes before the
// upstream actually rejects the old token.
const safetyMargin = 5 * time.Minute

// IsValid reports whether the credential is non-empty and not within
// safetyMargin of expiry, as of now.
func (c Credential) IsValid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	expiry := c.IssuedAt.Add(time.Duration(c.TTLSeconds) * time.Second)
	return now.Add(safetyMargin).Before(expiry)
}

// AuthorizationHeader returns the "<type> <token>" value for the
// Authorization header, or "" if the credential is empty.
func (c Credential) AuthorizationHeader() string {
	if c.AccessToken == "" {
		return ""
	}
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.AccessToken
}

// SecondsUntilExpiry returns how many seconds remain before expiry,
// which may be negative for an already-expired credential.
func (c Credential) SecondsUntilExpiry(now time.Time) int {
	expiry := c.IssuedAt.Add(time.Duration(c.TTLSeconds) * time.Second)
	return int(expiry.Sub(now).Seconds())
}

// TenantRef identifies an organization visible to the current credential.
type TenantRef struct {
	ID   string
	Name string
}

// EnvironmentRef identifies an environment within a tenant.
type EnvironmentRef struct {
	ID     string
	Name   string
	Tenant TenantRef
	Type   string // informational
}

// DestinationKind distinguishes point-to-point queues from fan-out exchanges.
type DestinationKind int

const (
	// KindQueue is a point-to-point destination.
	KindQueue DestinationKind = iota
	// KindExchange is a fan-out, topic-like destination.
	KindExchange
)

func (k DestinationKind) String() string {
	if k == KindExchange {
		return "exchange"
	}
	return "queue"
}

// Destination is a tagged-variant-in-practice entity: Kind selects which
// of the queue-only fields are meaningful, and which stats endpoint
// applies. Modeled as one struct with a kind tag (rather than two Go
// types behind an interface) because every caller that needs the
// queue-only fields already has Kind in hand to check first, and
// C4 keeps both kinds in one ordered slice from listDestinations.
type Destination struct {
	ID          string
	Name        string // display name as listed; may be empty (sanitize.Name falls back to ID)
	Kind        DestinationKind
	Environment EnvironmentRef
	Region      string

	// Queue-only fields (zero-valued when Kind == KindExchange).
	FIFO                     bool
	DefaultTTLMillis         int64
	MaxDeliveries            int
	DefaultDeadLetterQueueID string
	Encrypted                bool
}

// IsDLQ reports whether the destination should be treated as a
// dead-letter queue: the authoritative defaultDeadLetterQueueId pointer
// on some *other* destination is not what marks a queue as a DLQ — a
// queue IS a DLQ when it is itself the dead-letter target referenced by
// dlqTargets, or, absent that authoritative signal, when its name
// matches the naming heuristic.
func (d Destination) IsDLQ(dlqTargets map[string]bool, looksLikeDLQ func(string) bool) bool {
	if dlqTargets != nil {
		if isDLQ, known := dlqTargets[d.ID]; known {
			return isDLQ
		}
	}
	return looksLikeDLQ(d.Name)
}

// QueueStats holds one scrape cycle's windowed counters for a queue.
type QueueStats struct {
	MessagesInQueue     int64
	MessagesInFlight    int64
	MessagesSent        int64
	MessagesReceived    int64
	MessagesAcked       int64
	QueueSizeBytes      *float64
	AverageMessageSize  *float64
}

// ExchangeStats holds one scrape cycle's windowed counters for an exchange.
type ExchangeStats struct {
	MessagesPublished int64
	MessagesDelivered int64
}

// Severity classifies a MonitorResult.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "Warning"
	case SeverityCritical:
		return "Critical"
	default:
		return "Info"
	}
}

// MonitorResult is one evaluation's outcome for a (monitor, destination) pair.
type MonitorResult struct {
	MonitorName     string
	DestinationName string
	Environment     string
	Region          string
	Triggered       bool
	CurrentValue    float64
	ThresholdValue  float64
	Message         string
	Severity        Severity
	EvaluatedAt     time.Time
	Metadata        map[string]any
}
