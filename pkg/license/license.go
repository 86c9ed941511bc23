// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package license implements the open-source/enterprise feature gate.
//
// # Open Source Behavior
//
// With no key configured, Tier returns TierOpenSource and every feature
// predicate (CanUseMonitors, CanUseHealthScores, DestinationLimit) reflects
// the open-source ceiling: monitors and health scores disabled, bounded
// destination count (reported only; see DestinationLimit).
//
// # Enterprise Behavior
//
// A non-empty, well-formed key unlocks TierEnterprise: unlimited monitors,
// health scores, and all notification channel types. Key validation here
// is a format check only (this package has no network access); an
// enterprise build is expected to replace Validator with one that calls
// out to a license server.
package license

import (
	"regexp"
)

// Tier identifies a license tier.
type Tier int

const (
	// TierOpenSource is the default when no license key is configured.
	TierOpenSource Tier = iota
	// TierEnterprise unlocks monitors, health scores, and all channel types.
	TierEnterprise
)

func (t Tier) String() string {
	if t == TierEnterprise {
		return "enterprise"
	}
	return "open-source"
}

// openSourceDestinationLimit is the per-destination-type limit that
// DestinationLimit reports for the open-source tier.
const openSourceDestinationLimit = 50

// keyPattern is a permissive format check: enterprise keys are expected
// to look like "NFX-XXXX-XXXX-XXXX". This package never contacts a
// license server; that is the enterprise extension point (Validator).
var keyPattern = regexp.MustCompile(`^NFX-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// Validator decides the license tier for a configured key. The default,
// KeyFormatValidator, is a format check only; enterprise deployments can
// supply a Validator backed by a license server.
type Validator interface {
	Validate(key string) Tier
}

// KeyFormatValidator is the open-source Validator: any key matching
// keyPattern is treated as enterprise. This package is the open-source
// version — it does not verify signatures, expiry, or seat counts.
type KeyFormatValidator struct{}

// Validate implements Validator.
func (KeyFormatValidator) Validate(key string) Tier {
	if keyPattern.MatchString(key) {
		return TierEnterprise
	}
	return TierOpenSource
}

// License holds the resolved tier for a running process.
type License struct {
	tier Tier
}

// Resolve determines the license tier for key using v. A nil v defaults
// to KeyFormatValidator.
func Resolve(key string, v Validator) *License {
	if v == nil {
		v = KeyFormatValidator{}
	}
	return &License{tier: v.Validate(key)}
}

// Tier returns the resolved license tier.
func (l *License) Tier() Tier {
	if l == nil {
		return TierOpenSource
	}
	return l.tier
}

// CanUseMonitors reports whether monitor evaluation (C5/C6) is enabled.
func (l *License) CanUseMonitors() bool {
	return l.Tier() == TierEnterprise
}

// CanUseHealthScores reports whether the queueHealth monitor type and
// the /api/health-scores endpoint are enabled.
func (l *License) CanUseHealthScores() bool {
	return l.Tier() == TierEnterprise
}

// CanUseChannelType reports whether channelType is permitted. Open
// source is limited to webhook delivery; enterprise unlocks Slack,
// PagerDuty, Teams, and email. channelType is expected to be one of
// the config.ChannelConfig type strings ("Webhook", "Slack", ...).
func (l *License) CanUseChannelType(channelType string) bool {
	if l.Tier() == TierEnterprise {
		return true
	}
	return channelType == "Webhook"
}

// DestinationLimit returns the tier's destination limit per type. Zero
// or negative means unlimited. The value is reported at /api/license
// only; the collection scheduler does not apply it and scrapes every
// discovered destination.
func (l *License) DestinationLimit() int {
	if l.Tier() == TierEnterprise {
		return 0
	}
	return openSourceDestinationLimit
}
