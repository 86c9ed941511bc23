// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sanitize provides label-safety helpers shared by the metrics
// publisher, the collection scheduler's DLQ heuristic, and monitor-definition
// glob matching against destination names.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// labelSafe matches every character outside [A-Za-z0-9_-].
var labelSafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Name computes a destination's sanitized label name: the display name
// with every character outside [A-Za-z0-9_-] replaced by '_'. When name
// is empty, id is sanitized instead; when both are empty, "unknown" is
// returned. Idempotent: Name(Name(x)) == Name(x).
func Name(name, id string) string {
	candidate := name
	if candidate == "" {
		candidate = id
	}
	if candidate == "" {
		return "unknown"
	}
	return labelSafe.ReplaceAllString(candidate, "_")
}

// dlqTokens are case-insensitive substrings that mark a queue name as a
// dead-letter queue, per the name-based heuristic.
var dlqTokens = []string{"dlq", "dead-letter", "deadletter"}

// dlqSuffixes are case-insensitive suffixes with the same meaning.
var dlqSuffixes = []string{"-dead", "-dl"}

// LooksLikeDLQ reports whether name follows the dead-letter-queue naming
// heuristic: contains "dlq", "dead-letter", or "deadletter", or ends with
// "-dead" or "-dl" (all case-insensitive). Used only when the destination
// record has no authoritative defaultDeadLetterQueueId to compare
// against.
func LooksLikeDLQ(name string) bool {
	lower := strings.ToLower(name)
	for _, tok := range dlqTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	for _, suf := range dlqSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}

// LabelValue truncates s to a bound no real destination or tenant name
// should approach, guarding against unbounded label cardinality from a
// misbehaving or malicious upstream response.
func LabelValue(s string) string {
	const maxLen = 256
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}

// globCache compiles monitor target patterns ("orders-*", "*-dlq") into
// regexps once and reuses them; MonitorDefinition.Target is evaluated
// against every discovered destination name on every collection cycle,
// so recompiling per match would be wasteful.
type globCache struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

var globs = &globCache{cache: make(map[string]*regexp.Regexp)}

// MatchGlob reports whether name matches pattern under the monitor
// target grammar: '*' matches any run of characters, '?' matches exactly
// one character, and every other character (including '.') is literal.
// Compiled patterns are memoized process-wide.
func MatchGlob(pattern, name string) (bool, error) {
	re, err := compileGlob(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(name), nil
}

func compileGlob(pattern string) (*regexp.Regexp, error) {
	globs.mu.Lock()
	defer globs.mu.Unlock()
	if re, ok := globs.cache[pattern]; ok {
		return re, nil
	}
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile glob %q: %w", pattern, err)
	}
	globs.cache[pattern] = re
	return re, nil
}
