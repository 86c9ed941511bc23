// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mqerrors defines the error taxonomy shared by every component
// of the exporter: configuration failures, authentication failures,
// transient upstream errors, not-found responses, and notification
// channel failures. Retryability is a property of the error value,
// checked with IsRetryable, rather than something each call site has to
// know about its callee.
package mqerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds. Wrap one of these with fmt.Errorf("%w: ...", KindX) so
// callers can still errors.Is against the kind after adding context.
var (
	// ErrConfig indicates a configuration problem discovered at startup:
	// a missing required field, an invalid value, or a
	// validation failure. Always fatal — the process should not start.
	ErrConfig = errors.New("config error")

	// ErrAuthFailed indicates the upstream rejected credentials outright
	// (a 401/403 from the token endpoint or any other upstream call).
	// Not retryable by the caller; surfaced to the operator instead.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrTransient indicates a retryable upstream condition: 5xx, 429,
	// timeout, or connection failure.
	ErrTransient = errors.New("transient upstream error")

	// ErrNotFound indicates the upstream returned 404 for a destination
	// or environment that discovery believed existed. Callers should
	// drop the destination from the next cycle's snapshot rather than
	// retry it immediately.
	ErrNotFound = errors.New("destination not found")

	// ErrChannel indicates a notification channel failed to deliver an
	// alert. Isolated per-channel; never aborts the dispatch loop.
	ErrChannel = errors.New("notification channel error")

	// ErrUpstream indicates a hard 4xx response (other than 401/403/404/429)
	// from the upstream API. Never retried.
	ErrUpstream = errors.New("upstream rejected request")
)

// apiError carries the HTTP status code of a failed upstream call so
// IsRetryable can classify it without string matching.
type apiError struct {
	kind       error
	statusCode int
	op         string
	err        error
}

func (e *apiError) Error() string {
	if e.statusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.op, e.kind, e.statusCode, e.err)
	}
	return fmt.Sprintf("%s: %s: %v", e.op, e.kind, e.err)
}

func (e *apiError) Unwrap() error { return e.kind }

// NewAPIError classifies an upstream HTTP failure by status code and
// wraps it as ErrAuthFailed, ErrNotFound, ErrTransient, or (for any
// other status) ErrUpstream, matching the
// retry-eligibility rules of the original client: only 5xx, 429, and
// connection-level failures (statusCode == 0) are retryable; no other
// 4xx is.
func NewAPIError(op string, statusCode int, err error) error {
	var kind error
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		kind = ErrAuthFailed
	case statusCode == http.StatusNotFound:
		kind = ErrNotFound
	case statusCode == http.StatusTooManyRequests, statusCode >= 500, statusCode == 0:
		kind = ErrTransient
	default:
		kind = ErrUpstream
	}
	return &apiError{kind: kind, statusCode: statusCode, op: op, err: err}
}

// IsRetryable reports whether err should be retried by the caller's
// backoff loop. Only ErrTransient is retryable; ErrAuthFailed, ErrNotFound
// and ErrUpstream require operator or discovery-level intervention, and
// ErrConfig/ErrChannel are never about a single HTTP call.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// StatusCode extracts the HTTP status code carried by err, if any.
func StatusCode(err error) (int, bool) {
	var ae *apiError
	if errors.As(err, &ae) && ae.statusCode != 0 {
		return ae.statusCode, true
	}
	return 0, false
}
