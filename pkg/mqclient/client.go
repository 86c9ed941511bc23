// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mqclient implements the upstream API client (C2): typed calls
// to the authentication, self, environments, destinations, and stats
// endpoints, with retry/backoff and per-call timeout applied uniformly.
package mqclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/netflexity/mq-exporter/pkg/config"
	"github.com/netflexity/mq-exporter/pkg/mqerrors"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
)

// HTTPDoer is the narrow interface the client depends on, so tests can
// inject a mock transport instead of a real *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var tracer = otel.Tracer("github.com/netflexity/mq-exporter/pkg/mqclient")

// Client is the upstream API client.
type Client struct {
	baseURL    string
	auth       config.Auth
	http       HTTPDoer
	maxRetries int
	readTimeout time.Duration
	credential func(ctx context.Context) (mqtypes.Credential, error)
}

// Option configures a Client.
type Option func(*Client)

// WithCredentialSource wires in the token cache's Get method so every
// call attaches a bearer token, per §4.2's cross-cutting behavior.
func WithCredentialSource(f func(ctx context.Context) (mqtypes.Credential, error)) Option {
	return func(c *Client) { c.credential = f }
}

// New creates a Client. httpDoer should have both connect and read
// timeouts configured by the caller (mirroring policy.ConnectTimeoutSeconds
// is a net.Dialer concern set up in services/exporter's wiring).
func New(baseURL string, auth config.Auth, policy config.HTTPPolicy, httpDoer HTTPDoer, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		auth:        auth,
		http:        httpDoer,
		maxRetries:  policy.MaxRetries,
		readTimeout: time.Duration(policy.ReadTimeoutSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate implements mqauth.Authenticator: it calls the
// client-credentials or username/password endpoint depending on which
// auth mode is configured. Exactly one is expected to be set (enforced
// by pkg/config's validation).
func (c *Client) Authenticate(ctx context.Context) (mqtypes.Credential, error) {
	ctx, span := tracer.Start(ctx, "mqclient.Authenticate")
	defer span.End()

	var req *http.Request
	var err error
	now := time.Now()

	switch {
	case c.auth.IsConnectedAppAuth():
		form := url.Values{}
		form.Set("client_id", c.auth.ClientID)
		form.Set("client_secret", c.auth.ClientSecret)
		form.Set("grant_type", "client_credentials")
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/accounts/api/v2/oauth2/token", strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	case c.auth.IsUsernamePasswordAuth():
		body, marshalErr := json.Marshal(map[string]string{
			"username": c.auth.Username,
			"password": c.auth.Password,
		})
		if marshalErr != nil {
			return mqtypes.Credential{}, fmt.Errorf("%w: encoding login payload: %v", mqerrors.ErrConfig, marshalErr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/accounts/login", bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	default:
		return mqtypes.Credential{}, fmt.Errorf("%w: no authentication mode configured", mqerrors.ErrConfig)
	}
	if err != nil {
		return mqtypes.Credential{}, fmt.Errorf("building auth request: %w", err)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
		Scope       string `json:"scope"`
	}
	if err := c.doRetrying(ctx, req, &out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return mqtypes.Credential{}, err
	}
	return mqtypes.Credential{
		AccessToken: out.AccessToken,
		TokenType:   out.TokenType,
		IssuedAt:    now,
		TTLSeconds:  out.ExpiresIn,
		Scope:       out.Scope,
	}, nil
}

// ListSelf calls GET /accounts/api/me.
func (c *Client) ListSelf(ctx context.Context) (root mqtypes.TenantRef, members []mqtypes.TenantRef, err error) {
	ctx, span := tracer.Start(ctx, "mqclient.ListSelf")
	defer span.End()

	var out struct {
		User struct {
			Organization struct {
				ID                string   `json:"id"`
				Name              string   `json:"name"`
				SubOrganizationIDs []string `json:"subOrganizationIds"`
			} `json:"organization"`
			MemberOfOrganizations []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"memberOfOrganizations"`
		} `json:"user"`
	}
	req, reqErr := c.authenticated(ctx, http.MethodGet, "/accounts/api/me", nil)
	if reqErr != nil {
		return root, nil, reqErr
	}
	if err = c.doRetrying(ctx, req, &out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return root, nil, err
	}
	root = mqtypes.TenantRef{ID: out.User.Organization.ID, Name: out.User.Organization.Name}
	seen := map[string]bool{root.ID: true}
	for _, m := range out.User.MemberOfOrganizations {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		members = append(members, mqtypes.TenantRef{ID: m.ID, Name: m.Name})
	}
	return root, members, nil
}

// ListEnvironments calls GET /accounts/api/organizations/{orgId}/environments.
func (c *Client) ListEnvironments(ctx context.Context, tenant mqtypes.TenantRef) ([]mqtypes.EnvironmentRef, error) {
	ctx, span := tracer.Start(ctx, "mqclient.ListEnvironments", trace.WithAttributes(attribute.String("tenant_id", tenant.ID)))
	defer span.End()

	var out struct {
		Data []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			Type         string `json:"type"`
			IsProduction bool   `json:"isProduction"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/accounts/api/organizations/%s/environments", url.PathEscape(tenant.ID))
	req, err := c.authenticated(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := c.doRetrying(ctx, req, &out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	envs := make([]mqtypes.EnvironmentRef, 0, len(out.Data))
	for _, e := range out.Data {
		envs = append(envs, mqtypes.EnvironmentRef{ID: e.ID, Name: e.Name, Tenant: tenant, Type: e.Type})
	}
	return envs, nil
}

// ListDestinations calls the destinations endpoint and filters/tags
// records by their kind attribute, per §4.2's cross-cutting rule that
// the client — not the upstream — is responsible for the kind split.
func (c *Client) ListDestinations(ctx context.Context, env mqtypes.EnvironmentRef, region string) ([]mqtypes.Destination, error) {
	ctx, span := tracer.Start(ctx, "mqclient.ListDestinations",
		trace.WithAttributes(attribute.String("environment_id", env.ID), attribute.String("region", region)))
	defer span.End()

	path := fmt.Sprintf("/mq/admin/api/v1/organizations/%s/environments/%s/regions/%s/destinations",
		url.PathEscape(env.Tenant.ID), url.PathEscape(env.ID), url.PathEscape(region))
	req, err := c.authenticated(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		QueueID                  string `json:"queueId"`
		ExchangeID               string `json:"exchangeId"`
		QueueName                string `json:"queueName"`
		ExchangeName             string `json:"exchangeName"`
		Type                     string `json:"type"`
		FIFO                     bool   `json:"fifo"`
		DefaultTTL               int64  `json:"defaultTtl"`
		MaxDeliveries            int    `json:"maxDeliveries"`
		DefaultDeadLetterQueueID string `json:"defaultDeadLetterQueueId"`
		Encrypted                bool   `json:"encrypted"`
	}
	if err := c.doRetrying(ctx, req, &raw); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	destinations := make([]mqtypes.Destination, 0, len(raw))
	for _, r := range raw {
		switch r.Type {
		case "queue":
			destinations = append(destinations, mqtypes.Destination{
				ID:                       r.QueueID,
				Name:                     r.QueueName,
				Kind:                     mqtypes.KindQueue,
				Environment:              env,
				Region:                   region,
				FIFO:                     r.FIFO,
				DefaultTTLMillis:         r.DefaultTTL,
				MaxDeliveries:            r.MaxDeliveries,
				DefaultDeadLetterQueueID: r.DefaultDeadLetterQueueID,
				Encrypted:                r.Encrypted,
			})
		case "exchange":
			destinations = append(destinations, mqtypes.Destination{
				ID:          r.ExchangeID,
				Name:        r.ExchangeName,
				Kind:        mqtypes.KindExchange,
				Environment: env,
				Region:      region,
				Encrypted:   r.Encrypted,
			})
		}
	}
	return destinations, nil
}

// statsWindow formats the [startTime, endTime) query parameters shared
// by both stats endpoints: endTime = now, startTime = endTime - period,
// both millisecond-precision UTC ISO-8601 ending in literal "Z".
func statsWindow(periodSeconds int) (startDate, endDate string) {
	const iso = "2006-01-02T15:04:05.000Z"
	end := time.Now().UTC()
	start := end.Add(-time.Duration(periodSeconds) * time.Second)
	return start.Format(iso), end.Format(iso)
}

// GetQueueStats calls the queue stats endpoint.
func (c *Client) GetQueueStats(ctx context.Context, env mqtypes.EnvironmentRef, region, queueID string, periodSeconds int) (mqtypes.QueueStats, error) {
	ctx, span := tracer.Start(ctx, "mqclient.GetQueueStats",
		trace.WithAttributes(attribute.String("environment_id", env.ID), attribute.String("queue_id", queueID)))
	defer span.End()

	startDate, endDate := statsWindow(periodSeconds)
	path := fmt.Sprintf("/mq/stats/api/v1/organizations/%s/environments/%s/regions/%s/queues/%s",
		url.PathEscape(env.Tenant.ID), url.PathEscape(env.ID), url.PathEscape(region), url.PathEscape(queueID))
	q := url.Values{"startDate": {startDate}, "endDate": {endDate}, "period": {fmt.Sprint(periodSeconds)}}
	req, err := c.authenticated(ctx, http.MethodGet, path+"?"+q.Encode(), nil)
	if err != nil {
		return mqtypes.QueueStats{}, err
	}

	var raw struct {
		MessagesInQueue    numberOrArray         `json:"messagesInQueue"`
		MessagesInFlight   numberOrArray         `json:"messagesInFlight"`
		MessagesSent       numberOrArray         `json:"messagesSent"`
		MessagesReceived   numberOrArray         `json:"messagesReceived"`
		MessagesAcked      numberOrArray         `json:"messagesAcked"`
		QueueSize          optionalNumberOrArray `json:"queueSize"`
		AverageMessageSize optionalNumberOrArray `json:"averageMessageSize"`
	}
	if err := c.doRetrying(ctx, req, &raw); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return mqtypes.QueueStats{}, err
	}
	return mqtypes.QueueStats{
		MessagesInQueue:    raw.MessagesInQueue.Int64(),
		MessagesInFlight:   raw.MessagesInFlight.Int64(),
		MessagesSent:       raw.MessagesSent.Int64(),
		MessagesReceived:   raw.MessagesReceived.Int64(),
		MessagesAcked:      raw.MessagesAcked.Int64(),
		QueueSizeBytes:     raw.QueueSize.value,
		AverageMessageSize: raw.AverageMessageSize.value,
	}, nil
}

// GetExchangeStats calls the exchange stats endpoint.
func (c *Client) GetExchangeStats(ctx context.Context, env mqtypes.EnvironmentRef, region, exchangeID string, periodSeconds int) (mqtypes.ExchangeStats, error) {
	ctx, span := tracer.Start(ctx, "mqclient.GetExchangeStats",
		trace.WithAttributes(attribute.String("environment_id", env.ID), attribute.String("exchange_id", exchangeID)))
	defer span.End()

	startDate, endDate := statsWindow(periodSeconds)
	path := fmt.Sprintf("/mq/stats/api/v1/organizations/%s/environments/%s/regions/%s/exchanges/%s",
		url.PathEscape(env.Tenant.ID), url.PathEscape(env.ID), url.PathEscape(region), url.PathEscape(exchangeID))
	q := url.Values{"startDate": {startDate}, "endDate": {endDate}, "period": {fmt.Sprint(periodSeconds)}}
	req, err := c.authenticated(ctx, http.MethodGet, path+"?"+q.Encode(), nil)
	if err != nil {
		return mqtypes.ExchangeStats{}, err
	}

	var raw struct {
		MessagesPublished numberOrArray `json:"messagesPublished"`
		MessagesDelivered numberOrArray `json:"messagesDelivered"`
	}
	if err := c.doRetrying(ctx, req, &raw); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return mqtypes.ExchangeStats{}, err
	}
	return mqtypes.ExchangeStats{
		MessagesPublished: raw.MessagesPublished.Int64(),
		MessagesDelivered: raw.MessagesDelivered.Int64(),
	}, nil
}

// authenticated builds a GET/POST request with the current bearer token
// attached, per §4.2's "every call attaches the current Credential".
func (c *Client) authenticated(ctx context.Context, method, pathAndQuery string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if c.credential != nil {
		cred, err := c.credential(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", cred.AuthorizationHeader())
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doRetrying executes req with exponential backoff (base 1s, doubling),
// retrying only on 5xx, 429, and connection/timeout errors, per §4.2.
// Each attempt gets its own per-call read-timeout context.
func (c *Client) doRetrying(ctx context.Context, req *http.Request, out any) error {
	maxAttempts := c.maxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
		attemptReq := req.Clone(attemptCtx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				cancel()
				return fmt.Errorf("rewinding request body for %s: %w", req.URL.Path, err)
			}
			attemptReq.Body = body
		}
		resp, err := c.http.Do(attemptReq)
		if err != nil {
			cancel()
			lastErr = mqerrors.NewAPIError(req.URL.Path, 0, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		if readErr != nil {
			lastErr = mqerrors.NewAPIError(req.URL.Path, resp.StatusCode, readErr)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil || len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decoding response from %s: %w", req.URL.Path, err)
			}
			return nil
		}

		apiErr := mqerrors.NewAPIError(req.URL.Path, resp.StatusCode, fmt.Errorf("%s", string(body)))
		if !mqerrors.IsRetryable(apiErr) {
			return apiErr
		}
		lastErr = apiErr
	}
	return lastErr
}
