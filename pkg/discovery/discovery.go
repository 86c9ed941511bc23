// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package discovery implements the discovery engine (C3): it
// periodically enumerates tenants and environments and publishes an
// atomically-swapped snapshot for the collection scheduler to read.
package discovery

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/netflexity/mq-exporter/pkg/config"
	"github.com/netflexity/mq-exporter/pkg/logging"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
)

// API is the subset of the upstream client C3 depends on.
type API interface {
	ListSelf(ctx context.Context) (root mqtypes.TenantRef, members []mqtypes.TenantRef, err error)
	ListEnvironments(ctx context.Context, tenant mqtypes.TenantRef) ([]mqtypes.EnvironmentRef, error)
}

// Snapshot is the discovered state as of the most recent successful
// cycle. Readers receive an immutable value; C3 never mutates a
// published Snapshot in place.
type Snapshot struct {
	RootTenant   mqtypes.TenantRef
	Tenants      []mqtypes.TenantRef
	Environments []mqtypes.EnvironmentRef
	RefreshedAt  time.Time
	Complete     bool
}

// Engine runs the discovery loop and exposes the latest Snapshot via an
// atomic pointer swap, per the DESIGN NOTES "global mutable state" rule:
// no reader-visible in-place mutation.
type Engine struct {
	api             API
	cfg             config.Discovery
	configuredOrgID string
	manualEnvs      []config.Environment
	logger          *logging.Logger

	snapshot atomic.Pointer[Snapshot]
}

// New creates an Engine. If cfg.Enabled is false, the returned Engine's
// Current snapshot is built once from manualEnvs and Complete is true
// immediately, per §4.3's "if auto-discovery is disabled" rule.
func New(api API, cfg config.Discovery, configuredOrgID string, manualEnvs []config.Environment, logger *logging.Logger) *Engine {
	e := &Engine{api: api, cfg: cfg, configuredOrgID: configuredOrgID, manualEnvs: manualEnvs, logger: logger}
	if !cfg.Enabled {
		root := mqtypes.TenantRef{ID: configuredOrgID}
		envs := make([]mqtypes.EnvironmentRef, 0, len(manualEnvs))
		for _, me := range manualEnvs {
			envs = append(envs, mqtypes.EnvironmentRef{ID: me.ID, Name: me.Name, Tenant: root})
		}
		e.snapshot.Store(&Snapshot{RootTenant: root, Tenants: []mqtypes.TenantRef{root}, Environments: envs, RefreshedAt: time.Now(), Complete: true})
	}
	return e
}

// Current returns the latest published snapshot, or a zero Snapshot if
// no cycle has completed yet.
func (e *Engine) Current() Snapshot {
	if s := e.snapshot.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

// Refresh runs one discovery cycle synchronously: list tenants, list
// each tenant's environments, then atomically publish the new snapshot.
// A single tenant's failure to list environments is logged and skipped
// rather than failing the whole cycle, per §4.3 step 2.
func (e *Engine) Refresh(ctx context.Context) (Snapshot, error) {
	if !e.cfg.Enabled {
		return e.Current(), nil
	}

	root, members, err := e.api.ListSelf(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if root.ID == "" && e.configuredOrgID != "" {
		root.ID = e.configuredOrgID
	}
	if e.configuredOrgID != "" {
		// never overwrite an explicit configured root tenant
		root.ID = e.configuredOrgID
	}

	tenants := dedupe(append([]mqtypes.TenantRef{root}, members...))

	var envs []mqtypes.EnvironmentRef
	for _, t := range tenants {
		tenantEnvs, err := e.api.ListEnvironments(ctx, t)
		if err != nil {
			e.logger.Warn("listEnvironments failed, skipping tenant", "tenant_id", t.ID, "error", err.Error())
			continue
		}
		envs = append(envs, tenantEnvs...)
	}

	next := &Snapshot{
		RootTenant:   root,
		Tenants:      tenants,
		Environments: envs,
		RefreshedAt:  time.Now(),
		Complete:     true,
	}
	e.snapshot.Store(next)
	return *next, nil
}

// Run blocks, calling Refresh immediately and then every
// cfg.RefreshInterval (default 5 minutes), until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	if !e.cfg.Enabled {
		return
	}
	interval := e.cfg.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	for {
		if _, err := e.Refresh(ctx); err != nil {
			e.logger.Error("discovery cycle failed", "error", err.Error())
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func dedupe(tenants []mqtypes.TenantRef) []mqtypes.TenantRef {
	seen := make(map[string]bool, len(tenants))
	out := make([]mqtypes.TenantRef, 0, len(tenants))
	for _, t := range tenants {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
