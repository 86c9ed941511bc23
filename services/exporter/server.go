// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/netflexity/mq-exporter/pkg/collector"
	"github.com/netflexity/mq-exporter/pkg/config"
	"github.com/netflexity/mq-exporter/pkg/discovery"
	"github.com/netflexity/mq-exporter/pkg/license"
	"github.com/netflexity/mq-exporter/pkg/logging"
	"github.com/netflexity/mq-exporter/pkg/monitor"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
	"github.com/netflexity/mq-exporter/pkg/sanitize"
)

// healthCacheTTL bounds how long a previously successful authentication
// check keeps /actuator/health reporting UP without re-checking upstream.
const healthCacheTTL = 30 * time.Second

// discoverySource is the subset of discovery.Engine the control plane depends on.
type discoverySource interface {
	Current() discovery.Snapshot
	Refresh(ctx context.Context) (discovery.Snapshot, error)
}

// statsSource is the subset of collector.Collector the control plane depends on.
type statsSource interface {
	Snapshot() (queues []collector.QueueEntry, exchanges []collector.ExchangeEntry)
}

// evaluatorSource is the subset of monitor.Evaluator the control plane depends on.
type evaluatorSource interface {
	StateSnapshot(monitorName, destination, environment, region string) (monitor.Snapshot, bool)
}

// channelSource is the subset of notify.Dispatcher the control plane depends on.
type channelSource interface {
	ChannelInfo(name string) (channelType string, configured bool, found bool)
	TestChannel(ctx context.Context, name string) error
}

// credentialSource is the subset of mqauth.Cache the control plane depends on.
type credentialSource interface {
	Get(ctx context.Context) (mqtypes.Credential, error)
}

// Server holds every dependency the control-plane handlers need, mirroring
// the teacher's Server-struct-with-handler-methods idiom.
type Server struct {
	cfg         *config.Config
	lic         *license.License
	discovery   discoverySource
	stats       statsSource
	evaluator   evaluatorSource
	channels    channelSource
	credentials credentialSource
	registry    prometheus.Gatherer
	logger      *logging.Logger

	mu          sync.Mutex
	lastAuthOK  bool
	lastAuthAt  time.Time
	lastAuthErr string
}

func newServer(cfg *config.Config, lic *license.License, discoveryEngine discoverySource, stats statsSource, evaluator evaluatorSource, channels channelSource, credentials credentialSource, registry prometheus.Gatherer, logger *logging.Logger) *Server {
	return &Server{
		cfg:         cfg,
		lic:         lic,
		discovery:   discoveryEngine,
		stats:       stats,
		evaluator:   evaluator,
		channels:    channels,
		credentials: credentials,
		registry:    registry,
		logger:      logger,
	}
}

// checkAuth reports the current upstream authentication health, using a
// cached successful result for up to healthCacheTTL before checking again.
func (s *Server) checkAuth(ctx context.Context) (ok bool, errMsg string) {
	s.mu.Lock()
	if s.lastAuthOK && time.Since(s.lastAuthAt) <= healthCacheTTL {
		ok := s.lastAuthOK
		s.mu.Unlock()
		return ok, ""
	}
	s.mu.Unlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.credentials.Get(checkCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastAuthOK = false
		s.lastAuthErr = err.Error()
		return false, s.lastAuthErr
	}
	s.lastAuthOK = true
	s.lastAuthAt = time.Now()
	s.lastAuthErr = ""
	return true, ""
}

func (s *Server) handleHealth(c *gin.Context) {
	ok, errMsg := s.checkAuth(c.Request.Context())

	status := "UP"
	code := http.StatusOK
	if !ok {
		status = "DOWN"
		code = http.StatusServiceUnavailable
	}

	auth := gin.H{"ok": ok}
	if errMsg != "" {
		auth["error"] = errMsg
	}

	cfgDetails := gin.H{
		"baseUrl":       s.cfg.BaseURL,
		"licenseTier":   s.lic.Tier().String(),
		"autoDiscovery": s.cfg.AutoDiscovery,
	}
	if s.cfg.OrganizationID != "" {
		cfgDetails["organizationId"] = config.MaskSecret(s.cfg.OrganizationID)
	}
	if s.cfg.Auth.ClientID != "" {
		cfgDetails["clientId"] = config.MaskSecret(s.cfg.Auth.ClientID)
	}
	if s.cfg.Auth.Username != "" {
		cfgDetails["username"] = config.MaskSecret(s.cfg.Auth.Username)
	}
	if s.cfg.LicenseKey != "" {
		cfgDetails["licenseKey"] = config.MaskSecret(s.cfg.LicenseKey)
	}

	c.JSON(code, gin.H{"status": status, "details": gin.H{"auth": auth, "config": cfgDetails}})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.discovery.Current()
	c.JSON(http.StatusOK, gin.H{
		"autoDiscovery":         s.cfg.AutoDiscovery,
		"regions":               s.cfg.Regions,
		"scrapeIntervalSeconds": s.cfg.Scrape.IntervalSeconds,
		"scrapePeriodSeconds":   s.cfg.Scrape.PeriodSeconds,
		"discovery": gin.H{
			"complete":         snap.Complete,
			"refreshedAt":      snap.RefreshedAt,
			"tenantCount":      len(snap.Tenants),
			"environmentCount": len(snap.Environments),
		},
	})
}

func (s *Server) handleDiscover(c *gin.Context) {
	snap, err := s.discovery.Refresh(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"complete":         snap.Complete,
		"refreshedAt":      snap.RefreshedAt,
		"tenantCount":      len(snap.Tenants),
		"environmentCount": len(snap.Environments),
	})
}

func (s *Server) findMonitor(name string) (config.MonitorDefinition, bool) {
	for _, def := range s.cfg.Monitors.Definitions {
		if def.Name == name {
			return def, true
		}
	}
	return config.MonitorDefinition{}, false
}

func (s *Server) monitorSummary(def config.MonitorDefinition) gin.H {
	channels := make([]gin.H, 0, len(def.Channels))
	for _, name := range def.Channels {
		channelType, configured, found := s.channels.ChannelInfo(name)
		channels = append(channels, gin.H{"name": name, "type": channelType, "configured": configured, "found": found})
	}
	return gin.H{
		"name":                    def.Name,
		"type":                    def.Type,
		"target":                  def.Target,
		"condition":               def.Condition,
		"threshold":               def.Threshold,
		"severity":                def.Severity,
		"enabled":                 def.Enabled,
		"cooldownMinutes":         def.CooldownMinutes,
		"evaluationWindowMinutes": def.EvaluationWindowMinutes,
		"channels":                channels,
	}
}

func (s *Server) handleListMonitors(c *gin.Context) {
	if !s.lic.CanUseMonitors() {
		c.JSON(http.StatusForbidden, gin.H{"error": "monitors require the enterprise tier"})
		return
	}
	out := make([]gin.H, 0, len(s.cfg.Monitors.Definitions))
	for _, def := range s.cfg.Monitors.Definitions {
		out = append(out, s.monitorSummary(def))
	}
	c.JSON(http.StatusOK, gin.H{"monitors": out})
}

func (s *Server) handleGetMonitor(c *gin.Context) {
	if !s.lic.CanUseMonitors() {
		c.JSON(http.StatusForbidden, gin.H{"error": "monitors require the enterprise tier"})
		return
	}
	def, ok := s.findMonitor(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "monitor not found"})
		return
	}
	c.JSON(http.StatusOK, s.monitorSummary(def))
}

func (s *Server) handleTestMonitor(c *gin.Context) {
	if !s.lic.CanUseMonitors() {
		c.JSON(http.StatusForbidden, gin.H{"error": "monitors require the enterprise tier"})
		return
	}
	def, ok := s.findMonitor(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "monitor not found"})
		return
	}

	results := make([]gin.H, 0, len(def.Channels))
	for _, name := range def.Channels {
		err := s.channels.TestChannel(c.Request.Context(), name)
		entry := gin.H{"channel": name, "ok": err == nil}
		if err != nil {
			entry["error"] = err.Error()
		}
		results = append(results, entry)
	}
	c.JSON(http.StatusOK, gin.H{"monitor": def.Name, "results": results})
}

// healthScoreEntry builds one queue's health-score breakdown from the
// evaluator's state, or reports false when no evaluation has run yet.
func (s *Server) healthScoreEntry(monitorName, destinationName string, q collector.QueueEntry) (gin.H, bool) {
	snap, ok := s.evaluator.StateSnapshot(monitorName, destinationName, q.Destination.Environment.Name, q.Destination.Region)
	if !ok || len(snap.Buffer) == 0 {
		return nil, false
	}
	return gin.H{
		"monitor":                   monitorName,
		"queue":                     destinationName,
		"environment":               q.Destination.Environment.Name,
		"region":                    q.Destination.Region,
		"score":                     snap.Buffer[len(snap.Buffer)-1],
		"baselineMean":              snap.BaselineMean,
		"baselineStdDev":            snap.BaselineStdDev,
		"consecutiveTriggeredCount": snap.ConsecutiveTriggered,
	}, true
}

func (s *Server) handleHealthScores(c *gin.Context) {
	if !s.lic.CanUseHealthScores() {
		c.JSON(http.StatusForbidden, gin.H{"error": "health scores require the enterprise tier"})
		return
	}
	queues, _ := s.stats.Snapshot()
	out := make([]gin.H, 0)
	for _, def := range s.cfg.Monitors.Definitions {
		if def.Type != "QueueHealth" {
			continue
		}
		for _, q := range queues {
			name := sanitize.Name(q.Destination.Name, q.Destination.ID)
			matched, err := sanitize.MatchGlob(def.Target, name)
			if err != nil || !matched {
				continue
			}
			if entry, ok := s.healthScoreEntry(def.Name, name, q); ok {
				out = append(out, entry)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"healthScores": out})
}

func (s *Server) handleHealthScoreForQueue(c *gin.Context) {
	if !s.lic.CanUseHealthScores() {
		c.JSON(http.StatusForbidden, gin.H{"error": "health scores require the enterprise tier"})
		return
	}
	queueName := c.Param("queueName")
	queues, _ := s.stats.Snapshot()
	for _, def := range s.cfg.Monitors.Definitions {
		if def.Type != "QueueHealth" {
			continue
		}
		for _, q := range queues {
			name := sanitize.Name(q.Destination.Name, q.Destination.ID)
			if name != queueName {
				continue
			}
			matched, err := sanitize.MatchGlob(def.Target, name)
			if err != nil || !matched {
				continue
			}
			if entry, ok := s.healthScoreEntry(def.Name, name, q); ok {
				c.JSON(http.StatusOK, entry)
				return
			}
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "no health score available for queue " + queueName})
}

func (s *Server) handleLicense(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tier":               s.lic.Tier().String(),
		"canUseMonitors":     s.lic.CanUseMonitors(),
		"canUseHealthScores": s.lic.CanUseHealthScores(),
		"destinationLimit":   s.lic.DestinationLimit(),
	})
}
