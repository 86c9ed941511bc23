// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package collector implements the collection scheduler (C4): a
// fixed-delay scrape loop that fans out across environment x region x
// destination with bounded concurrency, isolates per-destination
// failures, and publishes the latest stats snapshot for C8 to read.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/netflexity/mq-exporter/pkg/logging"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
	"github.com/netflexity/mq-exporter/pkg/sanitize"
)

// API is the subset of the upstream client C4 depends on.
type API interface {
	ListDestinations(ctx context.Context, env mqtypes.EnvironmentRef, region string) ([]mqtypes.Destination, error)
	GetQueueStats(ctx context.Context, env mqtypes.EnvironmentRef, region, queueID string, periodSeconds int) (mqtypes.QueueStats, error)
	GetExchangeStats(ctx context.Context, env mqtypes.EnvironmentRef, region, exchangeID string, periodSeconds int) (mqtypes.ExchangeStats, error)
}

// EnvironmentSource supplies the current discovered environments, so
// the collector never depends on pkg/discovery directly.
type EnvironmentSource interface {
	Environments() []mqtypes.EnvironmentRef
}

// Recorder lets C8 observe scrape outcomes without C4 importing the
// metrics package, avoiding a dependency cycle between C4 and C8.
type Recorder interface {
	RecordScrapeDuration(d time.Duration)
	RecordLastScrapeTimestamp(t time.Time)
	IncScrapeError(cause string)
}

type nopRecorder struct{}

func (nopRecorder) RecordScrapeDuration(time.Duration) {}
func (nopRecorder) RecordLastScrapeTimestamp(time.Time) {}
func (nopRecorder) IncScrapeError(string)               {}

// QueueEntry is one queue's most recently scraped state.
type QueueEntry struct {
	Destination mqtypes.Destination
	Stats       mqtypes.QueueStats
	IsDLQ       bool
	ScrapedAt   time.Time
}

// ExchangeEntry is one exchange's most recently scraped state.
type ExchangeEntry struct {
	Destination mqtypes.Destination
	Stats       mqtypes.ExchangeStats
	ScrapedAt   time.Time
}

type entryKey struct {
	name        string
	environment string
	region      string
}

// Collector holds the current scrape snapshot behind a mutex and
// refreshes it on a fixed-delay schedule. No reader ever observes a
// partially updated entry: each destination's entry is replaced whole.
type Collector struct {
	api            API
	envs           EnvironmentSource
	regions        []string
	intervalSec    int
	periodSec      int
	maxConcurrency int
	staleAfter     time.Duration
	recorder       Recorder
	logger         *logging.Logger

	mu        sync.Mutex
	queues    map[entryKey]QueueEntry
	exchanges map[entryKey]ExchangeEntry
}

// Option configures a Collector.
type Option func(*Collector)

// WithRecorder wires a Recorder for scrape-duration/error observability.
func WithRecorder(r Recorder) Option {
	return func(c *Collector) { c.recorder = r }
}

// New creates a Collector. intervalSeconds and periodSeconds come from
// the scrape config block; staleAfter entries are dropped from Snapshot
// once nothing has refreshed them for that long (3 scrape intervals by
// default, see DESIGN.md's stale-entry eviction decision). maxConcurrency
// bounds the destination-level worker pool per scrape cycle; a
// non-positive value falls back to 1 so a misconfigured pool never
// deadlocks the fan-out.
func New(api API, envs EnvironmentSource, regions []string, intervalSeconds, periodSeconds, maxConcurrency int, logger *logging.Logger, opts ...Option) *Collector {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	c := &Collector{
		api:            api,
		envs:           envs,
		regions:        regions,
		intervalSec:    intervalSeconds,
		periodSec:      periodSeconds,
		maxConcurrency: maxConcurrency,
		staleAfter:     3 * time.Duration(intervalSeconds) * time.Second,
		recorder:       nopRecorder{},
		logger:         logger,
		queues:         make(map[entryKey]QueueEntry),
		exchanges:      make(map[entryKey]ExchangeEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run blocks, scraping immediately and then every intervalSeconds
// (fixed-delay, not fixed-rate: the next cycle starts intervalSeconds
// after the previous one finished), until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	interval := time.Duration(c.intervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		c.Collect(ctx)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// destJob is one fan-out unit: a single destination within one region
// of one environment.
type destJob struct {
	env         mqtypes.EnvironmentRef
	region      string
	destination mqtypes.Destination
	dlqTargets  map[string]bool
}

// Collect runs one full scrape cycle synchronously: list destinations
// for every (environment, region) pair, then scrape each destination's
// stats through a bounded worker pool, isolating failures per
// destination and per (environment, region) listing call.
func (c *Collector) Collect(ctx context.Context) {
	start := time.Now()
	defer func() {
		c.recorder.RecordScrapeDuration(time.Since(start))
		c.recorder.RecordLastScrapeTimestamp(time.Now())
	}()

	environments := c.envs.Environments()
	jobs := make(chan destJob)
	results := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < c.maxConcurrency; i++ {
		wg.Add(1)
		go c.worker(ctx, &wg, jobs)
	}

	go func() {
		defer close(jobs)
		for _, env := range environments {
			for _, region := range c.regions {
				destinations, err := c.api.ListDestinations(ctx, env, region)
				if err != nil {
					c.logger.Warn("list destinations failed", "environment_id", env.ID, "region", region, "error", err.Error())
					c.recorder.IncScrapeError("environment_failed")
					continue
				}
				dlqTargets := buildDLQTargets(destinations)
				for _, d := range destinations {
					select {
					case jobs <- destJob{env: env, region: region, destination: d, dlqTargets: dlqTargets}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()
	<-results

	c.evictStale(start)
}

func (c *Collector) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan destJob) {
	defer wg.Done()
	for job := range jobs {
		c.scrapeOne(ctx, job)
	}
}

func (c *Collector) scrapeOne(ctx context.Context, job destJob) {
	key := entryKey{name: job.destination.Name, environment: job.env.ID, region: job.region}
	switch job.destination.Kind {
	case mqtypes.KindQueue:
		stats, err := c.api.GetQueueStats(ctx, job.env, job.region, job.destination.ID, c.periodSec)
		if err != nil {
			c.logger.Warn("queue stats scrape failed", "queue", job.destination.Name, "environment_id", job.env.ID, "error", err.Error())
			c.recorder.IncScrapeError("queue_stats_failed")
			return
		}
		entry := QueueEntry{
			Destination: job.destination,
			Stats:       stats,
			IsDLQ:       job.destination.IsDLQ(job.dlqTargets, sanitize.LooksLikeDLQ),
			ScrapedAt:   time.Now(),
		}
		c.mu.Lock()
		c.queues[key] = entry
		c.mu.Unlock()
	case mqtypes.KindExchange:
		stats, err := c.api.GetExchangeStats(ctx, job.env, job.region, job.destination.ID, c.periodSec)
		if err != nil {
			c.logger.Warn("exchange stats scrape failed", "exchange", job.destination.Name, "environment_id", job.env.ID, "error", err.Error())
			c.recorder.IncScrapeError("exchange_stats_failed")
			return
		}
		entry := ExchangeEntry{Destination: job.destination, Stats: stats, ScrapedAt: time.Now()}
		c.mu.Lock()
		c.exchanges[key] = entry
		c.mu.Unlock()
	}
}

// buildDLQTargets collects the authoritative defaultDeadLetterQueueId
// pointers within one listing call, used to resolve Destination.IsDLQ
// before falling back to the name heuristic.
func buildDLQTargets(destinations []mqtypes.Destination) map[string]bool {
	targets := make(map[string]bool)
	for _, d := range destinations {
		if d.DefaultDeadLetterQueueID != "" {
			targets[d.DefaultDeadLetterQueueID] = true
		}
	}
	return targets
}

// evictStale drops entries that haven't been refreshed for staleAfter,
// so destinations removed upstream eventually disappear from metrics
// instead of reporting frozen last-known values forever.
func (c *Collector) evictStale(cycleStart time.Time) {
	if c.staleAfter <= 0 {
		return
	}
	cutoff := cycleStart.Add(-c.staleAfter)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.queues {
		if v.ScrapedAt.Before(cutoff) {
			delete(c.queues, k)
		}
	}
	for k, v := range c.exchanges {
		if v.ScrapedAt.Before(cutoff) {
			delete(c.exchanges, k)
		}
	}
}

// Snapshot returns a copy of the current queue and exchange entries.
func (c *Collector) Snapshot() ([]QueueEntry, []ExchangeEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queues := make([]QueueEntry, 0, len(c.queues))
	for _, v := range c.queues {
		queues = append(queues, v)
	}
	exchanges := make([]ExchangeEntry, 0, len(c.exchanges))
	for _, v := range c.exchanges {
		exchanges = append(exchanges, v)
	}
	return queues, exchanges
}
