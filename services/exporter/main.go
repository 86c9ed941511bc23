// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command exporter is the Anypoint MQ exporter process: it wires
// together the token cache, upstream client, discovery engine,
// collection scheduler, monitor evaluator, notification dispatcher, and
// metrics publisher, then serves Prometheus metrics and a small
// control-plane API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/netflexity/mq-exporter/pkg/collector"
	"github.com/netflexity/mq-exporter/pkg/config"
	"github.com/netflexity/mq-exporter/pkg/discovery"
	"github.com/netflexity/mq-exporter/pkg/license"
	"github.com/netflexity/mq-exporter/pkg/logging"
	"github.com/netflexity/mq-exporter/pkg/metrics"
	"github.com/netflexity/mq-exporter/pkg/monitor"
	"github.com/netflexity/mq-exporter/pkg/mqauth"
	"github.com/netflexity/mq-exporter/pkg/mqclient"
	"github.com/netflexity/mq-exporter/pkg/mqerrors"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
	"github.com/netflexity/mq-exporter/pkg/notify"
)

// shutdownGracePeriod bounds how long in-flight requests get to finish
// once a termination signal arrives, per the "waits briefly then aborts"
// shutdown rule.
const shutdownGracePeriod = 15 * time.Second

// discoveryEnvSource adapts discovery.Engine's Snapshot-returning Current
// method to collector.EnvironmentSource, so the collector never imports
// pkg/discovery directly.
type discoveryEnvSource struct {
	engine *discovery.Engine
}

func (d discoveryEnvSource) Environments() []mqtypes.EnvironmentRef {
	return d.engine.Current().Environments
}

// initTracer wires the OTLP gRPC trace exporter, following the teacher's
// orchestrator service pattern: an env-configured collector endpoint, an
// always-sampling batch processor, and a W3C trace-context propagator.
func initTracer(serviceName string) (func(context.Context), error) {
	ctx := context.Background()

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dialing OTLP collector: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("building trace resource: %w", err)
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = traceExporter.Shutdown(ctx)
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mq-exporter: startup failed:", err)
		if errors.Is(err, mqerrors.ErrConfig) {
			os.Exit(1)
		}
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "mq-exporter", JSON: true})
	defer logger.Close()

	shutdownTracer, err := initTracer("mq-exporter")
	if err != nil {
		logger.Error("failed to set up OTLP tracer, continuing without tracing", "error", err.Error())
		shutdownTracer = func(context.Context) {}
	}
	defer shutdownTracer(context.Background())

	lic := license.Resolve(cfg.LicenseKey, nil)
	logger.Info("license resolved", "tier", lic.Tier().String())

	httpDoer := &http.Client{
		Timeout: time.Duration(cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: time.Duration(cfg.HTTP.ConnectTimeoutSeconds) * time.Second,
			}).DialContext,
		},
	}

	// The token cache needs a Client to call Authenticate; the Client
	// used for every other upstream call needs the cache's Get method as
	// its credential source. Authenticate never reads a Client's own
	// credential slot, so a second, fully-optioned Client sharing the
	// same transport resolves the ordering without either depending on
	// the other's construction.
	authClient := mqclient.New(cfg.BaseURL, cfg.Auth, cfg.HTTP, httpDoer)
	tokenCache := mqauth.New(authClient)
	apiClient := mqclient.New(cfg.BaseURL, cfg.Auth, cfg.HTTP, httpDoer, mqclient.WithCredentialSource(tokenCache.Get))

	discoveryEngine := discovery.New(apiClient, cfg.Discovery, cfg.OrganizationID, cfg.Environments, logger)

	registry := prometheus.NewRegistry()
	met := metrics.New(registry)

	coll := collector.New(apiClient, discoveryEnvSource{discoveryEngine}, cfg.Regions, cfg.Scrape.IntervalSeconds, cfg.Scrape.PeriodSeconds, cfg.Scrape.MaxConcurrency, logger, collector.WithRecorder(met))

	dispatcher := notify.New(cfg.Monitors.Notifications.Channels, lic, httpDoer, nil, met, logger)

	evaluator := monitor.New(coll, dispatcher, lic, cfg.Monitors.EvaluationIntervalSeconds, logger, monitor.WithHealthScoreRecorder(met))

	srv := newServer(cfg, lic, discoveryEngine, coll, evaluator, dispatcher, tokenCache, registry, logger)

	router := gin.Default()
	router.Use(otelgin.Middleware("mq-exporter"))
	srv.registerRoutes(router)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		discoveryEngine.Run(ctx)
	}()

	if cfg.Scrape.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coll.Run(ctx)
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			runMetricsPublishLoop(ctx, coll, met, cfg.Scrape.IntervalSeconds)
		}()
	}

	if cfg.Monitors.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evaluator.Run(ctx, cfg.Monitors.Definitions)
		}()
	}

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: router}
	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	logger.Info("mq-exporter listening", "port", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", "error", err.Error())
			cancel()
			os.Exit(1)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown did not complete cleanly", "error", err.Error())
	}

	wg.Wait()
	logger.Info("mq-exporter stopped")
}

// runMetricsPublishLoop drives metrics.Publish on the scrape cadence.
// The collector has no "cycle complete" callback hook, so this loop runs
// independently of collector.Run's own schedule; the two can skew by up
// to one interval without any metric ever going stale for longer than
// that, which is an acceptable tradeoff against adding a callback to an
// already self-contained scheduler.
func runMetricsPublishLoop(ctx context.Context, coll *collector.Collector, met *metrics.Metrics, intervalSeconds int) {
	interval := time.Duration(intervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			queues, exchanges := coll.Snapshot()
			met.Publish(queues, exchanges)
		}
	}
}
