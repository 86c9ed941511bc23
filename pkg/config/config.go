// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the exporter's configuration.
//
// Secrets and simple scalars (base URL, credentials, organization id,
// license key) come from the environment, following the
// Config-from-os.Getenv-with-fallback-defaults idiom used throughout
// this codebase's teacher material. Structured lists — environments,
// regions, monitor definitions, and notification channels — come from an
// optional YAML file, because those are naturally tree-shaped and
// operators edit them by hand.
//
// A Config that fails validation is a ConfigError (see pkg/mqerrors) and
// the caller should exit non-zero rather than attempt to run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/netflexity/mq-exporter/pkg/mqerrors"
)

// Auth holds the two mutually-exclusive authentication modes. Exactly
// one must be configured.
type Auth struct {
	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
	Username     string `yaml:"-"`
	Password     string `yaml:"-"`
}

// IsConnectedAppAuth reports whether the client-credentials path is configured.
func (a Auth) IsConnectedAppAuth() bool {
	return a.ClientID != "" && a.ClientSecret != ""
}

// IsUsernamePasswordAuth reports whether the login path is configured.
func (a Auth) IsUsernamePasswordAuth() bool {
	return a.Username != "" && a.Password != ""
}

// HasValidAuth reports whether exactly one auth mode is configured.
func (a Auth) HasValidAuth() bool {
	return a.IsConnectedAppAuth() != a.IsUsernamePasswordAuth()
}

// Discovery controls the auto-discovery engine (C3).
type Discovery struct {
	Enabled             bool          `yaml:"enabled"`
	RefreshInterval     time.Duration `yaml:"-"`
	RefreshIntervalMs   int           `yaml:"refreshIntervalMs" validate:"omitempty,min=1000"`
}

// Scrape controls the collection scheduler (C4).
type Scrape struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"intervalSeconds" validate:"required,min=10"`
	PeriodSeconds   int  `yaml:"periodSeconds" validate:"required,min=300"`

	// MaxConcurrency bounds the destination-level worker pool C4 runs
	// per scrape cycle.
	MaxConcurrency int `yaml:"maxConcurrency" validate:"required,min=1"`
}

// HTTPPolicy controls C2's transport behavior.
type HTTPPolicy struct {
	ConnectTimeoutSeconds int `yaml:"connectTimeoutSeconds" validate:"required,min=1"`
	ReadTimeoutSeconds    int `yaml:"readTimeoutSeconds" validate:"required,min=1"`
	MaxRetries            int `yaml:"maxRetries" validate:"min=0"`
}

// MonitorDefaults merges into a MonitorDefinition that omits these fields.
type MonitorDefaults struct {
	CooldownMinutes         int `yaml:"cooldownMinutes" validate:"min=0"`
	EvaluationWindowMinutes int `yaml:"evaluationWindowMinutes" validate:"min=1"`
}

// MonitorsConfig controls C5/C6.
type MonitorsConfig struct {
	Enabled                    bool                  `yaml:"enabled"`
	EvaluationIntervalSeconds  int                   `yaml:"evaluationIntervalSeconds" validate:"omitempty,min=10"`
	Defaults                   MonitorDefaults       `yaml:"defaults"`
	Definitions                []MonitorDefinition   `yaml:"definitions" validate:"dive"`
	Notifications              NotificationsConfig   `yaml:"notifications"`
}

// NotificationsConfig holds the configured channel set (C7).
type NotificationsConfig struct {
	Channels []ChannelConfig `yaml:"channels" validate:"dive"`
}

// MonitorDefinition mirrors the DATA MODEL's MonitorDefinition entity.
type MonitorDefinition struct {
	Name                    string   `yaml:"name" validate:"required"`
	Type                    string   `yaml:"type" validate:"required,oneof=QueueDepth DlqAlert ThroughputDrop ThroughputSpike QueueHealth Custom"`
	Target                  string   `yaml:"target" validate:"required"`
	Condition               string   `yaml:"condition" validate:"required,oneof=GT LT GTE LTE EQ PctChange"`
	Threshold               float64  `yaml:"threshold"`
	EvaluationWindowMinutes int      `yaml:"evaluationWindowMinutes" validate:"omitempty,min=1"`
	CooldownMinutes         int      `yaml:"cooldownMinutes" validate:"omitempty,min=0"`
	Severity                string   `yaml:"severity" validate:"required,oneof=Info Warning Critical"`
	Channels                []string `yaml:"channels"`
	Enabled                 bool     `yaml:"enabled"`
}

// ChannelConfig mirrors the DATA MODEL's ChannelConfig entity.
type ChannelConfig struct {
	Name    string            `yaml:"name" validate:"required"`
	Type    string            `yaml:"type" validate:"required,oneof=Slack PagerDuty Email Teams Webhook"`
	Enabled bool              `yaml:"enabled"`
	Webhook string            `yaml:"webhookUrl"`
	Headers map[string]string `yaml:"headers"`

	RoutingKey string `yaml:"routingKey"` // PagerDuty

	Recipient string `yaml:"recipient"` // Email
	Sender    string `yaml:"sender"`    // Email
	SMTPHost  string `yaml:"smtpHost"`  // Email
	SMTPPort  int    `yaml:"smtpPort"`  // Email
}

// Configured reports whether this channel's mandatory type-specific
// fields are non-empty, per the DATA MODEL's ChannelConfig invariant.
func (c ChannelConfig) Configured() bool {
	switch c.Type {
	case "Slack", "Teams", "Webhook":
		return c.Webhook != ""
	case "PagerDuty":
		return c.RoutingKey != ""
	case "Email":
		return c.Recipient != "" && c.Sender != "" && c.SMTPHost != ""
	default:
		return false
	}
}

// Environment is a manually configured environment entry, used when
// auto-discovery is disabled.
type Environment struct {
	ID   string `yaml:"id" validate:"required"`
	Name string `yaml:"name" validate:"required"`
}

// fileConfig is the YAML-sourced structured portion of Config.
type fileConfig struct {
	Discovery    Discovery       `yaml:"discovery"`
	Environments []Environment   `yaml:"environments" validate:"dive"`
	Regions      []string        `yaml:"regions" validate:"required,min=1,dive,required"`
	Scrape       Scrape          `yaml:"scrape"`
	HTTP         HTTPPolicy      `yaml:"http"`
	Monitors     MonitorsConfig  `yaml:"monitors"`
}

// Config is the fully resolved, validated configuration for one exporter
// process.
type Config struct {
	BaseURL        string
	Auth           Auth
	OrganizationID string
	AutoDiscovery  bool
	LicenseKey     string
	Port           int

	Discovery    Discovery
	Environments []Environment
	Regions      []string
	Scrape       Scrape
	HTTP         HTTPPolicy
	Monitors     MonitorsConfig
}

// Load reads environment variables for scalars/secrets and, if
// MQ_EXPORTER_CONFIG_FILE is set, a YAML file for structured lists, then
// validates the result. Any failure is a ConfigError.
func Load() (*Config, error) {
	cfg := &Config{
		BaseURL: getenv("MQ_EXPORTER_BASE_URL", "https://anypoint.mulesoft.com"),
		Auth: Auth{
			ClientID:     os.Getenv("MQ_EXPORTER_CLIENT_ID"),
			ClientSecret: os.Getenv("MQ_EXPORTER_CLIENT_SECRET"),
			Username:     os.Getenv("MQ_EXPORTER_USERNAME"),
			Password:     os.Getenv("MQ_EXPORTER_PASSWORD"),
		},
		OrganizationID: os.Getenv("MQ_EXPORTER_ORGANIZATION_ID"),
		AutoDiscovery:  getenvBool("MQ_EXPORTER_AUTO_DISCOVERY", true),
		LicenseKey:     os.Getenv("MQ_EXPORTER_LICENSE_KEY"),
		Port:           getenvInt("MQ_EXPORTER_PORT", 9405),

		Discovery: Discovery{
			Enabled:           getenvBool("MQ_EXPORTER_AUTO_DISCOVERY", true),
			RefreshIntervalMs: getenvInt("MQ_EXPORTER_DISCOVERY_REFRESH_MS", 300000),
		},
		Regions: []string{getenv("MQ_EXPORTER_REGION", "us-east-1")},
		Scrape: Scrape{
			Enabled:         true,
			IntervalSeconds: getenvInt("MQ_EXPORTER_SCRAPE_INTERVAL_SECONDS", 60),
			PeriodSeconds:   getenvInt("MQ_EXPORTER_SCRAPE_PERIOD_SECONDS", 600),
			MaxConcurrency:  getenvInt("MQ_EXPORTER_SCRAPE_MAX_CONCURRENCY", 20),
		},
		HTTP: HTTPPolicy{
			ConnectTimeoutSeconds: getenvInt("MQ_EXPORTER_CONNECT_TIMEOUT_SECONDS", 30),
			ReadTimeoutSeconds:    getenvInt("MQ_EXPORTER_READ_TIMEOUT_SECONDS", 60),
			MaxRetries:            getenvInt("MQ_EXPORTER_MAX_RETRIES", 3),
		},
		Monitors: MonitorsConfig{
			Enabled:                   getenvBool("MQ_EXPORTER_MONITORS_ENABLED", false),
			EvaluationIntervalSeconds: getenvInt("MQ_EXPORTER_MONITORS_INTERVAL_SECONDS", 60),
			Defaults: MonitorDefaults{
				CooldownMinutes:         15,
				EvaluationWindowMinutes: 5,
			},
		},
	}

	if path := os.Getenv("MQ_EXPORTER_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyMonitorDefaults(cfg)
	cfg.Discovery.RefreshInterval = time.Duration(cfg.Discovery.RefreshIntervalMs) * time.Millisecond

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading config file %s: %v", mqerrors.ErrConfig, path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%w: parsing config file %s: %v", mqerrors.ErrConfig, path, err)
	}
	if fc.Discovery.RefreshIntervalMs != 0 {
		cfg.Discovery.RefreshIntervalMs = fc.Discovery.RefreshIntervalMs
	}
	if len(fc.Environments) > 0 {
		cfg.Environments = fc.Environments
	}
	if len(fc.Regions) > 0 {
		cfg.Regions = fc.Regions
	}
	if fc.Scrape.IntervalSeconds != 0 {
		cfg.Scrape.IntervalSeconds = fc.Scrape.IntervalSeconds
	}
	if fc.Scrape.PeriodSeconds != 0 {
		cfg.Scrape.PeriodSeconds = fc.Scrape.PeriodSeconds
	}
	if fc.Scrape.MaxConcurrency != 0 {
		cfg.Scrape.MaxConcurrency = fc.Scrape.MaxConcurrency
	}
	if fc.HTTP.ConnectTimeoutSeconds != 0 {
		cfg.HTTP = fc.HTTP
	}
	if fc.Monitors.EvaluationIntervalSeconds != 0 {
		cfg.Monitors.EvaluationIntervalSeconds = fc.Monitors.EvaluationIntervalSeconds
	}
	if fc.Monitors.Defaults.CooldownMinutes != 0 {
		cfg.Monitors.Defaults.CooldownMinutes = fc.Monitors.Defaults.CooldownMinutes
	}
	if fc.Monitors.Defaults.EvaluationWindowMinutes != 0 {
		cfg.Monitors.Defaults.EvaluationWindowMinutes = fc.Monitors.Defaults.EvaluationWindowMinutes
	}
	cfg.Monitors.Definitions = fc.Monitors.Definitions
	cfg.Monitors.Notifications = fc.Monitors.Notifications
	return nil
}

// applyMonitorDefaults merges MonitorsConfig.Defaults into any
// MonitorDefinition that omits cooldown or evaluation-window values.
func applyMonitorDefaults(cfg *Config) {
	for i := range cfg.Monitors.Definitions {
		d := &cfg.Monitors.Definitions[i]
		if d.CooldownMinutes == 0 {
			d.CooldownMinutes = cfg.Monitors.Defaults.CooldownMinutes
		}
		if d.EvaluationWindowMinutes == 0 {
			d.EvaluationWindowMinutes = cfg.Monitors.Defaults.EvaluationWindowMinutes
		}
	}
}

var structValidator = validator.New()

func validate(cfg *Config) error {
	if !cfg.Auth.HasValidAuth() {
		return fmt.Errorf("%w: exactly one of client-credentials or username/password auth must be configured", mqerrors.ErrConfig)
	}
	if !cfg.AutoDiscovery && len(cfg.Environments) == 0 {
		return fmt.Errorf("%w: environments[] is required when auto-discovery is disabled", mqerrors.ErrConfig)
	}
	if len(cfg.Regions) == 0 {
		return fmt.Errorf("%w: at least one region must be configured", mqerrors.ErrConfig)
	}
	if cfg.Scrape.IntervalSeconds < 10 {
		return fmt.Errorf("%w: scrape.intervalSeconds must be >= 10", mqerrors.ErrConfig)
	}
	if cfg.Scrape.PeriodSeconds < 300 {
		return fmt.Errorf("%w: scrape.periodSeconds must be >= 300", mqerrors.ErrConfig)
	}
	if err := structValidator.Struct(&cfg.HTTP); err != nil {
		return fmt.Errorf("%w: %v", mqerrors.ErrConfig, err)
	}
	for _, d := range cfg.Monitors.Definitions {
		if err := structValidator.Struct(&d); err != nil {
			return fmt.Errorf("%w: monitor %q: %v", mqerrors.ErrConfig, d.Name, err)
		}
	}
	for _, c := range cfg.Monitors.Notifications.Channels {
		if err := structValidator.Struct(&c); err != nil {
			return fmt.Errorf("%w: channel %q: %v", mqerrors.ErrConfig, c.Name, err)
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// MaskSecret masks a sensitive identifier for /actuator/health output:
// first 4 + "***" + last 4 characters when the value is at least 8
// characters long, else "***" entirely.
func MaskSecret(s string) string {
	if len(s) < 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}
