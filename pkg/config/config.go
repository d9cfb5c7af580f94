// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway configuration. Everything is settable
// through BLUEBRIDGE_* environment variables; flags on the serve command
// override the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full gateway configuration.
type Config struct {
	// ListenAddr is the host:port the HTTP server binds.
	ListenAddr string `mapstructure:"listen_addr"`

	// PDSHost is the upstream AT Protocol server.
	PDSHost string `mapstructure:"pds_host"`

	// Domain is the hostname this gateway presents in instance metadata and
	// generated URLs.
	Domain string `mapstructure:"domain"`

	// RedisAddr selects the Redis cache backend; empty selects the
	// in-memory backend.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisUsername string `mapstructure:"redis_username"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	// WorkerID distinguishes snowflake generators across instances, 0-1023.
	WorkerID int64 `mapstructure:"worker_id"`

	// Rate limiting. The whole capacity regenerates over one window.
	RateLimitWindow  time.Duration `mapstructure:"rate_limit_window"`
	RateLimitAnon    int           `mapstructure:"rate_limit_anon"`
	RateLimitUser    int           `mapstructure:"rate_limit_user"`
	RateLimitEnabled bool          `mapstructure:"rate_limit_enabled"`

	// Telemetry.
	OTLPEndpoint      string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure      bool    `mapstructure:"otlp_insecure"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled"`
	MetricsEnabled    bool    `mapstructure:"metrics_enabled"`
	SamplingRate      float64 `mapstructure:"sampling_rate"`
	PrometheusMetrics bool    `mapstructure:"prometheus_metrics"`

	// Logging.
	LogLevel         string `mapstructure:"log_level"`
	UnstructuredLogs bool   `mapstructure:"unstructured_logs"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BLUEBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "0.0.0.0:8080")
	v.SetDefault("pds_host", "https://bsky.social")
	v.SetDefault("domain", "bluebridge.local")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_prefix", "bluebridge:")
	v.SetDefault("worker_id", 0)
	v.SetDefault("rate_limit_window", 5*time.Minute)
	v.SetDefault("rate_limit_anon", 300)
	v.SetDefault("rate_limit_user", 1000)
	v.SetDefault("rate_limit_enabled", true)
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("otlp_insecure", false)
	v.SetDefault("tracing_enabled", true)
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("sampling_rate", 0.05)
	v.SetDefault("prometheus_metrics", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("unstructured_logs", false)
}

func (c *Config) validate() error {
	if c.WorkerID < 0 || c.WorkerID > 1023 {
		return fmt.Errorf("worker_id %d out of range 0-1023", c.WorkerID)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be positive")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate %v out of range 0.0-1.0", c.SamplingRate)
	}
	return nil
}
