// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

// Package config loads application configuration from layered sources
// using Koanf v2: built-in defaults, an optional YAML file, and
// environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Storage  StorageConfig  `koanf:"storage"`
	Database DatabaseConfig `koanf:"database"`
	Ingest   IngestConfig   `koanf:"ingest"`
	API      APIConfig      `koanf:"api"`
	Security SecurityConfig `koanf:"security"`
	Insights InsightsConfig `koanf:"insights"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // "development" or "production"
}

// StorageConfig holds the on-disk layout settings. Event partitions live
// under DataDir/events and registry files under DataDir/metadata.
type StorageConfig struct {
	DataDir string `koanf:"data_dir"`
}

// DatabaseConfig holds DuckDB settings for the analytics engine.
type DatabaseConfig struct {
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = use runtime.NumCPU()
}

// IngestConfig controls the event tracker's buffering behaviour.
type IngestConfig struct {
	BufferSize    int           `koanf:"buffer_size"`    // events per project before a forced flush
	FlushInterval time.Duration `koanf:"flush_interval"` // periodic background flush
}

// APIConfig holds request handling limits.
type APIConfig struct {
	MaxDateRangeDays int           `koanf:"max_date_range_days"`
	MaxBatchEvents   int           `koanf:"max_batch_events"`
	CacheTTL         time.Duration `koanf:"cache_ttl"` // analytics response cache
}

// SecurityConfig holds CORS and rate limiting settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// InsightsConfig holds LLM insight generation settings. Generation is
// disabled unless an API key is configured.
type InsightsConfig struct {
	Enabled  bool          `koanf:"enabled"`
	APIKey   string        `koanf:"api_key"`
	Model    string        `koanf:"model"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}

	env := strings.ToLower(c.Server.Environment)
	if env != "development" && env != "production" {
		return fmt.Errorf("server.environment must be development or production, got %q", c.Server.Environment)
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}

	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must not be negative, got %d", c.Database.Threads)
	}

	if c.Ingest.BufferSize < 1 {
		return fmt.Errorf("ingest.buffer_size must be at least 1, got %d", c.Ingest.BufferSize)
	}
	if c.Ingest.FlushInterval <= 0 {
		return fmt.Errorf("ingest.flush_interval must be positive, got %s", c.Ingest.FlushInterval)
	}

	if c.API.MaxDateRangeDays < 1 {
		return fmt.Errorf("api.max_date_range_days must be at least 1, got %d", c.API.MaxDateRangeDays)
	}
	if c.API.MaxBatchEvents < 1 {
		return fmt.Errorf("api.max_batch_events must be at least 1, got %d", c.API.MaxBatchEvents)
	}

	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("security.rate_limit_reqs must be at least 1, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("security.rate_limit_window must be positive, got %s", c.Security.RateLimitWindow)
		}
	}

	if c.Insights.Enabled && c.Insights.APIKey == "" {
		return fmt.Errorf("insights.api_key is required when insights are enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Server.Environment) == "production"
}
