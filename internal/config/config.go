/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads and validates the decision core's runtime
// configuration: server ports, rule-store location, ledger and cache
// backends, and feedback-analyzer scheduling.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP surface (spec §6).
type ServerConfig struct {
	Port        string `yaml:"port"`
	MetricsPort string `yaml:"metrics_port"`
}

// RuleStoreConfig controls where rule documents are loaded from
// (spec §4.1, §6 "persisted state layout").
type RuleStoreConfig struct {
	Backend       string        `yaml:"backend"` // "file" | "postgres"
	Path          string        `yaml:"path"`
	RefreshPeriod time.Duration `yaml:"refresh_period"`
}

// LedgerConfig controls the Postgres-backed decision ledger (spec §4.6).
type LedgerConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	LogQueueDepth   int    `yaml:"log_queue_depth"`
	MigrationsPath  string `yaml:"migrations_path"`
}

// PatternCacheConfig controls the Redis-backed email pattern cache
// collaborator store (spec §6).
type PatternCacheConfig struct {
	Addr string `yaml:"addr"`
}

// PolicyConfig controls the OPA-evaluated caller-authorization policy
// (spec §4.3 "allowed-callers list").
type PolicyConfig struct {
	RegoPath string `yaml:"rego_path"`
}

// ToolsConfig declares the operator-configured allow-list each of the
// five closed tools checks a caller against (spec §3 "ToolDefinition").
// A tool with no AllowedCallers entry uses DefaultAllowedCallers; an entry
// replaces that list. pkg/policy's Rego policy denies any caller not on
// the resulting list.
type ToolsConfig struct {
	DefaultAllowedCallers []string            `yaml:"default_allowed_callers"`
	AllowedCallers        map[string][]string `yaml:"allowed_callers"`
}

// ExecutorConfig controls decision-executor worker pool sizing (spec §5).
// The timeout fields are loaded and validated but not passed to
// pkg/executor, which applies its own fixed bounds (2s strict, 5s
// assisted, 1s secondary).
type ExecutorConfig struct {
	StrictTimeout   time.Duration `yaml:"strict_timeout"`
	AssistedTimeout time.Duration `yaml:"assisted_timeout"`
	ShadowTimeout   time.Duration `yaml:"shadow_timeout"`
	WorkerPoolSize  int           `yaml:"worker_pool_size"`
}

// FeedbackConfig controls the periodic feedback analyzer (spec §4.7).
type FeedbackConfig struct {
	Interval              time.Duration `yaml:"interval"`
	Window                time.Duration `yaml:"window"`
	MinFeedbackCount       int          `yaml:"min_feedback_count"`
	SuccessRateThreshold   float64      `yaml:"success_rate_threshold"`
	ConfidenceThreshold    float64      `yaml:"confidence_threshold"`
	UnfedbackedThreshold    int         `yaml:"unfedbacked_threshold"`
	MatchRateDeltaThreshold float64     `yaml:"match_rate_delta_threshold"`
	SlackWebhookURL         string      `yaml:"slack_webhook_url"`
}

// LoggingConfig controls the zap sink (internal/logging).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration document for cmd/decisionengine.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	RuleStore    RuleStoreConfig    `yaml:"rule_store"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	PatternCache PatternCacheConfig `yaml:"pattern_cache"`
	Policy       PolicyConfig       `yaml:"policy"`
	Tools        ToolsConfig        `yaml:"tools"`
	Executor     ExecutorConfig     `yaml:"executor"`
	Feedback     FeedbackConfig     `yaml:"feedback"`
	Logging      LoggingConfig      `yaml:"logging"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			MetricsPort: "9090",
		},
		RuleStore: RuleStoreConfig{
			Backend:       "file",
			Path:          "./rules",
			RefreshPeriod: 5 * time.Minute,
		},
		Ledger: LedgerConfig{
			MaxOpenConns:   10,
			LogQueueDepth:  1024,
			MigrationsPath: "./pkg/ledger/migrations",
		},
		PatternCache: PatternCacheConfig{
			Addr: "localhost:6379",
		},
		Tools: ToolsConfig{
			DefaultAllowedCallers: []string{"sales-app"},
		},
		Executor: ExecutorConfig{
			StrictTimeout:   2 * time.Second,
			AssistedTimeout: 5 * time.Second,
			ShadowTimeout:   1 * time.Second,
			WorkerPoolSize:  8,
		},
		Feedback: FeedbackConfig{
			Interval:                time.Hour,
			Window:                  7 * 24 * time.Hour,
			MinFeedbackCount:        30,
			SuccessRateThreshold:    0.3,
			ConfidenceThreshold:     0.5,
			UnfedbackedThreshold:    100,
			MatchRateDeltaThreshold: 0.15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads, parses, and validates a YAML config file at path, applying
// defaults for anything unset and then environment overrides.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		cfg.Server.MetricsPort = v
	}
	if v := os.Getenv("LEDGER_DSN"); v != "" {
		cfg.Ledger.DSN = v
	}
	if v := os.Getenv("PATTERN_CACHE_ADDR"); v != "" {
		cfg.PatternCache.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RULE_STORE_PATH"); v != "" {
		cfg.RuleStore.Path = v
	}
	if v := os.Getenv("FEEDBACK_MIN_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FEEDBACK_MIN_COUNT: %w", err)
		}
		cfg.Feedback.MinFeedbackCount = n
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.RuleStore.Backend != "file" && cfg.RuleStore.Backend != "postgres" {
		return fmt.Errorf("unsupported rule store backend %q", cfg.RuleStore.Backend)
	}
	if cfg.RuleStore.Backend == "file" && cfg.RuleStore.Path == "" {
		return fmt.Errorf("rule store path is required for file backend")
	}
	if cfg.RuleStore.Backend == "postgres" && cfg.Ledger.DSN == "" {
		return fmt.Errorf("ledger DSN is required when rule store backend is postgres")
	}
	if cfg.Executor.WorkerPoolSize <= 0 {
		return fmt.Errorf("executor worker pool size must be greater than 0")
	}
	if cfg.Executor.StrictTimeout <= 0 || cfg.Executor.AssistedTimeout <= 0 {
		return fmt.Errorf("executor timeouts must be greater than 0")
	}
	if cfg.Feedback.MinFeedbackCount <= 0 {
		return fmt.Errorf("feedback min feedback count must be greater than 0")
	}
	if cfg.Feedback.SuccessRateThreshold < 0 || cfg.Feedback.SuccessRateThreshold > 1 {
		return fmt.Errorf("feedback success rate threshold must be between 0.0 and 1.0")
	}
	return nil
}
