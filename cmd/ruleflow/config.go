package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rendis/ruleflow/internal/expressions"
	"github.com/rendis/ruleflow/internal/filter"
)

// Config holds all ruleflow configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	LogLevel  string `json:"log_level"`
	LogJSON   bool   `json:"log_json"`
	EnvPrefix string `json:"env_prefix"`
	// RegexTimeout bounds a single matches evaluation, as a Go duration.
	RegexTimeout string `json:"regex_timeout"`
	Placeholder  string `json:"placeholder"`
	// OTLP exports traces over OTLP/HTTP. The endpoint comes from the
	// standard OTEL_EXPORTER_OTLP_* variables.
	OTLP bool `json:"otlp"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:     "info",
		EnvPrefix:    "RULEFLOW_VAR_",
		RegexTimeout: filter.DefaultMatchTimeout.String(),
		Placeholder:  expressions.DefaultPlaceholder,
	}
}

func ruleflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ruleflow"
	}
	return filepath.Join(home, ".ruleflow")
}

func settingsPath() string {
	return filepath.Join(ruleflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("RULEFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RULEFLOW_LOG_JSON"); v != "" {
		cfg.LogJSON = v == "true" || v == "1"
	}
	if v, ok := os.LookupEnv("RULEFLOW_ENV_PREFIX"); ok {
		cfg.EnvPrefix = v
	}
	if v := os.Getenv("RULEFLOW_REGEX_TIMEOUT"); v != "" {
		cfg.RegexTimeout = v
	}
	if v := os.Getenv("RULEFLOW_PLACEHOLDER"); v != "" {
		cfg.Placeholder = v
	}
	if v := os.Getenv("RULEFLOW_OTLP"); v != "" {
		cfg.OTLP = v == "true" || v == "1"
	}

	return cfg
}

// matchTimeout parses RegexTimeout, falling back to the filter default.
func (c Config) matchTimeout() time.Duration {
	d, err := time.ParseDuration(c.RegexTimeout)
	if err != nil || d <= 0 {
		return filter.DefaultMatchTimeout
	}
	return d
}

// env builds the $env namespace from the process environment. Only
// variables carrying EnvPrefix are exposed, with the prefix stripped.
func (c Config) env(environ []string) map[string]string {
	return expressions.EnvFromList(environ, c.EnvPrefix)
}
