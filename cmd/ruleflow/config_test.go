package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	"RULEFLOW_LOG_LEVEL",
	"RULEFLOW_LOG_JSON",
	"RULEFLOW_ENV_PREFIX",
	"RULEFLOW_REGEX_TIMEOUT",
	"RULEFLOW_PLACEHOLDER",
	"RULEFLOW_OTLP",
}

// isolate points HOME at a temp dir and clears ruleflow env vars.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range configEnvVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	return home
}

func writeSettings(t *testing.T, home, body string) {
	t.Helper()
	dir := filepath.Join(home, ".ruleflow")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(body), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg := loadConfig()
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "RULEFLOW_VAR_", cfg.EnvPrefix)
	assert.Equal(t, "<value>", cfg.Placeholder)
	assert.Equal(t, 100*time.Millisecond, cfg.matchTimeout())
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	home := isolate(t)
	writeSettings(t, home, `{"log_level": "debug", "regex_timeout": "250ms", "placeholder": "?"}`)

	cfg := loadConfig()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.matchTimeout())
	assert.Equal(t, "?", cfg.Placeholder)
	assert.Equal(t, "RULEFLOW_VAR_", cfg.EnvPrefix)
}

func TestLoadConfig_EnvOverridesSettings(t *testing.T) {
	home := isolate(t)
	writeSettings(t, home, `{"log_level": "debug", "env_prefix": "APP_"}`)
	t.Setenv("RULEFLOW_LOG_LEVEL", "error")
	t.Setenv("RULEFLOW_LOG_JSON", "1")
	t.Setenv("RULEFLOW_ENV_PREFIX", "")
	t.Setenv("RULEFLOW_REGEX_TIMEOUT", "2s")
	t.Setenv("RULEFLOW_PLACEHOLDER", "N/A")
	t.Setenv("RULEFLOW_OTLP", "true")

	cfg := loadConfig()
	assert.Equal(t, "error", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, "", cfg.EnvPrefix, "an explicitly empty prefix exposes every variable")
	assert.Equal(t, 2*time.Second, cfg.matchTimeout())
	assert.Equal(t, "N/A", cfg.Placeholder)
	assert.True(t, cfg.OTLP)
}

func TestLoadConfig_MalformedSettingsIgnored(t *testing.T) {
	home := isolate(t)
	writeSettings(t, home, `{not json`)
	assert.Equal(t, defaultConfig(), loadConfig())
}

func TestConfig_MatchTimeoutFallback(t *testing.T) {
	for _, raw := range []string{"", "soon", "-5ms", "0s"} {
		cfg := Config{RegexTimeout: raw}
		assert.Equal(t, 100*time.Millisecond, cfg.matchTimeout(), raw)
	}
}

func TestConfig_Env(t *testing.T) {
	environ := []string{"RULEFLOW_VAR_LIMIT=50000", "RULEFLOW_VAR_REGION=eu", "PATH=/bin", "RULEFLOW_VAR_="}

	cfg := Config{EnvPrefix: "RULEFLOW_VAR_"}
	assert.Equal(t, map[string]string{"LIMIT": "50000", "REGION": "eu"}, cfg.env(environ))

	all := Config{}.env(environ)
	assert.Equal(t, "/bin", all["PATH"])
	assert.Len(t, all, 4)
}
