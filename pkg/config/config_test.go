package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
inference:
  base_url: https://llm.example.com/v1
  api_key: file-key
  model: m-file
  timeout_ms: 30000
budget:
  limit: 10
  window_ms: 60000
risk_profile: alert
streams:
  - symbol: BTCUSDT
    timeframe: 15m
policy:
  strong_momentum_rsi: 55
  symbols:
    ETHUSDT:
      volatility: HIGH
      context: breakout
journal_dir: data/journal
dry_run: false
sinks:
  alert_webhook: https://hooks.example.com/x
`

// clearEnv 屏蔽宿主环境中的同名变量
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"INFERENCE_API_KEY", "INFERENCE_BASE_URL", "INFERENCE_MODEL", "INFERENCE_TIMEOUT_MS",
		"CALL_BUDGET_LIMIT", "CALL_BUDGET_WINDOW_MS", "CALL_BUDGET_WAIT_MS", "RISK_PROFILE",
		"MONITORED_SYMBOLS", "DRY_RUN", "EXECUTOR_URL", "ALERT_WEBHOOK_URL", "WEBHOOK_LISTEN", "FEED_WS_URL",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFromFile_YAML(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromFile(writeFile(t, "config.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://llm.example.com/v1", cfg.Inference.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, 10, cfg.Budget.Limit)
	assert.Equal(t, time.Second, cfg.Budget.Wait, "unset values fall back to defaults")
	assert.Equal(t, "alert", cfg.RiskProfile)
	assert.Equal(t, []StreamConfig{{Symbol: "BTCUSDT", Timeframe: "15m"}}, cfg.Streams)
	assert.Equal(t, 55.0, cfg.Policy.StrongMomentumRSI)
	assert.Equal(t, "HIGH", cfg.Policy.Symbols["ETHUSDT"].Volatility)
	assert.False(t, cfg.DryRun)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("INFERENCE_API_KEY", "env-key")
	t.Setenv("CALL_BUDGET_LIMIT", "3")
	t.Setenv("RISK_PROFILE", "SCALP")
	t.Setenv("MONITORED_SYMBOLS", "ethusdt:1h, SOLUSDT")
	t.Setenv("DRY_RUN", "true")

	cfg, err := LoadFromFile(writeFile(t, "config.yml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Inference.APIKey)
	assert.Equal(t, 3, cfg.Budget.Limit)
	assert.Equal(t, "scalp", cfg.RiskProfile)
	assert.Equal(t, []StreamConfig{{Symbol: "ETHUSDT", Timeframe: "1h"}, {Symbol: "SOLUSDT"}}, cfg.Streams)
	assert.True(t, cfg.DryRun)
}

func TestLoadFromFile_NoFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Budget.Limit)
	assert.Equal(t, time.Minute, cfg.Budget.Window)
	assert.Equal(t, 120*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, "scalp", cfg.RiskProfile)
	assert.True(t, cfg.DryRun)
	assert.Error(t, cfg.Validate(), "api key is required")
}

func TestLoadFromFile_JSONAndBadExtension(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromFile(writeFile(t, "c.json", `{"inference":{"api_key":"k"},"budget":{"limit":7}}`))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Budget.Limit)

	_, err = LoadFromFile(writeFile(t, "c.toml", "x=1"))
	assert.Error(t, err)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	valid := func() *Config {
		cfg, err := LoadFromFile("")
		require.NoError(t, err)
		cfg.Inference.APIKey = "k"
		return cfg
	}
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.DryRun = false
	assert.Error(t, cfg.Validate(), "live mode needs a downstream sink")

	cfg = valid()
	cfg.Streams = []StreamConfig{{Timeframe: "1h"}}
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Policy.StrongMomentumRSI = 120
	assert.Error(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("SIGNALBOT_DOTENV_MARKER", "")
	os.Unsetenv("SIGNALBOT_DOTENV_MARKER")
	p := writeFile(t, ".env", "SIGNALBOT_DOTENV_MARKER=loaded\n")

	LoadDotEnv("", filepath.Join(t.TempDir(), "absent.env"), p)

	assert.Equal(t, "loaded", os.Getenv("SIGNALBOT_DOTENV_MARKER"))
}
