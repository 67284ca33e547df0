package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeToml(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.False(t, cfg.LiveTrading, "simulation is the default")
	assert.Len(t, cfg.EnabledExchanges(), 6)
	assert.Equal(t, "arbitrage_best", cfg.Scanner.Strategy)
	assert.Equal(t, 30*time.Second, cfg.Scanner.Interval.Duration)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeToml(t, `
live_trading = true
mode = "scan"

[scanner]
strategy = "volatility"
interval = "5s"
pairs = ["PEPE/USDT"]

[exchanges.binance]
rate_limit_per_sec = 5

[exchanges.bitkub]
enabled = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.LiveTrading)
	assert.Equal(t, "volatility", cfg.Scanner.Strategy)
	assert.Equal(t, 5*time.Second, cfg.Scanner.Interval.Duration)
	assert.Equal(t, []string{"PEPE/USDT"}, cfg.Scanner.Pairs)
	assert.Equal(t, 5, cfg.Exchanges.Binance.RateLimitPerSec)
	assert.False(t, cfg.Exchanges.Bitkub.Enabled)
	// Untouched sections keep defaults.
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestEnvOverridesWin(t *testing.T) {
	path := writeToml(t, `mode = "scan"`)

	t.Setenv("ARBSCAN_MODE", "serve")
	t.Setenv("ARBSCAN_LIVE_TRADING", "true")
	t.Setenv("ARBSCAN_SCANNER_PAIRS", "btc/usdt, eth/usdt")
	t.Setenv("ARBSCAN_EXCHANGE_OKX_ENABLED", "false")
	t.Setenv("ARBSCAN_EXCHANGE_BINANCE_TIMEOUT", "3s")
	t.Setenv("ARBSCAN_SERVER_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.True(t, cfg.LiveTrading)
	assert.Equal(t, []string{"btc/usdt", "eth/usdt"}, cfg.Scanner.Pairs)
	assert.False(t, cfg.Exchanges.OKX.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Exchanges.Binance.Timeout.Duration)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Scanner.Interval = duration{0}
	cfg.Scanner.Pairs = []string{"BTCUSDT"}
	cfg.Exchanges.Binance.RateLimitPerSec = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "interval must be positive")
	assert.Contains(t, err.Error(), `pair "BTCUSDT"`)
	assert.Contains(t, err.Error(), "binance: rate_limit_per_sec")
}

func TestValidateRequiresTwoEnabledExchanges(t *testing.T) {
	cfg := Defaults()
	for _, v := range cfg.Exchanges.Sections() {
		if v.Name != "binance" {
			v.Cfg.Enabled = false
		}
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2 exchanges")
}

func TestEnabledExchangesSorted(t *testing.T) {
	cfg := Defaults()
	cfg.Exchanges.Bitkub.Enabled = false

	assert.Equal(t,
		[]string{"binance", "bybit", "okx", "kucoin", "gateio"},
		cfg.EnabledExchanges())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/x"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)
	// Original untouched.
	assert.Equal(t, "123:abc", cfg.Notify.TelegramToken)

	red.Scanner.Pairs = append(red.Scanner.Pairs, "X/Y")
	assert.NotContains(t, cfg.Scanner.Pairs, "X/Y")
}

func TestDomainConversion(t *testing.T) {
	cfg := Defaults()
	d := cfg.Exchanges.OKX.Domain("okx")
	assert.Equal(t, "okx", d.Name)
	assert.Equal(t, "OKX_API_PASSPHRASE", d.PassphraseEnv)
	assert.Equal(t, 10*time.Second, d.Timeout)
}
