package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSCAN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators flip switches at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchanges ──
	for _, v := range cfg.Exchanges.Sections() {
		prefix := "ARBSCAN_EXCHANGE_" + strings.ToUpper(v.Name) + "_"
		setBool(&v.Cfg.Enabled, prefix+"ENABLED")
		setStr(&v.Cfg.BaseURL, prefix+"BASE_URL")
		setInt(&v.Cfg.RateLimitPerSec, prefix+"RATE_LIMIT_PER_SEC")
		setInt(&v.Cfg.MaxRetries, prefix+"MAX_RETRIES")
		setDuration(&v.Cfg.Timeout, prefix+"TIMEOUT")
		setFloat64(&v.Cfg.TradingFeePercent, prefix+"TRADING_FEE_PERCENT")
	}

	// ── Scanner ──
	setStr(&cfg.Scanner.Strategy, "ARBSCAN_SCANNER_STRATEGY")
	setDuration(&cfg.Scanner.Interval, "ARBSCAN_SCANNER_INTERVAL")
	setStringSlice(&cfg.Scanner.Pairs, "ARBSCAN_SCANNER_PAIRS")
	setFloat64(&cfg.Scanner.Notional, "ARBSCAN_SCANNER_NOTIONAL")
	setFloat64(&cfg.Scanner.RoundTripFeePercent, "ARBSCAN_SCANNER_ROUND_TRIP_FEE_PERCENT")
	setInt(&cfg.Scanner.MaxResults, "ARBSCAN_SCANNER_MAX_RESULTS")
	setFloat64(&cfg.Scanner.AlertThreshold, "ARBSCAN_SCANNER_ALERT_THRESHOLD")

	// ── Oracle ──
	setBool(&cfg.Oracle.Enabled, "ARBSCAN_ORACLE_ENABLED")
	setStr(&cfg.Oracle.BaseURL, "ARBSCAN_ORACLE_BASE_URL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBSCAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBSCAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBSCAN_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBSCAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBSCAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBSCAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBSCAN_NOTIFY_EVENTS")

	// ── Top-level ──
	setBool(&cfg.LiveTrading, "ARBSCAN_LIVE_TRADING")
	setStr(&cfg.Mode, "ARBSCAN_MODE")
	setStr(&cfg.LogLevel, "ARBSCAN_LOG_LEVEL")
	setStr(&cfg.LogFile, "ARBSCAN_LOG_FILE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
