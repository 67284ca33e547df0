// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/coinpulse/arbscan/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCAN_* environment variables.
type Config struct {
	Exchanges   ExchangesConfig `toml:"exchanges"`
	Scanner     ScannerConfig   `toml:"scanner"`
	Oracle      OracleConfig    `toml:"oracle"`
	Server      ServerConfig    `toml:"server"`
	Notify      NotifyConfig    `toml:"notify"`
	LiveTrading bool            `toml:"live_trading"`
	Mode        string          `toml:"mode"`
	LogLevel    string          `toml:"log_level"`
	LogFile     string          `toml:"log_file"`
}

// ExchangesConfig holds one section per supported venue.
type ExchangesConfig struct {
	Binance ExchangeConfig `toml:"binance"`
	Bybit   ExchangeConfig `toml:"bybit"`
	OKX     ExchangeConfig `toml:"okx"`
	KuCoin  ExchangeConfig `toml:"kucoin"`
	GateIO  ExchangeConfig `toml:"gateio"`
	Bitkub  ExchangeConfig `toml:"bitkub"`
}

// VenueSection pairs a canonical venue name with its config section.
type VenueSection struct {
	Name string
	Cfg  *ExchangeConfig
}

// Sections returns the per-venue sections in deterministic wiring order.
func (e *ExchangesConfig) Sections() []VenueSection {
	return []VenueSection{
		{"binance", &e.Binance},
		{"bybit", &e.Bybit},
		{"okx", &e.OKX},
		{"kucoin", &e.KuCoin},
		{"gateio", &e.GateIO},
		{"bitkub", &e.Bitkub},
	}
}

// ExchangeConfig holds one venue's connection parameters. Credentials are
// referenced by environment-variable name, never stored in the file.
type ExchangeConfig struct {
	DisplayName       string   `toml:"display_name"`
	BaseURL           string   `toml:"base_url"`
	APIKeyEnv         string   `toml:"api_key_env"`
	APISecretEnv      string   `toml:"api_secret_env"`
	PassphraseEnv     string   `toml:"passphrase_env"`
	RateLimitPerSec   int      `toml:"rate_limit_per_sec"`
	Timeout           duration `toml:"timeout"`
	MaxRetries        int      `toml:"max_retries"`
	TradingFeePercent float64  `toml:"trading_fee_percent"`
	Enabled           bool     `toml:"enabled"`
}

// Domain converts the TOML shape into the immutable adapter-facing config.
func (e ExchangeConfig) Domain(name string) domain.ExchangeConfig {
	return domain.ExchangeConfig{
		Name:              name,
		DisplayName:       e.DisplayName,
		BaseURL:           e.BaseURL,
		APIKeyEnv:         e.APIKeyEnv,
		APISecretEnv:      e.APISecretEnv,
		PassphraseEnv:     e.PassphraseEnv,
		RateLimitPerSec:   e.RateLimitPerSec,
		Timeout:           e.Timeout.Duration,
		MaxRetries:        e.MaxRetries,
		TradingFeePercent: e.TradingFeePercent,
		Enabled:           e.Enabled,
	}
}

// ScannerConfig holds the scan-cycle parameters.
type ScannerConfig struct {
	Strategy            string   `toml:"strategy"`
	Interval            duration `toml:"interval"`
	Pairs               []string `toml:"pairs"`
	Notional            float64  `toml:"notional"`
	RoundTripFeePercent float64  `toml:"round_trip_fee_percent"`
	MaxResults          int      `toml:"max_results"`
	AlertThreshold      float64  `toml:"alert_threshold"`
}

// OracleConfig holds the market-cap oracle parameters.
type OracleConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding ("5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. A TOML
// file and ARBSCAN_* environment variables override them selectively.
func Defaults() Config {
	ex := func(display, baseURL, envPrefix string, rate int, fee float64) ExchangeConfig {
		return ExchangeConfig{
			DisplayName:       display,
			BaseURL:           baseURL,
			APIKeyEnv:         envPrefix + "_API_KEY",
			APISecretEnv:      envPrefix + "_API_SECRET",
			RateLimitPerSec:   rate,
			Timeout:           duration{10 * time.Second},
			MaxRetries:        3,
			TradingFeePercent: fee,
			Enabled:           true,
		}
	}

	okx := ex("OKX", "https://www.okx.com", "OKX", 10, 0.08)
	okx.PassphraseEnv = "OKX_API_PASSPHRASE"
	kucoin := ex("KuCoin", "https://api.kucoin.com", "KUCOIN", 10, 0.1)
	kucoin.PassphraseEnv = "KUCOIN_API_PASSPHRASE"

	return Config{
		Exchanges: ExchangesConfig{
			Binance: ex("Binance", "https://api.binance.com", "BINANCE", 20, 0.1),
			Bybit:   ex("Bybit", "https://api.bybit.com", "BYBIT", 10, 0.1),
			OKX:     okx,
			KuCoin:  kucoin,
			GateIO:  ex("Gate.io", "https://api.gateio.ws", "GATE", 10, 0.2),
			Bitkub:  ex("Bitkub", "https://api.bitkub.com", "BITKUB", 10, 0.25),
		},
		Scanner: ScannerConfig{
			Strategy:            "arbitrage_best",
			Interval:            duration{30 * time.Second},
			Pairs:               []string{},
			Notional:            1000,
			RoundTripFeePercent: 0.2,
			MaxResults:          20,
			AlertThreshold:      70,
		},
		Oracle: OracleConfig{
			Enabled: true,
			BaseURL: "https://api.coingecko.com/api/v3",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_found", "error"},
		},
		LiveTrading: false,
		Mode:        "full",
		LogLevel:    "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":  true, // scheduler only, no HTTP surface
	"serve": true, // HTTP surface only, scan on demand
	"once":  true, // single scan cycle, print, exit
	"full":  true, // scheduler + HTTP surface
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, serve, once, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	enabled := 0
	for _, v := range c.Exchanges.Sections() {
		if !v.Cfg.Enabled {
			continue
		}
		enabled++
		if v.Cfg.RateLimitPerSec <= 0 {
			errs = append(errs, fmt.Sprintf("exchange %s: rate_limit_per_sec must be positive", v.Name))
		}
		if v.Cfg.Timeout.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("exchange %s: timeout must be positive", v.Name))
		}
		if v.Cfg.MaxRetries < 0 {
			errs = append(errs, fmt.Sprintf("exchange %s: max_retries must not be negative", v.Name))
		}
		if c.LiveTrading && v.Cfg.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("exchange %s: base_url is required for live trading", v.Name))
		}
	}
	if enabled < 2 {
		errs = append(errs, fmt.Sprintf("at least 2 exchanges must be enabled for cross-venue scanning, have %d", enabled))
	}

	if c.Scanner.Strategy == "" {
		errs = append(errs, "scanner: strategy must not be empty")
	}
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be positive")
	}
	for _, pair := range c.Scanner.Pairs {
		if _, _, err := domain.SplitSymbol(strings.ToUpper(pair)); err != nil {
			errs = append(errs, fmt.Sprintf("scanner: pair %q is not BASE/QUOTE", pair))
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EnabledExchanges returns the enabled venue names in deterministic wiring
// order.
func (c *Config) EnabledExchanges() []string {
	var names []string
	for _, v := range c.Exchanges.Sections() {
		if v.Cfg.Enabled {
			names = append(names, v.Name)
		}
	}
	return names
}
