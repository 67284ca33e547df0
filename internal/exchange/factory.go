// Package exchange resolves logical exchange names to adapter instances.
package exchange

import (
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/coinpulse/arbscan/internal/domain"
	"github.com/coinpulse/arbscan/internal/exchange/binance"
	"github.com/coinpulse/arbscan/internal/exchange/bitkub"
	"github.com/coinpulse/arbscan/internal/exchange/bybit"
	"github.com/coinpulse/arbscan/internal/exchange/gateio"
	"github.com/coinpulse/arbscan/internal/exchange/generic"
	"github.com/coinpulse/arbscan/internal/exchange/kucoin"
	"github.com/coinpulse/arbscan/internal/exchange/okx"
	"github.com/coinpulse/arbscan/internal/exchange/sim"
)

type constructor func(domain.ExchangeConfig, *slog.Logger) domain.Exchange

var constructors = map[string]constructor{
	"binance": func(c domain.ExchangeConfig, l *slog.Logger) domain.Exchange { return binance.New(c, l) },
	"bybit":   func(c domain.ExchangeConfig, l *slog.Logger) domain.Exchange { return bybit.New(c, l) },
	"okx":     func(c domain.ExchangeConfig, l *slog.Logger) domain.Exchange { return okx.New(c, l) },
	"kucoin":  func(c domain.ExchangeConfig, l *slog.Logger) domain.Exchange { return kucoin.New(c, l) },
	"gateio":  func(c domain.ExchangeConfig, l *slog.Logger) domain.Exchange { return gateio.New(c, l) },
	"bitkub":  func(c domain.ExchangeConfig, l *slog.Logger) domain.Exchange { return bitkub.New(c, l) },
}

var aliases = map[string]string{
	"gate":    "gateio",
	"gate.io": "gateio",
}

// detectable are the venues the legacy A/B roles may resolve to by substring
// match on the configured display name.
var detectable = []string{"binance", "bybit", "okx", "kucoin"}

// New resolves cfg to an adapter. Names are case-insensitive and accept the
// legacy aliases (gate, gate.io, and the generic "a"/"b" roles). When live
// trading is off every name resolves to the simulation adapter, seeded with
// the venue's fee and a deterministic per-venue price bias so simulated
// venues disagree with each other the way real ones do.
func New(cfg domain.ExchangeConfig, liveTrading bool, logger *slog.Logger) domain.Exchange {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}

	if !liveTrading {
		simCfg := cfg
		simCfg.Name = name
		return sim.New(simCfg, logger,
			sim.WithPriceBias(priceBias(name)))
	}

	if ctor, ok := constructors[name]; ok {
		return ctor(cfg, logger)
	}

	// Legacy "Exchange A" / "Exchange B" roles carry a free-form display
	// name; try to spot a known venue inside it before giving up.
	if name == "a" || name == "b" || strings.HasPrefix(name, "exchange") {
		display := strings.ToLower(cfg.DisplayName)
		for _, known := range detectable {
			if strings.Contains(display, known) {
				detected := cfg
				detected.Name = known
				logger.Info("detected concrete exchange for generic role",
					slog.String("role", cfg.Name),
					slog.String("detected", known))
				return constructors[known](detected, logger)
			}
		}
	}

	logger.Warn("unknown exchange name, using placeholder adapter",
		slog.String("name", cfg.Name))
	return generic.New(cfg, logger)
}

// Supported lists the canonical names backed by a live adapter.
func Supported() []string {
	return []string{"binance", "bybit", "okx", "kucoin", "gateio", "bitkub"}
}

// priceBias maps a venue name to a stable bias in (−0.5%, +0.5%).
func priceBias(name string) float64 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return float64(h.Sum32()%100)/100 - 0.5
}
