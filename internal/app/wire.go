package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coinpulse/arbscan/internal/arbitrage"
	"github.com/coinpulse/arbscan/internal/config"
	"github.com/coinpulse/arbscan/internal/domain"
	"github.com/coinpulse/arbscan/internal/exchange"
	"github.com/coinpulse/arbscan/internal/notify"
	"github.com/coinpulse/arbscan/internal/oracle"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	Exchanges []domain.Exchange
	Engine    *arbitrage.Engine
	Notifier  *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Exchange adapters ---
	for _, sec := range cfg.Exchanges.Sections() {
		if !sec.Cfg.Enabled {
			continue
		}
		ex := exchange.New(sec.Cfg.Domain(sec.Name), cfg.LiveTrading, logger)
		if err := ex.Connect(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: connect %s: %w", ex.Name(), err)
		}
		closers = append(closers, func() { _ = ex.Disconnect() })
		deps.Exchanges = append(deps.Exchanges, ex)
	}
	if len(deps.Exchanges) < 2 {
		cleanup()
		return nil, nil, fmt.Errorf("wire: need at least 2 enabled exchanges, have %d", len(deps.Exchanges))
	}

	// --- Market-cap oracle (optional) ---
	var mcOracle arbitrage.Oracle
	if cfg.Oracle.Enabled {
		mcOracle = oracle.New(cfg.Oracle.BaseURL, logger)
	}

	// --- Scan engine ---
	deps.Engine = arbitrage.NewEngine(deps.Exchanges, arbitrage.NewRegistry(), mcOracle,
		arbitrage.Options{
			Notional:            cfg.Scanner.Notional,
			RoundTripFeePercent: cfg.Scanner.RoundTripFeePercent,
			MaxResults:          cfg.Scanner.MaxResults,
			AlertThreshold:      cfg.Scanner.AlertThreshold,
			Pairs:               cfg.Scanner.Pairs,
		}, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	// The same opportunity can be rediscovered every cycle; cap alert spam.
	deps.Notifier.SetRepeatGap(5 * time.Minute)

	return deps, cleanup, nil
}
