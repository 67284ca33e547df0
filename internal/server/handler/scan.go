package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coinpulse/arbscan/internal/arbitrage"
)

// ScanHandler exposes the scan engine's query surface over HTTP.
type ScanHandler struct {
	engine   *arbitrage.Engine
	strategy string // default strategy when the query omits one
	logger   *slog.Logger
}

// NewScanHandler creates a ScanHandler bound to the engine. defaultStrategy
// is used when a request does not name one.
func NewScanHandler(engine *arbitrage.Engine, defaultStrategy string, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{
		engine:   engine,
		strategy: defaultStrategy,
		logger:   logger.With(slog.String("handler", "scan")),
	}
}

// Scan runs one scan cycle and returns the ranked results.
// GET /api/v1/scan?strategy=arbitrage_best
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	strategy := r.URL.Query().Get("strategy")
	if strategy == "" {
		strategy = h.strategy
	}

	results, err := h.engine.Scan(r.Context(), strategy)
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return // client went away
		}
		h.logger.Error("scan failed", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"strategy": strategy,
		"results":  results,
	})
}

// ScanAll runs every strategy and returns the per-symbol best results.
// GET /api/v1/scan/all
func (h *ScanHandler) ScanAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.engine.ScanAllStrategies(r.Context())
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return
		}
		h.logger.Error("scan all failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Coin analyzes one symbol on demand.
// GET /api/v1/coins/{symbol}  (symbol is a base asset like BTC, or BASE-QUOTE)
func (h *ScanHandler) Coin(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}
	// Path segments cannot carry "/", so BASE-QUOTE stands in for BASE/QUOTE.
	symbol = strings.ReplaceAll(symbol, "-", "/")

	result, err := h.engine.AnalyzeCoin(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "not enough venues responded for "+symbol)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Best returns the cached top opportunity of the last completed cycle.
// GET /api/v1/best
func (h *ScanHandler) Best(w http.ResponseWriter, r *http.Request) {
	best := h.engine.GetBestOpportunity()
	if best == nil {
		writeError(w, http.StatusNotFound, "no completed scan cycle yet")
		return
	}
	writeJSON(w, http.StatusOK, best)
}

// Exchanges reports each venue's availability.
// GET /api/v1/exchanges
func (h *ScanHandler) Exchanges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"exchanges":  h.engine.ExchangeStatus(),
		"strategies": h.engine.Strategies(),
	})
}
