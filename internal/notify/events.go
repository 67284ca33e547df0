package notify

import (
	"fmt"
	"strings"

	"github.com/coinpulse/arbscan/internal/domain"
)

// Event types raised by the scanner.
const (
	EventOpportunityFound = "opportunity_found"
	EventError            = "error"
)

// FormatOpportunity renders a ranked scan result as a notification
// title/message pair.
func FormatOpportunity(r domain.ScanResult) (title, message string) {
	title = fmt.Sprintf("Arbitrage opportunity: %s (score %.0f)", r.Symbol, r.Score)

	var b strings.Builder
	fmt.Fprintf(&b, "Buy on %s at %.8g, sell on %s at %.8g\n",
		r.BestBuyVenue, r.BestBuyPrice, r.BestSellVenue, r.BestSellPrice)
	fmt.Fprintf(&b, "Spread: %.4f%%  Est. profit: %.2f\n", r.SpreadPercent, r.EstProfit)
	fmt.Fprintf(&b, "Strategy: %s  Venues: %d", r.Strategy, len(r.Prices))
	return title, b.String()
}
