// Package arbitrage provides selectable cross-exchange scoring strategies and
// the engine that fans ticker requests out across venues, computes best
// bid/ask crossings and ranks the results.
package arbitrage

import "github.com/coinpulse/arbscan/internal/domain"

// Strategy scores one symbol's scan result. Scores are raw; the engine adds
// market-cap and liquidity bonuses and clamps the total to [0, 100].
type Strategy interface {
	Name() string
	Score(r domain.ScanResult) float64
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
