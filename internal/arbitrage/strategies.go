package arbitrage

import (
	"math"

	"github.com/coinpulse/arbscan/internal/domain"
)

// ArbitrageBest scores by the cross-venue spread itself: 0.4% spread already
// lands at 90, so anything genuinely crossing venues ranks near the top.
type ArbitrageBest struct{}

func (ArbitrageBest) Name() string { return "arbitrage_best" }

func (ArbitrageBest) Score(r domain.ScanResult) float64 {
	if r.BestBuyVenue == "" || r.BestSellVenue == "" {
		return 0
	}
	return clamp(50 + r.SpreadPercent*100)
}

// Volatility scores by 24h price-change magnitude regardless of direction; a
// coin moving 10% either way maxes out.
type Volatility struct{}

func (Volatility) Name() string { return "volatility" }

func (Volatility) Score(r domain.ScanResult) float64 {
	return clamp(math.Abs(r.Change24h) * 10)
}

// Volume buckets the summed 24h quote volume across responding venues into
// liquidity tiers.
type Volume struct{}

func (Volume) Name() string { return "volume" }

func (Volume) Score(r domain.ScanResult) float64 {
	var total float64
	for _, p := range r.Prices {
		total += p.Volume24h
	}
	switch {
	case total >= 1e9:
		return 90
	case total >= 1e8:
		return 75
	case total >= 1e7:
		return 60
	case total >= 1e6:
		return 45
	case total >= 1e5:
		return 30
	default:
		return 15
	}
}

// Momentum is direction-sensitive: rising coins score above 50, falling coins
// below.
type Momentum struct{}

func (Momentum) Name() string { return "momentum" }

func (Momentum) Score(r domain.ScanResult) float64 {
	return clamp(50 + r.Change24h*5)
}
