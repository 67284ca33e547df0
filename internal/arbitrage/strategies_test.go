package arbitrage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/arbscan/internal/domain"
)

func crossed(spreadPct float64) domain.ScanResult {
	return domain.ScanResult{
		BestBuyVenue:  "a",
		BestSellVenue: "b",
		SpreadPercent: spreadPct,
	}
}

func TestArbitrageBestExample(t *testing.T) {
	// 0.4% spread → min(100, 50 + 0.4×100) = 90.
	assert.Equal(t, 90.0, ArbitrageBest{}.Score(crossed(0.4)))
}

func TestArbitrageBestNeedsCrossing(t *testing.T) {
	assert.Equal(t, 0.0, ArbitrageBest{}.Score(domain.ScanResult{SpreadPercent: 0.4}))
}

func TestVolatilityIgnoresDirection(t *testing.T) {
	up := Volatility{}.Score(domain.ScanResult{Change24h: 3})
	down := Volatility{}.Score(domain.ScanResult{Change24h: -3})
	assert.Equal(t, up, down)
	assert.Equal(t, 30.0, up)
}

func TestMomentumIsDirectional(t *testing.T) {
	up := Momentum{}.Score(domain.ScanResult{Change24h: 4})
	down := Momentum{}.Score(domain.ScanResult{Change24h: -4})
	assert.Equal(t, 70.0, up)
	assert.Equal(t, 30.0, down)
	assert.Greater(t, up, down)
}

func TestVolumeTiers(t *testing.T) {
	cases := []struct {
		volume float64
		want   float64
	}{
		{2e9, 90},
		{5e8, 75},
		{3e7, 60},
		{2e6, 45},
		{5e5, 30},
		{100, 15},
	}
	for _, tc := range cases {
		r := domain.ScanResult{Prices: []domain.ExchangePrice{{Volume24h: tc.volume}}}
		assert.Equal(t, tc.want, Volume{}.Score(r), "volume %g", tc.volume)
	}
}

func TestScoresAlwaysClamped(t *testing.T) {
	inputs := []domain.ScanResult{
		crossed(1e9),
		crossed(-1e9),
		{Change24h: math.MaxFloat64},
		{Change24h: -math.MaxFloat64},
		{Change24h: 1e6},
		{Prices: []domain.ExchangePrice{{Volume24h: math.MaxFloat64}}},
		{},
	}
	reg := NewRegistry()
	for _, name := range reg.List() {
		s, err := reg.Get(name)
		require.NoError(t, err)
		for _, in := range inputs {
			score := clamp(s.Score(in))
			assert.GreaterOrEqual(t, score, 0.0, name)
			assert.LessOrEqual(t, score, 100.0, name)
		}
	}
}

func TestRegistryListsBuiltins(t *testing.T) {
	assert.Equal(t,
		[]string{"arbitrage_best", "momentum", "volatility", "volume"},
		NewRegistry().List())
}

func TestRegistryUnknownStrategy(t *testing.T) {
	_, err := NewRegistry().Get("nope")
	assert.Error(t, err)
}
