package domain

import "time"

// Ticker is a single exchange's top-of-book snapshot for one canonical
// symbol. Tickers are ephemeral: rebuilt every poll cycle and never mutated
// after construction.
type Ticker struct {
	Symbol    string // canonical BASE/QUOTE
	Exchange  string
	Bid       float64
	BidQty    float64
	Ask       float64
	AskQty    float64
	Last      float64
	Volume24h float64
	Timestamp time.Time
}

// Normalize enforces the bid ≤ ask invariant. A crossed book coming out of an
// exchange is source garbage, not an opportunity; both sides are zeroed so the
// aggregator skips the venue for this cycle.
func (t Ticker) Normalize() Ticker {
	if t.Bid > 0 && t.Ask > 0 && t.Bid > t.Ask {
		t.Bid = 0
		t.BidQty = 0
		t.Ask = 0
		t.AskQty = 0
	}
	return t
}

// HasBothSides reports whether the ticker carries a usable bid and ask.
func (t Ticker) HasBothSides() bool {
	return t.Bid > 0 && t.Ask > 0
}
