package domain

import "time"

// ExchangePrice is one venue's contribution to a scan cycle for one symbol.
type ExchangePrice struct {
	Exchange  string
	Bid       float64
	Ask       float64
	Volume24h float64
	Spread    float64 // own-book ask−bid gap in percent of ask
	Stale     bool
}

// ScanResult is the scored outcome of one symbol in one scan cycle. Results
// are recomputed from scratch each cycle; prior results are replaced, never
// merged.
type ScanResult struct {
	ID             string
	Symbol         string
	Prices         []ExchangePrice
	BestBuyVenue   string  // venue with the minimum ask
	BestBuyPrice   float64 // that ask
	BestSellVenue  string  // venue with the maximum bid
	BestSellPrice  float64 // that bid
	SpreadPercent  float64
	EstProfit      float64 // on the configured notional, net of round-trip fee
	Score          float64 // strategy score, clamped to [0,100]
	Strategy       string
	Recommended    bool
	Change24h      float64 // from the market-cap oracle, 0 when unknown
	MarketCapRank  int     // 0 when unknown
	Timestamp      time.Time
}

// Coin is a row from the market-cap/volume oracle.
type Coin struct {
	Symbol        string
	Name          string
	Price         float64
	Change24h     float64
	Volume24h     float64
	MarketCapRank int
	ImageURL      string
}
