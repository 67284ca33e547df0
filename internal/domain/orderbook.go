package domain

import "time"

// OrderBookEntry is a single price level.
type OrderBookEntry struct {
	Price    float64
	Quantity float64
}

// OrderBook is one exchange's depth snapshot for a canonical symbol. Bids are
// ordered by descending price, asks by ascending price.
type OrderBook struct {
	Symbol    string
	Exchange  string
	Bids      []OrderBookEntry
	Asks      []OrderBookEntry
	Timestamp time.Time
}

// BestBid returns the highest bid, or a zero entry when the book is empty.
func (b OrderBook) BestBid() OrderBookEntry {
	if len(b.Bids) == 0 {
		return OrderBookEntry{}
	}
	return b.Bids[0]
}

// BestAsk returns the lowest ask, or a zero entry when the book is empty.
func (b OrderBook) BestAsk() OrderBookEntry {
	if len(b.Asks) == 0 {
		return OrderBookEntry{}
	}
	return b.Asks[0]
}
