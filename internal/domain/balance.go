package domain

import "time"

// AssetBalance is one asset's holdings on one exchange. Total covers both the
// freely available amount and whatever is locked in open orders, so
// Total ≥ Available always holds.
type AssetBalance struct {
	Asset     string
	Available float64
	Total     float64
}

// Locked returns the amount reserved by open orders.
func (b AssetBalance) Locked() float64 {
	return b.Total - b.Available
}

// AccountBalance is the full per-asset balance set of one exchange account.
type AccountBalance struct {
	Exchange  string
	Assets    map[string]AssetBalance
	Timestamp time.Time
}

// Get returns the balance for asset (case-insensitive via upper-cased keys);
// a zero-value balance when the asset is unknown.
func (a AccountBalance) Get(asset string) AssetBalance {
	if b, ok := a.Assets[asset]; ok {
		return b
	}
	return AssetBalance{Asset: asset}
}
