package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution type.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus tracks the canonical order lifecycle:
//
//	Pending → {Open, PartiallyFilled} → {Filled | Cancelled | Rejected | Expired | Error}
//
// Exchange-specific status vocabularies are mapped onto this set by each
// adapter; anything an adapter does not recognize maps to OrderStatusError,
// never silently to Pending.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusError           OrderStatus = "error"
)

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected,
		OrderStatusExpired, OrderStatusError:
		return true
	}
	return false
}

// OrderRequest is the caller's intent passed to Exchange.PlaceOrder.
type OrderRequest struct {
	Symbol        string // canonical BASE/QUOTE
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	Price         float64 // required for limit orders, ignored for market
	ClientOrderID string  // optional; adapters generate one when empty
}

// Order reflects authoritative exchange state for a placed order. It is
// created on placement and mutated only through adapter calls (cancel,
// refresh) that re-read that state.
type Order struct {
	ID            string
	ClientOrderID string
	Exchange      string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Status        OrderStatus
	Quantity      float64 // requested base quantity
	FilledQty     float64
	Price         float64 // requested price (limit) or 0 (market)
	AvgPrice      float64 // average fill price
	Fee           float64
	FeeCurrency   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
