package types

import (
	"time"
)

// OrderStatus tracks an order through its lifecycle. ACTIVE is the only
// non-terminal status; every other status is final and an order transitions
// at most once.
type OrderStatus string

const (
	StatusActive        OrderStatus = "ACTIVE"
	StatusCanceled      OrderStatus = "CANCELED"
	StatusTradedTaker   OrderStatus = "TRADED_TAKER"
	StatusTradedMaker   OrderStatus = "TRADED_MAKER"
	StatusMarketTaker   OrderStatus = "MARKET_TAKER"
	StatusMarketMaker   OrderStatus = "MARKET_MAKER"
	StatusAcceptedTaker OrderStatus = "ACCEPTED_TAKER"
	StatusAcceptedMaker OrderStatus = "ACCEPTED_MAKER"
)

// Terminal reports whether the status is final.
func (s OrderStatus) Terminal() bool {
	return s != StatusActive
}

// OrderType distinguishes priced limit orders from market orders. A market
// order has no price bound: its stored price is informational only and the
// matching engine never compares it against the book.
type OrderType string

const (
	TypeLimit  OrderType = "LIMIT"
	TypeMarket OrderType = "MARKET"
)

// Order is a single order record. Records are append-only: price, volume,
// side, trader and timestamp never change after creation. When part of an
// order's volume lives on unfilled (a partially filled maker, or the resting
// remainder of a limit taker) a brand-new record is created for the leftover
// carrying the original timestamp, so time priority survives re-entry.
type Order struct {
	ID           uint        `gorm:"primarykey" json:"id"`
	Asset        string      `gorm:"index" json:"asset"`
	Timestamp    time.Time   `json:"timestamp"`
	Price        int64       `json:"price"`
	Volume       int64       `json:"volume"`
	TradedVolume int64       `json:"traded_volume"`
	IsBid        bool        `json:"is_bid"`
	TraderCode   string      `json:"trader_code"`
	Type         OrderType   `json:"type"`
	Status       OrderStatus `gorm:"index" json:"status"`
	TimeInactive *time.Time  `json:"time_inactive,omitempty"`

	// MakingTradeID links a maker-side terminal order back to the trade
	// that consumed it.
	MakingTradeID *uint `json:"making_trade_id,omitempty"`
}

// Trade is one matching event: a single taking order executed against one or
// more resting making orders. Its timestamp doubles as the time_inactive
// stamp for every order the trade touched.
type Trade struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	Asset         string    `gorm:"index" json:"asset"`
	Timestamp     time.Time `json:"timestamp"`
	TakingOrderID uint      `json:"taking_order_id"`
	TakingOrder   *Order    `gorm:"foreignKey:TakingOrderID" json:"taking_order,omitempty"`
	MakingOrders  []Order   `gorm:"foreignKey:MakingTradeID" json:"making_orders,omitempty"`
}
