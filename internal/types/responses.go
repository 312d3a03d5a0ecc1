package types

// EnterOrderRequest is the payload for entering a limit order.
type EnterOrderRequest struct {
	Price  int64 `json:"price"`
	Volume int64 `json:"volume" binding:"required,gt=0"`
	IsBid  *bool `json:"is_bid" binding:"required"`
}

// EnterMarketOrderRequest is the payload for entering a market order.
type EnterMarketOrderRequest struct {
	Volume int64 `json:"volume" binding:"gte=0"`
	IsBid  *bool `json:"is_bid" binding:"required"`
}

// BookResponse is a snapshot of one asset's resting orders, best price first.
type BookResponse struct {
	Asset string  `json:"asset"`
	Bids  []Order `json:"bids"`
	Asks  []Order `json:"asks"`
}

// MarketStateResponse bundles the book snapshot with the asset's full trade
// history, mirroring what a trading screen needs on (re)connect.
type MarketStateResponse struct {
	Asset  string  `json:"asset"`
	Bids   []Order `json:"bids"`
	Asks   []Order `json:"asks"`
	Trades []Trade `json:"trades"`
}
