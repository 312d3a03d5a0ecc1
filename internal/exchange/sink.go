package exchange

import "github.com/stefanaltmann/markets-api/internal/types"

// Sink receives confirmations from the matching engine. Implementations are
// fire-and-forget: the engine calls them after the triggering operation has
// fully committed and never inspects a result. A trade confirmation carries
// the taking order plus every making order with its filled volume.
type Sink interface {
	ConfirmEnter(order *types.Order)
	ConfirmTrade(trade *types.Trade)
	ConfirmCancel(order *types.Order)
}

// NopSink discards all confirmations.
type NopSink struct{}

func (NopSink) ConfirmEnter(*types.Order)  {}
func (NopSink) ConfirmTrade(*types.Trade)  {}
func (NopSink) ConfirmCancel(*types.Order) {}
