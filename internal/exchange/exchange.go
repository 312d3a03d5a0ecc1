package exchange

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stefanaltmann/markets-api/internal/types"
	"gorm.io/gorm"
)

// Exchange is a continuous double auction for a single asset. Orders are
// matched on arrival under price-time priority; resting orders wait in the
// book until a crossing order consumes them or they are canceled.
//
// Every mutating operation runs as one atomic unit: it holds the exchange's
// write lock and a single database transaction for its whole walk over the
// book, so no caller ever observes a half-applied match. Read queries share
// a read lock and may run concurrently with each other. Exchanges for
// different assets share nothing and never block each other.
type Exchange struct {
	asset string
	mu    sync.RWMutex
	db    *gorm.DB
	sink  Sink
}

// New creates an exchange scope for one asset. Confirmations are pushed to
// sink after the triggering operation commits.
func New(db *gorm.DB, asset string, sink Sink) *Exchange {
	if sink == nil {
		sink = NopSink{}
	}
	return &Exchange{asset: asset, db: db, sink: sink}
}

// Asset returns the asset this exchange trades.
func (e *Exchange) Asset() string {
	return e.asset
}

// confirmations accumulates sink notifications during a transaction so they
// are only delivered once the transaction has committed.
type confirmations struct {
	enters   []*types.Order
	trade    *types.Trade
	canceled *types.Order
}

func (e *Exchange) flush(c *confirmations) {
	for _, order := range c.enters {
		e.sink.ConfirmEnter(order)
	}
	if c.trade != nil {
		e.sink.ConfirmTrade(c.trade)
	}
	if c.canceled != nil {
		e.sink.ConfirmCancel(c.canceled)
	}
}

// EnterOrder enters a limit order. If the order crosses the opposite side of
// the book it trades immediately against resting orders in priority order;
// any remainder (and any partially filled maker's leftover) is re-entered as
// a fresh resting record carrying the original timestamp. A non-crossing
// order simply rests.
func (e *Exchange) EnterOrder(price, volume int64, isBid bool, traderCode string) error {
	logger := log.With().
		Str("asset", e.asset).
		Str("trader_code", traderCode).
		Int64("price", price).
		Int64("volume", volume).
		Bool("is_bid", isBid).
		Logger()

	e.mu.Lock()
	defer e.mu.Unlock()

	var confirmed confirmations
	err := e.db.Transaction(func(tx *gorm.DB) error {
		led := NewLedger(tx, e.asset)
		order := &types.Order{
			Timestamp:  time.Now(),
			Price:      price,
			Volume:     volume,
			IsBid:      isBid,
			TraderCode: traderCode,
			Type:       types.TypeLimit,
			Status:     types.StatusActive,
		}
		if err := led.CreateOrder(order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		crossable, err := e.crosses(led, order)
		if err != nil {
			return err
		}
		if !crossable {
			// Not aggressive enough to transact: the order rests as-is.
			// No trade record is created for a non-crossing entry.
			confirmed.enters = append(confirmed.enters, order)
			return nil
		}
		return e.executeTaker(led, order, types.StatusTradedTaker, types.StatusTradedMaker, &confirmed)
	})
	if err != nil {
		logger.Error().Err(err).Msg("order entry failed")
		return err
	}

	if confirmed.trade != nil {
		logger.Info().
			Uint("trade_id", confirmed.trade.ID).
			Int("makers", len(confirmed.trade.MakingOrders)).
			Msg("limit order transacted")
	} else {
		logger.Info().Uint("order_id", confirmed.enters[0].ID).Msg("limit order resting")
	}
	e.flush(&confirmed)
	return nil
}

// EnterMarketOrder enters an order with no price bound. Market orders never
// rest: if volume is zero or the opposite book is empty no record is created
// at all, and any volume the book cannot fill is discarded.
func (e *Exchange) EnterMarketOrder(volume int64, isBid bool, traderCode string) error {
	logger := log.With().
		Str("asset", e.asset).
		Str("trader_code", traderCode).
		Int64("volume", volume).
		Bool("is_bid", isBid).
		Logger()

	e.mu.Lock()
	defer e.mu.Unlock()

	var confirmed confirmations
	err := e.db.Transaction(func(tx *gorm.DB) error {
		led := NewLedger(tx, e.asset)
		if volume == 0 {
			return nil
		}
		opposite, err := e.bestOpposite(led, isBid)
		if err != nil {
			return err
		}
		if opposite == nil {
			return nil
		}

		order := &types.Order{
			Timestamp:  time.Now(),
			Volume:     volume,
			IsBid:      isBid,
			TraderCode: traderCode,
			Type:       types.TypeMarket,
			Status:     types.StatusMarketTaker,
		}
		if err := led.CreateOrder(order); err != nil {
			return fmt.Errorf("create market order: %w", err)
		}
		return e.executeTaker(led, order, types.StatusMarketTaker, types.StatusMarketMaker, &confirmed)
	})
	if err != nil {
		logger.Error().Err(err).Msg("market order entry failed")
		return err
	}

	if confirmed.trade == nil {
		logger.Debug().Msg("market order dropped, empty book or zero volume")
	} else {
		logger.Info().
			Uint("trade_id", confirmed.trade.ID).
			Int64("filled", confirmed.trade.TakingOrder.TradedVolume).
			Msg("market order transacted")
	}
	e.flush(&confirmed)
	return nil
}

// CancelOrder cancels a resting order. It fails with ErrOrderNotFound for an
// unknown id and ErrOrderNotActive if the order has already left the book.
func (e *Exchange) CancelOrder(orderID uint) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var confirmed confirmations
	err := e.db.Transaction(func(tx *gorm.DB) error {
		led := NewLedger(tx, e.asset)
		order, err := led.Order(orderID)
		if err != nil {
			return err
		}
		if order.Status != types.StatusActive {
			return fmt.Errorf("%w: cancel order %d in status %s", ErrOrderNotActive, orderID, order.Status)
		}
		now := time.Now()
		order.Status = types.StatusCanceled
		order.TimeInactive = &now
		if err := led.SaveOrder(order); err != nil {
			return fmt.Errorf("save canceled order: %w", err)
		}
		confirmed.canceled = order
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("asset", e.asset).
		Uint("order_id", orderID).
		Str("trader_code", confirmed.canceled.TraderCode).
		Msg("order canceled")
	e.flush(&confirmed)
	return nil
}

// AcceptImmediate trades directly with one resting order, bypassing the
// priority queue. A new taker is synthesized on the opposite side at the
// accepted order's own price and full volume, so the accepted order is
// always filled in one shot.
func (e *Exchange) AcceptImmediate(acceptedOrderID uint, takerTraderCode string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var confirmed confirmations
	err := e.db.Transaction(func(tx *gorm.DB) error {
		led := NewLedger(tx, e.asset)
		accepted, err := led.Order(acceptedOrderID)
		if err != nil {
			return err
		}
		if accepted.Status != types.StatusActive {
			return fmt.Errorf("%w: accept order %d in status %s", ErrOrderNotActive, acceptedOrderID, accepted.Status)
		}

		taker := &types.Order{
			Timestamp:    time.Now(),
			Price:        accepted.Price,
			Volume:       accepted.Volume,
			TradedVolume: accepted.Volume,
			IsBid:        !accepted.IsBid,
			TraderCode:   takerTraderCode,
			Type:         types.TypeLimit,
			Status:       types.StatusAcceptedTaker,
		}
		if err := led.CreateOrder(taker); err != nil {
			return fmt.Errorf("create accepting order: %w", err)
		}

		trade := &types.Trade{Timestamp: time.Now(), TakingOrderID: taker.ID}
		if err := led.CreateTrade(trade); err != nil {
			return fmt.Errorf("create trade: %w", err)
		}

		accepted.Status = types.StatusAcceptedMaker
		accepted.TimeInactive = &trade.Timestamp
		accepted.MakingTradeID = &trade.ID
		accepted.TradedVolume = accepted.Volume
		if err := led.SaveOrder(accepted); err != nil {
			return fmt.Errorf("save accepted order: %w", err)
		}

		trade.TakingOrder = taker
		trade.MakingOrders = []types.Order{*accepted}
		confirmed.trade = trade
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("asset", e.asset).
		Uint("accepted_order_id", acceptedOrderID).
		Str("taker_trader_code", takerTraderCode).
		Uint("trade_id", confirmed.trade.ID).
		Msg("order accepted directly")
	e.flush(&confirmed)
	return nil
}

// crosses reports whether a freshly entered limit order can transact against
// the best order on the opposite side.
func (e *Exchange) crosses(led *Ledger, order *types.Order) (bool, error) {
	best, err := e.bestOpposite(led, order.IsBid)
	if err != nil || best == nil {
		return false, err
	}
	if order.IsBid {
		return order.Price >= best.Price, nil
	}
	return order.Price <= best.Price, nil
}

func (e *Exchange) bestOpposite(led *Ledger, isBid bool) (*types.Order, error) {
	if isBid {
		return led.BestAsk()
	}
	return led.BestBid()
}

// executeTaker creates a trade for the taker and walks the opposite side of
// the book in priority order, consuming resting orders while the taker has
// volume left and, for limit takers, while the resting price still crosses.
// Partially consumed makers have their leftover re-entered as a new record;
// the taker's own leftover is re-entered for limit orders and discarded for
// market orders.
func (e *Exchange) executeTaker(led *Ledger, taker *types.Order, takerStatus, makerStatus types.OrderStatus, confirmed *confirmations) error {
	trade := &types.Trade{Timestamp: time.Now(), TakingOrderID: taker.ID}
	if err := led.CreateTrade(trade); err != nil {
		return fmt.Errorf("create trade: %w", err)
	}

	book, err := e.oppositeBook(led, taker.IsBid)
	if err != nil {
		return err
	}

	remaining := taker.Volume
	for i := range book {
		maker := &book[i]
		if remaining == 0 {
			break
		}
		if taker.Type == types.TypeLimit && !priceCrosses(taker, maker) {
			break
		}

		if remaining >= maker.Volume {
			remaining -= maker.Volume
			maker.TradedVolume = maker.Volume
		} else {
			if err := e.enterRemainder(led, maker, maker.Volume-remaining, confirmed); err != nil {
				return err
			}
			maker.TradedVolume = remaining
			remaining = 0
		}
		maker.MakingTradeID = &trade.ID
		maker.Status = makerStatus
		maker.TimeInactive = &trade.Timestamp
		if err := led.SaveOrder(maker); err != nil {
			return fmt.Errorf("save making order: %w", err)
		}
		trade.MakingOrders = append(trade.MakingOrders, *maker)
	}

	if remaining > 0 && taker.Type == types.TypeLimit {
		// The walk stopped on price, not exhaustion: the taker's leftover
		// rests at its own timestamp. Market-order leftovers are discarded.
		if err := e.enterRemainder(led, taker, remaining, confirmed); err != nil {
			return err
		}
	}

	taker.TradedVolume = taker.Volume - remaining
	taker.Status = takerStatus
	taker.TimeInactive = &trade.Timestamp
	if err := led.SaveOrder(taker); err != nil {
		return fmt.Errorf("save taking order: %w", err)
	}

	trade.TakingOrder = taker
	confirmed.trade = trade
	return nil
}

func (e *Exchange) oppositeBook(led *Ledger, isBid bool) ([]types.Order, error) {
	if isBid {
		return led.ActiveAsks()
	}
	return led.ActiveBids()
}

// priceCrosses reports whether a limit taker may still trade with the next
// resting order during a walk.
func priceCrosses(taker, maker *types.Order) bool {
	if taker.IsBid {
		return taker.Price >= maker.Price
	}
	return taker.Price <= maker.Price
}

// enterRemainder re-enters the unfilled part of an order as a brand-new
// ACTIVE record. The new record keeps the original's price, side, trader and
// timestamp; only the id and volume differ. The original record is never
// resized, which keeps the order history fully auditable.
func (e *Exchange) enterRemainder(led *Ledger, order *types.Order, volume int64, confirmed *confirmations) error {
	remainder := &types.Order{
		Timestamp:  order.Timestamp,
		Price:      order.Price,
		Volume:     volume,
		IsBid:      order.IsBid,
		TraderCode: order.TraderCode,
		Type:       types.TypeLimit,
		Status:     types.StatusActive,
	}
	if err := led.CreateOrder(remainder); err != nil {
		return fmt.Errorf("re-enter remainder: %w", err)
	}
	confirmed.enters = append(confirmed.enters, remainder)
	return nil
}

// Bids returns the active bids, best first.
func (e *Exchange) Bids() ([]types.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return NewLedger(e.db, e.asset).ActiveBids()
}

// Asks returns the active asks, best first.
func (e *Exchange) Asks() ([]types.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return NewLedger(e.db, e.asset).ActiveAsks()
}

// BestBid returns the current best bid, or nil if no bid is resting.
func (e *Exchange) BestBid() (*types.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return NewLedger(e.db, e.asset).BestBid()
}

// BestAsk returns the current best ask, or nil if no ask is resting.
func (e *Exchange) BestAsk() (*types.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return NewLedger(e.db, e.asset).BestAsk()
}

// Order looks up one order by id.
func (e *Exchange) Order(orderID uint) (*types.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return NewLedger(e.db, e.asset).Order(orderID)
}

// Orders returns the complete order history for this asset.
func (e *Exchange) Orders() ([]types.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return NewLedger(e.db, e.asset).Orders()
}

// Trades returns all trades for this asset in timestamp order.
func (e *Exchange) Trades() ([]types.Trade, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return NewLedger(e.db, e.asset).Trades()
}
