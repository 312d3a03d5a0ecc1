package exchange

import (
	"errors"
	"fmt"

	"github.com/stefanaltmann/markets-api/internal/types"
	"gorm.io/gorm"
)

var (
	// ErrOrderNotFound is returned when an order id does not resolve within
	// this exchange scope.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderNotActive is returned when an operation targets an order whose
	// status is already terminal (double cancel, accepting a filled order).
	ErrOrderNotActive = errors.New("order is not active")
)

// Ledger is the append-only order store for a single asset. The book is not
// a maintained structure: active bids and asks are derived projections,
// recomputed from order status on every query, so they can never drift from
// the order history.
type Ledger struct {
	db    *gorm.DB
	asset string
}

func NewLedger(db *gorm.DB, asset string) *Ledger {
	return &Ledger{db: db, asset: asset}
}

func (l *Ledger) scope() *gorm.DB {
	return l.db.Where("asset = ?", l.asset)
}

// ActiveBids returns all resting bids in priority order: descending price,
// ties broken by ascending timestamp then id. A re-entered remainder keeps
// its original timestamp but takes a fresh id, so it queues behind
// same-timestamp equals and ahead of later arrivals.
func (l *Ledger) ActiveBids() ([]types.Order, error) {
	var bids []types.Order
	err := l.scope().
		Where("is_bid = ? AND status = ?", true, types.StatusActive).
		Order("price DESC, timestamp ASC, id ASC").
		Find(&bids).Error
	return bids, err
}

// ActiveAsks returns all resting asks in priority order: ascending price,
// then ascending timestamp and id.
func (l *Ledger) ActiveAsks() ([]types.Order, error) {
	var asks []types.Order
	err := l.scope().
		Where("is_bid = ? AND status = ?", false, types.StatusActive).
		Order("price ASC, timestamp ASC, id ASC").
		Find(&asks).Error
	return asks, err
}

// BestBid returns the highest-priority resting bid, or nil if there is none.
func (l *Ledger) BestBid() (*types.Order, error) {
	var bid types.Order
	err := l.scope().
		Where("is_bid = ? AND status = ?", true, types.StatusActive).
		Order("price DESC, timestamp ASC, id ASC").
		First(&bid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// BestAsk returns the highest-priority resting ask, or nil if there is none.
func (l *Ledger) BestAsk() (*types.Order, error) {
	var ask types.Order
	err := l.scope().
		Where("is_bid = ? AND status = ?", false, types.StatusActive).
		Order("price ASC, timestamp ASC, id ASC").
		First(&ask).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ask, nil
}

// Order looks up a single order by id within this asset scope.
func (l *Ledger) Order(orderID uint) (*types.Order, error) {
	var order types.Order
	err := l.scope().Where("id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Orders returns the full order history for this asset, oldest first.
func (l *Ledger) Orders() ([]types.Order, error) {
	var orders []types.Order
	err := l.scope().Order("id ASC").Find(&orders).Error
	return orders, err
}

// Trades returns all trades for this asset in timestamp order, with the
// taking order and making orders attached.
func (l *Ledger) Trades() ([]types.Trade, error) {
	var trades []types.Trade
	err := l.scope().
		Preload("TakingOrder").
		Preload("MakingOrders").
		Order("timestamp ASC, id ASC").
		Find(&trades).Error
	return trades, err
}

func (l *Ledger) CreateOrder(order *types.Order) error {
	order.Asset = l.asset
	return l.db.Create(order).Error
}

func (l *Ledger) SaveOrder(order *types.Order) error {
	return l.db.Save(order).Error
}

func (l *Ledger) CreateTrade(trade *types.Trade) error {
	trade.Asset = l.asset
	return l.db.Create(trade).Error
}
