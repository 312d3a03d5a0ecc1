package market

import (
	"errors"
	"fmt"
	"sort"

	"github.com/stefanaltmann/markets-api/internal/exchange"
	"gorm.io/gorm"
)

// ErrUnknownAsset is returned when a request names an asset no exchange was
// configured for.
var ErrUnknownAsset = errors.New("unknown asset")

// Service hosts one exchange per configured asset. Exchanges are fully
// independent: each serializes its own mutations and shares no state with
// its siblings, so markets in different assets run in parallel.
type Service struct {
	exchanges map[string]*exchange.Exchange
	assets    []string
}

// NewService builds an exchange for every asset, all backed by the same
// database and pushing confirmations into the same sink.
func NewService(db *gorm.DB, assets []string, sink exchange.Sink) *Service {
	s := &Service{
		exchanges: make(map[string]*exchange.Exchange, len(assets)),
		assets:    make([]string, 0, len(assets)),
	}
	for _, asset := range assets {
		if _, dup := s.exchanges[asset]; dup {
			continue
		}
		s.exchanges[asset] = exchange.New(db, asset, sink)
		s.assets = append(s.assets, asset)
	}
	sort.Strings(s.assets)
	return s
}

// Assets lists the configured assets in sorted order.
func (s *Service) Assets() []string {
	return s.assets
}

// Exchange resolves the exchange trading the given asset.
func (s *Service) Exchange(asset string) (*exchange.Exchange, error) {
	ex, ok := s.exchanges[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return ex, nil
}
