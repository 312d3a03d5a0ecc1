package export

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stefanaltmann/markets-api/internal/market"
	"github.com/stefanaltmann/markets-api/internal/types"
	"github.com/stefanaltmann/markets-api/pkg/response"
)

// Service produces downstream read-only projections of the order and trade
// history. Exports never touch engine state: they read through the same
// derived queries the book uses.
type Service struct {
	markets *market.Service
}

// NewService creates a new export service reading from the given markets
func NewService(markets *market.Service) *Service {
	return &Service{markets: markets}
}

// AssetExport is the per-asset slice of a JSON export.
type AssetExport struct {
	Asset  string        `json:"asset"`
	Orders []types.Order `json:"orders"`
	Trades []TradeExport `json:"trades"`
}

// TradeExport flattens a trade to its order ids for export.
type TradeExport struct {
	ID             uint      `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	TakingOrderID  uint      `json:"taking_order_id"`
	MakingOrderIDs []uint    `json:"making_order_ids"`
}

// MarketData collects every asset's full order and trade history.
func (s *Service) MarketData() ([]AssetExport, error) {
	exports := make([]AssetExport, 0, len(s.markets.Assets()))
	for _, asset := range s.markets.Assets() {
		ex, err := s.markets.Exchange(asset)
		if err != nil {
			return nil, err
		}
		orders, err := ex.Orders()
		if err != nil {
			return nil, fmt.Errorf("export orders for %s: %w", asset, err)
		}
		trades, err := ex.Trades()
		if err != nil {
			return nil, fmt.Errorf("export trades for %s: %w", asset, err)
		}

		flattened := make([]TradeExport, 0, len(trades))
		for _, trade := range trades {
			entry := TradeExport{
				ID:            trade.ID,
				Timestamp:     trade.Timestamp,
				TakingOrderID: trade.TakingOrderID,
			}
			for _, maker := range trade.MakingOrders {
				entry.MakingOrderIDs = append(entry.MakingOrderIDs, maker.ID)
			}
			flattened = append(flattened, entry)
		}
		exports = append(exports, AssetExport{Asset: asset, Orders: orders, Trades: flattened})
	}
	return exports, nil
}

var orderCSVHeader = []string{
	"id", "asset", "timestamp", "price", "volume", "traded_volume",
	"is_bid", "trader_code", "type", "status", "time_inactive", "making_trade_id",
}

// OrderRows renders every asset's order history as CSV rows.
func (s *Service) OrderRows() ([][]string, error) {
	rows := [][]string{orderCSVHeader}
	for _, asset := range s.markets.Assets() {
		ex, err := s.markets.Exchange(asset)
		if err != nil {
			return nil, err
		}
		orders, err := ex.Orders()
		if err != nil {
			return nil, err
		}
		for _, order := range orders {
			timeInactive := ""
			if order.TimeInactive != nil {
				timeInactive = order.TimeInactive.Format(time.RFC3339Nano)
			}
			makingTrade := ""
			if order.MakingTradeID != nil {
				makingTrade = strconv.FormatUint(uint64(*order.MakingTradeID), 10)
			}
			rows = append(rows, []string{
				strconv.FormatUint(uint64(order.ID), 10),
				order.Asset,
				order.Timestamp.Format(time.RFC3339Nano),
				strconv.FormatInt(order.Price, 10),
				strconv.FormatInt(order.Volume, 10),
				strconv.FormatInt(order.TradedVolume, 10),
				strconv.FormatBool(order.IsBid),
				order.TraderCode,
				string(order.Type),
				string(order.Status),
				timeInactive,
				makingTrade,
			})
		}
	}
	return rows, nil
}

var tradeCSVHeader = []string{"id", "asset", "timestamp", "taking_order_id", "making_order_ids"}

// TradeRows renders every asset's trade history as CSV rows. Making order
// ids are joined with "|" inside a single cell.
func (s *Service) TradeRows() ([][]string, error) {
	rows := [][]string{tradeCSVHeader}
	for _, asset := range s.markets.Assets() {
		ex, err := s.markets.Exchange(asset)
		if err != nil {
			return nil, err
		}
		trades, err := ex.Trades()
		if err != nil {
			return nil, err
		}
		for _, trade := range trades {
			makerIDs := make([]string, 0, len(trade.MakingOrders))
			for _, maker := range trade.MakingOrders {
				makerIDs = append(makerIDs, strconv.FormatUint(uint64(maker.ID), 10))
			}
			rows = append(rows, []string{
				strconv.FormatUint(uint64(trade.ID), 10),
				trade.Asset,
				trade.Timestamp.Format(time.RFC3339Nano),
				strconv.FormatUint(uint64(trade.TakingOrderID), 10),
				strings.Join(makerIDs, "|"),
			})
		}
	}
	return rows, nil
}

// GinHandlers contains HTTP handlers for export endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for export endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func attachmentName(kind, extension string) string {
	return fmt.Sprintf("Market %s (accessed %s).%s", kind, time.Now().Format("2006-01-02"), extension)
}

// JSONExportHandler handles GET requests for the full market data dump
func (h *GinHandlers) JSONExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := h.service.MarketData()
		if err != nil {
			log.Error().Err(err).Msg("json export failed")
			response.InternalError(c, err.Error())
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachmentName("Data", "json")))
		c.JSON(http.StatusOK, data)
	}
}

func (h *GinHandlers) csvHandler(kind string, rows func() ([][]string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		table, err := rows()
		if err != nil {
			log.Error().Err(err).Str("kind", kind).Msg("csv export failed")
			response.InternalError(c, err.Error())
			return
		}

		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachmentName(kind, "csv")))
		w := csv.NewWriter(c.Writer)
		if err := w.WriteAll(table); err != nil {
			log.Error().Err(err).Str("kind", kind).Msg("csv write failed")
		}
	}
}

// OrdersCSVHandler handles GET requests for the order history as CSV
func (h *GinHandlers) OrdersCSVHandler() gin.HandlerFunc {
	return h.csvHandler("Orders", h.service.OrderRows)
}

// TradesCSVHandler handles GET requests for the trade history as CSV
func (h *GinHandlers) TradesCSVHandler() gin.HandlerFunc {
	return h.csvHandler("Trades", h.service.TradeRows)
}
