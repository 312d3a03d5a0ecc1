package market

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stefanaltmann/markets-api/internal/auth"
	"github.com/stefanaltmann/markets-api/internal/exchange"
	"github.com/stefanaltmann/markets-api/internal/types"
	"github.com/stefanaltmann/markets-api/pkg/response"
)

// GinHandlers contains HTTP handlers for market endpoints. The trader code
// behind every mutating request is taken from the JWT claims, never from the
// request body.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for market endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) exchangeFor(c *gin.Context) (*exchange.Exchange, bool) {
	ex, err := h.service.Exchange(c.Param("asset"))
	if err != nil {
		response.NotFound(c, err.Error())
		return nil, false
	}
	return ex, true
}

func traderCode(c *gin.Context) (string, bool) {
	claims, exists := c.Get("claims")
	if !exists {
		response.Unauthorized(c, "Missing authentication claims")
		return "", false
	}
	code := auth.GetTraderCode(claims)
	if code == "" {
		response.Unauthorized(c, "Invalid trader code in token")
		return "", false
	}
	return code, true
}

func orderIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("order_id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "Invalid order id")
		return 0, false
	}
	return uint(id), true
}

// handleExchangeError maps engine errors onto HTTP responses: unresolvable
// ids are 404s, operations against terminal orders are state conflicts.
func handleExchangeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, exchange.ErrOrderNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, exchange.ErrOrderNotActive):
		response.InvalidState(c, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}

// ListAssetsHandler handles GET requests for the configured assets
func (h *GinHandlers) ListAssetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, gin.H{"assets": h.service.Assets()})
	}
}

// EnterOrderHandler handles POST requests to enter a limit order
func (h *GinHandlers) EnterOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ex, ok := h.exchangeFor(c)
		if !ok {
			return
		}
		trader, ok := traderCode(c)
		if !ok {
			return
		}

		var req types.EnterOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := ex.EnterOrder(req.Price, req.Volume, *req.IsBid, trader); err != nil {
			handleExchangeError(c, err)
			return
		}
		response.Success(c, gin.H{"asset": ex.Asset()})
	}
}

// EnterMarketOrderHandler handles POST requests to enter a market order
func (h *GinHandlers) EnterMarketOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ex, ok := h.exchangeFor(c)
		if !ok {
			return
		}
		trader, ok := traderCode(c)
		if !ok {
			return
		}

		var req types.EnterMarketOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := ex.EnterMarketOrder(req.Volume, *req.IsBid, trader); err != nil {
			handleExchangeError(c, err)
			return
		}
		response.Success(c, gin.H{"asset": ex.Asset()})
	}
}

// CancelOrderHandler handles DELETE requests to cancel a resting order.
// Traders may only cancel their own orders.
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ex, ok := h.exchangeFor(c)
		if !ok {
			return
		}
		trader, ok := traderCode(c)
		if !ok {
			return
		}
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}

		order, err := ex.Order(orderID)
		if err != nil {
			handleExchangeError(c, err)
			return
		}
		if order.TraderCode != trader {
			response.Forbidden(c, "Order belongs to another trader")
			return
		}

		if err := ex.CancelOrder(orderID); err != nil {
			handleExchangeError(c, err)
			return
		}
		response.Success(c, gin.H{"order_id": orderID})
	}
}

// AcceptOrderHandler handles POST requests to trade directly with one
// resting order, bypassing the priority queue
func (h *GinHandlers) AcceptOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ex, ok := h.exchangeFor(c)
		if !ok {
			return
		}
		trader, ok := traderCode(c)
		if !ok {
			return
		}
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}

		if err := ex.AcceptImmediate(orderID, trader); err != nil {
			handleExchangeError(c, err)
			return
		}
		response.Success(c, gin.H{"order_id": orderID})
	}
}

// GetOrderHandler handles GET requests for a single order
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ex, ok := h.exchangeFor(c)
		if !ok {
			return
		}
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}

		order, err := ex.Order(orderID)
		if err != nil {
			handleExchangeError(c, err)
			return
		}
		response.Success(c, order)
	}
}

// GetBookHandler handles GET requests for the current book snapshot
func (h *GinHandlers) GetBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ex, ok := h.exchangeFor(c)
		if !ok {
			return
		}

		bids, err := ex.Bids()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		asks, err := ex.Asks()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, types.BookResponse{Asset: ex.Asset(), Bids: bids, Asks: asks})
	}
}

// GetTradesHandler handles GET requests for an asset's trade history
func (h *GinHandlers) GetTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ex, ok := h.exchangeFor(c)
		if !ok {
			return
		}

		trades, err := ex.Trades()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, trades)
	}
}

// GetMarketStateHandler handles GET requests for the full state a trading
// screen needs on connect: both book sides plus the trade history
func (h *GinHandlers) GetMarketStateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ex, ok := h.exchangeFor(c)
		if !ok {
			return
		}

		bids, err := ex.Bids()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		asks, err := ex.Asks()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		trades, err := ex.Trades()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, types.MarketStateResponse{
			Asset:  ex.Asset(),
			Bids:   bids,
			Asks:   asks,
			Trades: trades,
		})
	}
}
