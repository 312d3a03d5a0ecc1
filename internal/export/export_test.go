package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stefanaltmann/markets-api/internal/market"
	"github.com/stefanaltmann/markets-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testService(t *testing.T) (*Service, *market.Service) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Order{}, &types.Trade{}))

	markets := market.NewService(db, []string{"A", "B"}, nil)
	return NewService(markets), markets
}

func seedMarket(t *testing.T, markets *market.Service) {
	t.Helper()
	ex, err := markets.Exchange("A")
	require.NoError(t, err)
	require.NoError(t, ex.EnterOrder(10, 5, true, "t1"))
	require.NoError(t, ex.EnterOrder(10, 3, false, "t2"))
}

func TestMarketDataExport(t *testing.T) {
	service, markets := testService(t)
	seedMarket(t, markets)

	data, err := service.MarketData()
	require.NoError(t, err)
	require.Len(t, data, 2)

	assert.Equal(t, "A", data[0].Asset)
	// Original bid, ask taker, re-entered bid remainder.
	assert.Len(t, data[0].Orders, 3)
	require.Len(t, data[0].Trades, 1)
	assert.Len(t, data[0].Trades[0].MakingOrderIDs, 1)

	assert.Equal(t, "B", data[1].Asset)
	assert.Empty(t, data[1].Orders)
	assert.Empty(t, data[1].Trades)
}

func TestOrderCSVRows(t *testing.T) {
	service, markets := testService(t)
	seedMarket(t, markets)

	rows, err := service.OrderRows()
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus three order records")
	assert.Equal(t, orderCSVHeader, rows[0])

	// Every row carries every field of the order model.
	for _, row := range rows[1:] {
		require.Len(t, row, len(orderCSVHeader))
	}
	assert.Equal(t, "TRADED_MAKER", rows[1][9])
	assert.Equal(t, "TRADED_TAKER", rows[2][9])
	assert.Equal(t, "ACTIVE", rows[3][9])
	assert.Equal(t, "", rows[3][10], "active orders have no time_inactive")
}

func TestTradeCSVRows(t *testing.T) {
	service, markets := testService(t)
	seedMarket(t, markets)

	rows, err := service.TradeRows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, tradeCSVHeader, rows[0])
	assert.Equal(t, "1", rows[1][4], "single making order id")
}

func TestExportHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service, markets := testService(t)
	seedMarket(t, markets)

	handlers := NewGinHandlers(service)
	router := gin.New()
	router.GET("/export/json", handlers.JSONExportHandler())
	router.GET("/export/csv/orders", handlers.OrdersCSVHandler())
	router.GET("/export/csv/trades", handlers.TradesCSVHandler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export/json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	var data []AssetExport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	require.Len(t, data, 2)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export/csv/orders", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export/csv/trades", nil))
	require.Equal(t, http.StatusOK, w.Code)

	records, err = csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
}
