package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/stefanaltmann/markets-api/internal/auth"
	"github.com/stefanaltmann/markets-api/internal/config"
	"github.com/stefanaltmann/markets-api/internal/database"
	"github.com/stefanaltmann/markets-api/internal/export"
	"github.com/stefanaltmann/markets-api/internal/feed"
	"github.com/stefanaltmann/markets-api/internal/market"
	"github.com/stefanaltmann/markets-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the markets server with graceful shutdown
// support: one continuous double auction exchange per configured asset, a
// websocket confirmation feed and CSV/JSON exports over the shared ledger.
func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && os.Getenv("DEBUG") != "true" {
		zerolog.SetGlobalLevel(level)
	}

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	router := gin.Default()

	// Confirmations flow from every exchange into the websocket feed.
	hub := feed.NewHub()

	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	for _, trader := range cfg.Traders {
		authService.RegisterTrader(trader.APIKey, trader.APISecret, trader.TraderCode)
	}

	marketService := market.NewService(db, cfg.Assets, hub)
	marketHandlers := market.NewGinHandlers(marketService)

	exportService := export.NewService(marketService)
	exportHandlers := export.NewGinHandlers(exportService)

	router.Use(middleware.RateLimit())

	setupRoutes(router, cfg.JWTSecret, authHandlers, marketHandlers, exportHandlers, hub)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		zlog.Info().
			Str("addr", cfg.HTTPAddr).
			Strs("assets", cfg.Assets).
			Msg("markets server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: public endpoints for token generation
// - Market routes: order entry and cancellation, protected by JWT
// - Read routes: book snapshots, trades and exports
// - Feed route: websocket confirmation stream
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	marketHandlers *market.GinHandlers,
	exportHandlers *export.GinHandlers,
	hub *feed.Hub,
) {
	v1 := router.Group("/api/v1")
	{
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/token", authHandlers.GenerateTokenHandler())
		}

		markets := v1.Group("/markets")
		markets.Use(middleware.JWTAuth(jwtSecret))
		{
			markets.GET("", marketHandlers.ListAssetsHandler())
			markets.POST("/:asset/orders", marketHandlers.EnterOrderHandler())
			markets.POST("/:asset/market-orders", marketHandlers.EnterMarketOrderHandler())
			markets.DELETE("/:asset/orders/:order_id", marketHandlers.CancelOrderHandler())
			markets.POST("/:asset/orders/:order_id/accept", marketHandlers.AcceptOrderHandler())
			markets.GET("/:asset/orders/:order_id", marketHandlers.GetOrderHandler())
			markets.GET("/:asset/book", marketHandlers.GetBookHandler())
			markets.GET("/:asset/trades", marketHandlers.GetTradesHandler())
			markets.GET("/:asset/state", marketHandlers.GetMarketStateHandler())
		}

		exports := v1.Group("/export")
		{
			exports.GET("/json", exportHandlers.JSONExportHandler())
			exports.GET("/csv/orders", exportHandlers.OrdersCSVHandler())
			exports.GET("/csv/trades", exportHandlers.TradesCSVHandler())
		}

		v1.GET("/feed/:asset", hub.SubscribeHandler())
	}
}
