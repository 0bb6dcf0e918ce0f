package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/api"
	"github.com/hyeonwoo-dev/kiwoom-trader/internal/auth"
	"github.com/hyeonwoo-dev/kiwoom-trader/internal/broker"
	"github.com/hyeonwoo-dev/kiwoom-trader/internal/config"
	"github.com/hyeonwoo-dev/kiwoom-trader/internal/history"
	"github.com/hyeonwoo-dev/kiwoom-trader/internal/strategy"
	"github.com/hyeonwoo-dev/kiwoom-trader/internal/trading"
	"github.com/hyeonwoo-dev/kiwoom-trader/pkg/middleware"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}
}

// main initializes and runs the trading server with graceful shutdown
// support. The broker session, execution pipeline, auto-policy loop and API
// routes are wired here.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applyLogLevel(cfg.Log.Level)

	// Broker session. The simulated session stands in for the OpenAPI
	// bridge; it answers sends asynchronously and pushes fills unsolicited,
	// just like the real one.
	simCfg := broker.DefaultSimConfig()
	if cfg.Broker.SimMinLatency > 0 {
		simCfg.MinLatency = cfg.Broker.SimMinLatency
	}
	if cfg.Broker.SimMaxLatency > 0 {
		simCfg.MaxLatency = cfg.Broker.SimMaxLatency
	}
	simCfg.RejectRate = cfg.Broker.SimRejectRate
	session := broker.NewSimSession(simCfg)

	// Trading pipeline.
	store := trading.NewOrderStore()
	balances := trading.NewBalanceBook()
	notifier := trading.NewNotifier()
	bridge := trading.NewSyncBridge(session, cfg.Broker.BridgeTimeout)
	gateway := trading.NewGateway(bridge, store, cfg.Broker.Screen)
	policies := trading.NewPolicyEngine(store, gateway)

	recorder, err := history.NewRecorder(cfg.Store.HistoryDir)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize history recorder")
	}
	analytics := history.NewAnalytics(recorder)

	listener := trading.NewExecutionListener(store, balances, policies, notifier, recorder)
	listener.Bind(session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := session.Connect(ctx); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to connect broker session")
	}
	go policies.Start(ctx, cfg.Policy.TickInterval)

	// Advisory signals from balance-push prices. Logged only; nothing is
	// submitted on their behalf.
	advisor := strategy.NewBollingerReversion(0, 0)
	advisorSub, advisorCancel := notifier.Subscribe(64)
	defer advisorCancel()
	go advisor.WatchBalances(advisorSub, func(code string, sig strategy.Signal, price int64) {
		zlog.Info().
			Str("code", code).
			Str("signal", sig.String()).
			Int64("price", price).
			Msg("Mean-reversion signal")
	})

	// Auth and HTTP surface.
	authService := auth.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	handlers := api.NewGinHandlers(gateway, store, policies, balances, notifier, analytics, cfg.Broker.Account)

	router := gin.Default()
	router.Use(middleware.RateLimit())
	api.SetupRoutes(router, authHandlers, handlers, authService.Secret())

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()
	zlog.Info().Str("port", cfg.Server.Port).Msg("Server started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	cancel()
	if err := session.Close(); err != nil {
		zlog.Warn().Err(err).Msg("Broker session close")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

func applyLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
