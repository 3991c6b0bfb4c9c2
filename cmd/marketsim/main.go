package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alim08/treasury_line/pkg/config"
	"github.com/alim08/treasury_line/pkg/database"
	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/market"
	"github.com/alim08/treasury_line/pkg/metrics"
	"github.com/alim08/treasury_line/pkg/redisclient"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// marketsim drives the market on its own so the API can run with
// SIMULATE=false. Both should share the postgres store.
func main() {
	// 1. Init logger
	if err := logger.Init("treasury-marketsim"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Log.Sync()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("config load error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect to Redis and the store
	rdb, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()

	st, err := database.OpenStore(ctx, cfg.Store)
	if err != nil {
		logger.Log.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	if cfg.Migrate != "" {
		if st.DB == nil {
			logger.Log.Fatal("-migrate needs the postgres store", zap.String("store", cfg.Store))
		}
		if err := runMigration(ctx, st.DB, cfg.Migrate, os.Stdout); err != nil {
			logger.Log.Fatal("migration task failed", zap.String("task", cfg.Migrate), zap.Error(err))
		}
		return
	}

	// 4. Metrics endpoint
	go startMetricsServer(cfg.MetricsPort)

	// 5. Seed and run until signalled
	sim := market.NewSimulator(st.Bonds, market.NewRedisFeed(rdb), nil)
	n, err := sim.Initialize(ctx)
	if err != nil {
		logger.Log.Fatal("failed to initialize market data", zap.Error(err))
	}
	logger.Log.Info("market data ready", zap.Int("seeded", n), zap.Duration("interval", cfg.SimInterval))

	sim.Run(ctx, cfg.SimInterval)
	logger.Log.Info("shutdown signal received, exiting")
}

func startMetricsServer(port int) {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Log.Info("metrics server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Log.Warn("metrics server stopped", zap.Error(err))
	}
}
