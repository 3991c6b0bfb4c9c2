package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alim08/treasury_line/pkg/auth"
	"github.com/alim08/treasury_line/pkg/config"
	"github.com/alim08/treasury_line/pkg/database"
	"github.com/alim08/treasury_line/pkg/feed"
	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/market"
	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/redisclient"
	"github.com/alim08/treasury_line/pkg/trading"
	"github.com/alim08/treasury_line/pkg/yieldcurve"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := logger.Init("treasury-api"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Log.Sync()
	log := logger.Log

	log.Info("starting treasury API server")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	log.Info("configuration loaded",
		zap.String("store", cfg.Store),
		zap.Bool("simulate", cfg.Simulate),
		zap.Bool("auth", cfg.AuthEnabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()

	st, err := database.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err), zap.String("store", cfg.Store))
	}
	defer st.Close()

	checks := []healthCheck{{name: "redis", check: rdb.Ping}}
	if st.DB != nil {
		checks = append(checks, healthCheck{name: "database", check: st.DB.HealthCheck})
	}

	feedPub := market.NewRedisFeed(rdb)
	sim := market.NewSimulator(st.Bonds, feedPub, nil)
	if _, err := sim.Initialize(ctx); err != nil {
		log.Fatal("failed to initialize market data", zap.Error(err))
	}

	trades := trading.NewService(st.Trades,
		trading.WithBonds(st.Bonds),
		trading.WithPublisher(trading.NewRedisPublisher(rdb)),
		trading.WithAutoExecute(cfg.AutoExecute))

	var authService *auth.Service
	if cfg.AuthEnabled {
		authService, err = auth.NewService(auth.NewConfig())
		if err != nil {
			log.Fatal("failed to initialize authentication service", zap.Error(err))
		}
	}

	hub := feed.NewHub(cfg.CORSOrigins)
	view := newMarketView(cfg.HighlightTTL)

	canvas := yieldcurve.DefaultCanvas()
	canvas.Width, canvas.Height = float64(cfg.ChartWidth), float64(cfg.ChartHeight)

	srv := &Server{
		bonds:   st.Bonds,
		trades:  trades,
		sim:     sim,
		cache:   feedPub,
		feed:    hub,
		auth:    authService,
		view:    view,
		canvas:  canvas,
		origins: cfg.CORSOrigins,
		checks:  checks,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Every background loop shares one lifetime; the first failure stops
	// the rest.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return feed.NewBridge(hub, rdb.Subscribe(gctx, models.Topics...), view.observe).Run(gctx)
	})
	if cfg.Simulate {
		g.Go(func() error {
			sim.Run(gctx, cfg.SimInterval)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
	}
	log.Info("server exited")
}
