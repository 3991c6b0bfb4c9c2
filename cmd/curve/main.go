package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alim08/treasury_line/pkg/config"
	"github.com/alim08/treasury_line/pkg/feed"
	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/yieldcurve"
	"go.uber.org/zap"
)

// curve follows the market-data feed and keeps an SVG of the latest yield
// curve on disk.
func main() {
	if err := logger.Init("treasury-curve"); err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Log.Sync()

	cfg, err := config.LoadClient()
	if err != nil {
		logger.Log.Fatal("config load error", zap.Error(err))
	}

	canvas := yieldcurve.DefaultCanvas()
	canvas.Width, canvas.Height = float64(cfg.ChartWidth), float64(cfg.ChartHeight)
	if err := canvas.Validate(); err != nil {
		logger.Log.Fatal("bad chart size", zap.Error(err))
	}
	w := &curveWriter{path: cfg.CurveOut, canvas: canvas, renderer: yieldcurve.SVGRenderer{}}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := &feed.Subscriber{
		URL: cfg.FeedURL + "?topics=" + models.TopicMarketData,
		OnSnapshot: func(snap models.MarketSnapshot) {
			g, err := w.write(snap)
			if err != nil {
				logger.Log.Warn("curve update failed", zap.Int64("seq", snap.Sequence), zap.Error(err))
				return
			}
			logger.Log.Info("yield curve",
				zap.Int64("seq", snap.Sequence),
				zap.String("curve", summary(snap.Bonds)),
				zap.Int("skipped", len(g.Skipped)),
				zap.String("out", cfg.CurveOut))
		},
	}

	logger.Log.Info("following market data", zap.String("feed", cfg.FeedURL), zap.String("out", cfg.CurveOut))
	if err := sub.Run(ctx); err != nil {
		logger.Log.Error("feed subscriber stopped", zap.Error(err))
		return
	}
	logger.Log.Info("shutdown signal received, exiting")
}
