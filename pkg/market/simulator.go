package market

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/alim08/treasury_line/pkg/database"
	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/metrics"
	"github.com/alim08/treasury_line/pkg/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// One sigma moves price by 0.05% and yield by 0.02% of their level.
	priceVolatility = 0.0005
	yieldVolatility = 0.0002

	priceScale = 4
	yieldScale = 6

	// DefaultInterval is how often Run steps the market.
	DefaultInterval = 2 * time.Second
)

// halfSpread is 1/8th of a point split across bid and ask, kept at price scale.
var halfSpread = decimal.RequireFromString("0.0125").DivRound(decimal.NewFromInt(2), priceScale)

// Publisher pushes snapshots to subscribers.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap models.MarketSnapshot) error
}

// Simulator random-walks the stored bonds and publishes every step.
type Simulator struct {
	bonds database.BondRepository
	pub   Publisher

	mu  sync.Mutex
	rng *rand.Rand
	seq int64
	now func() time.Time
}

// NewSimulator builds a simulator over bonds. A nil src seeds from the clock;
// a nil pub saves without publishing.
func NewSimulator(bonds database.BondRepository, pub Publisher, src rand.Source) *Simulator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Simulator{
		bonds: bonds,
		pub:   pub,
		rng:   rand.New(src),
		now:   time.Now,
	}
}

// Initialize seeds the store when it holds no bonds and reports how many
// bonds were written.
func (s *Simulator) Initialize(ctx context.Context) (int, error) {
	n, err := s.bonds.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count bonds: %w", err)
	}
	if n > 0 {
		logger.Log.Debug("bonds already initialized", zap.Int("count", n))
		return 0, nil
	}

	seed := Seed(s.now().UTC())
	if err := s.bonds.SaveAll(ctx, seed); err != nil {
		return 0, fmt.Errorf("seed bonds: %w", err)
	}
	logger.Log.Info("seeded on-the-run bonds", zap.Int("count", len(seed)))
	return len(seed), nil
}

// Step moves every bond once, saves the result and publishes it.
func (s *Simulator) Step(ctx context.Context) (models.MarketSnapshot, error) {
	start := time.Now()
	defer func() {
		metrics.SimulatorLatency.Observe(time.Since(start).Seconds())
	}()

	bonds, err := s.bonds.List(ctx)
	if err != nil {
		metrics.SimulatorErrors.Inc()
		return models.MarketSnapshot{}, fmt.Errorf("list bonds: %w", err)
	}

	s.mu.Lock()
	now := s.now().UTC()
	for i := range bonds {
		s.move(&bonds[i], now)
	}
	s.seq++
	snap := models.MarketSnapshot{Sequence: s.seq, Timestamp: now, Bonds: bonds}
	s.mu.Unlock()

	if err := s.bonds.SaveAll(ctx, bonds); err != nil {
		metrics.SimulatorErrors.Inc()
		return snap, fmt.Errorf("save bonds: %w", err)
	}
	if s.pub != nil {
		if err := s.pub.PublishSnapshot(ctx, snap); err != nil {
			metrics.SimulatorErrors.Inc()
			return snap, fmt.Errorf("publish snapshot: %w", err)
		}
	}

	metrics.SimulatorTicks.Inc()
	return snap, nil
}

// move applies one random step to b. Callers hold s.mu.
func (s *Simulator) move(b *models.Bond, now time.Time) {
	oldPrice := decimal.NewFromFloat(float64(b.Price))
	oldYield := decimal.NewFromFloat(float64(b.Yield))

	priceShock := s.rng.NormFloat64() * priceVolatility
	yieldShock := s.rng.NormFloat64() * yieldVolatility

	price := oldPrice.Mul(decimal.NewFromFloat(1 + priceShock)).Round(priceScale)
	yield := oldYield.Mul(decimal.NewFromFloat(1 + yieldShock)).Round(yieldScale)

	b.Price = models.Points(price.InexactFloat64())
	b.Yield = models.PercentPoints(yield.InexactFloat64())
	b.PriceChange = models.Points(price.Sub(oldPrice).InexactFloat64())
	b.YieldChange = models.PercentPoints(yield.Sub(oldYield).InexactFloat64())
	b.BidPrice = models.Points(price.Sub(halfSpread).InexactFloat64())
	b.AskPrice = models.Points(price.Add(halfSpread).InexactFloat64())
	b.Volume += int64(s.rng.Intn(1000) + 100)
	b.LastUpdated = now
}

// Run steps the market every interval until ctx is cancelled. Failed steps
// are logged and the loop carries on.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger.Log.Info("market simulator started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("market simulator stopped")
			return
		case <-ticker.C:
			snap, err := s.Step(ctx)
			if err != nil {
				logger.Log.Warn("market step failed", zap.Error(err))
				continue
			}
			logger.Log.Debug("market step", zap.Int64("seq", snap.Sequence), zap.Int("bonds", len(snap.Bonds)))
		}
	}
}
