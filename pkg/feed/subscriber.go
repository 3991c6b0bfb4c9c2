package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/metrics"
	"github.com/alim08/treasury_line/pkg/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Subscriber reads the feed over a websocket and reconnects with
// exponential backoff until its context ends.
type Subscriber struct {
	URL    string
	Dialer *websocket.Dialer

	// OnSnapshot receives every market-data message.
	OnSnapshot func(models.MarketSnapshot)
	// OnTrade receives every trades message. Optional.
	OnTrade func(models.TradeEvent)

	// MaxInterval caps the reconnect delay. Zero keeps the backoff default.
	MaxInterval time.Duration
}

// Run blocks until ctx is cancelled. It only returns a non-nil error when
// the context error is not the cause.
func (s *Subscriber) Run(ctx context.Context) error {
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 0
	if s.MaxInterval > 0 {
		eb.MaxInterval = s.MaxInterval
	}
	bo := backoff.WithContext(eb, ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		if attempt > 0 {
			metrics.FeedReconnects.Inc()
		}
		attempt++

		logger.Log.Info("dialing websocket", zap.String("url", s.URL))
		conn, _, err := dialer.DialContext(ctx, s.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			logger.Log.Warn("ws dial error", zap.Error(err))
			return err
		}
		defer conn.Close()

		// unblock ReadJSON on cancel
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		eb.Reset()
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(ctx.Err())
				}
				logger.Log.Warn("ws read error", zap.Error(err))
				return err
			}
			s.dispatch(msg)
		}
	}, bo)

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("websocket subscriber stopped: %w", err)
	}
	return nil
}

func (s *Subscriber) dispatch(msg Message) {
	switch msg.Topic {
	case models.TopicMarketData:
		if s.OnSnapshot == nil {
			return
		}
		snap, err := models.MarketSnapshotFromJSON(msg.Data)
		if err != nil {
			logger.Log.Warn("bad snapshot", zap.Error(err))
			return
		}
		s.OnSnapshot(snap)

	case models.TopicTrades:
		if s.OnTrade == nil {
			return
		}
		var ev models.TradeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger.Log.Warn("bad trade event", zap.Error(err))
			return
		}
		s.OnTrade(ev)
	}
}
