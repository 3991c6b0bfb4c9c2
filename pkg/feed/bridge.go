package feed

import (
	"context"
	"errors"

	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrSourceClosed means the pub/sub channel closed underneath the bridge.
var ErrSourceClosed = errors.New("pubsub channel closed")

// Source yields pub/sub messages.
type Source interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

var _ Source = (*redis.PubSub)(nil)

// Observer sees every message the bridge forwards. It runs on the bridge
// goroutine and must not block.
type Observer func(topic string, payload []byte)

// Bridge forwards pub/sub messages to the hub unchanged.
type Bridge struct {
	hub       *Hub
	src       Source
	observers []Observer
}

func NewBridge(hub *Hub, src Source, observers ...Observer) *Bridge {
	return &Bridge{hub: hub, src: src, observers: observers}
}

// Run forwards until ctx is cancelled or the source closes, then closes
// the source.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.src.Close()
	ch := b.src.Channel()
	logger.Log.Info("feed bridge started")

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("feed bridge stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return ErrSourceClosed
			}
			payload := []byte(msg.Payload)
			for _, observe := range b.observers {
				observe(msg.Channel, payload)
			}
			if !b.hub.Broadcast(ctx, msg.Channel, payload) {
				return nil
			}
			logger.Log.Debug("forwarded", zap.String("topic", msg.Channel), zap.Int("bytes", len(msg.Payload)))
		}
	}
}
