package trading

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/redisclient"
)

// RedisPublisher sends trade events on the trades channel.
type RedisPublisher struct {
	rdb *redisclient.Client
}

func NewRedisPublisher(rdb *redisclient.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) PublishTrade(ctx context.Context, ev models.TradeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal trade event: %w", err)
	}
	return p.rdb.Publish(ctx, models.TopicTrades, payload)
}
