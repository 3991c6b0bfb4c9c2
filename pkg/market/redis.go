package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/redisclient"
)

// DefaultStreamLen caps the snapshot stream.
const DefaultStreamLen = 500

// ErrNotCached means no quote has been cached for the bond yet.
var ErrNotCached = errors.New("bond not cached")

// RedisFeed publishes snapshots over Redis and serves the cached copies.
type RedisFeed struct {
	rdb       *redisclient.Client
	streamLen int64
}

func NewRedisFeed(rdb *redisclient.Client) *RedisFeed {
	return &RedisFeed{rdb: rdb, streamLen: DefaultStreamLen}
}

// PublishSnapshot caches each bond under bond:<cusip>, publishes the
// snapshot on market-data and the curve points on yield-curve, then appends
// the snapshot to the capped history stream.
func (f *RedisFeed) PublishSnapshot(ctx context.Context, snap models.MarketSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	hashes := make([]redisclient.Hash, 0, len(snap.Bonds))
	for _, b := range snap.Bonds {
		hashes = append(hashes, redisclient.Hash{Key: models.BondKey(b.CUSIP), Values: b.ToMap()})
	}
	if err := f.rdb.CacheAndPublish(ctx, hashes, models.TopicMarketData, payload); err != nil {
		return fmt.Errorf("cache and publish: %w", err)
	}

	curve, err := json.Marshal(snap.Quotes())
	if err != nil {
		return fmt.Errorf("marshal curve: %w", err)
	}
	if err := f.rdb.Publish(ctx, models.TopicYieldCurve, curve); err != nil {
		return fmt.Errorf("publish curve: %w", err)
	}

	return f.rdb.AddToStream(ctx, models.SnapshotStream, f.streamLen, map[string]interface{}{
		"seq":     snap.Sequence,
		"payload": payload,
	})
}

// CachedBond reads the latest quote for cusip from its hash.
func (f *RedisFeed) CachedBond(ctx context.Context, cusip string) (models.Bond, error) {
	m, err := f.rdb.HGetAll(ctx, models.BondKey(cusip))
	if err != nil {
		return models.Bond{}, err
	}
	if len(m) == 0 {
		return models.Bond{}, fmt.Errorf("%w: %s", ErrNotCached, cusip)
	}
	return models.BondFromMap(m)
}

// RecentSnapshots returns up to count snapshots from the stream, newest first.
// Entries that fail to decode are skipped.
func (f *RedisFeed) RecentSnapshots(ctx context.Context, count int64) ([]models.MarketSnapshot, error) {
	msgs, err := f.rdb.ReadStreamLatest(ctx, models.SnapshotStream, count)
	if err != nil {
		return nil, err
	}

	out := make([]models.MarketSnapshot, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			continue
		}
		snap, err := models.MarketSnapshotFromJSON([]byte(raw))
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}
