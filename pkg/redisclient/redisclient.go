package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

const (
	stateClosed int32 = iota
	stateOpen
	stateHalfOpen
)

const (
	failureThreshold = 5
	openCooldown     = 10 * time.Second
	opTimeout        = 100 * time.Millisecond
	publishTimeout   = 50 * time.Millisecond
)

type Client struct {
	rdb *redis.Client
	// Circuit breaker state
	failureCount int64
	lastFailure  int64
	state        int32
}

// New constructs a Client with pool settings tuned for the dashboard.
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.IdleTimeout = 5 * time.Minute
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RedisOperationDuration.WithLabelValues(operation, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedisErrors.WithLabelValues(operation).Inc()
	}
	return err
}

// allow reports whether a call may go through. An open breaker lets a
// single probe through once the cooldown has passed.
func (c *Client) allow() bool {
	switch atomic.LoadInt32(&c.state) {
	case stateOpen:
		if time.Since(time.Unix(atomic.LoadInt64(&c.lastFailure), 0)) < openCooldown {
			return false
		}
		return atomic.CompareAndSwapInt32(&c.state, stateOpen, stateHalfOpen)
	default:
		return true
	}
}

// record updates the breaker with the outcome of a call.
func (c *Client) record(err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		n := atomic.AddInt64(&c.failureCount, 1)
		atomic.StoreInt64(&c.lastFailure, time.Now().Unix())

		if atomic.CompareAndSwapInt32(&c.state, stateHalfOpen, stateOpen) ||
			(n >= failureThreshold && atomic.CompareAndSwapInt32(&c.state, stateClosed, stateOpen)) {
			logger.Log.Warn("circuit breaker opened", zap.String("operation", "redis"), zap.Int64("failures", n))
		}
		return
	}
	atomic.StoreInt64(&c.failureCount, 0)
	if atomic.CompareAndSwapInt32(&c.state, stateHalfOpen, stateClosed) {
		logger.Log.Info("circuit breaker closed", zap.String("operation", "redis"))
	}
}

// retry runs op with exponential backoff, at most 3 retries.
func (c *Client) retry(ctx context.Context, op func(ctx context.Context) error) error {
	if !c.allow() {
		return ErrCircuitBreakerOpen
	}
	attempt := func() error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		err := op(ctx)
		c.record(err)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(attempt, bo)
}

// AddToStream appends to a capped Redis Stream with retry/backoff.
func (c *Client) AddToStream(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) error {
	return c.withMetrics("xadd", func() error {
		return c.retry(ctx, func(ctx context.Context) error {
			return c.rdb.XAdd(ctx, &redis.XAddArgs{
				Stream: stream,
				MaxLen: maxLen,
				Approx: true,
				Values: SortedPairs(values),
			}).Err()
		})
	})
}

// ReadStreamLatest returns up to count entries, newest first.
func (c *Client) ReadStreamLatest(ctx context.Context, stream string, count int64) ([]redis.XMessage, error) {
	var msgs []redis.XMessage
	err := c.withMetrics("xrevrange", func() error {
		var err error
		msgs, err = c.rdb.XRevRangeN(ctx, stream, "+", "-", count).Result()
		return err
	})
	return msgs, err
}

// Publish wraps rdb.Publish with a short timeout
func (c *Client) Publish(ctx context.Context, channel string, msg interface{}) error {
	return c.withMetrics("publish", func() error {
		if !c.allow() {
			return ErrCircuitBreakerOpen
		}
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		err := c.rdb.Publish(ctx, channel, msg).Err()
		c.record(err)
		return err
	})
}

// HSet sets a hash with retry
func (c *Client) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return c.withMetrics("hset", func() error {
		return c.retry(ctx, func(ctx context.Context) error {
			return c.rdb.HSet(ctx, key, SortedPairs(values)...).Err()
		})
	})
}

// HGetAll retrieves all fields from a hash. A missing key yields an empty map.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := c.withMetrics("hgetall", func() error {
		var err error
		out, err = c.rdb.HGetAll(ctx, key).Result()
		return err
	})
	return out, err
}

// SortedPairs flattens values into field/value pairs ordered by field, so
// the command sent to Redis does not depend on map iteration order.
func SortedPairs(values map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, values[k])
	}
	return pairs
}

// Hash is one HSET in a pipelined write.
type Hash struct {
	Key    string
	Values map[string]interface{}
}

// CacheAndPublish writes hashes in order and publishes payload on channel
// in one pipeline round trip.
func (c *Client) CacheAndPublish(ctx context.Context, hashes []Hash, channel string, payload interface{}) error {
	return c.withMetrics("cache_publish", func() error {
		if !c.allow() {
			return ErrCircuitBreakerOpen
		}
		pipe := c.rdb.Pipeline()
		for _, h := range hashes {
			pipe.HSet(ctx, h.Key, SortedPairs(h.Values)...)
		}
		pipe.Publish(ctx, channel, payload)

		execCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		_, err := pipe.Exec(execCtx)
		c.record(err)
		return err
	})
}

// Subscribe creates a pub/sub subscription
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.withMetrics("ping", func() error {
		return c.rdb.Ping(ctx).Err()
	})
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}
