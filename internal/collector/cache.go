package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"CoinOracle/internal/model"
)

const (
	defaultQuoteTTL = 30 * time.Second
	defaultBarsTTL  = 2 * time.Minute
)

// RedisConfig configures the quote cache connection.
type RedisConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// NewRedisClient connects to Redis and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// CachedFetcher wraps a Fetcher with a Redis read-through cache.
// Cache failures are logged and bypassed; they never fail a fetch.
type CachedFetcher struct {
	inner    Fetcher
	rdb      *goredis.Client
	quoteTTL time.Duration
	barsTTL  time.Duration
	log      zerolog.Logger
}

// NewCachedFetcher creates a CachedFetcher. Zero TTLs select the defaults.
func NewCachedFetcher(inner Fetcher, rdb *goredis.Client, quoteTTL, barsTTL time.Duration) *CachedFetcher {
	if quoteTTL <= 0 {
		quoteTTL = defaultQuoteTTL
	}
	if barsTTL <= 0 {
		barsTTL = defaultBarsTTL
	}
	return &CachedFetcher{
		inner:    inner,
		rdb:      rdb,
		quoteTTL: quoteTTL,
		barsTTL:  barsTTL,
		log:      log.With().Str("component", "quote_cache").Logger(),
	}
}

func (c *CachedFetcher) Name() string { return c.inner.Name() + "+redis" }

func quoteKey(provider, symbol string) string {
	return "oracle:quote:" + provider + ":" + strings.ToUpper(symbol)
}

func barsKey(provider, symbol string, tf model.Timeframe, limit int) string {
	return fmt.Sprintf("oracle:ohlcv:%s:%s:%s:%d", provider, strings.ToUpper(symbol), tf, limit)
}

func (c *CachedFetcher) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	key := quoteKey(c.inner.Name(), symbol)
	var q model.Quote
	if c.get(ctx, key, &q) {
		return q, nil
	}
	q, err := c.inner.FetchQuote(ctx, symbol)
	if err != nil {
		return model.Quote{}, err
	}
	c.set(ctx, key, q, c.quoteTTL)
	return q, nil
}

func (c *CachedFetcher) FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.OHLCV, error) {
	key := barsKey(c.inner.Name(), symbol, tf, limit)
	var bars []model.OHLCV
	if c.get(ctx, key, &bars) {
		return bars, nil
	}
	bars, err := c.inner.FetchOHLCV(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, bars, c.barsTTL)
	return bars, nil
}

func (c *CachedFetcher) get(ctx context.Context, key string, out any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache entry corrupt")
		return false
	}
	return true
}

func (c *CachedFetcher) set(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
