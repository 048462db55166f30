package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"CoinOracle/internal/model"
)

// NeutralFearGreed stands in for the fear/greed index when the provider fails.
const NeutralFearGreed = 52

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	mu     sync.Mutex
	Price  float64
	Change float64
	Prices map[string]float64 // per-symbol override of Price
	Bars   []model.OHLCV
	Err    error
	Fail   map[string]error // per-symbol quote failures
	Calls  int
}

func (m *MockFetcher) Name() string { return "mock" }

// SetPrice sets the spot price returned for symbol.
func (m *MockFetcher) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Prices == nil {
		m.Prices = map[string]float64{}
	}
	m.Prices[strings.ToUpper(symbol)] = price
}

// FailSymbol makes quotes for symbol return err; a nil err clears it.
func (m *MockFetcher) FailSymbol(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail == nil {
		m.Fail = map[string]error{}
	}
	if err == nil {
		delete(m.Fail, strings.ToUpper(symbol))
		return
	}
	m.Fail[strings.ToUpper(symbol)] = err
}

func (m *MockFetcher) price(symbol string) float64 {
	if p, ok := m.Prices[strings.ToUpper(symbol)]; ok {
		return p
	}
	return m.Price
}

func (m *MockFetcher) FetchQuote(_ context.Context, symbol string) (model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return model.Quote{}, m.Err
	}
	if err, ok := m.Fail[strings.ToUpper(symbol)]; ok {
		return model.Quote{}, err
	}
	return model.Quote{
		Symbol:    strings.ToUpper(symbol),
		Price:     m.price(symbol),
		Change24h: m.Change,
		FetchedAt: time.Now(),
	}, nil
}

func (m *MockFetcher) FetchOHLCV(_ context.Context, symbol string, tf model.Timeframe, limit int) ([]model.OHLCV, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Bars != nil {
		return m.Bars, nil
	}
	step, err := tf.Horizon()
	if err != nil {
		return nil, err
	}
	return generateMockBars(m.price(symbol), limit, step), nil
}

func generateMockBars(basePrice float64, count int, step time.Duration) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	now := time.Now().Truncate(step)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.OHLCV{
			Time:   now.Add(-time.Duration(count-i) * step),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

// StaticSentiment is a SentimentProvider that always returns its own value.
type StaticSentiment int

func (s StaticSentiment) FetchFearGreed(context.Context) (int, error) { return int(s), nil }

// MarketData is everything a prediction needs from the providers.
type MarketData struct {
	Quote     model.Quote
	Bars      []model.OHLCV
	FearGreed int
}

// Collector orchestrates data fetching for one prediction.
type Collector struct {
	Fetcher   Fetcher
	Sentiment SentimentProvider
	Limit     int // bars requested per call
	log       zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, sentiment SentimentProvider, limit int) *Collector {
	if limit <= 0 {
		limit = 100
	}
	return &Collector{
		Fetcher:   fetcher,
		Sentiment: sentiment,
		Limit:     limit,
		log:       log.With().Str("component", "collector").Str("provider", fetcher.Name()).Logger(),
	}
}

// Collect fetches the quote, candles and fear/greed index for symbol.
// Only a failed quote is an error; missing candles or sentiment degrade to fallbacks.
func (c *Collector) Collect(ctx context.Context, symbol string, tf model.Timeframe) (*MarketData, error) {
	quote, err := c.Fetcher.FetchQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch quote: %w", err)
	}
	data := &MarketData{Quote: quote, FearGreed: NeutralFearGreed}

	if bars, err := c.Fetcher.FetchOHLCV(ctx, symbol, tf, c.Limit); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Str("timeframe", tf.String()).
			Msg("candle fetch failed, using synthetic technicals")
	} else {
		data.Bars = bars
	}

	if c.Sentiment != nil {
		if fg, err := c.Sentiment.FetchFearGreed(ctx); err != nil {
			c.log.Warn().Err(err).Int("fallback", NeutralFearGreed).Msg("fear/greed fetch failed")
		} else {
			data.FearGreed = fg
		}
	}
	return data, nil
}
