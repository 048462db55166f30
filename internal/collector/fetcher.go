package collector

import (
	"context"
	"errors"

	"CoinOracle/internal/model"
)

// ErrUnknownSymbol is returned when a provider has no mapping for a symbol.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// FetchOHLCV returns up to limit bars in ascending time order.
	FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.OHLCV, error)
	FetchQuote(ctx context.Context, symbol string) (model.Quote, error)
	Name() string
}

// SentimentProvider returns the market fear/greed index (0-100).
type SentimentProvider interface {
	FetchFearGreed(ctx context.Context) (int, error)
}
