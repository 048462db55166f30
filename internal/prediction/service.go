package prediction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"CoinOracle/internal/accuracy"
	"CoinOracle/internal/calculator"
	"CoinOracle/internal/collector"
	"CoinOracle/internal/metrics"
	"CoinOracle/internal/model"
	"CoinOracle/internal/store"
	"CoinOracle/internal/strategy"
)

var (
	// ErrInvalidPrice is returned when the current price is zero, negative or missing.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrUnknownInstrument is returned for symbols outside the configured instrument list.
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// Config tunes the service.
type Config struct {
	Instruments  []string // allowed symbols; empty allows any
	Workers      int      // parallel evaluations per sweep
	FetchTimeout time.Duration
	Params       calculator.Params
}

// Service creates predictions, evaluates expired ones and reports accuracy.
type Service struct {
	store       store.Store
	collector   *collector.Collector
	source      strategy.SignalSource
	agg         *accuracy.Aggregator
	metrics     *metrics.Metrics
	cfg         Config
	instruments map[string]bool
	now         func() time.Time
	sweeps      singleflight.Group
	log         zerolog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records Prometheus metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires a Service from its collaborators.
func NewService(st store.Store, c *collector.Collector, src strategy.SignalSource, cfg Config, opts ...Option) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.Params == (calculator.Params{}) {
		cfg.Params = calculator.DefaultParams()
	}
	s := &Service{
		store:       st,
		collector:   c,
		source:      src,
		agg:         accuracy.NewAggregator(st),
		cfg:         cfg,
		instruments: map[string]bool{},
		now:         time.Now,
		log:         log.With().Str("component", "prediction").Logger(),
	}
	for _, sym := range cfg.Instruments {
		s.instruments[strings.ToUpper(sym)] = true
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) checkInstrument(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrUnknownInstrument)
	}
	if len(s.instruments) > 0 && !s.instruments[symbol] {
		return "", fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	return symbol, nil
}

// GetAccuracy sums the metrics rows matching symbol and timeframe; empty strings match all.
func (s *Service) GetAccuracy(ctx context.Context, symbol, timeframe string) (*model.AccuracySummary, error) {
	f := store.MetricsFilter{Symbol: strings.ToUpper(strings.TrimSpace(symbol))}
	if timeframe != "" {
		tf, err := model.ParseTimeframe(timeframe)
		if err != nil {
			return nil, err
		}
		f.Timeframe = tf
	}
	rows, err := s.store.ListMetrics(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("get accuracy: %w", err)
	}
	summary := accuracy.Summarize(rows)
	return &summary, nil
}

// History returns the latest predictions for symbol (all symbols when empty),
// each with its result once evaluated.
func (s *Service) History(ctx context.Context, symbol string, limit int) ([]model.PredictionWithResult, error) {
	if limit <= 0 {
		limit = 20
	}
	preds, err := s.store.ListPredictions(ctx, store.PredictionFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(symbol)),
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	out := make([]model.PredictionWithResult, 0, len(preds))
	for _, p := range preds {
		item := model.PredictionWithResult{Prediction: p}
		r, err := s.store.GetResult(ctx, p.ID)
		switch {
		case err == nil:
			item.Result = r
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("history: result of %d: %w", p.ID, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// RebuildMetrics recomputes the metrics row of symbol/timeframe from stored results.
func (s *Service) RebuildMetrics(ctx context.Context, symbol, timeframe string) (*model.PredictionMetrics, error) {
	tf, err := model.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	m, err := s.agg.Rebuild(ctx, model.MetricsKey{Symbol: strings.ToUpper(symbol), Timeframe: tf})
	if err != nil {
		return nil, err
	}
	s.metrics.Accuracy(m)
	return m, nil
}
