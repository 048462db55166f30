package accuracy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"CoinOracle/internal/model"
	"CoinOracle/internal/store"
)

// Accuracy credited per outcome when averaging.
const (
	correctWeight = 100
	partialWeight = 40
)

// Aggregator folds evaluation results into per-(symbol, timeframe) metrics.
// Updates to one key are serialized; different keys proceed in parallel.
type Aggregator struct {
	store store.Store
	mu    sync.Mutex
	locks map[model.MetricsKey]*sync.Mutex
	log   zerolog.Logger
}

// NewAggregator creates an Aggregator backed by s.
func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{
		store: s,
		locks: map[model.MetricsKey]*sync.Mutex{},
		log:   log.With().Str("component", "accuracy").Logger(),
	}
}

func (a *Aggregator) lock(key model.MetricsKey) func() {
	a.mu.Lock()
	l, ok := a.locks[key]
	if !ok {
		l = &sync.Mutex{}
		a.locks[key] = l
	}
	a.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Fold returns m updated with one result.
func Fold(m model.PredictionMetrics, r model.PredictionResult) model.PredictionMetrics {
	m.Symbol, m.Timeframe = r.Symbol, r.Timeframe
	m.TotalPredictions++

	switch r.Outcome {
	case model.OutcomeCorrect:
		m.CorrectPredictions++
		m.CurrentStreak++
		if m.CurrentStreak > m.BestStreak {
			m.BestStreak = m.CurrentStreak
		}
	case model.OutcomeIncorrect:
		m.IncorrectPredictions++
		m.CurrentStreak = 0
	case model.OutcomePartial:
		m.PartialPredictions++
	}

	total := decimal.NewFromInt(int64(m.TotalPredictions))
	credit := decimal.NewFromInt(int64(correctWeight*m.CorrectPredictions + partialWeight*m.PartialPredictions))
	m.AverageAccuracy = credit.Div(total).Round(2).InexactFloat64()

	// running mean over evaluated predictions
	prevConf := decimal.NewFromFloat(m.AverageConfidence).Mul(decimal.NewFromInt(int64(m.TotalPredictions - 1)))
	m.AverageConfidence = prevConf.Add(decimal.NewFromInt(int64(r.Confidence))).Div(total).Round(2).InexactFloat64()

	if r.ProfitLoss != nil {
		m.TotalProfit = decimal.NewFromFloat(m.TotalProfit).Add(decimal.NewFromFloat(*r.ProfitLoss)).Round(4).InexactFloat64()
	}
	m.UpdatedAt = r.EvaluatedAt
	return m
}

// Replay folds results, in order, into a fresh metrics row for key.
func Replay(key model.MetricsKey, results []model.PredictionResult) model.PredictionMetrics {
	m := model.PredictionMetrics{Symbol: key.Symbol, Timeframe: key.Timeframe}
	for _, r := range results {
		m = Fold(m, r)
	}
	return m
}

// Apply folds r into its metrics row, creating the row on first use, and marks r aggregated.
func (a *Aggregator) Apply(ctx context.Context, r model.PredictionResult) (*model.PredictionMetrics, error) {
	key := model.MetricsKey{Symbol: r.Symbol, Timeframe: r.Timeframe}
	unlock := a.lock(key)
	defer unlock()

	m := model.PredictionMetrics{Symbol: key.Symbol, Timeframe: key.Timeframe}
	existing, err := a.store.GetMetrics(ctx, key)
	switch {
	case err == nil:
		m = *existing
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load metrics %s: %w", key, err)
	}

	next := Fold(m, r)
	if err := a.store.SaveMetrics(ctx, &next, r.ID); err != nil {
		return nil, fmt.Errorf("save metrics %s: %w", key, err)
	}
	a.log.Debug().Str("key", key.String()).Int64("result_id", r.ID).Str("outcome", string(r.Outcome)).
		Float64("average_accuracy", next.AverageAccuracy).Int("streak", next.CurrentStreak).Msg("metrics updated")
	return &next, nil
}

// ApplyPending folds every stored result not yet aggregated, oldest first.
// After a failure on one key, later results of that key wait for the next call
// so streaks keep their order.
func (a *Aggregator) ApplyPending(ctx context.Context) (int, error) {
	pending, err := a.store.PendingAggregation(ctx)
	if err != nil {
		return 0, fmt.Errorf("pending aggregation: %w", err)
	}
	var (
		applied int
		errs    []error
		blocked = map[model.MetricsKey]bool{}
	)
	for _, r := range pending {
		key := model.MetricsKey{Symbol: r.Symbol, Timeframe: r.Timeframe}
		if blocked[key] {
			continue
		}
		if _, err := a.Apply(ctx, r); err != nil {
			if errors.Is(err, store.ErrAlreadyAggregated) {
				continue
			}
			blocked[key] = true
			errs = append(errs, fmt.Errorf("result %d: %w", r.ID, err))
			a.log.Error().Err(err).Int64("result_id", r.ID).Str("key", key.String()).Msg("aggregation failed")
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

// Rebuild recomputes key from every stored result and marks the pending ones aggregated.
func (a *Aggregator) Rebuild(ctx context.Context, key model.MetricsKey) (*model.PredictionMetrics, error) {
	unlock := a.lock(key)
	defer unlock()

	results, err := a.store.ListResults(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list results %s: %w", key, err)
	}
	m := Replay(key, results)
	var pending []int64
	for _, r := range results {
		if !r.Aggregated {
			pending = append(pending, r.ID)
		}
	}
	if err := a.store.SaveMetrics(ctx, &m, pending...); err != nil {
		return nil, fmt.Errorf("save metrics %s: %w", key, err)
	}
	a.log.Info().Str("key", key.String()).Int("results", len(results)).Msg("metrics rebuilt")
	return &m, nil
}

// Summarize sums metrics rows. Accuracy counts a partial as 0.4 of a correct call
// and is 0 when there are no predictions.
func Summarize(rows []model.PredictionMetrics) model.AccuracySummary {
	s := model.AccuracySummary{Rows: rows}
	profit := decimal.Zero
	for _, m := range rows {
		s.TotalPredictions += m.TotalPredictions
		s.CorrectPredictions += m.CorrectPredictions
		s.IncorrectPredictions += m.IncorrectPredictions
		s.PartialPredictions += m.PartialPredictions
		if m.BestStreak > s.BestStreak {
			s.BestStreak = m.BestStreak
		}
		profit = profit.Add(decimal.NewFromFloat(m.TotalProfit))
	}
	s.TotalProfit = profit.Round(4).InexactFloat64()
	if s.TotalPredictions == 0 {
		return s
	}
	credit := decimal.NewFromInt(int64(s.CorrectPredictions)).
		Add(decimal.NewFromInt(int64(s.PartialPredictions)).Mul(decimal.RequireFromString("0.4")))
	s.Accuracy = int(credit.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(s.TotalPredictions))).Round(0).IntPart())
	return s
}
