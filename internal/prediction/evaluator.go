package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"CoinOracle/internal/model"
	"CoinOracle/internal/store"
)

// Evaluation thresholds, in percent of price change.
const (
	significantMove = 2.0
	partialMove     = significantMove * 2
)

// Accuracy scores assigned per outcome.
const (
	directionalBase  = 70.0
	waitAccuracy     = 80.0
	partialAccuracy  = 40.0
	movementBonusPer = 2.0
)

// Evaluation is the scored outcome of one call.
type Evaluation struct {
	Outcome    model.Outcome
	Accuracy   float64
	ProfitLoss float64
}

// Evaluate scores decision against the realized percent change.
// A directional call is correct once the move passes the ±2% threshold in its favor,
// a WAIT is correct while the move stays inside it, and a miss within ±4% counts as partial.
func Evaluate(decision model.Decision, pct float64) Evaluation {
	var ev Evaluation
	switch decision {
	case model.DecisionBuy:
		ev.ProfitLoss = pct
		if pct > significantMove {
			ev.Outcome = model.OutcomeCorrect
			ev.Accuracy = math.Min(100, directionalBase+pct*movementBonusPer)
		}
	case model.DecisionSell:
		ev.ProfitLoss = -pct
		if pct < -significantMove {
			ev.Outcome = model.OutcomeCorrect
			ev.Accuracy = math.Min(100, directionalBase+math.Abs(pct)*movementBonusPer)
		}
	case model.DecisionWait:
		if math.Abs(pct) <= significantMove {
			ev.Outcome = model.OutcomeCorrect
			ev.Accuracy = waitAccuracy
		}
	}
	if ev.Outcome != "" {
		return ev
	}
	if math.Abs(pct) <= partialMove {
		ev.Outcome = model.OutcomePartial
		ev.Accuracy = partialAccuracy
	} else {
		ev.Outcome = model.OutcomeIncorrect
		ev.Accuracy = 0
	}
	return ev
}

// SweepReport summarizes one evaluation sweep.
type SweepReport struct {
	SweepID    string
	Due        int // expired predictions found
	Evaluated  int
	Skipped    int // already evaluated elsewhere
	Failed     int // left active for the next sweep
	Aggregated int
	Results    []model.PredictionResult
	StartedAt  time.Time
	Duration   time.Duration
}

// RunEvaluationSweep evaluates every active prediction whose horizon has passed.
// Concurrent calls share the sweep already in flight. Per-prediction failures are
// logged and leave the prediction active; only failing to list due predictions
// is returned as an error.
func (s *Service) RunEvaluationSweep(ctx context.Context) (*SweepReport, error) {
	v, err, shared := s.sweeps.Do("sweep", func() (any, error) {
		return s.sweep(ctx)
	})
	if shared {
		s.metrics.SweepJoined()
	}
	if err != nil {
		return nil, err
	}
	return v.(*SweepReport), nil
}

func (s *Service) sweep(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	report := &SweepReport{SweepID: uuid.NewString(), StartedAt: s.now().UTC()}
	logger := s.log.With().Str("sweep_id", report.SweepID).Logger()
	defer func() {
		report.Duration = time.Since(start)
		s.metrics.Sweep(report.Duration)
	}()

	// Results stored by an earlier sweep whose aggregation failed.
	if n, err := s.agg.ApplyPending(ctx); err != nil {
		s.metrics.Error("aggregate")
		logger.Error().Err(err).Int("applied", n).Msg("reconciling pending results failed")
	} else if n > 0 {
		logger.Info().Int("applied", n).Msg("reconciled pending results")
	}

	due, err := s.store.ExpiredPredictions(ctx, report.StartedAt)
	if err != nil {
		s.metrics.Error("store")
		return nil, fmt.Errorf("list expired predictions: %w", err)
	}
	report.Due = len(due)
	if len(due) == 0 {
		logger.Debug().Msg("no predictions due")
		return report, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Workers)
	for i := range due {
		p := due[i]
		g.Go(func() error {
			r, err := s.evaluateOne(ctx, logger, &p)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Evaluated++
				report.Results = append(report.Results, *r)
			case errors.Is(err, store.ErrAlreadyEvaluated):
				report.Skipped++
			default:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(report.Results, func(i, j int) bool { return report.Results[i].ID < report.Results[j].ID })

	n, err := s.agg.ApplyPending(ctx)
	report.Aggregated = n
	if err != nil {
		s.metrics.Error("aggregate")
		logger.Error().Err(err).Msg("aggregation failed, results stay pending")
	}
	s.refreshAccuracy(ctx, report.Results)

	logger.Info().Int("due", report.Due).Int("evaluated", report.Evaluated).Int("skipped", report.Skipped).
		Int("failed", report.Failed).Int("aggregated", report.Aggregated).Msg("sweep finished")
	return report, nil
}

// evaluateOne prices p, scores it and records the result.
func (s *Service) evaluateOne(ctx context.Context, logger zerolog.Logger, p *model.Prediction) (*model.PredictionResult, error) {
	l := logger.With().Int64("prediction_id", p.ID).Str("symbol", p.Symbol).Str("timeframe", p.Timeframe.String()).Logger()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	quote, err := s.collector.Fetcher.FetchQuote(fetchCtx, p.Symbol)
	cancel()
	if err != nil {
		s.metrics.Error("price")
		l.Warn().Err(err).Msg("price fetch failed, prediction stays active")
		return nil, err
	}
	if quote.Price <= 0 || math.IsNaN(quote.Price) || p.PriceAtPrediction <= 0 {
		s.metrics.Error("price")
		err := fmt.Errorf("%w: current %v, original %v", ErrInvalidPrice, quote.Price, p.PriceAtPrediction)
		l.Warn().Err(err).Msg("unusable price, prediction stays active")
		return nil, err
	}

	change := quote.Price - p.PriceAtPrediction
	pct := change / p.PriceAtPrediction * 100
	ev := Evaluate(p.Decision, pct)
	r := &model.PredictionResult{
		PredictionID:       p.ID,
		Symbol:             p.Symbol,
		Timeframe:          p.Timeframe,
		Decision:           p.Decision,
		Confidence:         p.Confidence,
		ActualPrice:        quote.Price,
		PriceChange:        change,
		PriceChangePercent: pct,
		Outcome:            ev.Outcome,
		Accuracy:           ev.Accuracy,
		ProfitLoss:         &ev.ProfitLoss,
		Notes:              fmt.Sprintf("Predicted: %s, Price change: %.2f%%", p.Decision, pct),
		EvaluatedAt:        s.now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	if err := s.store.RecordEvaluation(storeCtx, r); err != nil {
		if errors.Is(err, store.ErrAlreadyEvaluated) {
			l.Debug().Msg("already evaluated")
			return nil, err
		}
		s.metrics.Error("store")
		l.Error().Err(err).Msg("recording evaluation failed, prediction stays active")
		return nil, err
	}
	s.metrics.Evaluated(r)
	l.Info().Str("outcome", string(r.Outcome)).Float64("change_pct", pct).Float64("accuracy", r.Accuracy).
		Msg("prediction evaluated")
	return r, nil
}

// refreshAccuracy publishes the metrics rows touched by results.
func (s *Service) refreshAccuracy(ctx context.Context, results []model.PredictionResult) {
	if s.metrics == nil {
		return
	}
	seen := map[model.MetricsKey]bool{}
	for _, r := range results {
		key := model.MetricsKey{Symbol: r.Symbol, Timeframe: r.Timeframe}
		if seen[key] {
			continue
		}
		seen[key] = true
		m, err := s.store.GetMetrics(ctx, key)
		if err != nil {
			s.log.Debug().Err(err).Str("key", key.String()).Msg("metrics row unavailable")
			continue
		}
		s.metrics.Accuracy(m)
	}
}
