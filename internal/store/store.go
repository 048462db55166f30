package store

import (
	"context"
	"errors"
	"time"

	"CoinOracle/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyEvaluated is returned when a prediction has already left the active state.
	ErrAlreadyEvaluated = errors.New("prediction already evaluated")
	// ErrAlreadyAggregated is returned when a result was already folded into its metrics row.
	ErrAlreadyAggregated = errors.New("result already aggregated")
)

// PredictionFilter narrows ListPredictions. Zero fields match everything.
type PredictionFilter struct {
	Symbol    string
	Timeframe model.Timeframe
	Status    model.Status
	Limit     int
}

func (f PredictionFilter) match(p *model.Prediction) bool {
	return (f.Symbol == "" || p.Symbol == f.Symbol) &&
		(f.Timeframe == "" || p.Timeframe == f.Timeframe) &&
		(f.Status == "" || p.Status == f.Status)
}

// MetricsFilter narrows ListMetrics. Zero fields match everything.
type MetricsFilter struct {
	Symbol    string
	Timeframe model.Timeframe
}

func (f MetricsFilter) match(m *model.PredictionMetrics) bool {
	return (f.Symbol == "" || m.Symbol == f.Symbol) &&
		(f.Timeframe == "" || m.Timeframe == f.Timeframe)
}

// Store persists predictions, their results and the running metrics.
type Store interface {
	// CreatePrediction inserts p and assigns p.ID.
	CreatePrediction(ctx context.Context, p *model.Prediction) error
	GetPrediction(ctx context.Context, id int64) (*model.Prediction, error)
	// ListPredictions returns matching predictions, newest first.
	ListPredictions(ctx context.Context, f PredictionFilter) ([]model.Prediction, error)
	// ExpiredPredictions returns active predictions with expiry <= now, oldest expiry first.
	ExpiredPredictions(ctx context.Context, now time.Time) ([]model.Prediction, error)

	// RecordEvaluation atomically inserts r, assigning r.ID, and flips its prediction
	// from active to evaluated. It fails with ErrAlreadyEvaluated if the flip already happened.
	RecordEvaluation(ctx context.Context, r *model.PredictionResult) error
	GetResult(ctx context.Context, predictionID int64) (*model.PredictionResult, error)
	// ListResults returns every result for key in insertion order.
	ListResults(ctx context.Context, key model.MetricsKey) ([]model.PredictionResult, error)
	// PendingAggregation returns results not yet folded into metrics, in insertion order.
	PendingAggregation(ctx context.Context) ([]model.PredictionResult, error)

	GetMetrics(ctx context.Context, key model.MetricsKey) (*model.PredictionMetrics, error)
	// SaveMetrics upserts m and marks resultIDs aggregated in one step. It fails with
	// ErrAlreadyAggregated, saving nothing, if any of them was already marked.
	SaveMetrics(ctx context.Context, m *model.PredictionMetrics, resultIDs ...int64) error
	ListMetrics(ctx context.Context, f MetricsFilter) ([]model.PredictionMetrics, error)

	Close() error
}
