package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"CoinOracle/internal/model"
)

// MemoryStore keeps every record in maps keyed by incrementing ids.
// Records are copied in and out so callers never share memory with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      map[string]int64
	predictions map[int64]*model.Prediction
	results     map[int64]*model.PredictionResult // by result id
	byPred      map[int64]int64                   // prediction id -> result id
	metrics     map[model.MetricsKey]*model.PredictionMetrics
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:      map[string]int64{},
		predictions: map[int64]*model.Prediction{},
		results:     map[int64]*model.PredictionResult{},
		byPred:      map[int64]int64{},
		metrics:     map[model.MetricsKey]*model.PredictionMetrics{},
	}
}

func (s *MemoryStore) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

func clonePrediction(p *model.Prediction) *model.Prediction {
	c := *p
	c.Indicators = append([]model.IndicatorSnapshot(nil), p.Indicators...)
	c.OnchainSignals = append([]string(nil), p.OnchainSignals...)
	if p.UserID != nil {
		v := *p.UserID
		c.UserID = &v
	}
	if p.TargetPrice != nil {
		v := *p.TargetPrice
		c.TargetPrice = &v
	}
	if p.StopLoss != nil {
		v := *p.StopLoss
		c.StopLoss = &v
	}
	return &c
}

func cloneResult(r *model.PredictionResult) *model.PredictionResult {
	c := *r
	if r.ProfitLoss != nil {
		v := *r.ProfitLoss
		c.ProfitLoss = &v
	}
	return &c
}

func (s *MemoryStore) CreatePrediction(_ context.Context, p *model.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id("predictions")
	s.predictions[p.ID] = clonePrediction(p)
	return nil
}

func (s *MemoryStore) GetPrediction(_ context.Context, id int64) (*model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.predictions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePrediction(p), nil
}

func (s *MemoryStore) ListPredictions(_ context.Context, f PredictionFilter) ([]model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Prediction
	for _, p := range s.predictions {
		if f.match(p) {
			out = append(out, *clonePrediction(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ExpiredPredictions(_ context.Context, now time.Time) ([]model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Prediction
	for _, p := range s.predictions {
		if p.Status == model.StatusActive && p.Expired(now) {
			out = append(out, *clonePrediction(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out, nil
}

func (s *MemoryStore) RecordEvaluation(_ context.Context, r *model.PredictionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.predictions[r.PredictionID]
	if !ok {
		return ErrNotFound
	}
	if p.Status != model.StatusActive {
		return ErrAlreadyEvaluated
	}
	p.Status = model.StatusEvaluated
	r.ID = s.id("results")
	r.Aggregated = false
	s.results[r.ID] = cloneResult(r)
	s.byPred[r.PredictionID] = r.ID
	return nil
}

func (s *MemoryStore) GetResult(_ context.Context, predictionID int64) (*model.PredictionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPred[predictionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneResult(s.results[id]), nil
}

func (s *MemoryStore) sortedResults(keep func(*model.PredictionResult) bool) []model.PredictionResult {
	var out []model.PredictionResult
	for _, r := range s.results {
		if keep(r) {
			out = append(out, *cloneResult(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) ListResults(_ context.Context, key model.MetricsKey) ([]model.PredictionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedResults(func(r *model.PredictionResult) bool {
		return r.Symbol == key.Symbol && r.Timeframe == key.Timeframe
	}), nil
}

func (s *MemoryStore) PendingAggregation(_ context.Context) ([]model.PredictionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedResults(func(r *model.PredictionResult) bool { return !r.Aggregated }), nil
}

func (s *MemoryStore) GetMetrics(_ context.Context, key model.MetricsKey) (*model.PredictionMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[key]
	if !ok {
		return nil, ErrNotFound
	}
	c := *m
	return &c, nil
}

func (s *MemoryStore) SaveMetrics(_ context.Context, m *model.PredictionMetrics, resultIDs ...int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range resultIDs {
		r, ok := s.results[id]
		if !ok {
			return ErrNotFound
		}
		if r.Aggregated {
			return ErrAlreadyAggregated
		}
	}
	for _, id := range resultIDs {
		s.results[id].Aggregated = true
	}
	key := m.Key()
	if existing, ok := s.metrics[key]; ok {
		m.ID = existing.ID
	} else {
		m.ID = s.id("metrics")
	}
	c := *m
	s.metrics[key] = &c
	return nil
}

func (s *MemoryStore) ListMetrics(_ context.Context, f MetricsFilter) ([]model.PredictionMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.PredictionMetrics
	for _, m := range s.metrics {
		if f.match(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
