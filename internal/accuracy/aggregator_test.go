package accuracy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CoinOracle/internal/model"
	"CoinOracle/internal/store"
)

var key = model.MetricsKey{Symbol: "BTC", Timeframe: model.Timeframe1h}

func result(outcome model.Outcome, confidence int, profit float64) model.PredictionResult {
	return model.PredictionResult{
		Symbol:      key.Symbol,
		Timeframe:   key.Timeframe,
		Outcome:     outcome,
		Confidence:  confidence,
		ProfitLoss:  &profit,
		EvaluatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFold_Streaks(t *testing.T) {
	seq := []struct {
		outcome model.Outcome
		streak  int
		best    int
	}{
		{model.OutcomeCorrect, 1, 1},
		{model.OutcomeCorrect, 2, 2},
		{model.OutcomePartial, 2, 2},
		{model.OutcomeCorrect, 3, 3},
		{model.OutcomeIncorrect, 0, 3},
		{model.OutcomeCorrect, 1, 3},
	}
	var m model.PredictionMetrics
	for i, s := range seq {
		m = Fold(m, result(s.outcome, 70, 1))
		if m.CurrentStreak != s.streak || m.BestStreak != s.best {
			t.Errorf("step %d (%s): streak %d best %d, want %d/%d", i, s.outcome, m.CurrentStreak, m.BestStreak, s.streak, s.best)
		}
	}
	if m.TotalPredictions != 6 || m.CorrectPredictions != 4 || m.PartialPredictions != 1 || m.IncorrectPredictions != 1 {
		t.Errorf("counters = %+v", m)
	}
	// (100*4 + 40*1) / 6 = 73.333...
	if m.AverageAccuracy != 73.33 {
		t.Errorf("average accuracy = %v, want 73.33", m.AverageAccuracy)
	}
	if m.AverageConfidence != 70 {
		t.Errorf("average confidence = %v, want 70", m.AverageConfidence)
	}
	if m.TotalProfit != 6 {
		t.Errorf("total profit = %v, want 6", m.TotalProfit)
	}
}

func TestFold_AverageAccuracyRounding(t *testing.T) {
	m := Fold(model.PredictionMetrics{}, result(model.OutcomePartial, 50, 0))
	m = Fold(m, result(model.OutcomeIncorrect, 60, 0))
	m = Fold(m, result(model.OutcomeIncorrect, 70, 0))
	// 40 / 3 = 13.333...
	if m.AverageAccuracy != 13.33 {
		t.Errorf("average accuracy = %v, want 13.33", m.AverageAccuracy)
	}
	if m.AverageConfidence != 60 {
		t.Errorf("average confidence = %v, want 60", m.AverageConfidence)
	}
}

func seed(t *testing.T, s store.Store, outcomes ...model.Outcome) []model.PredictionResult {
	t.Helper()
	ctx := context.Background()
	var out []model.PredictionResult
	for i, o := range outcomes {
		created := time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC)
		p := &model.Prediction{Symbol: key.Symbol, Timeframe: key.Timeframe, Decision: model.DecisionBuy,
			Confidence: 60 + i, PriceAtPrediction: 100, Status: model.StatusActive,
			CreatedAt: created, ExpiresAt: created.Add(time.Hour)}
		if err := s.CreatePrediction(ctx, p); err != nil {
			t.Fatalf("CreatePrediction: %v", err)
		}
		r := result(o, p.Confidence, float64(i))
		r.PredictionID = p.ID
		if err := s.RecordEvaluation(ctx, &r); err != nil {
			t.Fatalf("RecordEvaluation: %v", err)
		}
		out = append(out, r)
	}
	return out
}

func TestApply_ReplayEquality(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	agg := NewAggregator(s)
	results := seed(t, s, model.OutcomeCorrect, model.OutcomePartial, model.OutcomeIncorrect)

	for _, r := range results {
		if _, err := agg.Apply(ctx, r); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	incremental, err := s.GetMetrics(ctx, key)
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}

	rebuilt, err := agg.Rebuild(ctx, key)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if incremental.TotalPredictions != rebuilt.TotalPredictions ||
		incremental.CorrectPredictions != rebuilt.CorrectPredictions ||
		incremental.PartialPredictions != rebuilt.PartialPredictions ||
		incremental.IncorrectPredictions != rebuilt.IncorrectPredictions ||
		incremental.AverageAccuracy != rebuilt.AverageAccuracy ||
		incremental.AverageConfidence != rebuilt.AverageConfidence ||
		incremental.CurrentStreak != rebuilt.CurrentStreak ||
		incremental.BestStreak != rebuilt.BestStreak ||
		incremental.TotalProfit != rebuilt.TotalProfit {
		t.Errorf("replay mismatch:\nincremental %+v\nrebuilt     %+v", incremental, rebuilt)
	}
	if incremental.AverageAccuracy != 46.67 {
		t.Errorf("average accuracy = %v, want 46.67", incremental.AverageAccuracy)
	}
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	agg := NewAggregator(s)
	r := seed(t, s, model.OutcomeCorrect)[0]

	if _, err := agg.Apply(ctx, r); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := agg.Apply(ctx, r); !errors.Is(err, store.ErrAlreadyAggregated) {
		t.Fatalf("second Apply: expected ErrAlreadyAggregated, got %v", err)
	}
	m, _ := s.GetMetrics(ctx, key)
	if m.TotalPredictions != 1 {
		t.Errorf("total = %d, want 1", m.TotalPredictions)
	}
}

func TestApply_ConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	agg := NewAggregator(s)

	outcomes := make([]model.Outcome, 40)
	for i := range outcomes {
		outcomes[i] = model.OutcomeCorrect
		if i%4 == 3 {
			outcomes[i] = model.OutcomePartial
		}
	}
	results := seed(t, s, outcomes...)

	var wg sync.WaitGroup
	for _, r := range results {
		wg.Add(1)
		go func(r model.PredictionResult) {
			defer wg.Done()
			if _, err := agg.Apply(ctx, r); err != nil {
				t.Errorf("Apply: %v", err)
			}
		}(r)
	}
	wg.Wait()

	m, err := s.GetMetrics(ctx, key)
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}
	if m.TotalPredictions != 40 || m.CorrectPredictions != 30 || m.PartialPredictions != 10 {
		t.Errorf("lost updates: %+v", m)
	}
	if m.BestStreak != 30 {
		t.Errorf("best streak = %d, want 30", m.BestStreak)
	}
}

func TestApplyPending(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	agg := NewAggregator(s)
	seed(t, s, model.OutcomeCorrect, model.OutcomeCorrect, model.OutcomeIncorrect)

	n, err := agg.ApplyPending(ctx)
	if err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	if n != 3 {
		t.Errorf("applied = %d, want 3", n)
	}
	m, _ := s.GetMetrics(ctx, key)
	if m.CurrentStreak != 0 || m.BestStreak != 2 {
		t.Errorf("streaks = %d/%d, want 0/2", m.CurrentStreak, m.BestStreak)
	}
	if n, err := agg.ApplyPending(ctx); n != 0 || err != nil {
		t.Errorf("second ApplyPending = %d, %v", n, err)
	}
}

// failingStore fails the first SaveMetrics call.
type failingStore struct {
	store.Store
	mu    sync.Mutex
	fails int
}

func (f *failingStore) SaveMetrics(ctx context.Context, m *model.PredictionMetrics, ids ...int64) error {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return errors.New("disk full")
	}
	f.mu.Unlock()
	return f.Store.SaveMetrics(ctx, m, ids...)
}

func TestApplyPending_RetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	fs := &failingStore{Store: mem, fails: 1}
	agg := NewAggregator(fs)
	seed(t, mem, model.OutcomeCorrect, model.OutcomeIncorrect)

	n, err := agg.ApplyPending(ctx)
	if err == nil {
		t.Fatal("expected aggregation error")
	}
	if n != 0 {
		t.Errorf("applied = %d, want 0 (key blocked after first failure)", n)
	}
	if pending, _ := mem.PendingAggregation(ctx); len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}

	n, err = agg.ApplyPending(ctx)
	if err != nil || n != 2 {
		t.Fatalf("retry = %d, %v", n, err)
	}
	m, _ := mem.GetMetrics(ctx, key)
	if m.TotalPredictions != 2 || m.BestStreak != 1 || m.CurrentStreak != 0 {
		t.Errorf("metrics after retry = %+v", m)
	}
}

func TestSummarize(t *testing.T) {
	rows := []model.PredictionMetrics{
		{Symbol: "BTC", Timeframe: model.Timeframe1h, TotalPredictions: 10, CorrectPredictions: 6, PartialPredictions: 2, IncorrectPredictions: 2, BestStreak: 4, TotalProfit: 12.5},
		{Symbol: "ETH", Timeframe: model.Timeframe1d, TotalPredictions: 5, CorrectPredictions: 1, PartialPredictions: 1, IncorrectPredictions: 3, BestStreak: 1, TotalProfit: -2.25},
	}
	s := Summarize(rows)
	if s.TotalPredictions != 15 || s.CorrectPredictions != 7 || s.PartialPredictions != 3 || s.IncorrectPredictions != 5 {
		t.Errorf("counters = %+v", s)
	}
	// (7 + 0.4*3) / 15 * 100 = 54.67
	if s.Accuracy != 55 {
		t.Errorf("accuracy = %d, want 55", s.Accuracy)
	}
	if s.BestStreak != 4 || s.TotalProfit != 10.25 {
		t.Errorf("best %d profit %v", s.BestStreak, s.TotalProfit)
	}

	if empty := Summarize(nil); empty.Accuracy != 0 || empty.TotalPredictions != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}
