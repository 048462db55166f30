package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"CoinOracle/internal/model"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	sqlite, err := NewSQLStore(ctx, "sqlite", filepath.Join(t.TempDir(), "oracle.db"))
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
	// ORACLE_TEST_POSTGRES_DSN must point at an empty database.
	if dsn := os.Getenv("ORACLE_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := NewSQLStore(ctx, "postgres", dsn)
		if err != nil {
			t.Fatalf("NewSQLStore postgres: %v", err)
		}
		t.Cleanup(func() { pg.Close() })
		stores["postgres"] = pg
	}
	return stores
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newPrediction(symbol string, tf model.Timeframe, created time.Time) *model.Prediction {
	horizon, _ := tf.Horizon()
	target, stop := 107.0, 95.8
	user := int64(9)
	return &model.Prediction{
		Symbol:            symbol,
		UserID:            &user,
		Timeframe:         tf,
		Decision:          model.DecisionBuy,
		Confidence:        74,
		PriceAtPrediction: 100,
		TargetPrice:       &target,
		StopLoss:          &stop,
		Reasoning:         symbol + " " + string(tf) + " Analysis:",
		Indicators: []model.IndicatorSnapshot{
			{Symbol: symbol, Timeframe: tf, Time: created, Value: model.RSIValue{Period: 14, Value: 41.5}},
			{Symbol: symbol, Timeframe: tf, Time: created, Value: model.MACDValue{MACD: 1, Signal: 0.5, Histogram: 0.5}},
		},
		SentimentScore: 63,
		OnchainSignals: []string{"Rising network activity"},
		RiskLevel:      model.RiskMedium,
		Status:         model.StatusActive,
		CreatedAt:      created,
		ExpiresAt:      created.Add(horizon),
	}
}

func resultFor(p *model.Prediction, outcome model.Outcome) *model.PredictionResult {
	pl := 3.0
	return &model.PredictionResult{
		PredictionID:       p.ID,
		Symbol:             p.Symbol,
		Timeframe:          p.Timeframe,
		Decision:           p.Decision,
		Confidence:         p.Confidence,
		ActualPrice:        103,
		PriceChange:        3,
		PriceChangePercent: 3,
		Outcome:            outcome,
		Accuracy:           76,
		ProfitLoss:         &pl,
		Notes:              "Predicted: BUY, Price change: 3.00%",
		EvaluatedAt:        p.ExpiresAt.Add(time.Minute),
	}
}

func TestStore_PredictionRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := newPrediction("BTC", model.Timeframe1h, base)
			if err := s.CreatePrediction(ctx, p); err != nil {
				t.Fatalf("CreatePrediction: %v", err)
			}
			if p.ID == 0 {
				t.Fatal("expected id to be assigned")
			}
			got, err := s.GetPrediction(ctx, p.ID)
			if err != nil {
				t.Fatalf("GetPrediction: %v", err)
			}
			if got.Symbol != "BTC" || *got.UserID != 9 || *got.TargetPrice != 107 || *got.StopLoss != 95.8 {
				t.Errorf("unexpected prediction %+v", got)
			}
			if !got.ExpiresAt.Equal(base.Add(time.Hour)) || !got.CreatedAt.Equal(base) {
				t.Errorf("times = %v/%v", got.CreatedAt, got.ExpiresAt)
			}
			if len(got.Indicators) != 2 || got.Indicators[0].Kind() != model.KindRSI {
				t.Fatalf("indicators = %+v", got.Indicators)
			}
			if v, ok := got.Indicators[1].Value.(model.MACDValue); !ok || v.Histogram != 0.5 {
				t.Errorf("MACD snapshot = %#v", got.Indicators[1].Value)
			}
			if len(got.OnchainSignals) != 1 {
				t.Errorf("onchain = %v", got.OnchainSignals)
			}

			if _, err := s.GetPrediction(ctx, 9999); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_WaitPredictionWithoutTargets(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := newPrediction("ETH", model.Timeframe4h, base)
			p.Decision, p.TargetPrice, p.StopLoss, p.UserID = model.DecisionWait, nil, nil, nil
			if err := s.CreatePrediction(ctx, p); err != nil {
				t.Fatalf("CreatePrediction: %v", err)
			}
			got, err := s.GetPrediction(ctx, p.ID)
			if err != nil {
				t.Fatalf("GetPrediction: %v", err)
			}
			if got.TargetPrice != nil || got.StopLoss != nil || got.UserID != nil {
				t.Errorf("expected nil optionals, got %+v", got)
			}
		})
	}
}

func TestStore_ExpiredAndList(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			short := newPrediction("BTC", model.Timeframe5m, base)
			hour := newPrediction("BTC", model.Timeframe1h, base.Add(time.Minute))
			other := newPrediction("SOL", model.Timeframe15m, base.Add(2*time.Minute))
			for _, p := range []*model.Prediction{short, hour, other} {
				if err := s.CreatePrediction(ctx, p); err != nil {
					t.Fatalf("CreatePrediction: %v", err)
				}
			}

			due, err := s.ExpiredPredictions(ctx, base.Add(20*time.Minute))
			if err != nil {
				t.Fatalf("ExpiredPredictions: %v", err)
			}
			if len(due) != 2 || due[0].ID != short.ID || due[1].ID != other.ID {
				t.Fatalf("due = %+v", due)
			}
			// expiry equal to now counts as expired
			due, _ = s.ExpiredPredictions(ctx, short.ExpiresAt)
			if len(due) != 1 || due[0].ID != short.ID {
				t.Errorf("boundary due = %+v", due)
			}

			list, err := s.ListPredictions(ctx, PredictionFilter{Symbol: "BTC"})
			if err != nil {
				t.Fatalf("ListPredictions: %v", err)
			}
			if len(list) != 2 || list[0].ID != hour.ID {
				t.Errorf("expected newest BTC first, got %+v", list)
			}
			list, _ = s.ListPredictions(ctx, PredictionFilter{Limit: 1})
			if len(list) != 1 || list[0].ID != other.ID {
				t.Errorf("limit 1 = %+v", list)
			}
		})
	}
}

func TestStore_RecordEvaluationOnce(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := newPrediction("BTC", model.Timeframe1h, base)
			if err := s.CreatePrediction(ctx, p); err != nil {
				t.Fatalf("CreatePrediction: %v", err)
			}
			r := resultFor(p, model.OutcomeCorrect)
			if err := s.RecordEvaluation(ctx, r); err != nil {
				t.Fatalf("RecordEvaluation: %v", err)
			}
			if r.ID == 0 {
				t.Fatal("expected result id")
			}
			got, _ := s.GetPrediction(ctx, p.ID)
			if got.Status != model.StatusEvaluated {
				t.Errorf("status = %s, want evaluated", got.Status)
			}
			if due, _ := s.ExpiredPredictions(ctx, base.Add(48*time.Hour)); len(due) != 0 {
				t.Errorf("evaluated prediction still due: %+v", due)
			}

			if err := s.RecordEvaluation(ctx, resultFor(p, model.OutcomeIncorrect)); !errors.Is(err, ErrAlreadyEvaluated) {
				t.Errorf("second evaluation: expected ErrAlreadyEvaluated, got %v", err)
			}
			stored, err := s.GetResult(ctx, p.ID)
			if err != nil {
				t.Fatalf("GetResult: %v", err)
			}
			if stored.Outcome != model.OutcomeCorrect || *stored.ProfitLoss != 3 || stored.Aggregated {
				t.Errorf("unexpected stored result %+v", stored)
			}

			missing := resultFor(p, model.OutcomeCorrect)
			missing.PredictionID = 4242
			if err := s.RecordEvaluation(ctx, missing); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_ConcurrentEvaluationSingleWinner(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := newPrediction("ADA", model.Timeframe1h, base)
			if err := s.CreatePrediction(ctx, p); err != nil {
				t.Fatalf("CreatePrediction: %v", err)
			}
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := s.RecordEvaluation(ctx, resultFor(p, model.OutcomeCorrect)); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					} else if !errors.Is(err, ErrAlreadyEvaluated) {
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()
			if wins != 1 {
				t.Errorf("wins = %d, want 1", wins)
			}
		})
	}
}

func TestStore_MetricsAndAggregationMarks(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := model.MetricsKey{Symbol: "BTC", Timeframe: model.Timeframe1h}

			var results []*model.PredictionResult
			for i := 0; i < 3; i++ {
				p := newPrediction("BTC", model.Timeframe1h, base.Add(time.Duration(i)*time.Minute))
				if err := s.CreatePrediction(ctx, p); err != nil {
					t.Fatalf("CreatePrediction: %v", err)
				}
				r := resultFor(p, model.OutcomeCorrect)
				if err := s.RecordEvaluation(ctx, r); err != nil {
					t.Fatalf("RecordEvaluation: %v", err)
				}
				results = append(results, r)
			}

			pending, err := s.PendingAggregation(ctx)
			if err != nil {
				t.Fatalf("PendingAggregation: %v", err)
			}
			if len(pending) != 3 || pending[0].ID != results[0].ID {
				t.Fatalf("pending = %+v", pending)
			}

			if _, err := s.GetMetrics(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound for missing metrics, got %v", err)
			}

			m := &model.PredictionMetrics{Symbol: "BTC", Timeframe: model.Timeframe1h, TotalPredictions: 1,
				CorrectPredictions: 1, AverageAccuracy: 100, CurrentStreak: 1, BestStreak: 1, UpdatedAt: base}
			if err := s.SaveMetrics(ctx, m, results[0].ID); err != nil {
				t.Fatalf("SaveMetrics: %v", err)
			}
			firstID := m.ID

			// Re-marking the same result must fail and leave the row untouched.
			again := *m
			again.TotalPredictions = 99
			if err := s.SaveMetrics(ctx, &again, results[0].ID); !errors.Is(err, ErrAlreadyAggregated) {
				t.Fatalf("expected ErrAlreadyAggregated, got %v", err)
			}
			got, err := s.GetMetrics(ctx, key)
			if err != nil {
				t.Fatalf("GetMetrics: %v", err)
			}
			if got.TotalPredictions != 1 {
				t.Errorf("rolled-back save leaked: total = %d", got.TotalPredictions)
			}

			m.TotalPredictions, m.CorrectPredictions, m.CurrentStreak, m.BestStreak = 3, 3, 3, 3
			if err := s.SaveMetrics(ctx, m, results[1].ID, results[2].ID); err != nil {
				t.Fatalf("SaveMetrics upsert: %v", err)
			}
			if m.ID != firstID {
				t.Errorf("upsert changed id %d -> %d", firstID, m.ID)
			}
			got, _ = s.GetMetrics(ctx, key)
			if got.TotalPredictions != 3 || got.BestStreak != 3 {
				t.Errorf("metrics after upsert = %+v", got)
			}

			if pending, _ := s.PendingAggregation(ctx); len(pending) != 0 {
				t.Errorf("pending after marking = %d", len(pending))
			}
			all, _ := s.ListResults(ctx, key)
			if len(all) != 3 || !all[2].Aggregated {
				t.Errorf("ListResults = %+v", all)
			}

			rows, err := s.ListMetrics(ctx, MetricsFilter{Symbol: "BTC"})
			if err != nil || len(rows) != 1 {
				t.Errorf("ListMetrics = %v, %v", rows, err)
			}
			if rows, _ := s.ListMetrics(ctx, MetricsFilter{Timeframe: model.Timeframe1d}); len(rows) != 0 {
				t.Errorf("expected no 1d rows, got %v", rows)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	if got := dialects["sqlite"].rebind(q); got != q {
		t.Errorf("sqlite rebind changed query: %s", got)
	}
	if got := dialects["postgres"].rebind(q); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("postgres rebind = %s", got)
	}
}

func TestNewSQLStore_UnknownDriver(t *testing.T) {
	if _, err := NewSQLStore(context.Background(), "oracle", "x"); err == nil {
		t.Error("expected error for unknown driver")
	}
}
