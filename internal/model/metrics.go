package model

import "time"

// MetricsKey identifies one running-accuracy row.
type MetricsKey struct {
	Symbol    string
	Timeframe Timeframe
}

func (k MetricsKey) String() string { return k.Symbol + "/" + string(k.Timeframe) }

// PredictionMetrics holds running accuracy statistics for one (symbol, timeframe).
type PredictionMetrics struct {
	ID                   int64     `json:"id"`
	Symbol               string    `json:"symbol"`
	Timeframe            Timeframe `json:"timeframe"`
	TotalPredictions     int       `json:"total_predictions"`
	CorrectPredictions   int       `json:"correct_predictions"`
	IncorrectPredictions int       `json:"incorrect_predictions"`
	PartialPredictions   int       `json:"partial_predictions"`
	AverageAccuracy      float64   `json:"average_accuracy"`
	AverageConfidence    float64   `json:"average_confidence"`
	CurrentStreak        int       `json:"current_streak"`
	BestStreak           int       `json:"best_streak"`
	TotalProfit          float64   `json:"total_profit"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Key returns the metrics row key.
func (m *PredictionMetrics) Key() MetricsKey {
	return MetricsKey{Symbol: m.Symbol, Timeframe: m.Timeframe}
}

// AccuracySummary aggregates one or more metrics rows.
type AccuracySummary struct {
	TotalPredictions     int                 `json:"total_predictions"`
	CorrectPredictions   int                 `json:"correct_predictions"`
	IncorrectPredictions int                 `json:"incorrect_predictions"`
	PartialPredictions   int                 `json:"partial_predictions"`
	Accuracy             int                 `json:"accuracy"` // percent, rounded
	BestStreak           int                 `json:"best_streak"`
	TotalProfit          float64             `json:"total_profit"`
	Rows                 []PredictionMetrics `json:"rows"`
}
