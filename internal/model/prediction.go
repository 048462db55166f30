package model

import "time"

// Decision is the directional call of a prediction.
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionWait Decision = "WAIT"
)

// Status tracks the prediction lifecycle. The only transition is Active -> Evaluated.
type Status string

const (
	StatusActive    Status = "active"
	StatusEvaluated Status = "evaluated"
)

// Outcome classifies an evaluated prediction.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
	OutcomePartial   Outcome = "partial"
)

// Prediction is a directional call with targets, fixed at creation.
type Prediction struct {
	ID                int64               `json:"id"`
	Symbol            string              `json:"symbol"`
	UserID            *int64              `json:"user_id,omitempty"`
	Timeframe         Timeframe           `json:"timeframe"`
	Decision          Decision            `json:"decision"`
	Confidence        int                 `json:"confidence"` // 0-100
	PriceAtPrediction float64             `json:"price_at_prediction"`
	TargetPrice       *float64            `json:"target_price,omitempty"`
	StopLoss          *float64            `json:"stop_loss,omitempty"`
	Reasoning         string              `json:"reasoning"`
	Indicators        []IndicatorSnapshot `json:"indicators"`
	SentimentScore    float64             `json:"sentiment_score"`
	OnchainSignals    []string            `json:"onchain_signals"`
	RiskLevel         RiskLevel           `json:"risk_level"`
	Status            Status              `json:"status"`
	CreatedAt         time.Time           `json:"created_at"`
	ExpiresAt         time.Time           `json:"expires_at"`
}

// Expired reports whether the prediction's horizon has passed at now.
func (p *Prediction) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// PredictionResult is the immutable outcome of evaluating one prediction.
type PredictionResult struct {
	ID                 int64     `json:"id"`
	PredictionID       int64     `json:"prediction_id"`
	Symbol             string    `json:"symbol"`
	Timeframe          Timeframe `json:"timeframe"`
	Decision           Decision  `json:"decision"`
	Confidence         int       `json:"confidence"`
	ActualPrice        float64   `json:"actual_price"`
	PriceChange        float64   `json:"price_change"`
	PriceChangePercent float64   `json:"price_change_percent"`
	Outcome            Outcome   `json:"outcome"`
	Accuracy           float64   `json:"accuracy"` // 0-100
	ProfitLoss         *float64  `json:"profit_loss,omitempty"`
	Notes              string    `json:"notes"`
	EvaluatedAt        time.Time `json:"evaluated_at"`
	Aggregated         bool      `json:"aggregated"`
}

// PredictionWithResult pairs a prediction with its result, if evaluated.
type PredictionWithResult struct {
	Prediction Prediction        `json:"prediction"`
	Result     *PredictionResult `json:"result,omitempty"`
}
