package prediction

import (
	"context"
	"fmt"
	"math"

	"CoinOracle/internal/calculator"
	"CoinOracle/internal/model"
	"CoinOracle/internal/strategy"
)

// stopLossRatio places the stop-loss at this fraction of the target displacement.
const stopLossRatio = 0.6

// Targets returns the target price and stop-loss for a call at price.
// WAIT calls carry neither.
func Targets(d model.Decision, price, factor float64) (target, stop *float64) {
	var t, s float64
	switch d {
	case model.DecisionBuy:
		t = price * (1 + factor)
		s = price * (1 - factor*stopLossRatio)
	case model.DecisionSell:
		t = price * (1 - factor)
		s = price * (1 + factor*stopLossRatio)
	default:
		return nil, nil
	}
	return &t, &s
}

func clampConfidence(c int) int {
	return int(math.Max(0, math.Min(100, float64(c))))
}

// CreatePrediction analyzes symbol on timeframe and persists the resulting call.
// It fails with ErrInvalidPrice when the provider reports no usable price.
func (s *Service) CreatePrediction(ctx context.Context, symbol, timeframe string, userID *int64) (*model.Prediction, error) {
	symbol, err := s.checkInstrument(symbol)
	if err != nil {
		return nil, err
	}
	tf, err := model.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	horizon, err := tf.Horizon()
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	data, err := s.collector.Collect(fetchCtx, symbol, tf)
	cancel()
	if err != nil {
		s.metrics.Error("collect")
		return nil, fmt.Errorf("create prediction %s: %w", symbol, err)
	}
	price := data.Quote.Price
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("%w: %s reported %v", ErrInvalidPrice, symbol, price)
	}

	analysis := strategy.Analyze(strategy.Inputs{
		Symbol:     symbol,
		Timeframe:  tf,
		Price:      price,
		Change24h:  data.Quote.Change24h,
		Technicals: s.source.Technicals(price, data.Quote.Change24h, data.Bars),
		Sentiment:  strategy.SentimentScore(data.FearGreed, data.Quote.Change24h),
		Onchain:    s.source.Onchain(symbol),
	})

	var target, stop *float64
	if analysis.Decision != model.DecisionWait {
		target, stop = Targets(analysis.Decision, price, s.source.VolatilityFactor())
	}

	now := s.now().UTC()
	p := &model.Prediction{
		Symbol:            symbol,
		UserID:            userID,
		Timeframe:         tf,
		Decision:          analysis.Decision,
		Confidence:        clampConfidence(analysis.Confidence),
		PriceAtPrediction: price,
		TargetPrice:       target,
		StopLoss:          stop,
		Reasoning:         strategy.Reasoning(symbol, tf, analysis),
		Indicators:        calculator.Snapshot(symbol, tf, data.Bars, s.cfg.Params),
		SentimentScore:    analysis.SentimentScore,
		OnchainSignals:    analysis.OnchainSignals,
		RiskLevel:         analysis.RiskLevel,
		Status:            model.StatusActive,
		CreatedAt:         now,
		ExpiresAt:         now.Add(horizon),
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	if err := s.store.CreatePrediction(storeCtx, p); err != nil {
		s.metrics.Error("store")
		return nil, fmt.Errorf("save prediction %s: %w", symbol, err)
	}
	s.metrics.PredictionCreated(p)
	s.log.Info().Int64("prediction_id", p.ID).Str("symbol", symbol).Str("timeframe", tf.String()).
		Str("decision", string(p.Decision)).Int("confidence", p.Confidence).Float64("price", price).
		Time("expires_at", p.ExpiresAt).Msg("prediction created")
	return p, nil
}
