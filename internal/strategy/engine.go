package strategy

import (
	"math"
	"strconv"
	"strings"

	"CoinOracle/internal/model"
)

// Score thresholds for the decision rule.
const (
	technicalWeight   = 2
	decisionThreshold = 2
	sentimentBullish  = 60
	sentimentBearish  = 40
)

// Disclaimer closes every reasoning text.
const Disclaimer = "⚠️ For educational purposes only. Always do your own research."

// Inputs is everything the analyzer looks at for one instrument.
type Inputs struct {
	Symbol     string
	Timeframe  model.Timeframe
	Price      float64
	Change24h  float64 // percent
	Technicals model.TechnicalReading
	Sentiment  float64 // 0-100
	Onchain    []string
}

// Analyze turns the inputs into categorized signals, a decision, a raw confidence and a risk level.
// It has no hidden state: identical inputs always give identical output.
func Analyze(in Inputs) model.Analysis {
	signals := TechnicalSignals(in.Technicals, in.Price, in.Change24h)

	bullish := len(signals.Bullish) * technicalWeight
	bearish := len(signals.Bearish) * technicalWeight

	if in.Sentiment > sentimentBullish {
		bullish++
	}
	if in.Sentiment < sentimentBearish {
		bearish++
	}

	for _, s := range in.Onchain {
		switch ClassifyOnchain(s) {
		case model.DecisionBuy:
			bullish++
		case model.DecisionSell:
			bearish++
		}
	}

	decision := model.DecisionWait
	switch diff := bullish - bearish; {
	case diff >= decisionThreshold:
		decision = model.DecisionBuy
	case diff <= -decisionThreshold:
		decision = model.DecisionSell
	}

	confidence := Confidence(signals, in.Sentiment)
	return model.Analysis{
		Decision:       decision,
		Confidence:     confidence,
		Signals:        signals,
		SentimentScore: in.Sentiment,
		OnchainSignals: in.Onchain,
		RiskLevel:      Risk(confidence, signals),
		BullishScore:   bullish,
		BearishScore:   bearish,
	}
}

// SentimentScore adjusts the fear/greed index by twice the 24h change, capped at ±20, into [0,100].
func SentimentScore(fearGreed int, change24h float64) float64 {
	adj := math.Max(-20, math.Min(20, change24h*2))
	return math.Max(0, math.Min(100, float64(fearGreed)+adj))
}

// Confidence is 50 + min(30, 8·directional signals) + 20·|sentiment-50|/50, rounded.
// The result is not clamped.
func Confidence(signals model.SignalSet, sentiment float64) int {
	strength := float64(signals.Directional())
	clarity := math.Abs(sentiment-50) / 50
	return int(math.Round(50 + math.Min(30, strength*8) + clarity*20))
}

// Risk grades a call: LOW needs high confidence and no conflict, HIGH is low confidence or conflict.
func Risk(confidence int, signals model.SignalSet) model.RiskLevel {
	conflict := signals.Conflicting()
	switch {
	case confidence > 80 && !conflict:
		return model.RiskLow
	case confidence < 60 || conflict:
		return model.RiskHigh
	default:
		return model.RiskMedium
	}
}

// Reasoning renders the human readable explanation stored with a prediction.
func Reasoning(symbol string, tf model.Timeframe, a model.Analysis) string {
	lines := []string{symbol + " " + string(tf) + " Analysis:"}

	switch a.Decision {
	case model.DecisionBuy:
		lines = append(lines, "🟢 BULLISH SIGNALS DETECTED")
		if len(a.Signals.Bullish) > 0 {
			lines = append(lines, "Technical: "+strings.Join(top(a.Signals.Bullish, 2), ", "))
		}
	case model.DecisionSell:
		lines = append(lines, "🔴 BEARISH SIGNALS DETECTED")
		if len(a.Signals.Bearish) > 0 {
			lines = append(lines, "Technical: "+strings.Join(top(a.Signals.Bearish, 2), ", "))
		}
	default:
		lines = append(lines, "⚪ MIXED SIGNALS - WAIT FOR CLARITY")
	}

	score := strconv.FormatFloat(a.SentimentScore, 'f', -1, 64)
	if a.SentimentScore > sentimentBullish {
		lines = append(lines, "Market sentiment: Positive ("+score+"/100)")
	} else if a.SentimentScore < sentimentBearish {
		lines = append(lines, "Market sentiment: Negative ("+score+"/100)")
	}

	if len(a.OnchainSignals) > 0 {
		lines = append(lines, "On-chain: "+a.OnchainSignals[0])
	}

	lines = append(lines, Disclaimer)
	return strings.Join(lines, "\n")
}

func top(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
