package strategy

import (
	"strings"

	"CoinOracle/internal/model"
)

// Signal texts shared by the rule set.
const (
	SignalRSIOversold    = "RSI Oversold (potential reversal)"
	SignalRSIOverbought  = "RSI Overbought (potential correction)"
	SignalRSINeutral     = "RSI in neutral range"
	SignalMomentumUp     = "Strong upward momentum (+5%+)"
	SignalMomentumDown   = "Strong downward momentum (-5%+)"
	SignalSideways       = "Sideways price action"
	SignalAboveMAs       = "Price above key moving averages"
	SignalBelowMAs       = "Price below key moving averages"
	SignalMixedMAs       = "Mixed moving average signals"
	SignalVolumeUp       = "High volume supporting price increase"
	SignalVolumeDown     = "High volume on price decline"
	SignalVolumeAverage  = "Average trading volume"
	OnchainAccumulation  = "Increased whale accumulation detected"
	OnchainDistribution  = "Whale distribution activity"
	OnchainOutflows      = "Net outflows from exchanges (bullish)"
	OnchainInflows       = "Net inflows to exchanges (bearish)"
	OnchainRisingNetwork = "Rising network activity"
)

// TechnicalSignals applies the fixed rule thresholds to one reading.
func TechnicalSignals(t model.TechnicalReading, price, change24h float64) model.SignalSet {
	var s model.SignalSet
	scoreRSI(&s, t.RSI)
	scoreMomentum(&s, change24h)
	scoreMovingAverages(&s, price, t.MA20, t.MA50)
	scoreVolume(&s, t.VolumeStrength, change24h)
	return s
}

// scoreRSI: below 30 is oversold, above 70 overbought.
func scoreRSI(s *model.SignalSet, rsi float64) {
	switch {
	case rsi < 30:
		s.Bullish = append(s.Bullish, SignalRSIOversold)
	case rsi > 70:
		s.Bearish = append(s.Bearish, SignalRSIOverbought)
	default:
		s.Neutral = append(s.Neutral, SignalRSINeutral)
	}
}

// scoreMomentum: a 24h move beyond ±5% counts as momentum.
func scoreMomentum(s *model.SignalSet, change24h float64) {
	switch {
	case change24h > 5:
		s.Bullish = append(s.Bullish, SignalMomentumUp)
	case change24h < -5:
		s.Bearish = append(s.Bearish, SignalMomentumDown)
	default:
		s.Neutral = append(s.Neutral, SignalSideways)
	}
}

func scoreMovingAverages(s *model.SignalSet, price, ma20, ma50 float64) {
	switch {
	case price > ma20 && price > ma50:
		s.Bullish = append(s.Bullish, SignalAboveMAs)
	case price < ma20 && price < ma50:
		s.Bearish = append(s.Bearish, SignalBelowMAs)
	default:
		s.Neutral = append(s.Neutral, SignalMixedMAs)
	}
}

// scoreVolume: strong volume follows the sign of the 24h change; a flat day counts as a decline.
func scoreVolume(s *model.SignalSet, strength, change24h float64) {
	if strength <= 0.7 {
		s.Neutral = append(s.Neutral, SignalVolumeAverage)
		return
	}
	if change24h > 0 {
		s.Bullish = append(s.Bullish, SignalVolumeUp)
	} else {
		s.Bearish = append(s.Bearish, SignalVolumeDown)
	}
}

// ClassifyOnchain maps an on-chain signal to BUY (bullish), SELL (bearish) or WAIT (no weight).
func ClassifyOnchain(signal string) model.Decision {
	switch {
	case strings.Contains(signal, "accumulation"),
		strings.Contains(signal, "outflows"),
		strings.Contains(signal, "Rising"):
		return model.DecisionBuy
	case strings.Contains(signal, "distribution"),
		strings.Contains(signal, "inflows"):
		return model.DecisionSell
	}
	return model.DecisionWait
}

// onchainSignals maps three activity readings in [0,1) to signal texts.
func onchainSignals(whale, exchangeFlows, activeAddresses float64) []string {
	signals := []string{}
	switch {
	case whale > 0.7:
		signals = append(signals, OnchainAccumulation)
	case whale < 0.3:
		signals = append(signals, OnchainDistribution)
	}
	switch {
	case exchangeFlows < 0.4:
		signals = append(signals, OnchainOutflows)
	case exchangeFlows > 0.7:
		signals = append(signals, OnchainInflows)
	}
	if activeAddresses > 0.6 {
		signals = append(signals, OnchainRisingNetwork)
	}
	return signals
}
