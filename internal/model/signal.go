package model

// RiskLevel grades how much the signals disagree.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// SignalSet holds the categorized technical signals.
type SignalSet struct {
	Bullish []string `json:"bullish"`
	Bearish []string `json:"bearish"`
	Neutral []string `json:"neutral"`
}

// Directional returns the number of bullish plus bearish signals.
func (s SignalSet) Directional() int { return len(s.Bullish) + len(s.Bearish) }

// Conflicting reports whether both bullish and bearish signals are present.
func (s SignalSet) Conflicting() bool { return len(s.Bullish) > 0 && len(s.Bearish) > 0 }

// TechnicalReading is the indicator input of the signal analyzer.
type TechnicalReading struct {
	RSI            float64
	MA20           float64
	MA50           float64
	VolumeStrength float64 // 0.0 ~ 1.0
	Synthetic      bool    // true when stand-ins replaced real indicators
}

// Analysis is the output of the signal analyzer.
type Analysis struct {
	Decision       Decision  `json:"decision"`
	Confidence     int       `json:"confidence"`
	Signals        SignalSet `json:"signals"`
	SentimentScore float64   `json:"sentiment_score"`
	OnchainSignals []string  `json:"onchain_signals"`
	RiskLevel      RiskLevel `json:"risk_level"`
	BullishScore   int       `json:"bullish_score"`
	BearishScore   int       `json:"bearish_score"`
}
