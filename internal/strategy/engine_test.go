package strategy

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"CoinOracle/internal/calculator"
	"CoinOracle/internal/model"
)

func neutralReading(price float64) model.TechnicalReading {
	return model.TechnicalReading{RSI: 50, MA20: price * 1.01, MA50: price * 0.99, VolumeStrength: 0.5}
}

func TestTechnicalSignals_Rules(t *testing.T) {
	tests := []struct {
		name     string
		reading  model.TechnicalReading
		change   float64
		bullish  []string
		bearish  []string
		neutralN int
	}{
		{
			name:     "all neutral",
			reading:  neutralReading(100),
			change:   1,
			neutralN: 4,
		},
		{
			name:     "oversold rally",
			reading:  model.TechnicalReading{RSI: 25, MA20: 90, MA50: 80, VolumeStrength: 0.9},
			change:   6,
			bullish:  []string{SignalRSIOversold, SignalMomentumUp, SignalAboveMAs, SignalVolumeUp},
			neutralN: 0,
		},
		{
			name:     "overbought selloff",
			reading:  model.TechnicalReading{RSI: 75, MA20: 110, MA50: 120, VolumeStrength: 0.8},
			change:   -7,
			bearish:  []string{SignalRSIOverbought, SignalMomentumDown, SignalBelowMAs, SignalVolumeDown},
			neutralN: 0,
		},
		{
			name:     "high volume on flat day is bearish",
			reading:  model.TechnicalReading{RSI: 50, MA20: 101, MA50: 99, VolumeStrength: 0.71},
			change:   0,
			bearish:  []string{SignalVolumeDown},
			neutralN: 3,
		},
		{
			name:     "thresholds are strict",
			reading:  model.TechnicalReading{RSI: 30, MA20: 100, MA50: 100, VolumeStrength: 0.7},
			change:   5,
			neutralN: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := TechnicalSignals(tt.reading, 100, tt.change)
			if len(s.Bullish) != len(tt.bullish) || (len(tt.bullish) > 0 && !reflect.DeepEqual(s.Bullish, tt.bullish)) {
				t.Errorf("bullish = %v, want %v", s.Bullish, tt.bullish)
			}
			if len(s.Bearish) != len(tt.bearish) || (len(tt.bearish) > 0 && !reflect.DeepEqual(s.Bearish, tt.bearish)) {
				t.Errorf("bearish = %v, want %v", s.Bearish, tt.bearish)
			}
			if len(s.Neutral) != tt.neutralN {
				t.Errorf("neutral = %v, want %d entries", s.Neutral, tt.neutralN)
			}
		})
	}
}

func TestSentimentScore(t *testing.T) {
	tests := []struct {
		fg     int
		change float64
		want   float64
	}{
		{50, 0, 50},
		{50, 5, 60},
		{50, 15, 70},  // capped at +20
		{50, -15, 30}, // capped at -20
		{95, 10, 100}, // clamped high
		{5, -10, 0},   // clamped low
		{52, 1.5, 55},
	}
	for _, tt := range tests {
		if got := SentimentScore(tt.fg, tt.change); got != tt.want {
			t.Errorf("SentimentScore(%d, %.1f) = %f, want %f", tt.fg, tt.change, got, tt.want)
		}
	}
}

func TestClassifyOnchain(t *testing.T) {
	tests := map[string]model.Decision{
		OnchainAccumulation:  model.DecisionBuy,
		OnchainOutflows:      model.DecisionBuy,
		OnchainRisingNetwork: model.DecisionBuy,
		OnchainDistribution:  model.DecisionSell,
		OnchainInflows:       model.DecisionSell,
		"quiet chain":        model.DecisionWait,
	}
	for signal, want := range tests {
		if got := ClassifyOnchain(signal); got != want {
			t.Errorf("ClassifyOnchain(%q) = %s, want %s", signal, got, want)
		}
	}
}

func TestAnalyze_Decision(t *testing.T) {
	bullReading := model.TechnicalReading{RSI: 50, MA20: 90, MA50: 80, VolumeStrength: 0.2}
	bearReading := model.TechnicalReading{RSI: 50, MA20: 110, MA50: 120, VolumeStrength: 0.2}

	tests := []struct {
		name string
		in   Inputs
		want model.Decision
	}{
		{"one bullish technical is enough", Inputs{Price: 100, Technicals: bullReading, Sentiment: 50}, model.DecisionBuy},
		{"one bearish technical is enough", Inputs{Price: 100, Technicals: bearReading, Sentiment: 50}, model.DecisionSell},
		{"sentiment alone waits", Inputs{Price: 100, Technicals: neutralReading(100), Sentiment: 80}, model.DecisionWait},
		{
			"sentiment plus on-chain buys",
			Inputs{Price: 100, Technicals: neutralReading(100), Sentiment: 80, Onchain: []string{OnchainOutflows}},
			model.DecisionBuy,
		},
		{
			"bearish on-chain cancels bullish technical",
			Inputs{Price: 100, Technicals: bullReading, Sentiment: 30, Onchain: []string{OnchainInflows}},
			model.DecisionWait,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Analyze(tt.in).Decision; got != tt.want {
				t.Errorf("decision = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	in := Inputs{
		Symbol:     "BTC",
		Timeframe:  model.Timeframe1h,
		Price:      100,
		Change24h:  6,
		Technicals: model.TechnicalReading{RSI: 25, MA20: 90, MA50: 95, VolumeStrength: 0.9},
		Sentiment:  72,
		Onchain:    []string{OnchainAccumulation, OnchainInflows},
	}
	first := Analyze(in)
	for i := 0; i < 20; i++ {
		if got := Analyze(in); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
	if first.BullishScore != 4*2+1+1 || first.BearishScore != 1 {
		t.Errorf("scores = %d/%d, want 10/1", first.BullishScore, first.BearishScore)
	}
}

func TestConfidence_RawAndUnclamped(t *testing.T) {
	none := model.SignalSet{}
	four := model.SignalSet{Bullish: []string{"a", "b", "c"}, Bearish: []string{"d"}}

	if got := Confidence(none, 50); got != 50 {
		t.Errorf("Confidence(none, 50) = %d, want 50", got)
	}
	// 50 + min(30, 32) + 20*0.44 = 88.8
	if got := Confidence(four, 72); got != 89 {
		t.Errorf("Confidence(four, 72) = %d, want 89", got)
	}
	if got := Confidence(four, 100); got != 100 {
		t.Errorf("Confidence(four, 100) = %d, want 100", got)
	}
	// Out-of-range sentiment is not clipped here.
	if got := Confidence(four, 150); got <= 100 {
		t.Errorf("Confidence(four, 150) = %d, want > 100", got)
	}
}

func TestRisk(t *testing.T) {
	calm := model.SignalSet{Bullish: []string{"a"}}
	split := model.SignalSet{Bullish: []string{"a"}, Bearish: []string{"b"}}
	tests := []struct {
		conf    int
		signals model.SignalSet
		want    model.RiskLevel
	}{
		{85, calm, model.RiskLow},
		{85, split, model.RiskHigh},
		{80, calm, model.RiskMedium},
		{60, calm, model.RiskMedium},
		{59, calm, model.RiskHigh},
	}
	for _, tt := range tests {
		if got := Risk(tt.conf, tt.signals); got != tt.want {
			t.Errorf("Risk(%d, %v) = %s, want %s", tt.conf, tt.signals, got, tt.want)
		}
	}
}

func TestReasoning(t *testing.T) {
	a := model.Analysis{
		Decision:       model.DecisionBuy,
		Signals:        model.SignalSet{Bullish: []string{SignalRSIOversold, SignalMomentumUp, SignalAboveMAs}},
		SentimentScore: 62.5,
		OnchainSignals: []string{OnchainOutflows, OnchainRisingNetwork},
	}
	want := strings.Join([]string{
		"ETH 4h Analysis:",
		"🟢 BULLISH SIGNALS DETECTED",
		"Technical: " + SignalRSIOversold + ", " + SignalMomentumUp,
		"Market sentiment: Positive (62.5/100)",
		"On-chain: " + OnchainOutflows,
		Disclaimer,
	}, "\n")
	if got := Reasoning("ETH", model.Timeframe4h, a); got != want {
		t.Errorf("Reasoning =\n%s\nwant\n%s", got, want)
	}

	wait := Reasoning("SOL", model.Timeframe1d, model.Analysis{Decision: model.DecisionWait, SentimentScore: 50})
	if wait != "SOL 1d Analysis:\n⚪ MIXED SIGNALS - WAIT FOR CLARITY\n"+Disclaimer {
		t.Errorf("unexpected WAIT reasoning: %q", wait)
	}
}

func TestSimulatedSource_Seeded(t *testing.T) {
	a, b := NewSimulatedSource(7), NewSimulatedSource(7)
	for i := 0; i < 10; i++ {
		ra := a.Technicals(100, 0, nil)
		rb := b.Technicals(100, 0, nil)
		if ra != rb {
			t.Fatalf("readings differ for equal seeds: %+v vs %+v", ra, rb)
		}
		if ra.RSI < 45 || ra.RSI >= 75 || ra.MA20 < 98 || ra.MA20 >= 102 || ra.MA50 < 95 || ra.MA50 >= 105 {
			t.Errorf("reading out of range: %+v", ra)
		}
		if !ra.Synthetic {
			t.Error("simulated reading should be flagged synthetic")
		}
		if f := a.VolatilityFactor(); f < 0.05 || f >= 0.10 {
			t.Errorf("volatility factor %f out of [0.05, 0.10)", f)
		}
		b.VolatilityFactor()
		if !reflect.DeepEqual(a.Onchain("BTC"), b.Onchain("BTC")) {
			t.Error("on-chain signals differ for equal seeds")
		}
	}
}

func TestIndicatorSource(t *testing.T) {
	src := NewIndicatorSource(NewSimulatedSource(1), calculator.DefaultParams())

	short := src.Technicals(100, 0, make([]model.OHLCV, 10))
	if !short.Synthetic {
		t.Error("short series should fall back to synthetic reading")
	}

	bars := make([]model.OHLCV, 60)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = model.OHLCV{Time: start.Add(time.Duration(i) * time.Hour), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: float64(100 + i)}
	}
	r := src.Technicals(159, 2, bars)
	if r.Synthetic {
		t.Fatal("expected reading derived from candles")
	}
	if r.RSI != 100 {
		t.Errorf("RSI of a monotonic rise = %f, want 100", r.RSI)
	}
	if r.MA20 != 149.5 || r.MA50 != 134.5 {
		t.Errorf("MA20/MA50 = %f/%f, want 149.5/134.5", r.MA20, r.MA50)
	}
	if r.VolumeStrength != 1 {
		t.Errorf("VolumeStrength = %f, want 1", r.VolumeStrength)
	}
}
