package strategy

import (
	"math/rand"
	"sync"

	"CoinOracle/internal/calculator"
	"CoinOracle/internal/model"
)

// SignalSource supplies the non-deterministic inputs of a prediction.
type SignalSource interface {
	// Technicals derives the RSI, moving averages and volume strength for price.
	Technicals(price, change24h float64, bars []model.OHLCV) model.TechnicalReading
	// Onchain returns on-chain activity signals for symbol.
	Onchain(symbol string) []string
	// VolatilityFactor returns the target displacement in [0.05, 0.10).
	VolatilityFactor() float64
}

// SimulatedSource draws every reading from a seedable generator.
type SimulatedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedSource creates a SimulatedSource. Equal seeds give equal sequences.
func NewSimulatedSource(seed int64) *SimulatedSource {
	return &SimulatedSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *SimulatedSource) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Technicals ignores bars and synthesizes a reading around price.
func (s *SimulatedSource) Technicals(price, _ float64, _ []model.OHLCV) model.TechnicalReading {
	return model.TechnicalReading{
		RSI:            45 + s.float()*30,
		MA20:           price * (0.98 + s.float()*0.04),
		MA50:           price * (0.95 + s.float()*0.1),
		VolumeStrength: s.float(),
		Synthetic:      true,
	}
}

func (s *SimulatedSource) Onchain(_ string) []string {
	return onchainSignals(s.float(), s.float(), s.float())
}

func (s *SimulatedSource) VolatilityFactor() float64 {
	return 0.05 + s.float()*0.05
}

// IndicatorSource computes technicals from real candles and falls back to
// the simulated reading when the series is too short for MA50.
type IndicatorSource struct {
	sim          *SimulatedSource
	rsiPeriod    int
	volumeWindow int
}

// NewIndicatorSource creates an IndicatorSource. sim also supplies on-chain
// signals and volatility, which have no candle-derived equivalent.
func NewIndicatorSource(sim *SimulatedSource, p calculator.Params) *IndicatorSource {
	rsi := p.RSIPeriod
	if rsi <= 0 {
		rsi = 14
	}
	return &IndicatorSource{sim: sim, rsiPeriod: rsi, volumeWindow: 20}
}

// MinBars is the shortest series IndicatorSource reads without falling back.
const MinBars = 50

func (s *IndicatorSource) Technicals(price, change24h float64, bars []model.OHLCV) model.TechnicalReading {
	if len(bars) < MinBars {
		return s.sim.Technicals(price, change24h, bars)
	}
	closes := calculator.Closes(bars)
	rsi, ok1 := calculator.Last(calculator.RSI(closes, s.rsiPeriod))
	ma20, ok2 := calculator.Last(calculator.SMA(closes, 20))
	ma50, ok3 := calculator.Last(calculator.SMA(closes, 50))
	vol, ok4 := calculator.VolumeStrength(bars, s.volumeWindow)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return s.sim.Technicals(price, change24h, bars)
	}
	return model.TechnicalReading{RSI: rsi, MA20: ma20, MA50: ma50, VolumeStrength: vol}
}

func (s *IndicatorSource) Onchain(symbol string) []string { return s.sim.Onchain(symbol) }

func (s *IndicatorSource) VolatilityFactor() float64 { return s.sim.VolatilityFactor() }
