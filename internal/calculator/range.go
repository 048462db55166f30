package calculator

import (
	"math"

	"CoinOracle/internal/model"
)

// HighLow scans bars and returns the highest high and lowest low.
func HighLow(bars []model.OHLCV) (high, low float64) {
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) for every bar after the first.
func TrueRange(bars []model.OHLCV) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		cur, prev := bars[i], bars[i-1]
		tr := math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		out = append(out, tr)
	}
	return out
}

// ATR is the simple moving average of the true range over period.
func ATR(bars []model.OHLCV, period int) []float64 {
	return SMA(TrueRange(bars), period)
}

// StochasticSeries holds %K and its %D smoothing.
type StochasticSeries struct {
	K []float64
	D []float64
}

// Stochastic computes %K over kPeriod and %D = SMA(dPeriod) of %K.
// A window whose high equals its low reads 50.
func Stochastic(bars []model.OHLCV, kPeriod, dPeriod int) StochasticSeries {
	if kPeriod <= 0 || len(bars) < kPeriod {
		return StochasticSeries{}
	}
	k := make([]float64, 0, len(bars)-kPeriod+1)
	for i := kPeriod - 1; i < len(bars); i++ {
		high, low := HighLow(bars[i-kPeriod+1 : i+1])
		if high == low {
			k = append(k, 50)
			continue
		}
		k = append(k, clamp((bars[i].Close-low)/(high-low)*100, 0, 100))
	}
	return StochasticSeries{K: k, D: SMA(k, dPeriod)}
}
