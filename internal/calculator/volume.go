package calculator

import "CoinOracle/internal/model"

// OBV returns the on-balance volume running sum for every bar after the first.
// Volume is added on an up close, subtracted on a down close, ignored on a tie.
func OBV(bars []model.OHLCV) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	obv := 0.0
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			obv += bars[i].Volume
		case bars[i].Close < bars[i-1].Close:
			obv -= bars[i].Volume
		}
		out = append(out, obv)
	}
	return out
}

// VolumeStrength ranks the last bar's volume against the trailing window (0.0 ~ 1.0).
// Returns ok=false when fewer than window bars are available.
func VolumeStrength(bars []model.OHLCV, window int) (strength float64, ok bool) {
	if window <= 1 || len(bars) < window {
		return 0, false
	}
	tail := bars[len(bars)-window:]
	last := tail[len(tail)-1].Volume
	below := 0
	for _, b := range tail[:len(tail)-1] {
		if b.Volume < last {
			below++
		}
	}
	return float64(below) / float64(window-1), true
}
