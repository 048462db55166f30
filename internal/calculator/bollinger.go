package calculator

import "math"

// BandSeries holds Bollinger Bands aligned with SMA(period).
type BandSeries struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands computes middle = SMA(period) and upper/lower = middle ± k·σ,
// where σ is the population standard deviation of each window.
func BollingerBands(closes []float64, period int, k float64) BandSeries {
	middle := SMA(closes, period)
	if len(middle) == 0 {
		return BandSeries{}
	}
	upper := make([]float64, len(middle))
	lower := make([]float64, len(middle))
	for i, mean := range middle {
		var variance float64
		for _, v := range closes[i : i+period] {
			variance += (v - mean) * (v - mean)
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = mean + k*sd
		lower[i] = mean - k*sd
	}
	return BandSeries{Upper: upper, Middle: middle, Lower: lower}
}
