package calculator

// MACDSeries holds the three aligned MACD outputs. MACD is aligned on the slow
// EMA; Signal and Histogram are aligned on the tail of MACD.
type MACDSeries struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the moving average convergence divergence of closes.
func MACD(closes []float64, fast, slow, signal int) MACDSeries {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	n := len(fastEMA)
	if len(slowEMA) < n {
		n = len(slowEMA)
	}
	if n == 0 {
		return MACDSeries{}
	}

	fastOff := len(fastEMA) - n
	slowOff := len(slowEMA) - n
	line := make([]float64, n)
	for i := 0; i < n; i++ {
		line[i] = fastEMA[i+fastOff] - slowEMA[i+slowOff]
	}

	sig := EMA(line, signal)
	hist := make([]float64, len(sig))
	off := len(line) - len(sig)
	for i := range sig {
		hist[i] = line[i+off] - sig[i]
	}
	return MACDSeries{MACD: line, Signal: sig, Histogram: hist}
}
