package calculator

import (
	"math"
	"testing"
	"time"

	"CoinOracle/internal/model"
)

func generateBars(n int, price func(i int) float64) []model.OHLCV {
	bars := make([]model.OHLCV, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := price(i)
		bars[i] = model.OHLCV{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   c * 0.999,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: float64(1000 + i*10),
		}
	}
	return bars
}

func zigzag(i int) float64 {
	return 100 + 10*math.Sin(float64(i)/3) + float64(i%4)
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSMA_LengthAndConstantSeries(t *testing.T) {
	tests := []struct {
		n, period, want int
	}{
		{10, 3, 8},
		{5, 5, 1},
		{4, 5, 0},
		{0, 3, 0},
		{10, 0, 0},
	}
	for _, tt := range tests {
		values := make([]float64, tt.n)
		for i := range values {
			values[i] = 42
		}
		got := SMA(values, tt.period)
		if len(got) != tt.want {
			t.Errorf("SMA(n=%d, p=%d): len %d, want %d", tt.n, tt.period, len(got), tt.want)
		}
		for i, v := range got {
			if !almostEqual(v, 42) {
				t.Errorf("SMA constant series [%d] = %f, want 42", i, v)
			}
		}
	}
}

func TestSMA_WindowMean(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 2)
	want := []float64{1.5, 2.5, 3.5, 4.5}
	if len(got) != len(want) {
		t.Fatalf("len %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !almostEqual(got[i], want[i]) {
			t.Errorf("[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestEMA_SeedAndRecurrence(t *testing.T) {
	got := EMA([]float64{2, 4, 6, 8}, 3)
	if len(got) != 2 {
		t.Fatalf("len %d, want 2", len(got))
	}
	if !almostEqual(got[0], 4) {
		t.Errorf("seed = %f, want 4", got[0])
	}
	// multiplier 0.5: 8*0.5 + 4*0.5
	if !almostEqual(got[1], 6) {
		t.Errorf("ema[1] = %f, want 6", got[1])
	}
	if EMA([]float64{1, 2}, 3) != nil {
		t.Error("expected nil EMA for short input")
	}
}

func TestRSI_Bounds(t *testing.T) {
	series := [][]float64{
		Closes(generateBars(60, zigzag)),
		Closes(generateBars(30, func(i int) float64 { return 100 + float64(i) })),
		Closes(generateBars(30, func(i int) float64 { return 100 - float64(i) })),
		Closes(generateBars(30, func(int) float64 { return 50 })),
	}
	for _, closes := range series {
		out := RSI(closes, 14)
		if len(out) != len(closes)-14 {
			t.Errorf("RSI len %d, want %d", len(out), len(closes)-14)
		}
		for i, v := range out {
			if v < 0 || v > 100 || math.IsNaN(v) {
				t.Errorf("RSI[%d] = %f out of [0,100]", i, v)
			}
		}
	}
}

func TestRSI_NoLossesIs100(t *testing.T) {
	out := RSI([]float64{1, 2, 3, 4, 5, 6}, 3)
	for i, v := range out {
		if v != 100 {
			t.Errorf("RSI[%d] = %f, want 100", i, v)
		}
	}
	if RSI([]float64{1, 2, 3}, 3) != nil {
		t.Error("expected nil RSI when len <= period")
	}
}

func TestMACD_HistogramAlignment(t *testing.T) {
	closes := Closes(generateBars(80, zigzag))
	m := MACD(closes, 12, 26, 9)
	if len(m.MACD) != len(closes)-26+1 {
		t.Fatalf("MACD len %d, want %d", len(m.MACD), len(closes)-25)
	}
	if len(m.Signal) != len(m.MACD)-9+1 {
		t.Fatalf("signal len %d, want %d", len(m.Signal), len(m.MACD)-8)
	}
	if len(m.Histogram) != len(m.Signal) {
		t.Fatalf("histogram len %d, want %d", len(m.Histogram), len(m.Signal))
	}
	off := len(m.MACD) - len(m.Signal)
	for i := range m.Histogram {
		if !almostEqual(m.Histogram[i], m.MACD[i+off]-m.Signal[i]) {
			t.Errorf("histogram[%d] = %f, want %f", i, m.Histogram[i], m.MACD[i+off]-m.Signal[i])
		}
	}

	// MACD line is the fast EMA minus the slow EMA on the shared tail.
	fast, slow := EMA(closes, 12), EMA(closes, 26)
	last := len(m.MACD) - 1
	if !almostEqual(m.MACD[last], fast[len(fast)-1]-slow[len(slow)-1]) {
		t.Errorf("MACD tail misaligned")
	}
}

func TestMACD_ShortInput(t *testing.T) {
	m := MACD([]float64{1, 2, 3}, 12, 26, 9)
	if len(m.MACD) != 0 || len(m.Signal) != 0 || len(m.Histogram) != 0 {
		t.Errorf("expected empty MACD for short input, got %+v", m)
	}
}

func TestBollingerBands_Ordering(t *testing.T) {
	closes := Closes(generateBars(50, zigzag))
	bb := BollingerBands(closes, 20, 2)
	if len(bb.Middle) != 31 {
		t.Fatalf("len %d, want 31", len(bb.Middle))
	}
	for i := range bb.Middle {
		if !(bb.Upper[i] >= bb.Middle[i] && bb.Middle[i] >= bb.Lower[i]) {
			t.Errorf("[%d] upper %f middle %f lower %f not ordered", i, bb.Upper[i], bb.Middle[i], bb.Lower[i])
		}
	}

	flat := BollingerBands([]float64{5, 5, 5, 5}, 2, 2)
	for i := range flat.Middle {
		if flat.Upper[i] != 5 || flat.Lower[i] != 5 {
			t.Errorf("flat series should collapse bands, got %+v", flat)
		}
	}
}

func TestATR_TrueRange(t *testing.T) {
	bars := []model.OHLCV{
		{High: 10, Low: 8, Close: 9},
		{High: 12, Low: 9, Close: 11},  // tr = max(3, 3, 0) = 3
		{High: 11, Low: 10, Close: 10}, // tr = max(1, 0, 1) = 1
		{High: 15, Low: 14, Close: 15}, // tr = max(1, 5, 4) = 5
	}
	tr := TrueRange(bars)
	want := []float64{3, 1, 5}
	for i := range want {
		if !almostEqual(tr[i], want[i]) {
			t.Errorf("tr[%d] = %f, want %f", i, tr[i], want[i])
		}
	}
	atr := ATR(bars, 3)
	if len(atr) != 1 || !almostEqual(atr[0], 3) {
		t.Errorf("ATR = %v, want [3]", atr)
	}
	if ATR(bars[:2], 3) != nil {
		t.Error("expected nil ATR for short input")
	}
}

func TestOBV(t *testing.T) {
	bars := []model.OHLCV{
		{Close: 10, Volume: 100},
		{Close: 11, Volume: 50},
		{Close: 11, Volume: 70},
		{Close: 9, Volume: 30},
	}
	got := OBV(bars)
	want := []float64{50, 50, 20}
	if len(got) != len(want) {
		t.Fatalf("len %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("obv[%d] = %f, want %f", i, got[i], want[i])
		}
	}
	if OBV(bars[:1]) != nil {
		t.Error("expected nil OBV for a single bar")
	}
}

func TestStochastic(t *testing.T) {
	bars := generateBars(30, zigzag)
	st := Stochastic(bars, 14, 3)
	if len(st.K) != 17 || len(st.D) != 15 {
		t.Fatalf("len K %d D %d, want 17 and 15", len(st.K), len(st.D))
	}
	for i, v := range st.K {
		if v < 0 || v > 100 {
			t.Errorf("K[%d] = %f out of range", i, v)
		}
	}

	flat := make([]model.OHLCV, 5)
	for i := range flat {
		flat[i] = model.OHLCV{Open: 1, High: 1, Low: 1, Close: 1}
	}
	if k := Stochastic(flat, 3, 2).K; k[0] != 50 {
		t.Errorf("flat window K = %f, want 50", k[0])
	}
}

func TestVolumeStrength(t *testing.T) {
	bars := generateBars(20, zigzag) // strictly increasing volume
	s, ok := VolumeStrength(bars, 20)
	if !ok || s != 1 {
		t.Errorf("VolumeStrength = %f, %v; want 1, true", s, ok)
	}
	if _, ok := VolumeStrength(bars[:5], 20); ok {
		t.Error("expected ok=false for short input")
	}
}

func TestSnapshot_AllKinds(t *testing.T) {
	bars := generateBars(80, zigzag)
	snaps := Snapshot("BTC", model.Timeframe1h, bars, DefaultParams())
	seen := map[model.IndicatorKind]bool{}
	for _, s := range snaps {
		seen[s.Kind()] = true
		if s.Symbol != "BTC" || s.Timeframe != model.Timeframe1h {
			t.Errorf("unexpected snapshot identity %+v", s)
		}
	}
	for _, k := range []model.IndicatorKind{
		model.KindSMA, model.KindEMA, model.KindRSI, model.KindMACD,
		model.KindBollingerBands, model.KindATR, model.KindOBV, model.KindStochastic,
	} {
		if !seen[k] {
			t.Errorf("missing %s in snapshot", k)
		}
	}

	short := Snapshot("BTC", model.Timeframe1h, bars[:10], DefaultParams())
	for _, s := range short {
		if s.Kind() == model.KindMACD || s.Kind() == model.KindSMA {
			t.Errorf("%s should be omitted for 10 bars", s.Kind())
		}
	}
}
