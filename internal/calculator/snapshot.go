package calculator

import (
	"time"

	"CoinOracle/internal/model"
)

// Params configures the indicator periods used by Snapshot.
type Params struct {
	SMAPeriod  int     `yaml:"sma_period"`
	EMAPeriod  int     `yaml:"ema_period"`
	RSIPeriod  int     `yaml:"rsi_period"`
	MACDFast   int     `yaml:"macd_fast"`
	MACDSlow   int     `yaml:"macd_slow"`
	MACDSignal int     `yaml:"macd_signal"`
	BBPeriod   int     `yaml:"bb_period"`
	BBStdDev   float64 `yaml:"bb_std_dev"`
	ATRPeriod  int     `yaml:"atr_period"`
	StochK     int     `yaml:"stoch_k"`
	StochD     int     `yaml:"stoch_d"`
}

// DefaultParams returns the conventional indicator periods.
func DefaultParams() Params {
	return Params{
		SMAPeriod:  20,
		EMAPeriod:  20,
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		BBPeriod:   20,
		BBStdDev:   2,
		ATRPeriod:  14,
		StochK:     14,
		StochD:     3,
	}
}

// Snapshot computes the latest value of every indicator that has enough data.
// Indicators whose series is empty are omitted.
func Snapshot(symbol string, tf model.Timeframe, bars []model.OHLCV, p Params) []model.IndicatorSnapshot {
	if len(bars) == 0 {
		return nil
	}
	at := bars[len(bars)-1].Time
	if at.IsZero() {
		at = time.Now()
	}
	closes := Closes(bars)

	var snaps []model.IndicatorSnapshot
	add := func(v model.IndicatorValue) {
		snaps = append(snaps, model.IndicatorSnapshot{Symbol: symbol, Timeframe: tf, Time: at, Value: v})
	}

	if v, ok := Last(SMA(closes, p.SMAPeriod)); ok {
		add(model.SMAValue{Period: p.SMAPeriod, Value: v})
	}
	if v, ok := Last(EMA(closes, p.EMAPeriod)); ok {
		add(model.EMAValue{Period: p.EMAPeriod, Value: v})
	}
	if v, ok := Last(RSI(closes, p.RSIPeriod)); ok {
		add(model.RSIValue{Period: p.RSIPeriod, Value: v})
	}
	macd := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	if len(macd.Signal) > 0 {
		add(model.MACDValue{
			MACD:      macd.MACD[len(macd.MACD)-1],
			Signal:    macd.Signal[len(macd.Signal)-1],
			Histogram: macd.Histogram[len(macd.Histogram)-1],
		})
	}
	bb := BollingerBands(closes, p.BBPeriod, p.BBStdDev)
	if n := len(bb.Middle); n > 0 {
		add(model.BollingerValue{Upper: bb.Upper[n-1], Middle: bb.Middle[n-1], Lower: bb.Lower[n-1]})
	}
	if v, ok := Last(ATR(bars, p.ATRPeriod)); ok {
		add(model.ATRValue{Period: p.ATRPeriod, Value: v})
	}
	if v, ok := Last(OBV(bars)); ok {
		add(model.OBVValue{Value: v})
	}
	st := Stochastic(bars, p.StochK, p.StochD)
	if len(st.D) > 0 {
		add(model.StochasticValue{K: st.K[len(st.K)-1], D: st.D[len(st.D)-1]})
	}
	return snaps
}
