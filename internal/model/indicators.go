package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// IndicatorKind enumerates the indicators the calculator produces.
type IndicatorKind string

const (
	KindSMA            IndicatorKind = "SMA"
	KindEMA            IndicatorKind = "EMA"
	KindRSI            IndicatorKind = "RSI"
	KindMACD           IndicatorKind = "MACD"
	KindBollingerBands IndicatorKind = "BollingerBands"
	KindATR            IndicatorKind = "ATR"
	KindOBV            IndicatorKind = "OBV"
	KindStochastic     IndicatorKind = "Stochastic"
)

// IndicatorValue is implemented by exactly one struct per IndicatorKind.
type IndicatorValue interface {
	Kind() IndicatorKind
	Values() map[string]float64
}

type MovingAverageValue struct {
	Period int     `json:"period"`
	Value  float64 `json:"value"`
}

// SMAValue and EMAValue share a shape but stay distinct kinds.
type SMAValue MovingAverageValue
type EMAValue MovingAverageValue

type RSIValue struct {
	Period int     `json:"period"`
	Value  float64 `json:"value"`
}

type MACDValue struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type BollingerValue struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

type ATRValue struct {
	Period int     `json:"period"`
	Value  float64 `json:"value"`
}

type OBVValue struct {
	Value float64 `json:"value"`
}

type StochasticValue struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

func (SMAValue) Kind() IndicatorKind        { return KindSMA }
func (EMAValue) Kind() IndicatorKind        { return KindEMA }
func (RSIValue) Kind() IndicatorKind        { return KindRSI }
func (MACDValue) Kind() IndicatorKind       { return KindMACD }
func (BollingerValue) Kind() IndicatorKind  { return KindBollingerBands }
func (ATRValue) Kind() IndicatorKind        { return KindATR }
func (OBVValue) Kind() IndicatorKind        { return KindOBV }
func (StochasticValue) Kind() IndicatorKind { return KindStochastic }

func (v SMAValue) Values() map[string]float64 { return map[string]float64{"sma": v.Value} }
func (v EMAValue) Values() map[string]float64 { return map[string]float64{"ema": v.Value} }
func (v RSIValue) Values() map[string]float64 { return map[string]float64{"rsi": v.Value} }
func (v MACDValue) Values() map[string]float64 {
	return map[string]float64{"macd": v.MACD, "signal": v.Signal, "histogram": v.Histogram}
}
func (v BollingerValue) Values() map[string]float64 {
	return map[string]float64{"upper": v.Upper, "middle": v.Middle, "lower": v.Lower}
}
func (v ATRValue) Values() map[string]float64 { return map[string]float64{"atr": v.Value} }
func (v OBVValue) Values() map[string]float64 { return map[string]float64{"obv": v.Value} }
func (v StochasticValue) Values() map[string]float64 {
	return map[string]float64{"k": v.K, "d": v.D}
}

// IndicatorSnapshot is the latest reading of one indicator for an instrument and timeframe.
type IndicatorSnapshot struct {
	Symbol    string
	Timeframe Timeframe
	Time      time.Time
	Value     IndicatorValue
}

// Kind returns the kind of the wrapped value.
func (s IndicatorSnapshot) Kind() IndicatorKind {
	if s.Value == nil {
		return ""
	}
	return s.Value.Kind()
}

type snapshotJSON struct {
	Kind      IndicatorKind   `json:"kind"`
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	Time      time.Time       `json:"time"`
	Value     json.RawMessage `json:"value"`
}

func (s IndicatorSnapshot) MarshalJSON() ([]byte, error) {
	if s.Value == nil {
		return nil, fmt.Errorf("indicator snapshot has no value")
	}
	raw, err := json.Marshal(s.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(snapshotJSON{
		Kind:      s.Value.Kind(),
		Symbol:    s.Symbol,
		Timeframe: s.Timeframe,
		Time:      s.Time,
		Value:     raw,
	})
}

func (s *IndicatorSnapshot) UnmarshalJSON(data []byte) error {
	var aux snapshotJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v, err := decodeIndicatorValue(aux.Kind, aux.Value)
	if err != nil {
		return err
	}
	s.Symbol = aux.Symbol
	s.Timeframe = aux.Timeframe
	s.Time = aux.Time
	s.Value = v
	return nil
}

func decodeIndicatorValue(kind IndicatorKind, raw json.RawMessage) (IndicatorValue, error) {
	var (
		v   IndicatorValue
		err error
	)
	switch kind {
	case KindSMA:
		var x SMAValue
		err = json.Unmarshal(raw, &x)
		v = x
	case KindEMA:
		var x EMAValue
		err = json.Unmarshal(raw, &x)
		v = x
	case KindRSI:
		var x RSIValue
		err = json.Unmarshal(raw, &x)
		v = x
	case KindMACD:
		var x MACDValue
		err = json.Unmarshal(raw, &x)
		v = x
	case KindBollingerBands:
		var x BollingerValue
		err = json.Unmarshal(raw, &x)
		v = x
	case KindATR:
		var x ATRValue
		err = json.Unmarshal(raw, &x)
		v = x
	case KindOBV:
		var x OBVValue
		err = json.Unmarshal(raw, &x)
		v = x
	case KindStochastic:
		var x StochasticValue
		err = json.Unmarshal(raw, &x)
		v = x
	default:
		return nil, fmt.Errorf("unknown indicator kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s value: %w", kind, err)
	}
	return v, nil
}
