package model

import (
	"errors"
	"fmt"
	"time"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Valid reports whether the bar satisfies low <= {open, close} <= high with non-negative values.
func (b OHLCV) Valid() bool {
	if b.Low < 0 || b.Volume < 0 {
		return false
	}
	return b.Low <= b.Open && b.Low <= b.Close && b.Open <= b.High && b.Close <= b.High
}

// Quote is a spot price snapshot for one instrument.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"` // percent
	Volume24h float64   `json:"volume_24h"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Timeframe is the candle and evaluation horizon, e.g. "1h".
type Timeframe string

const (
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
)

// ErrInvalidTimeframe is returned for timeframes outside the horizon table.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

// horizonMinutes maps each timeframe to its prediction horizon.
var horizonMinutes = map[Timeframe]int{
	Timeframe5m:  5,
	Timeframe15m: 15,
	Timeframe1h:  60,
	Timeframe4h:  240,
	Timeframe1d:  1440,
	Timeframe1w:  10080,
}

// Timeframes lists the supported timeframes from shortest to longest.
func Timeframes() []Timeframe {
	return []Timeframe{Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h, Timeframe1d, Timeframe1w}
}

// ParseTimeframe validates s against the horizon table.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := horizonMinutes[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
	}
	return tf, nil
}

// Horizon returns how long a prediction on this timeframe stays active.
func (tf Timeframe) Horizon() (time.Duration, error) {
	m, ok := horizonMinutes[tf]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, string(tf))
	}
	return time.Duration(m) * time.Minute, nil
}

func (tf Timeframe) String() string { return string(tf) }
