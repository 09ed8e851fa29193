package domain

import "time"

// Kline is one candle of market data, sourced from the exchange adapter or
// from CSV fixtures. IsFinal distinguishes a closed candle from one still
// forming; the closed-candle policy decides whether the latter may act as a
// signal candle.
type Kline struct {
	OpenTime  time.Time
	CloseTime time.Time
	Symbol    string
	Interval  string // candle interval tag, e.g. "1m", "4h"
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	IsFinal   bool
}
