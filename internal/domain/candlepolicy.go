package domain

import (
	"fmt"
	"sync/atomic"
)

// closedCandlesOnly is the process-wide closed-candle policy. When enabled,
// the most recent candle in any sequence is treated as still forming and is
// not eligible as a decision point. Strategies read the flag fresh at every
// decision via SignalPair/SignalIndex; it is never cached at construction.
var closedCandlesOnly atomic.Bool

// SetClosedCandlesOnly enables or disables the closed-candle policy.
func SetClosedCandlesOnly(v bool) {
	closedCandlesOnly.Store(v)
}

// ClosedCandlesOnly reports the current state of the closed-candle policy.
func ClosedCandlesOnly() bool {
	return closedCandlesOnly.Load()
}

// SignalIndex returns the index of the signal candle for a sequence of
// length n under the current policy, or -1 if the sequence is too short.
// With the policy off the signal candle is the last element; with it on,
// the second-to-last.
func SignalIndex(n int) int {
	offset := 1
	if closedCandlesOnly.Load() {
		offset = 2
	}
	if n < offset+1 {
		return -1
	}
	return n - offset
}

// SignalPair selects the (signal, previous) candle pair from a sequence
// under the current closed-candle policy. Every strategy and the core must
// use this helper rather than re-deriving the rule, otherwise live and
// backtest results diverge.
func SignalPair(klines []*Kline) (signal, previous *Kline, err error) {
	idx := SignalIndex(len(klines))
	if idx < 1 {
		return nil, nil, fmt.Errorf("not enough candles (%d) to select a signal pair", len(klines))
	}
	return klines[idx], klines[idx-1], nil
}
