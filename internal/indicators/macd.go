package indicators

import (
	"context"
	"fmt"

	"cryptoPaperTrader/internal/domain"
)

// MACDConfig holds configuration for the MACD indicator
type MACDConfig struct {
	FastPeriod   int // Typically 12
	SlowPeriod   int // Typically 26
	SignalPeriod int // Typically 9
}

// MACDValue is one MACD reading: the MACD line, its signal line and the
// histogram (their difference).
type MACDValue struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD implements the Moving Average Convergence Divergence indicator
type MACD struct {
	config MACDConfig
}

// NewMACD creates a new MACD indicator instance
func NewMACD(config MACDConfig) *MACD {
	return &MACD{config: config}
}

// Name returns the name of the indicator
func (m *MACD) Name() string {
	return "MACD"
}

// RequiredDataPoints returns the minimum number of klines needed for calculation
func (m *MACD) RequiredDataPoints() int {
	return m.config.SlowPeriod + m.config.SignalPeriod
}

// Calculate computes the latest MACD histogram value. Strategies that need
// the full reading use CalculateValue.
func (m *MACD) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	v, err := m.CalculateValue(ctx, klines)
	if err != nil {
		return 0, err
	}
	return v.Histogram, nil
}

// CalculateValue computes the MACD line, signal line and histogram for the
// most recent candle.
func (m *MACD) CalculateValue(ctx context.Context, klines []*domain.Kline) (MACDValue, error) {
	if len(klines) < m.RequiredDataPoints() {
		return MACDValue{}, fmt.Errorf("not enough data (%d) to calculate MACD (need %d)", len(klines), m.RequiredDataPoints())
	}

	prices := closes(klines)
	fast := emaSeries(prices, m.config.FastPeriod)
	slow := emaSeries(prices, m.config.SlowPeriod)

	// Align the fast series to the slow one; both end at the latest candle.
	offset := len(fast) - len(slow)
	macdLine := make([]float64, len(slow))
	for i := range slow {
		macdLine[i] = fast[i+offset] - slow[i]
	}

	signalSeries := emaSeries(macdLine, m.config.SignalPeriod)
	macd := macdLine[len(macdLine)-1]
	signal := signalSeries[len(signalSeries)-1]

	return MACDValue{MACD: macd, Signal: signal, Histogram: macd - signal}, nil
}
