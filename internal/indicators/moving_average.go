package indicators

import (
	"context"
	"fmt"

	"cryptoPaperTrader/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return string(m.config.Type)
}

// Calculate computes the moving average value based on the configured type
func (m *MovingAverage) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	if len(klines) < m.Config.Period {
		return 0, fmt.Errorf("not enough data (%d) to calculate %s for period %d", len(klines), m.Name(), m.Config.Period)
	}
	switch m.config.Type {
	case SimpleMovingAverage:
		return sma(closes(klines), m.Config.Period), nil
	case ExponentialMovingAverage:
		return ema(closes(klines), m.Config.Period), nil
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

// sma computes the simple average of the last period values.
func sma(values []float64, period int) float64 {
	total := 0.0
	for i := len(values) - period; i < len(values); i++ {
		total += values[i]
	}
	return total / float64(period)
}

// ema computes the exponential moving average over the full series, seeded
// with the SMA of the first period values.
func ema(values []float64, period int) float64 {
	series := emaSeries(values, period)
	return series[len(series)-1]
}

// emaSeries returns the EMA at every index from period-1 onward. Used by
// MACD, which needs aligned EMA histories rather than a single value.
func emaSeries(values []float64, period int) []float64 {
	multiplier := 2.0 / float64(period+1)

	out := make([]float64, 0, len(values)-period+1)
	current := sma(values[:period], period)
	out = append(out, current)
	for i := period; i < len(values); i++ {
		current = (values[i]-current)*multiplier + current
		out = append(out, current)
	}
	return out
}
