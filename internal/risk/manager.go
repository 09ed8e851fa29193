package risk

import (
	"fmt"

	"cryptoPaperTrader/internal/ports"
)

// Config holds configuration for risk management.
type Config struct {
	DefaultMargin       float64 // Margin reserved per trade
	MaxOpenTrades       int     // Cap on simultaneously active trades (0 = unlimited)
	MaxExposure         float64 // Cap on total margin locked across active trades (0 = unlimited)
	TakeProfitPercent   float64 // Target return on margin (e.g., 0.03 for 3%)
	StopLossPercent     float64 // Tolerated loss on margin (e.g., 0.0025 for 0.25%)
	TrailingStopPercent float64 // Trailing distance as return on margin (0 disables trailing)
}

// Manager derives trigger prices and validates opens against position and
// exposure limits. Trigger percentages are expressed as returns on margin,
// so the price distance shrinks as leverage grows: a 3% target at 4x
// leverage sits 0.75% away from the entry price.
type Manager struct {
	cfg Config
}

// NewManager creates a risk manager, validating its configuration.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.DefaultMargin <= 0 {
		return nil, fmt.Errorf("DefaultMargin must be positive: %w", ports.ErrConfigurationError)
	}
	if cfg.TakeProfitPercent <= 0 {
		return nil, fmt.Errorf("TakeProfitPercent must be positive: %w", ports.ErrConfigurationError)
	}
	if cfg.StopLossPercent <= 0 || cfg.StopLossPercent >= 1 {
		return nil, fmt.Errorf("StopLossPercent must be between 0 and 1: %w", ports.ErrConfigurationError)
	}
	if cfg.TrailingStopPercent < 0 {
		return nil, fmt.Errorf("TrailingStopPercent cannot be negative: %w", ports.ErrConfigurationError)
	}
	if cfg.MaxOpenTrades < 0 || cfg.MaxExposure < 0 {
		return nil, fmt.Errorf("limits cannot be negative: %w", ports.ErrConfigurationError)
	}
	return &Manager{cfg: cfg}, nil
}

// MarginFor returns the margin to reserve for a new trade.
func (m *Manager) MarginFor() float64 {
	return m.cfg.DefaultMargin
}

// TrailingEnabled reports whether trailing stops are configured.
func (m *Manager) TrailingEnabled() bool {
	return m.cfg.TrailingStopPercent > 0
}

// TakeProfitPrice derives the take-profit trigger from the entry price,
// adjusting the configured percentage for leverage.
func (m *Manager) TakeProfitPrice(entryPrice float64, leverage int, isLong bool) float64 {
	move := m.cfg.TakeProfitPercent / float64(leverage)
	if isLong {
		return entryPrice * (1 + move)
	}
	return entryPrice * (1 - move)
}

// StopLossPrice derives the stop-loss trigger from the entry price,
// adjusting the configured percentage for leverage.
func (m *Manager) StopLossPrice(entryPrice float64, leverage int, isLong bool) float64 {
	move := m.cfg.StopLossPercent / float64(leverage)
	if isLong {
		return entryPrice * (1 - move)
	}
	return entryPrice * (1 + move)
}

// TrailingStopPrice derives a tightened stop from the current price. The
// caller only applies it when it is tighter than the existing stop.
func (m *Manager) TrailingStopPrice(currentPrice float64, leverage int, isLong bool) float64 {
	move := m.cfg.TrailingStopPercent / float64(leverage)
	if isLong {
		return currentPrice * (1 - move)
	}
	return currentPrice * (1 + move)
}

// ValidateOpen checks position-count and exposure limits before a new trade
// is opened. openCount and lockedMargin describe the current active set.
func (m *Manager) ValidateOpen(openCount int, lockedMargin, newMargin float64) error {
	if m.cfg.MaxOpenTrades > 0 && openCount >= m.cfg.MaxOpenTrades {
		return fmt.Errorf("open trades %d at configured maximum %d: %w", openCount, m.cfg.MaxOpenTrades, ports.ErrRiskLimitExceeded)
	}
	if m.cfg.MaxExposure > 0 && lockedMargin+newMargin > m.cfg.MaxExposure {
		return fmt.Errorf("total margin %.2f would exceed maximum exposure %.2f: %w", lockedMargin+newMargin, m.cfg.MaxExposure, ports.ErrRiskLimitExceeded)
	}
	return nil
}
