package indicators

import (
	"context"
	"math"
	"testing"
	"time"

	"cryptoPaperTrader/internal/domain"
)

func klinesFromCloses(prices []float64) []*domain.Kline {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*domain.Kline, len(prices))
	for i, p := range prices {
		klines[i] = &domain.Kline{
			OpenTime:  base.Add(time.Duration(i) * time.Minute),
			CloseTime: base.Add(time.Duration(i+1) * time.Minute),
			Open:      p,
			High:      p + 1,
			Low:       p - 1,
			Close:     p,
		}
	}
	return klines
}

func TestSMA(t *testing.T) {
	ma := NewMovingAverage(MovingAverageConfig{
		IndicatorConfig: IndicatorConfig{Period: 3},
		Type:            SimpleMovingAverage,
	})

	klines := klinesFromCloses([]float64{1, 2, 3, 4, 5})
	got, err := ma.Calculate(context.Background(), klines)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != 4 {
		t.Errorf("Expected SMA(3) of last three closes to be 4, got %f", got)
	}
}

func TestSMANotEnoughData(t *testing.T) {
	ma := NewMovingAverage(MovingAverageConfig{
		IndicatorConfig: IndicatorConfig{Period: 10},
		Type:            SimpleMovingAverage,
	})
	if _, err := ma.Calculate(context.Background(), klinesFromCloses([]float64{1, 2, 3})); err == nil {
		t.Error("Expected error for insufficient data")
	}
}

func TestEMAConstantSeries(t *testing.T) {
	ma := NewMovingAverage(MovingAverageConfig{
		IndicatorConfig: IndicatorConfig{Period: 5},
		Type:            ExponentialMovingAverage,
	})

	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 42
	}
	got, err := ma.Calculate(context.Background(), klinesFromCloses(prices))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(got-42) > 1e-9 {
		t.Errorf("Expected EMA of constant series to be 42, got %f", got)
	}
}

func TestEMAFollowsTrend(t *testing.T) {
	ma := NewMovingAverage(MovingAverageConfig{
		IndicatorConfig: IndicatorConfig{Period: 3},
		Type:            ExponentialMovingAverage,
	})

	rising := klinesFromCloses([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	got, err := ma.Calculate(context.Background(), rising)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// EMA lags the last close but must sit above the full-series mean
	if got <= 4.5 || got >= 8 {
		t.Errorf("Expected EMA between mean and last close for rising series, got %f", got)
	}
}

func TestMACDCrossesOnTrendChange(t *testing.T) {
	macd := NewMACD(MACDConfig{FastPeriod: 3, SlowPeriod: 6, SignalPeriod: 3})

	// Falling then sharply rising series: histogram should end positive
	prices := []float64{20, 19, 18, 17, 16, 15, 14, 13, 14, 16, 18, 20, 22, 24}
	v, err := macd.CalculateValue(context.Background(), klinesFromCloses(prices))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if v.Histogram <= 0 {
		t.Errorf("Expected positive histogram after upturn, got %+v", v)
	}

	if _, err := macd.CalculateValue(context.Background(), klinesFromCloses(prices[:5])); err == nil {
		t.Error("Expected error for insufficient data")
	}
}
