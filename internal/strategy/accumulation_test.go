package strategy

import (
	"math"
	"testing"
)

func smallAccumulationParams(trendFilter bool) AccumulationParams {
	return AccumulationParams{
		SMAFast: 2, SMASlow: 4,
		RSIPeriod: 2, RSIOversold: 30, RSIExtreme: 25,
		BollWindow: 3, BollStd: 2, BollTolerance: 0.05,
		SupportWindow: 3, SupportProximity: 0.02,
		TrendFilter: trendFilter,
	}
}

func TestAccumulationTrendGateBlocksDipBuy(t *testing.T) {
	// RSI(2)=27:低于超卖线 30 但高于极端线 25,支撑通道不触发,
	// 信号完全由趋势过滤开关决定。
	closes := []float64{100, 100, 100, 100.74, 98.74}

	gated, err := NewAccumulation(smallAccumulationParams(true))
	if err != nil {
		t.Fatalf("NewAccumulation failed: %v", err)
	}
	if got := gated.Evaluate(dailySeries(testStart, closes)); got != SignalHold {
		t.Errorf("downtrend dip with trend filter: got %v, want HOLD", got)
	}

	open, err := NewAccumulation(smallAccumulationParams(false))
	if err != nil {
		t.Fatalf("NewAccumulation failed: %v", err)
	}
	if got := open.Evaluate(dailySeries(testStart, closes)); got != SignalBuy {
		t.Errorf("dip without trend filter: got %v, want BUY", got)
	}
}

func TestAccumulationBuysNearSupportOnExtremeRSI(t *testing.T) {
	s, err := NewAccumulation(smallAccumulationParams(true))
	if err != nil {
		t.Fatalf("NewAccumulation failed: %v", err)
	}
	// 趋势向下、首要通道关闭,但价格贴着 3 日最低且 RSI 为 0,
	// 支撑通道无视趋势过滤直接买入。
	series := dailySeries(testStart, []float64{100, 96, 92, 91, 90.5})
	if got := s.Evaluate(series); got != SignalBuy {
		t.Errorf("extreme RSI at support: got %v, want BUY", got)
	}
}

func TestAccumulationHoldsOnShortHistory(t *testing.T) {
	s, err := NewAccumulation(smallAccumulationParams(true))
	if err != nil {
		t.Fatalf("NewAccumulation failed: %v", err)
	}
	series := dailySeries(testStart, []float64{100, 98, 97})
	if got := s.Evaluate(series); got != SignalHold {
		t.Errorf("history below slow SMA window: got %v, want HOLD", got)
	}
}

func TestAccumulationNeverSells(t *testing.T) {
	s, err := NewAccumulation(AccumulationParams{})
	if err != nil {
		t.Fatalf("NewAccumulation failed: %v", err)
	}

	closes := make([]float64, 250)
	for i := range closes {
		closes[i] = 100 + 20*math.Sin(float64(i)/7) + 0.1*float64(i)
	}
	series := dailySeries(testStart, closes)

	for i := 1; i <= series.Len(); i++ {
		if got := s.Evaluate(series.Prefix(i)); got == SignalSell {
			t.Fatalf("accumulation produced SELL at prefix %d", i)
		}
	}
}

func TestAccumulationSupportDistance(t *testing.T) {
	s, err := NewAccumulation(smallAccumulationParams(true))
	if err != nil {
		t.Fatalf("NewAccumulation failed: %v", err)
	}

	series := dailySeries(testStart, []float64{100, 96, 92, 91, 90.5})
	if got := s.SupportDistance(series); !almostEqual(got, 0, 1e-9) {
		t.Errorf("price at rolling low: distance = %v, want 0", got)
	}

	series.Close[4] = 92.34
	// (92.34 - 91) / 91 ≈ 0.014725
	if got := s.SupportDistance(series); !almostEqual(got, 0.0147252747252747, 1e-9) {
		t.Errorf("distance = %v, want about 0.0147", got)
	}

	if got := s.SupportDistance(dailySeries(testStart, nil)); !math.IsNaN(got) {
		t.Errorf("empty series distance = %v, want NaN", got)
	}
}
