package backtest

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"go.uber.org/multierr"

	"trades-backtest/internal/market"
	"trades-backtest/internal/strategy"
)

func makeSeries(closes ...float64) market.Series {
	points := make([]market.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = market.PricePoint{
			Date:         day(i),
			Open:         c,
			High:         c,
			Low:          c,
			Close:        c,
			S2FDeviation: math.NaN(),
		}
	}
	return market.NewSeries(points)
}

func seriesWithDates(dates []time.Time, closes []float64) market.Series {
	points := make([]market.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = market.PricePoint{Date: dates[i], Close: c, S2FDeviation: math.NaN()}
	}
	return market.NewSeries(points)
}

// scriptedStrategy 按下标回放固定信号,未指定的下标为 HOLD。
type scriptedStrategy struct {
	signals map[int]strategy.Signal
}

func (s scriptedStrategy) Name() string { return "scripted" }

func (s scriptedStrategy) MinHistory() int { return 0 }

func (s scriptedStrategy) Evaluate(history market.Series) strategy.Signal {
	return s.signals[history.Len()-1]
}

type sizedStrategy struct {
	scriptedStrategy
	factor float64
}

func (s sizedStrategy) SizeFactor(market.Series) float64 { return s.factor }

type tunedStrategy struct {
	scriptedStrategy
	stopMul float64
	takeMul float64
}

func (s tunedStrategy) ExitMultipliers(market.Series) (float64, float64) {
	return s.stopMul, s.takeMul
}

func mustEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func TestEngineWorkedExample(t *testing.T) {
	engine := mustEngine(t, Config{InitialCapital: 1000})
	series := makeSeries(100, 105, 95, 120, 90)
	strat := scriptedStrategy{signals: map[int]strategy.Signal{1: strategy.SignalBuy, 3: strategy.SignalSell}}

	result, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("trade count = %d, want 1", len(result.Trades))
	}
	tr := result.Trades[0]
	if tr.EntryPrice != 105 || tr.ExitPrice != 120 || tr.Side != "LONG" || tr.Reason != ReasonSignal {
		t.Errorf("unexpected trade: %+v", tr)
	}
	if !almostEqual(tr.Size, 1000.0/105, 1e-9) {
		t.Errorf("size = %v, want %v", tr.Size, 1000.0/105)
	}
	if !almostEqual(tr.Pnl, 1000.0/105*15, 1e-9) {
		t.Errorf("pnl = %v, want %v", tr.Pnl, 1000.0/105*15)
	}

	if !almostEqual(result.FinalCapital, 1000+1000.0/105*15, 1e-9) {
		t.Errorf("final capital = %v, want %v", result.FinalCapital, 1000+1000.0/105*15)
	}
	if !almostEqual(result.Metrics.TotalReturnPct, 1000.0/105*15/10, 1e-9) {
		t.Errorf("total return = %v%%, want %v%%", result.Metrics.TotalReturnPct, 1000.0/105*15/10)
	}

	wantCurve := []float64{1000, 1000, 1000 - 1000.0/105*10, 1000 + 1000.0/105*15, 1000 + 1000.0/105*15}
	if len(result.EquityCurve) != len(wantCurve) {
		t.Fatalf("curve length = %d, want %d", len(result.EquityCurve), len(wantCurve))
	}
	for i, want := range wantCurve {
		if !almostEqual(result.EquityCurve[i].Equity, want, 1e-9) {
			t.Errorf("curve[%d] = %v, want %v", i, result.EquityCurve[i].Equity, want)
		}
	}
}

func TestEngineEmptySeries(t *testing.T) {
	engine := mustEngine(t, Config{InitialCapital: 1000})
	result, err := engine.Run(market.Series{}, scriptedStrategy{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.FinalCapital != 1000 || len(result.Trades) != 0 {
		t.Errorf("empty series: final = %v trades = %d, want 1000/0", result.FinalCapital, len(result.Trades))
	}
	if result.Metrics.SharpeRatio != 0 || result.Metrics.MaxDrawdownPct != 0 {
		t.Errorf("empty series metrics = %+v, want zeros", result.Metrics)
	}
}

func TestEngineNilStrategy(t *testing.T) {
	engine := mustEngine(t, Config{})
	if _, err := engine.Run(makeSeries(100), nil); err == nil {
		t.Fatal("nil strategy must fail")
	}
}

func TestEngineRejectsInvalidSeries(t *testing.T) {
	engine := mustEngine(t, Config{})
	same := day(0)
	series := seriesWithDates([]time.Time{same, same}, []float64{100, 101})
	if _, err := engine.Run(series, scriptedStrategy{}); err == nil {
		t.Fatal("non-increasing dates must fail")
	}
}

func TestEngineStopLossRunsBeforeSignal(t *testing.T) {
	engine := mustEngine(t, Config{InitialCapital: 1000, StopLossPct: 0.10})
	series := makeSeries(100, 100, 89, 120)
	strat := scriptedStrategy{signals: map[int]strategy.Signal{1: strategy.SignalBuy, 2: strategy.SignalSell}}

	result, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("trade count = %d, want 1", len(result.Trades))
	}
	tr := result.Trades[0]
	if tr.Reason != ReasonStopLoss || tr.ExitPrice != 89 {
		t.Errorf("trade = %+v, want stop loss at 89", tr)
	}
	if !almostEqual(result.FinalCapital, 890, 1e-9) {
		t.Errorf("final capital = %v, want 890", result.FinalCapital)
	}
}

func TestEngineTakeProfit(t *testing.T) {
	engine := mustEngine(t, Config{InitialCapital: 1000, TakeProfitPct: 0.20})
	series := makeSeries(100, 100, 121, 121)
	strat := scriptedStrategy{signals: map[int]strategy.Signal{1: strategy.SignalBuy}}

	result, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Trades) != 1 || result.Trades[0].Reason != ReasonTakeProfit {
		t.Fatalf("trades = %+v, want one take profit", result.Trades)
	}
	if !almostEqual(result.FinalCapital, 1210, 1e-9) {
		t.Errorf("final capital = %v, want 1210", result.FinalCapital)
	}
}

func TestEngineShortFlowWithoutSameBarReversal(t *testing.T) {
	engine := mustEngine(t, Config{InitialCapital: 1000, AllowShort: true})
	series := makeSeries(100, 100, 80, 80)
	strat := scriptedStrategy{signals: map[int]strategy.Signal{
		1: strategy.SignalSell,
		2: strategy.SignalBuy,
		3: strategy.SignalBuy,
	}}

	result, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("trade count = %d, want 2", len(result.Trades))
	}

	short := result.Trades[0]
	if short.Side != "SHORT" || short.Reason != ReasonSignal || !almostEqual(short.Pnl, 200, 1e-9) {
		t.Errorf("short trade = %+v", short)
	}

	// 平空的 BUY 不得在同一根上反手开多;下一个 BUY 在最后一根开仓,
	// 随即按期末价强制平仓。
	last := result.Trades[1]
	if last.Side != "LONG" || last.Reason != ReasonEndOfBacktest {
		t.Errorf("last trade = %+v", last)
	}
	if !last.EntryDate.Equal(day(3)) || last.HoldingDays != 0 || last.Pnl != 0 {
		t.Errorf("last trade = %+v, want zero-length trade on the final bar", last)
	}
	if !almostEqual(result.FinalCapital, 1200, 1e-9) {
		t.Errorf("final capital = %v, want 1200", result.FinalCapital)
	}
}

func TestEngineEquityIdentityAndFinalFlat(t *testing.T) {
	engine := mustEngine(t, Config{InitialCapital: 1000, CommissionRate: 0.002, AllowShort: true})
	series := makeSeries(100, 104, 98, 103, 97, 101, 95)
	strat := scriptedStrategy{signals: map[int]strategy.Signal{
		1: strategy.SignalBuy,
		3: strategy.SignalSell,
		4: strategy.SignalSell,
	}}

	result, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.EquityCurve) != series.Len() {
		t.Fatalf("curve length = %d, want %d", len(result.EquityCurve), series.Len())
	}

	for i, s := range result.EquityCurve {
		if !almostEqual(s.Cash+s.PositionValue, s.Equity, 1e-9) {
			t.Errorf("sample %d: cash %v + position %v != equity %v", i, s.Cash, s.PositionValue, s.Equity)
		}
	}

	last := result.EquityCurve[len(result.EquityCurve)-1]
	if last.PositionValue != 0 {
		t.Errorf("final position value = %v, want 0 after forced close", last.PositionValue)
	}
	if final := result.Trades[len(result.Trades)-1]; final.Reason != ReasonEndOfBacktest {
		t.Errorf("final trade reason = %s, want %s", final.Reason, ReasonEndOfBacktest)
	}
	if !almostEqual(result.FinalCapital, last.Equity, 1e-9) {
		t.Errorf("final capital %v does not match last equity %v", result.FinalCapital, last.Equity)
	}
}

func TestEngineShortDisabledByDefault(t *testing.T) {
	engine := mustEngine(t, Config{InitialCapital: 1000})
	series := makeSeries(100, 100, 80)
	strat := scriptedStrategy{signals: map[int]strategy.Signal{1: strategy.SignalSell}}

	result, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Trades) != 0 || result.FinalCapital != 1000 {
		t.Errorf("short disabled: trades = %d final = %v", len(result.Trades), result.FinalCapital)
	}
}

func TestEngineLeverageScalesPnl(t *testing.T) {
	engine := mustEngine(t, Config{InitialCapital: 1000, Leverage: 2})
	series := makeSeries(100, 100, 110)
	strat := scriptedStrategy{signals: map[int]strategy.Signal{1: strategy.SignalBuy}}

	result, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// 10% 的价格涨幅在 2 倍杠杆下是 20% 的收益。
	if !almostEqual(result.FinalCapital, 1200, 1e-9) {
		t.Errorf("final capital = %v, want 1200", result.FinalCapital)
	}
}

func TestEngineMonthlyInjection(t *testing.T) {
	engine := mustEngine(t, Config{
		InitialCapital: 1000,
		Injection:      Injection{Enabled: true, Amount: 100},
	})
	dates := []time.Time{
		time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	series := seriesWithDates(dates, []float64{100, 100, 100, 100})

	result, err := engine.Run(series, scriptedStrategy{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.InvestedCapital != 1200 {
		t.Errorf("invested = %v, want 1200", result.InvestedCapital)
	}
	if result.FinalCapital != 1200 {
		t.Errorf("final = %v, want 1200", result.FinalCapital)
	}
	if result.Metrics.TotalReturnPct != 0 {
		t.Errorf("return = %v%%, want 0%%", result.Metrics.TotalReturnPct)
	}

	wantCurve := []float64{1000, 1100, 1100, 1200}
	for i, want := range wantCurve {
		if result.EquityCurve[i].Equity != want {
			t.Errorf("curve[%d] = %v, want %v", i, result.EquityCurve[i].Equity, want)
		}
	}
}

func TestEngineVolatilitySizing(t *testing.T) {
	cfg := Config{
		InitialCapital: 1000,
		Sizing: Sizing{
			Mode:        SizingVolatility,
			RiskPct:     0.01,
			ATRMultiple: 2.5,
			ATRPeriod:   3,
			CapPct:      0.10,
		},
	}
	engine := mustEngine(t, cfg)

	series := makeSeries(100, 100, 100, 100, 100)
	for i := 0; i < series.Len(); i++ {
		series.High[i] = 105
		series.Low[i] = 95
	}
	strat := scriptedStrategy{signals: map[int]strategy.Signal{3: strategy.SignalBuy}}

	result, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("trade count = %d, want 1", len(result.Trades))
	}
	// ATR=10, 止损距离 = 2.5×10/100 = 0.25, 仓位比例 = 0.01/0.25 = 0.04。
	if got := result.Trades[0].Size; !almostEqual(got, 0.4, 1e-9) {
		t.Errorf("size = %v, want 0.4", got)
	}
}

func TestEngineVolatilitySizingCap(t *testing.T) {
	cfg := Config{
		InitialCapital: 1000,
		Sizing: Sizing{
			Mode:        SizingVolatility,
			RiskPct:     0.06,
			ATRMultiple: 2.5,
			ATRPeriod:   3,
			CapPct:      0.10,
		},
	}
	engine := mustEngine(t, cfg)

	series := makeSeries(100, 100, 100, 100, 100)
	for i := 0; i < series.Len(); i++ {
		series.High[i] = 105
		series.Low[i] = 95
	}
	strat := scriptedStrategy{signals: map[int]strategy.Signal{3: strategy.SignalBuy}}

	result, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// 0.06/0.25 = 0.24 超过上限,按 CapPct 收敛。
	if got := result.Trades[0].Size; !almostEqual(got, 1.0, 1e-9) {
		t.Errorf("size = %v, want 1.0", got)
	}
}

func TestEngineVolatilitySizingSkipsWarmup(t *testing.T) {
	cfg := Config{
		InitialCapital: 1000,
		Sizing:         Sizing{Mode: SizingVolatility, ATRPeriod: 3},
	}
	engine := mustEngine(t, cfg)

	series := makeSeries(100, 100, 100)
	strat := scriptedStrategy{signals: map[int]strategy.Signal{1: strategy.SignalBuy}}

	result, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("ATR warmup must skip the open, got %d trades", len(result.Trades))
	}
}

func TestEngineSizeFactorScalesPosition(t *testing.T) {
	engine := mustEngine(t, Config{InitialCapital: 1000})
	series := makeSeries(100, 100, 110)
	base := scriptedStrategy{signals: map[int]strategy.Signal{1: strategy.SignalBuy}}

	cases := []struct {
		factor   float64
		wantSize float64
	}{
		{0.5, 5},
		{2, 10}, // 系数超过 1 收敛为 1
	}
	for _, c := range cases {
		result, err := engine.Run(series, sizedStrategy{scriptedStrategy: base, factor: c.factor})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(result.Trades) != 1 {
			t.Fatalf("factor %v: trade count = %d, want 1", c.factor, len(result.Trades))
		}
		if got := result.Trades[0].Size; !almostEqual(got, c.wantSize, 1e-9) {
			t.Errorf("factor %v: size = %v, want %v", c.factor, got, c.wantSize)
		}
	}

	for _, factor := range []float64{0, -1, math.NaN()} {
		result, err := engine.Run(series, sizedStrategy{scriptedStrategy: base, factor: factor})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(result.Trades) != 0 {
			t.Errorf("factor %v must skip the open", factor)
		}
	}
}

func TestEngineExitTunerWidensStop(t *testing.T) {
	engine := mustEngine(t, Config{InitialCapital: 1000, StopLossPct: 0.05})
	series := makeSeries(100, 100, 92, 88, 100)
	base := scriptedStrategy{signals: map[int]strategy.Signal{1: strategy.SignalBuy}}

	result, err := engine.Run(series, tunedStrategy{scriptedStrategy: base, stopMul: 2, takeMul: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("trade count = %d, want 1", len(result.Trades))
	}
	tr := result.Trades[0]
	// 放宽一倍后 8% 的回撤不触发,12% 触发。
	if tr.Reason != ReasonStopLoss || tr.ExitPrice != 88 {
		t.Errorf("trade = %+v, want stop loss at 88", tr)
	}
}

func TestEngineDeterministicAcrossRuns(t *testing.T) {
	engine := mustEngine(t, Config{InitialCapital: 1000, CommissionRate: 0.001, StopLossPct: 0.08})

	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + 15*math.Sin(float64(i)/4)
	}
	series := makeSeries(closes...)
	strat, err := strategy.New("rsi_reversion", map[string]float64{"period": 3})
	if err != nil {
		t.Fatalf("strategy.New failed: %v", err)
	}

	first, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs must produce identical results")
	}
}

func TestEngineConfigValidation(t *testing.T) {
	_, err := NewEngine(Config{CommissionRate: 1.5, Sizing: Sizing{Fraction: 2}}, nil)
	if !errors.Is(err, market.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if n := len(multierr.Errors(errors.Unwrap(err))); n < 2 {
		t.Errorf("expected both violations reported, got %d", n)
	}
}
