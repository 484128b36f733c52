package analytics

import (
	"fmt"
	"time"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/market"
)

// DCAResult 汇总定投基准:每月第一个样本按计划买入,资金当日花完,
// 净值即持仓市值。
type DCAResult struct {
	Invested       float64 `json:"invested"`
	Units          float64 `json:"units"`
	AvgCost        float64 `json:"avg_cost"`
	FinalValue     float64 `json:"final_value"`
	ReturnPct      float64 `json:"return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	TimeInLossPct  float64 `json:"time_in_loss_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	PurchaseCount  int     `json:"purchase_count"`
}

// DCA 模拟定投:首个样本投入 initial 加 deposits[0],此后每逢新月份
// 的第一个样本投入下一笔,列表耗尽后不再买入。夏普按月度重采样年化。
func DCA(series market.Series, initial float64, deposits []float64) (DCAResult, error) {
	if series.Len() == 0 {
		return DCAResult{}, fmt.Errorf("定投基准需要非空序列: %w", market.ErrInsufficientData)
	}
	if err := series.Validate(); err != nil {
		return DCAResult{}, fmt.Errorf("价格序列非法: %w", err)
	}

	units := 0.0
	invested := 0.0
	depositIdx := 0
	purchases := 0
	curve := make([]backtest.EquitySample, 0, series.Len())

	for i := 0; i < series.Len(); i++ {
		price := series.Close[i]
		if i == 0 || newMonth(series.Dates, i) {
			amount := 0.0
			if depositIdx == 0 {
				amount += initial
			}
			if depositIdx < len(deposits) {
				amount += deposits[depositIdx]
			}
			depositIdx++
			if amount > 0 {
				units += amount / price
				invested += amount
				purchases++
			}
		}
		curve = append(curve, backtest.EquitySample{Date: series.Dates[i], Equity: units * price})
	}

	res := DCAResult{
		Invested:      invested,
		Units:         units,
		FinalValue:    units * series.Close[series.Len()-1],
		PurchaseCount: purchases,
	}
	if units > 0 {
		res.AvgCost = invested / units
	}
	if invested > 0 {
		res.ReturnPct = (res.FinalValue/invested - 1) * 100
	}
	res.MaxDrawdownPct = backtest.MaxDrawdown(curve)
	res.TimeInLossPct = backtest.TimeInLoss(curve)
	res.SharpeRatio = backtest.AnnualizedSharpe(backtest.MonthlyReturns(curve), backtest.MonthlyPeriods)
	return res, nil
}

// newMonth 判断下标 i 是否进入了新的日历月份。
func newMonth(dates []time.Time, i int) bool {
	if i == 0 {
		return true
	}
	prev, cur := dates[i-1], dates[i]
	return prev.Month() != cur.Month() || prev.Year() != cur.Year()
}

// fixedDeposits 构造与引擎月度注资对齐的定投计划:首月不投,
// 此后每个月份边界投入 amount。
func fixedDeposits(series market.Series, amount float64) []float64 {
	if amount <= 0 {
		return nil
	}
	months := 0
	for i := 1; i < series.Len(); i++ {
		if newMonth(series.Dates, i) {
			months++
		}
	}
	if months == 0 {
		return nil
	}
	deposits := make([]float64, months+1)
	for i := 1; i < len(deposits); i++ {
		deposits[i] = amount
	}
	return deposits
}
