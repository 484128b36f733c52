package backtest

import "math"

// 夏普比率年化系数对应的每年期数。
const (
	DailyPeriods   = 365.0
	MonthlyPeriods = 12.0
)

const daysPerYear = 365.25

// Metrics 记录回测绩效指标。百分比字段均以百分数表示,
// ProfitFactor 在没有亏损交易时为 +Inf。
type Metrics struct {
	TotalReturnPct float64 `json:"total_return_pct"`
	CAGRPct        float64 `json:"cagr_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	WinRatePct     float64 `json:"win_rate_pct"`
	ProfitFactor   float64 `json:"profit_factor"`
	TradeCount     int     `json:"trade_count"`
}

// ComputeMetrics 根据投入本金、净值曲线与成交记录计算绩效。
// periodsPerYear 为曲线采样频率对应的每年期数,日线取 DailyPeriods。
func ComputeMetrics(invested float64, curve []EquitySample, trades []Trade, periodsPerYear float64) Metrics {
	m := Metrics{TradeCount: len(trades)}
	if len(curve) == 0 || invested <= 0 {
		return m
	}

	final := curve[len(curve)-1].Equity
	m.TotalReturnPct = (final - invested) / invested * 100
	m.CAGRPct = computeCAGR(invested, final, curve)
	m.MaxDrawdownPct = MaxDrawdown(curve)
	m.SharpeRatio = AnnualizedSharpe(periodReturns(curve), periodsPerYear)

	wins := 0
	grossProfit, grossLoss := 0.0, 0.0
	for _, t := range trades {
		if t.Pnl > 0 {
			wins++
			grossProfit += t.Pnl
		} else {
			grossLoss += -t.Pnl
		}
	}
	if len(trades) > 0 {
		m.WinRatePct = float64(wins) / float64(len(trades)) * 100
	}
	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}
	return m
}

// computeCAGR 按日历天数年化。曲线不足一天时无年化意义,返回 0。
func computeCAGR(invested, final float64, curve []EquitySample) float64 {
	days := curve[len(curve)-1].Date.Sub(curve[0].Date).Hours() / 24
	if days <= 0 {
		return 0
	}
	ratio := final / invested
	if ratio <= 0 {
		return 0
	}
	years := days / daysPerYear
	return (math.Pow(ratio, 1/years) - 1) * 100
}

// MaxDrawdown 返回相对历史峰值的最大回撤,以正百分数表示。
func MaxDrawdown(curve []EquitySample) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, sample := range curve {
		if sample.Equity > peak {
			peak = sample.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - sample.Equity) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD * 100
}

// TimeInLoss 返回净值低于历史峰值的样本占比,以百分数表示。
// 定投类回测用它衡量浮亏时长。
func TimeInLoss(curve []EquitySample) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := 0.0
	below := 0
	for _, sample := range curve {
		if sample.Equity > peak {
			peak = sample.Equity
		}
		if peak > 0 && sample.Equity < peak {
			below++
		}
	}
	return float64(below) / float64(len(curve)) * 100
}

// AnnualizedSharpe 以期收益均值除以样本标准差并年化,无风险利率取 0。
// 收益不足两期或波动为零时返回 0。
func AnnualizedSharpe(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// periodReturns 计算净值曲线的逐期收益率。
func periodReturns(curve []EquitySample) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	return returns
}

// MonthlyReturns 将净值曲线重采样到每月最后一个样本,再计算逐月收益率。
// 定投类回测用它配合 MonthlyPeriods 年化,避免日内注资扭曲夏普。
func MonthlyReturns(curve []EquitySample) []float64 {
	if len(curve) == 0 {
		return nil
	}

	monthEnds := make([]float64, 0)
	for i, sample := range curve {
		last := i == len(curve)-1
		if !last {
			next := curve[i+1].Date
			if next.Year() == sample.Date.Year() && next.Month() == sample.Date.Month() {
				continue
			}
		}
		monthEnds = append(monthEnds, sample.Equity)
	}

	if len(monthEnds) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(monthEnds)-1)
	for i := 1; i < len(monthEnds); i++ {
		if monthEnds[i-1] <= 0 {
			continue
		}
		returns = append(returns, monthEnds[i]/monthEnds[i-1]-1)
	}
	return returns
}
