package strategy

import (
	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
)

// Signal 表示策略在单个时间步给出的离散信号。
type Signal int

const (
	SignalHold Signal = iota
	SignalBuy
	SignalSell
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Strategy 是策略评估契约:给定截至当前交易日的历史前缀,输出一个信号。
// 实现必须是确定性的纯函数,不做 I/O,不依赖隐藏可变状态;
// 历史不足其最长指标窗口时返回 SignalHold 而非报错。
type Strategy interface {
	Name() string
	MinHistory() int
	Evaluate(history market.Series) Signal
}

// Func 将闭包适配为 Strategy,用于测试与内联策略。
type Func func(history market.Series) Signal

func (f Func) Name() string { return "inline" }

func (f Func) MinHistory() int { return 0 }

func (f Func) Evaluate(history market.Series) Signal { return f(history) }

// Precomputer 为可选能力:策略可在整条序列上一次性预计算指标列(批量模式)。
// 预计算列只含尾随窗口,因此任意下标处的值与按前缀重算一致。
type Precomputer interface {
	Precompute(calc *indicator.Calculator)
}

// Sizer 为可选能力:在开仓时给出仓位比例系数,引擎会将其收敛到 (0,1]。
type Sizer interface {
	SizeFactor(history market.Series) float64
}

// ExitTuner 为可选能力:在开仓时给出止损/止盈阈值的倍率。
type ExitTuner interface {
	ExitMultipliers(history market.Series) (stopMul, takeMul float64)
}

// crossAbove 判断 a 是否在下标 i 处上穿 b。
func crossAbove(a, b []float64, i int) bool {
	if i < 1 || i >= len(a) || i >= len(b) {
		return false
	}
	return a[i-1] <= b[i-1] && a[i] > b[i]
}

// crossBelow 判断 a 是否在下标 i 处下穿 b。
func crossBelow(a, b []float64, i int) bool {
	if i < 1 || i >= len(a) || i >= len(b) {
		return false
	}
	return a[i-1] >= b[i-1] && a[i] < b[i]
}

// volumeConfirmed 判断当前成交量是否放大到均量的 multiplier 倍。
// 序列不含成交量数据时视为通过,均量暖机期内视为不通过。
func volumeConfirmed(history market.Series, volMA []float64, i int, multiplier float64) bool {
	vol := indicator.At(history.Volume, i)
	avg := indicator.At(volMA, i)
	if vol <= 0 && !(avg > 0) {
		return true
	}
	return vol > avg*multiplier
}
