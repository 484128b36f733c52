package strategy

import (
	"fmt"
	"math"

	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
	"trades-backtest/internal/s2f"
)

// HalvingCycleParams 配置减半周期策略。
type HalvingCycleParams struct {
	EMAFast          int
	EMAMedium        int
	EMASlow          int
	EMATrend         int
	RSIPeriod        int
	RSIOversold      float64
	RSIOverbought    float64
	BollWindow       int
	BollStd          float64
	BollProximity    float64
	VolumeWindow     int
	VolumeMultiplier float64
	ATRPeriod        int
	UseS2F           bool
}

func (p *HalvingCycleParams) normalize() {
	if p.EMAFast == 0 {
		p.EMAFast = 9
	}
	if p.EMAMedium == 0 {
		p.EMAMedium = 21
	}
	if p.EMASlow == 0 {
		p.EMASlow = 50
	}
	if p.EMATrend == 0 {
		p.EMATrend = 200
	}
	if p.RSIPeriod == 0 {
		p.RSIPeriod = 14
	}
	if p.RSIOversold == 0 {
		p.RSIOversold = 35
	}
	if p.RSIOverbought == 0 {
		p.RSIOverbought = 65
	}
	if p.BollWindow == 0 {
		p.BollWindow = 20
	}
	if p.BollStd == 0 {
		p.BollStd = 2
	}
	if p.BollProximity == 0 {
		p.BollProximity = 0.02
	}
	if p.VolumeWindow == 0 {
		p.VolumeWindow = 20
	}
	if p.VolumeMultiplier == 0 {
		p.VolumeMultiplier = 1.5
	}
	if p.ATRPeriod == 0 {
		p.ATRPeriod = 14
	}
}

func (p HalvingCycleParams) validate() error {
	if !(p.EMAFast < p.EMAMedium && p.EMAMedium < p.EMASlow && p.EMASlow < p.EMATrend) {
		return fmt.Errorf("EMA 周期必须递增: %d/%d/%d/%d: %w", p.EMAFast, p.EMAMedium, p.EMASlow, p.EMATrend, market.ErrInvalidParameter)
	}
	if p.RSIPeriod <= 1 || p.RSIOversold <= 0 || p.RSIOverbought >= 100 || p.RSIOversold >= p.RSIOverbought {
		return fmt.Errorf("RSI 参数非法: 周期 %d 超卖 %.1f 超买 %.1f: %w", p.RSIPeriod, p.RSIOversold, p.RSIOverbought, market.ErrInvalidParameter)
	}
	if p.BollWindow < 2 || p.BollStd <= 0 || p.BollProximity < 0 {
		return fmt.Errorf("布林带参数非法: 窗口 %d 倍数 %.2f 邻近度 %.3f: %w", p.BollWindow, p.BollStd, p.BollProximity, market.ErrInvalidParameter)
	}
	if p.VolumeWindow <= 0 || p.VolumeMultiplier <= 0 || p.ATRPeriod <= 0 {
		return fmt.Errorf("确认参数非法: 量窗 %d 量倍 %.2f ATR %d: %w", p.VolumeWindow, p.VolumeMultiplier, p.ATRPeriod, market.ErrInvalidParameter)
	}
	return nil
}

// 强制离场条件:S2F 比值与偏离同时超出该水位视为极端高估。
const (
	s2fExitRatio     = 50.0
	s2fExitDeviation = 1.0
)

// HalvingCycle 组合减半周期阶段、S2F 估值与趋势/RSI/布林带确认:
// 只在积累与上行阶段买入,在派发与临近减半阶段卖出,
// 极端高估时无条件离场。历史不足趋势 EMA 窗口时不给信号。
type HalvingCycle struct {
	params HalvingCycleParams
	calc   *indicator.Calculator
}

// NewHalvingCycle 创建策略,零值参数按默认值补齐。
func NewHalvingCycle(params HalvingCycleParams) (*HalvingCycle, error) {
	params.normalize()
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &HalvingCycle{params: params}, nil
}

func (s *HalvingCycle) Name() string { return "halving" }

func (s *HalvingCycle) MinHistory() int { return s.params.EMATrend }

func (s *HalvingCycle) Precompute(calc *indicator.Calculator) { s.calc = calc }

func (s *HalvingCycle) Evaluate(history market.Series) Signal {
	n := history.Len()
	if n < s.MinHistory() {
		return SignalHold
	}

	i := n - 1
	date := history.Dates[i]
	cycle, ok := s2f.Cycle(date)
	if !ok {
		return SignalHold
	}

	price := history.Close[i]
	emaFast, emaMedium, emaSlow, emaTrend, rsi, bbUpper, bbLower, volMA := s.columns(history)

	aboveTrend := price > emaTrend[i]
	emaAligned := emaFast[i] > emaMedium[i] && emaMedium[i] > emaSlow[i]

	rsiNow := indicator.At(rsi, i)
	oversold := rsiNow < s.params.RSIOversold
	overbought := rsiNow > s.params.RSIOverbought

	nearLower := price < indicator.At(bbLower, i)*(1+s.params.BollProximity)
	nearUpper := price > indicator.At(bbUpper, i)*(1-s.params.BollProximity)

	volumeOK := volumeConfirmed(history, volMA, i, s.params.VolumeMultiplier)

	signal := SignalHold
	switch cycle.Phase {
	case s2f.PhaseAccumulation, s2f.PhaseBull:
		if (aboveTrend && emaAligned && oversold) || (nearLower && volumeOK) {
			signal = SignalBuy
		}
	case s2f.PhaseDistribution, s2f.PhasePreHalving:
		if overbought || nearUpper {
			signal = SignalSell
		}
	}

	if s.params.UseS2F {
		ratio := s2f.Ratio(s2f.EstimateBlockHeight(date))
		if ratio > s2fExitRatio && s2f.Deviation(price, date) > s2fExitDeviation {
			signal = SignalSell
		}
	}
	return signal
}

// SizeFactor 按周期风险倍数给出仓位系数,高波动时再打七折。
func (s *HalvingCycle) SizeFactor(history market.Series) float64 {
	n := history.Len()
	if n == 0 {
		return 1
	}
	i := n - 1

	factor := 1.0
	if cycle, ok := s2f.Cycle(history.Dates[i]); ok {
		factor = math.Min(cycle.RiskMultiplier, 1)
	}

	atr := indicator.At(s.atrColumn(history), i)
	price := history.Close[i]
	if !math.IsNaN(atr) && price > 0 && atr/price > 0.05 {
		factor *= 0.7
	}
	return factor
}

// ExitMultipliers 按周期阶段缩放止损/止盈阈值:
// 积累期放宽 (1.2, 1.5),临近减半收紧 (0.8, 0.8)。
func (s *HalvingCycle) ExitMultipliers(history market.Series) (stopMul, takeMul float64) {
	n := history.Len()
	if n == 0 {
		return 1, 1
	}
	cycle, ok := s2f.Cycle(history.Dates[n-1])
	if !ok {
		return 1, 1
	}
	switch cycle.Phase {
	case s2f.PhaseAccumulation:
		return 1.2, 1.5
	case s2f.PhasePreHalving:
		return 0.8, 0.8
	default:
		return 1, 1
	}
}

func (s *HalvingCycle) columns(history market.Series) (emaFast, emaMedium, emaSlow, emaTrend, rsi, bbUpper, bbLower, volMA []float64) {
	if s.calc != nil && s.calc.Len() >= history.Len() {
		upper, _, lower := s.calc.Bollinger(s.params.BollWindow, s.params.BollStd)
		return s.calc.EMA(s.params.EMAFast),
			s.calc.EMA(s.params.EMAMedium),
			s.calc.EMA(s.params.EMASlow),
			s.calc.EMA(s.params.EMATrend),
			s.calc.RSI(s.params.RSIPeriod),
			upper, lower,
			s.calc.VolumeSMA(s.params.VolumeWindow)
	}
	upper, _, lower := indicator.BollingerBands(history.Close, s.params.BollWindow, s.params.BollStd)
	return indicator.EMA(history.Close, s.params.EMAFast),
		indicator.EMA(history.Close, s.params.EMAMedium),
		indicator.EMA(history.Close, s.params.EMASlow),
		indicator.EMA(history.Close, s.params.EMATrend),
		indicator.RSI(history.Close, s.params.RSIPeriod),
		upper, lower,
		indicator.SMA(history.Volume, s.params.VolumeWindow)
}

func (s *HalvingCycle) atrColumn(history market.Series) []float64 {
	if s.calc != nil && s.calc.Len() >= history.Len() {
		return s.calc.ATR(s.params.ATRPeriod)
	}
	return indicator.ATR(history.High, history.Low, history.Close, s.params.ATRPeriod)
}
