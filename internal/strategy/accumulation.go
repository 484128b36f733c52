package strategy

import (
	"fmt"
	"math"

	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
)

// AccumulationParams 配置只买不卖的囤币策略。
type AccumulationParams struct {
	SMAFast          int
	SMASlow          int
	RSIPeriod        int
	RSIOversold      float64
	RSIExtreme       float64
	BollWindow       int
	BollStd          float64
	BollTolerance    float64
	SupportWindow    int
	SupportProximity float64
	TrendFilter      bool
}

func (p *AccumulationParams) normalize() {
	if p.SMAFast == 0 {
		p.SMAFast = 50
	}
	if p.SMASlow == 0 {
		p.SMASlow = 200
	}
	if p.RSIPeriod == 0 {
		p.RSIPeriod = 14
	}
	if p.RSIOversold == 0 {
		p.RSIOversold = 30
	}
	if p.RSIExtreme == 0 {
		p.RSIExtreme = 25
	}
	if p.BollWindow == 0 {
		p.BollWindow = 20
	}
	if p.BollStd == 0 {
		p.BollStd = 2
	}
	if p.BollTolerance == 0 {
		p.BollTolerance = 0.05
	}
	if p.SupportWindow == 0 {
		p.SupportWindow = 50
	}
	if p.SupportProximity == 0 {
		p.SupportProximity = 0.02
	}
}

func (p AccumulationParams) validate() error {
	if p.SMAFast <= 0 || p.SMASlow <= 0 || p.SMAFast >= p.SMASlow {
		return fmt.Errorf("趋势均线周期非法: %d/%d: %w", p.SMAFast, p.SMASlow, market.ErrInvalidParameter)
	}
	if p.RSIPeriod <= 1 || p.RSIOversold <= 0 || p.RSIExtreme <= 0 {
		return fmt.Errorf("RSI 参数非法: 周期 %d 超卖 %.1f 极端 %.1f: %w", p.RSIPeriod, p.RSIOversold, p.RSIExtreme, market.ErrInvalidParameter)
	}
	if p.BollWindow < 2 || p.BollStd <= 0 || p.BollTolerance < 0 {
		return fmt.Errorf("布林带参数非法: 窗口 %d 倍数 %.2f 容差 %.3f: %w", p.BollWindow, p.BollStd, p.BollTolerance, market.ErrInvalidParameter)
	}
	if p.SupportWindow <= 0 || p.SupportProximity < 0 {
		return fmt.Errorf("支撑位参数非法: 窗口 %d 邻近度 %.3f: %w", p.SupportWindow, p.SupportProximity, market.ErrInvalidParameter)
	}
	return nil
}

// Accumulation 为只买不卖的囤币策略:趋势向上且 RSI 超卖、价格贴近布林带
// 下轨时买入;或价格紧贴动态支撑且 RSI 极端超卖时买入。永不卖出。
type Accumulation struct {
	params AccumulationParams
	calc   *indicator.Calculator
}

// NewAccumulation 创建策略,零值参数按默认值补齐。
func NewAccumulation(params AccumulationParams) (*Accumulation, error) {
	params.normalize()
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Accumulation{params: params}, nil
}

func (s *Accumulation) Name() string { return "accumulation" }

// Params 返回补齐默认值后的参数。
func (s *Accumulation) Params() AccumulationParams { return s.params }

func (s *Accumulation) MinHistory() int { return s.params.SMASlow }

func (s *Accumulation) Precompute(calc *indicator.Calculator) { s.calc = calc }

func (s *Accumulation) Evaluate(history market.Series) Signal {
	n := history.Len()
	if n < s.MinHistory() {
		return SignalHold
	}

	i := n - 1
	price := history.Close[i]
	smaFast, smaSlow, rsi, bbLower, support := s.columns(history)

	trendUp := smaFast[i] > smaSlow[i]
	if !s.params.TrendFilter {
		trendUp = true
	}
	rsiNow := indicator.At(rsi, i)
	nearLower := price < indicator.At(bbLower, i)*(1+s.params.BollTolerance)

	if trendUp && rsiNow < s.params.RSIOversold && nearLower {
		return SignalBuy
	}

	if dist := supportDistance(price, indicator.At(support, i)); !math.IsNaN(dist) &&
		dist < s.params.SupportProximity && rsiNow < s.params.RSIExtreme {
		return SignalBuy
	}
	return SignalHold
}

// SupportDistance 返回价格相对动态支撑位的相对距离,用于仓位调节。
func (s *Accumulation) SupportDistance(history market.Series) float64 {
	n := history.Len()
	if n == 0 {
		return math.NaN()
	}
	_, _, _, _, support := s.columns(history)
	return supportDistance(history.Close[n-1], indicator.At(support, n-1))
}

func supportDistance(price, support float64) float64 {
	if math.IsNaN(support) || support <= 0 {
		return math.NaN()
	}
	return (price - support) / support
}

func (s *Accumulation) columns(history market.Series) (smaFast, smaSlow, rsi, bbLower, support []float64) {
	if s.calc != nil && s.calc.Len() >= history.Len() {
		_, _, lower := s.calc.Bollinger(s.params.BollWindow, s.params.BollStd)
		return s.calc.SMA(s.params.SMAFast),
			s.calc.SMA(s.params.SMASlow),
			s.calc.RSI(s.params.RSIPeriod),
			lower,
			s.calc.RollingMin(s.params.SupportWindow)
	}
	_, _, lower := indicator.BollingerBands(history.Close, s.params.BollWindow, s.params.BollStd)
	return indicator.SMA(history.Close, s.params.SMAFast),
		indicator.SMA(history.Close, s.params.SMASlow),
		indicator.RSI(history.Close, s.params.RSIPeriod),
		lower,
		indicator.RollingMin(history.Close, s.params.SupportWindow)
}
