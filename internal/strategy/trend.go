package strategy

import (
	"fmt"

	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
)

// EMARSITrendParams 配置 EMA + RSI + 成交量趋势跟随策略。
type EMARSITrendParams struct {
	FastSpan         int
	MediumSpan       int
	SlowSpan         int
	RSIPeriod        int
	RSIOverbought    float64
	RSIOversold      float64
	VolumeWindow     int
	VolumeMultiplier float64
}

func (p *EMARSITrendParams) normalize() {
	if p.FastSpan == 0 {
		p.FastSpan = 10
	}
	if p.MediumSpan == 0 {
		p.MediumSpan = 21
	}
	if p.SlowSpan == 0 {
		p.SlowSpan = 50
	}
	if p.RSIPeriod == 0 {
		p.RSIPeriod = 14
	}
	if p.RSIOverbought == 0 {
		p.RSIOverbought = 70
	}
	if p.RSIOversold == 0 {
		p.RSIOversold = 30
	}
	if p.VolumeWindow == 0 {
		p.VolumeWindow = 20
	}
	if p.VolumeMultiplier == 0 {
		p.VolumeMultiplier = 1.5
	}
}

func (p EMARSITrendParams) validate() error {
	if p.FastSpan <= 0 || p.MediumSpan <= 0 || p.SlowSpan <= 0 {
		return fmt.Errorf("EMA 周期必须为正: %d/%d/%d: %w", p.FastSpan, p.MediumSpan, p.SlowSpan, market.ErrInvalidParameter)
	}
	if !(p.FastSpan < p.MediumSpan && p.MediumSpan < p.SlowSpan) {
		return fmt.Errorf("EMA 周期必须递增: %d/%d/%d: %w", p.FastSpan, p.MediumSpan, p.SlowSpan, market.ErrInvalidParameter)
	}
	if p.RSIPeriod <= 1 {
		return fmt.Errorf("RSI 周期必须大于 1,当前 %d: %w", p.RSIPeriod, market.ErrInvalidParameter)
	}
	if p.RSIOversold < 0 || p.RSIOverbought > 100 || p.RSIOversold >= p.RSIOverbought {
		return fmt.Errorf("RSI 阈值非法: 超卖 %.1f 超买 %.1f: %w", p.RSIOversold, p.RSIOverbought, market.ErrInvalidParameter)
	}
	if p.VolumeWindow <= 0 || p.VolumeMultiplier <= 0 {
		return fmt.Errorf("成交量确认参数非法: 窗口 %d 倍数 %.2f: %w", p.VolumeWindow, p.VolumeMultiplier, market.ErrInvalidParameter)
	}
	return nil
}

// EMARSITrend 依据三条 EMA 的排列、RSI 区间与成交量确认做趋势跟随:
// 完整多头排列或快线上穿中线且中线在慢线之上时买入,空头对称卖出。
type EMARSITrend struct {
	params EMARSITrendParams
	calc   *indicator.Calculator
}

// NewEMARSITrend 创建策略,零值参数按默认值补齐。
func NewEMARSITrend(params EMARSITrendParams) (*EMARSITrend, error) {
	params.normalize()
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &EMARSITrend{params: params}, nil
}

func (s *EMARSITrend) Name() string { return "ema_rsi_trend" }

func (s *EMARSITrend) MinHistory() int { return s.params.SlowSpan }

func (s *EMARSITrend) Precompute(calc *indicator.Calculator) { s.calc = calc }

func (s *EMARSITrend) Evaluate(history market.Series) Signal {
	n := history.Len()
	if n < s.MinHistory() {
		return SignalHold
	}

	fast, medium, slow, rsi, volMA := s.columns(history)
	i := n - 1

	volumeOK := volumeConfirmed(history, volMA, i, s.params.VolumeMultiplier)
	rsiNow := indicator.At(rsi, i)

	bullish := fast[i] > medium[i] && medium[i] > slow[i] &&
		rsiNow < s.params.RSIOverbought && volumeOK
	bearish := fast[i] < medium[i] && medium[i] < slow[i] &&
		rsiNow > s.params.RSIOversold && volumeOK

	if bullish || (crossAbove(fast, medium, i) && medium[i] > slow[i]) {
		return SignalBuy
	}
	if bearish || (crossBelow(fast, medium, i) && medium[i] < slow[i]) {
		return SignalSell
	}
	return SignalHold
}

func (s *EMARSITrend) columns(history market.Series) (fast, medium, slow, rsi, volMA []float64) {
	if s.calc != nil && s.calc.Len() >= history.Len() {
		return s.calc.EMA(s.params.FastSpan),
			s.calc.EMA(s.params.MediumSpan),
			s.calc.EMA(s.params.SlowSpan),
			s.calc.RSI(s.params.RSIPeriod),
			s.calc.VolumeSMA(s.params.VolumeWindow)
	}
	return indicator.EMA(history.Close, s.params.FastSpan),
		indicator.EMA(history.Close, s.params.MediumSpan),
		indicator.EMA(history.Close, s.params.SlowSpan),
		indicator.RSI(history.Close, s.params.RSIPeriod),
		indicator.SMA(history.Volume, s.params.VolumeWindow)
}
