package strategy

import (
	"fmt"
	"math"

	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
)

// RSIMeanReversionParams 配置 RSI 均值回归策略。
type RSIMeanReversionParams struct {
	Period     int
	Oversold   float64
	Overbought float64
}

func (p *RSIMeanReversionParams) normalize() {
	if p.Period == 0 {
		p.Period = 14
	}
	if p.Oversold == 0 {
		p.Oversold = 30
	}
	if p.Overbought == 0 {
		p.Overbought = 70
	}
}

func (p RSIMeanReversionParams) validate() error {
	if p.Period <= 1 {
		return fmt.Errorf("RSI 周期必须大于 1,当前 %d: %w", p.Period, market.ErrInvalidParameter)
	}
	if p.Oversold < 0 || p.Overbought > 100 || p.Oversold >= p.Overbought {
		return fmt.Errorf("RSI 阈值非法: 超卖 %.1f 超买 %.1f: %w", p.Oversold, p.Overbought, market.ErrInvalidParameter)
	}
	return nil
}

// RSIMeanReversion 在 RSI 跌入超卖区买入、升入超买区卖出。
type RSIMeanReversion struct {
	params RSIMeanReversionParams
	calc   *indicator.Calculator
}

// NewRSIMeanReversion 创建策略,零值参数按默认值补齐。
func NewRSIMeanReversion(params RSIMeanReversionParams) (*RSIMeanReversion, error) {
	params.normalize()
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &RSIMeanReversion{params: params}, nil
}

func (s *RSIMeanReversion) Name() string { return "rsi_reversion" }

func (s *RSIMeanReversion) MinHistory() int { return s.params.Period }

func (s *RSIMeanReversion) Precompute(calc *indicator.Calculator) { s.calc = calc }

func (s *RSIMeanReversion) Evaluate(history market.Series) Signal {
	n := history.Len()
	if n < s.MinHistory() {
		return SignalHold
	}

	rsi := s.column(history)
	v := indicator.At(rsi, n-1)
	if math.IsNaN(v) {
		return SignalHold
	}
	if v < s.params.Oversold {
		return SignalBuy
	}
	if v > s.params.Overbought {
		return SignalSell
	}
	return SignalHold
}

func (s *RSIMeanReversion) column(history market.Series) []float64 {
	if s.calc != nil && s.calc.Len() >= history.Len() {
		return s.calc.RSI(s.params.Period)
	}
	return indicator.RSI(history.Close, s.params.Period)
}
