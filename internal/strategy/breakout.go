package strategy

import (
	"fmt"
	"math"

	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
)

// BreakoutATRParams 配置通道突破策略。
type BreakoutATRParams struct {
	Window    int
	ATRPeriod int
}

func (p *BreakoutATRParams) normalize() {
	if p.Window == 0 {
		p.Window = 20
	}
	if p.ATRPeriod == 0 {
		p.ATRPeriod = 14
	}
}

func (p BreakoutATRParams) validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("突破窗口必须为正,当前 %d: %w", p.Window, market.ErrInvalidParameter)
	}
	if p.ATRPeriod <= 0 {
		return fmt.Errorf("ATR 周期必须为正,当前 %d: %w", p.ATRPeriod, market.ErrInvalidParameter)
	}
	return nil
}

// BreakoutATR 在收盘价突破前一日滚动最高时买入,
// 跌破前一日滚动最低时卖出。ATR 列供波动率仓位策略取用。
type BreakoutATR struct {
	params BreakoutATRParams
	calc   *indicator.Calculator
}

// NewBreakoutATR 创建策略,零值参数按默认值补齐。
func NewBreakoutATR(params BreakoutATRParams) (*BreakoutATR, error) {
	params.normalize()
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &BreakoutATR{params: params}, nil
}

func (s *BreakoutATR) Name() string { return "breakout_atr" }

func (s *BreakoutATR) MinHistory() int { return s.params.Window + 1 }

func (s *BreakoutATR) Precompute(calc *indicator.Calculator) { s.calc = calc }

func (s *BreakoutATR) Evaluate(history market.Series) Signal {
	n := history.Len()
	if n < s.MinHistory() {
		return SignalHold
	}

	max, min := s.columns(history)
	i := n - 1
	price := history.Close[i]

	prevMax := indicator.At(max, i-1)
	prevMin := indicator.At(min, i-1)

	if !math.IsNaN(prevMax) && price > prevMax {
		return SignalBuy
	}
	if !math.IsNaN(prevMin) && price < prevMin {
		return SignalSell
	}
	return SignalHold
}

func (s *BreakoutATR) columns(history market.Series) (max, min []float64) {
	if s.calc != nil && s.calc.Len() >= history.Len() {
		return s.calc.RollingMax(s.params.Window), s.calc.RollingMin(s.params.Window)
	}
	return indicator.RollingMax(history.Close, s.params.Window), indicator.RollingMin(history.Close, s.params.Window)
}
