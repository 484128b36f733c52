package strategy

import (
	"fmt"

	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
)

// EMACrossS2FParams 配置 EMA 交叉 + S2F 偏离过滤策略。
type EMACrossS2FParams struct {
	FastSpan int
	SlowSpan int
}

func (p *EMACrossS2FParams) normalize() {
	if p.FastSpan == 0 {
		p.FastSpan = 10
	}
	if p.SlowSpan == 0 {
		p.SlowSpan = 50
	}
}

func (p EMACrossS2FParams) validate() error {
	if p.FastSpan <= 0 {
		return fmt.Errorf("快线周期必须为正,当前 %d: %w", p.FastSpan, market.ErrInvalidParameter)
	}
	if p.SlowSpan <= 0 {
		return fmt.Errorf("慢线周期必须为正,当前 %d: %w", p.SlowSpan, market.ErrInvalidParameter)
	}
	if p.FastSpan >= p.SlowSpan {
		return fmt.Errorf("快线周期 %d 必须小于慢线周期 %d: %w", p.FastSpan, p.SlowSpan, market.ErrInvalidParameter)
	}
	return nil
}

// EMACrossS2F 在 EMA 金叉且价格低于 S2F 模型时买入,
// 死叉且价格高于模型时卖出。偏离数据缺失时不给信号。
type EMACrossS2F struct {
	params EMACrossS2FParams
	calc   *indicator.Calculator
}

// NewEMACrossS2F 创建策略,零值参数按默认值补齐。
func NewEMACrossS2F(params EMACrossS2FParams) (*EMACrossS2F, error) {
	params.normalize()
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &EMACrossS2F{params: params}, nil
}

func (s *EMACrossS2F) Name() string { return "ema_s2f" }

func (s *EMACrossS2F) MinHistory() int { return 2 }

func (s *EMACrossS2F) Precompute(calc *indicator.Calculator) { s.calc = calc }

func (s *EMACrossS2F) Evaluate(history market.Series) Signal {
	n := history.Len()
	if n < s.MinHistory() {
		return SignalHold
	}

	fast, slow := s.columns(history)
	i := n - 1
	deviation := indicator.At(history.S2FDeviation, i)

	if crossAbove(fast, slow, i) && deviation < 0 {
		return SignalBuy
	}
	if crossBelow(fast, slow, i) && deviation > 0 {
		return SignalSell
	}
	return SignalHold
}

func (s *EMACrossS2F) columns(history market.Series) (fast, slow []float64) {
	if s.calc != nil && s.calc.Len() >= history.Len() {
		return s.calc.EMA(s.params.FastSpan), s.calc.EMA(s.params.SlowSpan)
	}
	return indicator.EMA(history.Close, s.params.FastSpan), indicator.EMA(history.Close, s.params.SlowSpan)
}
