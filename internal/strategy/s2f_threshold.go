package strategy

import (
	"fmt"
	"math"

	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
)

// S2FThresholdParams 配置纯 S2F 偏离阈值策略,阈值单位为百分比。
type S2FThresholdParams struct {
	BuyThreshold  float64
	SellThreshold float64
}

func (p *S2FThresholdParams) normalize() {
	if p.BuyThreshold == 0 && p.SellThreshold == 0 {
		p.BuyThreshold = -20
		p.SellThreshold = 20
	}
}

func (p S2FThresholdParams) validate() error {
	if p.BuyThreshold >= p.SellThreshold {
		return fmt.Errorf("买入阈值 %.2f 必须低于卖出阈值 %.2f: %w", p.BuyThreshold, p.SellThreshold, market.ErrInvalidParameter)
	}
	return nil
}

// S2FThreshold 仅依据 S2F 偏离做均值回归:
// 偏离跌破买入阈值时买入,突破卖出阈值时卖出。
type S2FThreshold struct {
	params S2FThresholdParams
}

// NewS2FThreshold 创建策略,两阈值均为零时按默认 ±20% 补齐。
func NewS2FThreshold(params S2FThresholdParams) (*S2FThreshold, error) {
	params.normalize()
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &S2FThreshold{params: params}, nil
}

func (s *S2FThreshold) Name() string { return "s2f" }

func (s *S2FThreshold) MinHistory() int { return 1 }

func (s *S2FThreshold) Evaluate(history market.Series) Signal {
	n := history.Len()
	if n < s.MinHistory() {
		return SignalHold
	}

	deviation := indicator.At(history.S2FDeviation, n-1)
	if math.IsNaN(deviation) {
		return SignalHold
	}
	if deviation <= s.params.BuyThreshold {
		return SignalBuy
	}
	if deviation >= s.params.SellThreshold {
		return SignalSell
	}
	return SignalHold
}
