package analytics

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/market"
	"trades-backtest/internal/strategy"
)

// Verdict 表示策略相对持有基准的结论。
type Verdict string

const (
	VerdictBetter Verdict = "better"
	VerdictWorse  Verdict = "worse"
	VerdictEqual  Verdict = "equal"
)

// 收益以小数比较,差值低于该阈值视为打平。
const holdTolerance = 1e-9

// HoldComparison 汇总策略与持有基准的对比,收益均为小数,
// DiffPct 为两者相差的百分点数。
type HoldComparison struct {
	StrategyReturn float64 `json:"strategy_return"`
	HoldReturn     float64 `json:"hold_return"`
	DiffPct        float64 `json:"diff_pct"`
	Verdict        Verdict `json:"verdict"`
}

// holdStrategy 每根都给出买入信号:第一根全仓开多后一直持有,
// 期末由引擎强制平仓。
type holdStrategy struct{}

func (holdStrategy) Name() string { return "hold" }

func (holdStrategy) MinHistory() int { return 0 }

func (holdStrategy) Evaluate(market.Series) strategy.Signal { return strategy.SignalBuy }

// BuyAndHold 用独立引擎跑买入持有基准:沿用资金与手续费设置,
// 但不带止损止盈、注资与波动率仓位,得到可对照的完整指标。
func BuyAndHold(cfg backtest.Config, logger *zap.Logger, series market.Series) (backtest.Result, error) {
	cfg.StopLossPct = 0
	cfg.TakeProfitPct = 0
	cfg.Sizing = backtest.Sizing{}
	cfg.Injection = backtest.Injection{}

	engine, err := backtest.NewEngine(cfg, logger)
	if err != nil {
		return backtest.Result{}, fmt.Errorf("构建持有基准引擎失败: %w", err)
	}
	result, err := engine.Run(series, holdStrategy{})
	if err != nil {
		return backtest.Result{}, fmt.Errorf("持有基准回测失败: %w", err)
	}
	return result, nil
}

// HoldReturn 返回区间首尾收盘价之比减一。
func HoldReturn(series market.Series) (float64, error) {
	if series.Len() < 2 {
		return 0, fmt.Errorf("持有基准需要至少两个价格点: %w", market.ErrInsufficientData)
	}
	start := series.Close[0]
	if start <= 0 || math.IsNaN(start) {
		return 0, fmt.Errorf("持有基准起始价非法: %v", start)
	}
	return series.Close[series.Len()-1]/start - 1, nil
}

// CompareWithHold 将一次回测与同区间的持有收益对比。策略收益按
// 最终资金相对投入本金计算,与注资口径一致。
func CompareWithHold(result backtest.Result, series market.Series) (HoldComparison, error) {
	holdReturn, err := HoldReturn(series)
	if err != nil {
		return HoldComparison{}, err
	}

	strategyReturn := 0.0
	if result.InvestedCapital > 0 {
		strategyReturn = result.FinalCapital/result.InvestedCapital - 1
	}

	return HoldComparison{
		StrategyReturn: strategyReturn,
		HoldReturn:     holdReturn,
		DiffPct:        (strategyReturn - holdReturn) * 100,
		Verdict:        verdictFor(strategyReturn, holdReturn),
	}, nil
}

func verdictFor(strategyReturn, holdReturn float64) Verdict {
	switch {
	case math.Abs(strategyReturn-holdReturn) < holdTolerance:
		return VerdictEqual
	case strategyReturn > holdReturn:
		return VerdictBetter
	default:
		return VerdictWorse
	}
}
