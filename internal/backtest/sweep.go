package backtest

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
	"trades-backtest/internal/strategy"
)

// 清扫结果的排序依据。
const (
	RankFinalCapital = "final_capital"
	RankSharpe       = "sharpe"
)

// Axis 定义参数清扫的一个维度,取值按给定顺序枚举。
type Axis struct {
	Name   string
	Values []float64
}

// SweepConfig 定义参数清扫。Fixed 叠加在每个网格点上,
// Concurrency 为零时取 CPU 数,RankBy 为空时按最终资金排序。
type SweepConfig struct {
	Axes        []Axis
	Fixed       map[string]float64
	Concurrency int
	RankBy      string
}

// SweepRow 汇总单个网格点的绩效。策略构建失败时 Err 非空,
// 排序时失败行沉底,网格内相对顺序保持枚举顺序。
type SweepRow struct {
	Params         map[string]float64 `json:"params"`
	FinalCapital   float64            `json:"final_capital"`
	TotalReturnPct float64            `json:"total_return_pct"`
	CAGRPct        float64            `json:"cagr_pct"`
	SharpeRatio    float64            `json:"sharpe_ratio"`
	MaxDrawdownPct float64            `json:"max_drawdown_pct"`
	WinRatePct     float64            `json:"win_rate_pct"`
	ProfitFactor   float64            `json:"profit_factor"`
	TradeCount     int                `json:"trade_count"`
	Err            string             `json:"error,omitempty"`
}

// Sweep 在参数网格的笛卡尔积上并发回测同一策略,全部网格点共享
// 一份指标缓存。上下文取消只在网格点之间生效,单点回测不会中断。
func (e *Engine) Sweep(ctx context.Context, series market.Series, strategyName string, cfg SweepConfig) ([]SweepRow, error) {
	if err := validateSweep(cfg); err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("参数清扫需要非空序列: %w", market.ErrInsufficientData)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("价格序列非法: %w", err)
	}

	total := 1
	for _, axis := range cfg.Axes {
		total *= len(axis.Values)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	calc := indicator.NewCalculator(series)
	rows := make([]SweepRow, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for idx := 0; idx < total; idx++ {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			params := sweepParams(cfg, idx)
			row := SweepRow{Params: params}
			strat, err := strategy.New(strategyName, params)
			if err != nil {
				row.Err = err.Error()
				e.logger.Warn("跳过非法网格点", zap.Any("params", params), zap.Error(err))
				rows[idx] = row
				return nil
			}

			result := e.run(series, strat, calc)
			row.FinalCapital = result.FinalCapital
			row.TotalReturnPct = result.Metrics.TotalReturnPct
			row.CAGRPct = result.Metrics.CAGRPct
			row.SharpeRatio = result.Metrics.SharpeRatio
			row.MaxDrawdownPct = result.Metrics.MaxDrawdownPct
			row.WinRatePct = result.Metrics.WinRatePct
			row.ProfitFactor = result.Metrics.ProfitFactor
			row.TradeCount = result.Metrics.TradeCount
			rows[idx] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rankBy := cfg.RankBy
	if rankBy == "" {
		rankBy = RankFinalCapital
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if (rows[i].Err == "") != (rows[j].Err == "") {
			return rows[i].Err == ""
		}
		return rankValue(rows[i], rankBy) > rankValue(rows[j], rankBy)
	})
	return rows, nil
}

func validateSweep(cfg SweepConfig) error {
	seen := make(map[string]struct{}, len(cfg.Axes))
	for _, axis := range cfg.Axes {
		if axis.Name == "" {
			return fmt.Errorf("清扫维度名不能为空: %w", market.ErrInvalidParameter)
		}
		if len(axis.Values) == 0 {
			return fmt.Errorf("清扫维度 %q 没有取值: %w", axis.Name, market.ErrInvalidParameter)
		}
		if _, dup := seen[axis.Name]; dup {
			return fmt.Errorf("清扫维度 %q 重复: %w", axis.Name, market.ErrInvalidParameter)
		}
		if _, fixed := cfg.Fixed[axis.Name]; fixed {
			return fmt.Errorf("清扫维度 %q 与固定参数冲突: %w", axis.Name, market.ErrInvalidParameter)
		}
		seen[axis.Name] = struct{}{}
	}
	switch cfg.RankBy {
	case "", RankFinalCapital, RankSharpe:
		return nil
	default:
		return fmt.Errorf("未知排序依据 %q: %w", cfg.RankBy, market.ErrInvalidParameter)
	}
}

// sweepParams 返回第 idx 个网格点的完整参数,第一维变化最慢。
func sweepParams(cfg SweepConfig, idx int) map[string]float64 {
	params := make(map[string]float64, len(cfg.Fixed)+len(cfg.Axes))
	for k, v := range cfg.Fixed {
		params[k] = v
	}
	stride := 1
	for i := len(cfg.Axes) - 1; i >= 0; i-- {
		axis := cfg.Axes[i]
		params[axis.Name] = axis.Values[(idx/stride)%len(axis.Values)]
		stride *= len(axis.Values)
	}
	return params
}

func rankValue(row SweepRow, rankBy string) float64 {
	if rankBy == RankSharpe {
		return row.SharpeRatio
	}
	return row.FinalCapital
}
