package analytics

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/market"
	"trades-backtest/internal/strategy"
)

// Asset 绑定一个标的与其价格序列。Units 大于零时表示按该持仓量在
// 区间首日的市值作为本标的的初始资金,否则沿用回测配置的初始资金。
type Asset struct {
	Symbol string
	Series market.Series
	Units  float64
}

// AssetRow 汇总单个标的的策略回测与持有对比。
type AssetRow struct {
	Symbol     string          `json:"symbol"`
	Result     backtest.Result `json:"result"`
	Comparison HoldComparison  `json:"comparison"`
	Comment    string          `json:"comment"`
	Err        string          `json:"error,omitempty"`
}

// PortfolioReport 汇总整组标的:各标的独立回测后按市值加总,
// 不做组合层面的联合优化。
type PortfolioReport struct {
	Rows          []AssetRow `json:"rows"`
	InitialTotal  float64    `json:"initial_total"`
	HoldTotal     float64    `json:"hold_total"`
	StrategyTotal float64    `json:"strategy_total"`
	Verdict       Verdict    `json:"verdict"`
}

// EvaluatePortfolio 对每个标的独立执行同一策略的回测并与持有对比,
// 各标的并发运行;单个标的的失败只记入该行,不计入总市值。
func EvaluatePortfolio(ctx context.Context, cfg backtest.Config, assets []Asset, strategyName string, params map[string]float64, logger *zap.Logger) (PortfolioReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(assets) == 0 {
		return PortfolioReport{}, fmt.Errorf("组合不能为空: %w", market.ErrInvalidParameter)
	}

	rows := make([]AssetRow, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for idx, asset := range assets {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			row := evaluateAsset(cfg, asset, strategyName, params, logger)
			if row.Err != "" {
				logger.Warn("标的回测记为失败",
					zap.String("symbol", asset.Symbol),
					zap.String("error", row.Err))
			}
			rows[idx] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PortfolioReport{}, err
	}

	report := PortfolioReport{Rows: rows}
	for _, row := range rows {
		if row.Err != "" {
			continue
		}
		report.InitialTotal += row.Result.InvestedCapital
		report.StrategyTotal += row.Result.FinalCapital
		report.HoldTotal += row.Result.InvestedCapital * (1 + row.Comparison.HoldReturn)
	}
	if report.InitialTotal > 0 {
		report.Verdict = verdictFor(
			report.StrategyTotal/report.InitialTotal-1,
			report.HoldTotal/report.InitialTotal-1,
		)
	}
	return report, nil
}

// evaluateAsset 在单个标的上执行回测并生成对比结论。
func evaluateAsset(cfg backtest.Config, asset Asset, strategyName string, params map[string]float64, logger *zap.Logger) AssetRow {
	row := AssetRow{Symbol: asset.Symbol}

	if asset.Series.Len() == 0 {
		row.Err = "标的没有价格数据"
		return row
	}
	if asset.Units > 0 {
		cfg.InitialCapital = asset.Units * asset.Series.Close[0]
	}

	engine, err := backtest.NewEngine(cfg, logger)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	strat, err := strategy.New(strategyName, params)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	result, err := engine.Run(asset.Series, strat)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	row.Result = result

	cmp, err := CompareWithHold(result, asset.Series)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	row.Comparison = cmp
	row.Comment = holdComment(cmp)
	return row
}

// holdComment 生成面向报告的对比结论。
func holdComment(cmp HoldComparison) string {
	switch cmp.Verdict {
	case VerdictBetter:
		return fmt.Sprintf("策略跑赢持有 %.0f 个百分点", cmp.DiffPct)
	case VerdictWorse:
		return fmt.Sprintf("持有更优 %.0f 个百分点", -cmp.DiffPct)
	default:
		return "策略与持有打平"
	}
}
