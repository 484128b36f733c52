package analytics

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/market"
	"trades-backtest/internal/strategy"
)

// Window 表示一个回测区间,按日期闭区间切片。
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DefaultWindows 返回覆盖多轮牛熊的九个常用区间。
func DefaultWindows() []Window {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return []Window{
		{day(2015, 1, 1), day(2017, 1, 1)},
		{day(2017, 1, 1), day(2017, 12, 31)},
		{day(2017, 1, 1), day(2018, 12, 31)},
		{day(2020, 1, 1), day(2021, 12, 31)},
		{day(2019, 1, 1), day(2020, 12, 31)},
		{day(2020, 3, 1), day(2021, 3, 31)},
		{day(2021, 1, 1), day(2022, 12, 31)},
		{day(2023, 1, 1), day(2024, 6, 1)},
		{day(2017, 1, 1), day(2024, 6, 1)},
	}
}

// PeriodRow 汇总单个区间的策略表现与两个基准。区间无数据或
// 回测失败时 Err 非空,其余字段为零值。
type PeriodRow struct {
	Window      Window          `json:"window"`
	Cycle       string          `json:"cycle"`
	Environment string          `json:"environment"`
	Strategy    backtest.Result `json:"strategy"`
	Hold        HoldComparison  `json:"hold"`
	DCA         DCAResult       `json:"dca"`
	VsDCAPct    float64         `json:"vs_dca_pct"`
	Err         string          `json:"error,omitempty"`
}

// RunPeriods 在多个区间上并发回测同一策略,每行附带周期标签、
// 持有与定投基准。windows 为空时使用 DefaultWindows,单个区间的
// 失败只记入该行,不中断其余区间。
func RunPeriods(ctx context.Context, engine *backtest.Engine, series market.Series, strategyName string, params map[string]float64, windows []Window, logger *zap.Logger) ([]PeriodRow, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(windows) == 0 {
		windows = DefaultWindows()
	}

	rows := make([]PeriodRow, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for idx, w := range windows {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			row := evaluateWindow(engine, series, strategyName, params, w)
			if row.Err != "" {
				logger.Warn("区间回测记为失败",
					zap.Time("start", w.Start),
					zap.Time("end", w.End),
					zap.String("error", row.Err))
			}
			rows[idx] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// evaluateWindow 在单个区间上执行策略回测与两个基准。
func evaluateWindow(engine *backtest.Engine, series market.Series, strategyName string, params map[string]float64, w Window) PeriodRow {
	row := PeriodRow{Window: w}

	sub := series.Range(w.Start, w.End)
	if sub.Len() == 0 {
		row.Err = "区间内没有数据"
		return row
	}
	row.Cycle = ClassifyCycle(sub.Close[0], sub.Close[sub.Len()-1])
	row.Environment = DetectEnvironment(sub, 0)

	strat, err := strategy.New(strategyName, params)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	result, err := engine.Run(sub, strat)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	row.Strategy = result

	hold, err := CompareWithHold(result, sub)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	row.Hold = hold

	cfg := engine.Config()
	deposit := 0.0
	if cfg.Injection.Enabled {
		deposit = cfg.Injection.Amount
	}
	dca, err := DCA(sub, cfg.InitialCapital, fixedDeposits(sub, deposit))
	if err != nil {
		row.Err = err.Error()
		return row
	}
	row.DCA = dca
	if dca.FinalValue > 0 {
		row.VsDCAPct = (result.FinalCapital/dca.FinalValue - 1) * 100
	}
	return row
}
