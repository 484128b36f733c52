package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"trades-backtest/internal/advisor"
	"trades-backtest/internal/analytics"
	"trades-backtest/internal/backtest"
	"trades-backtest/internal/export"
	"trades-backtest/internal/feed"
	"trades-backtest/internal/market"
	"trades-backtest/internal/store"
	"trades-backtest/internal/strategy"
)

func (a *App) runBacktest(ctx context.Context) error {
	symbol := a.cfg.Data.Symbol
	series, err := a.loadSeries(ctx, symbol)
	if err != nil {
		return err
	}

	engine, err := backtest.NewEngine(a.backtestConfig(), a.logger)
	if err != nil {
		return fmt.Errorf("初始化回测引擎失败: %w", err)
	}
	strat, err := strategy.New(a.cfg.Backtest.Strategy, a.cfg.Backtest.Params)
	if err != nil {
		return fmt.Errorf("构建策略失败: %w", err)
	}

	result, err := engine.Run(series, strat)
	if err != nil {
		return fmt.Errorf("回测执行失败: %w", err)
	}

	rec := store.NewRunRecord(symbol, a.cfg.Backtest.Strategy, a.cfg.Backtest.Params, result)
	if err := a.store.SaveRun(ctx, rec); err != nil {
		return fmt.Errorf("保存回测记录失败: %w", err)
	}

	a.logger.Info("回测完成",
		zap.String("run_id", rec.ID),
		zap.String("symbol", symbol),
		zap.String("strategy", result.StrategyName),
		zap.Float64("final_capital", result.FinalCapital),
		zap.Float64("total_return_pct", result.Metrics.TotalReturnPct),
		zap.Float64("max_drawdown_pct", result.Metrics.MaxDrawdownPct),
		zap.Float64("sharpe_ratio", result.Metrics.SharpeRatio),
		zap.Int("trade_count", result.Metrics.TradeCount),
	)

	writer := export.NewWriter(a.cfg.Export, a.logger)
	if _, err := writer.WriteRun(rec.ID, result); err != nil {
		return fmt.Errorf("导出回测产物失败: %w", err)
	}

	if a.cfg.Advisor.Enabled {
		if err := a.reviewRun(ctx, symbol, result, nil); err != nil {
			a.logger.Warn("回测点评失败", zap.Error(err))
		}
	}
	return nil
}

func (a *App) runSweep(ctx context.Context) error {
	symbol := a.cfg.Data.Symbol
	series, err := a.loadSeries(ctx, symbol)
	if err != nil {
		return err
	}

	engine, err := backtest.NewEngine(a.backtestConfig(), a.logger)
	if err != nil {
		return fmt.Errorf("初始化回测引擎失败: %w", err)
	}

	rows, err := engine.Sweep(ctx, series, a.cfg.Backtest.Strategy, a.sweepConfig())
	if err != nil {
		return fmt.Errorf("参数清扫失败: %w", err)
	}

	best, ok := firstSuccessful(rows)
	if ok {
		a.logger.Info("参数清扫完成",
			zap.String("symbol", symbol),
			zap.String("strategy", a.cfg.Backtest.Strategy),
			zap.Int("grid_points", len(rows)),
			zap.Any("best_params", best.Params),
			zap.Float64("best_final_capital", best.FinalCapital),
			zap.Float64("best_sharpe", best.SharpeRatio),
		)
	} else {
		a.logger.Warn("参数清扫完成,但所有网格点都失败了", zap.Int("grid_points", len(rows)))
	}

	writer := export.NewWriter(a.cfg.Export, a.logger)
	if _, err := writer.WriteSweep(a.cfg.Backtest.Strategy, rows); err != nil {
		return fmt.Errorf("导出清扫结果失败: %w", err)
	}

	if a.cfg.Advisor.Enabled && ok {
		if err := a.reviewBest(ctx, engine, series, symbol, best, rows); err != nil {
			a.logger.Warn("清扫点评失败", zap.Error(err))
		}
	}
	return nil
}

func (a *App) runFetch(ctx context.Context) error {
	client, err := feed.NewClient(a.cfg.Feed, a.logger)
	if err != nil {
		return fmt.Errorf("初始化行情客户端失败: %w", err)
	}
	svc := feed.NewService(client, a.store, a.logger)

	symbols := a.cfg.Data.SyncSymbols()
	counts, err := svc.SyncAll(ctx, symbols, a.cfg.Data.StartDate)
	if err != nil {
		return fmt.Errorf("行情同步失败: %w", err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	a.logger.Info("行情同步完成", zap.Int("symbols", len(counts)), zap.Int("rows", total))

	writer := export.NewWriter(a.cfg.Export, a.logger)
	if !writer.Enabled(export.FormatParquet) {
		return nil
	}
	for _, symbol := range symbols {
		points, err := a.store.PriceRange(ctx, symbol, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("加载 %s 行情失败: %w", symbol, err)
		}
		if len(points) == 0 {
			continue
		}
		if _, err := writer.WritePrices(symbol, market.NewSeries(points)); err != nil {
			return fmt.Errorf("归档 %s 行情失败: %w", symbol, err)
		}
	}
	return nil
}

func (a *App) runPeriods(ctx context.Context) error {
	symbol := a.cfg.Data.Symbol
	series, err := a.loadSeries(ctx, symbol)
	if err != nil {
		return err
	}

	engine, err := backtest.NewEngine(a.backtestConfig(), a.logger)
	if err != nil {
		return fmt.Errorf("初始化回测引擎失败: %w", err)
	}

	rows, err := analytics.RunPeriods(ctx, engine, series, a.cfg.Backtest.Strategy, a.cfg.Backtest.Params, nil, a.logger)
	if err != nil {
		return fmt.Errorf("分段回测失败: %w", err)
	}

	for _, row := range rows {
		if row.Err != "" {
			a.logger.Warn("区间回测失败",
				zap.Time("start", row.Window.Start),
				zap.Time("end", row.Window.End),
				zap.String("error", row.Err),
			)
			continue
		}
		a.logger.Info("区间回测完成",
			zap.Time("start", row.Window.Start),
			zap.Time("end", row.Window.End),
			zap.String("cycle", row.Cycle),
			zap.String("environment", row.Environment),
			zap.Float64("final_capital", row.Strategy.FinalCapital),
			zap.Float64("total_return_pct", row.Strategy.Metrics.TotalReturnPct),
			zap.Float64("hold_return", row.Hold.HoldReturn),
			zap.String("verdict", string(row.Hold.Verdict)),
			zap.Float64("vs_dca_pct", row.VsDCAPct),
		)
	}
	return nil
}

func (a *App) runPortfolio(ctx context.Context) error {
	symbols := a.cfg.Data.SyncSymbols()
	assets := make([]analytics.Asset, 0, len(symbols))
	for _, symbol := range symbols {
		series, err := a.loadSeries(ctx, symbol)
		if err != nil {
			return err
		}
		assets = append(assets, analytics.Asset{Symbol: symbol, Series: series})
	}

	report, err := analytics.EvaluatePortfolio(ctx, a.backtestConfig(), assets, a.cfg.Backtest.Strategy, a.cfg.Backtest.Params, a.logger)
	if err != nil {
		return fmt.Errorf("组合评估失败: %w", err)
	}

	for _, row := range report.Rows {
		if row.Err != "" {
			a.logger.Warn("标的评估失败", zap.String("symbol", row.Symbol), zap.String("error", row.Err))
			continue
		}
		a.logger.Info("标的评估完成",
			zap.String("symbol", row.Symbol),
			zap.Float64("final_capital", row.Result.FinalCapital),
			zap.Float64("hold_return", row.Comparison.HoldReturn),
			zap.String("verdict", string(row.Comparison.Verdict)),
			zap.String("comment", row.Comment),
		)
	}
	a.logger.Info("组合评估完成",
		zap.Float64("initial_total", report.InitialTotal),
		zap.Float64("strategy_total", report.StrategyTotal),
		zap.Float64("hold_total", report.HoldTotal),
		zap.String("verdict", string(report.Verdict)),
	)
	return nil
}

func (a *App) runAccumulate(ctx context.Context) error {
	symbol := a.cfg.Data.Symbol
	series, err := a.loadSeries(ctx, symbol)
	if err != nil {
		return err
	}

	accCfg := analytics.AccumulationConfig{
		InitialUSD:     a.cfg.Backtest.InitialCapital,
		CommissionRate: a.cfg.Backtest.CommissionRate,
		Strategy:       accumulationParams(a.cfg.Backtest.Params),
	}
	if a.cfg.Injection.Enabled {
		accCfg.MonthlyDeposits = monthlyDeposits(series, a.cfg.Injection.Amount)
	}

	result, err := analytics.RunAccumulation(series, accCfg, a.logger)
	if err != nil {
		return fmt.Errorf("囤币回测失败: %w", err)
	}

	a.logger.Info("囤币回测完成",
		zap.String("symbol", symbol),
		zap.Float64("invested", result.Invested),
		zap.Float64("final_usd", result.FinalUSD),
		zap.Float64("units", result.Units),
		zap.Float64("avg_cost", result.AvgCost),
		zap.Float64("usd_return_pct", result.USDReturnPct),
		zap.Float64("unit_return_pct", result.UnitReturnPct),
		zap.Float64("max_drawdown_pct", result.MaxDrawdownPct),
		zap.Int("purchases", result.SignalsTriggered),
	)
	return nil
}

// reviewRun 调用点评客户端并把结论写进日志。
func (a *App) reviewRun(ctx context.Context, symbol string, result backtest.Result, sweepRows []backtest.SweepRow) error {
	client, err := advisor.NewClient(a.cfg.Advisor, a.logger)
	if err != nil {
		return fmt.Errorf("初始化点评客户端失败: %w", err)
	}
	assessment, err := client.Review(ctx, advisor.ReviewInput{
		Symbol:    symbol,
		Strategy:  a.cfg.Backtest.Strategy,
		Params:    a.cfg.Backtest.Params,
		Result:    result,
		SweepRows: sweepRows,
	})
	if err != nil {
		return err
	}

	a.logger.Info("回测点评",
		zap.String("rating", assessment.Rating),
		zap.String("summary", assessment.Summary),
		zap.Strings("risks", assessment.Risks),
		zap.Strings("suggestions", assessment.Suggestions),
	)
	return nil
}

// reviewBest 用最优网格点重跑一次完整回测,连同清扫头部行一起送评。
func (a *App) reviewBest(ctx context.Context, engine *backtest.Engine, series market.Series, symbol string, best backtest.SweepRow, rows []backtest.SweepRow) error {
	strat, err := strategy.New(a.cfg.Backtest.Strategy, best.Params)
	if err != nil {
		return fmt.Errorf("构建最优参数策略失败: %w", err)
	}
	result, err := engine.Run(series, strat)
	if err != nil {
		return fmt.Errorf("最优参数复测失败: %w", err)
	}

	client, err := advisor.NewClient(a.cfg.Advisor, a.logger)
	if err != nil {
		return fmt.Errorf("初始化点评客户端失败: %w", err)
	}
	assessment, err := client.Review(ctx, advisor.ReviewInput{
		Symbol:    symbol,
		Strategy:  a.cfg.Backtest.Strategy,
		Params:    best.Params,
		Result:    result,
		SweepRows: rows,
	})
	if err != nil {
		return err
	}

	a.logger.Info("清扫点评",
		zap.String("rating", assessment.Rating),
		zap.String("summary", assessment.Summary),
		zap.Strings("risks", assessment.Risks),
		zap.Strings("suggestions", assessment.Suggestions),
	)
	return nil
}

func (a *App) sweepConfig() backtest.SweepConfig {
	s := a.cfg.Sweep
	axes := make([]backtest.Axis, 0, len(s.Axes))
	for _, axis := range s.Axes {
		axes = append(axes, backtest.Axis{Name: axis.Name, Values: axis.Values})
	}
	return backtest.SweepConfig{
		Axes:        axes,
		Fixed:       s.Fixed,
		Concurrency: s.Concurrency,
		RankBy:      s.RankBy,
	}
}

// firstSuccessful 返回排序后首个没有错误的网格点。
func firstSuccessful(rows []backtest.SweepRow) (backtest.SweepRow, bool) {
	for _, row := range rows {
		if row.Err == "" {
			return row, true
		}
	}
	return backtest.SweepRow{}, false
}

// accumulationParams 把配置的参数表映射成囤币策略参数,缺省项由
// 策略自身兜底,trend_filter 未配置时默认开启。
func accumulationParams(params map[string]float64) strategy.AccumulationParams {
	intVal := func(key string) int {
		return int(math.Round(params[key]))
	}
	p := strategy.AccumulationParams{
		SMAFast:          intVal("sma_fast"),
		SMASlow:          intVal("sma_slow"),
		RSIPeriod:        intVal("rsi_period"),
		RSIOversold:      params["rsi_oversold"],
		RSIExtreme:       params["rsi_extreme"],
		BollWindow:       intVal("boll_window"),
		BollStd:          params["boll_std"],
		BollTolerance:    params["boll_tolerance"],
		SupportWindow:    intVal("support_window"),
		SupportProximity: params["support_proximity"],
		TrendFilter:      true,
	}
	if v, ok := params["trend_filter"]; ok {
		p.TrendFilter = v > 0.5
	}
	return p
}

// monthlyDeposits 为序列覆盖的每个月份生成一笔等额注资。列表按
// 月份边界顺序消费,多余的条目不会被用到。
func monthlyDeposits(series market.Series, amount float64) []float64 {
	if amount <= 0 || series.Len() == 0 {
		return nil
	}
	boundaries := 1
	for i := 1; i < series.Len(); i++ {
		prev, cur := series.Dates[i-1], series.Dates[i]
		if cur.Month() != prev.Month() || cur.Year() != prev.Year() {
			boundaries++
		}
	}
	deposits := make([]float64, boundaries)
	for i := range deposits {
		deposits[i] = amount
	}
	return deposits
}
