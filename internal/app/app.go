package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/config"
	"trades-backtest/internal/market"
	"trades-backtest/internal/store"
)

// 运行模式。
const (
	ModeRun        = "run"        // 单次回测并落库
	ModeSweep      = "sweep"      // 参数清扫
	ModeFetch      = "fetch"      // 同步行情到本地库
	ModePeriods    = "periods"    // 多区间分段回测
	ModePortfolio  = "portfolio"  // 多标的组合评估
	ModeAccumulate = "accumulate" // 只买不卖的囤币回测
)

// App 聚合核心依赖并按模式驱动一次完整任务。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 按模式分发执行。所有模式跑完即返回,上下文取消会中断
// 清扫与行情同步这类长任务。
func (a *App) Run(ctx context.Context, mode string) error {
	a.logger.Info("回测系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("mode", mode),
		zap.String("symbol", a.cfg.Data.Symbol),
		zap.String("strategy", a.cfg.Backtest.Strategy),
	)

	switch mode {
	case ModeRun:
		return a.runBacktest(ctx)
	case ModeSweep:
		return a.runSweep(ctx)
	case ModeFetch:
		return a.runFetch(ctx)
	case ModePeriods:
		return a.runPeriods(ctx)
	case ModePortfolio:
		return a.runPortfolio(ctx)
	case ModeAccumulate:
		return a.runAccumulate(ctx)
	default:
		return fmt.Errorf("未知运行模式: %s", mode)
	}
}

// backtestConfig 把配置文件的回测与注资段拼成引擎配置。
func (a *App) backtestConfig() backtest.Config {
	b := a.cfg.Backtest
	return backtest.Config{
		InitialCapital: b.InitialCapital,
		CommissionRate: b.CommissionRate,
		StopLossPct:    b.StopLossPct,
		TakeProfitPct:  b.TakeProfitPct,
		Leverage:       b.Leverage,
		AllowShort:     b.AllowShort,
		Sizing: backtest.Sizing{
			Mode:        b.Sizing.Mode,
			Fraction:    b.Sizing.Fraction,
			RiskPct:     b.Sizing.RiskPct,
			ATRMultiple: b.Sizing.ATRMultiple,
			ATRPeriod:   b.Sizing.ATRPeriod,
			CapPct:      b.Sizing.CapPct,
		},
		Injection: backtest.Injection{
			Enabled: a.cfg.Injection.Enabled,
			Amount:  a.cfg.Injection.Amount,
		},
	}
}

// loadSeries 从本地库加载配置区间内的行情并构建序列。
func (a *App) loadSeries(ctx context.Context, symbol string) (market.Series, error) {
	points, err := a.store.PriceRange(ctx, symbol, a.cfg.Data.StartDate, a.cfg.Data.EndDate)
	if err != nil {
		return market.Series{}, fmt.Errorf("加载 %s 行情失败: %w", symbol, err)
	}
	if len(points) == 0 {
		return market.Series{}, fmt.Errorf("本地无 %s 行情数据,请先执行 fetch 模式: %w", symbol, market.ErrInsufficientData)
	}
	return market.NewSeries(points), nil
}
