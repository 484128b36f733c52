package backtest

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
	"trades-backtest/internal/strategy"
)

// Result 汇总一次回测。InvestedCapital 为初始资金加历次注资,
// 绩效均相对它计算。
type Result struct {
	StrategyName    string         `json:"strategy_name"`
	InitialCapital  float64        `json:"initial_capital"`
	InvestedCapital float64        `json:"invested_capital"`
	FinalCapital    float64        `json:"final_capital"`
	Metrics         Metrics        `json:"metrics"`
	Trades          []Trade        `json:"trades"`
	EquityCurve     []EquitySample `json:"equity_curve"`
}

// Engine 驱动策略在一条价格序列上的逐日推演。同一个 Engine 只持有
// 配置与日志器,可在多条序列与多个策略上复用,并发安全。
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// NewEngine 构建回测引擎,配置按默认值补齐后整体校验。
func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("回测配置非法: %w", err)
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Config 返回归一化后的配置。
func (e *Engine) Config() Config {
	return e.cfg
}

// Run 在整条序列上执行回测。空序列返回零成交结果而非错误。
func (e *Engine) Run(series market.Series, strat strategy.Strategy) (Result, error) {
	if strat == nil {
		return Result{}, fmt.Errorf("回测策略不能为空")
	}
	if series.Len() == 0 {
		return Result{
			StrategyName:    strat.Name(),
			InitialCapital:  e.cfg.InitialCapital,
			InvestedCapital: e.cfg.InitialCapital,
			FinalCapital:    e.cfg.InitialCapital,
		}, nil
	}
	if err := series.Validate(); err != nil {
		return Result{}, fmt.Errorf("价格序列非法: %w", err)
	}
	return e.run(series, strat, indicator.NewCalculator(series)), nil
}

// run 为参数清扫复用同一个指标缓存,series 须已校验非空。
func (e *Engine) run(series market.Series, strat strategy.Strategy, calc *indicator.Calculator) Result {
	if p, ok := strat.(strategy.Precomputer); ok {
		p.Precompute(calc)
	}
	sizer, _ := strat.(strategy.Sizer)
	tuner, _ := strat.(strategy.ExitTuner)

	sim := NewSimulator(e.cfg)
	n := series.Len()

	for i := 0; i < n; i++ {
		date := series.Dates[i]
		price := series.Close[i]

		if e.cfg.Injection.Enabled && i > 0 && monthChanged(series, i) {
			sim.Inject(e.cfg.Injection.Amount)
		}

		if sim.CheckExits(date, i, price) {
			trades := sim.Trades()
			last := trades[len(trades)-1]
			e.logger.Debug("触发离场",
				zap.String("strategy", strat.Name()),
				zap.String("reason", last.Reason),
				zap.Float64("price", price),
				zap.Float64("pnl", last.Pnl))
		}

		history := series.Prefix(i + 1)
		signal := strat.Evaluate(history)

		switch signal {
		case strategy.SignalBuy:
			switch sim.Position().Side {
			case SideFlat:
				fraction := e.openFraction(history, calc, i, price, sizer)
				stopPct, takePct := e.exitThresholds(history, tuner)
				sim.OpenLong(date, i, price, fraction, stopPct, takePct)
			case SideShort:
				sim.Close(date, i, price, ReasonSignal)
			}
		case strategy.SignalSell:
			switch sim.Position().Side {
			case SideLong:
				sim.Close(date, i, price, ReasonSignal)
			case SideFlat:
				if e.cfg.AllowShort {
					fraction := e.openFraction(history, calc, i, price, sizer)
					stopPct, takePct := e.exitThresholds(history, tuner)
					sim.OpenShort(date, i, price, fraction, stopPct, takePct)
				}
			}
		}

		if i == n-1 && sim.Position().Side != SideFlat {
			sim.Close(date, i, price, ReasonEndOfBacktest)
		}
		sim.MarkEquity(date, price)
	}

	curve := sim.EquityCurve()
	result := Result{
		StrategyName:    strat.Name(),
		InitialCapital:  e.cfg.InitialCapital,
		InvestedCapital: sim.Invested(),
		FinalCapital:    curve[len(curve)-1].Equity,
		Metrics:         ComputeMetrics(sim.Invested(), curve, sim.Trades(), DailyPeriods),
		Trades:          sim.Trades(),
		EquityCurve:     curve,
	}
	return result
}

// openFraction 计算开仓投入现金的比例。volatility 模式按 ATR 止损距离
// 反推,ATR 尚未定义时返回 0 跳过本次开仓;策略自带的仓位系数在
// 两种模式下都会叠加,并收敛到 (0,1]。
func (e *Engine) openFraction(history market.Series, calc *indicator.Calculator, i int, price float64, sizer strategy.Sizer) float64 {
	fraction := e.cfg.Sizing.Fraction
	if e.cfg.Sizing.Mode == SizingVolatility {
		atr := indicator.At(calc.ATR(e.cfg.Sizing.ATRPeriod), i)
		if math.IsNaN(atr) || atr <= 0 || price <= 0 {
			return 0
		}
		stopDistance := e.cfg.Sizing.ATRMultiple * atr / price
		fraction = math.Min(e.cfg.Sizing.RiskPct/stopDistance, e.cfg.Sizing.CapPct)
	}

	if sizer != nil {
		factor := sizer.SizeFactor(history)
		if math.IsNaN(factor) || factor <= 0 {
			return 0
		}
		fraction *= math.Min(factor, 1)
	}
	return fraction
}

// exitThresholds 应用策略给出的止损止盈倍率。
func (e *Engine) exitThresholds(history market.Series, tuner strategy.ExitTuner) (stopPct, takePct float64) {
	stopPct = e.cfg.StopLossPct
	takePct = e.cfg.TakeProfitPct
	if tuner != nil {
		stopMul, takeMul := tuner.ExitMultipliers(history)
		stopPct *= stopMul
		takePct *= takeMul
	}
	return stopPct, takePct
}

// monthChanged 判断下标 i 是否为新月份的第一个样本。
func monthChanged(series market.Series, i int) bool {
	prev, cur := series.Dates[i-1], series.Dates[i]
	return prev.Month() != cur.Month() || prev.Year() != cur.Year()
}
