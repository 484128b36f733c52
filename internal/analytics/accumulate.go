package analytics

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
	"trades-backtest/internal/strategy"
)

// AccumulationConfig 配置只买不卖的囤币回测。资金只进不出:
// 初始资金与月度追加在到账后等待买点,买入后持仓永不卖出。
type AccumulationConfig struct {
	InitialUSD      float64
	CommissionRate  float64
	MonthlyDeposits []float64

	BaseRiskPct float64 // 单次买入的基础风险占现金比例
	ATRPeriod   int
	ATRMultiple float64
	CapPct      float64 // 单次买入金额占现金上限
	MinBalance  float64 // 现金低于该值后停止买入
	RSIAnchor   float64 // RSI 低于该值时按深度加码

	Strategy strategy.AccumulationParams
}

func (c *AccumulationConfig) normalize() AccumulationConfig {
	out := *c
	if out.InitialUSD == 0 {
		out.InitialUSD = 10000
	}
	if out.BaseRiskPct == 0 {
		out.BaseRiskPct = 0.01
	}
	if out.ATRPeriod == 0 {
		out.ATRPeriod = 14
	}
	if out.ATRMultiple == 0 {
		out.ATRMultiple = 2.5
	}
	if out.CapPct == 0 {
		out.CapPct = 0.10
	}
	if out.MinBalance == 0 {
		out.MinBalance = 10
	}
	if out.RSIAnchor == 0 {
		out.RSIAnchor = 30
	}
	return out
}

func (c AccumulationConfig) validate() error {
	var err error
	if c.InitialUSD < 0 {
		err = multierr.Append(err, fmt.Errorf("初始资金不能为负,当前 %.2f: %w", c.InitialUSD, market.ErrInvalidParameter))
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		err = multierr.Append(err, fmt.Errorf("手续费率必须在 [0,1) 内,当前 %.4f: %w", c.CommissionRate, market.ErrInvalidParameter))
	}
	if c.BaseRiskPct <= 0 || c.BaseRiskPct >= 1 {
		err = multierr.Append(err, fmt.Errorf("基础风险比例必须在 (0,1) 内,当前 %.4f: %w", c.BaseRiskPct, market.ErrInvalidParameter))
	}
	if c.ATRPeriod <= 0 {
		err = multierr.Append(err, fmt.Errorf("ATR 周期必须为正,当前 %d: %w", c.ATRPeriod, market.ErrInvalidParameter))
	}
	if c.ATRMultiple <= 0 {
		err = multierr.Append(err, fmt.Errorf("ATR 倍数必须为正,当前 %.2f: %w", c.ATRMultiple, market.ErrInvalidParameter))
	}
	if c.CapPct <= 0 || c.CapPct > 1 {
		err = multierr.Append(err, fmt.Errorf("单次买入上限必须在 (0,1] 内,当前 %.4f: %w", c.CapPct, market.ErrInvalidParameter))
	}
	if c.RSIAnchor <= 0 || c.RSIAnchor > 100 {
		err = multierr.Append(err, fmt.Errorf("RSI 加码阈值必须在 (0,100] 内,当前 %.1f: %w", c.RSIAnchor, market.ErrInvalidParameter))
	}
	for i, amount := range c.MonthlyDeposits {
		if amount < 0 {
			err = multierr.Append(err, fmt.Errorf("第 %d 笔月度追加不能为负,当前 %.2f: %w", i+1, amount, market.ErrInvalidParameter))
		}
	}
	return err
}

// Purchase 记录一次囤币买入,手续费在买入金额之外另计。
type Purchase struct {
	Date       time.Time `json:"date"`
	Price      float64   `json:"price"`
	USDAmount  float64   `json:"usd_amount"`
	Units      float64   `json:"units"`
	Commission float64   `json:"commission"`
}

// AccumulationResult 汇总囤币回测。UnitReturnPct 以期初一次性全款
// 买入能得到的币量为基准;夏普按月度重采样年化。
type AccumulationResult struct {
	Invested         float64                 `json:"invested"`
	FinalUSD         float64                 `json:"final_usd"`
	CashBalance      float64                 `json:"cash_balance"`
	Units            float64                 `json:"units"`
	AvgCost          float64                 `json:"avg_cost"`
	USDReturnPct     float64                 `json:"usd_return_pct"`
	UnitReturnPct    float64                 `json:"unit_return_pct"`
	MaxDrawdownPct   float64                 `json:"max_drawdown_pct"`
	TimeInLossPct    float64                 `json:"time_in_loss_pct"`
	SharpeRatio      float64                 `json:"sharpe_ratio"`
	SignalsTriggered int                     `json:"signals_triggered"`
	LastPurchase     time.Time               `json:"last_purchase"`
	Purchases        []Purchase              `json:"purchases"`
	EquityCurve      []backtest.EquitySample `json:"equity_curve"`
}

// RunAccumulation 执行囤币回测:指标预热完成后开始记账,初始资金在
// 首个样本到账,月度追加在每个月份边界到账;买点由囤币策略给出,
// 买入金额按波动率与超卖深度调节。
func RunAccumulation(series market.Series, cfg AccumulationConfig, logger *zap.Logger) (AccumulationResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.normalize()
	if err := cfg.validate(); err != nil {
		return AccumulationResult{}, fmt.Errorf("囤币配置非法: %w", err)
	}
	if series.Len() == 0 {
		return AccumulationResult{}, fmt.Errorf("囤币回测需要非空序列: %w", market.ErrInsufficientData)
	}
	if err := series.Validate(); err != nil {
		return AccumulationResult{}, fmt.Errorf("价格序列非法: %w", err)
	}

	strat, err := strategy.NewAccumulation(cfg.Strategy)
	if err != nil {
		return AccumulationResult{}, fmt.Errorf("构建囤币策略失败: %w", err)
	}
	start := strat.MinHistory() - 1
	if start >= series.Len() {
		return AccumulationResult{}, fmt.Errorf("历史不足 %d 根,指标无法预热: %w", strat.MinHistory(), market.ErrInsufficientData)
	}

	calc := indicator.NewCalculator(series)
	strat.Precompute(calc)
	rsiCol := calc.RSI(strat.Params().RSIPeriod)
	atrCol := calc.ATR(cfg.ATRPeriod)

	cash := 0.0
	units := 0.0
	invested := 0.0
	depositIdx := 0
	var purchases []Purchase
	curve := make([]backtest.EquitySample, 0, series.Len()-start)

	for i := start; i < series.Len(); i++ {
		date := series.Dates[i]
		price := series.Close[i]

		if i == start || newMonth(series.Dates, i) {
			amount := 0.0
			if depositIdx == 0 {
				amount += cfg.InitialUSD
			}
			if depositIdx < len(cfg.MonthlyDeposits) {
				amount += cfg.MonthlyDeposits[depositIdx]
			}
			depositIdx++
			if amount > 0 {
				cash += amount
				invested += amount
			}
		}

		history := series.Prefix(i + 1)
		if cash > cfg.MinBalance && strat.Evaluate(history) == strategy.SignalBuy {
			rsi := indicator.At(rsiCol, i)
			atr := indicator.At(atrCol, i)
			dist := strat.SupportDistance(history)

			if size := purchaseSize(cash, price, atr, rsi, dist, cfg); size > 0 {
				commission := size * cfg.CommissionRate
				bought := size / price
				cash -= size + commission
				units += bought
				purchases = append(purchases, Purchase{
					Date:       date,
					Price:      price,
					USDAmount:  size,
					Units:      bought,
					Commission: commission,
				})
				logger.Debug("执行囤币买入",
					zap.Float64("price", price),
					zap.Float64("usd", size),
					zap.Float64("units", bought),
					zap.Float64("cash", cash))
			}
		}

		curve = append(curve, backtest.EquitySample{Date: date, Equity: cash + units*price})
	}

	finalPrice := series.Close[series.Len()-1]
	res := AccumulationResult{
		Invested:         invested,
		FinalUSD:         cash + units*finalPrice,
		CashBalance:      cash,
		Units:            units,
		SignalsTriggered: len(purchases),
		Purchases:        purchases,
		EquityCurve:      curve,
	}
	if len(purchases) > 0 {
		res.LastPurchase = purchases[len(purchases)-1].Date
	}
	if units > 0 {
		totalCost := 0.0
		for _, p := range purchases {
			totalCost += p.USDAmount + p.Commission
		}
		res.AvgCost = totalCost / units
	}
	if invested > 0 {
		res.USDReturnPct = (res.FinalUSD/invested - 1) * 100
		if baseline := invested / series.Close[start]; baseline > 0 {
			res.UnitReturnPct = (units/baseline - 1) * 100
		}
	}
	res.MaxDrawdownPct = backtest.MaxDrawdown(curve)
	res.TimeInLossPct = backtest.TimeInLoss(curve)
	res.SharpeRatio = backtest.AnnualizedSharpe(backtest.MonthlyReturns(curve), backtest.MonthlyPeriods)
	return res, nil
}

// purchaseSize 计算单次买入金额:风险预算为现金乘 BaseRiskPct,按
// RSI 超卖深度与支撑距离两个因子调节,再除以 ATR 止损距离换算为
// 仓位金额,上限为现金的 CapPct。ATR 未定义时不买。
func purchaseSize(cash, price, atr, rsi, dist float64, cfg AccumulationConfig) float64 {
	if math.IsNaN(atr) || atr <= 0 || price <= 0 || cash <= 0 {
		return 0
	}

	rsiFactor := 0.0
	if !math.IsNaN(rsi) {
		rsiFactor = math.Max(0, (cfg.RSIAnchor-rsi)/cfg.RSIAnchor)
	}
	supportFactor := 0.0
	if !math.IsNaN(dist) {
		supportFactor = math.Min(1, dist*10)
	}

	risk := cash * cfg.BaseRiskPct * (1 + rsiFactor + supportFactor) / 3
	stopDistance := cfg.ATRMultiple * atr / price
	return math.Min(risk/stopDistance, cash*cfg.CapPct)
}
