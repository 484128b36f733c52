package analytics

import (
	"fmt"

	"go.uber.org/multierr"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
)

// AdaptiveDCAConfig 配置环境自适应定投:牛市按基础金额买入,动能够强
// 时再按价格相对 SMA50 的拉伸幅度加码,熊市与中性市退回固定金额。
type AdaptiveDCAConfig struct {
	BaseAmount     float64 // 牛市基础买入金额
	StretchFactor  float64 // 拉伸加码系数
	FallbackAmount float64 // 非牛市买入金额
	RSIPeriod      int     // 动能确认的 RSI 周期
	RSIThreshold   float64 // 动能确认阈值,低于它只买基础金额
	EnvThreshold   float64 // 牛熊判定的 SMA200 偏离幅度
}

func (c *AdaptiveDCAConfig) normalize() AdaptiveDCAConfig {
	out := *c
	if out.BaseAmount == 0 {
		out.BaseAmount = 100
	}
	if out.StretchFactor == 0 {
		out.StretchFactor = 200
	}
	if out.FallbackAmount == 0 {
		out.FallbackAmount = 50
	}
	if out.RSIPeriod == 0 {
		out.RSIPeriod = 45
	}
	if out.RSIThreshold == 0 {
		out.RSIThreshold = 55
	}
	if out.EnvThreshold == 0 {
		out.EnvThreshold = defaultEnvThreshold
	}
	return out
}

func (c AdaptiveDCAConfig) validate() error {
	var err error
	if c.BaseAmount < 0 {
		err = multierr.Append(err, fmt.Errorf("基础金额不能为负,当前 %.2f: %w", c.BaseAmount, market.ErrInvalidParameter))
	}
	if c.StretchFactor < 0 {
		err = multierr.Append(err, fmt.Errorf("拉伸系数不能为负,当前 %.2f: %w", c.StretchFactor, market.ErrInvalidParameter))
	}
	if c.FallbackAmount < 0 {
		err = multierr.Append(err, fmt.Errorf("非牛市金额不能为负,当前 %.2f: %w", c.FallbackAmount, market.ErrInvalidParameter))
	}
	if c.RSIPeriod <= 1 {
		err = multierr.Append(err, fmt.Errorf("RSI 周期必须大于 1,当前 %d: %w", c.RSIPeriod, market.ErrInvalidParameter))
	}
	if c.RSIThreshold <= 0 || c.RSIThreshold > 100 {
		err = multierr.Append(err, fmt.Errorf("RSI 阈值必须在 (0,100] 内,当前 %.1f: %w", c.RSIThreshold, market.ErrInvalidParameter))
	}
	if c.EnvThreshold < 0 {
		err = multierr.Append(err, fmt.Errorf("环境阈值不能为负,当前 %.3f: %w", c.EnvThreshold, market.ErrInvalidParameter))
	}
	return err
}

// AdaptiveDCAResult 汇总自适应定投,并附期末的市场环境与均线趋势。
type AdaptiveDCAResult struct {
	Environment    string  `json:"environment"`
	TrendUp        bool    `json:"trend_up"`
	Invested       float64 `json:"invested"`
	Units          float64 `json:"units"`
	FinalValue     float64 `json:"final_value"`
	ReturnPct      float64 `json:"return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	PurchaseCount  int     `json:"purchase_count"`
}

// AdaptiveDCA 执行环境自适应定投:长期均线预热后,每逢月份边界按
// 当时的市场环境决定买入金额。加码金额可能被拉伸修正为非正数,
// 该月即不买入。
func AdaptiveDCA(series market.Series, cfg AdaptiveDCAConfig) (AdaptiveDCAResult, error) {
	cfg = cfg.normalize()
	if err := cfg.validate(); err != nil {
		return AdaptiveDCAResult{}, fmt.Errorf("自适应定投配置非法: %w", err)
	}
	if series.Len() <= envSMAWindow {
		return AdaptiveDCAResult{}, fmt.Errorf("历史不足 %d 根,环境均线无法预热: %w", envSMAWindow+1, market.ErrInsufficientData)
	}
	if err := series.Validate(); err != nil {
		return AdaptiveDCAResult{}, fmt.Errorf("价格序列非法: %w", err)
	}

	calc := indicator.NewCalculator(series)
	smaFast := calc.SMA(envFastSMAWindow)
	smaSlow := calc.SMA(envSMAWindow)
	rsiCol := calc.RSI(cfg.RSIPeriod)

	units := 0.0
	invested := 0.0
	purchases := 0
	curve := make([]backtest.EquitySample, 0, series.Len()-envSMAWindow)

	for i := envSMAWindow; i < series.Len(); i++ {
		price := series.Close[i]
		if newMonth(series.Dates, i) {
			amount := cfg.FallbackAmount
			if DetectEnvironment(series.Prefix(i+1), cfg.EnvThreshold) == EnvBull {
				amount = cfg.BaseAmount
				if indicator.At(rsiCol, i) >= cfg.RSIThreshold {
					stretch := price/indicator.At(smaFast, i) - 1
					amount = cfg.BaseAmount + stretch*cfg.StretchFactor
				}
			}
			if amount > 0 {
				units += amount / price
				invested += amount
				purchases++
			}
		}
		curve = append(curve, backtest.EquitySample{Date: series.Dates[i], Equity: units * price})
	}

	last := series.Len() - 1
	res := AdaptiveDCAResult{
		Environment:   DetectEnvironment(series, cfg.EnvThreshold),
		TrendUp:       indicator.At(smaFast, last) > indicator.At(smaSlow, last),
		Invested:      invested,
		Units:         units,
		FinalValue:    units * series.Close[last],
		PurchaseCount: purchases,
	}
	if invested > 0 {
		res.ReturnPct = (res.FinalValue/invested - 1) * 100
	}
	res.MaxDrawdownPct = backtest.MaxDrawdown(curve)
	res.SharpeRatio = backtest.AnnualizedSharpe(backtest.MonthlyReturns(curve), backtest.MonthlyPeriods)
	return res, nil
}
