package backtest

import (
	"fmt"

	"go.uber.org/multierr"

	"trades-backtest/internal/market"
)

// 仓位计算模式。
const (
	SizingFixed      = "fixed"      // 固定比例
	SizingVolatility = "volatility" // 按 ATR 止损距离反推仓位
)

// Sizing 定义开仓时的仓位计算参数。
type Sizing struct {
	Mode        string  // fixed 或 volatility
	Fraction    float64 // fixed 模式下投入现金的比例
	RiskPct     float64 // volatility 模式下单笔风险占现金的比例
	ATRMultiple float64 // 止损距离 = ATRMultiple × ATR
	ATRPeriod   int
	CapPct      float64 // volatility 模式下单笔仓位上限
}

// Injection 定义按月注资。启用后每逢月份切换向现金追加 Amount。
type Injection struct {
	Enabled bool
	Amount  float64
}

// Config 定义回测参数。止损与止盈以比例表示,0.05 即 5%,0 表示不启用。
type Config struct {
	InitialCapital float64
	CommissionRate float64 // 双边费率,开平仓各收一次
	StopLossPct    float64
	TakeProfitPct  float64
	Leverage       float64
	AllowShort     bool
	Sizing         Sizing
	Injection      Injection
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.InitialCapital == 0 {
		cfg.InitialCapital = 10000
	}
	if cfg.Leverage == 0 {
		cfg.Leverage = 1
	}
	if cfg.Sizing.Mode == "" {
		cfg.Sizing.Mode = SizingFixed
	}
	if cfg.Sizing.Fraction == 0 {
		cfg.Sizing.Fraction = 1
	}
	if cfg.Sizing.RiskPct == 0 {
		cfg.Sizing.RiskPct = 0.01
	}
	if cfg.Sizing.ATRMultiple == 0 {
		cfg.Sizing.ATRMultiple = 2.5
	}
	if cfg.Sizing.ATRPeriod == 0 {
		cfg.Sizing.ATRPeriod = 14
	}
	if cfg.Sizing.CapPct == 0 {
		cfg.Sizing.CapPct = 0.10
	}
	return cfg
}

// Validate 汇总所有配置错误,每条都可用 errors.Is 判为参数越界。
func (c Config) Validate() error {
	var errs error
	if c.InitialCapital <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("初始资金必须为正, 当前 %.2f: %w", c.InitialCapital, market.ErrInvalidParameter))
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("手续费率必须在 [0,1) 内, 当前 %.4f: %w", c.CommissionRate, market.ErrInvalidParameter))
	}
	if c.StopLossPct < 0 || c.StopLossPct >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("止损比例必须在 [0,1) 内, 当前 %.4f: %w", c.StopLossPct, market.ErrInvalidParameter))
	}
	if c.TakeProfitPct < 0 {
		errs = multierr.Append(errs, fmt.Errorf("止盈比例不能为负, 当前 %.4f: %w", c.TakeProfitPct, market.ErrInvalidParameter))
	}
	if c.Leverage <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("杠杆必须为正, 当前 %.2f: %w", c.Leverage, market.ErrInvalidParameter))
	}

	switch c.Sizing.Mode {
	case SizingFixed:
		if c.Sizing.Fraction <= 0 || c.Sizing.Fraction > 1 {
			errs = multierr.Append(errs, fmt.Errorf("仓位比例必须在 (0,1] 内, 当前 %.4f: %w", c.Sizing.Fraction, market.ErrInvalidParameter))
		}
	case SizingVolatility:
		if c.Sizing.RiskPct <= 0 || c.Sizing.RiskPct >= 1 {
			errs = multierr.Append(errs, fmt.Errorf("单笔风险比例必须在 (0,1) 内, 当前 %.4f: %w", c.Sizing.RiskPct, market.ErrInvalidParameter))
		}
		if c.Sizing.ATRMultiple <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("ATR 倍数必须为正, 当前 %.2f: %w", c.Sizing.ATRMultiple, market.ErrInvalidParameter))
		}
		if c.Sizing.ATRPeriod <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("ATR 周期必须为正, 当前 %d: %w", c.Sizing.ATRPeriod, market.ErrInvalidParameter))
		}
		if c.Sizing.CapPct <= 0 || c.Sizing.CapPct > 1 {
			errs = multierr.Append(errs, fmt.Errorf("仓位上限必须在 (0,1] 内, 当前 %.4f: %w", c.Sizing.CapPct, market.ErrInvalidParameter))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("未知仓位模式 %q: %w", c.Sizing.Mode, market.ErrInvalidParameter))
	}

	if c.Injection.Enabled && c.Injection.Amount <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("注资金额必须为正, 当前 %.2f: %w", c.Injection.Amount, market.ErrInvalidParameter))
	}
	return errs
}
