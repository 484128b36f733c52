package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了回测系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Data      DataConfig      `mapstructure:"data"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Injection InjectionConfig `mapstructure:"injection"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Export    ExportConfig    `mapstructure:"export"`
	Advisor   AdvisorConfig   `mapstructure:"advisor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// DataConfig 管理行情库与回测数据范围。EndDate 为零值时表示取到库中
// 最新一根K线。
type DataConfig struct {
	DatabasePath    string        `mapstructure:"database_path"`
	InMemory        bool          `mapstructure:"in_memory"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Symbol          string        `mapstructure:"symbol"`
	Symbols         []string      `mapstructure:"symbols"`
	StartDate       time.Time     `mapstructure:"start_date"`
	EndDate         time.Time     `mapstructure:"end_date"`
}

// SyncSymbols 返回需要同步行情的交易对列表,未配置时退回单一 symbol。
func (d DataConfig) SyncSymbols() []string {
	if len(d.Symbols) > 0 {
		return d.Symbols
	}
	return []string{d.Symbol}
}

// FeedConfig 描述行情源连接信息。
type FeedConfig struct {
	Name       string        `mapstructure:"name"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	UseSandbox bool          `mapstructure:"use_sandbox"`
	RateLimit  bool          `mapstructure:"rate_limit"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Retry      RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// BacktestConfig 描述单次回测的策略与账户参数。数值语义的完整校验
// 由回测引擎在组装时完成,这里只做配置层面的形状检查。
type BacktestConfig struct {
	Strategy       string             `mapstructure:"strategy"`
	Params         map[string]float64 `mapstructure:"params"`
	InitialCapital float64            `mapstructure:"initial_capital"`
	CommissionRate float64            `mapstructure:"commission_rate"`
	StopLossPct    float64            `mapstructure:"stop_loss_pct"`
	TakeProfitPct  float64            `mapstructure:"take_profit_pct"`
	Leverage       float64            `mapstructure:"leverage"`
	AllowShort     bool               `mapstructure:"allow_short"`
	Sizing         SizingConfig       `mapstructure:"sizing"`
}

// SizingConfig 控制开仓仓位计算。
type SizingConfig struct {
	Mode        string  `mapstructure:"mode"`
	Fraction    float64 `mapstructure:"fraction"`
	RiskPct     float64 `mapstructure:"risk_pct"`
	ATRMultiple float64 `mapstructure:"atr_multiple"`
	ATRPeriod   int     `mapstructure:"atr_period"`
	CapPct      float64 `mapstructure:"cap_pct"`
}

// InjectionConfig 控制按月定额注资。
type InjectionConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Amount  float64 `mapstructure:"amount"`
}

// SweepConfig 描述参数清扫网格。Concurrency 为零时取 CPU 数。
type SweepConfig struct {
	Concurrency int                `mapstructure:"concurrency"`
	RankBy      string             `mapstructure:"rank_by"`
	Axes        []SweepAxis        `mapstructure:"axes"`
	Fixed       map[string]float64 `mapstructure:"fixed"`
}

// SweepAxis 定义清扫网格的一个维度。
type SweepAxis struct {
	Name   string    `mapstructure:"name"`
	Values []float64 `mapstructure:"values"`
}

// ExportConfig 控制结果落盘。Formats 为空时跳过导出。
type ExportConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

// AdvisorConfig 描述大模型点评调用参数,默认关闭。
type AdvisorConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Data.DatabasePath == "" && !c.Data.InMemory {
		err = multierr.Append(err, errors.New("data.database_path 不能为空"))
	}
	if c.Data.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("data.max_open_conns 必须大于0"))
	}
	if c.Data.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("data.max_idle_conns 不能为负"))
	}
	if c.Data.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("data.conn_max_lifetime 不能为负"))
	}
	if c.Data.Symbol == "" {
		err = multierr.Append(err, errors.New("data.symbol 不能为空"))
	}
	for i, symbol := range c.Data.Symbols {
		if symbol == "" {
			err = multierr.Append(err, fmt.Errorf("data.symbols[%d] 不能为空", i))
		}
	}
	if !c.Data.StartDate.IsZero() && !c.Data.EndDate.IsZero() && c.Data.EndDate.Before(c.Data.StartDate) {
		err = multierr.Append(err, errors.New("data.end_date 不能早于 start_date"))
	}
	if c.Feed.Name == "" {
		err = multierr.Append(err, errors.New("feed.name 不能为空"))
	}
	if c.Feed.Timeout <= 0 {
		err = multierr.Append(err, errors.New("feed.timeout 必须大于0"))
	}
	if c.Feed.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("feed.retry.max_attempts 必须大于0"))
	}
	if c.Feed.Retry.MinDelay <= 0 || c.Feed.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("feed.retry.delay 必须为正"))
	}
	if c.Feed.Retry.MinDelay > c.Feed.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("feed.retry.min_delay 不能大于 max_delay"))
	}
	if c.Backtest.Strategy == "" {
		err = multierr.Append(err, errors.New("backtest.strategy 不能为空"))
	}
	if c.Backtest.InitialCapital <= 0 {
		err = multierr.Append(err, errors.New("backtest.initial_capital 必须大于0"))
	}
	if c.Injection.Enabled && c.Injection.Amount <= 0 {
		err = multierr.Append(err, errors.New("injection.amount 启用注资时必须大于0"))
	}
	if c.Sweep.Concurrency < 0 {
		err = multierr.Append(err, errors.New("sweep.concurrency 不能为负"))
	}
	for i, axis := range c.Sweep.Axes {
		if axis.Name == "" {
			err = multierr.Append(err, fmt.Errorf("sweep.axes[%d].name 不能为空", i))
		}
		if len(axis.Values) == 0 {
			err = multierr.Append(err, fmt.Errorf("sweep.axes[%d].values 不能为空", i))
		}
	}
	if c.Export.Dir == "" && len(c.Export.Formats) > 0 {
		err = multierr.Append(err, errors.New("export.dir 不能为空"))
	}
	for _, format := range c.Export.Formats {
		switch format {
		case "csv", "parquet":
		default:
			err = multierr.Append(err, fmt.Errorf("export.formats 含未知格式 %q", format))
		}
	}
	if c.Advisor.Enabled {
		if c.Advisor.APIKey == "" {
			err = multierr.Append(err, errors.New("advisor.api_key 启用点评时不能为空"))
		}
		if c.Advisor.Model == "" {
			err = multierr.Append(err, errors.New("advisor.model 不能为空"))
		}
		if c.Advisor.Timeout <= 0 {
			err = multierr.Append(err, errors.New("advisor.timeout 必须大于0"))
		}
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
