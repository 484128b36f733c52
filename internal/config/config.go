package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "backtest"
)

// Load 读取配置文件并结合环境变量返回 Config。同目录下的 .env 文件
// 会先行加载,缺失时静默跳过。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("data.database_path", "data/backtest.db")
	v.SetDefault("data.in_memory", false)
	v.SetDefault("data.max_open_conns", 4)
	v.SetDefault("data.max_idle_conns", 4)
	v.SetDefault("data.conn_max_lifetime", "1h")
	v.SetDefault("data.symbol", "BTC/USDT")
	v.SetDefault("data.start_date", "2015-01-01")

	v.SetDefault("feed.name", "binance")
	v.SetDefault("feed.use_sandbox", false)
	v.SetDefault("feed.rate_limit", true)
	v.SetDefault("feed.timeout", "30s")
	v.SetDefault("feed.retry.max_attempts", 5)
	v.SetDefault("feed.retry.min_delay", "500ms")
	v.SetDefault("feed.retry.max_delay", "5s")

	v.SetDefault("backtest.strategy", "ema_rsi_trend")
	v.SetDefault("backtest.initial_capital", 10000.0)
	v.SetDefault("backtest.commission_rate", 0.001)
	v.SetDefault("backtest.leverage", 1.0)
	v.SetDefault("backtest.allow_short", false)
	v.SetDefault("backtest.sizing.mode", "fixed")
	v.SetDefault("backtest.sizing.fraction", 1.0)
	v.SetDefault("backtest.sizing.risk_pct", 0.01)
	v.SetDefault("backtest.sizing.atr_multiple", 2.5)
	v.SetDefault("backtest.sizing.atr_period", 14)
	v.SetDefault("backtest.sizing.cap_pct", 0.10)

	v.SetDefault("injection.enabled", false)
	v.SetDefault("injection.amount", 500.0)

	v.SetDefault("sweep.concurrency", 0)
	v.SetDefault("sweep.rank_by", "final_capital")

	v.SetDefault("export.dir", "results")
	v.SetDefault("export.formats", []string{"csv"})

	v.SetDefault("advisor.enabled", false)
	v.SetDefault("advisor.base_url", "https://api.openai.com/v1")
	v.SetDefault("advisor.model", "gpt-4.1")
	v.SetDefault("advisor.timeout", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.DateOnly),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
