package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "data:\n  database_path: data/test.db\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Environment != "development" {
		t.Errorf("expected default environment development, got %s", cfg.App.Environment)
	}
	if cfg.Data.DatabasePath != "data/test.db" {
		t.Errorf("expected database_path from file, got %s", cfg.Data.DatabasePath)
	}
	if cfg.Data.Symbol != "BTC/USDT" {
		t.Errorf("expected default symbol BTC/USDT, got %s", cfg.Data.Symbol)
	}
	wantStart := time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.Data.StartDate.Equal(wantStart) {
		t.Errorf("expected default start_date %v, got %v", wantStart, cfg.Data.StartDate)
	}
	if !cfg.Data.EndDate.IsZero() {
		t.Errorf("expected zero end_date, got %v", cfg.Data.EndDate)
	}
	if got := cfg.Data.SyncSymbols(); len(got) != 1 || got[0] != "BTC/USDT" {
		t.Errorf("expected SyncSymbols fallback to symbol, got %v", got)
	}
	if cfg.Feed.Name != "binance" {
		t.Errorf("expected default feed binance, got %s", cfg.Feed.Name)
	}
	if !cfg.Feed.RateLimit {
		t.Errorf("expected rate_limit enabled by default")
	}
	if cfg.Feed.Timeout != 30*time.Second {
		t.Errorf("expected default feed timeout 30s, got %v", cfg.Feed.Timeout)
	}
	if cfg.Feed.Retry.MaxAttempts != 5 {
		t.Errorf("expected default max_attempts 5, got %d", cfg.Feed.Retry.MaxAttempts)
	}
	if cfg.Feed.Retry.MinDelay != 500*time.Millisecond {
		t.Errorf("expected default min_delay 500ms, got %v", cfg.Feed.Retry.MinDelay)
	}
	if cfg.Backtest.Strategy != "ema_rsi_trend" {
		t.Errorf("expected default strategy ema_rsi_trend, got %s", cfg.Backtest.Strategy)
	}
	if cfg.Backtest.InitialCapital != 10000 {
		t.Errorf("expected default initial capital 10000, got %f", cfg.Backtest.InitialCapital)
	}
	if cfg.Backtest.Sizing.Mode != "fixed" {
		t.Errorf("expected default sizing mode fixed, got %s", cfg.Backtest.Sizing.Mode)
	}
	if cfg.Backtest.Sizing.ATRPeriod != 14 {
		t.Errorf("expected default atr_period 14, got %d", cfg.Backtest.Sizing.ATRPeriod)
	}
	if cfg.Injection.Enabled {
		t.Errorf("expected injection disabled by default")
	}
	if cfg.Sweep.RankBy != "final_capital" {
		t.Errorf("expected default rank_by final_capital, got %s", cfg.Sweep.RankBy)
	}
	if len(cfg.Export.Formats) != 1 || cfg.Export.Formats[0] != "csv" {
		t.Errorf("expected default export formats [csv], got %v", cfg.Export.Formats)
	}
	if cfg.Advisor.Enabled {
		t.Errorf("expected advisor disabled by default")
	}
	if cfg.Advisor.Timeout != 15*time.Second {
		t.Errorf("expected default advisor timeout 15s, got %v", cfg.Advisor.Timeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default logging level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: production
data:
  database_path: data/market.db
  symbol: ETH/USDT
  symbols: [BTC/USDT, ETH/USDT]
  start_date: "2020-01-01"
  end_date: "2023-12-31"
feed:
  timeout: 10s
  retry:
    max_attempts: 3
backtest:
  strategy: rsi_reversion
  params:
    period: 14
    oversold: 25
  initial_capital: 25000
  commission_rate: 0.0005
  stop_loss_pct: 0.05
  take_profit_pct: 0.2
  allow_short: true
  sizing:
    mode: volatility
    risk_pct: 0.02
injection:
  enabled: true
  amount: 300
sweep:
  concurrency: 2
  rank_by: sharpe
  fixed:
    period: 14
  axes:
    - name: oversold
      values: [20, 25, 30]
    - name: overbought
      values: [70, 75]
export:
  dir: out
  formats: [csv, parquet]
advisor:
  enabled: true
  api_key: test-key
  model: gpt-4o-mini
  timeout: 30s
logging:
  level: debug
  encoding: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Environment != "production" {
		t.Errorf("expected environment production, got %s", cfg.App.Environment)
	}
	if cfg.Data.Symbol != "ETH/USDT" {
		t.Errorf("expected symbol ETH/USDT, got %s", cfg.Data.Symbol)
	}
	if got := cfg.Data.SyncSymbols(); len(got) != 2 || got[0] != "BTC/USDT" || got[1] != "ETH/USDT" {
		t.Errorf("expected configured symbols list, got %v", got)
	}
	wantEnd := time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)
	if !cfg.Data.EndDate.Equal(wantEnd) {
		t.Errorf("expected end_date %v, got %v", wantEnd, cfg.Data.EndDate)
	}
	if cfg.Feed.Timeout != 10*time.Second {
		t.Errorf("expected feed timeout 10s, got %v", cfg.Feed.Timeout)
	}
	if cfg.Feed.Retry.MaxAttempts != 3 {
		t.Errorf("expected max_attempts 3, got %d", cfg.Feed.Retry.MaxAttempts)
	}
	if cfg.Feed.Retry.MinDelay != 500*time.Millisecond {
		t.Errorf("expected min_delay to keep default, got %v", cfg.Feed.Retry.MinDelay)
	}
	if cfg.Backtest.Strategy != "rsi_reversion" {
		t.Errorf("expected strategy rsi_reversion, got %s", cfg.Backtest.Strategy)
	}
	if cfg.Backtest.Params["period"] != 14 || cfg.Backtest.Params["oversold"] != 25 {
		t.Errorf("unexpected strategy params: %v", cfg.Backtest.Params)
	}
	if cfg.Backtest.InitialCapital != 25000 {
		t.Errorf("expected initial capital 25000, got %f", cfg.Backtest.InitialCapital)
	}
	if !cfg.Backtest.AllowShort {
		t.Errorf("expected allow_short true")
	}
	if cfg.Backtest.Sizing.Mode != "volatility" || cfg.Backtest.Sizing.RiskPct != 0.02 {
		t.Errorf("unexpected sizing config: %+v", cfg.Backtest.Sizing)
	}
	if !cfg.Injection.Enabled || cfg.Injection.Amount != 300 {
		t.Errorf("unexpected injection config: %+v", cfg.Injection)
	}
	if cfg.Sweep.Concurrency != 2 || cfg.Sweep.RankBy != "sharpe" {
		t.Errorf("unexpected sweep config: %+v", cfg.Sweep)
	}
	if cfg.Sweep.Fixed["period"] != 14 {
		t.Errorf("expected fixed period 14, got %v", cfg.Sweep.Fixed)
	}
	if len(cfg.Sweep.Axes) != 2 {
		t.Fatalf("expected 2 sweep axes, got %d", len(cfg.Sweep.Axes))
	}
	if cfg.Sweep.Axes[0].Name != "oversold" || len(cfg.Sweep.Axes[0].Values) != 3 {
		t.Errorf("unexpected first axis: %+v", cfg.Sweep.Axes[0])
	}
	if len(cfg.Export.Formats) != 2 || cfg.Export.Formats[1] != "parquet" {
		t.Errorf("unexpected export formats: %v", cfg.Export.Formats)
	}
	if !cfg.Advisor.Enabled || cfg.Advisor.Model != "gpt-4o-mini" || cfg.Advisor.Timeout != 30*time.Second {
		t.Errorf("unexpected advisor config: %+v", cfg.Advisor)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Encoding != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BACKTEST_DATA_SYMBOL", "SOL/USDT")
	t.Setenv("BACKTEST_FEED_RETRY_MAX_ATTEMPTS", "9")

	path := writeConfig(t, "data:\n  database_path: data/test.db\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Data.Symbol != "SOL/USDT" {
		t.Errorf("expected env override symbol SOL/USDT, got %s", cfg.Data.Symbol)
	}
	if cfg.Feed.Retry.MaxAttempts != 9 {
		t.Errorf("expected env override max_attempts 9, got %d", cfg.Feed.Retry.MaxAttempts)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := writeConfig(t, `
data:
  symbol: ""
  start_date: "2024-01-01"
  end_date: "2020-01-01"
feed:
  retry:
    max_attempts: 0
export:
  formats: [xml]
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "配置校验失败") {
		t.Errorf("expected wrapped validation error, got %q", msg)
	}
	for _, want := range []string{"data.symbol", "end_date", "max_attempts", "export.formats"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected validation message to mention %s, got %q", want, msg)
		}
	}
}

func TestLoadAdvisorValidation(t *testing.T) {
	path := writeConfig(t, `
data:
  database_path: data/test.db
advisor:
  enabled: true
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected advisor validation error, got nil")
	}
	if !strings.Contains(err.Error(), "advisor.api_key") {
		t.Errorf("expected advisor.api_key error, got %q", err.Error())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing config file, got nil")
	}
}
