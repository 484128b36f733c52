package app

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trades-backtest/internal/config"
	"trades-backtest/internal/market"
	"trades-backtest/internal/store"
)

func baseConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Environment: "test"},
		Data: config.DataConfig{
			Symbol: "BTC/USDT",
		},
		Backtest: config.BacktestConfig{
			Strategy:       "rsi_reversion",
			Params:         map[string]float64{"period": 14, "oversold": 30, "overbought": 70},
			InitialCapital: 10000,
			CommissionRate: 0.001,
			Leverage:       1,
			Sizing:         config.SizingConfig{Mode: "fixed", Fraction: 1},
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	s, err := store.NewSQLite(config.DataConfig{
		InMemory:     true,
		MaxOpenConns: 4,
		MaxIdleConns: 4,
	})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close returned error: %v", err)
		}
	})
	return New(cfg, nil, s)
}

func seedPrices(t *testing.T, a *App, symbol string, days int) {
	t.Helper()
	base := time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)
	points := make([]market.PricePoint, 0, days)
	for i := 0; i < days; i++ {
		price := 100 + 15*math.Sin(float64(i)/9)
		points = append(points, market.PricePoint{
			Date:         base.AddDate(0, 0, i),
			Open:         price * 0.995,
			High:         price * 1.01,
			Low:          price * 0.99,
			Close:        price,
			Volume:       1500,
			S2FDeviation: math.NaN(),
		})
	}
	if err := a.store.UpsertPrices(context.Background(), symbol, points); err != nil {
		t.Fatalf("UpsertPrices returned error: %v", err)
	}
}

func TestRunBacktestPersistsRun(t *testing.T) {
	cfg := baseConfig()
	a := newTestApp(t, cfg)
	seedPrices(t, a, "BTC/USDT", 240)

	if err := a.Run(context.Background(), ModeRun); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	records, err := a.store.ListRuns(context.Background(), "BTC/USDT", 0)
	if err != nil {
		t.Fatalf("ListRuns returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 persisted run, got %d", len(records))
	}
	rec := records[0]
	if rec.Strategy != "rsi_reversion" {
		t.Errorf("expected strategy rsi_reversion, got %s", rec.Strategy)
	}
	if rec.InitialCapital != 10000 {
		t.Errorf("expected initial capital 10000, got %f", rec.InitialCapital)
	}
	if rec.FinalCapital <= 0 {
		t.Errorf("expected positive final capital, got %f", rec.FinalCapital)
	}
	if rec.Params["period"] != 14 {
		t.Errorf("expected params round trip, got %v", rec.Params)
	}
}

func TestRunBacktestExportsArtifacts(t *testing.T) {
	cfg := baseConfig()
	dir := t.TempDir()
	cfg.Export = config.ExportConfig{Dir: dir, Formats: []string{"csv", "parquet"}}
	a := newTestApp(t, cfg)
	seedPrices(t, a, "BTC/USDT", 240)

	if err := a.Run(context.Background(), ModeRun); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 exported files, got %d", len(entries))
	}
	var haveParquet, haveCSV bool
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), "_equity.parquet"):
			haveParquet = true
		case strings.HasSuffix(entry.Name(), "_trades.csv"):
			haveCSV = true
		}
	}
	if !haveParquet || !haveCSV {
		t.Errorf("missing expected artifacts, parquet=%v csv=%v", haveParquet, haveCSV)
	}
}

func TestRunSweepMode(t *testing.T) {
	cfg := baseConfig()
	dir := t.TempDir()
	cfg.Export = config.ExportConfig{Dir: dir, Formats: []string{"csv"}}
	cfg.Sweep = config.SweepConfig{
		Concurrency: 2,
		RankBy:      "final_capital",
		Axes: []config.SweepAxis{
			{Name: "period", Values: []float64{10, 14}},
		},
		Fixed: map[string]float64{"oversold": 30, "overbought": 70},
	}
	a := newTestApp(t, cfg)
	seedPrices(t, a, "BTC/USDT", 240)

	if err := a.Run(context.Background(), ModeSweep); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "rsi_reversion_sweep.csv"))
	if err != nil {
		t.Fatalf("reading sweep csv failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Errorf("expected header plus 2 grid rows, got %d lines", len(lines))
	}
}

func TestRunAccumulateMode(t *testing.T) {
	cfg := baseConfig()
	cfg.Injection = config.InjectionConfig{Enabled: true, Amount: 500}
	a := newTestApp(t, cfg)
	seedPrices(t, a, "BTC/USDT", 400)

	if err := a.Run(context.Background(), ModeAccumulate); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRunPortfolioMode(t *testing.T) {
	cfg := baseConfig()
	cfg.Data.Symbols = []string{"BTC/USDT", "ETH/USDT"}
	a := newTestApp(t, cfg)
	seedPrices(t, a, "BTC/USDT", 240)
	seedPrices(t, a, "ETH/USDT", 240)

	if err := a.Run(context.Background(), ModePortfolio); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRunPeriodsMode(t *testing.T) {
	cfg := baseConfig()
	a := newTestApp(t, cfg)
	seedPrices(t, a, "BTC/USDT", 240)

	if err := a.Run(context.Background(), ModePeriods); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRunWithoutLocalData(t *testing.T) {
	a := newTestApp(t, baseConfig())

	err := a.Run(context.Background(), ModeRun)
	if !errors.Is(err, market.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestRunUnknownMode(t *testing.T) {
	a := newTestApp(t, baseConfig())

	err := a.Run(context.Background(), "replay")
	if err == nil || !strings.Contains(err.Error(), "未知运行模式") {
		t.Fatalf("expected unknown mode error, got %v", err)
	}
}

func TestBacktestConfigMapping(t *testing.T) {
	cfg := baseConfig()
	cfg.Backtest.StopLossPct = 0.05
	cfg.Backtest.TakeProfitPct = 0.2
	cfg.Backtest.AllowShort = true
	cfg.Backtest.Sizing = config.SizingConfig{
		Mode:        "volatility",
		RiskPct:     0.02,
		ATRMultiple: 3,
		ATRPeriod:   20,
		CapPct:      0.15,
	}
	cfg.Injection = config.InjectionConfig{Enabled: true, Amount: 250}
	a := newTestApp(t, cfg)

	got := a.backtestConfig()
	if got.StopLossPct != 0.05 || got.TakeProfitPct != 0.2 || !got.AllowShort {
		t.Errorf("unexpected engine config: %+v", got)
	}
	if got.Sizing.Mode != "volatility" || got.Sizing.ATRPeriod != 20 || got.Sizing.CapPct != 0.15 {
		t.Errorf("unexpected sizing mapping: %+v", got.Sizing)
	}
	if !got.Injection.Enabled || got.Injection.Amount != 250 {
		t.Errorf("unexpected injection mapping: %+v", got.Injection)
	}
}

func TestAccumulationParamsMapping(t *testing.T) {
	p := accumulationParams(map[string]float64{
		"sma_fast":     49.6,
		"rsi_oversold": 35,
		"trend_filter": 0,
	})
	if p.SMAFast != 50 {
		t.Errorf("expected rounded sma_fast 50, got %d", p.SMAFast)
	}
	if p.RSIOversold != 35 {
		t.Errorf("expected rsi_oversold 35, got %f", p.RSIOversold)
	}
	if p.TrendFilter {
		t.Errorf("expected trend filter disabled when set to 0")
	}

	if !accumulationParams(nil).TrendFilter {
		t.Errorf("expected trend filter enabled by default")
	}
}

func TestMonthlyDeposits(t *testing.T) {
	day := func(m time.Month, d int) time.Time {
		return time.Date(2021, m, d, 0, 0, 0, 0, time.UTC)
	}
	series := market.NewSeries([]market.PricePoint{
		{Date: day(time.January, 15), Close: 100},
		{Date: day(time.January, 20), Close: 101},
		{Date: day(time.February, 3), Close: 102},
		{Date: day(time.March, 2), Close: 103},
	})

	deposits := monthlyDeposits(series, 500)
	if len(deposits) != 3 {
		t.Fatalf("expected 3 monthly deposits, got %d", len(deposits))
	}
	for i, amount := range deposits {
		if amount != 500 {
			t.Errorf("deposit %d: expected 500, got %f", i, amount)
		}
	}

	if monthlyDeposits(series, 0) != nil {
		t.Errorf("expected nil deposits for zero amount")
	}
	if monthlyDeposits(market.Series{}, 500) != nil {
		t.Errorf("expected nil deposits for empty series")
	}
}
