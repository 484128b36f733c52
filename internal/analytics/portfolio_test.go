package analytics

import (
	"context"
	"errors"
	"testing"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/market"
)

func portfolioAssets() []Asset {
	return []Asset{
		{Symbol: "BTC/USDT", Series: dailySeries(ymd(2021, 1, 1), []float64{100, 110, 120, 125, 130})},
		{Symbol: "ETH/USDT", Series: dailySeries(ymd(2021, 1, 1), []float64{100, 90, 80, 70, 60}), Units: 2},
	}
}

func TestEvaluatePortfolioWorkedExample(t *testing.T) {
	cfg := backtest.Config{InitialCapital: 1000, CommissionRate: 0}

	report, err := EvaluatePortfolio(context.Background(), cfg, portfolioAssets(),
		"rsi_reversion", map[string]float64{"period": 3}, nil)
	if err != nil {
		t.Fatalf("EvaluatePortfolio returned error: %v", err)
	}
	if len(report.Rows) != 2 {
		t.Fatalf("row count = %d, want 2", len(report.Rows))
	}

	// BTC 一路上涨:RSI 高企不给买点,空仓拿着 1000 输给持有。
	btc := report.Rows[0]
	if btc.Symbol != "BTC/USDT" || btc.Err != "" {
		t.Fatalf("btc row = %s err %q", btc.Symbol, btc.Err)
	}
	if btc.Result.Metrics.TradeCount != 0 || !almostEqual(btc.Result.FinalCapital, 1000, 1e-9) {
		t.Errorf("btc trades/final = %d/%v, want 0/1000", btc.Result.Metrics.TradeCount, btc.Result.FinalCapital)
	}
	if btc.Comparison.Verdict != VerdictWorse {
		t.Errorf("btc verdict = %s, want worse", btc.Comparison.Verdict)
	}
	if btc.Comment != "持有更优 30 个百分点" {
		t.Errorf("btc comment = %q", btc.Comment)
	}

	// ETH 按 2 枚持仓折算 200 本金:超卖抄底亏 25%,仍好于持有的 -40%。
	eth := report.Rows[1]
	if eth.Err != "" {
		t.Fatalf("eth row error = %s", eth.Err)
	}
	if !almostEqual(eth.Result.InvestedCapital, 200, 1e-9) {
		t.Errorf("eth invested = %v, want 200", eth.Result.InvestedCapital)
	}
	if !almostEqual(eth.Result.FinalCapital, 150, 1e-9) {
		t.Errorf("eth final = %v, want 150", eth.Result.FinalCapital)
	}
	if eth.Comparison.Verdict != VerdictBetter {
		t.Errorf("eth verdict = %s, want better", eth.Comparison.Verdict)
	}
	if eth.Comment != "策略跑赢持有 15 个百分点" {
		t.Errorf("eth comment = %q", eth.Comment)
	}

	if !almostEqual(report.InitialTotal, 1200, 1e-9) {
		t.Errorf("initial total = %v, want 1200", report.InitialTotal)
	}
	if !almostEqual(report.StrategyTotal, 1150, 1e-9) {
		t.Errorf("strategy total = %v, want 1150", report.StrategyTotal)
	}
	if !almostEqual(report.HoldTotal, 1420, 1e-6) {
		t.Errorf("hold total = %v, want 1420", report.HoldTotal)
	}
	if report.Verdict != VerdictWorse {
		t.Errorf("portfolio verdict = %s, want worse", report.Verdict)
	}
}

func TestEvaluatePortfolioEmptyAssets(t *testing.T) {
	cfg := backtest.Config{InitialCapital: 1000}
	_, err := EvaluatePortfolio(context.Background(), cfg, nil, "rsi_reversion", nil, nil)
	if !errors.Is(err, market.ErrInvalidParameter) {
		t.Errorf("empty portfolio error = %v, want ErrInvalidParameter", err)
	}
}

func TestEvaluatePortfolioSkipsFailedAssets(t *testing.T) {
	cfg := backtest.Config{InitialCapital: 1000, CommissionRate: 0}
	assets := append(portfolioAssets(), Asset{Symbol: "XRP/USDT"})

	report, err := EvaluatePortfolio(context.Background(), cfg, assets,
		"rsi_reversion", map[string]float64{"period": 3}, nil)
	if err != nil {
		t.Fatalf("EvaluatePortfolio returned error: %v", err)
	}
	if report.Rows[2].Err == "" {
		t.Error("expected error for asset without data")
	}
	// 失败标的不计入总市值。
	if !almostEqual(report.InitialTotal, 1200, 1e-9) || !almostEqual(report.StrategyTotal, 1150, 1e-9) {
		t.Errorf("totals = %v/%v, want 1200/1150", report.InitialTotal, report.StrategyTotal)
	}
}

func TestEvaluatePortfolioCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := backtest.Config{InitialCapital: 1000}
	_, err := EvaluatePortfolio(ctx, cfg, portfolioAssets(), "rsi_reversion", map[string]float64{"period": 3}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context error = %v, want context.Canceled", err)
	}
}
