package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"trades-backtest/internal/backtest"
)

func (w *Writer) writeTrades(runID string, trades []backtest.Trade) (string, error) {
	if err := w.ensureDir(); err != nil {
		return "", err
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_trades.csv", runID))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("创建成交明细文件 %q 失败: %w", path, err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	header := []string{
		"side", "entry_date", "exit_date", "entry_price", "exit_price",
		"size", "pnl", "pnl_pct", "commission", "reason", "holding_days",
	}
	if err := cw.Write(header); err != nil {
		return "", fmt.Errorf("写入成交明细表头失败: %w", err)
	}
	for _, trade := range trades {
		record := []string{
			trade.Side,
			trade.EntryDate.Format(time.DateOnly),
			trade.ExitDate.Format(time.DateOnly),
			formatFloat(trade.EntryPrice),
			formatFloat(trade.ExitPrice),
			formatFloat(trade.Size),
			formatFloat(trade.Pnl),
			formatFloat(trade.PnlPct),
			formatFloat(trade.Commission),
			trade.Reason,
			strconv.Itoa(trade.HoldingDays),
		}
		if err := cw.Write(record); err != nil {
			return "", fmt.Errorf("写入成交明细失败: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("落盘成交明细失败: %w", err)
	}
	return path, nil
}

// WriteSweep 导出参数清扫结果表,列为排序后的参数名加绩效指标,
// 失败的网格点在 error 列给出原因。未启用 CSV 格式时直接跳过。
func (w *Writer) WriteSweep(name string, rows []backtest.SweepRow) (string, error) {
	if !w.formats[FormatCSV] {
		return "", nil
	}
	if err := w.ensureDir(); err != nil {
		return "", err
	}

	paramKeys := sweepParamKeys(rows)
	header := make([]string, 0, len(paramKeys)+9)
	header = append(header, paramKeys...)
	header = append(header,
		"final_capital", "total_return_pct", "cagr_pct", "sharpe_ratio",
		"max_drawdown_pct", "win_rate_pct", "profit_factor", "trade_count", "error",
	)

	path := filepath.Join(w.dir, fmt.Sprintf("%s_sweep.csv", name))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("创建清扫结果文件 %q 失败: %w", path, err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(header); err != nil {
		return "", fmt.Errorf("写入清扫结果表头失败: %w", err)
	}
	for _, row := range rows {
		record := make([]string, 0, len(header))
		for _, key := range paramKeys {
			if value, ok := row.Params[key]; ok {
				record = append(record, formatFloat(value))
			} else {
				record = append(record, "")
			}
		}
		record = append(record,
			formatFloat(row.FinalCapital),
			formatFloat(row.TotalReturnPct),
			formatFloat(row.CAGRPct),
			formatFloat(row.SharpeRatio),
			formatFloat(row.MaxDrawdownPct),
			formatFloat(row.WinRatePct),
			formatFloat(row.ProfitFactor),
			strconv.Itoa(row.TradeCount),
			row.Err,
		)
		if err := cw.Write(record); err != nil {
			return "", fmt.Errorf("写入清扫结果失败: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("落盘清扫结果失败: %w", err)
	}

	w.logger.Info("清扫结果已导出", zap.String("path", path))
	return path, nil
}

// sweepParamKeys 汇总所有行出现过的参数名并排序,保证列顺序稳定。
func sweepParamKeys(rows []backtest.SweepRow) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for key := range row.Params {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
