package export

import (
	"fmt"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/market"
)

// equityRecord 是净值曲线的 Parquet 落盘结构。
type equityRecord struct {
	RunID         string  `parquet:"run_id"`
	Timestamp     int64   `parquet:"timestamp,timestamp(millisecond)"`
	Cash          float64 `parquet:"cash"`
	PositionValue float64 `parquet:"position_value"`
	TotalEquity   float64 `parquet:"total_equity"`
}

// priceRecord 是价格序列归档的 Parquet 落盘结构。
type priceRecord struct {
	Symbol       string  `parquet:"symbol"`
	Timestamp    int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open         float64 `parquet:"open"`
	High         float64 `parquet:"high"`
	Low          float64 `parquet:"low"`
	Close        float64 `parquet:"close"`
	Volume       float64 `parquet:"volume"`
	S2FDeviation float64 `parquet:"s2f_deviation"`
}

func (w *Writer) writeEquityCurve(runID string, curve []backtest.EquitySample) (string, error) {
	if err := w.ensureDir(); err != nil {
		return "", err
	}

	records := make([]equityRecord, 0, len(curve))
	for _, sample := range curve {
		records = append(records, equityRecord{
			RunID:         runID,
			Timestamp:     sample.Date.UnixMilli(),
			Cash:          sample.Cash,
			PositionValue: sample.PositionValue,
			TotalEquity:   sample.Equity,
		})
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_equity.parquet", runID))
	if err := parquet.WriteFile(path, records); err != nil {
		return "", fmt.Errorf("写入净值曲线 %q 失败: %w", path, err)
	}
	return path, nil
}

// WritePrices 归档一条价格序列,文件名按交易对区分。
// 未启用 Parquet 格式时直接跳过并返回空路径。
func (w *Writer) WritePrices(symbol string, series market.Series) (string, error) {
	if !w.formats[FormatParquet] {
		return "", nil
	}
	if err := w.ensureDir(); err != nil {
		return "", err
	}

	records := make([]priceRecord, 0, series.Len())
	for i := 0; i < series.Len(); i++ {
		records = append(records, priceRecord{
			Symbol:       symbol,
			Timestamp:    series.Dates[i].UnixMilli(),
			Open:         series.Open[i],
			High:         series.High[i],
			Low:          series.Low[i],
			Close:        series.Close[i],
			Volume:       series.Volume[i],
			S2FDeviation: series.S2FDeviation[i],
		})
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_prices.parquet", sanitizeSymbol(symbol)))
	if err := parquet.WriteFile(path, records); err != nil {
		return "", fmt.Errorf("写入价格归档 %q 失败: %w", path, err)
	}

	w.logger.Info("价格归档已导出",
		zap.String("symbol", symbol),
		zap.String("path", path),
	)
	return path, nil
}
