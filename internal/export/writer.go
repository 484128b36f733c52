package export

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/config"
)

// 支持的导出格式。
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Writer 将回测产物写入导出目录,按配置的格式开关选择 CSV 与 Parquet。
// Formats 为空时所有写入都被跳过。
type Writer struct {
	dir     string
	formats map[string]bool
	logger  *zap.Logger
}

// NewWriter 创建导出器。
func NewWriter(cfg config.ExportConfig, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	formats := make(map[string]bool, len(cfg.Formats))
	for _, format := range cfg.Formats {
		formats[strings.ToLower(format)] = true
	}
	return &Writer{
		dir:     cfg.Dir,
		formats: formats,
		logger:  logger,
	}
}

// Enabled 报告某个格式是否在配置中启用。
func (w *Writer) Enabled(format string) bool {
	return w.formats[strings.ToLower(format)]
}

// WriteRun 导出单次回测的净值曲线(Parquet)与成交明细(CSV),
// 返回实际写出的文件路径。
func (w *Writer) WriteRun(runID string, result backtest.Result) ([]string, error) {
	var paths []string

	if w.formats[FormatParquet] {
		path, err := w.writeEquityCurve(runID, result.EquityCurve)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if w.formats[FormatCSV] {
		path, err := w.writeTrades(runID, result.Trades)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	for _, path := range paths {
		w.logger.Info("回测产物已导出", zap.String("path", path))
	}
	return paths, nil
}

func (w *Writer) ensureDir() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("创建导出目录 %q 失败: %w", w.dir, err)
	}
	return nil
}

// sanitizeSymbol 将交易对符号转成可作文件名的形式。
func sanitizeSymbol(symbol string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(symbol)
}
