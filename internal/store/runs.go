package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"trades-backtest/internal/backtest"
)

// RunRecord 是一次回测的落库快照。ProfitFactor 为正无穷(无亏损交易)
// 时在库中记为 NULL。
type RunRecord struct {
	ID             string             `json:"id"`
	CreatedAt      time.Time          `json:"created_at"`
	Symbol         string             `json:"symbol"`
	Strategy       string             `json:"strategy"`
	Params         map[string]float64 `json:"params"`
	InitialCapital float64            `json:"initial_capital"`
	FinalCapital   float64            `json:"final_capital"`
	TotalReturnPct float64            `json:"total_return_pct"`
	CAGRPct        float64            `json:"cagr_pct"`
	SharpeRatio    float64            `json:"sharpe_ratio"`
	MaxDrawdownPct float64            `json:"max_drawdown_pct"`
	WinRatePct     float64            `json:"win_rate_pct"`
	ProfitFactor   float64            `json:"profit_factor"`
	TradeCount     int                `json:"trade_count"`
}

// NewRunRecord 从回测结果组装落库记录,自动分配 UUID 与创建时间。
func NewRunRecord(symbol, strategyName string, params map[string]float64, result backtest.Result) RunRecord {
	return RunRecord{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Symbol:         symbol,
		Strategy:       strategyName,
		Params:         params,
		InitialCapital: result.InitialCapital,
		FinalCapital:   result.FinalCapital,
		TotalReturnPct: result.Metrics.TotalReturnPct,
		CAGRPct:        result.Metrics.CAGRPct,
		SharpeRatio:    result.Metrics.SharpeRatio,
		MaxDrawdownPct: result.Metrics.MaxDrawdownPct,
		WinRatePct:     result.Metrics.WinRatePct,
		ProfitFactor:   result.Metrics.ProfitFactor,
		TradeCount:     result.Metrics.TradeCount,
	}
}

// SaveRun 写入一条回测记录,ID 为空时自动分配。
func (s *Store) SaveRun(ctx context.Context, rec RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Params == nil {
		rec.Params = map[string]float64{}
	}

	paramsJSON, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("序列化策略参数失败: %w", err)
	}

	var profitFactor interface{}
	if !math.IsInf(rec.ProfitFactor, 1) && !math.IsNaN(rec.ProfitFactor) {
		profitFactor = rec.ProfitFactor
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO backtest_runs (id, created_at, symbol, strategy, params,
			initial_capital, final_capital, total_return_pct, cagr_pct,
			sharpe_ratio, max_drawdown_pct, win_rate_pct, profit_factor, trade_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.Symbol,
		rec.Strategy,
		string(paramsJSON),
		rec.InitialCapital,
		rec.FinalCapital,
		rec.TotalReturnPct,
		rec.CAGRPct,
		rec.SharpeRatio,
		rec.MaxDrawdownPct,
		rec.WinRatePct,
		profitFactor,
		rec.TradeCount,
	)
	if err != nil {
		return fmt.Errorf("写入回测记录失败: %w", err)
	}
	return nil
}

// ListRuns 按创建时间倒序返回回测记录。symbol 为空时不过滤,
// limit 非正时取 20。
func (s *Store) ListRuns(ctx context.Context, symbol string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, created_at, symbol, strategy, params,
		initial_capital, final_capital, total_return_pct, cagr_pct,
		sharpe_ratio, max_drawdown_pct, win_rate_pct, profit_factor, trade_count
		FROM backtest_runs`
	args := []interface{}{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询回测记录失败: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			rec          RunRecord
			createdAt    string
			paramsJSON   string
			profitFactor sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.ID,
			&createdAt,
			&rec.Symbol,
			&rec.Strategy,
			&paramsJSON,
			&rec.InitialCapital,
			&rec.FinalCapital,
			&rec.TotalReturnPct,
			&rec.CAGRPct,
			&rec.SharpeRatio,
			&rec.MaxDrawdownPct,
			&rec.WinRatePct,
			&profitFactor,
			&rec.TradeCount,
		); err != nil {
			return nil, fmt.Errorf("读取回测记录失败: %w", err)
		}

		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("解析创建时间 %q 失败: %w", createdAt, err)
		}
		rec.CreatedAt = ts

		if err := json.Unmarshal([]byte(paramsJSON), &rec.Params); err != nil {
			return nil, fmt.Errorf("解析策略参数失败: %w", err)
		}

		if profitFactor.Valid {
			rec.ProfitFactor = profitFactor.Float64
		} else {
			rec.ProfitFactor = math.Inf(1)
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历回测记录失败: %w", err)
	}
	return records, nil
}
