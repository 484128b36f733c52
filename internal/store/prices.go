package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"trades-backtest/internal/market"
)

// UpsertPrices 批量写入行情点,(symbol, date) 冲突时覆盖旧值。
// 整批在同一事务内完成,S2F 偏离缺失(NaN)时落 NULL。
func (s *Store) UpsertPrices(ctx context.Context, symbol string, points []market.PricePoint) error {
	if symbol == "" {
		return fmt.Errorf("交易对符号不能为空: %w", market.ErrInvalidParameter)
	}
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO price_history (symbol, date, open, high, low, close, volume, s2f_deviation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			s2f_deviation = excluded.s2f_deviation`,
	)
	if err != nil {
		return fmt.Errorf("准备行情写入语句失败: %w", err)
	}
	defer stmt.Close()

	for _, point := range points {
		var deviation interface{}
		if !math.IsNaN(point.S2FDeviation) {
			deviation = point.S2FDeviation
		}
		if _, err = stmt.ExecContext(ctx,
			symbol,
			point.Date.UTC().Format(time.DateOnly),
			point.Open,
			point.High,
			point.Low,
			point.Close,
			point.Volume,
			deviation,
		); err != nil {
			return fmt.Errorf("写入行情点 %s 失败: %w", point.Date.Format(time.DateOnly), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交行情写入失败: %w", err)
	}
	return nil
}

// PriceRange 按日期升序返回指定区间的行情点。from/to 为零值时
// 对应方向不设边界,闭区间。
func (s *Store) PriceRange(ctx context.Context, symbol string, from, to time.Time) ([]market.PricePoint, error) {
	query := `SELECT date, open, high, low, close, volume, s2f_deviation FROM price_history WHERE symbol = ?`
	args := []interface{}{symbol}
	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, from.UTC().Format(time.DateOnly))
	}
	if !to.IsZero() {
		query += ` AND date <= ?`
		args = append(args, to.UTC().Format(time.DateOnly))
	}
	query += ` ORDER BY date`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询行情失败: %w", err)
	}
	defer rows.Close()

	var points []market.PricePoint
	for rows.Next() {
		var (
			dateStr   string
			point     market.PricePoint
			deviation sql.NullFloat64
		)
		if err := rows.Scan(&dateStr, &point.Open, &point.High, &point.Low, &point.Close, &point.Volume, &deviation); err != nil {
			return nil, fmt.Errorf("读取行情行失败: %w", err)
		}
		date, err := time.Parse(time.DateOnly, dateStr)
		if err != nil {
			return nil, fmt.Errorf("解析行情日期 %q 失败: %w", dateStr, err)
		}
		point.Date = date
		if deviation.Valid {
			point.S2FDeviation = deviation.Float64
		} else {
			point.S2FDeviation = math.NaN()
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历行情结果失败: %w", err)
	}
	return points, nil
}

// LatestDate 返回指定交易对已入库的最新日期,无数据时 ok 为 false。
func (s *Store) LatestDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT date FROM price_history WHERE symbol = ? ORDER BY date DESC LIMIT 1`, symbol)

	var dateStr string
	switch err := row.Scan(&dateStr); {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, nil
	default:
		return time.Time{}, false, fmt.Errorf("查询最新行情日期失败: %w", err)
	}

	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("解析最新行情日期 %q 失败: %w", dateStr, err)
	}
	return date, true, nil
}
