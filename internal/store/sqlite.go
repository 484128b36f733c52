package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"trades-backtest/internal/config"
)

// Store 封装 SQLite 连接,持有行情与回测结果两张表。
type Store struct {
	db *sql.DB
}

// NewSQLite 根据配置初始化 SQLite 存储并建表。
func NewSQLite(cfg config.DataConfig) (*Store, error) {
	dsn := cfg.DatabasePath
	if cfg.InMemory {
		dsn = ":memory:"
	} else {
		if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 数据库失败: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if cfg.InMemory {
		// 内存库的每个连接各自独立,必须收敛到单连接。
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("设置 SQLite WAL 模式失败: %w", err)
	}

	if _, err := conn.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("设置 SQLite 同步级别失败: %w", err)
	}

	s := &Store{db: conn}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS price_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			date TEXT NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			s2f_deviation REAL,
			UNIQUE(symbol, date)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_date ON price_history(date);`,
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			params TEXT NOT NULL,
			initial_capital REAL NOT NULL,
			final_capital REAL NOT NULL,
			total_return_pct REAL NOT NULL,
			cagr_pct REAL NOT NULL,
			sharpe_ratio REAL NOT NULL,
			max_drawdown_pct REAL NOT NULL,
			win_rate_pct REAL NOT NULL,
			profit_factor REAL,
			trade_count INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol ON backtest_runs(symbol);`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("初始化表结构失败: %w", err)
		}
	}

	return nil
}

// DB 返回底层 *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("创建目录 %q 失败: %w", path, err)
	}
	return nil
}
