package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ BacktestStore = (*SQLiteStore)(nil)
var _ AdviceStore = (*SQLiteStore)(nil)

// SQLiteStore implements BacktestStore and AdviceStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol          TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	start_capital   REAL NOT NULL,
	cost            REAL NOT NULL,
	delay           INTEGER NOT NULL,
	stop_loss_pct   REAL NOT NULL,
	take_profit_pct REAL NOT NULL,
	final_capital   REAL NOT NULL,
	return_pct      REAL NOT NULL,
	trade_count     INTEGER NOT NULL,
	win_rate        REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol ON backtest_runs(symbol, created_at);

CREATE TABLE IF NOT EXISTS advice_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol         TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	recommendation TEXT NOT NULL,
	quality_score  INTEGER NOT NULL,
	value_score    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_advice_log_symbol ON advice_log(symbol, created_at);
`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// BacktestStore implementation
// ---------------------------------------------------------------------------

// SaveBacktest inserts a run and fills in its assigned ID. A zero
// CreatedAt is set to the current time.
func (s *SQLiteStore) SaveBacktest(ctx context.Context, run *BacktestRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO backtest_runs
	(symbol, created_at, start_capital, cost, delay, stop_loss_pct,
	 take_profit_pct, final_capital, return_pct, trade_count, win_rate)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Symbol, run.CreatedAt.Format(time.RFC3339Nano),
		run.StartCapital, run.Cost, run.Delay, run.StopLossPct,
		run.TakeProfitPct, run.FinalCapital, run.ReturnPct,
		run.TradeCount, run.WinRate)
	if err != nil {
		return fmt.Errorf("inserting backtest run: %w", err)
	}
	run.ID, err = res.LastInsertId()
	return err
}

// ListBacktests returns the most recent runs, newest first, up to limit.
// An empty symbol returns runs for all symbols.
func (s *SQLiteStore) ListBacktests(ctx context.Context, symbol string, limit int) ([]BacktestRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, symbol, created_at, start_capital, cost, delay, stop_loss_pct,
       take_profit_pct, final_capital, return_pct, trade_count, win_rate
FROM backtest_runs`
	args := []any{}
	if symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying backtest runs: %w", err)
	}
	defer rows.Close()

	var runs []BacktestRun
	for rows.Next() {
		var r BacktestRun
		var created string
		if err := rows.Scan(&r.ID, &r.Symbol, &created, &r.StartCapital,
			&r.Cost, &r.Delay, &r.StopLossPct, &r.TakeProfitPct,
			&r.FinalCapital, &r.ReturnPct, &r.TradeCount, &r.WinRate); err != nil {
			return nil, err
		}
		r.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ---------------------------------------------------------------------------
// AdviceStore implementation
// ---------------------------------------------------------------------------

// SaveAdvice inserts an advice entry and fills in its assigned ID. A zero
// CreatedAt is set to the current time.
func (s *SQLiteStore) SaveAdvice(ctx context.Context, entry *AdviceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO advice_log (symbol, created_at, recommendation, quality_score, value_score)
VALUES (?, ?, ?, ?, ?)`,
		entry.Symbol, entry.CreatedAt.Format(time.RFC3339Nano),
		entry.Recommendation, entry.QualityScore, entry.ValueScore)
	if err != nil {
		return fmt.Errorf("inserting advice entry: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	return err
}

// ListAdvice returns the most recent entries, newest first, up to limit.
// An empty symbol returns entries for all symbols.
func (s *SQLiteStore) ListAdvice(ctx context.Context, symbol string, limit int) ([]AdviceEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, symbol, created_at, recommendation, quality_score, value_score
FROM advice_log`
	args := []any{}
	if symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying advice entries: %w", err)
	}
	defer rows.Close()

	var entries []AdviceEntry
	for rows.Next() {
		var e AdviceEntry
		var created string
		if err := rows.Scan(&e.ID, &e.Symbol, &created, &e.Recommendation,
			&e.QualityScore, &e.ValueScore); err != nil {
			return nil, err
		}
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
