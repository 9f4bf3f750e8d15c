// Package store defines storage interfaces for persisting and retrieving
// domain objects: daily bars, backtest run history, and advice history.
package store

import (
	"context"
	"time"

	"stockpilot/internal/domain"
)

// BarStore persists and retrieves daily OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in storage.
	ListSymbols(ctx context.Context) ([]string, error)
}

// BacktestRun is one persisted backtest: the parameters it ran with and
// the headline results.
type BacktestRun struct {
	ID            int64     `json:"id"`
	Symbol        string    `json:"symbol"`
	CreatedAt     time.Time `json:"created_at"`
	StartCapital  float64   `json:"start_capital"`
	Cost          float64   `json:"cost"`
	Delay         int       `json:"delay"`
	StopLossPct   float64   `json:"stop_loss_pct"`
	TakeProfitPct float64   `json:"take_profit_pct"`
	FinalCapital  float64   `json:"final_capital"`
	ReturnPct     float64   `json:"return_pct"`
	TradeCount    int       `json:"trade_count"`
	WinRate       float64   `json:"win_rate"`
}

// AdviceEntry is one persisted advice evaluation.
type AdviceEntry struct {
	ID             int64     `json:"id"`
	Symbol         string    `json:"symbol"`
	CreatedAt      time.Time `json:"created_at"`
	Recommendation string    `json:"recommendation"`
	QualityScore   int       `json:"quality_score"`
	ValueScore     int       `json:"value_score"`
}

// BacktestStore persists and retrieves backtest run history.
type BacktestStore interface {
	// SaveBacktest inserts a run and fills in its assigned ID.
	SaveBacktest(ctx context.Context, run *BacktestRun) error

	// ListBacktests returns the most recent runs, newest first, up to
	// limit. An empty symbol returns runs for all symbols.
	ListBacktests(ctx context.Context, symbol string, limit int) ([]BacktestRun, error)
}

// AdviceStore persists and retrieves advice evaluations.
type AdviceStore interface {
	// SaveAdvice inserts an advice entry and fills in its assigned ID.
	SaveAdvice(ctx context.Context, entry *AdviceEntry) error

	// ListAdvice returns the most recent entries, newest first, up to
	// limit. An empty symbol returns entries for all symbols.
	ListAdvice(ctx context.Context, symbol string, limit int) ([]AdviceEntry, error)
}
