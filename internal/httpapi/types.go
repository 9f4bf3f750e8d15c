// Package httpapi provides the JSON REST API consumed by dashboard
// frontends and the stockpilot CLI: signals, advice, portfolio advice,
// backtests, and parameter optimization.
package httpapi

import (
	"stockpilot/internal/advice"
	"stockpilot/internal/backtest"
	"stockpilot/internal/domain"
	"stockpilot/internal/portfolio"
	"stockpilot/internal/store"
)

// opt converts a possibly-unknown value to a JSON-friendly pointer:
// unknown (NaN) becomes null. encoding/json cannot represent NaN.
func opt(v float64) *float64 {
	if !domain.Known(v) {
		return nil
	}
	return &v
}

// SignalResponse is the technical-signal verdict for one symbol.
type SignalResponse struct {
	Symbol      string   `json:"symbol"`
	Grade       string   `json:"grade"`
	Reasons     []string `json:"reasons"`
	Signal      string   `json:"signal"`
	Price       *float64 `json:"price"`
	RSI         *float64 `json:"rsi"`
	MACD        *float64 `json:"macd"`
	MA20        *float64 `json:"ma20"`
	VolumeRatio *float64 `json:"volume_ratio"`
}

// AdviceResponse wraps an advice decision with the snapshot context it
// was made from.
type AdviceResponse struct {
	advice.Decision
	Price       *float64 `json:"price"`
	TargetPrice *float64 `json:"target_price"`
}

// PositionJSON is the JSON projection of a valued portfolio position.
type PositionJSON struct {
	Symbol    string   `json:"symbol"`
	Type      string   `json:"type"`
	Quantity  float64  `json:"quantity"`
	Price     *float64 `json:"price"`
	Value     float64  `json:"value"`
	GainLoss  float64  `json:"gain_loss"`
	ReturnPct float64  `json:"return_pct"`
	Weight    float64  `json:"weight"`
}

// PortfolioAdviceResponse is the full portfolio advice run.
type PortfolioAdviceResponse struct {
	TotalValue float64           `json:"total_value"`
	Positions  []PositionJSON    `json:"positions"`
	Decisions  []advice.Decision `json:"decisions"`
}

// BacktestRequest configures a backtest run. Zero-valued parameters fall
// back to the server's configured defaults.
type BacktestRequest struct {
	Symbol        string  `json:"symbol"`
	StartCapital  float64 `json:"start_capital"`
	Cost          float64 `json:"cost"`
	Delay         *int    `json:"delay"` // pointer: 0 is a meaningful delay
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	HistoryDays   int     `json:"history_days"`
}

// OptimizeRequest configures a brute-force parameter sweep. A zero
// Ranges uses the standard grid.
type OptimizeRequest struct {
	Symbol      string          `json:"symbol"`
	Metric      string          `json:"metric"`
	Ranges      backtest.Ranges `json:"ranges"`
	HistoryDays int             `json:"history_days"`
}

// BacktestListResponse lists persisted backtest runs.
type BacktestListResponse struct {
	Runs []store.BacktestRun `json:"runs"`
}

func toPositionJSON(v portfolio.Valued) PositionJSON {
	return PositionJSON{
		Symbol:    v.Symbol,
		Type:      string(v.Type),
		Quantity:  v.Quantity,
		Price:     opt(v.Price),
		Value:     v.Value,
		GainLoss:  v.GainLoss,
		ReturnPct: v.ReturnPct,
		Weight:    v.Weight,
	}
}
