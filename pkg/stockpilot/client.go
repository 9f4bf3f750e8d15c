// Package stockpilot provides a Go SDK for the stockpilot-server REST API.
//
// All response types mirror the server's wire format. Optional numeric
// fields, which the server omits when the underlying value is unknown,
// are pointers and nil when absent.
package stockpilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to a stockpilot-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

// Signal is the technical classification of a symbol's latest bar.
type Signal struct {
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

// Breakdown reports the individual checks behind a buy score.
type Breakdown struct {
	QualityScore     int `json:"quality_score"`
	QualityThreshold int `json:"quality_threshold"`
	ValueScore       int `json:"value_score"`
	ValueThreshold   int `json:"value_threshold"`

	ProfitMarginOK bool `json:"profit_margin_ok"`
	DebtEquityOK   bool `json:"debt_equity_ok"`
	ROEOK          bool `json:"roe_ok"`
	BetaOK         bool `json:"beta_ok"`
	InUptrend      bool `json:"in_uptrend"`
	NearHigh       bool `json:"near_high"`
	Undervalued    bool `json:"undervalued"`
	PEOK           bool `json:"pe_ok"`
	PBOK           bool `json:"pb_ok"`
	PSOK           bool `json:"ps_ok"`
	Momentum       bool `json:"momentum"`
}

// Advice is the rule-engine verdict for a single instrument.
type Advice struct {
	Symbol         string     `json:"symbol"`
	Recommendation string     `json:"recommendation"`
	Breakdown      *Breakdown `json:"breakdown,omitempty"`
	Price          *float64   `json:"price"`
	TargetPrice    *float64   `json:"target_price"`
}

// AdviceQuery carries optional caller-supplied fundamentals and position
// context for Advice. Nil fields are left to the server's defaults.
type AdviceQuery struct {
	TargetPrice    *float64
	PERatio        *float64
	PBRatio        *float64
	PSRatio        *float64
	DebtEquity     *float64
	ProfitMargin   *float64
	ROE            *float64
	Beta           *float64
	PositionValue  *float64
	PortfolioValue *float64
}

func (q AdviceQuery) values() url.Values {
	v := url.Values{}
	set := func(key string, p *float64) {
		if p != nil {
			v.Set(key, strconv.FormatFloat(*p, 'f', -1, 64))
		}
	}
	set("target_price", q.TargetPrice)
	set("pe_ratio", q.PERatio)
	set("pb_ratio", q.PBRatio)
	set("ps_ratio", q.PSRatio)
	set("debt_equity", q.DebtEquity)
	set("profit_margin", q.ProfitMargin)
	set("roe", q.ROE)
	set("beta", q.Beta)
	set("position_value", q.PositionValue)
	set("portfolio_value", q.PortfolioValue)
	return v
}

// Position is one valued portfolio row.
type Position struct {
	Symbol    string   `json:"symbol"`
	Type      string   `json:"type"`
	Quantity  float64  `json:"quantity"`
	Price     *float64 `json:"price"`
	Value     float64  `json:"value"`
	GainLoss  float64  `json:"gain_loss"`
	ReturnPct float64  `json:"return_pct"`
	Weight    float64  `json:"weight"`
}

// PortfolioAdvice is the valued portfolio plus a verdict per equity holding.
type PortfolioAdvice struct {
	TotalValue float64    `json:"total_value"`
	Positions  []Position `json:"positions"`
	Decisions  []Advice   `json:"decisions"`
}

// BacktestRequest configures a simulation run. Zero fields fall back to
// the server's configured defaults; Delay is a pointer because zero bars
// of delay is a meaningful override.
type BacktestRequest struct {
	Symbol        string  `json:"symbol"`
	StartCapital  float64 `json:"start_capital,omitempty"`
	Cost          float64 `json:"cost,omitempty"`
	Delay         *int    `json:"delay,omitempty"`
	StopLossPct   float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct float64 `json:"take_profit_pct,omitempty"`
	HistoryDays   int     `json:"history_days,omitempty"`
}

// Trade is one closed round trip from a simulation.
type Trade struct {
	Side       string    `json:"side"`
	EntryDate  time.Time `json:"entry_date"`
	ExitDate   time.Time `json:"exit_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Reason     string    `json:"reason"`
	Gross      float64   `json:"gross"`
	Costs      float64   `json:"costs"`
	Net        float64   `json:"net"`
}

// BacktestResult is the outcome of one simulation run.
type BacktestResult struct {
	Symbol       string  `json:"symbol"`
	StartCapital float64 `json:"start_capital"`
	FinalCapital float64 `json:"final_capital"`
	ReturnPct    float64 `json:"return_pct"`
	TradeCount   int     `json:"trade_count"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	Trades       []Trade `json:"trades"`
}

// Ranges bounds the optimizer's parameter grid.
type Ranges struct {
	DelayMin      int     `json:"delay_min"`
	DelayMax      int     `json:"delay_max"`
	StopLossMin   float64 `json:"stop_loss_min"`
	StopLossMax   float64 `json:"stop_loss_max"`
	TakeProfitMin float64 `json:"take_profit_min"`
	TakeProfitMax float64 `json:"take_profit_max"`
}

// OptimizeRequest configures a grid search. A zero Ranges uses the
// server's default grid; an empty Metric means "return".
type OptimizeRequest struct {
	Symbol      string `json:"symbol"`
	Metric      string `json:"metric,omitempty"`
	Ranges      Ranges `json:"ranges"`
	HistoryDays int    `json:"history_days,omitempty"`
}

// OptimizeResult is the best cell of the searched grid.
type OptimizeResult struct {
	Delay         int     `json:"delay"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	Metric        string  `json:"metric"`
	Value         float64 `json:"value"`
	Combinations  int     `json:"combinations"`
}

// BacktestRun is one persisted backtest record.
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

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stockpilot: server returned %d: %s", e.StatusCode, e.Message)
}

// ---------------------------------------------------------------------------
// Endpoints
// ---------------------------------------------------------------------------

// Signal classifies the latest bar of symbol.
func (c *Client) Signal(ctx context.Context, symbol string) (*Signal, error) {
	var out Signal
	if err := c.get(ctx, "/api/signal/"+url.PathEscape(symbol), nil, &out); err != nil {
		return nil, fmt.Errorf("signal %s: %w", symbol, err)
	}
	return &out, nil
}

// Advice evaluates symbol with the rule engine. Pass a zero AdviceQuery
// for a plain screening run.
func (c *Client) Advice(ctx context.Context, symbol string, q AdviceQuery) (*Advice, error) {
	var out Advice
	if err := c.get(ctx, "/api/advice/"+url.PathEscape(symbol), q.values(), &out); err != nil {
		return nil, fmt.Errorf("advice %s: %w", symbol, err)
	}
	return &out, nil
}

// PortfolioAdvice values the server's configured portfolio and evaluates
// every equity holding.
func (c *Client) PortfolioAdvice(ctx context.Context) (*PortfolioAdvice, error) {
	var out PortfolioAdvice
	if err := c.get(ctx, "/api/portfolio/advice", nil, &out); err != nil {
		return nil, fmt.Errorf("portfolio advice: %w", err)
	}
	return &out, nil
}

// Backtest runs one simulation for req.Symbol.
func (c *Client) Backtest(ctx context.Context, req BacktestRequest) (*BacktestResult, error) {
	var out BacktestResult
	if err := c.post(ctx, "/api/backtest", req, &out); err != nil {
		return nil, fmt.Errorf("backtest %s: %w", req.Symbol, err)
	}
	return &out, nil
}

// Optimize grid-searches simulation parameters for req.Symbol.
func (c *Client) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeResult, error) {
	var out OptimizeResult
	if err := c.post(ctx, "/api/optimize", req, &out); err != nil {
		return nil, fmt.Errorf("optimize %s: %w", req.Symbol, err)
	}
	return &out, nil
}

// ListBacktests returns persisted runs, newest first. An empty symbol
// lists runs for all symbols; limit <= 0 uses the server default.
func (c *Client) ListBacktests(ctx context.Context, symbol string, limit int) ([]BacktestRun, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Runs []BacktestRun `json:"runs"`
	}
	if err := c.get(ctx, "/api/backtests", q, &out); err != nil {
		return nil, fmt.Errorf("list backtests: %w", err)
	}
	return out.Runs, nil
}

// ---------------------------------------------------------------------------
// Transport helpers
// ---------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var wire struct {
		Error string `json:"error"`
	}
	msg := string(bytes.TrimSpace(body))
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != "" {
		msg = wire.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
