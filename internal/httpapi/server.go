package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"stockpilot/internal/advice"
	"stockpilot/internal/backtest"
	"stockpilot/internal/config"
	"stockpilot/internal/domain"
	"stockpilot/internal/indicators"
	"stockpilot/internal/marketdata"
	"stockpilot/internal/portfolio"
	"stockpilot/internal/signal"
	"stockpilot/internal/store"
)

// Server serves the stockpilot HTTP API.
type Server struct {
	provider  marketdata.Provider
	backtests store.BacktestStore
	advices   store.AdviceStore

	profile    domain.Profile
	thresholds signal.Thresholds
	defaults   backtest.Params

	historyDays   int
	warmupDays    int
	portfolioPath string

	log *slog.Logger
}

// NewServer creates a Server wired to the given market-data provider and
// stores. backtests and advices may be nil; history endpoints then
// return empty results and runs are simply not persisted.
func NewServer(provider marketdata.Provider, backtests store.BacktestStore, advices store.AdviceStore, cfg *config.Config) *Server {
	defaults := backtest.Params{
		StartCapital:  cfg.Strategy.Backtest.StartCapital,
		Cost:          cfg.Strategy.Backtest.Cost,
		Delay:         cfg.Strategy.Backtest.Delay,
		StopLossPct:   cfg.Strategy.Backtest.StopLossPct,
		TakeProfitPct: cfg.Strategy.Backtest.TakeProfitPct,
		Thresholds: signal.Thresholds{
			RSIOversold:    cfg.Strategy.RSIOversold,
			RSIOverbought:  cfg.Strategy.RSIOverbought,
			VolumeRatioMin: cfg.Strategy.VolumeRatioMin,
		},
	}

	return &Server{
		provider:      provider,
		backtests:     backtests,
		advices:       advices,
		profile:       cfg.Profile,
		thresholds:    defaults.Thresholds,
		defaults:      defaults,
		historyDays:   cfg.Strategy.Backtest.HistoryDays,
		warmupDays:    cfg.Strategy.Backtest.WarmupDays,
		portfolioPath: cfg.Storage.PortfolioPath,
		log:           slog.Default().With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/signal/{symbol}", s.handleSignal)
	mux.HandleFunc("GET /api/advice/{symbol}", s.handleAdvice)
	mux.HandleFunc("GET /api/portfolio/advice", s.handlePortfolioAdvice)
	mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	mux.HandleFunc("POST /api/optimize", s.handleOptimize)
	mux.HandleFunc("GET /api/backtests", s.handleListBacktests)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// snapshot fetches history for symbol and builds the latest technical
// snapshot from it.
func (s *Server) snapshot(r *http.Request, symbol string) (domain.Snapshot, error) {
	bars, err := marketdata.History(r.Context(), s.provider, symbol, s.historyDays, s.warmupDays)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return indicators.LatestSnapshot(bars)
}

// ---------------------------------------------------------------------------
// Signal and advice
// ---------------------------------------------------------------------------

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))

	snap, err := s.snapshot(r, symbol)
	if err != nil {
		s.signalError(w, symbol, err)
		return
	}

	v := signal.Classify(snap, s.thresholds)
	writeJSON(w, SignalResponse{
		Symbol:      symbol,
		Grade:       string(v.Grade),
		Reasons:     append([]string{}, v.Reasons...),
		Signal:      v.String(),
		Price:       opt(snap.Price),
		RSI:         opt(snap.RSI),
		MACD:        opt(snap.MACD),
		MA20:        opt(snap.MA20),
		VolumeRatio: opt(snap.VolumeRatio),
	})
}

func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))

	snap, err := s.snapshot(r, symbol)
	if err != nil {
		s.signalError(w, symbol, err)
		return
	}
	applyFundamentalParams(&snap, r)

	positionValue := queryFloat(r, "position_value", 0)
	portfolioValue := queryFloat(r, "portfolio_value", advice.ScreenerPortfolioValue)

	dec := advice.Evaluate(snap, s.profile, positionValue, portfolioValue)
	s.saveAdvice(r, dec)

	writeJSON(w, AdviceResponse{
		Decision:    dec,
		Price:       opt(snap.Price),
		TargetPrice: opt(snap.TargetPrice),
	})
}

func (s *Server) handlePortfolioAdvice(w http.ResponseWriter, r *http.Request) {
	if s.portfolioPath == "" {
		writeError(w, http.StatusServiceUnavailable, "no portfolio file configured")
		return
	}

	positions, err := portfolio.Load(s.portfolioPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("loading portfolio: %v", err))
		return
	}

	prices := make(map[string]float64, len(positions))
	snaps := make(map[string]domain.Snapshot, len(positions))
	for _, p := range positions {
		if p.IsCash() {
			continue
		}
		snap, err := s.snapshot(r, p.Symbol)
		if err != nil {
			s.log.Warn("skipping position", "symbol", p.Symbol, "err", err)
			continue
		}
		prices[p.Symbol] = snap.Price
		snaps[p.Symbol] = snap
	}

	summary := portfolio.Value(positions, prices)
	decisions := portfolio.Advise(summary, snaps, s.profile)
	for _, dec := range decisions {
		s.saveAdvice(r, dec)
	}

	resp := PortfolioAdviceResponse{
		TotalValue: summary.TotalValue,
		Positions:  make([]PositionJSON, 0, len(summary.Positions)),
		Decisions:  decisions,
	}
	for _, v := range summary.Positions {
		resp.Positions = append(resp.Positions, toPositionJSON(v))
	}
	if resp.Decisions == nil {
		resp.Decisions = []advice.Decision{}
	}
	writeJSON(w, resp)
}

// ---------------------------------------------------------------------------
// Backtesting
// ---------------------------------------------------------------------------

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}
	symbol := strings.ToUpper(req.Symbol)

	params := s.backtestParams(req)
	bars, err := s.history(r, symbol, req.HistoryDays)
	if err != nil {
		s.signalError(w, symbol, err)
		return
	}

	res, err := backtest.Simulate(indicators.Enrich(bars), params)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, backtest.ErrNoData) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	if s.backtests != nil {
		run := &store.BacktestRun{
			Symbol:        symbol,
			StartCapital:  params.StartCapital,
			Cost:          params.Cost,
			Delay:         params.Delay,
			StopLossPct:   params.StopLossPct,
			TakeProfitPct: params.TakeProfitPct,
			FinalCapital:  res.FinalCapital,
			ReturnPct:     res.ReturnPct,
			TradeCount:    res.TradeCount,
			WinRate:       res.WinRate,
		}
		if err := s.backtests.SaveBacktest(r.Context(), run); err != nil {
			s.log.Error("saving backtest run", "symbol", symbol, "err", err)
		}
	}

	writeJSON(w, res)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}
	symbol := strings.ToUpper(req.Symbol)

	metric := req.Metric
	if metric == "" {
		metric = backtest.MetricReturn
	}
	ranges := req.Ranges
	if ranges == (backtest.Ranges{}) {
		ranges = backtest.DefaultRanges()
	}

	bars, err := s.history(r, symbol, req.HistoryDays)
	if err != nil {
		s.signalError(w, symbol, err)
		return
	}

	best, err := backtest.Optimize(r.Context(), indicators.Enrich(bars), s.defaults, ranges, metric)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, backtest.ErrUnsupportedMetric):
			status = http.StatusBadRequest
		case errors.Is(err, backtest.ErrNoValidResult):
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, best)
}

func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	if s.backtests == nil {
		writeJSON(w, BacktestListResponse{Runs: []store.BacktestRun{}})
		return
	}

	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := s.backtests.ListBacktests(r.Context(), symbol, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("listing backtests: %v", err))
		return
	}
	if runs == nil {
		runs = []store.BacktestRun{}
	}
	writeJSON(w, BacktestListResponse{Runs: runs})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// history fetches daily bars for symbol with the warmup buffer in front.
func (s *Server) history(r *http.Request, symbol string, days int) ([]domain.Bar, error) {
	if days <= 0 {
		days = s.historyDays
	}
	return marketdata.History(r.Context(), s.provider, symbol, days, s.warmupDays)
}

// backtestParams merges the request over the configured defaults.
func (s *Server) backtestParams(req BacktestRequest) backtest.Params {
	p := s.defaults
	if req.StartCapital > 0 {
		p.StartCapital = req.StartCapital
	}
	if req.Cost > 0 {
		p.Cost = req.Cost
	}
	if req.Delay != nil {
		p.Delay = *req.Delay
	}
	if req.StopLossPct > 0 {
		p.StopLossPct = req.StopLossPct
	}
	if req.TakeProfitPct > 0 {
		p.TakeProfitPct = req.TakeProfitPct
	}
	return p
}

// signalError maps data-retrieval failures to HTTP statuses.
func (s *Server) signalError(w http.ResponseWriter, symbol string, err error) {
	if errors.Is(err, indicators.ErrInsufficientHistory) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("insufficient history for %s", symbol))
		return
	}
	s.log.Error("fetching market data", "symbol", symbol, "err", err)
	writeError(w, http.StatusBadGateway, fmt.Sprintf("fetching market data for %s: %v", symbol, err))
}

// saveAdvice persists an advice decision when a store is configured.
func (s *Server) saveAdvice(r *http.Request, dec advice.Decision) {
	if s.advices == nil {
		return
	}
	entry := &store.AdviceEntry{
		Symbol:         dec.Symbol,
		Recommendation: string(dec.Recommendation),
	}
	if dec.Breakdown != nil {
		entry.QualityScore = dec.Breakdown.QualityScore
		entry.ValueScore = dec.Breakdown.ValueScore
	}
	if err := s.advices.SaveAdvice(r.Context(), entry); err != nil {
		s.log.Error("saving advice entry", "symbol", dec.Symbol, "err", err)
	}
}

// applyFundamentalParams overlays fundamentals supplied as query
// parameters onto the snapshot. Market data cannot provide these, so the
// caller may.
func applyFundamentalParams(snap *domain.Snapshot, r *http.Request) {
	set := func(dst *float64, name string) {
		if v := r.URL.Query().Get(name); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	set(&snap.TargetPrice, "target_price")
	set(&snap.PERatio, "pe_ratio")
	set(&snap.PBRatio, "pb_ratio")
	set(&snap.PSRatio, "ps_ratio")
	set(&snap.DebtEquity, "debt_equity")
	set(&snap.ProfitMargin, "profit_margin")
	set(&snap.ROE, "roe")
	set(&snap.Beta, "beta")
}

func queryFloat(r *http.Request, name string, def float64) float64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
