// Package backtest replays a technical trading strategy against a daily
// price history and measures what it would have earned. It also provides
// a brute-force grid optimizer over the strategy parameters.
package backtest

import (
	"errors"
	"fmt"
	"time"

	"stockpilot/internal/domain"
	"stockpilot/internal/signal"
)

// ErrNoData is returned when a simulation is asked to run over an empty
// price history.
var ErrNoData = errors.New("no price data for period")

// Side is the direction of a simulated position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Exit reasons recorded on closed trades.
const (
	ReasonStopLossLong    = "Stop Loss (Long)"
	ReasonTakeProfitLong  = "Take Profit (Long)"
	ReasonSellSignal      = "Sell signal (close Long)"
	ReasonStopLossShort   = "Stop Loss (Short)"
	ReasonTakeProfitShort = "Take Profit (Short)"
	ReasonBuySignal       = "Buy signal (close Short)"
	ReasonEndOfPeriod     = "End of period"
)

// Params configures a single simulation run.
type Params struct {
	StartCapital  float64           `json:"start_capital"`
	Cost          float64           `json:"cost"` // flat cost per leg, charged at open and at close
	Delay         int               `json:"delay"` // bars between signal and execution
	StopLossPct   float64           `json:"stop_loss_pct"`
	TakeProfitPct float64           `json:"take_profit_pct"`
	Thresholds    signal.Thresholds `json:"thresholds"`
}

// DefaultParams returns the standard simulation parameters.
func DefaultParams() Params {
	return Params{
		StartCapital:  10000,
		Cost:          5,
		Delay:         1,
		StopLossPct:   0.05,
		TakeProfitPct: 0.10,
		Thresholds:    signal.DefaultThresholds(),
	}
}

// Trade is one completed round-trip. Gross is the directional price
// delta, Costs the transaction costs of both legs, Net the capital
// effect of the trade (Gross − Costs).
type Trade struct {
	Side       Side      `json:"side"`
	EntryDate  time.Time `json:"entry_date"`
	ExitDate   time.Time `json:"exit_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Reason     string    `json:"reason"`
	Gross      float64   `json:"gross"`
	Costs      float64   `json:"costs"`
	Net        float64   `json:"net"`
}

// Result summarizes one simulation run.
type Result struct {
	Symbol       string  `json:"symbol"`
	StartCapital float64 `json:"start_capital"`
	FinalCapital float64 `json:"final_capital"`
	ReturnPct    float64 `json:"return_pct"`
	TradeCount   int     `json:"trade_count"`
	WinRate      float64 `json:"win_rate"` // percentage of trades with Net > 0
	AvgWin       float64 `json:"avg_win"`  // 0 when there are no winners
	AvgLoss      float64 `json:"avg_loss"` // 0 when there are no losers
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"` // worst peak-to-trough of the trade equity curve
	Trades       []Trade `json:"trades"`
}

// position is the simulator's single open slot.
type position struct {
	side       Side
	entryPrice float64
	entryDate  time.Time
}

// Simulate replays the classifier's signals over bars and returns the
// resulting trade log and performance summary. The input slice is never
// mutated. An empty history returns ErrNoData.
//
// Signals are precomputed per bar from that bar's own current/previous
// indicator pair; the signal applied on bar i is the one generated
// p.Delay bars earlier. A still-open position at the last bar is force
// closed at that bar's close.
func Simulate(bars []domain.IndicatorBar, p Params) (*Result, error) {
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	if p.Delay < 0 {
		return nil, fmt.Errorf("signal delay must be >= 0, got %d", p.Delay)
	}
	if err := p.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signal thresholds: %w", err)
	}

	verdicts := make([]signal.Verdict, len(bars))
	for i := range bars {
		verdicts[i] = signal.Classify(barSnapshot(bars, i), p.Thresholds)
	}

	capital := p.StartCapital
	var pos *position
	var trades []Trade

	closeTrade := func(bar domain.IndicatorBar, exitPrice float64, reason string) {
		gross := exitPrice - pos.entryPrice
		if pos.side == SideShort {
			gross = pos.entryPrice - exitPrice
		}
		t := Trade{
			Side:       pos.side,
			EntryDate:  pos.entryDate,
			ExitDate:   bar.Timestamp,
			EntryPrice: pos.entryPrice,
			ExitPrice:  exitPrice,
			Reason:     reason,
			Gross:      gross,
			Costs:      2 * p.Cost,
			Net:        gross - 2*p.Cost,
		}
		trades = append(trades, t)
		// The opening leg's cost was already deducted from capital.
		capital += gross - p.Cost
		pos = nil
	}

	start := p.Delay
	if start < 1 {
		start = 1
	}
	for i := start; i < len(bars); i++ {
		bar := bars[i]
		effective := verdicts[i-p.Delay]

		if pos != nil {
			switch pos.side {
			case SideLong:
				stop := pos.entryPrice * (1 - p.StopLossPct)
				target := pos.entryPrice * (1 + p.TakeProfitPct)
				switch {
				case bar.Low <= stop:
					closeTrade(bar, stop, ReasonStopLossLong)
				case bar.High >= target:
					closeTrade(bar, target, ReasonTakeProfitLong)
				case effective.IsSell():
					closeTrade(bar, bar.Close, ReasonSellSignal)
				}
			case SideShort:
				stop := pos.entryPrice * (1 + p.StopLossPct)
				target := pos.entryPrice * (1 - p.TakeProfitPct)
				switch {
				case bar.High >= stop:
					closeTrade(bar, stop, ReasonStopLossShort)
				case bar.Low <= target:
					closeTrade(bar, target, ReasonTakeProfitShort)
				case effective.IsBuy():
					closeTrade(bar, bar.Close, ReasonBuySignal)
				}
			}
			continue
		}

		// Flat: look for an entry.
		if effective.IsBuy() {
			pos = &position{side: SideLong, entryPrice: bar.Close, entryDate: bar.Timestamp}
			capital -= p.Cost
		} else if effective.IsSell() {
			pos = &position{side: SideShort, entryPrice: bar.Close, entryDate: bar.Timestamp}
			capital -= p.Cost
		}
	}

	// Force-close whatever is still open so the run fully realizes its
	// capital.
	if pos != nil {
		last := bars[len(bars)-1]
		closeTrade(last, last.Close, ReasonEndOfPeriod)
	}

	res := &Result{
		Symbol:       bars[0].Symbol,
		StartCapital: p.StartCapital,
		FinalCapital: capital,
		TradeCount:   len(trades),
		Trades:       trades,
	}
	if p.StartCapital != 0 {
		res.ReturnPct = (capital - p.StartCapital) / p.StartCapital * 100
	}
	fillStats(res)
	return res, nil
}

// fillStats computes the summary statistics from the closed-trade log.
func fillStats(res *Result) {
	if len(res.Trades) == 0 {
		return
	}

	var wins, losses int
	var winSum, lossSum float64
	equity := res.StartCapital
	peak := equity
	for _, t := range res.Trades {
		if t.Net > 0 {
			wins++
			winSum += t.Net
		} else if t.Net < 0 {
			losses++
			lossSum += t.Net
		}
		equity += t.Net
		if equity > peak {
			peak = equity
		} else if dd := peak - equity; dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
		}
	}

	res.WinRate = float64(wins) / float64(len(res.Trades)) * 100
	if wins > 0 {
		res.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		res.AvgLoss = lossSum / float64(losses)
	}
	if lossSum != 0 {
		res.ProfitFactor = winSum / -lossSum
	}
}

// barSnapshot builds the classifier input for bar i from the bar's own
// indicators and the previous bar's. The first bar has no predecessor,
// so its previous-side fields stay unknown and no crossing can fire.
func barSnapshot(bars []domain.IndicatorBar, i int) domain.Snapshot {
	cur := bars[i]
	s := domain.NewSnapshot(cur.Symbol)
	s.Price = cur.Close
	s.RSI = cur.RSI
	s.MACD = cur.MACD
	s.MACDSignal = cur.MACDSignal
	s.MA20 = cur.SMA20
	s.VolumeRatio = cur.VolumeRatio
	if i > 0 {
		prev := bars[i-1]
		s.PrevPrice = prev.Close
		s.RSIPrev = prev.RSI
		s.MACDPrev = prev.MACD
		s.MACDSignalPrev = prev.MACDSignal
	}
	return s
}
