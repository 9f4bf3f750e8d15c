package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpilot/internal/domain"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// bar builds an IndicatorBar with unknown indicators; tests set only the
// fields a scenario needs.
func bar(day int, open, high, low, close float64) domain.IndicatorBar {
	nan := math.NaN()
	return domain.IndicatorBar{
		Bar: domain.Bar{
			Symbol:    "TEST",
			Timestamp: day0.AddDate(0, 0, day),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000,
		},
		RSI:         nan,
		MACD:        nan,
		MACDSignal:  nan,
		SMA20:       nan,
		VolumeRatio: nan,
	}
}

// buySellSeries builds a series that emits a BUY verdict on bar 1 (RSI
// bullish cross + high volume) and a SELL verdict on bar 3 (RSI bearish
// cross + high volume). With delay 1 that opens a long at bar 2's close
// and closes it at bar 4's close.
func buySellSeries() []domain.IndicatorBar {
	bars := []domain.IndicatorBar{
		bar(0, 100, 101, 99, 100),
		bar(1, 100, 101, 99, 100),
		bar(2, 100, 101, 99, 100),
		bar(3, 102, 105, 98, 103),
		bar(4, 109, 111, 108, 110),
	}
	bars[0].RSI = 28
	bars[1].RSI = 32
	bars[1].VolumeRatio = 2.0
	bars[2].RSI = 72
	bars[3].RSI = 65
	bars[3].VolumeRatio = 2.0
	bars[4].RSI = 65
	return bars
}

func TestSimulateEmptyHistory(t *testing.T) {
	_, err := Simulate(nil, DefaultParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestSimulateFlatSeriesNoTrades(t *testing.T) {
	// No indicator ever crosses anything: every bar classifies NEUTRAL,
	// nothing is ever opened, and the capital is untouched.
	var bars []domain.IndicatorBar
	for i := 0; i < 30; i++ {
		b := bar(i, 100, 100, 100, 100)
		b.RSI = 50
		b.SMA20 = 100
		b.VolumeRatio = 1.0
		bars = append(bars, b)
	}

	res, err := Simulate(bars, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 0, res.TradeCount)
	assert.Equal(t, 10000.0, res.FinalCapital)
	assert.Equal(t, 0.0, res.ReturnPct)
	assert.Empty(t, res.Trades)
}

func TestSimulateSignalRoundTripCostAccounting(t *testing.T) {
	// One long: enter at 100, exit at 110 on a sell signal, cost 5 per
	// leg. Net = 10 − 5 − 5 = 0, so capital ends where it started.
	p := DefaultParams()
	p.TakeProfitPct = 0.20 // keep the 110 high from hitting take-profit

	res, err := Simulate(buySellSeries(), p)
	require.NoError(t, err)

	require.Equal(t, 1, res.TradeCount)
	tr := res.Trades[0]
	assert.Equal(t, SideLong, tr.Side)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 110.0, tr.ExitPrice)
	assert.Equal(t, ReasonSellSignal, tr.Reason)
	assert.Equal(t, 10.0, tr.Gross)
	assert.Equal(t, 10.0, tr.Costs)
	assert.Equal(t, 0.0, tr.Net)
	assert.Equal(t, 10000.0, res.FinalCapital)
}

func TestSimulateStopLossFillsAtStopPrice(t *testing.T) {
	// Entry at 100 with a 5% stop. A later low of 94 pierces the stop;
	// the fill is at 95, not at the bar's low.
	bars := buySellSeries()
	bars[3] = bar(3, 96, 97, 94, 96)
	bars[3].RSI = 65
	bars[4] = bar(4, 96, 97, 95, 96)

	res, err := Simulate(bars, DefaultParams())
	require.NoError(t, err)

	require.Equal(t, 1, res.TradeCount)
	tr := res.Trades[0]
	assert.Equal(t, ReasonStopLossLong, tr.Reason)
	assert.Equal(t, 95.0, tr.ExitPrice)
	assert.Equal(t, -5.0, tr.Gross)
	assert.Equal(t, -15.0, tr.Net)
	assert.Equal(t, 10000.0-15.0, res.FinalCapital)
}

func TestSimulateTakeProfitFillsAtTargetPrice(t *testing.T) {
	// Entry at 100 with a 10% target; a high of 112 fills at 110 exactly.
	bars := buySellSeries()
	bars[3] = bar(3, 105, 112, 104, 108)
	bars[4] = bar(4, 108, 109, 107, 108)

	res, err := Simulate(bars, DefaultParams())
	require.NoError(t, err)

	require.Equal(t, 1, res.TradeCount)
	tr := res.Trades[0]
	assert.Equal(t, ReasonTakeProfitLong, tr.Reason)
	assert.Equal(t, 110.0, tr.ExitPrice)
	assert.Equal(t, 0.0, tr.Net) // 10 gross − 10 costs
}

func TestSimulateStopLossCheckedBeforeTakeProfit(t *testing.T) {
	// A wide bar that touches both the stop (95) and the target (110)
	// resolves as a stop: the exit checks run in a fixed order.
	bars := buySellSeries()
	bars[3] = bar(3, 100, 112, 94, 100)
	bars[4] = bar(4, 100, 101, 99, 100)

	res, err := Simulate(bars, DefaultParams())
	require.NoError(t, err)

	require.Equal(t, 1, res.TradeCount)
	assert.Equal(t, ReasonStopLossLong, res.Trades[0].Reason)
}

func TestSimulateShortRoundTrip(t *testing.T) {
	// SELL while flat opens a short at the bar close; a later BUY signal
	// covers it. Short profit is entry − exit.
	bars := []domain.IndicatorBar{
		bar(0, 100, 101, 99, 100),
		bar(1, 100, 101, 99, 100),
		bar(2, 100, 101, 99, 100), // short opens here at 100
		bar(3, 95, 96, 93, 94),
		bar(4, 92, 93, 89, 90), // short covers here at 90
	}
	// Bar 1: RSI bearish cross + high volume → SELL.
	bars[0].RSI = 72
	bars[1].RSI = 65
	bars[1].VolumeRatio = 2.0
	// Bar 3: RSI bullish cross + high volume → BUY (covers at bar 4).
	bars[2].RSI = 28
	bars[3].RSI = 34
	bars[3].VolumeRatio = 2.0

	p := DefaultParams()
	p.StopLossPct = 0.10   // entry 100 → stop at 110, never touched
	p.TakeProfitPct = 0.15 // target 85, never touched

	res, err := Simulate(bars, p)
	require.NoError(t, err)

	require.Equal(t, 1, res.TradeCount)
	tr := res.Trades[0]
	assert.Equal(t, SideShort, tr.Side)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 90.0, tr.ExitPrice)
	assert.Equal(t, ReasonBuySignal, tr.Reason)
	assert.Equal(t, 10.0, tr.Gross)
	assert.Equal(t, 0.0, tr.Net)
}

func TestSimulateShortStopLossOnRally(t *testing.T) {
	bars := []domain.IndicatorBar{
		bar(0, 100, 101, 99, 100),
		bar(1, 100, 101, 99, 100),
		bar(2, 100, 101, 99, 100), // short opens at 100
		bar(3, 104, 106, 103, 105),
	}
	bars[0].RSI = 72
	bars[1].RSI = 65
	bars[1].VolumeRatio = 2.0

	res, err := Simulate(bars, DefaultParams())
	require.NoError(t, err)

	require.Equal(t, 1, res.TradeCount)
	tr := res.Trades[0]
	assert.Equal(t, ReasonStopLossShort, tr.Reason)
	assert.Equal(t, 105.0, tr.ExitPrice) // 100 × 1.05
	assert.Equal(t, -5.0, tr.Gross)
}

func TestSimulateOpenPositionForceClosedAtEnd(t *testing.T) {
	// A long that never sees an exit signal is closed at the final bar.
	bars := buySellSeries()
	bars[3] = bar(3, 101, 103, 100, 102)
	bars[4] = bar(4, 103, 105, 102, 104)

	res, err := Simulate(bars, DefaultParams())
	require.NoError(t, err)

	require.Equal(t, 1, res.TradeCount)
	tr := res.Trades[0]
	assert.Equal(t, ReasonEndOfPeriod, tr.Reason)
	assert.Equal(t, 104.0, tr.ExitPrice)
	assert.False(t, tr.ExitDate.IsZero(), "closed trade must carry an exit date")
}

func TestSimulateCapitalConservation(t *testing.T) {
	// Whatever happens, final − start must equal the sum of net results.
	series := [][]domain.IndicatorBar{
		buySellSeries(),
		func() []domain.IndicatorBar {
			bars := buySellSeries()
			bars[3] = bar(3, 96, 97, 90, 96) // stop-loss path
			return bars
		}(),
		func() []domain.IndicatorBar {
			bars := buySellSeries()
			bars[3] = bar(3, 101, 103, 100, 102) // end-of-period path
			bars[4] = bar(4, 103, 105, 102, 104)
			return bars
		}(),
	}
	for i, bars := range series {
		res, err := Simulate(bars, DefaultParams())
		require.NoError(t, err, "series %d", i)

		var net float64
		for _, tr := range res.Trades {
			net += tr.Net
			assert.False(t, tr.ExitDate.IsZero(), "series %d: open exit date", i)
			assert.NotZero(t, tr.ExitPrice, "series %d: open exit price", i)
		}
		assert.InDelta(t, res.StartCapital+net, res.FinalCapital, 1e-9, "series %d", i)
	}
}

func TestSimulateDelayShiftsExecution(t *testing.T) {
	// With delay 0 the BUY verdict of bar 1 executes on bar 1 itself;
	// with delay 2 it executes on bar 3.
	bars := buySellSeries()
	bars[3].RSI = math.NaN() // drop the sell verdict, isolate the entry
	bars[3].VolumeRatio = math.NaN()

	p := DefaultParams()
	p.Delay = 0
	res, err := Simulate(bars, p)
	require.NoError(t, err)
	require.Equal(t, 1, res.TradeCount)
	assert.Equal(t, bars[1].Timestamp, res.Trades[0].EntryDate)

	p.Delay = 2
	res, err = Simulate(bars, p)
	require.NoError(t, err)
	require.Equal(t, 1, res.TradeCount)
	assert.Equal(t, bars[3].Timestamp, res.Trades[0].EntryDate)
}

func TestSimulateDoesNotMutateInput(t *testing.T) {
	bars := buySellSeries()
	before := make([]domain.IndicatorBar, len(bars))
	copy(before, bars)

	_, err := Simulate(bars, DefaultParams())
	require.NoError(t, err)

	for i := range bars {
		assert.Equal(t, before[i].Bar, bars[i].Bar, "bar %d mutated", i)
	}
}

func TestSimulateStats(t *testing.T) {
	res := &Result{StartCapital: 10000, Trades: []Trade{
		{Net: 30}, {Net: -10}, {Net: 20}, {Net: -20}, {Net: 0},
	}}
	res.TradeCount = len(res.Trades)
	fillStats(res)

	assert.InDelta(t, 40.0, res.WinRate, 1e-9) // 2 of 5
	assert.InDelta(t, 25.0, res.AvgWin, 1e-9)
	assert.InDelta(t, -15.0, res.AvgLoss, 1e-9)
	assert.InDelta(t, 50.0/30.0, res.ProfitFactor, 1e-9)
	assert.InDelta(t, 20.0, res.MaxDrawdown, 1e-9)
}

func TestSimulateNoLossesZeroAvgLoss(t *testing.T) {
	res := &Result{StartCapital: 10000, Trades: []Trade{{Net: 10}, {Net: 5}}}
	fillStats(res)
	assert.Equal(t, 0.0, res.AvgLoss)
	assert.Equal(t, 100.0, res.WinRate)
}
