package backtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpilot/internal/domain"
)

func TestOptimizeRejectsUnknownMetric(t *testing.T) {
	// The metric is validated before any simulation runs: even with no
	// data the error is the metric rejection, not a no-result error.
	_, err := Optimize(context.Background(), nil, DefaultParams(), DefaultRanges(), "sharpe")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedMetric))
	assert.False(t, errors.Is(err, ErrNoValidResult))
}

func TestOptimizeEmptyGrid(t *testing.T) {
	r := DefaultRanges()
	r.DelayMin = 2
	r.DelayMax = 1

	_, err := Optimize(context.Background(), buySellSeries(), DefaultParams(), r, MetricReturn)
	assert.True(t, errors.Is(err, ErrNoValidResult))
}

func TestOptimizeAllCellsFail(t *testing.T) {
	// Every simulation sees an empty history and errors out.
	_, err := Optimize(context.Background(), nil, DefaultParams(), DefaultRanges(), MetricReturn)
	assert.True(t, errors.Is(err, ErrNoValidResult))
}

func TestOptimizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Optimize(ctx, buySellSeries(), DefaultParams(), DefaultRanges(), MetricReturn)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestOptimizeTieBreaksToFirstGridCell(t *testing.T) {
	// A series that never signals scores 0% everywhere; the winner must
	// be the first cell in sweep order regardless of worker scheduling.
	var bars []domain.IndicatorBar
	for i := 0; i < 20; i++ {
		b := bar(i, 100, 100, 100, 100)
		b.RSI = 50
		bars = append(bars, b)
	}

	r := Ranges{
		DelayMin: 0, DelayMax: 2,
		StopLossMin: 0.02, StopLossMax: 0.05,
		TakeProfitMin: 0.05, TakeProfitMax: 0.10,
	}
	best, err := Optimize(context.Background(), bars, DefaultParams(), r, MetricReturn)
	require.NoError(t, err)

	assert.Equal(t, 0, best.Delay)
	assert.Equal(t, 0.02, best.StopLossPct)
	assert.Equal(t, 0.05, best.TakeProfitPct)
	assert.Equal(t, 0.0, best.Value)
	assert.Equal(t, MetricReturn, best.Metric)
	assert.Equal(t, 3*4*6, best.Combinations)
}

func TestOptimizeDeterministic(t *testing.T) {
	bars := buySellSeries()
	r := DefaultRanges()

	first, err := Optimize(context.Background(), bars, DefaultParams(), r, MetricReturn)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := Optimize(context.Background(), bars, DefaultParams(), r, MetricReturn)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestOptimizeWinnerMatchesDirectSimulation(t *testing.T) {
	bars := buySellSeries()
	best, err := Optimize(context.Background(), bars, DefaultParams(), DefaultRanges(), MetricReturn)
	require.NoError(t, err)

	p := DefaultParams()
	p.Delay = best.Delay
	p.StopLossPct = best.StopLossPct
	p.TakeProfitPct = best.TakeProfitPct
	res, err := Simulate(bars, p)
	require.NoError(t, err)

	assert.Equal(t, res.ReturnPct, best.Value)

	// No other cell strictly beats the winner.
	for _, c := range buildGrid(DefaultRanges()) {
		q := DefaultParams()
		q.Delay = c.delay
		q.StopLossPct = c.stopLossPct
		q.TakeProfitPct = c.takeProfitPct
		other, err := Simulate(bars, q)
		require.NoError(t, err)
		assert.LessOrEqual(t, other.ReturnPct, best.Value)
	}
}

func TestBuildGridStepRounding(t *testing.T) {
	cells := buildGrid(DefaultRanges())
	assert.Len(t, cells, 4*10*16)

	// Floating-point accumulation must not leak into the swept values.
	for _, c := range cells {
		assert.Equal(t, roundStep(c.stopLossPct), c.stopLossPct)
		assert.Equal(t, roundStep(c.takeProfitPct), c.takeProfitPct)
	}
	last := cells[len(cells)-1]
	assert.Equal(t, 3, last.delay)
	assert.Equal(t, 0.10, last.stopLossPct)
	assert.Equal(t, 0.20, last.takeProfitPct)
}
