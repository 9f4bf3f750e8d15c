package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"stockpilot/internal/domain"
)

// MetricReturn is the only optimization metric currently supported.
const MetricReturn = "return"

// ErrUnsupportedMetric is returned when the optimizer is asked for a
// metric it does not implement. The rejection happens before any
// simulation runs.
var ErrUnsupportedMetric = errors.New("unsupported optimization metric")

// ErrNoValidResult is returned when the parameter grid is empty or every
// combination failed to produce a result.
var ErrNoValidResult = errors.New("optimization produced no valid result")

// gridStep is the stop-loss / take-profit sweep resolution.
const gridStep = 0.01

// Ranges describes the inclusive parameter grid to sweep.
type Ranges struct {
	DelayMin      int     `json:"delay_min"`
	DelayMax      int     `json:"delay_max"`
	StopLossMin   float64 `json:"stop_loss_min"`
	StopLossMax   float64 `json:"stop_loss_max"`
	TakeProfitMin float64 `json:"take_profit_min"`
	TakeProfitMax float64 `json:"take_profit_max"`
}

// DefaultRanges returns the standard sweep: delay 0-3, stop-loss 1-10%,
// take-profit 5-20%.
func DefaultRanges() Ranges {
	return Ranges{
		DelayMin:      0,
		DelayMax:      3,
		StopLossMin:   0.01,
		StopLossMax:   0.10,
		TakeProfitMin: 0.05,
		TakeProfitMax: 0.20,
	}
}

// Best is the winning grid cell.
type Best struct {
	Delay         int     `json:"delay"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	Metric        string  `json:"metric"`
	Value         float64 `json:"value"`
	Combinations  int     `json:"combinations"`
}

// cell is one grid coordinate; idx preserves sweep order for the
// deterministic tie-break.
type cell struct {
	idx           int
	delay         int
	stopLossPct   float64
	takeProfitPct float64
}

// optimizeWorkers is the fan-out width of the grid sweep. Each cell is an
// independent simulation, so completion order carries no meaning: the
// winner is chosen by metric value, ties broken by grid coordinate.
const optimizeWorkers = 4

// Optimize exhaustively evaluates Simulate over the Cartesian product of
// the delay, stop-loss, and take-profit ranges and returns the
// combination maximizing the requested metric. Cells whose simulation
// fails (for example, no data) are skipped. Re-running the same grid
// always yields the same winner: only a strictly greater metric value, or
// an equal value at a lower grid index, replaces the incumbent.
func Optimize(ctx context.Context, bars []domain.IndicatorBar, base Params, r Ranges, metric string) (*Best, error) {
	if metric != MetricReturn {
		return nil, fmt.Errorf("%w: %q (supported: %q)", ErrUnsupportedMetric, metric, MetricReturn)
	}

	cells := buildGrid(r)
	if len(cells) == 0 {
		return nil, ErrNoValidResult
	}

	type outcome struct {
		idx   int
		value float64
		ok    bool
	}
	outcomes := make([]outcome, len(cells))

	work := make(chan int, len(cells))
	for i := range cells {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	workers := optimizeWorkers
	if workers > len(cells) {
		workers = len(cells)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				if ctx.Err() != nil {
					return
				}
				c := cells[i]
				p := base
				p.Delay = c.delay
				p.StopLossPct = c.stopLossPct
				p.TakeProfitPct = c.takeProfitPct

				res, err := Simulate(bars, p)
				if err != nil {
					continue
				}
				outcomes[i] = outcome{idx: i, value: res.ReturnPct, ok: true}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reduce in grid order so the first-found combination wins ties.
	best := -1
	for i, o := range outcomes {
		if !o.ok {
			continue
		}
		if best == -1 || o.value > outcomes[best].value {
			best = i
		}
	}
	if best == -1 {
		return nil, ErrNoValidResult
	}

	c := cells[best]
	return &Best{
		Delay:         c.delay,
		StopLossPct:   c.stopLossPct,
		TakeProfitPct: c.takeProfitPct,
		Metric:        metric,
		Value:         outcomes[best].value,
		Combinations:  len(cells),
	}, nil
}

// buildGrid enumerates the Cartesian product of the three ranges in
// sweep order: delay outermost, then stop-loss, then take-profit.
func buildGrid(r Ranges) []cell {
	var cells []cell
	idx := 0
	for delay := r.DelayMin; delay <= r.DelayMax; delay++ {
		for sl := r.StopLossMin; sl <= r.StopLossMax+gridStep/2; sl += gridStep {
			for tp := r.TakeProfitMin; tp <= r.TakeProfitMax+gridStep/2; tp += gridStep {
				cells = append(cells, cell{
					idx:           idx,
					delay:         delay,
					stopLossPct:   roundStep(sl),
					takeProfitPct: roundStep(tp),
				})
				idx++
			}
		}
	}
	return cells
}

// roundStep snaps a swept float to two decimals so accumulated addition
// error never leaks into reported parameters.
func roundStep(v float64) float64 {
	return math.Round(v*100) / 100
}
