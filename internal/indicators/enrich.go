// Package indicators computes the technical indicators the classifier
// and advice engine consume: RSI(14), MACD(12,26,9), a 20-day SMA, and
// the 7-day/3-month volume ratio. Values inside an indicator's warmup
// window are NaN, the shared "unknown" sentinel.
package indicators

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"

	"stockpilot/internal/domain"
)

const (
	rsiPeriod        = 14
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
	smaPeriod        = 20

	volumeShortWindow = 7
	volumeLongWindow  = 63 // ~3 months of trading days

	ma50Period  = 50
	ma200Period = 200
	yearBars    = 252
)

// macdWarmup is the number of leading MACD values that are not yet
// stable: the slow EMA plus the signal EMA.
const macdWarmup = macdSlowPeriod + macdSignalPeriod - 2

// ErrInsufficientHistory is returned when a snapshot is requested from a
// history too short to detect indicator crossings.
var ErrInsufficientHistory = errors.New("insufficient price history")

// Enrich annotates bars with technical indicators. The input is not
// modified; the result has the same length and order. Indicators whose
// window has not filled yet are NaN.
func Enrich(bars []domain.Bar) []domain.IndicatorBar {
	n := len(bars)
	out := make([]domain.IndicatorBar, n)
	nan := math.NaN()
	for i, b := range bars {
		out[i] = domain.IndicatorBar{
			Bar:         b,
			RSI:         nan,
			MACD:        nan,
			MACDSignal:  nan,
			SMA20:       nan,
			VolumeRatio: nan,
		}
	}
	if n == 0 {
		return out
	}

	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = float64(b.Volume)
	}

	if n > rsiPeriod {
		rsi := talib.Rsi(closes, rsiPeriod)
		for i := rsiPeriod; i < n; i++ {
			out[i].RSI = rsi[i]
		}
	}
	if n > macdWarmup {
		macd, macdSig, _ := talib.Macd(closes, macdFastPeriod, macdSlowPeriod, macdSignalPeriod)
		for i := macdWarmup; i < n; i++ {
			out[i].MACD = macd[i]
			out[i].MACDSignal = macdSig[i]
		}
	}
	if n >= smaPeriod {
		sma := talib.Sma(closes, smaPeriod)
		for i := smaPeriod - 1; i < n; i++ {
			out[i].SMA20 = sma[i]
		}
	}

	// Volume ratio: rolling 7-bar mean over rolling 63-bar mean.
	if n >= volumeLongWindow {
		short := rollingMean(volumes, volumeShortWindow)
		long := rollingMean(volumes, volumeLongWindow)
		for i := volumeLongWindow - 1; i < n; i++ {
			if long[i] > 0 {
				out[i].VolumeRatio = short[i] / long[i]
			}
		}
	}

	return out
}

// LatestSnapshot builds the technical side of a Snapshot from the last
// two bars of a daily history: current and previous indicator values for
// crossing detection, the longer moving averages, the 52-week high, and
// the day change. Fundamentals stay unknown; callers merge those in
// separately. At least two bars are required.
func LatestSnapshot(bars []domain.Bar) (domain.Snapshot, error) {
	if len(bars) < 2 {
		return domain.Snapshot{}, ErrInsufficientHistory
	}

	enriched := Enrich(bars)
	cur := enriched[len(enriched)-1]
	prev := enriched[len(enriched)-2]

	s := domain.NewSnapshot(cur.Symbol)
	s.Price = cur.Close
	s.PrevPrice = prev.Close
	s.RSI = cur.RSI
	s.RSIPrev = prev.RSI
	s.MACD = cur.MACD
	s.MACDSignal = cur.MACDSignal
	s.MACDPrev = prev.MACD
	s.MACDSignalPrev = prev.MACDSignal
	s.MA20 = cur.SMA20
	s.VolumeRatio = cur.VolumeRatio

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	s.MA50 = tailMean(closes, ma50Period)
	s.MA200 = tailMean(closes, ma200Period)

	// 52-week high over up to a year of bars.
	start := len(bars) - yearBars
	if start < 0 {
		start = 0
	}
	high := math.Inf(-1)
	for _, b := range bars[start:] {
		if b.High > high {
			high = b.High
		}
	}
	if !math.IsInf(high, -1) {
		s.High52w = high
	}

	if prev.Close > 0 {
		s.DayChangePct = (cur.Close/prev.Close - 1) * 100
	}

	return s, nil
}

// rollingMean returns the trailing mean over window elements; positions
// before the window fills are NaN.
func rollingMean(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	nan := math.NaN()
	var sum float64
	for i, v := range vals {
		sum += v
		if i >= window {
			sum -= vals[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = nan
		}
	}
	return out
}

// tailMean averages the last period values, or NaN when the history is
// shorter than period.
func tailMean(vals []float64, period int) float64 {
	if len(vals) < period {
		return math.NaN()
	}
	var sum float64
	for _, v := range vals[len(vals)-period:] {
		sum += v
	}
	return sum / float64(period)
}
