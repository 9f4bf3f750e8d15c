// Package domain defines the core data types shared across stockpilot:
// OHLCV bars, indicator-annotated bars, point-in-time snapshots, and the
// advice profile (rule configuration).
package domain

import (
	"math"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single daily OHLCV bar for one instrument.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// IndicatorBar is a Bar annotated with precomputed technical indicators.
// Indicator fields are NaN inside the warmup window, before enough history
// exists to compute them.
type IndicatorBar struct {
	Bar
	RSI         float64 // RSI(14)
	MACD        float64 // MACD(12,26) line
	MACDSignal  float64 // MACD signal(9) line
	SMA20       float64 // 20-day simple moving average
	VolumeRatio float64 // 7-bar mean volume / 63-bar mean volume
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Snapshot is a point-in-time set of price, technical, and fundamental
// values for one instrument. Any numeric field may be NaN, meaning the
// value is unknown; consumers must treat NaN per their documented
// substitution rule and never fail on it.
type Snapshot struct {
	Symbol string

	// Price and technicals.
	Price          float64
	PrevPrice      float64
	RSI            float64
	RSIPrev        float64
	MACD           float64
	MACDSignal     float64
	MACDPrev       float64
	MACDSignalPrev float64
	MA20           float64
	MA50           float64
	MA200          float64
	High52w        float64
	VolumeRatio    float64
	DayChangePct   float64

	// Fundamentals.
	TargetPrice  float64 // analyst mean target
	PERatio      float64
	PBRatio      float64
	PSRatio      float64
	DebtEquity   float64
	ProfitMargin float64
	ROE          float64
	Beta         float64

	Sector string
	Region string
}

// NewSnapshot returns a Snapshot for symbol with every numeric field set
// to NaN (unknown).
func NewSnapshot(symbol string) Snapshot {
	nan := math.NaN()
	return Snapshot{
		Symbol:         symbol,
		Price:          nan,
		PrevPrice:      nan,
		RSI:            nan,
		RSIPrev:        nan,
		MACD:           nan,
		MACDSignal:     nan,
		MACDPrev:       nan,
		MACDSignalPrev: nan,
		MA20:           nan,
		MA50:           nan,
		MA200:          nan,
		High52w:        nan,
		VolumeRatio:    nan,
		DayChangePct:   nan,
		TargetPrice:    nan,
		PERatio:        nan,
		PBRatio:        nan,
		PSRatio:        nan,
		DebtEquity:     nan,
		ProfitMargin:   nan,
		ROE:            nan,
		Beta:           nan,
	}
}

// Known reports whether v holds an actual value rather than the NaN
// "unknown" sentinel.
func Known(v float64) bool {
	return !math.IsNaN(v)
}

// Upside returns the fractional distance from the current price to the
// analyst target (target/price − 1), or NaN when either side is unknown
// or non-positive.
func (s Snapshot) Upside() float64 {
	if !Known(s.TargetPrice) || !Known(s.Price) || s.TargetPrice <= 0 || s.Price <= 0 {
		return math.NaN()
	}
	return s.TargetPrice/s.Price - 1
}

// ---------------------------------------------------------------------------
// Profile (rule configuration)
// ---------------------------------------------------------------------------

// Profile groups the advice engine's rule thresholds. It is supplied by
// the caller (config file or API request) and read-only to the engine.
type Profile struct {
	General   GeneralRules   `yaml:"general" json:"general"`
	Technical TechnicalRules `yaml:"technical" json:"technical"`
	Quality   QualityRules   `yaml:"quality" json:"quality"`
	Valuation ValuationRules `yaml:"valuation" json:"valuation"`
}

// GeneralRules holds the sell-side thresholds.
type GeneralRules struct {
	// MaxPositionWeight is the maximum fraction of the portfolio a single
	// position may occupy before a rebalance sell is advised (e.g. 0.15).
	MaxPositionWeight float64 `yaml:"max_position_weight" json:"max_position_weight"`
	// SellAboveTargetRatio triggers an overvaluation sell when
	// price/target exceeds it (e.g. 1.10 for 10% above target).
	SellAboveTargetRatio float64 `yaml:"sell_above_target_ratio" json:"sell_above_target_ratio"`
	// SellPEAbove is the P/E ceiling counted as a red flag.
	SellPEAbove float64 `yaml:"sell_pe_above" json:"sell_pe_above"`
	// SellDebtEquityAbove is the debt/equity ceiling counted as a red flag.
	SellDebtEquityAbove float64 `yaml:"sell_debt_equity_above" json:"sell_debt_equity_above"`
}

// TechnicalRules holds the trend and momentum thresholds.
type TechnicalRules struct {
	// MinVolumeRatio is the 7d/3m volume ratio floor for the momentum flag.
	MinVolumeRatio float64 `yaml:"min_volume_ratio" json:"min_volume_ratio"`
	// TrendCheck enables the two technical quality checks and raises the
	// quality threshold from 3 to 5.
	TrendCheck bool `yaml:"trend_check" json:"trend_check"`
	// MaxDistanceFromHigh is the maximum fractional distance from the
	// 52-week high (e.g. 0.15).
	MaxDistanceFromHigh float64 `yaml:"max_distance_from_high" json:"max_distance_from_high"`
}

// QualityRules holds the company-quality thresholds.
type QualityRules struct {
	MinROE  float64 `yaml:"min_roe" json:"min_roe"`
	MaxBeta float64 `yaml:"max_beta" json:"max_beta"`
}

// ValuationRules holds the buy-side valuation thresholds.
type ValuationRules struct {
	MinUpside       float64 `yaml:"min_upside" json:"min_upside"`
	MaxPE           float64 `yaml:"max_pe" json:"max_pe"`
	MaxPB           float64 `yaml:"max_pb" json:"max_pb"`
	MaxPS           float64 `yaml:"max_ps" json:"max_ps"`
	MaxDebtEquity   float64 `yaml:"max_debt_equity" json:"max_debt_equity"`
	MinProfitMargin float64 `yaml:"min_profit_margin" json:"min_profit_margin"`
}

// DefaultProfile returns the profile defaults used when no configuration
// is supplied.
func DefaultProfile() Profile {
	return Profile{
		General: GeneralRules{
			MaxPositionWeight:    0.15,
			SellAboveTargetRatio: 1.10,
			SellPEAbove:          100,
			SellDebtEquityAbove:  4.0,
		},
		Technical: TechnicalRules{
			MinVolumeRatio:      1.2,
			TrendCheck:          true,
			MaxDistanceFromHigh: 0.15,
		},
		Quality: QualityRules{
			MinROE:  0.15,
			MaxBeta: 1.2,
		},
		Valuation: ValuationRules{
			MinUpside:       0.25,
			MaxPE:           25,
			MaxPB:           2.5,
			MaxPS:           4.0,
			MaxDebtEquity:   1.5,
			MinProfitMargin: 0.10,
		},
	}
}
