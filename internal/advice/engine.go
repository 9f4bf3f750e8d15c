// Package advice implements the buy/hold/sell rule engine. Given a
// snapshot of fundamentals and technicals, a rule profile, and the
// portfolio context, it produces a recommendation with a transparent
// score breakdown. The engine is a pure function over its inputs.
package advice

import (
	"math"

	"stockpilot/internal/domain"
)

// Recommendation is the closed set of engine outcomes.
type Recommendation string

const (
	Hold             Recommendation = "HOLD"
	SellFundamentals Recommendation = "SELL (WEAK FUNDAMENTALS)"
	SellRebalance    Recommendation = "SELL (REBALANCE)"
	SellOvervalued   Recommendation = "SELL (OVERVALUED)"
	BuyStrong        Recommendation = "BUY (STRONG)"
	BuyMomentum      Recommendation = "BUY (STRONG + MOMENTUM)"
)

// ScreenerPortfolioValue is the sentinel portfolio value callers pass when
// evaluating a candidate that is not actually held. Any total above the
// sentinel threshold suppresses the sell rules.
const ScreenerPortfolioValue = 1e12

// Sell rules are suppressed above this total; the sentinel sits safely
// beyond it.
const screenerThreshold = 999_999_000

// Thresholds for the buy decision. The quality bar rises from 3 of 4 to
// 5 of 6 when the trend check adds its two technical checks; the value
// bar is always 3 of 4. The escalation is deliberate and kept literal.
const (
	qualityThresholdBase  = 3
	qualityThresholdTrend = 5
	valueThreshold        = 3
)

// Breakdown exposes every boolean check and both scores so the caller can
// show why a recommendation was (or was not) a buy. It is empty when a
// sell rule short-circuited the evaluation.
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

// Decision is the engine output: the recommendation plus its breakdown.
type Decision struct {
	Symbol         string         `json:"symbol"`
	Recommendation Recommendation `json:"recommendation"`
	// Breakdown is nil when a sell rule short-circuited.
	Breakdown *Breakdown `json:"breakdown,omitempty"`
}

// Evaluate runs the rule engine for one instrument.
//
// positionValue is the current value of the holding; portfolioValue the
// total value of the evaluated portfolio. Passing
// ScreenerPortfolioValue as the total marks a standalone screening run:
// sell rules are skipped because the instrument is not actually held.
//
// Unknown-value policy: profit margin NaN is treated as 0, debt/equity
// and P/E NaN as +Inf (failing every ceiling check); all remaining
// unknown fields simply fail the checks that need them.
func Evaluate(snap domain.Snapshot, profile domain.Profile, positionValue, portfolioValue float64) Decision {
	d := Decision{Symbol: snap.Symbol, Recommendation: Hold}

	margin := snap.ProfitMargin
	if !domain.Known(margin) {
		margin = 0
	}
	debtEquity := snap.DebtEquity
	if !domain.Known(debtEquity) {
		debtEquity = math.Inf(1)
	}
	pe := snap.PERatio
	if !domain.Known(pe) {
		pe = math.Inf(1)
	}

	price := snap.Price
	inDowntrend := price < snap.MA50 && price < snap.MA200 // false when MAs unknown

	// --- Sell rules (take precedence, skipped for screening runs) ---
	if portfolioValue <= screenerThreshold {
		redFlags := 0
		if margin < 0 {
			redFlags++
		}
		if debtEquity > profile.General.SellDebtEquityAbove {
			redFlags++
		}
		if pe > profile.General.SellPEAbove && pe > 0 {
			redFlags++
		}
		if inDowntrend {
			redFlags++
		}
		if redFlags >= 2 {
			d.Recommendation = SellFundamentals
			return d
		}

		if portfolioValue > 0 {
			weight := positionValue / portfolioValue
			if weight > profile.General.MaxPositionWeight {
				d.Recommendation = SellRebalance
				return d
			}
		}

		target := snap.TargetPrice
		if domain.Known(target) && target > 0 && domain.Known(price) && price > 0 {
			if price/target > profile.General.SellAboveTargetRatio {
				d.Recommendation = SellOvervalued
				return d
			}
		}
	}

	// --- Buy scoring ---
	b := Breakdown{
		ProfitMarginOK: margin > profile.Valuation.MinProfitMargin,
		DebtEquityOK:   debtEquity < profile.Valuation.MaxDebtEquity,
		ROEOK:          snap.ROE > profile.Quality.MinROE,
		BetaOK:         snap.Beta < profile.Quality.MaxBeta,
		PEOK:           pe < profile.Valuation.MaxPE && pe > 0,
		PBOK:           snap.PBRatio < profile.Valuation.MaxPB && snap.PBRatio > 0,
		PSOK:           snap.PSRatio < profile.Valuation.MaxPS && snap.PSRatio > 0,
		Undervalued:    snap.Upside() > profile.Valuation.MinUpside,
		Momentum: snap.VolumeRatio > profile.Technical.MinVolumeRatio &&
			snap.DayChangePct > 0,
	}

	if snap.MA50 > 0 && snap.MA200 > 0 {
		b.InUptrend = price > snap.MA50 && snap.MA50 > snap.MA200
	}
	if snap.High52w > 0 && domain.Known(price) {
		b.NearHigh = price/snap.High52w > 1-profile.Technical.MaxDistanceFromHigh
	}

	b.QualityScore = countTrue(b.ProfitMarginOK, b.DebtEquityOK, b.ROEOK, b.BetaOK)
	b.QualityThreshold = qualityThresholdBase
	if profile.Technical.TrendCheck {
		b.QualityScore += countTrue(b.InUptrend, b.NearHigh)
		b.QualityThreshold = qualityThresholdTrend
	}

	b.ValueScore = countTrue(b.Undervalued, b.PEOK, b.PBOK, b.PSOK)
	b.ValueThreshold = valueThreshold

	if b.QualityScore >= b.QualityThreshold && b.ValueScore >= b.ValueThreshold {
		if b.Momentum {
			d.Recommendation = BuyMomentum
		} else {
			d.Recommendation = BuyStrong
		}
	}

	d.Breakdown = &b
	return d
}

func countTrue(checks ...bool) int {
	n := 0
	for _, c := range checks {
		if c {
			n++
		}
	}
	return n
}

// IsSell reports whether the recommendation is one of the sell outcomes.
func (r Recommendation) IsSell() bool {
	switch r {
	case SellFundamentals, SellRebalance, SellOvervalued:
		return true
	}
	return false
}

// IsBuy reports whether the recommendation is one of the buy outcomes.
func (r Recommendation) IsBuy() bool {
	return r == BuyStrong || r == BuyMomentum
}
