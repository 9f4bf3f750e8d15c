// Package signal classifies indicator crossings in a snapshot into a
// categorical technical trading signal. The classifier is a pure function:
// it holds no state and is safe to call concurrently.
package signal

import (
	"fmt"
	"strings"

	"stockpilot/internal/domain"
)

// Grade is the categorical verdict of the classifier.
type Grade string

const (
	GradeNeutral   Grade = "NEUTRAL"
	GradeWeak      Grade = "WEAK"
	GradeBuy       Grade = "BUY"
	GradeStrongBuy Grade = "STRONG BUY"
	GradeSell      Grade = "SELL"
)

// Reason labels, in evaluation order.
const (
	ReasonRSIBullish  = "RSI Bullish Cross"
	ReasonMACDBullish = "MACD Bullish Cross"
	ReasonPriceAbove  = "Price > 20d MA"
	ReasonHighVolume  = "High Volume"
	ReasonRSIBearish  = "RSI Bearish Cross"
	ReasonMACDBearish = "MACD Bearish Cross"
	ReasonPriceBelow  = "Price < 20d MA"
)

// Thresholds configures the classifier. The zero value is not usable;
// construct with DefaultThresholds and override as needed.
type Thresholds struct {
	RSIOversold    float64 `yaml:"rsi_oversold" json:"rsi_oversold"`
	RSIOverbought  float64 `yaml:"rsi_overbought" json:"rsi_overbought"`
	VolumeRatioMin float64 `yaml:"volume_ratio_min" json:"volume_ratio_min"`
}

// DefaultThresholds returns the standard classifier configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RSIOversold:    30,
		RSIOverbought:  70,
		VolumeRatioMin: 1.5,
	}
}

// Validate reports whether the thresholds are internally consistent.
func (th Thresholds) Validate() error {
	if th.RSIOversold < 0 || th.RSIOverbought > 100 {
		return fmt.Errorf("rsi thresholds out of range: oversold=%v overbought=%v", th.RSIOversold, th.RSIOverbought)
	}
	if th.RSIOversold >= th.RSIOverbought {
		return fmt.Errorf("rsi oversold (%v) must be below overbought (%v)", th.RSIOversold, th.RSIOverbought)
	}
	if th.VolumeRatioMin <= 0 {
		return fmt.Errorf("volume ratio threshold must be positive, got %v", th.VolumeRatioMin)
	}
	return nil
}

// Verdict is the classifier output: a grade plus the ordered list of
// reasons that fired.
type Verdict struct {
	Grade   Grade    `json:"grade"`
	Reasons []string `json:"reasons,omitempty"`
}

// IsBuy reports whether the verdict is an entry-side signal (BUY or
// STRONG BUY).
func (v Verdict) IsBuy() bool {
	return v.Grade == GradeBuy || v.Grade == GradeStrongBuy
}

// IsSell reports whether the verdict is an exit-side signal.
func (v Verdict) IsSell() bool {
	return v.Grade == GradeSell
}

// String renders the verdict the way the dashboard displays it, e.g.
// "BUY - MACD Bullish Cross, High Volume".
func (v Verdict) String() string {
	if len(v.Reasons) == 0 {
		return string(v.Grade)
	}
	return string(v.Grade) + " - " + strings.Join(v.Reasons, ", ")
}

// Classify evaluates the crossing rules against snap and combines the
// fired reasons into a Verdict. Each rule is skipped when any of its
// inputs is unknown (NaN); a missing field never produces an error.
//
// Tie-break policy, in order: no reasons → NEUTRAL; any bearish reason
// with at least two reasons total → SELL; three or more → STRONG BUY;
// exactly two → BUY; a single non-bearish reason → WEAK.
func Classify(snap domain.Snapshot, th Thresholds) Verdict {
	var reasons []string
	bearish := 0

	// RSI leaves the oversold zone.
	if domain.Known(snap.RSI) && domain.Known(snap.RSIPrev) {
		if snap.RSI > th.RSIOversold && snap.RSIPrev <= th.RSIOversold {
			reasons = append(reasons, ReasonRSIBullish)
		}
	}

	// MACD line crosses above its signal line.
	if macdKnown(snap) {
		if snap.MACD > snap.MACDSignal && snap.MACDPrev <= snap.MACDSignalPrev {
			reasons = append(reasons, ReasonMACDBullish)
		}
	}

	// Price breaks above the 20-day average.
	if priceKnown(snap) {
		if snap.Price > snap.MA20 && snap.PrevPrice <= snap.MA20 {
			reasons = append(reasons, ReasonPriceAbove)
		}
	}

	// Volume significantly above normal. Unknown ratio compares false.
	if snap.VolumeRatio > th.VolumeRatioMin {
		reasons = append(reasons, ReasonHighVolume)
	}

	// RSI drops out of the overbought zone.
	if domain.Known(snap.RSI) && domain.Known(snap.RSIPrev) {
		if snap.RSI < th.RSIOverbought && snap.RSIPrev >= th.RSIOverbought {
			reasons = append(reasons, ReasonRSIBearish)
			bearish++
		}
	}

	// MACD line crosses below its signal line.
	if macdKnown(snap) {
		if snap.MACD < snap.MACDSignal && snap.MACDPrev >= snap.MACDSignalPrev {
			reasons = append(reasons, ReasonMACDBearish)
			bearish++
		}
	}

	// Price breaks below the 20-day average. Note this reason does not
	// count toward the bearish tally: only the explicit bearish crosses
	// flip the verdict to SELL.
	if priceKnown(snap) {
		if snap.Price < snap.MA20 && snap.PrevPrice >= snap.MA20 {
			reasons = append(reasons, ReasonPriceBelow)
		}
	}

	switch {
	case len(reasons) == 0:
		return Verdict{Grade: GradeNeutral}
	case bearish > 0 && len(reasons) >= 2:
		return Verdict{Grade: GradeSell, Reasons: reasons}
	case len(reasons) >= 3:
		return Verdict{Grade: GradeStrongBuy, Reasons: reasons}
	case len(reasons) == 2:
		return Verdict{Grade: GradeBuy, Reasons: reasons}
	default:
		return Verdict{Grade: GradeWeak, Reasons: reasons}
	}
}

func macdKnown(s domain.Snapshot) bool {
	return domain.Known(s.MACD) && domain.Known(s.MACDSignal) &&
		domain.Known(s.MACDPrev) && domain.Known(s.MACDSignalPrev)
}

func priceKnown(s domain.Snapshot) bool {
	return domain.Known(s.Price) && domain.Known(s.PrevPrice) && domain.Known(s.MA20)
}
