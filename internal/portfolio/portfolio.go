// Package portfolio loads a portfolio file, values its positions, and
// runs the advice engine over the equity holdings.
package portfolio

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"stockpilot/internal/advice"
	"stockpilot/internal/domain"
)

// AssetType categorizes a portfolio position.
type AssetType string

const (
	AssetStock AssetType = "stock"
	AssetETF   AssetType = "etf"
	AssetCash  AssetType = "cash"
)

// Position is one row of the portfolio file. Fundamental fields are NaN
// when the file leaves them blank.
type Position struct {
	Symbol        string    `json:"symbol"`
	Type          AssetType `json:"type"`
	Quantity      float64   `json:"quantity"`
	PurchasePrice float64   `json:"purchase_price"`

	TargetPrice  float64 `json:"target_price"`
	PERatio      float64 `json:"pe_ratio"`
	PBRatio      float64 `json:"pb_ratio"`
	PSRatio      float64 `json:"ps_ratio"`
	DebtEquity   float64 `json:"debt_equity"`
	ProfitMargin float64 `json:"profit_margin"`
	ROE          float64 `json:"roe"`
	Beta         float64 `json:"beta"`

	Sector string `json:"sector"`
	Region string `json:"region"`
}

// IsCash reports whether the position is a cash holding. Cash is marked
// either by the asset type or by a CASH- symbol prefix.
func (p Position) IsCash() bool {
	return p.Type == AssetCash || strings.HasPrefix(p.Symbol, "CASH-")
}

// columns is the required CSV header, in order. Fundamental columns may
// be left empty per row.
var columns = []string{
	"symbol", "type", "quantity", "purchase_price",
	"target_price", "pe_ratio", "pb_ratio", "ps_ratio",
	"debt_equity", "profit_margin", "roe", "beta",
	"sector", "region",
}

// Load reads a portfolio CSV file. Rows with an empty symbol or an
// unparseable quantity are skipped.
func Load(path string) ([]Position, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading portfolio header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range columns[:4] {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("portfolio file missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var positions []Position
	line := 1
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		line++

		symbol := strings.ToUpper(field(row, "symbol"))
		if symbol == "" {
			continue
		}
		qty, err := strconv.ParseFloat(field(row, "quantity"), 64)
		if err != nil {
			continue
		}

		p := Position{
			Symbol:        symbol,
			Type:          parseAssetType(field(row, "type")),
			Quantity:      qty,
			PurchasePrice: parseOptional(field(row, "purchase_price")),
			TargetPrice:   parseOptional(field(row, "target_price")),
			PERatio:       parseOptional(field(row, "pe_ratio")),
			PBRatio:       parseOptional(field(row, "pb_ratio")),
			PSRatio:       parseOptional(field(row, "ps_ratio")),
			DebtEquity:    parseOptional(field(row, "debt_equity")),
			ProfitMargin:  parseOptional(field(row, "profit_margin")),
			ROE:           parseOptional(field(row, "roe")),
			Beta:          parseOptional(field(row, "beta")),
			Sector:        field(row, "sector"),
			Region:        field(row, "region"),
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func parseAssetType(s string) AssetType {
	switch strings.ToLower(s) {
	case "etf":
		return AssetETF
	case "cash":
		return AssetCash
	default:
		return AssetStock
	}
}

// parseOptional parses an optional numeric field; blank or malformed
// values become NaN (unknown).
func parseOptional(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ---------------------------------------------------------------------------
// Valuation
// ---------------------------------------------------------------------------

// Valued is a position with its current market value attached.
type Valued struct {
	Position
	Price     float64 `json:"price"`
	Value     float64 `json:"value"`
	GainLoss  float64 `json:"gain_loss"`
	ReturnPct float64 `json:"return_pct"`
	Weight    float64 `json:"weight"`
}

// Summary is a fully valued portfolio.
type Summary struct {
	TotalValue float64  `json:"total_value"`
	Positions  []Valued `json:"positions"`
}

// Value computes position values, profit and loss, and portfolio
// weights. prices maps symbol to current price; cash positions are worth
// their quantity, and positions without a price contribute zero value.
func Value(positions []Position, prices map[string]float64) Summary {
	out := Summary{Positions: make([]Valued, 0, len(positions))}

	for _, p := range positions {
		v := Valued{Position: p, Price: math.NaN()}
		switch {
		case p.IsCash():
			v.Price = 1
			v.Value = p.Quantity
		default:
			price, ok := prices[p.Symbol]
			if ok && domain.Known(price) {
				v.Price = price
				v.Value = p.Quantity * price
				if domain.Known(p.PurchasePrice) && p.PurchasePrice > 0 {
					cost := p.Quantity * p.PurchasePrice
					v.GainLoss = v.Value - cost
					v.ReturnPct = v.GainLoss / cost * 100
				}
			}
		}
		out.TotalValue += v.Value
		out.Positions = append(out.Positions, v)
	}

	if out.TotalValue > 0 {
		for i := range out.Positions {
			out.Positions[i].Weight = out.Positions[i].Value / out.TotalValue
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Advice runs
// ---------------------------------------------------------------------------

// Advise evaluates the advice engine for every non-cash position that has
// a snapshot. File-supplied fundamentals fill in snapshot fields the
// market data left unknown.
func Advise(summary Summary, snapshots map[string]domain.Snapshot, profile domain.Profile) []advice.Decision {
	var decisions []advice.Decision
	for _, v := range summary.Positions {
		if v.IsCash() {
			continue
		}
		snap, ok := snapshots[v.Symbol]
		if !ok {
			continue
		}
		mergeFundamentals(&snap, v.Position)
		decisions = append(decisions, advice.Evaluate(snap, profile, v.Value, summary.TotalValue))
	}
	return decisions
}

// Screen evaluates the advice engine for arbitrary snapshots outside any
// portfolio: the sentinel portfolio value suppresses the sell rules.
func Screen(snapshots []domain.Snapshot, profile domain.Profile) []advice.Decision {
	decisions := make([]advice.Decision, 0, len(snapshots))
	for _, snap := range snapshots {
		decisions = append(decisions, advice.Evaluate(snap, profile, 0, advice.ScreenerPortfolioValue))
	}
	return decisions
}

// mergeFundamentals copies the position's fundamentals into the snapshot
// wherever the snapshot has no value of its own.
func mergeFundamentals(snap *domain.Snapshot, p Position) {
	merge := func(dst *float64, src float64) {
		if !domain.Known(*dst) && domain.Known(src) {
			*dst = src
		}
	}
	merge(&snap.TargetPrice, p.TargetPrice)
	merge(&snap.PERatio, p.PERatio)
	merge(&snap.PBRatio, p.PBRatio)
	merge(&snap.PSRatio, p.PSRatio)
	merge(&snap.DebtEquity, p.DebtEquity)
	merge(&snap.ProfitMargin, p.ProfitMargin)
	merge(&snap.ROE, p.ROE)
	merge(&snap.Beta, p.Beta)
	if snap.Sector == "" {
		snap.Sector = p.Sector
	}
	if snap.Region == "" {
		snap.Region = p.Region
	}
}
