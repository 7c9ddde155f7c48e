// Package variance turns matched pairings into comparison rows with hour and cost variance.
package variance

import (
	"sort"

	"github.com/mmdatafocus/inspection_backend/matching"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusMatch     Status = "match"
	StatusOver      Status = "over"
	StatusUnder     Status = "under"
	StatusNotFound  Status = "not_found"
	StatusNotBilled Status = "not_billed"
)

// Flaggable reports whether a row with this status can be raised as a dispute.
func (s Status) Flaggable() bool {
	return s == StatusOver || s == StatusNotFound
}

var DefaultTolerance = decimal.RequireFromString("0.05")

// Row is one line of a comparison run. It is recomputed on every run and never stored.
type Row struct {
	Key            string             `json:"key"`
	ObservedKey    string             `json:"observed_key,omitempty"`
	ItemType       models.DisputeType `json:"item_type"`
	Classification string             `json:"classification"`
	ClaimedHours   decimal.Decimal    `json:"claimed_hours"`
	ObservedHours  decimal.Decimal    `json:"observed_hours"`
	Variance       decimal.Decimal    `json:"variance"`
	Rate           decimal.Decimal    `json:"rate"`
	VarianceCost   decimal.Decimal    `json:"variance_cost"`
	Status         Status             `json:"status"`
}

// RateLookup supplies a fallback rate by item type and classification.
type RateLookup func(itemType models.DisputeType, classification string) (decimal.Decimal, bool)

type Options struct {
	// Tolerance falls back to DefaultTolerance when not set. A set zero means exact match.
	Tolerance decimal.NullDecimal
	Rates     RateLookup
}

func (o Options) tolerance() decimal.Decimal {
	if !o.Tolerance.Valid {
		return DefaultTolerance
	}
	return o.Tolerance.Decimal.Abs()
}

// Compute builds one row per pairing.
//
// variance = claimed - observed. Paired rows are match within tolerance, over when
// claimed exceeds observed and under otherwise. Only positive variance carries cost,
// and a match carries none.
func Compute(itemType models.DisputeType, pairings []matching.Pairing, opts Options) []Row {
	tol := opts.tolerance()
	rows := make([]Row, 0, len(pairings))

	for _, p := range pairings {
		row := Row{ItemType: itemType}
		if p.Claimed != nil {
			row.Key = p.Claimed.Key
			row.Classification = p.Claimed.Classification
			row.ClaimedHours = p.Claimed.Hours
			row.Rate = p.Claimed.Rate
		}
		if p.Observed != nil {
			if p.Claimed == nil {
				row.Key = p.Observed.Key
				row.Classification = p.Observed.Classification
			} else {
				row.ObservedKey = p.Observed.Key
			}
			row.ObservedHours = p.Observed.Hours
		}
		if row.Rate.IsZero() && opts.Rates != nil {
			if r, ok := opts.Rates(itemType, row.Classification); ok {
				row.Rate = r
			}
		}

		row.Variance = row.ClaimedHours.Sub(row.ObservedHours)

		switch p.Kind() {
		case matching.KindNotFound:
			row.Status = StatusNotFound
		case matching.KindNotBilled:
			row.Status = StatusNotBilled
		default:
			switch {
			case row.Variance.Abs().LessThanOrEqual(tol):
				row.Status = StatusMatch
			case row.Variance.IsPositive():
				row.Status = StatusOver
			default:
				row.Status = StatusUnder
			}
		}

		row.VarianceCost = decimal.Zero
		if row.Status != StatusMatch && row.Variance.IsPositive() {
			row.VarianceCost = row.Variance.Mul(row.Rate)
		}
		rows = append(rows, row)
	}
	return rows
}

// SortBySeverity orders rows by descending absolute variance. Ties keep input order.
func SortBySeverity(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Variance.Abs().GreaterThan(rows[j].Variance.Abs())
	})
}

type Summary struct {
	ClaimedHours  decimal.Decimal `json:"claimed_hours"`
	ObservedHours decimal.Decimal `json:"observed_hours"`
	VarianceCost  decimal.Decimal `json:"variance_cost"`
	Counts        map[Status]int  `json:"counts"`
}

func Summarize(rows []Row) Summary {
	s := Summary{
		ClaimedHours:  decimal.Zero,
		ObservedHours: decimal.Zero,
		VarianceCost:  decimal.Zero,
		Counts:        map[Status]int{},
	}
	for _, r := range rows {
		s.ClaimedHours = s.ClaimedHours.Add(r.ClaimedHours)
		s.ObservedHours = s.ObservedHours.Add(r.ObservedHours)
		s.VarianceCost = s.VarianceCost.Add(r.VarianceCost)
		s.Counts[r.Status]++
	}
	return s
}
