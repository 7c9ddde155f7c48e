// Package matching pairs contractor-claimed line items with inspector-observed ones.
//
// The predicate is deliberately permissive and order dependent: the first observed
// entry that satisfies it wins and no ranking is attempted.
package matching

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Claimed is a contractor line item. Key is the worker name or equipment descriptor.
type Claimed struct {
	Key            string          `json:"key"`
	Classification string          `json:"classification"`
	Hours          decimal.Decimal `json:"hours"`
	Rate           decimal.Decimal `json:"rate"`
}

// Observed is an inspector line item already reduced to a single hours value.
type Observed struct {
	Key            string          `json:"key"`
	Classification string          `json:"classification"`
	Hours          decimal.Decimal `json:"hours"`
}

type Kind string

const (
	KindPaired    Kind = "paired"
	KindNotFound  Kind = "not_found"
	KindNotBilled Kind = "not_billed"
)

// Pairing is one output of Match. Either side may be nil, never both.
type Pairing struct {
	Claimed  *Claimed
	Observed *Observed
}

func (p Pairing) Kind() Kind {
	switch {
	case p.Claimed != nil && p.Observed != nil:
		return KindPaired
	case p.Claimed != nil:
		return KindNotFound
	default:
		return KindNotBilled
	}
}

// Normalize uppercases and trims a name.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// firstToken is the first whitespace-delimited word with surrounding punctuation removed,
// so "SMITH, JOHN" yields "SMITH" and "J. SMITH" yields "J".
func firstToken(s string) string {
	for _, f := range strings.Fields(s) {
		if t := strings.Trim(f, ".,;:"); t != "" {
			return t
		}
	}
	return ""
}

// Matches applies the tolerant name predicate: exact, containment either way,
// or the first token of either contained in the other.
func Matches(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb || strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	if t := firstToken(na); t != "" && strings.Contains(nb, t) {
		return true
	}
	if t := firstToken(nb); t != "" && strings.Contains(na, t) {
		return true
	}
	return false
}

// Match pairs each claimed entry with at most one observed entry. An observed entry is
// consumed by its first pairing. Output keeps claimed order, followed by the unconsumed
// observed entries in their original order.
func Match(claimed []Claimed, observed []Observed) []Pairing {
	used := make([]bool, len(observed))
	out := make([]Pairing, 0, len(claimed)+len(observed))

	for i := range claimed {
		c := &claimed[i]
		p := Pairing{Claimed: c}
		for j := range observed {
			if used[j] || !Matches(c.Key, observed[j].Key) {
				continue
			}
			used[j] = true
			p.Observed = &observed[j]
			break
		}
		out = append(out, p)
	}

	for j := range observed {
		if !used[j] {
			out = append(out, Pairing{Observed: &observed[j]})
		}
	}
	return out
}
