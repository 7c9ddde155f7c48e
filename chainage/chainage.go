// Package chainage converts kilometre-post text ("5+250") to linear metres and back.
package chainage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BareKilometreLimit is the magnitude below which a bare number is read as kilometres.
// 100 itself is metres.
const BareKilometreLimit = 100

// ParseKP reads "<km>+<metres>" or a bare number. ok is false for empty or unparsable text.
//
//	ParseKP("5+250") == 5250
//	ParseKP("12")    == 12000
//	ParseKP("150")   == 150
func ParseKP(text string) (metres int, ok bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}

	if km, m, found := strings.Cut(s, "+"); found {
		kmVal, err := strconv.Atoi(strings.TrimSpace(km))
		if err != nil || kmVal < 0 {
			return 0, false
		}
		mVal, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
		if err != nil || mVal < 0 || math.IsInf(mVal, 0) || math.IsNaN(mVal) {
			return 0, false
		}
		return kmVal*1000 + int(math.Round(mVal)), true
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	if n < BareKilometreLimit {
		return int(math.Round(n * 1000)), true
	}
	return int(math.Round(n)), true
}

// FormatKP renders metres as "<km>+<mmm>".
func FormatKP(metres int) string {
	if metres < 0 {
		return "-" + FormatKP(-metres)
	}
	return fmt.Sprintf("%d+%03d", metres/1000, metres%1000)
}
