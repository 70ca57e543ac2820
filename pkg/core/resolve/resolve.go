// Package resolve picks the best fact per canonical field from a parsed
// filing. Filings tag the same concept under several taxonomy names and
// several reporting periods (current year plus comparatives); the resolver
// applies period-type discipline and date proximity to choose one.
package resolve

import (
	"strings"
	"time"

	"github.com/elerk1505/companies-house-data/pkg/core/concepts"
	"github.com/elerk1505/companies-house-data/pkg/core/ixbrl"
	"github.com/elerk1505/companies-house-data/pkg/core/normalize"
)

// Hints carries the document-level reference dates, when known. Instant
// fields are matched against BalanceSheetDate, duration fields against
// PeriodEnd. Zero values mean "no hint".
type Hints struct {
	BalanceSheetDate time.Time
	PeriodEnd        time.Time
}

// Resolution is the outcome for one canonical field. Value is nil when no
// candidate matched; that is expected and common, not an error.
type Resolution struct {
	Value *float64

	// Dates observed on the winning fact, for the caller to fold into its
	// document-level date hints.
	BalanceSheetDate time.Time
	PeriodStart      time.Time
	PeriodEnd        time.Time
}

type candidate struct {
	fact     ixbrl.Fact
	synIndex int // position in the synonym list, the tie-break
	docIndex int
	date     time.Time // instant date or period end, zero when undated
}

// Field resolves one canonical field against the document.
//
// Candidates are facts whose QName is in the field's synonym list and whose
// period type matches the field's classification; a duration fact is never
// accepted for a balance-sheet field even when no instant fact exists.
func Field(doc *ixbrl.Document, field string, hints Hints) Resolution {
	expected, ok := concepts.ExpectedPeriod(field)
	if !ok {
		return Resolution{}
	}

	// Fact lookup ignores namespace prefixes, so synonyms that differ only
	// by prefix (frs102:Foo vs uk-gaap:Foo) would yield the same facts
	// twice; only the first such synonym is consulted.
	seen := make(map[string]bool)

	var cands []candidate
	for si, qn := range concepts.Synonyms(field) {
		ln := strings.ToLower(ixbrl.LocalName(qn))
		if seen[ln] {
			continue
		}
		seen[ln] = true
		for di, f := range doc.ByName(qn) {
			if f.Period != expected {
				continue
			}
			c := candidate{fact: f, synIndex: si, docIndex: di}
			if expected == concepts.Instant {
				c.date = f.Instant
			} else {
				c.date = f.End
			}
			cands = append(cands, c)
		}
	}
	if len(cands) == 0 {
		return Resolution{}
	}

	hint := hints.PeriodEnd
	if expected == concepts.Instant {
		hint = hints.BalanceSheetDate
	}

	best := cands[0]
	for _, c := range cands[1:] {
		if better(c, best, hint) {
			best = c
		}
	}

	res := Resolution{}
	if expected == concepts.Instant {
		res.BalanceSheetDate = best.date
	} else {
		res.PeriodStart = best.fact.Start
		res.PeriodEnd = best.date
	}
	if v, ok := normalize.ParseAmount(best.fact.Value); ok {
		v = normalize.ScaleByDecimals(v, best.fact.Decimals)
		res.Value = &v
	}
	return res
}

// better reports whether a should be preferred over b.
//
// With a hint: smallest distance to the hint wins, undated candidates count
// as infinitely far. Without one: the most recently dated wins, undated
// candidates are older than any dated one. Ties fall back to synonym-list
// order, then document order.
func better(a, b candidate, hint time.Time) bool {
	if !hint.IsZero() {
		da, db := distance(a.date, hint), distance(b.date, hint)
		if da != db {
			return da < db
		}
	} else {
		if !a.date.Equal(b.date) {
			if a.date.IsZero() {
				return false
			}
			if b.date.IsZero() {
				return true
			}
			return a.date.After(b.date)
		}
	}
	if a.synIndex != b.synIndex {
		return a.synIndex < b.synIndex
	}
	return a.docIndex < b.docIndex
}

func distance(d, hint time.Time) time.Duration {
	if d.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	diff := d.Sub(hint)
	if diff < 0 {
		diff = -diff
	}
	return diff
}
