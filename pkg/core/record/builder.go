package record

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/elerk1505/companies-house-data/pkg/core/concepts"
	"github.com/elerk1505/companies-house-data/pkg/core/ixbrl"
	"github.com/elerk1505/companies-house-data/pkg/core/normalize"
	"github.com/elerk1505/companies-house-data/pkg/core/resolve"
)

// Builder assembles FinancialRecords from filing documents. RunCode is a
// free-form provenance label (a date or month code); SourceURL identifies the
// archive the documents came from.
type Builder struct {
	RunCode   string
	SourceURL string
}

// Build extracts one record from an iXBRL document. A parse failure becomes
// the record's error column, never an error return; one bad filing must not
// abort a batch.
func (b *Builder) Build(identity string, content []byte) FinancialRecord {
	rec := FinancialRecord{
		RunCode:   b.RunCode,
		SourceURL: sourceIdentity(b.SourceURL, identity),
		FileType:  "ixbrl-htm",
	}

	doc, err := ixbrl.Parse(bytes.NewReader(content))
	if err != nil {
		msg := fmt.Sprintf("parse: %v", err)
		rec.Error = &msg
		return rec
	}

	rec.Taxonomy = taxonomyOf(doc)
	b.extractIdentity(&rec, doc)

	// First pass with no hints establishes the document's own reference
	// dates; the second pass aligns every field to them so comparative-year
	// facts lose to current-year facts consistently.
	hints := referenceHints(doc)

	var (
		bsDate      time.Time
		periodStart time.Time
		periodEnd   time.Time
	)
	for _, field := range concepts.Fields() {
		res := resolve.Field(doc, field, hints)
		rec.SetField(field, res.Value)
		if res.BalanceSheetDate.After(bsDate) {
			bsDate = res.BalanceSheetDate
		}
		if res.PeriodEnd.After(periodEnd) {
			periodEnd = res.PeriodEnd
		}
		if !res.PeriodStart.IsZero() && (periodStart.IsZero() || res.PeriodStart.Before(periodStart)) {
			periodStart = res.PeriodStart
		}
	}

	rec.BalanceSheetDate = ISODate(bsDate)
	rec.PeriodStart = ISODate(periodStart)
	rec.PeriodEnd = ISODate(periodEnd)
	if rec.BalanceSheetDate != nil {
		rec.Date = rec.BalanceSheetDate
	} else {
		rec.Date = rec.PeriodEnd
	}

	return rec
}

// referenceHints runs a hint-free resolution over all fields and keeps the
// most recent dates seen; those become the document's reference dates.
func referenceHints(doc *ixbrl.Document) resolve.Hints {
	var h resolve.Hints
	for _, field := range concepts.Fields() {
		res := resolve.Field(doc, field, resolve.Hints{})
		if res.BalanceSheetDate.After(h.BalanceSheetDate) {
			h.BalanceSheetDate = res.BalanceSheetDate
		}
		if res.PeriodEnd.After(h.PeriodEnd) {
			h.PeriodEnd = res.PeriodEnd
		}
	}
	return h
}

func (b *Builder) extractIdentity(rec *FinancialRecord, doc *ixbrl.Document) {
	if v, ok := doc.FirstValue(concepts.CompanyNumberTags...); ok {
		rec.EntityKey = normalize.EntityKey(v)
		rec.CompanyID = rec.EntityKey
	}
	if v, ok := doc.FirstValue(concepts.LegalNameTags...); ok {
		rec.LegalName = StrPtr(v)
	}
	if v, ok := doc.FirstValue(concepts.CompanyTypeTags...); ok {
		rec.CompanyType = StrPtr(v)
	}
	if v, ok := doc.FirstValue(concepts.DormantTags...); ok {
		d := isTruthy(v)
		rec.Dormant = &d
	}
	if v, ok := doc.FirstValue(concepts.SICCodeTags...); ok {
		if n, ok := normalize.ParseAmount(v); ok {
			rec.SICCode = &n
		}
	}
	if v, ok := doc.FirstValue(concepts.IncorporationDateTags...); ok {
		if t, ok := normalize.ParseDate(v); ok {
			rec.IncorporationDate = ISODate(t)
		}
	}
	if v, ok := doc.FirstValue(concepts.AverageEmployeesTags...); ok {
		if n, ok := normalize.ParseAmount(v); ok {
			rec.AvgEmployees = &n
		}
	}
}

// taxonomyOf guesses the reporting taxonomy from fact-name prefixes. Best
// effort only: prefixes are filer-chosen bindings, so this stays nil whenever
// nothing recognizable appears. Identity facts often use generic uk-gaap/ch
// prefixes regardless of the filing's taxonomy, so a specific frs/ifrs prefix
// anywhere in the document outranks a uk-gaap one.
func taxonomyOf(doc *ixbrl.Document) *string {
	var ukGaap bool
	for _, f := range doc.Facts {
		prefix := ""
		if i := strings.Index(f.Name, ":"); i > 0 {
			prefix = strings.ToLower(f.Name[:i])
		}
		switch {
		case strings.HasPrefix(prefix, "frs102"), strings.HasPrefix(prefix, "frs-102"):
			return StrPtr("FRS102")
		case strings.HasPrefix(prefix, "frs105"), strings.HasPrefix(prefix, "frs-105"):
			return StrPtr("FRS105")
		case strings.HasPrefix(prefix, "ifrs"):
			return StrPtr("IFRS")
		case prefix == "uk-gaap" || prefix == "ukgaap":
			ukGaap = true
		}
	}
	if ukGaap {
		return StrPtr("UK-GAAP")
	}
	return nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// sourceIdentity joins the archive URL and the inner document path the same
// way nested archives are identified: outer::inner.
func sourceIdentity(sourceURL, identity string) string {
	if sourceURL == "" {
		return identity
	}
	if identity == "" {
		return sourceURL
	}
	return sourceURL + "::" + identity
}
