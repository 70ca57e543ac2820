// Package ixbrl parses inline-XBRL documents: human-readable HTML with
// machine-readable facts tagged as ix:nonFraction / ix:nonNumeric elements.
// Matching is by local element name so any namespace prefix works; filers are
// not consistent about prefixes across taxonomies and years.
package ixbrl

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/elerk1505/companies-house-data/pkg/core/concepts"
	"github.com/elerk1505/companies-house-data/pkg/core/normalize"
)

// Fact is one tagged value with its resolved period context.
type Fact struct {
	Name     string // taxonomy QName as written, e.g. "frs102:CurrentAssets"
	Value    string // raw text content, sign attribute applied
	Decimals *int
	Unit     string

	Period  concepts.PeriodType
	Instant time.Time // set for instant facts
	Start   time.Time // set for duration facts when present
	End     time.Time // set for duration facts
}

// Document is the flat fact view of one filing.
type Document struct {
	Facts []Fact

	byName map[string][]int
}

// period is a decoded xbrli:context.
type period struct {
	instant    time.Time
	hasInstant bool
	start, end time.Time
}

// rawFact holds a fact before its context/unit references are resolved;
// contexts and units may be declared anywhere in the document.
type rawFact struct {
	fact       Fact
	contextRef string
	unitRef    string
}

// Parse decodes an iXBRL document from r. It tolerates malformed markup the
// same way browsers do; an error is returned only when the reader itself
// fails or no markup could be consumed at all.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("ixbrl: parse document: %w", err)
	}

	contexts := make(map[string]period)
	units := make(map[string]string)
	var raw []rawFact

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		switch localName(goquery.NodeName(s)) {
		case "context":
			if id, ok := s.Attr("id"); ok {
				contexts[id] = parseContext(s)
			}
		case "unit":
			if id, ok := s.Attr("id"); ok {
				units[id] = strings.TrimSpace(firstLocal(s, "measure").Text())
			}
		case "nonfraction", "nonnumeric":
			name, ok := s.Attr("name")
			if !ok || strings.TrimSpace(name) == "" {
				return
			}
			rf := rawFact{fact: Fact{
				Name:  strings.TrimSpace(name),
				Value: factValue(s),
			}}
			if d, ok := s.Attr("decimals"); ok {
				if n, err := strconv.Atoi(strings.TrimSpace(d)); err == nil {
					rf.fact.Decimals = &n
				}
			}
			rf.contextRef, _ = s.Attr("contextref")
			rf.unitRef, _ = s.Attr("unitref")
			raw = append(raw, rf)
		}
	})

	out := &Document{
		Facts:  make([]Fact, 0, len(raw)),
		byName: make(map[string][]int),
	}
	for _, rf := range raw {
		f := rf.fact
		f.Unit = units[rf.unitRef]
		f.Period = concepts.Instant // pragmatic default when context is missing
		if p, found := contexts[rf.contextRef]; found {
			if p.hasInstant {
				f.Instant = p.instant
			} else {
				f.Period = concepts.Duration
				f.Start = p.start
				f.End = p.end
			}
		}
		out.byName[nameKey(f.Name)] = append(out.byName[nameKey(f.Name)], len(out.Facts))
		out.Facts = append(out.Facts, f)
	}

	return out, nil
}

// NewDocument builds a Document from an already-flat fact list.
func NewDocument(facts []Fact) *Document {
	out := &Document{Facts: facts, byName: make(map[string][]int)}
	for i, f := range facts {
		out.byName[nameKey(f.Name)] = append(out.byName[nameKey(f.Name)], i)
	}
	return out
}

// ByName returns all facts for a QName in document order. Matching ignores
// the namespace prefix: filers bind the same taxonomy to arbitrary prefixes,
// so "frs102:CurrentAssets" also finds facts written as "e:CurrentAssets".
func (d *Document) ByName(qname string) []Fact {
	idx := d.byName[nameKey(qname)]
	if len(idx) == 0 {
		return nil
	}
	out := make([]Fact, len(idx))
	for i, j := range idx {
		out[i] = d.Facts[j]
	}
	return out
}

// FirstValue returns the first non-empty value among the given QNames, in
// candidate order. Used for identity facts (company number, legal name).
func (d *Document) FirstValue(qnames ...string) (string, bool) {
	for _, qn := range qnames {
		for _, f := range d.ByName(qn) {
			if v := strings.TrimSpace(f.Value); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func parseContext(s *goquery.Selection) period {
	var p period
	if inst := firstLocal(s, "instant"); inst.Length() > 0 {
		// An instant context with an unparseable date is still instant.
		p.instant, _ = normalize.ParseDate(inst.Text())
		p.hasInstant = true
		return p
	}
	if start := firstLocal(s, "startdate"); start.Length() > 0 {
		p.start, _ = normalize.ParseDate(start.Text())
	}
	if end := firstLocal(s, "enddate"); end.Length() > 0 {
		p.end, _ = normalize.ParseDate(end.Text())
	}
	return p
}

// firstLocal finds the first descendant whose local name matches.
func firstLocal(s *goquery.Selection, local string) *goquery.Selection {
	return s.Find("*").FilterFunction(func(_ int, d *goquery.Selection) bool {
		return localName(goquery.NodeName(d)) == local
	}).First()
}

func localName(nodeName string) string {
	if i := strings.LastIndex(nodeName, ":"); i >= 0 {
		return nodeName[i+1:]
	}
	return nodeName
}

// LocalName strips the namespace prefix from a QName.
func LocalName(qname string) string { return localName(qname) }

// nameKey is the prefix-agnostic, case-insensitive index key for fact names.
func nameKey(qname string) string {
	return strings.ToLower(localName(strings.TrimSpace(qname)))
}

// factValue extracts the raw text of a fact and applies the sign attribute;
// filers report negated values as positive text plus sign="-".
func factValue(s *goquery.Selection) string {
	v := strings.TrimSpace(s.Text())
	if sign, ok := s.Attr("sign"); ok && strings.Contains(sign, "-") &&
		v != "" && !strings.HasPrefix(v, "-") && !strings.HasPrefix(v, "(") {
		v = "-" + v
	}
	return v
}
