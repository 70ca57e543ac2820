// Package normalize converts raw filing text into typed values.
// All functions are total: garbage input yields the zero result, never a panic
// and never a wrong number.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var nonNumeric = regexp.MustCompile(`[^0-9.\-+]`)

// ParseAmount converts strings like "£1,234", "(456)" or " 2 000.50 " to a
// float. Parenthesised values are negative. Returns (0, false) for empty or
// non-numeric residue.
func ParseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, false
	}
	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if neg {
		s = s[1 : len(s)-1]
	}
	s = nonNumeric.ReplaceAllString(s, "")
	if s == "" || s == "-" || s == "+" || s == "." {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// ScaleByDecimals applies iXBRL 'decimals' semantics: a negative decimals
// attribute means the fact is reported in thousands/millions and must be
// multiplied up. Positive or missing decimals pass through unchanged.
func ScaleByDecimals(value float64, decimals *int) float64 {
	if decimals == nil || *decimals >= 0 {
		return value
	}
	return value * math.Pow10(-*decimals)
}

// dateLayouts covers the formats seen across filings and registry exports.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2 January 2006",
	"02 January 2006",
	"January 2, 2006",
	"2006/01/02",
}

// ParseDate is a best-effort ISO/locale-tolerant date parse. Never errors;
// returns (zero, false) on failure.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EntityKey normalizes a company identifier to the join-key form used across
// all datasets: digits only, leading zeros stripped. Returns "" when nothing
// usable remains.
func EntityKey(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}

// APICompanyNumber converts a digits-only entity key into the canonical form
// the Companies House API expects: zero-padded to 8 digits. Alphanumeric
// numbers (e.g. "SC123456") are returned as-is.
func APICompanyNumber(entityKey string) string {
	s := strings.TrimSpace(entityKey)
	if s == "" {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	for len(s) < 8 {
		s = "0" + s
	}
	return s
}
