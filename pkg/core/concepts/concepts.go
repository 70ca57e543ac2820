// Package concepts holds the static synonym table mapping canonical financial
// field names onto the taxonomy tag names used by filers across FRS102/105,
// UK-GAAP and IFRS. Keeping this explicit (rather than matching tags by
// reflection or heuristics) keeps the resolver pure and testable.
package concepts

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v2"
)

// PeriodType classifies a fact's reporting period.
type PeriodType string

const (
	// Instant facts are tied to a single point in time (balance sheet items).
	Instant PeriodType = "instant"
	// Duration facts span a date range (profit and loss items).
	Duration PeriodType = "duration"
)

//go:embed concepts.yaml
var conceptsYAML []byte

type conceptsFile struct {
	BalanceSheet map[string][]string `yaml:"balance_sheet"`
	ProfitLoss   map[string][]string `yaml:"profit_loss"`
}

var (
	synonyms    map[string][]string
	periodTypes map[string]PeriodType

	// BalanceSheetFields and ProfitLossFields enumerate the canonical numeric
	// fields in a stable order.
	BalanceSheetFields []string
	ProfitLossFields   []string
)

func init() {
	var f conceptsFile
	if err := yaml.Unmarshal(conceptsYAML, &f); err != nil {
		panic(fmt.Sprintf("concepts: bad embedded table: %v", err))
	}
	synonyms = make(map[string][]string, len(f.BalanceSheet)+len(f.ProfitLoss))
	periodTypes = make(map[string]PeriodType, len(synonyms))
	for name, qnames := range f.BalanceSheet {
		synonyms[name] = qnames
		periodTypes[name] = Instant
		BalanceSheetFields = append(BalanceSheetFields, name)
	}
	for name, qnames := range f.ProfitLoss {
		synonyms[name] = qnames
		periodTypes[name] = Duration
		ProfitLossFields = append(ProfitLossFields, name)
	}
	sort.Strings(BalanceSheetFields)
	sort.Strings(ProfitLossFields)
}

// Fields returns all canonical field names, balance sheet first.
func Fields() []string {
	out := make([]string, 0, len(BalanceSheetFields)+len(ProfitLossFields))
	out = append(out, BalanceSheetFields...)
	out = append(out, ProfitLossFields...)
	return out
}

// Synonyms returns the ordered taxonomy QNames for a canonical field, or nil
// for an unknown field.
func Synonyms(field string) []string {
	return synonyms[field]
}

// ExpectedPeriod returns the period type a canonical field's facts must carry.
func ExpectedPeriod(field string) (PeriodType, bool) {
	pt, ok := periodTypes[field]
	return pt, ok
}

// Identity tag candidates. These are resolved outside the numeric concept
// table because they are strings/booleans, not scaled amounts.
var (
	CompanyNumberTags = []string{
		"frs102:CompaniesHouseRegisteredNumber",
		"uk-gaap:CompaniesHouseRegisteredNumber",
		"ch:CompaniesHouseRegisteredNumber",
	}
	LegalNameTags = []string{
		"entity:EntityCurrentLegalName",
		"frs102:EntityCurrentLegalName",
		"uk-gaap:EntityCurrentLegalName",
		"ifrs-full:NameOfReportingEntityOrOtherMeansOfIdentification",
	}
	DormantTags = []string{
		"frs102:Dormant",
		"uk-gaap:Dormant",
		"ch:Dormant",
	}
	SICCodeTags = []string{
		"ch:SICCode",
		"uk-gaap:SicCode",
		"frs102:SicCode",
	}
	IncorporationDateTags = []string{
		"ch:IncorporationDate",
	}
	AverageEmployeesTags = []string{
		"frs102:AverageNumberEmployeesDuringPeriod",
		"uk-gaap:AverageNumberEmployeesDuringPeriod",
		"ifrs-full:AverageNumberOfEmployees",
	}
	CompanyTypeTags = []string{
		"ch:CompanyType",
		"uk-gaap:CompanyType",
	}
)
