package resolve

import (
	"testing"
	"time"

	"github.com/elerk1505/companies-house-data/pkg/core/concepts"
	"github.com/elerk1505/companies-house-data/pkg/core/ixbrl"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func instantFact(name, value string, at time.Time) ixbrl.Fact {
	return ixbrl.Fact{Name: name, Value: value, Period: concepts.Instant, Instant: at}
}

func durationFact(name, value string, end time.Time) ixbrl.Fact {
	return ixbrl.Fact{Name: name, Value: value, Period: concepts.Duration, End: end}
}

func TestFieldPicksClosestToHint(t *testing.T) {
	doc := ixbrl.NewDocument([]ixbrl.Fact{
		// comparative year
		instantFact("frs102:CurrentAssets", "900", date(2023, 6, 30)),
		// current year
		instantFact("frs102:CurrentAssets", "1,200", date(2024, 6, 30)),
	})
	res := Field(doc, "current_assets", Hints{BalanceSheetDate: date(2024, 6, 30)})
	if res.Value == nil || *res.Value != 1200 {
		t.Fatalf("expected current-year 1200, got %v", res.Value)
	}
	if !res.BalanceSheetDate.Equal(date(2024, 6, 30)) {
		t.Errorf("balance sheet date = %v", res.BalanceSheetDate)
	}
}

func TestFieldPrefersMostRecentWithoutHint(t *testing.T) {
	doc := ixbrl.NewDocument([]ixbrl.Fact{
		instantFact("frs102:CurrentAssets", "900", date(2023, 6, 30)),
		instantFact("frs102:CurrentAssets", "1200", date(2024, 6, 30)),
		instantFact("uk-gaap:CurrentAssets", "5", time.Time{}), // undated, loses
	})
	res := Field(doc, "current_assets", Hints{})
	if res.Value == nil || *res.Value != 1200 {
		t.Fatalf("expected most recent 1200, got %v", res.Value)
	}
}

func TestFieldPeriodDiscipline(t *testing.T) {
	// Only a duration-typed fact exists for a balance-sheet field: the result
	// must be nothing, never a wrongly-typed value.
	doc := ixbrl.NewDocument([]ixbrl.Fact{
		durationFact("frs102:CurrentAssets", "1200", date(2024, 6, 30)),
	})
	res := Field(doc, "current_assets", Hints{})
	if res.Value != nil {
		t.Fatalf("duration fact selected for instant field: %v", *res.Value)
	}

	// And the reverse for a P&L field.
	doc = ixbrl.NewDocument([]ixbrl.Fact{
		instantFact("ifrs-full:Revenue", "500", date(2024, 6, 30)),
	})
	res = Field(doc, "turnover_gross_operating_revenue", Hints{})
	if res.Value != nil {
		t.Fatalf("instant fact selected for duration field: %v", *res.Value)
	}
}

func TestFieldSynonymOrderBreaksTies(t *testing.T) {
	at := date(2024, 6, 30)
	doc := ixbrl.NewDocument([]ixbrl.Fact{
		// Same date; TradeAndOtherReceivables is later in the synonym list
		// than Debtors and must lose despite coming first in the document.
		instantFact("uk-gaap:TradeAndOtherReceivables", "111", at),
		instantFact("frs102:Debtors", "222", at),
	})
	res := Field(doc, "debtors", Hints{BalanceSheetDate: at})
	if res.Value == nil || *res.Value != 222 {
		t.Fatalf("synonym order tie-break failed, got %v", res.Value)
	}
}

func TestFieldMatchesAnyPrefix(t *testing.T) {
	at := date(2024, 6, 30)
	// Filers bind taxonomies to arbitrary prefixes; the local name decides.
	doc := ixbrl.NewDocument([]ixbrl.Fact{
		instantFact("e:CurrentAssets", "333", at),
	})
	res := Field(doc, "current_assets", Hints{})
	if res.Value == nil || *res.Value != 333 {
		t.Fatalf("prefix-agnostic match failed, got %v", res.Value)
	}
}

func TestFieldScalesWinningValue(t *testing.T) {
	d := -3
	doc := ixbrl.NewDocument([]ixbrl.Fact{
		{Name: "frs102:OperatingProfitLoss", Value: "(5)", Decimals: &d,
			Period: concepts.Duration, End: date(2024, 6, 30)},
	})
	res := Field(doc, "operating_profit_loss", Hints{})
	if res.Value == nil || *res.Value != -5000 {
		t.Fatalf("expected scaled -5000, got %v", res.Value)
	}
	if !res.PeriodEnd.Equal(date(2024, 6, 30)) {
		t.Errorf("period end = %v", res.PeriodEnd)
	}
}

func TestFieldNoMatchIsNone(t *testing.T) {
	doc := ixbrl.NewDocument(nil)
	res := Field(doc, "debtors", Hints{})
	if res.Value != nil {
		t.Fatal("empty document must resolve to nothing")
	}
	res = Field(doc, "not_a_field", Hints{})
	if res.Value != nil {
		t.Fatal("unknown field must resolve to nothing")
	}
}
