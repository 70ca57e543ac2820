package concepts

import "testing"

func TestTableLoads(t *testing.T) {
	if len(BalanceSheetFields) != 10 {
		t.Errorf("expected 10 balance sheet fields, got %d", len(BalanceSheetFields))
	}
	if len(ProfitLossFields) != 13 {
		t.Errorf("expected 13 profit/loss fields, got %d", len(ProfitLossFields))
	}
	if len(Fields()) != 23 {
		t.Errorf("expected 23 canonical fields, got %d", len(Fields()))
	}
}

func TestSynonymOrder(t *testing.T) {
	syns := Synonyms("current_assets")
	if len(syns) == 0 {
		t.Fatal("current_assets has no synonyms")
	}
	// FRS102 is the most common taxonomy in small-company filings and must be
	// first so it wins ties.
	if syns[0] != "frs102:CurrentAssets" {
		t.Errorf("first synonym = %q, want frs102:CurrentAssets", syns[0])
	}
}

func TestExpectedPeriod(t *testing.T) {
	if pt, ok := ExpectedPeriod("current_assets"); !ok || pt != Instant {
		t.Errorf("current_assets period = %v, want instant", pt)
	}
	if pt, ok := ExpectedPeriod("operating_profit_loss"); !ok || pt != Duration {
		t.Errorf("operating_profit_loss period = %v, want duration", pt)
	}
	if _, ok := ExpectedPeriod("no_such_field"); ok {
		t.Error("unknown field should not classify")
	}
}
