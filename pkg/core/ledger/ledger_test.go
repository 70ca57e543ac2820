package ledger

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/elerk1505/companies-house-data/pkg/core/record"
)

func finRow(key, bsDate string, turnover float64) record.FinancialRecord {
	rec := record.FinancialRecord{EntityKey: key, CompanyID: key, Turnover: &turnover}
	if bsDate != "" {
		rec.BalanceSheetDate = &bsDate
	}
	return rec
}

func mustMerge(t *testing.T, l *Ledger, tag string, rows []record.FinancialRecord) MergeResult {
	t.Helper()
	res, err := Merge(context.Background(), l, tag, FinancialsAsset, rows, FinancialDedupKey)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	return res
}

func readFin(t *testing.T, store AssetStore, tag string) []record.FinancialRecord {
	t.Helper()
	rows, err := ReadSnapshot[record.FinancialRecord](context.Background(), store, tag, FinancialsAsset)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	return rows
}

func TestMergeIdempotent(t *testing.T) {
	store := NewMemStore()
	l := New(store)
	tag := PartitionKey{2025, "H1"}.FinancialsTag()
	rows := []record.FinancialRecord{
		finRow("123", "2024-12-31", 100),
		finRow("456", "2024-12-31", 200),
	}

	mustMerge(t, l, tag, rows)
	first := readFin(t, store, tag)

	mustMerge(t, l, tag, rows)
	second := readFin(t, store, tag)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-merge changed content:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if len(second) != 2 {
		t.Errorf("expected 2 survivors, got %d", len(second))
	}
}

func TestMergeLastWriteWins(t *testing.T) {
	store := NewMemStore()
	l := New(store)
	tag := PartitionKey{2024, "H1"}.FinancialsTag()

	mustMerge(t, l, tag, []record.FinancialRecord{finRow("123", "2024-01-01", 100)})
	mustMerge(t, l, tag, []record.FinancialRecord{finRow("123", "2024-01-01", 150)})

	rows := readFin(t, store, tag)
	if len(rows) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(rows))
	}
	if rows[0].Turnover == nil || *rows[0].Turnover != 150 {
		t.Errorf("survivor turnover = %v, want the newer 150", rows[0].Turnover)
	}
}

func TestMergeCommutativeForDisjointKeys(t *testing.T) {
	a := []record.FinancialRecord{finRow("1", "2024-03-31", 10), finRow("2", "2024-03-31", 20)}
	b := []record.FinancialRecord{finRow("3", "2024-03-31", 30)}
	tag := PartitionKey{2024, "H1"}.FinancialsTag()

	s1 := NewMemStore()
	l1 := New(s1)
	mustMerge(t, l1, tag, a)
	mustMerge(t, l1, tag, b)

	s2 := NewMemStore()
	l2 := New(s2)
	mustMerge(t, l2, tag, b)
	mustMerge(t, l2, tag, a)

	set := func(rows []record.FinancialRecord) map[string]float64 {
		out := map[string]float64{}
		for _, r := range rows {
			out[FinancialDedupKey(r)] = *r.Turnover
		}
		return out
	}
	if !reflect.DeepEqual(set(readFin(t, s1, tag)), set(readFin(t, s2, tag))) {
		t.Error("merge order changed the surviving set for disjoint sources")
	}
}

func TestMergeDropsKeylessRows(t *testing.T) {
	store := NewMemStore()
	l := New(store)
	tag := PartitionKey{2024, "H2"}.FinancialsTag()

	mustMerge(t, l, tag, []record.FinancialRecord{
		finRow("", "2024-09-30", 1), // no entity key: cannot be joined, dropped
		finRow("99", "2024-09-30", 2),
	})
	rows := readFin(t, store, tag)
	if len(rows) != 1 || rows[0].EntityKey != "99" {
		t.Errorf("keyless row should be dropped, got %+v", rows)
	}
}

func TestMergeCorruptPriorSnapshot(t *testing.T) {
	store := NewMemStore()
	l := New(store)
	tag := PartitionKey{2024, "H2"}.FinancialsTag()

	mustMerge(t, l, tag, []record.FinancialRecord{finRow("1", "2024-09-30", 1)})
	store.Corrupt(tag, FinancialsAsset)

	res := mustMerge(t, l, tag, []record.FinancialRecord{finRow("2", "2024-09-30", 2)})
	if res.OldRows != 0 {
		t.Errorf("corrupt snapshot should be treated as empty, got %d old rows", res.OldRows)
	}
	rows := readFin(t, store, tag)
	if len(rows) != 1 || rows[0].EntityKey != "2" {
		t.Errorf("ingestion should proceed past a corrupt snapshot, got %+v", rows)
	}
}

func TestDedupKeyFallbackOrder(t *testing.T) {
	bs, pe := "2024-01-01", "2024-02-02"
	r := record.FinancialRecord{EntityKey: "7", RunCode: "2024-03", BalanceSheetDate: &bs, PeriodEnd: &pe}
	if got := FinancialDedupKey(r); got != "7|2024-01-01" {
		t.Errorf("balance sheet date should win: %q", got)
	}
	r.BalanceSheetDate = nil
	if got := FinancialDedupKey(r); got != "7|2024-02-02" {
		t.Errorf("period end is the first fallback: %q", got)
	}
	r.PeriodEnd = nil
	if got := FinancialDedupKey(r); got != "7|2024-03" {
		t.Errorf("run code is the last fallback: %q", got)
	}
}

func TestRoute(t *testing.T) {
	fallback := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	pe := "2025-07-15"
	rec := record.FinancialRecord{PeriodEnd: &pe}
	if got := Route(rec, fallback); got != (PartitionKey{2025, "H2"}) {
		t.Errorf("period-end routing = %v", got)
	}

	bs := "2023-03-01"
	rec.BalanceSheetDate = &bs
	if got := Route(rec, fallback); got != (PartitionKey{2023, "H1"}) {
		t.Errorf("balance sheet date should take precedence: %v", got)
	}

	if got := Route(record.FinancialRecord{}, fallback); got != (PartitionKey{2024, "H1"}) {
		t.Errorf("undated record must land on the fallback partition: %v", got)
	}
}

func TestPartitionTags(t *testing.T) {
	k := PartitionKey{2025, "H1"}
	if k.FinancialsTag() != "data-2025-H1-financials" {
		t.Errorf("financials tag = %q", k.FinancialsTag())
	}
	if k.MetadataTag() != "data-2025-H1-metadata" {
		t.Errorf("metadata tag = %q", k.MetadataTag())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	name := "Example Ltd"
	rows := []record.RegistryRecord{{
		EntityKey: "88092",
		LegalName: &name,
		SICCodes:  []string{"62020", "62090"},
	}}
	blob, err := EncodeSnapshot(rows)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	back, err := DecodeSnapshot[record.RegistryRecord](blob)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(back) != 1 || back[0].EntityKey != "88092" {
		t.Fatalf("round trip lost rows: %+v", back)
	}
	if back[0].LegalName == nil || *back[0].LegalName != name {
		t.Errorf("legal name = %v", back[0].LegalName)
	}
	if len(back[0].SICCodes) != 2 {
		t.Errorf("sic codes = %v", back[0].SICCodes)
	}
}
