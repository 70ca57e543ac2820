// Package ledger merges batches of extracted rows into partitioned snapshot
// datasets held in a remote asset store. Partitions are half-years; each owns
// one financials snapshot and one metadata snapshot, replaced wholesale on
// every merge. Merging is idempotent and last-write-wins per dedup key, so
// daily, monthly and snapshot sources may arrive in any order.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/elerk1505/companies-house-data/pkg/core/fetch"
	"github.com/elerk1505/companies-house-data/pkg/core/record"
)

// Blob names are fixed per dataset kind; the partition tag carries identity.
const (
	FinancialsAsset = "financials.parquet"
	MetadataAsset   = "metadata.parquet"
)

// AssetStore is the remote repository holding one versioned blob per
// (partition tag, name). Get returns fetch.ErrNotFound when the blob or the
// partition does not exist yet; Put replaces any blob of the same name so the
// last successful put wins.
type AssetStore interface {
	Get(ctx context.Context, tag, name string) ([]byte, error)
	Put(ctx context.Context, tag, name string, data []byte) error
}

// PartitionKey identifies one half-year partition.
type PartitionKey struct {
	Year int
	Half string // "H1" or "H2"
}

func (k PartitionKey) String() string { return fmt.Sprintf("%d-%s", k.Year, k.Half) }

// FinancialsTag returns the store tag for the partition's financials dataset.
func (k PartitionKey) FinancialsTag() string {
	return fmt.Sprintf("data-%d-%s-financials", k.Year, k.Half)
}

// MetadataTag returns the store tag for the partition's metadata dataset.
func (k PartitionKey) MetadataTag() string {
	return fmt.Sprintf("data-%d-%s-metadata", k.Year, k.Half)
}

// HalfOf returns "H1" for January–June, else "H2".
func HalfOf(t time.Time) string {
	if t.Month() <= 6 {
		return "H1"
	}
	return "H2"
}

// Route assigns a record to a partition from the best available reference
// date: balance sheet date, else period end, else the caller's fallback (for
// example the mid-point of the collection window). Undated records land
// somewhere deterministic rather than being dropped.
func Route(rec record.FinancialRecord, fallback time.Time) PartitionKey {
	ref := fallback
	if t, ok := rec.BalanceSheetTime(); ok {
		ref = t
	} else if t, ok := rec.PeriodEndTime(); ok {
		ref = t
	}
	return PartitionKey{Year: ref.Year(), Half: HalfOf(ref)}
}

// FinancialDedupKey is a financial row's merge identity: entity key plus the
// best available date, falling back from balance sheet date to period end to
// the provenance run code.
func FinancialDedupKey(rec record.FinancialRecord) string {
	if rec.EntityKey == "" {
		return ""
	}
	date := rec.RunCode
	if rec.BalanceSheetDate != nil {
		date = *rec.BalanceSheetDate
	} else if rec.PeriodEnd != nil {
		date = *rec.PeriodEnd
	}
	return rec.EntityKey + "|" + date
}

// RegistryDedupKey is a registry row's merge identity: metadata is
// one-row-per-company.
func RegistryDedupKey(rec record.RegistryRecord) string {
	return rec.EntityKey
}

// MergeResult reports what a merge did.
type MergeResult struct {
	OldRows   int
	NewRows   int
	Survivors int
}

// Ledger serializes merges per store tag. Parsing may fan out across workers
// freely, but two concurrent fetch-merge-republish sequences against the same
// partition would lose updates.
type Ledger struct {
	store AssetStore

	mu    sync.Mutex
	byTag map[string]*sync.Mutex
}

// New returns a Ledger writing through store.
func New(store AssetStore) *Ledger {
	return &Ledger{store: store, byTag: make(map[string]*sync.Mutex)}
}

// Store exposes the underlying asset store for read-only callers.
func (l *Ledger) Store() AssetStore { return l.store }

func (l *Ledger) tagLock(tag string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.byTag[tag]
	if !ok {
		m = &sync.Mutex{}
		l.byTag[tag] = m
	}
	return m
}

// Merge folds newRows into the snapshot at (tag, name). The current snapshot
// is fetched (absence means empty; a corrupt prior snapshot is logged and
// treated as empty rather than blocking ingestion), old and new rows are
// unioned with new rows appended last, and at most one row per dedup key
// survives — the last one in append order, so new data wins over old. The
// result is re-published under the same name.
//
// Re-running the same merge is a no-op. Two processes merging the same
// partition concurrently are not linearized here; the store's
// replace-by-name semantics mean the last publish wins, so callers needing
// strict cross-process ordering must serialize by partition externally.
func Merge[T any](ctx context.Context, l *Ledger, tag, name string, newRows []T, keyFn func(T) string) (MergeResult, error) {
	lock := l.tagLock(tag)
	lock.Lock()
	defer lock.Unlock()

	var oldRows []T
	data, err := l.store.Get(ctx, tag, name)
	switch {
	case errors.Is(err, fetch.ErrNotFound):
		// First write into this partition.
	case err != nil:
		return MergeResult{}, fmt.Errorf("ledger: fetch snapshot %s/%s: %w", tag, name, err)
	default:
		oldRows, err = DecodeSnapshot[T](data)
		if err != nil {
			log.Printf("[warn] ledger: could not decode existing snapshot %s/%s (%v); recreating fresh", tag, name, err)
			oldRows = nil
		}
	}

	survivors := dedupeLastWins(oldRows, newRows, keyFn)

	out, err := EncodeSnapshot(survivors)
	if err != nil {
		return MergeResult{}, fmt.Errorf("ledger: encode snapshot %s/%s: %w", tag, name, err)
	}
	if err := l.store.Put(ctx, tag, name, out); err != nil {
		return MergeResult{}, fmt.Errorf("ledger: publish snapshot %s/%s: %w", tag, name, err)
	}
	return MergeResult{OldRows: len(oldRows), NewRows: len(newRows), Survivors: len(survivors)}, nil
}

// ReadSnapshot fetches and decodes a snapshot; absence yields an empty slice.
func ReadSnapshot[T any](ctx context.Context, store AssetStore, tag, name string) ([]T, error) {
	data, err := store.Get(ctx, tag, name)
	if errors.Is(err, fetch.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rows, err := DecodeSnapshot[T](data)
	if err != nil {
		log.Printf("[warn] ledger: could not decode snapshot %s/%s (%v); treating as empty", tag, name, err)
		return nil, nil
	}
	return rows, nil
}

// dedupeLastWins unions old then new and keeps the last row per key in append
// order. Rows whose key function returns "" cannot be deduplicated or joined
// and are dropped.
func dedupeLastWins[T any](oldRows, newRows []T, keyFn func(T) string) []T {
	slot := make(map[string]int)
	out := make([]T, 0, len(oldRows)+len(newRows))
	add := func(row T) {
		key := keyFn(row)
		if key == "" {
			return
		}
		if i, seen := slot[key]; seen {
			out[i] = row
			return
		}
		slot[key] = len(out)
		out = append(out, row)
	}
	for _, r := range oldRows {
		add(r)
	}
	for _, r := range newRows {
		add(r)
	}
	return out
}
