// Package backfill fills the registry dataset for companies that appear in
// the financial data but have no metadata row yet. The work list is never
// persisted: it is recomputed each run as the set difference between the two
// snapshots, so an interrupted run resumes for free.
package backfill

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/elerk1505/companies-house-data/pkg/core/fetch"
	"github.com/elerk1505/companies-house-data/pkg/core/ledger"
	"github.com/elerk1505/companies-house-data/pkg/core/record"
)

// State names the coordinator's phase, mostly for logs and stats.
type State string

const (
	StateCollectKeys   State = "COLLECT_KEYS"
	StateMergeSnapshot State = "MERGE_SNAPSHOT"
	StateAPIFill       State = "API_FILL"
	StateDone          State = "DONE"
)

const defaultBatchSize = 50

// ProfileSource is the point-lookup side of the fill, satisfied by
// registry.Client.
type ProfileSource interface {
	CompanyProfile(ctx context.Context, key string) (record.RegistryRecord, error)
}

// Coordinator drives one partition's metadata fill.
type Coordinator struct {
	Ledger   *ledger.Ledger
	Profiles ProfileSource

	// Enrich, when set, is applied to each profile before it is queued
	// for merge.
	Enrich func(ctx context.Context, rec *record.RegistryRecord)

	// BatchSize is the checkpoint interval: a merge is published after
	// this many successful lookups, so an aborted run loses at most one
	// batch of work.
	BatchSize int

	// Limit caps lookups per run; 0 means no cap.
	Limit int

	// Budget caps wall-clock time per run; 0 means no budget.
	Budget time.Duration
}

// Stats summarizes one Run.
type Stats struct {
	Remaining int // work list size at the start of the run
	Filled    int
	NotFound  int
	Failed    int
	Flushes   int
	State     State
}

// Remaining computes the partition's work list: entity keys present in the
// financials snapshot but absent from the metadata snapshot, sorted for a
// deterministic fill order.
func (c *Coordinator) Remaining(ctx context.Context, part ledger.PartitionKey) ([]string, error) {
	fins, err := ledger.ReadSnapshot[record.FinancialRecord](ctx, c.Ledger.Store(), part.FinancialsTag(), ledger.FinancialsAsset)
	if err != nil {
		return nil, err
	}
	metas, err := ledger.ReadSnapshot[record.RegistryRecord](ctx, c.Ledger.Store(), part.MetadataTag(), ledger.MetadataAsset)
	if err != nil {
		return nil, err
	}

	have := make(map[string]bool, len(metas))
	for _, m := range metas {
		have[m.EntityKey] = true
	}
	seen := make(map[string]bool)
	var keys []string
	for _, f := range fins {
		k := f.EntityKey
		if k == "" || have[k] || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// MergeBulk folds bulk snapshot rows into the partition's metadata asset,
// keeping only rows for companies the partition's financial data actually
// mentions. Returns the number of rows merged.
func (c *Coordinator) MergeBulk(ctx context.Context, part ledger.PartitionKey, rows []record.RegistryRecord) (int, error) {
	fins, err := ledger.ReadSnapshot[record.FinancialRecord](ctx, c.Ledger.Store(), part.FinancialsTag(), ledger.FinancialsAsset)
	if err != nil {
		return 0, err
	}
	wanted := make(map[string]bool, len(fins))
	for _, f := range fins {
		if f.EntityKey != "" {
			wanted[f.EntityKey] = true
		}
	}
	var keep []record.RegistryRecord
	for _, r := range rows {
		if wanted[r.EntityKey] {
			keep = append(keep, r)
		}
	}
	if len(keep) == 0 {
		log.Printf("[info] backfill %s: bulk snapshot had no rows for this partition", part)
		return 0, nil
	}
	log.Printf("[info] backfill %s: merging %d bulk snapshot rows (%d candidates)", part, len(keep), len(rows))
	_, err = ledger.Merge(ctx, c.Ledger, part.MetadataTag(), ledger.MetadataAsset, keep, ledger.RegistryDedupKey)
	return len(keep), err
}

// Run performs one API fill pass over the partition. It stops at the lookup
// cap, the time budget, or context cancellation, flushing a checkpoint merge
// every BatchSize lookups; whatever remains is picked up by the next run.
func (c *Coordinator) Run(ctx context.Context, part ledger.PartitionKey) (Stats, error) {
	stats := Stats{State: StateCollectKeys}
	started := time.Now()

	keys, err := c.Remaining(ctx, part)
	if err != nil {
		return stats, err
	}
	stats.Remaining = len(keys)
	log.Printf("[info] backfill %s: %d companies missing metadata", part, len(keys))
	if len(keys) == 0 {
		stats.State = StateDone
		return stats, nil
	}

	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	stats.State = StateAPIFill
	var batch []record.RegistryRecord
	flush := func(fctx context.Context) error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := ledger.Merge(fctx, c.Ledger, part.MetadataTag(), ledger.MetadataAsset, batch, ledger.RegistryDedupKey); err != nil {
			return err
		}
		stats.Flushes++
		batch = batch[:0]
		return nil
	}

	looked := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			// The run is being shut down; the pending batch still has to
			// reach the store, so publish it on a fresh short-lived context.
			fctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			ferr := flush(fctx)
			cancel()
			if ferr != nil {
				return stats, ferr
			}
			return stats, err
		}
		if c.Limit > 0 && looked >= c.Limit {
			log.Printf("[info] backfill %s: lookup cap of %d reached", part, c.Limit)
			break
		}
		if c.Budget > 0 && time.Since(started) >= c.Budget {
			log.Printf("[info] backfill %s: time budget of %s spent", part, c.Budget)
			break
		}
		looked++

		rec, err := c.Profiles.CompanyProfile(ctx, key)
		switch {
		case errors.Is(err, fetch.ErrNotFound):
			stats.NotFound++
			log.Printf("[warn] backfill %s: company %s not on the register", part, key)
			continue
		case err != nil:
			stats.Failed++
			log.Printf("[warn] backfill %s: lookup %s failed: %v", part, key, err)
			continue
		}
		if c.Enrich != nil {
			c.Enrich(ctx, &rec)
		}
		batch = append(batch, rec)
		stats.Filled++

		if len(batch) >= batchSize {
			if err := flush(ctx); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(ctx); err != nil {
		return stats, err
	}

	if stats.Filled+stats.NotFound+stats.Failed >= stats.Remaining {
		stats.State = StateDone
	}
	log.Printf("[info] backfill %s: filled=%d not_found=%d failed=%d flushes=%d state=%s",
		part, stats.Filled, stats.NotFound, stats.Failed, stats.Flushes, stats.State)
	return stats, nil
}
