// Package pipeline runs the ingestion path end to end: walk a filings
// archive, parse each document into a FinancialRecord, and merge the results
// into their half-year partitions.
package pipeline

import (
	"context"
	"io"
	"log"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elerk1505/companies-house-data/pkg/core/ledger"
	"github.com/elerk1505/companies-house-data/pkg/core/record"
	"github.com/elerk1505/companies-house-data/pkg/core/walker"
)

// Ingestor parses filing archives and publishes the extracted records.
type Ingestor struct {
	Ledger  *ledger.Ledger
	Builder *record.Builder

	// Workers bounds concurrent document parses; defaults to GOMAXPROCS.
	Workers int

	// Fallback routes records whose filing carries no usable date, normally
	// the archive's publication date.
	Fallback time.Time

	// Filter, when set, restricts ingestion to documents whose identity it
	// accepts. Used to pick one month's daily archives out of a year bundle.
	Filter func(name string) bool
}

// Result summarizes one archive's ingestion.
type Result struct {
	Documents  int
	Records    int
	Skipped    int // parsed but keyless, never published
	Partitions int
}

// IngestArchive walks the archive, builds a record per document, and merges
// the records into their partitions. Records without an entity key cannot be
// deduplicated and are dropped with a warning. Merges are serialized per
// partition by the ledger; document parsing fans out across workers.
func (in *Ingestor) IngestArchive(ctx context.Context, r io.ReaderAt, size int64) (Result, error) {
	workers := in.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu     sync.Mutex
		res    Result
		byPart = make(map[ledger.PartitionKey][]record.FinancialRecord)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	err := walker.Walk(r, size, func(doc walker.Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if in.Filter != nil && !in.Filter(doc.Name) {
			return nil
		}
		g.Go(func() error {
			rec := in.Builder.Build(doc.Name, doc.Content)
			mu.Lock()
			defer mu.Unlock()
			res.Documents++
			if rec.EntityKey == "" {
				res.Skipped++
				log.Printf("[warn] pipeline: %s has no company number, skipping", doc.Name)
				return nil
			}
			part := ledger.Route(rec, in.Fallback)
			byPart[part] = append(byPart[part], rec)
			res.Records++
			return nil
		})
		return nil
	})
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		return res, err
	}

	for part, rows := range byPart {
		merged, err := ledger.Merge(ctx, in.Ledger, part.FinancialsTag(), ledger.FinancialsAsset, rows, ledger.FinancialDedupKey)
		if err != nil {
			return res, err
		}
		res.Partitions++
		log.Printf("[info] pipeline: %s: merged %d rows (%d -> %d)", part, len(rows), merged.OldRows, merged.Survivors)
	}
	return res, nil
}
