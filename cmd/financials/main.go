// Command financials ingests Companies House accounts archives into the
// half-year financial snapshots. It takes exactly one source per run: a
// daily archive, a whole month, one of the early year bundles, or a local
// zip file.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/elerk1505/companies-house-data/pkg/core/fetch"
	"github.com/elerk1505/companies-house-data/pkg/core/ghstore"
	"github.com/elerk1505/companies-house-data/pkg/core/ledger"
	"github.com/elerk1505/companies-house-data/pkg/core/pipeline"
	"github.com/elerk1505/companies-house-data/pkg/core/record"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, assuming environment variables are set.")
	}

	var (
		dateFlag  = flag.String("date", "", "ingest the daily archive for this date (YYYY-MM-DD)")
		monthFlag = flag.String("month", "", "ingest all daily archives for this month (YYYY-MM)")
		yearFlag  = flag.Int("year", 0, "ingest a legacy year bundle (2008 or 2009)")
		fileFlag  = flag.String("file", "", "ingest a local accounts zip")
		runFlag   = flag.String("run", "", "run code recorded on every row (default: derived from the source)")
		workers   = flag.Int("workers", 0, "concurrent document parses (default GOMAXPROCS)")
		dryRun    = flag.Bool("dry-run", false, "parse and merge in memory without publishing")
	)
	flag.Parse()

	store, err := openStore(*dryRun)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	l := ledger.New(store)

	// SIGINT/SIGTERM cancel the context so in-flight work can flush its
	// pending ledger writes before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *dateFlag != "":
		day, err := time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			log.Fatalf("Error: bad -date: %v", err)
		}
		if err := ingestURL(ctx, l, fetch.DailyURL(day), *runFlag, *workers, day); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case *monthFlag != "":
		month, err := time.Parse("2006-01", *monthFlag)
		if err != nil {
			log.Fatalf("Error: bad -month: %v", err)
		}
		if err := ingestMonth(ctx, l, month, *runFlag, *workers); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case *yearFlag != 0:
		url := fetch.YearBundleURL(*yearFlag)
		if url == "" {
			log.Fatalf("Error: no year bundle exists for %d (only 2008 and 2009)", *yearFlag)
		}
		fallback := time.Date(*yearFlag, time.December, 31, 0, 0, 0, 0, time.UTC)
		if err := ingestURL(ctx, l, url, *runFlag, *workers, fallback); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case *fileFlag != "":
		if err := ingestFile(ctx, l, *fileFlag, *runFlag, *workers); err != nil {
			log.Fatalf("Error: %v", err)
		}
	default:
		fmt.Fprintln(os.Stderr, "one of -date, -month, -year or -file is required")
		flag.Usage()
		os.Exit(2)
	}
}

func openStore(dryRun bool) (ledger.AssetStore, error) {
	if dryRun {
		log.Println("[info] dry run: results stay in memory")
		return ledger.NewMemStore(), nil
	}
	return ghstore.NewFromEnv()
}

func ingestMonth(ctx context.Context, l *ledger.Ledger, month time.Time, runCode string, workers int) error {
	// 2008 and 2009 were only ever published as whole-year bundles; pick the
	// requested month's daily zips out of the bundle by filename.
	if url := fetch.YearBundleURL(month.Year()); url != "" {
		want := month.Format("2006-01")
		return ingestFiltered(ctx, l, url, runCode, workers, month, func(name string) bool {
			m := fetch.DailyZipNameRE.FindStringSubmatch(name)
			return m != nil && m[1]+"-"+m[2] == want
		})
	}

	// Daily archives within a month are found by probing: the publication
	// calendar has gaps (weekends, holidays), so 404s are expected.
	var ingested int
	for day := month; day.Month() == month.Month(); day = day.AddDate(0, 0, 1) {
		err := ingestURL(ctx, l, fetch.DailyURL(day), runCode, workers, day)
		if errors.Is(err, fetch.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		ingested++
	}
	if ingested == 0 {
		// Older months are only published as monthly archives.
		for _, url := range fetch.MonthlyURLs(month.Year(), month.Month()) {
			err := ingestURL(ctx, l, url, runCode, workers, month)
			if errors.Is(err, fetch.ErrNotFound) {
				continue
			}
			return err
		}
		return fmt.Errorf("no archives published for %s", month.Format("2006-01"))
	}
	log.Printf("[info] ingested %d daily archives for %s", ingested, month.Format("2006-01"))
	return nil
}

func ingestURL(ctx context.Context, l *ledger.Ledger, url, runCode string, workers int, fallback time.Time) error {
	return ingestFiltered(ctx, l, url, runCode, workers, fallback, nil)
}

func ingestFiltered(ctx context.Context, l *ledger.Ledger, url, runCode string, workers int, fallback time.Time, filter func(string) bool) error {
	client := fetch.NewDownloadClient()
	log.Printf("[info] downloading %s", url)
	data, err := client.GetBytes(ctx, url)
	if err != nil {
		return err
	}
	if runCode == "" {
		runCode = strings.TrimSuffix(path.Base(url), ".zip")
	}
	in := &pipeline.Ingestor{
		Ledger:   l,
		Builder:  &record.Builder{RunCode: runCode, SourceURL: url},
		Workers:  workers,
		Fallback: fallback,
		Filter:   filter,
	}
	res, err := in.IngestArchive(ctx, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	log.Printf("[info] %s: %d documents, %d records, %d skipped, %d partitions",
		runCode, res.Documents, res.Records, res.Skipped, res.Partitions)
	return nil
}

func ingestFile(ctx context.Context, l *ledger.Ledger, name, runCode string, workers int) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if runCode == "" {
		// Local files carry no publication date, so stamp the run instead.
		runCode = "local-" + uuid.NewString()[:8]
	}
	in := &pipeline.Ingestor{
		Ledger:   l,
		Builder:  &record.Builder{RunCode: runCode, SourceURL: "file://" + name},
		Workers:  workers,
		Fallback: fi.ModTime().UTC(),
	}
	res, err := in.IngestArchive(ctx, f, fi.Size())
	if err != nil {
		return err
	}
	log.Printf("[info] %s: %d documents, %d records, %d skipped, %d partitions",
		runCode, res.Documents, res.Records, res.Skipped, res.Partitions)
	return nil
}
