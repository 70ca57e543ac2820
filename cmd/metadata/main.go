// Command metadata maintains the registry dataset for one half-year
// partition: optionally merge a monthly Basic Company Data snapshot, then
// fill whatever companies are still missing through the Companies House API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/elerk1505/companies-house-data/pkg/core/backfill"
	"github.com/elerk1505/companies-house-data/pkg/core/fetch"
	"github.com/elerk1505/companies-house-data/pkg/core/ghstore"
	"github.com/elerk1505/companies-house-data/pkg/core/ledger"
	"github.com/elerk1505/companies-house-data/pkg/core/registry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, assuming environment variables are set.")
	}

	var (
		year      = flag.Int("year", 0, "partition year (required)")
		half      = flag.String("half", "", "partition half, H1 or H2 (required)")
		snapshot  = flag.String("month", "", "merge the bulk snapshot for this month first (YYYY-MM)")
		skipAPI   = flag.Bool("skip-api", false, "stop after the snapshot merge")
		maxRPM    = flag.Int("max-rpm", envInt("CH_MAX_RPM", 500), "API requests per minute")
		batchSize = flag.Int("batch-size", 50, "lookups per checkpoint merge")
		limit     = flag.Int("limit", 0, "max API lookups this run (0 = no cap)")
		budget    = flag.Duration("budget", 0, "wall-clock budget for the API fill (0 = none)")
		remaining = flag.Bool("remaining", false, "print the work list size and exit")
	)
	flag.Parse()

	if *year == 0 || (*half != "H1" && *half != "H2") {
		flag.Usage()
		os.Exit(2)
	}
	part := ledger.PartitionKey{Year: *year, Half: *half}

	store, err := ghstore.NewFromEnv()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	l := ledger.New(store)

	apiKey := os.Getenv("CH_API_KEY")
	if apiKey == "" && !*skipAPI && !*remaining {
		log.Fatal("Error: CH_API_KEY is not set.")
	}
	api := registry.NewClient(apiKey, *maxRPM)

	coord := &backfill.Coordinator{
		Ledger:    l,
		Profiles:  api,
		Enrich:    api.EnrichAdvanced,
		BatchSize: *batchSize,
		Limit:     *limit,
		Budget:    *budget,
	}

	// SIGINT/SIGTERM cancel the context; the coordinator flushes its pending
	// checkpoint before returning.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *remaining {
		keys, err := coord.Remaining(ctx, part)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		log.Printf("[info] %s: %d companies missing metadata", part, len(keys))
		return
	}

	if *snapshot != "" {
		month, err := time.Parse("2006-01", *snapshot)
		if err != nil {
			log.Fatalf("Error: bad -month: %v", err)
		}
		rows, err := registry.LoadSnapshot(ctx, fetch.NewDownloadClient(), month.Year(), month.Month())
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		merged, err := coord.MergeBulk(ctx, part, rows)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		log.Printf("[info] %s: snapshot contributed %d rows", part, merged)
	}

	if *skipAPI {
		return
	}
	stats, err := coord.Run(ctx, part)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	log.Printf("[info] %s: done, state=%s filled=%d", part, stats.State, stats.Filled)
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
