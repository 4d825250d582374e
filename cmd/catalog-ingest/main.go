// Command catalog-ingest loads JSONL product exports, plain or
// gzip-compressed, into the catalog. When several files carry the same product id, the record
// from the file listed last wins.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/apparel-storefront/internal/domain/product"
	"github.com/xenking/apparel-storefront/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000
	maxLineSize   = 1 << 20
)

// upserter is the subset of product.Repository the ingest needs.
type upserter interface {
	Upsert(ctx context.Context, p product.Product) error
}

type stats struct {
	Records    int
	Written    int
	Duplicates int
}

func main() {
	var (
		pattern     string
		databaseURL string
		expected    uint
	)
	flag.StringVar(&pattern, "files", "data/catalog*.jsonl*", "glob of JSONL catalog files (.jsonl or .jsonl.gz), applied in lexical order")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expected, "expected", 1_000_000, "expected products per file, sizes the bloom filters")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, pattern, databaseURL, expected); err != nil {
		lg.Fatal("Catalog ingest failed", zap.Error(err))
	}
	lg.Info("Catalog ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, pattern, databaseURL string, expected uint) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "glob catalog files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", pattern)
	}
	slices.Sort(files)

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	st, err := ingest(ctx, lg, files, postgres.NewProductRepository(pool), expected)
	if err != nil {
		return err
	}
	lg.Info("Ingest summary",
		zap.Int("records", st.Records),
		zap.Int("written", st.Written),
		zap.Int("duplicates", st.Duplicates),
	)
	return nil
}

// ingest runs two passes. Pass 1 builds a bloom filter of product ids per
// file. Pass 2 upserts every product no other file's filter reports, and
// holds back the rest. Held-back candidates are then resolved exactly with
// the last file winning.
func ingest(ctx context.Context, lg *zap.Logger, files []string, repo upserter, expected uint) (stats, error) {
	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters := make([]*bloom.BloomFilter, len(files))
	counts := make([]int, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(expected, bloomFPR)
			n, err := streamProducts(gctx, path, func(p product.Product) error {
				f.Add(idKey(p.ID))
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "pass 1 %s", path)
			}
			filters[i], counts[i] = f, n
			lg.Info("Pass 1 file complete", zap.String("file", path), zap.Int("products", n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats{}, err
	}

	lg.Info("Pass 2: writing unique products")
	var (
		mu         sync.Mutex
		written    int
		candidates = make([][]product.Product, len(files))
	)
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			var held []product.Product
			n := 0
			_, err := streamProducts(gctx, path, func(p product.Product) error {
				key := idKey(p.ID)
				for j, f := range filters {
					if j != i && f.Test(key) {
						held = append(held, p)
						return nil
					}
				}
				if err := repo.Upsert(gctx, p); err != nil {
					return errors.Wrapf(err, "upsert product %d", p.ID)
				}
				n++
				if n%progressEvery == 0 {
					lg.Info("Pass 2 progress", zap.String("file", path), zap.Int("written", n))
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "pass 2 %s", path)
			}
			candidates[i] = held

			mu.Lock()
			written += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats{}, err
	}

	resolved, dups := resolveCandidates(candidates)
	lg.Info("Resolving cross-file candidates",
		zap.Int("candidates", len(resolved)+dups),
		zap.Int("duplicates", dups),
	)
	for _, p := range resolved {
		if err := repo.Upsert(ctx, p); err != nil {
			return stats{}, errors.Wrapf(err, "upsert product %d", p.ID)
		}
	}

	st := stats{Written: written + len(resolved), Duplicates: dups}
	for _, n := range counts {
		st.Records += n
	}
	return st, nil
}

// resolveCandidates keeps the last occurrence of every id across files in
// order and reports how many occurrences were dropped.
func resolveCandidates(perFile [][]product.Product) (winners []product.Product, dropped int) {
	index := make(map[int64]int)
	for _, held := range perFile {
		for _, p := range held {
			if i, ok := index[p.ID]; ok {
				winners[i] = p
				dropped++
				continue
			}
			index[p.ID] = len(winners)
			winners = append(winners, p)
		}
	}
	return winners, dropped
}

func idKey(id int64) []byte {
	return strconv.AppendInt(nil, id, 10)
}

// streamProducts decodes each non-empty line of a JSONL file. Files ending in
// .gz are decompressed.
func streamProducts(ctx context.Context, path string, fn func(p product.Product) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return 0, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxLineSize)

	n, line := 0, 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		p, err := product.DecodeJSON(scanner.Bytes())
		if err != nil {
			return n, errors.Wrapf(err, "%s:%d", path, line)
		}
		if err := fn(p); err != nil {
			return n, err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrapf(err, "scan %s", path)
	}
	return n, nil
}
