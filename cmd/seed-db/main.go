// Command seed-db applies the schema and loads a sample catalog and coupons.
package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/apparel-storefront/db"
	"github.com/xenking/apparel-storefront/internal/domain/coupon"
	"github.com/xenking/apparel-storefront/internal/domain/product"
	"github.com/xenking/apparel-storefront/internal/storage/postgres"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
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

	if err := run(ctx, lg, databaseURL); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool)); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, postgres.NewCouponRepository(pool), time.Now()); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func sampleProducts() ([]product.Product, error) {
	var out []product.Product
	for i, line := range bytes.Split(db.SeedProducts, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		p, err := product.DecodeJSON(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", i+1)
		}
		out = append(out, p)
	}
	return out, nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo product.Repository) error {
	products, err := sampleProducts()
	if err != nil {
		return err
	}
	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %d", p.ID)
		}
		lg.Info("Upserted product", zap.Int64("id", p.ID), zap.String("name", p.Name))
	}
	return nil
}

func sampleCoupons(now time.Time) []coupon.Promotion {
	launchEnd := now.AddDate(0, 3, 0)
	return []coupon.Promotion{
		{
			Code:        "WELCOME10",
			Kind:        coupon.PercentOff,
			Value:       decimal.NewFromInt(10),
			Description: "10% off your first order",
		},
		{
			Code:        "TEAM5",
			Kind:        coupon.AmountOff,
			Value:       decimal.NewFromInt(5),
			MinUnits:    5,
			Description: "$5 off team orders of 5+ garments",
		},
		{
			Code:        "BUNDLE",
			Kind:        coupon.CheapestFree,
			MinUnits:    3,
			Description: "Buy 3+ garments, the cheapest one is free",
		},
		{
			Code:        "LAUNCH20",
			Kind:        coupon.PercentOff,
			Value:       decimal.NewFromInt(20),
			Description: "Launch collection: 20% off",
			Starts:      &now,
			Ends:        &launchEnd,
		},
	}
}

func seedCoupons(ctx context.Context, lg *zap.Logger, repo coupon.Repository, now time.Time) error {
	for _, c := range sampleCoupons(now) {
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("description", c.Description))
	}
	return nil
}
