// Command seed-db loads the catalog, demo discounts, and demo accounts into
// the database for local development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/product"
	"github.com/chowcart/commerce-api/internal/storage/postgres"
)

type productJSON struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	Flavors       []string        `json:"flavors"`
	Sizes         []string        `json:"sizes"`
}

type discountJSON struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	Type              string          `json:"type"`
	Value             decimal.Decimal `json:"value"`
	MinOrderAmount    decimal.Decimal `json:"minOrderAmount"`
	MaxDiscountAmount decimal.Decimal `json:"maxDiscountAmount"`
	UsageLimit        int             `json:"usageLimit"`
	UserUsageLimit    int             `json:"userUsageLimit"`
	ValidDays         int             `json:"validDays"`
}

func main() {
	var (
		databaseURL   string
		productsFile  string
		discountsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&discountsFile, "discounts-file", "db/seed/discounts.json", "path to discounts JSON file")
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

	if err := run(ctx, databaseURL, productsFile, discountsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, discountsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewStore(pool)

	if err := seedProducts(ctx, store, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedDiscounts(ctx, store, discountsFile); err != nil {
		return errors.Wrap(err, "seed discounts")
	}
	if err := seedAccounts(ctx, store); err != nil {
		return errors.Wrap(err, "seed accounts")
	}

	return nil
}

func seedProducts(ctx context.Context, store *postgres.Store, path string) error {
	slog.Info("reading products file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		err := store.UpsertProduct(ctx, product.Product{
			ID:            p.ID,
			Name:          p.Name,
			Price:         p.Price,
			StockQuantity: p.StockQuantity,
			Flavors:       p.Flavors,
			Sizes:         p.Sizes,
		})
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}

	return nil
}

func seedDiscounts(ctx context.Context, store *postgres.Store, path string) error {
	slog.Info("reading discounts file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read discounts file")
	}

	var discounts []discountJSON
	if err := json.Unmarshal(data, &discounts); err != nil {
		return errors.Wrap(err, "parse discounts JSON")
	}

	now := time.Now()
	for _, d := range discounts {
		var validUntil *time.Time
		if d.ValidDays > 0 {
			t := now.AddDate(0, 0, d.ValidDays)
			validUntil = &t
		}

		err := store.UpsertDiscount(ctx, discount.Discount{
			ID:                d.ID,
			Code:              d.Code,
			Type:              discount.Type(d.Type),
			Value:             d.Value,
			MinOrderAmount:    d.MinOrderAmount,
			MaxDiscountAmount: d.MaxDiscountAmount,
			UsageLimit:        d.UsageLimit,
			UserUsageLimit:    d.UserUsageLimit,
			Active:            true,
			ValidFrom:         now,
			ValidUntil:        validUntil,
		})
		if err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.Code)
		}

		slog.Info("upserted discount", slog.String("code", d.Code))
	}

	return nil
}

// seedAccounts creates a demo customer with an address and an admin.
func seedAccounts(ctx context.Context, store *postgres.Store) error {
	users := []postgres.SeedUser{
		{ID: "user-demo", Email: "demo@chowcart.test", FullName: "Demo Customer", Role: "customer"},
		{ID: "user-admin", Email: "admin@chowcart.test", FullName: "Demo Admin", Role: "admin"},
	}
	for _, u := range users {
		if err := store.UpsertUser(ctx, u); err != nil {
			return err
		}
	}

	return store.UpsertAddress(ctx, postgres.SeedAddress{
		ID:      "addr-demo",
		UserID:  "user-demo",
		Street:  "1 Allen Avenue",
		City:    "Lagos",
		State:   "Lagos",
		Country: "NG",
	})
}
