package postgres

import (
	"context"
	"fmt"

	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/product"
)

// Upsert queries used by the seed and ingest commands.
const (
	upsertUserSQL = `INSERT INTO users (id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = $2, full_name = $3, role = $4`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, street, city, state, country)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET street = $3, city = $4, state = $5, country = $6`

	upsertProductSQL = `INSERT INTO products (id, name, price, stock_quantity, flavors, sizes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = $2, price = $3, stock_quantity = $4, flavors = $5, sizes = $6,
			updated_at = NOW()`

	upsertDiscountSQL = `INSERT INTO discounts
		(id, code, type, value, min_order_amount, max_discount_amount,
		usage_limit, user_usage_limit, active, valid_from, valid_until)
		VALUES ($1, UPPER($2), $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			type = $3, value = $4, min_order_amount = $5, max_discount_amount = $6,
			usage_limit = $7, user_usage_limit = $8, active = $9,
			valid_from = $10, valid_until = $11, updated_at = NOW()`
)

// SeedUser describes a user row for seeding.
type SeedUser struct {
	ID       string
	Email    string
	FullName string
	Role     string
}

// SeedAddress describes an address row for seeding.
type SeedAddress struct {
	ID      string
	UserID  string
	Street  string
	City    string
	State   string
	Country string
}

func (q *Queries) UpsertUser(ctx context.Context, u SeedUser) error {
	if _, err := q.db.Exec(ctx, upsertUserSQL, u.ID, u.Email, u.FullName, u.Role); err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}

func (q *Queries) UpsertAddress(ctx context.Context, a SeedAddress) error {
	if _, err := q.db.Exec(ctx, upsertAddressSQL, a.ID, a.UserID, a.Street, a.City, a.State, a.Country); err != nil {
		return fmt.Errorf("upserting address %q: %w", a.ID, err)
	}
	return nil
}

func (q *Queries) UpsertProduct(ctx context.Context, p product.Product) error {
	_, err := q.db.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Price, p.StockQuantity, p.Flavors, p.Sizes,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func (q *Queries) UpsertDiscount(ctx context.Context, d discount.Discount) error {
	_, err := q.db.Exec(ctx, upsertDiscountSQL,
		d.ID, d.Code, string(d.Type), d.Value, d.MinOrderAmount, d.MaxDiscountAmount,
		d.UsageLimit, d.UserUsageLimit, d.Active, d.ValidFrom, d.ValidUntil,
	)
	if err != nil {
		return fmt.Errorf("upserting discount %q: %w", d.Code, err)
	}
	return nil
}
