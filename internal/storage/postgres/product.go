package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/chowcart/commerce-api/internal/domain/product"
)

const (
	getProductSQL = `SELECT id, name, price, stock_quantity, sales_count, flavors, sizes
		FROM products WHERE id = $1`

	// Guarded decrement: the WHERE clause rejects the write when remaining
	// stock cannot cover the quantity, so two concurrent orders can never
	// both take the last unit.
	reserveStockSQL = `UPDATE products
		SET stock_quantity = stock_quantity - $2, sales_count = sales_count + $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2`

	// Settlement-time variant: the money is already captured, so the
	// decrement floors at zero instead of failing.
	recordSaleSQL = `UPDATE products
		SET stock_quantity = GREATEST(stock_quantity - $2, 0), sales_count = sales_count + $2, updated_at = NOW()
		WHERE id = $1`
)

// GetProduct returns a single product by its identifier.
func (q *Queries) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	rows, err := q.db.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// ReserveStock decrements available stock for a sale, guarded against
// overselling. Returns product.ErrNotFound when the product is missing or
// the remaining stock is insufficient.
func (q *Queries) ReserveStock(ctx context.Context, productID string, qty int) error {
	tag, err := q.db.Exec(ctx, reserveStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("reserving stock for %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// RecordSale finalizes stock for a paid order, flooring at zero. Returns
// product.ErrNotFound only when the product row no longer exists.
func (q *Queries) RecordSale(ctx context.Context, productID string, qty int) error {
	tag, err := q.db.Exec(ctx, recordSaleSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("recording sale for %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.Name, &price, &p.StockQuantity, &p.SalesCount,
		&p.Flavors, &p.Sizes,
	)
	p.Price = price
	return p, err
}
