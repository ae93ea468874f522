package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/chowcart/commerce-api/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, order_number, user_id, status, subtotal, discount_amount, discount_id, discount_code,
		tax, shipping, total, currency, shipping_address_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13, $14, $15)`

	insertOrderItemSQL = `INSERT INTO order_items
		(id, order_id, product_id, quantity, unit_price, subtotal, selected_flavor, selected_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	orderColumns = `id, order_number, user_id, status, subtotal, discount_amount,
		COALESCE(discount_id, ''), discount_code, tax, shipping, total, currency,
		shipping_address_id, tracking_number, shipped_at, delivered_at, notes, created_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`

	findOrderIDByNumberSQL = `SELECT id FROM orders WHERE order_number = $1`

	listOrdersSQL = `SELECT ` + orderColumns + `, COUNT(*) OVER ()
		FROM orders
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	getOrderItemsSQL = `SELECT id, product_id, quantity, unit_price, subtotal, selected_flavor, selected_size
		FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2,
		tracking_number = COALESCE(NULLIF($3, ''), tracking_number),
		shipped_at = COALESCE($4, shipped_at),
		delivered_at = COALESCE($5, delivered_at),
		updated_at = NOW()
		WHERE id = $1`

	setOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`
)

// InsertOrder persists a new order row. Items are stored separately by
// InsertItems.
func (q *Queries) InsertOrder(ctx context.Context, o *order.Order) error {
	_, err := q.db.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.UserID, string(o.Status),
		o.Subtotal, o.DiscountAmount, o.DiscountID, o.DiscountCode,
		o.Tax, o.Shipping, o.Total, o.Currency,
		o.ShippingAddressID, o.Notes, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// InsertItems persists the order's line items.
func (q *Queries) InsertItems(ctx context.Context, orderID string, items []order.Item) error {
	for _, item := range items {
		_, err := q.db.Exec(ctx, insertOrderItemSQL,
			item.ID, orderID, item.ProductID, item.Quantity,
			item.UnitPrice, item.Subtotal, item.SelectedFlavor, item.SelectedSize,
		)
		if err != nil {
			return fmt.Errorf("creating order item %q: %w", item.ID, err)
		}
	}
	return nil
}

// GetOrder loads an order with its items. Returns order.ErrNotFound.
func (q *Queries) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	return q.getOrder(ctx, getOrderSQL, id)
}

// GetByID implements order.Repository.
func (q *Queries) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return q.getOrder(ctx, getOrderSQL, id)
}

// GetByIDForUser loads an order scoped to its owner. Returns order.ErrNotFound
// for both a missing order and someone else's order.
func (q *Queries) GetByIDForUser(ctx context.Context, id, userID string) (*order.Order, error) {
	return q.getOrder(ctx, getOrderForUserSQL, id, userID)
}

func (q *Queries) getOrder(ctx context.Context, sql string, args ...any) (*order.Order, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	items, err := q.getOrderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (q *Queries) getOrderItems(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := q.db.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", orderID, err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", orderID, err)
	}
	return items, nil
}

// FindOrderIDByNumber resolves an order id from its human-facing number.
func (q *Queries) FindOrderIDByNumber(ctx context.Context, number string) (string, error) {
	var id string
	err := q.db.QueryRow(ctx, findOrderIDByNumberSQL, number).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", order.ErrNotFound
		}
		return "", fmt.Errorf("finding order by number %q: %w", number, err)
	}
	return id, nil
}

// List returns one page of a user's orders (newest first) and the unpaged
// total. Items are not loaded for list views.
func (q *Queries) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	offset := (f.Page - 1) * f.Limit
	rows, err := q.db.Query(ctx, listOrdersSQL, f.UserID, string(f.Status), f.Limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []order.Order
		total  int
	)
	for rows.Next() {
		o, n, err := scanOrderWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("listing orders: %w", err)
		}
		orders = append(orders, o)
		total = n
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus applies an administrative status change.
func (q *Queries) UpdateStatus(ctx context.Context, id string, upd order.StatusUpdate) error {
	tag, err := q.db.Exec(ctx, updateOrderStatusSQL,
		id, string(upd.Status), upd.TrackingNumber, upd.ShippedAt, upd.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// SetOrderStatus moves an order to st without touching shipment fields.
func (q *Queries) SetOrderStatus(ctx context.Context, orderID string, st order.Status) error {
	tag, err := q.db.Exec(ctx, setOrderStatusSQL, orderID, string(st))
	if err != nil {
		return fmt.Errorf("setting status of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	o, _, err := scanOrderColumns(row, false)
	return o, err
}

func scanOrderWithTotal(row pgx.Row) (order.Order, int, error) {
	return scanOrderColumns(row, true)
}

func scanOrderColumns(row pgx.Row, withTotal bool) (order.Order, int, error) {
	var (
		o        order.Order
		status   string
		subtotal decimal.Decimal
		discount decimal.Decimal
		tax      decimal.Decimal
		shipping decimal.Decimal
		total    decimal.Decimal
		shipped  *time.Time
		deliver  *time.Time
		count    int
	)
	dest := []any{
		&o.ID, &o.Number, &o.UserID, &status, &subtotal, &discount,
		&o.DiscountID, &o.DiscountCode, &tax, &shipping, &total, &o.Currency,
		&o.ShippingAddressID, &o.TrackingNumber, &shipped, &deliver, &o.Notes, &o.CreatedAt,
	}
	if withTotal {
		dest = append(dest, &count)
	}
	if err := row.Scan(dest...); err != nil {
		return order.Order{}, 0, err
	}
	o.Status = order.Status(status)
	o.Subtotal = subtotal
	o.DiscountAmount = discount
	o.Tax = tax
	o.Shipping = shipping
	o.Total = total
	o.ShippedAt = shipped
	o.DeliveredAt = deliver
	return o, count, nil
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		item     order.Item
		price    decimal.Decimal
		subtotal decimal.Decimal
	)
	err := row.Scan(
		&item.ID, &item.ProductID, &item.Quantity,
		&price, &subtotal, &item.SelectedFlavor, &item.SelectedSize,
	)
	item.UnitPrice = price
	item.Subtotal = subtotal
	return item, err
}
