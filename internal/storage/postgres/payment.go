package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/chowcart/commerce-api/internal/domain/order"
	"github.com/chowcart/commerce-api/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments (id, order_id, user_id, method, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	paymentColumns = `id, order_id, user_id, method, amount, currency, status,
		provider_reference, transaction_id, paid_at, created_at`

	findPaymentByReferenceSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE provider_reference = $1`

	findPaymentByOrderIDSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`

	getPaymentForUserSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 AND user_id = $2`

	markPaymentSucceededSQL = `UPDATE payments SET status = 'success',
		provider_reference = $2, transaction_id = $3, paid_at = $4, updated_at = NOW()
		WHERE id = $1`

	markPaymentFailedSQL = `UPDATE payments SET status = 'failed', updated_at = NOW() WHERE id = $1`
)

// InsertPendingPayment creates the order's payment row in the pending state.
// The unique constraint on order_id enforces one payment per order.
func (q *Queries) InsertPendingPayment(ctx context.Context, p order.PaymentParams) error {
	_, err := q.db.Exec(ctx, insertPaymentSQL,
		uuid.New().String(), p.OrderID, p.UserID, p.Method,
		p.Amount, p.Currency, string(payment.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("creating payment for order %q: %w", p.OrderID, err)
	}
	return nil
}

// FindByReference matches payments.provider_reference exactly.
func (q *Queries) FindByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return q.getPayment(ctx, findPaymentByReferenceSQL, reference)
}

// FindByOrderID returns the payment row of an order.
func (q *Queries) FindByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	return q.getPayment(ctx, findPaymentByOrderIDSQL, orderID)
}

// GetByOrderIDForUser implements payment.Reader.
func (q *Queries) GetByOrderIDForUser(ctx context.Context, orderID, userID string) (*payment.Payment, error) {
	return q.getPayment(ctx, getPaymentForUserSQL, orderID, userID)
}

func (q *Queries) getPayment(ctx context.Context, sql string, args ...any) (*payment.Payment, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting payment: %w", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment: %w", err)
	}
	return &p, nil
}

// MarkSucceeded finalizes a captured payment with the provider's reference
// and transaction id.
func (q *Queries) MarkSucceeded(ctx context.Context, paymentID, reference, transactionID string, paidAt time.Time) error {
	tag, err := q.db.Exec(ctx, markPaymentSucceededSQL, paymentID, reference, transactionID, paidAt)
	if err != nil {
		return fmt.Errorf("marking payment %q succeeded: %w", paymentID, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// MarkFailed records a declined charge.
func (q *Queries) MarkFailed(ctx context.Context, paymentID string) error {
	tag, err := q.db.Exec(ctx, markPaymentFailedSQL, paymentID)
	if err != nil {
		return fmt.Errorf("marking payment %q failed: %w", paymentID, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p      payment.Payment
		amount decimal.Decimal
		status string
		ref    *string
		txID   *string
		paidAt *time.Time
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.Method, &amount, &p.Currency,
		&status, &ref, &txID, &paidAt, &p.CreatedAt,
	)
	p.Amount = amount
	p.Status = payment.Status(status)
	if ref != nil {
		p.ProviderReference = *ref
	}
	if txID != nil {
		p.TransactionID = *txID
	}
	p.PaidAt = paidAt
	return p, err
}
