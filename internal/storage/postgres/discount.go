package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/chowcart/commerce-api/internal/domain/discount"
)

const (
	findActiveDiscountSQL = `SELECT id, code, type, value, min_order_amount, max_discount_amount,
		usage_limit, usage_count, user_usage_limit, active, valid_from, valid_until
		FROM discounts
		WHERE UPPER(code) = UPPER($1) AND active = TRUE
		AND valid_from <= $2 AND (valid_until IS NULL OR valid_until >= $2)`

	getDiscountSQL = `SELECT id, code, type, value, min_order_amount, max_discount_amount,
		usage_limit, usage_count, user_usage_limit, active, valid_from, valid_until
		FROM discounts WHERE id = $1`

	countUsageByUserSQL = `SELECT COUNT(*) FROM discount_usages WHERE discount_id = $1 AND user_id = $2`

	// Compare-and-swap: the guard re-checks the limit under the row lock, so
	// concurrent orders cannot both take the last redemption. usage_limit of
	// zero means unlimited.
	incrementUsageSQL = `UPDATE discounts SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`

	insertDiscountUsageSQL = `INSERT INTO discount_usages
		(id, discount_id, user_id, order_id, discount_amount, original_amount, final_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	discountUsageExistsSQL = `SELECT EXISTS (SELECT 1 FROM discount_usages WHERE order_id = $1)`
)

// FindActiveByCode looks up an active discount by code (case-insensitive)
// whose validity window contains at. Returns discount.ErrInvalidOrExpired
// when no such discount exists.
func (q *Queries) FindActiveByCode(ctx context.Context, code string, at time.Time) (*discount.Discount, error) {
	rows, err := q.db.Query(ctx, findActiveDiscountSQL, code, at)
	if err != nil {
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrInvalidOrExpired
		}
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}
	return &d, nil
}

// FindByID loads a discount regardless of its active or validity state.
// Returns discount.ErrNotFound when no such discount exists.
func (q *Queries) FindByID(ctx context.Context, id string) (*discount.Discount, error) {
	rows, err := q.db.Query(ctx, getDiscountSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding discount %q: %w", id, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount %q: %w", id, err)
	}
	return &d, nil
}

// CountUsageByUser returns how many times the user has redeemed the discount.
func (q *Queries) CountUsageByUser(ctx context.Context, discountID, userID string) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, countUsageByUserSQL, discountID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting redemptions of %q: %w", discountID, err)
	}
	return n, nil
}

// IncrementDiscountUsage bumps the usage counter while headroom remains.
// Returns discount.ErrUsageLimitExceeded when the limit was reached, which
// happens when a concurrent order took the last redemption after this one
// passed validation.
func (q *Queries) IncrementDiscountUsage(ctx context.Context, discountID string) error {
	tag, err := q.db.Exec(ctx, incrementUsageSQL, discountID)
	if err != nil {
		return fmt.Errorf("incrementing usage of %q: %w", discountID, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrUsageLimitExceeded
	}
	return nil
}

// IncrementDiscountUsageCapped bumps the usage counter unless the limit is
// already reached, in which case nothing happens and no error is returned.
// A captured payment must not fail over an exhausted limit.
func (q *Queries) IncrementDiscountUsageCapped(ctx context.Context, discountID string) error {
	if _, err := q.db.Exec(ctx, incrementUsageSQL, discountID); err != nil {
		return fmt.Errorf("incrementing usage of %q: %w", discountID, err)
	}
	return nil
}

// InsertDiscountUsage records one redemption. The unique constraint on
// order_id rejects a second row for the same order.
func (q *Queries) InsertDiscountUsage(ctx context.Context, u discount.Usage) error {
	_, err := q.db.Exec(ctx, insertDiscountUsageSQL,
		u.ID, u.DiscountID, u.UserID, u.OrderID,
		u.DiscountAmount, u.OriginalAmount, u.FinalAmount,
	)
	if err != nil {
		return fmt.Errorf("recording discount usage for order %q: %w", u.OrderID, err)
	}
	return nil
}

// DiscountUsageExists reports whether a redemption is already recorded for
// the order.
func (q *Queries) DiscountUsageExists(ctx context.Context, orderID string) (bool, error) {
	var ok bool
	if err := q.db.QueryRow(ctx, discountUsageExistsSQL, orderID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking discount usage for order %q: %w", orderID, err)
	}
	return ok, nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d          discount.Discount
		typ        string
		value      decimal.Decimal
		minOrder   decimal.Decimal
		maxAmount  decimal.Decimal
		usageLimit int32
		usageCount int32
		userLimit  int32
		validUntil *time.Time
	)
	err := row.Scan(
		&d.ID, &d.Code, &typ, &value, &minOrder, &maxAmount,
		&usageLimit, &usageCount, &userLimit, &d.Active, &d.ValidFrom, &validUntil,
	)
	d.Type = discount.Type(typ)
	d.Value = value
	d.MinOrderAmount = minOrder
	d.MaxDiscountAmount = maxAmount
	d.UsageLimit = int(usageLimit)
	d.UsageCount = int(usageCount)
	d.UserUsageLimit = int(userLimit)
	d.ValidUntil = validUntil
	return d, err
}
