package discount

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluation is the successful outcome of Evaluate.
type Evaluation struct {
	Discount *Discount
	Amount   decimal.Decimal
}

// Evaluate computes discount eligibility and amount for a code against an
// order subtotal. It is read-only: recording the usage and incrementing the
// counter is the caller's responsibility, inside its own transaction.
//
// Checks run in a fixed order so the most specific rejection wins:
// code lookup, global usage limit, minimum order amount, per-user limit.
// The resulting amount is capped at MaxDiscountAmount (when set) and then at
// the subtotal, so it is always within [0, subtotal].
func Evaluate(ctx context.Context, r Reader, code string, subtotal decimal.Decimal, userID string, now time.Time) (*Evaluation, error) {
	d, err := r.FindActiveByCode(ctx, strings.ToUpper(code), now)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpired) {
			return nil, ErrInvalidOrExpired
		}
		return nil, errors.Wrap(err, "lookup discount")
	}

	if d.UsageLimit > 0 && d.UsageCount >= d.UsageLimit {
		return nil, ErrUsageLimitExceeded
	}

	if subtotal.LessThan(d.MinOrderAmount) {
		return nil, &BelowMinimumError{Minimum: d.MinOrderAmount}
	}

	if d.UserUsageLimit > 0 {
		used, err := r.CountUsageByUser(ctx, d.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count user redemptions")
		}
		if used >= d.UserUsageLimit {
			return nil, ErrPerUserLimitExceeded
		}
	}

	var amount decimal.Decimal
	switch d.Type {
	case TypePercentage:
		amount = subtotal.Mul(d.Value).Div(hundred)
	case TypeFixed:
		amount = d.Value
	default:
		return nil, errors.Errorf("unsupported discount type: %q", d.Type)
	}

	if d.MaxDiscountAmount.IsPositive() && amount.GreaterThan(d.MaxDiscountAmount) {
		amount = d.MaxDiscountAmount
	}
	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return &Evaluation{Discount: d, Amount: amount.Round(2)}, nil
}
