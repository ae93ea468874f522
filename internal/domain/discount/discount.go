package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage discounts a percentage of the order subtotal.
	TypePercentage Type = "percentage"
	// TypeFixed discounts a fixed amount, capped at the subtotal.
	TypeFixed Type = "fixed"
)

var (
	// ErrInvalidOrExpired is returned when no active discount matches the
	// code, or the current time is outside its validity window.
	ErrInvalidOrExpired = errors.New("invalid or expired discount code")
	// ErrUsageLimitExceeded is returned when the global usage limit is exhausted.
	ErrUsageLimitExceeded = errors.New("discount code usage limit exceeded")
	// ErrPerUserLimitExceeded is returned when this user has redeemed the code
	// as many times as allowed.
	ErrPerUserLimitExceeded = errors.New("discount code per-user limit reached")
	// ErrNotFound is returned by ID lookups for discounts that do not exist.
	ErrNotFound = errors.New("discount not found")
)

// BelowMinimumError rejects orders whose subtotal is below the discount's
// minimum. The required minimum is surfaced to the caller.
type BelowMinimumError struct {
	Minimum decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("minimum order amount of %s required for this discount", e.Minimum)
}

// Discount is a promotional code definition shared across many orders.
//
// UsageLimit and UserUsageLimit of 0 mean unlimited. MaxDiscountAmount is a
// cap applied after the raw amount is computed; a non-positive value means no
// cap. ValidUntil of nil means open-ended.
type Discount struct {
	ID                string
	Code              string
	Type              Type
	Value             decimal.Decimal
	MinOrderAmount    decimal.Decimal
	MaxDiscountAmount decimal.Decimal
	UsageLimit        int
	UsageCount        int
	UserUsageLimit    int
	Active            bool
	ValidFrom         time.Time
	ValidUntil        *time.Time
}

// Usage is the audit and idempotency record for one redemption. At most one
// row exists per order; its presence guards against double-counting when the
// synchronous confirm path and the webhook path race.
type Usage struct {
	ID             string
	DiscountID     string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	OriginalAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	CreatedAt      time.Time
}

// Reader provides the lookups Evaluate needs. Implementations bound to a
// transaction let evaluation observe uncommitted writes of the enclosing
// operation.
type Reader interface {
	// FindActiveByCode returns the active discount matching code
	// (case-insensitively) whose validity window contains at.
	// Returns ErrInvalidOrExpired when there is no match.
	FindActiveByCode(ctx context.Context, code string, at time.Time) (*Discount, error)
	// CountUsageByUser returns how many times the user has redeemed the discount.
	CountUsageByUser(ctx context.Context, discountID, userID string) (int, error)
}

// Getter loads a discount by ID for display on order payloads. Returns
// ErrNotFound when no such discount exists.
type Getter interface {
	FindByID(ctx context.Context, id string) (*Discount, error)
}
