package payment

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/order"
)

// Status is the payment lifecycle state. The only legal transitions are
// pending -> success and pending -> failed; success never regresses.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrNotFound is returned when no payment record matches a lookup.
var ErrNotFound = errors.New("payment record not found")

// Payment is the single payment attempt of an order (1:1).
type Payment struct {
	ID                string
	OrderID           string
	UserID            string
	Method            string
	Amount            decimal.Decimal
	Currency          string
	Status            Status
	ProviderReference string
	TransactionID     string
	PaidAt            *time.Time
	CreatedAt         time.Time
}

// ProviderNotification is a provider-confirmed successful charge. AmountMinor
// is the charged amount in minor currency units (kobo); zero means the caller
// has no amount to cross-check.
type ProviderNotification struct {
	Reference     string
	TransactionID string
	AmountMinor   int64
	PaidAt        time.Time
}

// Reader provides non-transactional payment lookups for the API surface.
type Reader interface {
	// GetByOrderIDForUser returns the order's payment, scoped to the order's
	// owner. Returns ErrNotFound for a missing row or someone else's order.
	GetByOrderIDForUser(ctx context.Context, orderID, userID string) (*Payment, error)
}

// Tx is the transactional surface reconciliation runs against.
type Tx interface {
	// FindByReference matches payments.provider_reference exactly.
	// Returns ErrNotFound when nothing matches.
	FindByReference(ctx context.Context, reference string) (*Payment, error)
	// FindOrderIDByNumber resolves an order id from its human-facing number.
	// Returns order.ErrNotFound when nothing matches.
	FindOrderIDByNumber(ctx context.Context, number string) (string, error)
	// FindByOrderID returns the payment row of an order.
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)

	// GetOrder loads an order with its items. Returns order.ErrNotFound.
	GetOrder(ctx context.Context, orderID string) (*order.Order, error)

	// RecordSale decrements stock floored at zero and increments the sales
	// counter. Returns product.ErrNotFound for a missing product.
	RecordSale(ctx context.Context, productID string, qty int) error

	DiscountUsageExists(ctx context.Context, orderID string) (bool, error)
	InsertDiscountUsage(ctx context.Context, u discount.Usage) error
	// IncrementDiscountUsageCapped bumps usage_count unless the usage limit
	// is already reached, in which case it is a silent no-op: a captured
	// payment is never reversed over an oversold promo code.
	IncrementDiscountUsageCapped(ctx context.Context, discountID string) error

	MarkSucceeded(ctx context.Context, paymentID, reference, transactionID string, paidAt time.Time) error
	MarkFailed(ctx context.Context, paymentID string) error
	SetOrderStatus(ctx context.Context, orderID string, st order.Status) error
}

// TxRunner executes fn inside one all-or-nothing transaction.
type TxRunner interface {
	RunPaymentTx(ctx context.Context, fn func(Tx) error) error
}

// orderNumberCandidates derives possible order numbers from a provider
// reference. The checkout client builds references as <orderNumber>-<ts> and
// order numbers themselves contain dashes, so the text before the last dash
// is tried first; the text before the first dash covers references that never
// carried a timestamp suffix.
func orderNumberCandidates(reference string) []string {
	var out []string
	if i := strings.LastIndexByte(reference, '-'); i > 0 {
		out = append(out, reference[:i])
	}
	if first, _, ok := strings.Cut(reference, "-"); ok && (len(out) == 0 || out[0] != first) {
		out = append(out, first)
	}
	return out
}
