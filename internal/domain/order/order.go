package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/chowcart/commerce-api/internal/domain/address"
	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/product"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// transitions defines every legal status edge. Terminal states have none.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether no further transition is defined from s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransitionTo reports whether the edge s -> to is legal.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Sentinel errors for order validation and lookup.
var (
	ErrNotFound       = errors.New("order not found")
	ErrEmptyItems     = errors.New("items required")
	ErrInvalidAddress = errors.New("invalid shipping address")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InsufficientStockError indicates a product cannot cover the requested quantity.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

// TransitionError indicates an illegal status change.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Order is one purchase transaction. Monetary fields are fixed at creation;
// the invariant total == subtotal - discountAmount + shipping + tax holds for
// the lifetime of the row and is never recomputed.
type Order struct {
	ID                string
	Number            string
	UserID            string
	Status            Status
	Subtotal          decimal.Decimal
	DiscountAmount    decimal.Decimal
	DiscountID        string
	DiscountCode      string
	Tax               decimal.Decimal
	Shipping          decimal.Decimal
	Total             decimal.Decimal
	Currency          string
	ShippingAddressID string
	TrackingNumber    string
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	Notes             string
	Items             []Item
	CreatedAt         time.Time
}

// Item is one line of an Order. It snapshots the unit price and selected
// variant at purchase time; later catalog changes do not affect it.
type Item struct {
	ID             string
	ProductID      string
	Quantity       int
	UnitPrice      decimal.Decimal
	Subtotal       decimal.Decimal
	SelectedFlavor string
	SelectedSize   string
}

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewNumber generates a human-facing order number: ORD-<unix millis>-<9 char
// suffix>. Collisions are negligible but not impossible; the storage layer
// enforces uniqueness with a constraint.
func NewNumber(at time.Time) string {
	var b strings.Builder
	b.Grow(9)
	for range 9 {
		b.WriteByte(numberAlphabet[rand.IntN(len(numberAlphabet))])
	}
	return fmt.Sprintf("ORD-%d-%s", at.UnixMilli(), b.String())
}

// ListFilter selects and pages a user's orders.
type ListFilter struct {
	UserID string
	Status Status
	Page   int
	Limit  int
}

// Pagination describes a page of results.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// StatusUpdate carries an administrative status change.
type StatusUpdate struct {
	Status         Status
	TrackingNumber string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
}

// Repository defines non-transactional persistence operations for orders.
type Repository interface {
	// GetByID loads an order with its items. Returns ErrNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetByIDForUser is GetByID scoped to an owner. Returns ErrNotFound for
	// both a missing order and someone else's order.
	GetByIDForUser(ctx context.Context, id, userID string) (*Order, error)
	// List returns a page of orders (newest first) and the unpaged total.
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	// UpdateStatus applies an administrative status change.
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error
}

// PaymentParams is the pending payment row created alongside an order.
type PaymentParams struct {
	OrderID  string
	UserID   string
	Method   string
	Amount   decimal.Decimal
	Currency string
}

// Tx is the transactional write surface order assembly runs against. All of
// its writes commit or roll back together.
type Tx interface {
	address.Checker
	discount.Reader

	GetProduct(ctx context.Context, id string) (*product.Product, error)
	// ReserveStock decrements stock and increments the sales counter, guarded
	// by stock_quantity >= qty so concurrent orders cannot oversell. Returns
	// product.ErrNotFound when the guard (or the product) rejects the write.
	ReserveStock(ctx context.Context, productID string, qty int) error

	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, orderID string, items []Item) error
	InsertPendingPayment(ctx context.Context, p PaymentParams) error

	InsertDiscountUsage(ctx context.Context, u discount.Usage) error
	// IncrementDiscountUsage bumps usage_count only while it is below the
	// usage limit (compare-and-swap). Returns discount.ErrUsageLimitExceeded
	// when the limit was reached concurrently.
	IncrementDiscountUsage(ctx context.Context, discountID string) error
}

// TxRunner executes fn inside one all-or-nothing transaction.
type TxRunner interface {
	RunOrderTx(ctx context.Context, fn func(Tx) error) error
}
