package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/product"
)

// Pricing holds the monetary knobs applied at order assembly. The discount is
// applied before tax; shipping does not depend on the discount.
type Pricing struct {
	// FreeShippingThreshold is the subtotal above which shipping is free.
	FreeShippingThreshold decimal.Decimal
	// ShippingFee is the flat fee charged below the threshold.
	ShippingFee decimal.Decimal
	// TaxRate is applied to the discounted subtotal (e.g. 0.075 for 7.5% VAT).
	TaxRate decimal.Decimal
	// Currency is the ISO code stamped on orders and payments.
	Currency string
}

// ItemRequest is one requested line item.
type ItemRequest struct {
	ProductID      string
	Quantity       int
	SelectedFlavor string
	SelectedSize   string
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	UserID            string
	Items             []ItemRequest
	ShippingAddressID string
	PaymentMethod     string
	DiscountCode      string
}

// CreateResult is the assembled order together with the records persisted
// alongside it.
type CreateResult struct {
	Order    *Order
	Payment  PaymentParams
	Discount *discount.Discount
}

// Service implements order assembly and the order read/admin operations.
type Service struct {
	txr     TxRunner
	repo    Repository
	pricing Pricing
	now     func() time.Time
}

// NewService creates an order Service.
func NewService(txr TxRunner, repo Repository, pricing Pricing) *Service {
	return &Service{
		txr:     txr,
		repo:    repo,
		pricing: pricing,
		now:     time.Now,
	}
}

// Create assembles and persists an order: it validates the shipping address
// and every line item, reserves stock, applies an optional discount code,
// prices the order, and writes the order, its items, a pending payment, and
// the discount usage in one transaction. The first failed precondition aborts
// the whole operation with no partial writes.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	now := s.now()
	var result CreateResult

	err := s.txr.RunOrderTx(ctx, func(tx Tx) error {
		ok, err := tx.BelongsToUser(ctx, req.ShippingAddressID, req.UserID)
		if err != nil {
			return errors.Wrap(err, "check address")
		}
		if !ok {
			return ErrInvalidAddress
		}

		subtotal := decimal.Zero
		items := make([]Item, 0, len(req.Items))
		for _, item := range req.Items {
			p, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return &ProductNotFoundError{ProductID: item.ProductID}
				}
				return errors.Wrapf(err, "get product %s", item.ProductID)
			}
			if p.StockQuantity < item.Quantity {
				return &InsufficientStockError{ProductID: p.ID, ProductName: p.Name}
			}

			lineSubtotal := p.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			subtotal = subtotal.Add(lineSubtotal)
			items = append(items, Item{
				ID:             uuid.New().String(),
				ProductID:      p.ID,
				Quantity:       item.Quantity,
				UnitPrice:      p.Price,
				Subtotal:       lineSubtotal,
				SelectedFlavor: item.SelectedFlavor,
				SelectedSize:   item.SelectedSize,
			})

			// Reserve immediately so a later item's failure rolls this back too.
			// The guarded UPDATE closes the race two concurrent orders would
			// otherwise win together.
			if err := tx.ReserveStock(ctx, p.ID, item.Quantity); err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return &InsufficientStockError{ProductID: p.ID, ProductName: p.Name}
				}
				return errors.Wrapf(err, "reserve stock for %s", p.ID)
			}
		}

		discountAmount := decimal.Zero
		var applied *discount.Discount
		if req.DiscountCode != "" {
			eval, err := discount.Evaluate(ctx, tx, req.DiscountCode, subtotal, req.UserID, now)
			if err != nil {
				return err
			}
			applied = eval.Discount
			discountAmount = eval.Amount
		}

		shipping := s.pricing.ShippingFee
		if subtotal.GreaterThan(s.pricing.FreeShippingThreshold) {
			shipping = decimal.Zero
		}
		tax := subtotal.Sub(discountAmount).Mul(s.pricing.TaxRate).Round(2)
		total := subtotal.Sub(discountAmount).Add(shipping).Add(tax)

		o := &Order{
			ID:                uuid.New().String(),
			Number:            NewNumber(now),
			UserID:            req.UserID,
			Status:            StatusPending,
			Subtotal:          subtotal,
			DiscountAmount:    discountAmount,
			Tax:               tax,
			Shipping:          shipping,
			Total:             total,
			Currency:          s.pricing.Currency,
			ShippingAddressID: req.ShippingAddressID,
			Items:             items,
			CreatedAt:         now,
		}
		if applied != nil {
			o.DiscountID = applied.ID
			o.DiscountCode = applied.Code
		}

		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.InsertItems(ctx, o.ID, items); err != nil {
			return errors.Wrap(err, "insert order items")
		}

		payment := PaymentParams{
			OrderID:  o.ID,
			UserID:   req.UserID,
			Method:   req.PaymentMethod,
			Amount:   total,
			Currency: s.pricing.Currency,
		}
		if err := tx.InsertPendingPayment(ctx, payment); err != nil {
			return errors.Wrap(err, "insert payment")
		}

		if applied != nil {
			usage := discount.Usage{
				ID:             uuid.New().String(),
				DiscountID:     applied.ID,
				UserID:         req.UserID,
				OrderID:        o.ID,
				DiscountAmount: discountAmount,
				OriginalAmount: subtotal,
				FinalAmount:    total,
			}
			if err := tx.InsertDiscountUsage(ctx, usage); err != nil {
				return errors.Wrap(err, "insert discount usage")
			}
			if err := tx.IncrementDiscountUsage(ctx, applied.ID); err != nil {
				return err
			}
		}

		result = CreateResult{Order: o, Payment: payment, Discount: applied}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// GetForUser returns an order with its items, scoped to its owner.
func (s *Service) GetForUser(ctx context.Context, orderID, userID string) (*Order, error) {
	return s.repo.GetByIDForUser(ctx, orderID, userID)
}

// List returns one page of a user's orders, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, Pagination, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}

	orders, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, Pagination{}, err
	}

	pages := total / f.Limit
	if total%f.Limit != 0 {
		pages++
	}
	return orders, Pagination{Total: total, Page: f.Page, Limit: f.Limit, Pages: pages}, nil
}

// UpdateStatus applies an administrative status change, stamping shippedAt or
// deliveredAt when entering those states. Transitions out of terminal states
// and edges the state machine does not define are rejected.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status Status, trackingNumber string) (*Order, error) {
	if !status.Valid() {
		return nil, &TransitionError{To: status}
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(status) {
		return nil, &TransitionError{From: o.Status, To: status}
	}

	upd := StatusUpdate{Status: status, TrackingNumber: trackingNumber}
	now := s.now()
	switch status {
	case StatusShipped:
		upd.ShippedAt = &now
	case StatusDelivered:
		upd.DeliveredAt = &now
	}

	if err := s.repo.UpdateStatus(ctx, orderID, upd); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	o.Status = status
	if trackingNumber != "" {
		o.TrackingNumber = trackingNumber
	}
	o.ShippedAt = coalesceTime(upd.ShippedAt, o.ShippedAt)
	o.DeliveredAt = coalesceTime(upd.DeliveredAt, o.DeliveredAt)
	return o, nil
}

func coalesceTime(a, b *time.Time) *time.Time {
	if a != nil {
		return a
	}
	return b
}
