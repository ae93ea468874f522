package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/order"
	"github.com/chowcart/commerce-api/internal/domain/product"
)

// Reconciler applies provider payment outcomes to local state. All of its
// mutations run inside a single transaction so a crash mid-way leaves the
// payment pending and the next webhook delivery retries cleanly.
type Reconciler struct {
	txr TxRunner
	// toleranceMinor is the accepted absolute difference, in minor units,
	// between the provider-charged amount and the order total.
	toleranceMinor int64
	now            func() time.Time
}

func NewReconciler(txr TxRunner, toleranceMinor int64) *Reconciler {
	return &Reconciler{
		txr:            txr,
		toleranceMinor: toleranceMinor,
		now:            time.Now,
	}
}

// ProcessSuccess settles a provider-confirmed charge: marks the payment
// succeeded, moves the order to processing, finalizes stock and discount
// usage. Already-settled payments short-circuit, so redelivered webhooks and
// a concurrent confirm endpoint cannot double-apply side effects.
func (r *Reconciler) ProcessSuccess(ctx context.Context, n ProviderNotification) error {
	return r.txr.RunPaymentTx(ctx, func(tx Tx) error {
		p, err := r.resolvePayment(ctx, tx, n.Reference)
		if err != nil {
			return err
		}
		if p.Status == StatusSuccess {
			return nil
		}

		ord, err := tx.GetOrder(ctx, p.OrderID)
		if err != nil {
			return errors.Wrap(err, "load order")
		}

		if n.AmountMinor > 0 {
			expected := ord.Total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
			if diff := n.AmountMinor - expected; diff > r.toleranceMinor || diff < -r.toleranceMinor {
				zctx.From(ctx).Warn("charged amount differs from order total",
					zap.String("order_id", ord.ID),
					zap.String("reference", n.Reference),
					zap.Int64("charged_minor", n.AmountMinor),
					zap.Int64("expected_minor", expected),
				)
			}
		}

		for _, item := range ord.Items {
			if err := tx.RecordSale(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, product.ErrNotFound) {
					zctx.From(ctx).Warn("sold product no longer exists",
						zap.String("order_id", ord.ID),
						zap.String("product_id", item.ProductID),
					)
					continue
				}
				return errors.Wrapf(err, "record sale %s", item.ProductID)
			}
		}

		if err := r.settleDiscount(ctx, tx, ord); err != nil {
			return err
		}

		paidAt := n.PaidAt
		if paidAt.IsZero() {
			paidAt = r.now()
		}
		if err := tx.MarkSucceeded(ctx, p.ID, n.Reference, n.TransactionID, paidAt); err != nil {
			return errors.Wrap(err, "mark payment succeeded")
		}
		if err := tx.SetOrderStatus(ctx, ord.ID, order.StatusProcessing); err != nil {
			return errors.Wrap(err, "set order status")
		}
		return nil
	})
}

// ProcessFailure records a provider-declined charge: the payment fails and
// the order is cancelled. Reserved stock is left as is; the order was never
// fulfilled and restocking is an operator decision.
func (r *Reconciler) ProcessFailure(ctx context.Context, reference string) error {
	return r.processFailure(ctx, reference, "")
}

// ProcessFailureForOrder is ProcessFailure restricted to a single order. A
// reference resolving to any other order's payment is treated as not found,
// so callers can only fail the payment of the order they already proved
// ownership of.
func (r *Reconciler) ProcessFailureForOrder(ctx context.Context, reference, orderID string) error {
	return r.processFailure(ctx, reference, orderID)
}

func (r *Reconciler) processFailure(ctx context.Context, reference, orderID string) error {
	return r.txr.RunPaymentTx(ctx, func(tx Tx) error {
		p, err := r.resolvePayment(ctx, tx, reference)
		if err != nil {
			return err
		}
		if orderID != "" && p.OrderID != orderID {
			return errors.Wrapf(ErrNotFound, "reference %q does not belong to order %s", reference, orderID)
		}
		if p.Status != StatusPending {
			return nil
		}
		if err := tx.MarkFailed(ctx, p.ID); err != nil {
			return errors.Wrap(err, "mark payment failed")
		}
		if err := tx.SetOrderStatus(ctx, p.OrderID, order.StatusCancelled); err != nil {
			return errors.Wrap(err, "set order status")
		}
		return nil
	})
}

// resolvePayment finds the payment a provider reference points at: an exact
// provider_reference match wins, then order numbers derived from the
// reference shape.
func (r *Reconciler) resolvePayment(ctx context.Context, tx Tx, reference string) (*Payment, error) {
	p, err := tx.FindByReference(ctx, reference)
	switch {
	case err == nil:
		return p, nil
	case !errors.Is(err, ErrNotFound):
		return nil, errors.Wrap(err, "find payment by reference")
	}

	for _, number := range orderNumberCandidates(reference) {
		orderID, err := tx.FindOrderIDByNumber(ctx, number)
		if errors.Is(err, order.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "find order by number")
		}
		p, err := tx.FindByOrderID(ctx, orderID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "find payment by order")
		}
		return p, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "reference %q", reference)
}

// settleDiscount records usage for the order's discount exactly once. The
// unique usage row per order is the idempotence guard; the capped increment
// never fails a captured payment over an exhausted limit.
func (r *Reconciler) settleDiscount(ctx context.Context, tx Tx, ord *order.Order) error {
	if ord.DiscountID == "" {
		return nil
	}
	exists, err := tx.DiscountUsageExists(ctx, ord.ID)
	if err != nil {
		return errors.Wrap(err, "check discount usage")
	}
	if exists {
		return nil
	}
	u := discount.Usage{
		ID:             uuid.NewString(),
		DiscountID:     ord.DiscountID,
		UserID:         ord.UserID,
		OrderID:        ord.ID,
		DiscountAmount: ord.DiscountAmount,
		OriginalAmount: ord.Subtotal,
		FinalAmount:    ord.Total,
		CreatedAt:      r.now(),
	}
	if err := tx.InsertDiscountUsage(ctx, u); err != nil {
		return errors.Wrap(err, "insert discount usage")
	}
	if err := tx.IncrementDiscountUsageCapped(ctx, ord.DiscountID); err != nil {
		return errors.Wrap(err, "increment discount usage")
	}
	return nil
}
