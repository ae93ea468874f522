package payment

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/order"
	"github.com/chowcart/commerce-api/internal/domain/product"
)

type fakeStore struct {
	payments       map[string]*Payment // by provider reference
	paymentByOrder map[string]*Payment
	orderIDs       map[string]string // order number -> id
	orders         map[string]*order.Order
	usageExists    map[string]bool

	sales       []string
	usages      []discount.Usage
	increments  []string
	succeeded   []string
	failed      []string
	statuses    map[string]order.Status
	missingSale map[string]bool

	rolledBack bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:       map[string]*Payment{},
		paymentByOrder: map[string]*Payment{},
		orderIDs:       map[string]string{},
		orders:         map[string]*order.Order{},
		usageExists:    map[string]bool{},
		statuses:       map[string]order.Status{},
		missingSale:    map[string]bool{},
	}
}

func (s *fakeStore) RunPaymentTx(ctx context.Context, fn func(Tx) error) error {
	err := fn(s)
	if err != nil {
		s.rolledBack = true
	}
	return err
}

func (s *fakeStore) FindByReference(_ context.Context, ref string) (*Payment, error) {
	p, ok := s.payments[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) FindOrderIDByNumber(_ context.Context, number string) (string, error) {
	id, ok := s.orderIDs[number]
	if !ok {
		return "", order.ErrNotFound
	}
	return id, nil
}

func (s *fakeStore) FindByOrderID(_ context.Context, orderID string) (*Payment, error) {
	p, ok := s.paymentByOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) GetOrder(_ context.Context, orderID string) (*order.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (s *fakeStore) RecordSale(_ context.Context, productID string, _ int) error {
	if s.missingSale[productID] {
		return product.ErrNotFound
	}
	s.sales = append(s.sales, productID)
	return nil
}

func (s *fakeStore) DiscountUsageExists(_ context.Context, orderID string) (bool, error) {
	return s.usageExists[orderID], nil
}

func (s *fakeStore) InsertDiscountUsage(_ context.Context, u discount.Usage) error {
	s.usages = append(s.usages, u)
	return nil
}

func (s *fakeStore) IncrementDiscountUsageCapped(_ context.Context, discountID string) error {
	s.increments = append(s.increments, discountID)
	return nil
}

func (s *fakeStore) MarkSucceeded(_ context.Context, paymentID, _, _ string, _ time.Time) error {
	s.succeeded = append(s.succeeded, paymentID)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, paymentID string) error {
	s.failed = append(s.failed, paymentID)
	return nil
}

func (s *fakeStore) SetOrderStatus(_ context.Context, orderID string, st order.Status) error {
	s.statuses[orderID] = st
	return nil
}

func seedOrder(s *fakeStore, status Status) *order.Order {
	o := &order.Order{
		ID:       "ord-1",
		Number:   "ORD-1716200000000-ABC123XYZ",
		UserID:   "user-1",
		Status:   order.StatusPending,
		Subtotal: decimal.RequireFromString("20000"),
		Total:    decimal.RequireFromString("24000"),
		Currency: "NGN",
		Items: []order.Item{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	}
	p := &Payment{
		ID:                "pay-1",
		OrderID:           o.ID,
		UserID:            o.UserID,
		Amount:            o.Total,
		Status:            status,
		ProviderReference: o.Number + "-1716200001",
	}
	s.orders[o.ID] = o
	s.orderIDs[o.Number] = o.ID
	s.payments[p.ProviderReference] = p
	s.paymentByOrder[o.ID] = p
	return o
}

func TestReconciler_ProcessSuccess(t *testing.T) {
	s := newFakeStore()
	o := seedOrder(s, StatusPending)
	r := NewReconciler(s, 1)
	r.now = func() time.Time { return time.Unix(1716200500, 0) }

	n := ProviderNotification{
		Reference:     o.Number + "-1716200001",
		TransactionID: "tx-900",
		AmountMinor:   2400000,
		PaidAt:        time.Unix(1716200400, 0),
	}
	require.NoError(t, r.ProcessSuccess(context.Background(), n))

	assert.Equal(t, []string{"p1", "p2"}, s.sales)
	assert.Equal(t, []string{"pay-1"}, s.succeeded)
	assert.Equal(t, order.StatusProcessing, s.statuses[o.ID])
	assert.Empty(t, s.failed)
}

func TestReconciler_ProcessSuccessIdempotent(t *testing.T) {
	s := newFakeStore()
	o := seedOrder(s, StatusPending)
	r := NewReconciler(s, 1)

	n := ProviderNotification{Reference: o.Number + "-1716200001", AmountMinor: 2400000}
	require.NoError(t, r.ProcessSuccess(context.Background(), n))
	s.payments[n.Reference].Status = StatusSuccess

	require.NoError(t, r.ProcessSuccess(context.Background(), n))
	require.NoError(t, r.ProcessSuccess(context.Background(), n))

	assert.Len(t, s.sales, 2, "stock must be finalized exactly once")
	assert.Len(t, s.succeeded, 1)
}

func TestReconciler_ProcessSuccessResolvesByOrderNumber(t *testing.T) {
	s := newFakeStore()
	o := seedOrder(s, StatusPending)
	r := NewReconciler(s, 1)

	// Reference unknown to us, but its prefix up to the last dash is the
	// order number the checkout client embedded.
	n := ProviderNotification{Reference: o.Number + "-9999999999", AmountMinor: 2400000}
	require.NoError(t, r.ProcessSuccess(context.Background(), n))
	assert.Equal(t, []string{"pay-1"}, s.succeeded)
}

func TestReconciler_ProcessSuccessUnknownReference(t *testing.T) {
	s := newFakeStore()
	r := NewReconciler(s, 1)

	err := r.ProcessSuccess(context.Background(), ProviderNotification{Reference: "nope"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, s.rolledBack)
}

func TestReconciler_ProcessSuccessAmountMismatchStillSettles(t *testing.T) {
	s := newFakeStore()
	o := seedOrder(s, StatusPending)
	r := NewReconciler(s, 1)

	// Charged 100 naira short of the order total. Logged, not fatal: the
	// provider already captured the money.
	n := ProviderNotification{Reference: o.Number + "-1716200001", AmountMinor: 2390000}
	require.NoError(t, r.ProcessSuccess(context.Background(), n))
	assert.Equal(t, []string{"pay-1"}, s.succeeded)
	assert.Equal(t, order.StatusProcessing, s.statuses[o.ID])
}

func TestReconciler_ProcessSuccessSkipsMissingProduct(t *testing.T) {
	s := newFakeStore()
	o := seedOrder(s, StatusPending)
	s.missingSale["p1"] = true
	r := NewReconciler(s, 1)

	n := ProviderNotification{Reference: o.Number + "-1716200001", AmountMinor: 2400000}
	require.NoError(t, r.ProcessSuccess(context.Background(), n))
	assert.Equal(t, []string{"p2"}, s.sales)
	assert.Equal(t, []string{"pay-1"}, s.succeeded)
}

func TestReconciler_ProcessSuccessDiscountSettledOnce(t *testing.T) {
	s := newFakeStore()
	o := seedOrder(s, StatusPending)
	o.DiscountID = "disc-1"
	o.DiscountAmount = decimal.RequireFromString("2000")
	r := NewReconciler(s, 1)

	n := ProviderNotification{Reference: o.Number + "-1716200001", AmountMinor: 2400000}
	require.NoError(t, r.ProcessSuccess(context.Background(), n))
	require.Len(t, s.usages, 1)
	assert.Equal(t, "disc-1", s.usages[0].DiscountID)
	assert.Equal(t, o.ID, s.usages[0].OrderID)
	assert.Equal(t, []string{"disc-1"}, s.increments)
}

func TestReconciler_ProcessSuccessDiscountUsageAlreadyRecorded(t *testing.T) {
	s := newFakeStore()
	o := seedOrder(s, StatusPending)
	o.DiscountID = "disc-1"
	s.usageExists[o.ID] = true
	r := NewReconciler(s, 1)

	n := ProviderNotification{Reference: o.Number + "-1716200001", AmountMinor: 2400000}
	require.NoError(t, r.ProcessSuccess(context.Background(), n))
	assert.Empty(t, s.usages)
	assert.Empty(t, s.increments)
}

func TestReconciler_ProcessFailure(t *testing.T) {
	s := newFakeStore()
	o := seedOrder(s, StatusPending)
	r := NewReconciler(s, 1)

	require.NoError(t, r.ProcessFailure(context.Background(), o.Number+"-1716200001"))
	assert.Equal(t, []string{"pay-1"}, s.failed)
	assert.Equal(t, order.StatusCancelled, s.statuses[o.ID])
	assert.Empty(t, s.sales, "failed charge must not touch stock")
}

func TestReconciler_ProcessFailureAfterSuccessIsNoop(t *testing.T) {
	s := newFakeStore()
	o := seedOrder(s, StatusSuccess)
	r := NewReconciler(s, 1)

	require.NoError(t, r.ProcessFailure(context.Background(), o.Number+"-1716200001"))
	assert.Empty(t, s.failed)
	_, ok := s.statuses[o.ID]
	assert.False(t, ok)
}

func TestReconciler_ProcessFailureForOrder(t *testing.T) {
	s := newFakeStore()
	o := seedOrder(s, StatusPending)
	r := NewReconciler(s, 1)

	require.NoError(t, r.ProcessFailureForOrder(context.Background(), o.Number+"-1716200001", o.ID))
	assert.Equal(t, []string{"pay-1"}, s.failed)
	assert.Equal(t, order.StatusCancelled, s.statuses[o.ID])
}

func TestReconciler_ProcessFailureForOrderMismatch(t *testing.T) {
	s := newFakeStore()
	o := seedOrder(s, StatusPending)
	r := NewReconciler(s, 1)

	// The reference resolves fine, but to a different order than the one the
	// caller is allowed to act on. Nothing may change.
	err := r.ProcessFailureForOrder(context.Background(), o.Number+"-1716200001", "ord-other")
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, s.rolledBack)
	assert.Empty(t, s.failed)
	assert.Empty(t, s.statuses)
	assert.Equal(t, StatusPending, s.payments[o.Number+"-1716200001"].Status)
}

func TestOrderNumberCandidates(t *testing.T) {
	tests := []struct {
		ref  string
		want []string
	}{
		{"ORD-1716200000000-ABC123XYZ-1716200001", []string{"ORD-1716200000000-ABC123XYZ", "ORD"}},
		{"ORD-1716200000000-ABC123XYZ", []string{"ORD-1716200000000", "ORD"}},
		{"single", nil},
		{"a-b", []string{"a"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, orderNumberCandidates(tt.ref), tt.ref)
	}
}

func TestReconciler_ProcessSuccessWrapsSaleError(t *testing.T) {
	s := newFakeStore()
	_ = seedOrder(s, StatusPending)
	r := NewReconciler(s, 1)

	boom := errors.New("connection reset")
	broken := &failingSaleStore{fakeStore: s, err: boom}
	r.txr = runnerFunc(func(ctx context.Context, fn func(Tx) error) error { return fn(broken) })

	err := r.ProcessSuccess(context.Background(), ProviderNotification{Reference: "ORD-1716200000000-ABC123XYZ-1716200001"})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, s.succeeded)
}

type failingSaleStore struct {
	*fakeStore
	err error
}

func (s *failingSaleStore) RecordSale(context.Context, string, int) error { return s.err }

type runnerFunc func(ctx context.Context, fn func(Tx) error) error

func (f runnerFunc) RunPaymentTx(ctx context.Context, fn func(Tx) error) error { return f(ctx, fn) }
