package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chowcart/commerce-api/internal/domain/address"
	"github.com/chowcart/commerce-api/internal/domain/auth"
	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/order"
	"github.com/chowcart/commerce-api/internal/domain/payment"
	"github.com/chowcart/commerce-api/internal/domain/product"
	"github.com/chowcart/commerce-api/internal/paystack"
)

const webhookSecret = "sk_test_webhook"

// memStore is an in-memory implementation of the order and payment
// persistence surfaces, enough to drive the handlers end to end.
type memStore struct {
	products  map[string]*product.Product
	addresses map[string]string
	discounts map[string]*discount.Discount
	orders    map[string]*order.Order
	payments  map[string]*payment.Payment // by order id
	usages    map[string]discount.Usage   // by order id
}

func newMemStore() *memStore {
	return &memStore{
		products:  map[string]*product.Product{},
		addresses: map[string]string{},
		discounts: map[string]*discount.Discount{},
		orders:    map[string]*order.Order{},
		payments:  map[string]*payment.Payment{},
		usages:    map[string]discount.Usage{},
	}
}

func (s *memStore) RunOrderTx(_ context.Context, fn func(order.Tx) error) error {
	return fn(s)
}

func (s *memStore) RunPaymentTx(_ context.Context, fn func(payment.Tx) error) error {
	return fn(s)
}

func (s *memStore) BelongsToUser(_ context.Context, addressID, userID string) (bool, error) {
	return s.addresses[addressID] == userID, nil
}

func (s *memStore) GetForUser(_ context.Context, addressID, userID string) (*address.Address, error) {
	if s.addresses[addressID] != userID {
		return nil, address.ErrNotFound
	}
	return &address.Address{
		ID:      addressID,
		UserID:  userID,
		Street:  "1 Allen Avenue",
		City:    "Lagos",
		State:   "Lagos",
		Country: "NG",
	}, nil
}

func (s *memStore) FindByID(_ context.Context, id string) (*discount.Discount, error) {
	for _, d := range s.discounts {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, discount.ErrNotFound
}

func (s *memStore) FindActiveByCode(_ context.Context, code string, _ time.Time) (*discount.Discount, error) {
	d, ok := s.discounts[code]
	if !ok {
		return nil, discount.ErrInvalidOrExpired
	}
	return d, nil
}

func (s *memStore) CountUsageByUser(_ context.Context, discountID, userID string) (int, error) {
	n := 0
	for _, u := range s.usages {
		if u.DiscountID == discountID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetProduct(_ context.Context, id string) (*product.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (s *memStore) ReserveStock(_ context.Context, productID string, qty int) error {
	p, ok := s.products[productID]
	if !ok || p.StockQuantity < qty {
		return product.ErrNotFound
	}
	p.StockQuantity -= qty
	p.SalesCount += qty
	return nil
}

func (s *memStore) RecordSale(_ context.Context, productID string, qty int) error {
	p, ok := s.products[productID]
	if !ok {
		return product.ErrNotFound
	}
	p.StockQuantity = max(p.StockQuantity-qty, 0)
	p.SalesCount += qty
	return nil
}

func (s *memStore) InsertOrder(_ context.Context, o *order.Order) error {
	s.orders[o.ID] = o
	return nil
}

func (s *memStore) InsertItems(context.Context, string, []order.Item) error { return nil }

func (s *memStore) InsertPendingPayment(_ context.Context, p order.PaymentParams) error {
	s.payments[p.OrderID] = &payment.Payment{
		ID:       uuid.NewString(),
		OrderID:  p.OrderID,
		UserID:   p.UserID,
		Method:   p.Method,
		Amount:   p.Amount,
		Currency: p.Currency,
		Status:   payment.StatusPending,
	}
	return nil
}

func (s *memStore) InsertDiscountUsage(_ context.Context, u discount.Usage) error {
	s.usages[u.OrderID] = u
	return nil
}

func (s *memStore) IncrementDiscountUsage(_ context.Context, discountID string) error {
	for _, d := range s.discounts {
		if d.ID == discountID {
			if d.UsageLimit > 0 && d.UsageCount >= d.UsageLimit {
				return discount.ErrUsageLimitExceeded
			}
			d.UsageCount++
		}
	}
	return nil
}

func (s *memStore) IncrementDiscountUsageCapped(_ context.Context, discountID string) error {
	for _, d := range s.discounts {
		if d.ID == discountID && (d.UsageLimit == 0 || d.UsageCount < d.UsageLimit) {
			d.UsageCount++
		}
	}
	return nil
}

func (s *memStore) DiscountUsageExists(_ context.Context, orderID string) (bool, error) {
	_, ok := s.usages[orderID]
	return ok, nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (s *memStore) GetByIDForUser(_ context.Context, id, userID string) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok || o.UserID != userID {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (s *memStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	return s.GetByID(ctx, id)
}

func (s *memStore) List(_ context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var out []order.Order
	for _, o := range s.orders {
		if o.UserID == f.UserID {
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, upd order.StatusUpdate) error {
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = upd.Status
	return nil
}

func (s *memStore) SetOrderStatus(_ context.Context, orderID string, st order.Status) error {
	o, ok := s.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = st
	return nil
}

func (s *memStore) FindByReference(_ context.Context, ref string) (*payment.Payment, error) {
	for _, p := range s.payments {
		if p.ProviderReference == ref && ref != "" {
			return p, nil
		}
	}
	return nil, payment.ErrNotFound
}

func (s *memStore) FindOrderIDByNumber(_ context.Context, number string) (string, error) {
	for _, o := range s.orders {
		if o.Number == number {
			return o.ID, nil
		}
	}
	return "", order.ErrNotFound
}

func (s *memStore) FindByOrderID(_ context.Context, orderID string) (*payment.Payment, error) {
	p, ok := s.payments[orderID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return p, nil
}

func (s *memStore) GetByOrderIDForUser(_ context.Context, orderID, userID string) (*payment.Payment, error) {
	p, ok := s.payments[orderID]
	if !ok || p.UserID != userID {
		return nil, payment.ErrNotFound
	}
	return p, nil
}

func (s *memStore) MarkSucceeded(_ context.Context, paymentID, ref, txID string, paidAt time.Time) error {
	for _, p := range s.payments {
		if p.ID == paymentID {
			p.Status = payment.StatusSuccess
			p.ProviderReference = ref
			p.TransactionID = txID
			p.PaidAt = &paidAt
		}
	}
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, paymentID string) error {
	for _, p := range s.payments {
		if p.ID == paymentID {
			p.Status = payment.StatusFailed
		}
	}
	return nil
}

type stubProvider struct {
	tx  *paystack.Transaction
	err error
}

func (p *stubProvider) VerifyTransaction(context.Context, string) (*paystack.Transaction, error) {
	return p.tx, p.err
}

type testEnv struct {
	store    *memStore
	provider *stubProvider
	codec    *auth.TokenCodec
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	store.addresses["addr-1"] = "user-1"
	store.products["choc"] = &product.Product{ID: "choc", Name: "Chocolate Cake", Price: decimal.RequireFromString("10000"), StockQuantity: 5}

	pricing := order.Pricing{
		FreeShippingThreshold: decimal.RequireFromString("23000"),
		ShippingFee:           decimal.RequireFromString("2500"),
		TaxRate:               decimal.RequireFromString("0.075"),
		Currency:              "NGN",
	}
	provider := &stubProvider{}
	codec := auth.NewTokenCodec([]byte("test-secret"))

	h := NewHandler(
		Config{WebhookSecret: webhookSecret},
		order.NewService(store, store, pricing),
		store,
		payment.NewReconciler(store, 1),
		provider,
		codec,
	)
	return &testEnv{store: store, provider: provider, codec: codec, router: h.Routes()}
}

func (e *testEnv) token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	tok, err := e.codec.Issue(auth.Identity{UserID: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createOrder(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/orders", e.token(t, "user-1", auth.RoleCustomer), map[string]any{
		"items":             []map[string]any{{"productId": "choc", "quantity": 2}},
		"shippingAddressId": "addr-1",
		"paymentMethod":     "paystack",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Order struct {
			ID          string `json:"id"`
			OrderNumber string `json:"orderNumber"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Order.ID
}

func TestHandler_CreateOrder(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/orders", env.token(t, "user-1", auth.RoleCustomer), map[string]any{
		"items":             []map[string]any{{"productId": "choc", "quantity": 2}},
		"shippingAddressId": "addr-1",
		"paymentMethod":     "paystack",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Order struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			Subtotal string `json:"subtotal"`
			Total    string `json:"total"`
			Payment  *struct {
				Status string `json:"status"`
				Amount string `json:"amount"`
			} `json:"payment"`
			ShippingAddress *struct {
				ID     string `json:"id"`
				Street string `json:"street"`
			} `json:"shippingAddress"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Order.Status)
	assert.Equal(t, "20000", resp.Order.Subtotal)
	assert.Equal(t, "24000", resp.Order.Total)

	require.NotNil(t, resp.Order.Payment, "the pending payment must be attached to the response")
	assert.Equal(t, "pending", resp.Order.Payment.Status)
	assert.Equal(t, "24000", resp.Order.Payment.Amount)
	require.NotNil(t, resp.Order.ShippingAddress, "the shipping address must be attached to the response")
	assert.Equal(t, "addr-1", resp.Order.ShippingAddress.ID)
	assert.Equal(t, "1 Allen Avenue", resp.Order.ShippingAddress.Street)

	p := env.store.payments[resp.Order.ID]
	require.NotNil(t, p, "a pending payment must be created with the order")
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, 3, env.store.products["choc"].StockQuantity)
}

func TestHandler_CreateOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1", auth.RoleCustomer)

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"no items", map[string]any{"shippingAddressId": "addr-1"}, http.StatusBadRequest},
		{"unknown product", map[string]any{
			"items":             []map[string]any{{"productId": "ghost", "quantity": 1}},
			"shippingAddressId": "addr-1",
		}, http.StatusUnprocessableEntity},
		{"insufficient stock", map[string]any{
			"items":             []map[string]any{{"productId": "choc", "quantity": 99}},
			"shippingAddressId": "addr-1",
		}, http.StatusUnprocessableEntity},
		{"foreign address", map[string]any{
			"items":             []map[string]any{{"productId": "choc", "quantity": 1}},
			"shippingAddressId": "addr-other",
		}, http.StatusBadRequest},
		{"invalid discount", map[string]any{
			"items":             []map[string]any{{"productId": "choc", "quantity": 1}},
			"shippingAddressId": "addr-1",
			"discountCode":      "NOPE",
		}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/orders", token, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_AuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/orders", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_GetOrderScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t)

	rec := env.do(t, http.MethodGet, "/api/v1/orders/"+orderID, env.token(t, "user-1", auth.RoleCustomer), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/orders/"+orderID, env.token(t, "user-2", auth.RoleCustomer), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "another user's order must look missing, not forbidden")
}

func TestHandler_UpdateOrderStatusRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t)
	body := map[string]any{"status": "processing"}

	rec := env.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/status", env.token(t, "user-1", auth.RoleCustomer), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/status", env.token(t, "admin-1", auth.RoleAdmin), body)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, order.StatusProcessing, env.store.orders[orderID].Status)

	rec = env.do(t, http.MethodPut, "/api/v1/orders/"+orderID+"/status", env.token(t, "admin-1", auth.RoleAdmin), map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_ConfirmPayment(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t)
	ref := env.store.orders[orderID].Number + "-1716200001"
	env.provider.tx = &paystack.Transaction{
		ID: 42, Reference: ref, Status: "success", Amount: 2400000, Currency: "NGN",
	}

	rec := env.do(t, http.MethodPost, "/api/v1/payments/confirm", env.token(t, "user-1", auth.RoleCustomer), map[string]any{
		"orderId":          orderID,
		"paymentReference": ref,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, payment.StatusSuccess, env.store.payments[orderID].Status)
	assert.Equal(t, order.StatusProcessing, env.store.orders[orderID].Status)

	// Confirming again is a no-op success.
	rec = env.do(t, http.MethodPost, "/api/v1/payments/confirm", env.token(t, "user-1", auth.RoleCustomer), map[string]any{
		"orderId":          orderID,
		"paymentReference": ref,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_ConfirmPaymentProviderDown(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t)
	env.provider.err = context.DeadlineExceeded

	rec := env.do(t, http.MethodPost, "/api/v1/payments/confirm", env.token(t, "user-1", auth.RoleCustomer), map[string]any{
		"orderId":          orderID,
		"paymentReference": env.store.orders[orderID].Number + "-1",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, payment.StatusPending, env.store.payments[orderID].Status)
}

func TestHandler_GetPaymentStatus(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t)

	rec := env.do(t, http.MethodGet, "/api/v1/payments/status/"+orderID, env.token(t, "user-1", auth.RoleCustomer), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Payment struct {
			Status string `json:"status"`
		} `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Payment.Status)

	rec = env.do(t, http.MethodGet, "/api/v1/payments/status/"+orderID, env.token(t, "user-2", auth.RoleCustomer), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_UpdatePaymentStatusScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	victimOrderID := env.createOrder(t)

	env.store.addresses["addr-2"] = "user-2"
	rec := env.do(t, http.MethodPost, "/api/v1/orders", env.token(t, "user-2", auth.RoleCustomer), map[string]any{
		"items":             []map[string]any{{"productId": "choc", "quantity": 1}},
		"shippingAddressId": "addr-2",
		"paymentMethod":     "paystack",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	ownOrderID := created.Order.ID

	// Reporting a failure for one's own order with a reference that resolves
	// to somebody else's order must not touch either order.
	rec = env.do(t, http.MethodPost, "/api/v1/payments/update-status", env.token(t, "user-2", auth.RoleCustomer), map[string]any{
		"orderId":          ownOrderID,
		"status":           "failed",
		"paymentReference": env.store.orders[victimOrderID].Number + "-x1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	assert.Equal(t, payment.StatusPending, env.store.payments[victimOrderID].Status)
	assert.Equal(t, order.StatusPending, env.store.orders[victimOrderID].Status)
	assert.Equal(t, payment.StatusPending, env.store.payments[ownOrderID].Status)
	assert.Equal(t, order.StatusPending, env.store.orders[ownOrderID].Status)

	// A reference matching the caller's own order still fails it.
	rec = env.do(t, http.MethodPost, "/api/v1/payments/update-status", env.token(t, "user-2", auth.RoleCustomer), map[string]any{
		"orderId":          ownOrderID,
		"status":           "failed",
		"paymentReference": env.store.orders[ownOrderID].Number + "-x1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, payment.StatusFailed, env.store.payments[ownOrderID].Status)
	assert.Equal(t, order.StatusCancelled, env.store.orders[ownOrderID].Status)
}

func TestHandler_GetOrderAttachesDetails(t *testing.T) {
	env := newTestEnv(t)
	env.store.discounts["SAVE10"] = &discount.Discount{
		ID:     "disc-save10",
		Code:   "SAVE10",
		Type:   discount.TypePercentage,
		Value:  decimal.RequireFromString("10"),
		Active: true,
	}

	rec := env.do(t, http.MethodPost, "/api/v1/orders", env.token(t, "user-1", auth.RoleCustomer), map[string]any{
		"items":             []map[string]any{{"productId": "choc", "quantity": 2}},
		"shippingAddressId": "addr-1",
		"paymentMethod":     "paystack",
		"discountCode":      "SAVE10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodGet, "/api/v1/orders/"+created.Order.ID, env.token(t, "user-1", auth.RoleCustomer), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Order struct {
			Payment *struct {
				Status string `json:"status"`
			} `json:"payment"`
			ShippingAddress *struct {
				City string `json:"city"`
			} `json:"shippingAddress"`
			Discount *struct {
				ID    string `json:"id"`
				Code  string `json:"code"`
				Type  string `json:"type"`
				Value string `json:"value"`
			} `json:"discount"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.NotNil(t, resp.Order.Payment)
	assert.Equal(t, "pending", resp.Order.Payment.Status)
	require.NotNil(t, resp.Order.ShippingAddress)
	assert.Equal(t, "Lagos", resp.Order.ShippingAddress.City)
	require.NotNil(t, resp.Order.Discount)
	assert.Equal(t, "disc-save10", resp.Order.Discount.ID)
	assert.Equal(t, "SAVE10", resp.Order.Discount.Code)
	assert.Equal(t, "percentage", resp.Order.Discount.Type)
	assert.Equal(t, "10", resp.Order.Discount.Value)
}

func signBody(body []byte) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (e *testEnv) postWebhook(t *testing.T, body []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set("X-Paystack-Signature", sig)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_WebhookSignature(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"event":"charge.success","data":{"reference":"x"}}`)

	rec := env.postWebhook(t, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.postWebhook(t, body, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_WebhookChargeSuccess(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t)
	ref := env.store.orders[orderID].Number + "-1716200001"
	env.provider.tx = &paystack.Transaction{ID: 42, Reference: ref, Status: "success", Amount: 2400000}

	body, err := json.Marshal(map[string]any{
		"event": "charge.success",
		"data":  map[string]any{"reference": ref, "id": 42, "amount": 2400000},
	})
	require.NoError(t, err)

	rec := env.postWebhook(t, body, signBody(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, payment.StatusSuccess, env.store.payments[orderID].Status)
	assert.Equal(t, order.StatusProcessing, env.store.orders[orderID].Status)
}

func TestHandler_WebhookChargeFailed(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t)
	ref := env.store.orders[orderID].Number + "-1716200001"

	body, err := json.Marshal(map[string]any{
		"event": "charge.failed",
		"data":  map[string]any{"reference": ref},
	})
	require.NoError(t, err)

	rec := env.postWebhook(t, body, signBody(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payment.StatusFailed, env.store.payments[orderID].Status)
	assert.Equal(t, order.StatusCancelled, env.store.orders[orderID].Status)
	assert.Equal(t, 3, env.store.products["choc"].StockQuantity, "failed charge must not touch stock")
}

func TestHandler_WebhookAlwaysAcknowledges(t *testing.T) {
	env := newTestEnv(t)

	// Unknown reference: processing fails internally but the provider still
	// gets a 200 so it does not retry-storm us.
	body, err := json.Marshal(map[string]any{
		"event": "charge.failed",
		"data":  map[string]any{"reference": "no-such-ref"},
	})
	require.NoError(t, err)
	rec := env.postWebhook(t, body, signBody(body))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Unknown event type is ignored.
	body = []byte(`{"event":"transfer.success","data":{}}`)
	rec = env.postWebhook(t, body, signBody(body))
	assert.Equal(t, http.StatusOK, rec.Code)
}
