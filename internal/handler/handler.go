// Package handler exposes the HTTP API: order checkout and retrieval,
// payment confirmation and the provider webhook.
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chowcart/commerce-api/internal/domain/address"
	"github.com/chowcart/commerce-api/internal/domain/auth"
	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/order"
	"github.com/chowcart/commerce-api/internal/domain/payment"
	"github.com/chowcart/commerce-api/internal/paystack"
)

// Directory provides the lookups that flesh out an order payload: the pending
// or settled payment, the shipping address, and the applied discount.
type Directory interface {
	payment.Reader
	address.Reader
	discount.Getter
}

// ProviderVerifier fetches the authoritative state of a charge from the
// payment provider.
type ProviderVerifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// WebhookSecret keys the provider's webhook signature.
	WebhookSecret string
}

// Handler wires the HTTP surface to the domain services.
type Handler struct {
	orders     *order.Service
	directory  Directory
	reconciler *payment.Reconciler
	provider   ProviderVerifier
	verifier   auth.Verifier

	webhookSecret string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	orders *order.Service,
	directory Directory,
	reconciler *payment.Reconciler,
	provider ProviderVerifier,
	verifier auth.Verifier,
) *Handler {
	return &Handler{
		orders:        orders,
		directory:     directory,
		reconciler:    reconciler,
		provider:      provider,
		verifier:      verifier,
		webhookSecret: cfg.WebhookSecret,
	}
}

// Routes returns the API router. The webhook route is outside the
// authenticated subrouter: the provider signs, it does not log in.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/webhooks/paystack", h.paystackWebhook).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(h.authenticate)

	authed.HandleFunc("/orders", h.createOrder).Methods(http.MethodPost)
	authed.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	authed.HandleFunc("/orders/{id}", h.getOrder).Methods(http.MethodGet)
	authed.Handle("/orders/{id}/status", h.requireAdmin(http.HandlerFunc(h.updateOrderStatus))).Methods(http.MethodPut)

	authed.HandleFunc("/payments/confirm", h.confirmPayment).Methods(http.MethodPost)
	authed.HandleFunc("/payments/update-status", h.updatePaymentStatus).Methods(http.MethodPost)
	authed.HandleFunc("/payments/status/{orderId}", h.getPaymentStatus).Methods(http.MethodGet)

	return r
}
