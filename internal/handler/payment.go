package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chowcart/commerce-api/internal/domain/payment"
)

// errResponded signals that the HTTP error response has already been written.
var errResponded = errors.New("response written")

type paymentResponse struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"orderId"`
	Method            string          `json:"method"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	ProviderReference string          `json:"providerReference,omitempty"`
	TransactionID     string          `json:"transactionId,omitempty"`
	PaidAt            *time.Time      `json:"paidAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

func toPaymentResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:                p.ID,
		OrderID:           p.OrderID,
		Method:            p.Method,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            string(p.Status),
		ProviderReference: p.ProviderReference,
		TransactionID:     p.TransactionID,
		PaidAt:            p.PaidAt,
		CreatedAt:         p.CreatedAt,
	}
}

type confirmPaymentRequest struct {
	OrderID          string `json:"orderId"`
	PaymentReference string `json:"paymentReference"`
	PaymentMethod    string `json:"paymentMethod,omitempty"`
}

// confirmPayment is the synchronous settlement path: the client reports the
// provider reference after checkout and we verify it with the provider before
// applying it. It races the webhook for the same charge; the reconciler's
// idempotence makes either order of arrival safe.
func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" || req.PaymentReference == "" {
		writeError(w, http.StatusBadRequest, "orderId and paymentReference are required")
		return
	}

	p, err := h.directory.GetByOrderIDForUser(r.Context(), req.OrderID, id.UserID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if p.Status == payment.StatusSuccess {
		h.respondOrder(w, r, req.OrderID, id.UserID)
		return
	}

	if err := h.settleFromProvider(w, r, req.PaymentReference, req.OrderID); err != nil {
		return
	}

	// The reference resolves payments on its own; make sure it settled the
	// order the caller named rather than some other one.
	p, err = h.directory.GetByOrderIDForUser(r.Context(), req.OrderID, id.UserID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if p.Status != payment.StatusSuccess {
		writeError(w, http.StatusUnprocessableEntity, "payment reference does not match order")
		return
	}

	h.respondOrder(w, r, req.OrderID, id.UserID)
}

type updatePaymentStatusRequest struct {
	OrderID          string `json:"orderId"`
	Status           string `json:"status"`
	PaymentReference string `json:"paymentReference"`
}

// updatePaymentStatus lets the client report the outcome it saw at checkout.
// A reported success is never trusted: it is re-verified with the provider
// exactly like confirmPayment.
func (h *Handler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req updatePaymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" || req.PaymentReference == "" {
		writeError(w, http.StatusBadRequest, "orderId and paymentReference are required")
		return
	}

	if _, err := h.directory.GetByOrderIDForUser(r.Context(), req.OrderID, id.UserID); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	switch req.Status {
	case string(payment.StatusSuccess):
		if err := h.settleFromProvider(w, r, req.PaymentReference, req.OrderID); err != nil {
			return
		}
	case string(payment.StatusFailed):
		// Scoped to the caller's order: the reference alone must not be able
		// to fail somebody else's payment.
		if err := h.reconciler.ProcessFailureForOrder(r.Context(), req.PaymentReference, req.OrderID); err != nil {
			h.respondDomainError(w, r, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "status must be success or failed")
		return
	}

	h.respondOrder(w, r, req.OrderID, id.UserID)
}

func (h *Handler) getPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	p, err := h.directory.GetByOrderIDForUser(r.Context(), mux.Vars(r)["orderId"], id.UserID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": toPaymentResponse(p)})
}

// settleFromProvider verifies the reference with the provider and applies the
// outcome. It writes the HTTP error response itself; a non-nil return tells
// the caller the response is already sent.
func (h *Handler) settleFromProvider(w http.ResponseWriter, r *http.Request, reference, orderID string) error {
	tx, err := h.provider.VerifyTransaction(r.Context(), reference)
	if err != nil {
		zctx.From(r.Context()).Error("provider verification failed",
			zap.String("reference", reference), zap.Error(err))
		writeError(w, http.StatusBadGateway, "payment verification failed")
		return err
	}

	if !tx.Succeeded() {
		if tx.Status == "failed" {
			if err := h.reconciler.ProcessFailureForOrder(r.Context(), reference, orderID); err != nil {
				h.respondDomainError(w, r, err)
				return err
			}
		}
		writeError(w, http.StatusUnprocessableEntity, "payment was not successful")
		return errResponded
	}

	n := payment.ProviderNotification{
		Reference:     reference,
		TransactionID: strconv.FormatInt(tx.ID, 10),
		AmountMinor:   tx.Amount,
		PaidAt:        tx.PaidAt,
	}
	if err := h.reconciler.ProcessSuccess(r.Context(), n); err != nil {
		h.respondDomainError(w, r, err)
		return err
	}
	return nil
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, orderID, userID string) {
	o, err := h.orders.GetForUser(r.Context(), orderID, userID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": h.toOrderDetail(r.Context(), o, userID)})
}
