package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/order"
	"github.com/chowcart/commerce-api/internal/domain/payment"
	"github.com/chowcart/commerce-api/internal/domain/product"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// respondDomainError maps domain errors to HTTP statuses: missing entities to
// 404, rejected input to 400 or 422, illegal state changes to 409. Anything
// unmapped is a 500 with the cause logged, not leaked.
func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr  *order.InvalidQuantityError
		pnfErr *order.ProductNotFoundError
		isErr  *order.InsufficientStockError
		bmErr  *discount.BelowMinimumError
		trErr  *order.TransitionError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, "invalid shipping address")
	case errors.As(err, &iqErr):
		writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.As(err, &pnfErr):
		writeError(w, http.StatusUnprocessableEntity, pnfErr.Error())
	case errors.As(err, &isErr):
		writeError(w, http.StatusUnprocessableEntity, isErr.Error())
	case errors.As(err, &bmErr):
		writeError(w, http.StatusUnprocessableEntity, bmErr.Error())
	case errors.Is(err, discount.ErrInvalidOrExpired),
		errors.Is(err, discount.ErrUsageLimitExceeded),
		errors.Is(err, discount.ErrPerUserLimitExceeded):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &trErr):
		writeError(w, http.StatusConflict, trErr.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, payment.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment not found")
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
