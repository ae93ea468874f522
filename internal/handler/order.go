package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chowcart/commerce-api/internal/domain/address"
	"github.com/chowcart/commerce-api/internal/domain/discount"
	"github.com/chowcart/commerce-api/internal/domain/order"
	"github.com/chowcart/commerce-api/internal/domain/payment"
)

type orderItemRequest struct {
	ProductID      string `json:"productId"`
	Quantity       int    `json:"quantity"`
	SelectedFlavor string `json:"selectedFlavor,omitempty"`
	SelectedSize   string `json:"selectedSize,omitempty"`
}

type createOrderRequest struct {
	Items             []orderItemRequest `json:"items"`
	ShippingAddressID string             `json:"shippingAddressId"`
	PaymentMethod     string             `json:"paymentMethod"`
	DiscountCode      string             `json:"discountCode,omitempty"`
}

type orderItemResponse struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"productId"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	SelectedFlavor string          `json:"selectedFlavor,omitempty"`
	SelectedSize   string          `json:"selectedSize,omitempty"`
}

type addressResponse struct {
	ID      string `json:"id"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type discountResponse struct {
	ID    string          `json:"id"`
	Code  string          `json:"code"`
	Type  string          `json:"type"`
	Value decimal.Decimal `json:"value"`
}

type orderResponse struct {
	ID                string              `json:"id"`
	OrderNumber       string              `json:"orderNumber"`
	Status            string              `json:"status"`
	Subtotal          decimal.Decimal     `json:"subtotal"`
	DiscountAmount    decimal.Decimal     `json:"discountAmount"`
	DiscountCode      string              `json:"discountCode,omitempty"`
	Tax               decimal.Decimal     `json:"tax"`
	Shipping          decimal.Decimal     `json:"shipping"`
	Total             decimal.Decimal     `json:"total"`
	Currency          string              `json:"currency"`
	ShippingAddressID string              `json:"shippingAddressId"`
	ShippingAddress   *addressResponse    `json:"shippingAddress,omitempty"`
	Payment           *paymentResponse    `json:"payment,omitempty"`
	Discount          *discountResponse   `json:"discount,omitempty"`
	TrackingNumber    string              `json:"trackingNumber,omitempty"`
	ShippedAt         *time.Time          `json:"shippedAt,omitempty"`
	DeliveredAt       *time.Time          `json:"deliveredAt,omitempty"`
	Items             []orderItemResponse `json:"items"`
	CreatedAt         time.Time           `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			Subtotal:       item.Subtotal,
			SelectedFlavor: item.SelectedFlavor,
			SelectedSize:   item.SelectedSize,
		})
	}
	return orderResponse{
		ID:                o.ID,
		OrderNumber:       o.Number,
		Status:            string(o.Status),
		Subtotal:          o.Subtotal,
		DiscountAmount:    o.DiscountAmount,
		DiscountCode:      o.DiscountCode,
		Tax:               o.Tax,
		Shipping:          o.Shipping,
		Total:             o.Total,
		Currency:          o.Currency,
		ShippingAddressID: o.ShippingAddressID,
		TrackingNumber:    o.TrackingNumber,
		ShippedAt:         o.ShippedAt,
		DeliveredAt:       o.DeliveredAt,
		Items:             items,
		CreatedAt:         o.CreatedAt,
	}
}

// toOrderDetail is toOrderResponse plus the payment, shipping address, and
// applied discount the order points at. Records missing through later
// deletion are omitted rather than failing the whole payload.
func (h *Handler) toOrderDetail(ctx context.Context, o *order.Order, userID string) orderResponse {
	lg := zctx.From(ctx)
	resp := toOrderResponse(o)

	switch p, err := h.directory.GetByOrderIDForUser(ctx, o.ID, userID); {
	case err == nil:
		pr := toPaymentResponse(p)
		resp.Payment = &pr
	case !errors.Is(err, payment.ErrNotFound):
		lg.Error("load payment for order", zap.String("order_id", o.ID), zap.Error(err))
	}

	switch a, err := h.directory.GetForUser(ctx, o.ShippingAddressID, userID); {
	case err == nil:
		resp.ShippingAddress = &addressResponse{
			ID:      a.ID,
			Street:  a.Street,
			City:    a.City,
			State:   a.State,
			Country: a.Country,
		}
	case !errors.Is(err, address.ErrNotFound):
		lg.Error("load address for order", zap.String("order_id", o.ID), zap.Error(err))
	}

	if o.DiscountID != "" {
		switch d, err := h.directory.FindByID(ctx, o.DiscountID); {
		case err == nil:
			resp.Discount = &discountResponse{
				ID:    d.ID,
				Code:  d.Code,
				Type:  string(d.Type),
				Value: d.Value,
			}
		case !errors.Is(err, discount.ErrNotFound):
			lg.Error("load discount for order", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	return resp
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]order.ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, order.ItemRequest{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			SelectedFlavor: item.SelectedFlavor,
			SelectedSize:   item.SelectedSize,
		})
	}

	res, err := h.orders.Create(r.Context(), order.CreateRequest{
		UserID:            id.UserID,
		Items:             items,
		ShippingAddressID: req.ShippingAddressID,
		PaymentMethod:     req.PaymentMethod,
		DiscountCode:      req.DiscountCode,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"order": h.toOrderDetail(r.Context(), res.Order, id.UserID),
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	status := order.Status(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown order status")
		return
	}

	orders, pagination, err := h.orders.List(r.Context(), order.ListFilter{
		UserID: id.UserID,
		Status: status,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders":     out,
		"pagination": pagination,
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	o, err := h.orders.GetForUser(r.Context(), mux.Vars(r)["id"], id.UserID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": h.toOrderDetail(r.Context(), o, id.UserID)})
}

type updateOrderStatusRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), mux.Vars(r)["id"], order.Status(req.Status), req.TrackingNumber)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": toOrderResponse(o)})
}
