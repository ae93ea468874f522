package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/chowcart/commerce-api/internal/domain/payment"
	"github.com/chowcart/commerce-api/internal/paystack"
)

const maxWebhookBody = 1 << 20

type webhookEvent struct {
	Event         string
	Reference     string
	TransactionID int64
	AmountMinor   int64
	PaidAt        time.Time
}

// paystackWebhook handles provider event deliveries. It always acknowledges
// with 200 once the signature checks out: a non-2xx would make the provider
// retry and amplify whatever is failing internally, while a still-pending
// payment is picked up by the next delivery anyway.
func (h *Handler) paystackWebhook(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	// The signature is computed over the raw body; parse only after it checks out.
	sig := r.Header.Get("X-Paystack-Signature")
	if sig == "" || !paystack.VerifySignature(h.webhookSecret, body, sig) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	ev, err := decodeWebhookEvent(body)
	if err != nil {
		lg.Warn("undecodable webhook payload", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"message": "received"})
		return
	}

	switch ev.Event {
	case "charge.success":
		h.handleChargeSuccess(r, ev)
	case "charge.failed":
		if err := h.reconciler.ProcessFailure(r.Context(), ev.Reference); err != nil {
			lg.Error("webhook failure processing failed",
				zap.String("reference", ev.Reference), zap.Error(err))
		}
	default:
		lg.Debug("ignoring webhook event", zap.String("event", ev.Event))
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "received"})
}

// handleChargeSuccess settles a charge.success event. The webhook payload is
// advisory; the provider's verify endpoint is the source of truth for the
// charged amount and state.
func (h *Handler) handleChargeSuccess(r *http.Request, ev webhookEvent) {
	lg := zctx.From(r.Context())

	n := payment.ProviderNotification{
		Reference:     ev.Reference,
		TransactionID: strconv.FormatInt(ev.TransactionID, 10),
		AmountMinor:   ev.AmountMinor,
		PaidAt:        ev.PaidAt,
	}

	tx, err := h.provider.VerifyTransaction(r.Context(), ev.Reference)
	switch {
	case err != nil:
		// Leave the payment pending; the provider redelivers.
		lg.Error("webhook verification failed",
			zap.String("reference", ev.Reference), zap.Error(err))
		return
	case !tx.Succeeded():
		lg.Warn("webhook claims success but verification disagrees",
			zap.String("reference", ev.Reference), zap.String("status", tx.Status))
		return
	default:
		n.TransactionID = strconv.FormatInt(tx.ID, 10)
		n.AmountMinor = tx.Amount
		if !tx.PaidAt.IsZero() {
			n.PaidAt = tx.PaidAt
		}
	}

	if err := h.reconciler.ProcessSuccess(r.Context(), n); err != nil {
		lg.Error("webhook settlement failed",
			zap.String("reference", ev.Reference), zap.Error(err))
	}
}

func decodeWebhookEvent(body []byte) (webhookEvent, error) {
	var ev webhookEvent
	d := jx.DecodeBytes(body)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "event":
			v, err := d.Str()
			ev.Event = v
			return err
		case "data":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				switch string(key) {
				case "reference":
					v, err := d.Str()
					ev.Reference = v
					return err
				case "id":
					v, err := d.Int64()
					ev.TransactionID = v
					return err
				case "amount":
					v, err := d.Int64()
					ev.AmountMinor = v
					return err
				case "paid_at", "paidAt":
					if d.Next() == jx.Null {
						return d.Null()
					}
					s, err := d.Str()
					if err != nil {
						return err
					}
					if t, err := time.Parse(time.RFC3339, s); err == nil {
						ev.PaidAt = t
					}
					return nil
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	return ev, err
}
