// Package paystack is a minimal client for the Paystack REST API covering
// transaction verification and webhook signature checks.
package paystack

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultBaseURL = "https://api.paystack.co"

// ErrTransactionNotFound is returned when Paystack has no transaction for
// the given reference.
var ErrTransactionNotFound = errors.New("paystack: transaction not found")

// Transaction is the subset of Paystack's transaction object we act on.
// Amount is in minor currency units (kobo for NGN).
type Transaction struct {
	ID              int64
	Reference       string
	Status          string
	Amount          int64
	Currency        string
	Channel         string
	GatewayResponse string
	PaidAt          time.Time
}

// Succeeded reports whether the charge was captured.
func (t *Transaction) Succeeded() bool {
	return t.Status == "success"
}

// Client calls the Paystack API.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API host, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout bounds every API call. Verification sits on the webhook path,
// so a hung provider must not hold the request open indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a Client authenticating with the given secret key.
func NewClient(secret string, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		secret:  secret,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VerifyTransaction fetches the authoritative state of a transaction by its
// reference. Webhook payloads are trusted only after this confirms them.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "verify transaction")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(ErrTransactionNotFound, "reference %q", reference)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Errorf("paystack: unexpected status %d", resp.StatusCode)
	}

	tx, err := decodeVerifyResponse(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return tx, nil
}

func decodeVerifyResponse(body []byte) (*Transaction, error) {
	var (
		tx Transaction
		ok bool
	)
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "status":
			v, err := d.Bool()
			if err != nil {
				return err
			}
			ok = v
			return nil
		case "data":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				switch string(key) {
				case "id":
					v, err := d.Int64()
					tx.ID = v
					return err
				case "reference":
					v, err := d.Str()
					tx.Reference = v
					return err
				case "status":
					v, err := d.Str()
					tx.Status = v
					return err
				case "amount":
					v, err := d.Int64()
					tx.Amount = v
					return err
				case "currency":
					v, err := d.Str()
					tx.Currency = v
					return err
				case "channel":
					v, err := d.Str()
					tx.Channel = v
					return err
				case "gateway_response":
					v, err := d.Str()
					tx.GatewayResponse = v
					return err
				case "paid_at", "paidAt":
					if d.Next() == jx.Null {
						return d.Null()
					}
					s, err := d.Str()
					if err != nil {
						return err
					}
					t, err := time.Parse(time.RFC3339, s)
					if err != nil {
						return errors.Wrap(err, "paid_at")
					}
					tx.PaidAt = t
					return nil
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrap(ErrTransactionNotFound, "status false")
	}
	return &tx, nil
}

// VerifySignature checks the x-paystack-signature header: an HMAC-SHA512 of
// the raw request body keyed with the account's secret key, hex encoded.
func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
