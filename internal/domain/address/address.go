// Package address exposes the shipping-address contracts consumed by order
// assembly and display. Address CRUD itself is handled elsewhere.
package address

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an address does not exist or belongs to a
// different user.
var ErrNotFound = errors.New("address not found")

// Address is a stored shipping address.
type Address struct {
	ID      string
	UserID  string
	Street  string
	City    string
	State   string
	Country string
}

// Checker verifies that a shipping address exists and belongs to a user.
type Checker interface {
	BelongsToUser(ctx context.Context, addressID, userID string) (bool, error)
}

// Reader loads addresses for display on order payloads.
type Reader interface {
	GetForUser(ctx context.Context, addressID, userID string) (*Address, error)
}
