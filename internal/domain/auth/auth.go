// Package auth defines the identity contract the API consumes. Token issuance
// belongs to the account service; this package only verifies bearer tokens.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role describes what a caller is allowed to do.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// ErrInvalidToken is returned for missing, malformed, tampered, or expired
// tokens. Callers must not distinguish the cases in responses.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the identity carries administrative privileges.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// Verifier turns a bearer token into an Identity or fails.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}
