package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/chowcart/commerce-api/internal/domain/address"
)

const (
	addressBelongsToUserSQL = `SELECT EXISTS (
	SELECT 1 FROM addresses WHERE id = $1 AND user_id = $2
)`

	getAddressForUserSQL = `SELECT id, user_id, street, city, state, country
	FROM addresses WHERE id = $1 AND user_id = $2`
)

// BelongsToUser reports whether the address exists and is owned by the user.
func (q *Queries) BelongsToUser(ctx context.Context, addressID, userID string) (bool, error) {
	var ok bool
	if err := q.db.QueryRow(ctx, addressBelongsToUserSQL, addressID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking address %q: %w", addressID, err)
	}
	return ok, nil
}

// GetForUser loads an address owned by the user. Returns address.ErrNotFound
// when it does not exist or belongs to somebody else.
func (q *Queries) GetForUser(ctx context.Context, addressID, userID string) (*address.Address, error) {
	var a address.Address
	err := q.db.QueryRow(ctx, getAddressForUserSQL, addressID, userID).
		Scan(&a.ID, &a.UserID, &a.Street, &a.City, &a.State, &a.Country)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("loading address %q: %w", addressID, err)
	}
	return &a, nil
}
