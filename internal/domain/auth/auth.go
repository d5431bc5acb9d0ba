// Package auth holds the role model and the single capability check gating
// every mutating seller operation.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role is a closed enumeration of the roles an identity can hold.
type Role string

const (
	RoleUser   Role = "USER"
	RoleSeller Role = "SELLER"
	RoleAdmin  Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// ErrUnauthorized is returned when an identity lacks the role or ownership
// required for an operation.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the authenticated caller, as established by the API key layer.
type Identity struct {
	UserID string
	Role   Role
}

// APIKeyInfo holds the identity data stored with a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	UserID  string
	Role    Role
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// AuthorizeStoreWrite is the capability predicate for store-scoped mutations
// (coupon upsert, shipping-rule upsert). Sellers must own the store; admins
// bypass the ownership check; plain users are always rejected.
func AuthorizeStoreWrite(id Identity, ownerUserID string) error {
	switch id.Role {
	case RoleAdmin:
		return nil
	case RoleSeller:
		if id.UserID == ownerUserID {
			return nil
		}
		return ErrUnauthorized
	default:
		return ErrUnauthorized
	}
}
