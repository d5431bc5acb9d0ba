// Package order defines the immutable placed order and its persistence
// contract.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NotFoundError indicates a missing order or store.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Item is a frozen line item copied from the cart at checkout time. Unlike
// cart items, it carries the catalog-resolved billing price.
type Item struct {
	StoreID    string
	VariantID  string
	SizeID     string
	Quantity   int
	UnitPrice  decimal.Decimal
	CouponCode string
}

// Order is a completed checkout. It holds its own frozen copy of the line
// items and is never mutated after placement.
type Order struct {
	ID           string
	UserID       string
	CountryID    string
	Items        []Item
	SubTotal     decimal.Decimal
	ShippingFees decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	PaymentRef   string
	CreatedAt    time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order and its items, re-checks inventory, and
	// clears the user's cart, all within one transaction. A shortfall
	// surfaces as catalog.UnavailableError and nothing is persisted.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// SetPaymentRef records the provider-side payment identifier.
	SetPaymentRef(ctx context.Context, orderID, ref string) error
}

// Store is a registered seller storefront.
type Store struct {
	ID          string
	Name        string
	OwnerUserID string
}

// StoreRepository provides store lookups for ownership checks.
type StoreRepository interface {
	GetByID(ctx context.Context, id string) (*Store, error)
}
