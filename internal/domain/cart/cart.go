// Package cart holds the cart line item model and the store grouping step of
// checkout.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrEmptyCart is returned when a grouping or checkout is attempted on an
// empty line item sequence.
var ErrEmptyCart = errors.New("cart is empty")

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	VariantID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for variant %s, got %d", e.VariantID, e.Quantity)
}

// LineItem is one variant/size/quantity entry in a user's cart. UnitPrice is
// a snapshot taken at add-to-cart time; it is display-only and never used for
// final billing.
type LineItem struct {
	ID        string
	VariantID string
	SizeID    string
	StoreID   string
	Quantity  int
	UnitPrice decimal.Decimal
	AddedAt   time.Time
}

// Repository defines persistence operations for cart line items.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]LineItem, error)
	Add(ctx context.Context, userID string, item LineItem) error
	UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error
	Remove(ctx context.Context, userID, itemID string) error
}
