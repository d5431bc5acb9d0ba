// Package catalog defines read access to the authoritative product catalog.
package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a variant/size combination does not exist.
var ErrNotFound = errors.New("variant not found")

// Variant is one purchasable (variant, size) row of the catalog.
type Variant struct {
	VariantID       string
	SizeID          string
	StoreID         string
	Name            string
	Price           decimal.Decimal
	DiscountPercent decimal.Decimal
	Quantity        int
}

// PriceQuote is the current authoritative price for a variant/size. It may
// differ from a cart-time unitPrice snapshot; checkout always bills from a
// fresh quote.
type PriceQuote struct {
	UnitPrice         decimal.Decimal
	DiscountPercent   decimal.Decimal
	AvailableQuantity int
}

// EffectivePrice returns the unit price with the catalog discount applied,
// rounded to 2 decimal places.
func (q PriceQuote) EffectivePrice() decimal.Decimal {
	if q.DiscountPercent.IsZero() {
		return q.UnitPrice
	}
	hundred := decimal.NewFromInt(100)
	factor := hundred.Sub(q.DiscountPercent).Div(hundred)
	return q.UnitPrice.Mul(factor).Round(2)
}

// UnavailableError indicates a variant/size no longer exists or cannot cover
// the requested quantity. It aborts the whole checkout; quantities are never
// silently clamped.
type UnavailableError struct {
	VariantID string
	SizeID    string
	Requested int
	Available int
}

func (e *UnavailableError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("variant %s size %s is no longer available", e.VariantID, e.SizeID)
	}
	return fmt.Sprintf("variant %s size %s: requested %d, only %d available",
		e.VariantID, e.SizeID, e.Requested, e.Available)
}

// Repository defines read operations over the catalog.
type Repository interface {
	List(ctx context.Context) ([]Variant, error)
	Get(ctx context.Context, variantID, sizeID string) (*Variant, error)
	// ResolvePrice returns the current price, discount, and availability for a
	// variant/size. Returns ErrNotFound when the combination does not exist.
	ResolvePrice(ctx context.Context, variantID, sizeID string) (PriceQuote, error)
}
