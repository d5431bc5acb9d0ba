// Package coupon defines store-scoped percentage discount codes and their
// validation.
package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no coupon with the given code exists in
	// the store's namespace.
	ErrNotFound = errors.New("coupon not found")
	// ErrExpired is returned when the coupon exists but now is outside its
	// [StartDate, EndDate] window.
	ErrExpired = errors.New("coupon expired")
	// ErrInvalidDiscount is returned when a discount percentage is outside
	// the [0, 100] range.
	ErrInvalidDiscount = errors.New("discount percent must be between 0 and 100")
	// ErrInvalidWindow is returned when a coupon's validity window is
	// missing or its end date precedes its start date.
	ErrInvalidWindow = errors.New("validity window missing or inverted")
)

// Coupon is a store-scoped percentage discount with a validity window. Codes
// are case-insensitive and stored in canonical upper case; they are unique
// per store, and the same code string may exist independently in two stores.
type Coupon struct {
	Code            string
	StoreID         string
	DiscountPercent decimal.Decimal
	StartDate       time.Time
	EndDate         time.Time
}

var hundred = decimal.NewFromInt(100)

// NormalizeCode maps a user-supplied code to its canonical stored form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// New constructs a Coupon, enforcing the discount range and window
// invariants and normalizing the code. All coupon creation paths (including
// seller upsert) go through this check.
func New(code, storeID string, percent decimal.Decimal, start, end time.Time) (*Coupon, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return nil, ErrInvalidDiscount
	}
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, ErrInvalidWindow
	}
	return &Coupon{
		Code:            NormalizeCode(code),
		StoreID:         storeID,
		DiscountPercent: percent,
		StartDate:       start,
		EndDate:         end,
	}, nil
}

// ActiveAt reports whether the coupon's validity window covers t.
func (c *Coupon) ActiveAt(t time.Time) bool {
	return !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// Repository provides coupon persistence. Lookup is always scoped by
// (code, storeID).
type Repository interface {
	// FindByCode returns the coupon with the given code in the given store's
	// namespace, or ErrNotFound.
	FindByCode(ctx context.Context, code, storeID string) (*Coupon, error)
	Upsert(ctx context.Context, c *Coupon) error
}
