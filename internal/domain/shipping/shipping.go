// Package shipping computes per-store shipping fees from destination-country
// rules.
package shipping

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// WildcardCountry marks a store's default rule, used when no country-specific
// rule exists.
const WildcardCountry = "*"

var (
	// ErrNoRule is returned when a store has no rule for the destination
	// country and no default rule. It blocks checkout; the fee is never
	// silently defaulted to zero.
	ErrNoRule = errors.New("no shipping rule for destination")
	// ErrNegativeFee is returned when a rule is constructed with a negative
	// base fee.
	ErrNegativeFee = errors.New("base fee must not be negative")
)

// Rule defines how one store charges shipping for a destination country.
type Rule struct {
	StoreID               string
	CountryID             string
	BaseFee               decimal.Decimal
	FreeShippingThreshold *decimal.Decimal
	FreeShippingCountries []string
}

// Resolver finds the applicable rule for a store and destination country,
// falling back to the store's wildcard rule.
type Resolver interface {
	// Resolve returns the rule for (storeID, countryID), the store's wildcard
	// rule if no exact match exists, or ErrNoRule.
	Resolve(ctx context.Context, storeID, countryID string) (*Rule, error)
	Upsert(ctx context.Context, r *Rule) error
}

// ComputeFee returns the shipping fee for a group subtotal shipped to
// countryID under the given rule. Deterministic in its inputs.
//
// Precedence: free-shipping-country membership wins unconditionally; then the
// free-shipping threshold waives the fee when set and met; otherwise the base
// fee applies.
func ComputeFee(r *Rule, countryID string, subtotal decimal.Decimal) decimal.Decimal {
	if slices.Contains(r.FreeShippingCountries, countryID) {
		return decimal.Zero
	}
	if r.FreeShippingThreshold != nil && subtotal.GreaterThanOrEqual(*r.FreeShippingThreshold) {
		return decimal.Zero
	}
	return r.BaseFee
}
