// Package checkout orchestrates the pricing aggregation: store grouping,
// catalog re-resolution, coupon application, shipping fees, and the final
// totals fold.
package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/velesto/storefront/internal/domain/coupon"
)

// PricedItem is a line item whose unit price has been re-resolved from the
// catalog at checkout time.
type PricedItem struct {
	VariantID string
	SizeID    string
	Quantity  int
	UnitPrice decimal.Decimal
}

// ResolvedGroup is one store's slice of the order with all pricing inputs
// resolved. It is a computed projection, rebuilt on every checkout attempt.
type ResolvedGroup struct {
	StoreID     string
	Items       []PricedItem
	ShippingFee decimal.Decimal

	couponCode      string
	discountPercent decimal.Decimal
}

// Subtotal returns the sum of unitPrice * quantity over the group's items.
func (g *ResolvedGroup) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range g.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// AttachCoupon applies a validated coupon to the group. The store-match
// invariant is enforced here, on construction of the group-with-coupon, so a
// coupon from store A can never discount a group belonging to store B.
// Attaching a second coupon replaces the first; discounts never stack.
func (g *ResolvedGroup) AttachCoupon(c *coupon.Coupon) error {
	if c.StoreID != g.StoreID {
		return fmt.Errorf("coupon %q belongs to store %s, not %s: %w",
			c.Code, c.StoreID, g.StoreID, coupon.ErrNotFound)
	}
	g.couponCode = c.Code
	g.discountPercent = c.DiscountPercent
	return nil
}

// CouponCode returns the code of the attached coupon, or "".
func (g *ResolvedGroup) CouponCode() string { return g.couponCode }

// Discount returns the group's discount amount: subtotal * percent / 100,
// clamped so it cannot exceed the group's own subtotal plus shipping.
func (g *ResolvedGroup) Discount() decimal.Decimal {
	if g.discountPercent.IsZero() {
		return decimal.Zero
	}
	d := g.Subtotal().Mul(g.discountPercent).Div(hundred)
	if limit := g.Subtotal().Add(g.ShippingFee); d.GreaterThan(limit) {
		d = limit
	}
	return d
}

// OrderTotals is the final breakdown of an order. Invariants:
// Total == SubTotal + ShippingFees - Discount, Total >= 0, and
// Discount <= SubTotal + ShippingFees.
type OrderTotals struct {
	SubTotal     decimal.Decimal
	ShippingFees decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Totalize folds already-resolved groups into an OrderTotals. It performs no
// I/O and is idempotent: calling it twice on the same groups yields identical
// totals.
func Totalize(groups []ResolvedGroup) OrderTotals {
	subTotal := decimal.Zero
	shipping := decimal.Zero
	discount := decimal.Zero
	for i := range groups {
		g := &groups[i]
		subTotal = subTotal.Add(g.Subtotal())
		shipping = shipping.Add(g.ShippingFee)
		discount = discount.Add(g.Discount())
	}

	// Per-group clamping already bounds each discount by its own
	// subtotal+shipping, so the sum is bounded too. Round at the edges only.
	subTotal = subTotal.Round(2)
	shipping = shipping.Round(2)
	discount = discount.Round(2)

	total := subTotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		discount = subTotal.Add(shipping)
		total = decimal.Zero
	}

	return OrderTotals{
		SubTotal:     subTotal,
		ShippingFees: shipping,
		Discount:     discount,
		Total:        total,
	}
}
