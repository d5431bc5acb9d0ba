package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/velesto/storefront/internal/domain/cart"
	"github.com/velesto/storefront/internal/domain/catalog"
	"github.com/velesto/storefront/internal/domain/coupon"
	"github.com/velesto/storefront/internal/domain/order"
	"github.com/velesto/storefront/internal/domain/shipping"
)

// AggregationFailedError wraps unexpected infrastructure failures so internal
// detail is never surfaced to the end user. The underlying cause stays
// reachable for logging via Unwrap.
type AggregationFailedError struct {
	cause error
}

func (e *AggregationFailedError) Error() string { return "checkout aggregation failed" }

func (e *AggregationFailedError) Unwrap() error { return e.cause }

// PaymentProvider registers an order with the remote payment service and
// returns the provider-side payment identifier. Amounts are integer minor
// units. Capture and settlement are outside this service.
type PaymentProvider interface {
	CreateSession(ctx context.Context, orderID string, amountMinor int64) (string, error)
}

// Request is one checkout attempt for a user's current cart.
type Request struct {
	UserID    string
	CountryID string
	// CouponCodes maps storeID to the single coupon code applied to that
	// store's group. At most one coupon applies per group.
	CouponCodes map[string]string
}

// Result is a successfully placed order with its totals breakdown.
type Result struct {
	Order  *order.Order
	Groups []ResolvedGroup
	Totals OrderTotals
}

// Service runs the checkout pipeline:
//
//	CartOpen -> PricesResolved -> CouponsApplied -> ShippingComputed -> Totaled -> OrderPlaced
//
// Each transition is one-directional. Failure at any step aborts the whole
// attempt, persists nothing, and leaves the cart open.
type Service struct {
	carts    cart.Repository
	catalog  catalog.Repository
	coupons  coupon.Validator
	shipping shipping.Resolver
	orders   order.Repository
	payments PaymentProvider
	now      func() time.Time
}

// NewService creates a checkout Service. payments may be nil, in which case
// no payment session is created on placement.
func NewService(
	carts cart.Repository,
	cat catalog.Repository,
	coupons coupon.Validator,
	ship shipping.Resolver,
	orders order.Repository,
	payments PaymentProvider,
) *Service {
	return &Service{
		carts:    carts,
		catalog:  cat,
		coupons:  coupons,
		shipping: ship,
		orders:   orders,
		payments: payments,
		now:      time.Now,
	}
}

// PlaceOrder prices the user's cart, persists the resulting order, and
// registers it with the payment provider.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	items, err := s.carts.ListByUser(ctx, req.UserID)
	if err != nil {
		return nil, &AggregationFailedError{cause: errors.Wrap(err, "load cart")}
	}

	groups, totals, err := s.Quote(ctx, items, req.CountryID, req.CouponCodes)
	if err != nil {
		return nil, err
	}

	o := &order.Order{
		ID:           uuid.New().String(),
		UserID:       req.UserID,
		CountryID:    req.CountryID,
		Items:        freezeItems(groups),
		SubTotal:     totals.SubTotal,
		ShippingFees: totals.ShippingFees,
		Discount:     totals.Discount,
		Total:        totals.Total,
		CreatedAt:    s.now(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		// The transactional inventory re-check can still fail here; that
		// error kind passes through so the caller sees the real reason.
		var unavail *catalog.UnavailableError
		if errors.As(err, &unavail) {
			return nil, unavail
		}
		return nil, &AggregationFailedError{cause: errors.Wrap(err, "persist order")}
	}

	if s.payments != nil {
		ref, err := s.payments.CreateSession(ctx, o.ID, toMinorUnits(totals.Total))
		if err != nil {
			return nil, &AggregationFailedError{cause: errors.Wrap(err, "create payment session")}
		}
		o.PaymentRef = ref
		if err := s.orders.SetPaymentRef(ctx, o.ID, ref); err != nil {
			return nil, &AggregationFailedError{cause: errors.Wrap(err, "record payment ref")}
		}
	}

	return &Result{Order: o, Groups: groups, Totals: totals}, nil
}

// Quote resolves the full pricing breakdown for a set of cart items without
// persisting anything. Groups are resolved concurrently: they are read-only
// and share no mutable state, and Totalize is the join barrier.
func (s *Service) Quote(
	ctx context.Context,
	items []cart.LineItem,
	countryID string,
	couponCodes map[string]string,
) ([]ResolvedGroup, OrderTotals, error) {
	raw, err := cart.Group(items)
	if err != nil {
		return nil, OrderTotals{}, err
	}

	now := s.now()
	resolved := make([]ResolvedGroup, len(raw))

	g, gctx := errgroup.WithContext(ctx)
	for i, sg := range raw {
		g.Go(func() error {
			rg, err := s.resolveGroup(gctx, sg, countryID, couponCodes[sg.StoreID], now)
			if err != nil {
				return err
			}
			resolved[i] = *rg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, OrderTotals{}, s.classify(err)
	}

	return resolved, Totalize(resolved), nil
}

// resolveGroup prices one store group: catalog re-resolution (cart snapshots
// are never billed), availability check, coupon validation, shipping fee.
func (s *Service) resolveGroup(
	ctx context.Context,
	sg cart.StoreGroup,
	countryID, couponCode string,
	now time.Time,
) (*ResolvedGroup, error) {
	rg := &ResolvedGroup{StoreID: sg.StoreID, Items: make([]PricedItem, len(sg.Items))}

	for i, item := range sg.Items {
		quote, err := s.catalog.ResolvePrice(ctx, item.VariantID, item.SizeID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, &catalog.UnavailableError{
					VariantID: item.VariantID,
					SizeID:    item.SizeID,
					Requested: item.Quantity,
					Available: -1,
				}
			}
			return nil, errors.Wrapf(err, "resolve price %s/%s", item.VariantID, item.SizeID)
		}
		if quote.AvailableQuantity < item.Quantity {
			return nil, &catalog.UnavailableError{
				VariantID: item.VariantID,
				SizeID:    item.SizeID,
				Requested: item.Quantity,
				Available: quote.AvailableQuantity,
			}
		}

		rg.Items[i] = PricedItem{
			VariantID: item.VariantID,
			SizeID:    item.SizeID,
			Quantity:  item.Quantity,
			UnitPrice: quote.EffectivePrice(),
		}
	}

	if couponCode != "" {
		c, err := s.coupons.Validate(ctx, couponCode, sg.StoreID, now)
		if err != nil {
			return nil, err
		}
		if err := rg.AttachCoupon(c); err != nil {
			return nil, err
		}
	}

	rule, err := s.shipping.Resolve(ctx, sg.StoreID, countryID)
	if err != nil {
		return nil, err
	}
	rg.ShippingFee = shipping.ComputeFee(rule, countryID, rg.Subtotal())

	return rg, nil
}

// classify passes known domain error kinds through untouched and wraps
// everything else as an aggregation failure.
func (s *Service) classify(err error) error {
	var (
		unavail *catalog.UnavailableError
		invQty  *cart.InvalidQuantityError
	)
	switch {
	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, shipping.ErrNoRule),
		errors.As(err, &unavail),
		errors.As(err, &invQty):
		return err
	}
	return &AggregationFailedError{cause: err}
}

func freezeItems(groups []ResolvedGroup) []order.Item {
	var items []order.Item
	for i := range groups {
		g := &groups[i]
		for _, it := range g.Items {
			items = append(items, order.Item{
				StoreID:    g.StoreID,
				VariantID:  it.VariantID,
				SizeID:     it.SizeID,
				Quantity:   it.Quantity,
				UnitPrice:  it.UnitPrice,
				CouponCode: g.CouponCode(),
			})
		}
	}
	return items
}

// toMinorUnits converts a 2-decimal amount to integer minor units for the
// payment provider.
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).IntPart()
}
