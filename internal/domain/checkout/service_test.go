package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velesto/storefront/internal/domain/cart"
	"github.com/velesto/storefront/internal/domain/catalog"
	"github.com/velesto/storefront/internal/domain/coupon"
	"github.com/velesto/storefront/internal/domain/order"
	"github.com/velesto/storefront/internal/domain/shipping"
)

var fixedNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

// --- Mock implementations ---

type mockCartRepo struct {
	items []cart.LineItem
	err   error
}

func (m *mockCartRepo) ListByUser(_ context.Context, _ string) ([]cart.LineItem, error) {
	return m.items, m.err
}
func (m *mockCartRepo) Add(_ context.Context, _ string, _ cart.LineItem) error { return nil }
func (m *mockCartRepo) UpdateQuantity(_ context.Context, _, _ string, _ int) error {
	return nil
}
func (m *mockCartRepo) Remove(_ context.Context, _, _ string) error { return nil }

type mockCatalogRepo struct {
	quotes map[string]catalog.PriceQuote
	err    error
}

func (m *mockCatalogRepo) List(_ context.Context) ([]catalog.Variant, error) { return nil, nil }

func (m *mockCatalogRepo) Get(_ context.Context, _, _ string) (*catalog.Variant, error) {
	return nil, catalog.ErrNotFound
}

func (m *mockCatalogRepo) ResolvePrice(_ context.Context, variantID, sizeID string) (catalog.PriceQuote, error) {
	if m.err != nil {
		return catalog.PriceQuote{}, m.err
	}
	q, ok := m.quotes[variantID+"/"+sizeID]
	if !ok {
		return catalog.PriceQuote{}, catalog.ErrNotFound
	}
	return q, nil
}

type mockValidator struct {
	coupons map[[2]string]*coupon.Coupon
	err     error
}

func (m *mockValidator) Validate(_ context.Context, code, storeID string, now time.Time) (*coupon.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.coupons[[2]string{storeID, code}]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	if !c.ActiveAt(now) {
		return nil, coupon.ErrExpired
	}
	return c, nil
}

type mockResolver struct {
	rules map[string]*shipping.Rule
	err   error
}

func (m *mockResolver) Resolve(_ context.Context, storeID, _ string) (*shipping.Rule, error) {
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.rules[storeID]
	if !ok {
		return nil, shipping.ErrNoRule
	}
	return r, nil
}

func (m *mockResolver) Upsert(_ context.Context, _ *shipping.Rule) error { return nil }

type mockOrderRepo struct {
	lastOrder  *order.Order
	lastRef    string
	createErr  error
	refErr     error
	createdCnt int
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.lastOrder = o
	m.createdCnt++
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	return nil, &order.NotFoundError{Kind: "order", ID: id}
}

func (m *mockOrderRepo) SetPaymentRef(_ context.Context, _, ref string) error {
	if m.refErr != nil {
		return m.refErr
	}
	m.lastRef = ref
	return nil
}

type mockPayments struct {
	ref string
	err error
}

func (m *mockPayments) CreateSession(_ context.Context, _ string, _ int64) (string, error) {
	return m.ref, m.err
}

// --- Helpers ---

func quote(price string, available int) catalog.PriceQuote {
	return catalog.PriceQuote{
		UnitPrice:         decimal.RequireFromString(price),
		DiscountPercent:   decimal.Zero,
		AvailableQuantity: available,
	}
}

func lineItem(storeID, variantID string, qty int) cart.LineItem {
	return cart.LineItem{
		ID:        variantID + "-item",
		VariantID: variantID,
		SizeID:    "m",
		StoreID:   storeID,
		Quantity:  qty,
	}
}

func activeTestCoupon(t *testing.T, code, storeID, percent string) *coupon.Coupon {
	t.Helper()
	c, err := coupon.New(code, storeID, decimal.RequireFromString(percent),
		fixedNow.AddDate(0, -1, 0), fixedNow.AddDate(0, 1, 0))
	require.NoError(t, err)
	return c
}

func flatRate(storeID, fee string) *shipping.Rule {
	return &shipping.Rule{
		StoreID:   storeID,
		CountryID: shipping.WildcardCountry,
		BaseFee:   decimal.RequireFromString(fee),
	}
}

type testDeps struct {
	carts    *mockCartRepo
	catalog  *mockCatalogRepo
	coupons  *mockValidator
	shipping *mockResolver
	orders   *mockOrderRepo
	payments *mockPayments
}

func newTestService(d testDeps) *Service {
	if d.carts == nil {
		d.carts = &mockCartRepo{}
	}
	if d.catalog == nil {
		d.catalog = &mockCatalogRepo{}
	}
	if d.coupons == nil {
		d.coupons = &mockValidator{}
	}
	if d.shipping == nil {
		d.shipping = &mockResolver{}
	}
	if d.orders == nil {
		d.orders = &mockOrderRepo{}
	}

	var payments PaymentProvider
	if d.payments != nil {
		payments = d.payments
	}

	svc := NewService(d.carts, d.catalog, d.coupons, d.shipping, d.orders, payments)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

// --- Tests ---

func TestQuote_EmptyCart(t *testing.T) {
	svc := newTestService(testDeps{})

	_, _, err := svc.Quote(context.Background(), nil, "US", nil)
	require.ErrorIs(t, err, cart.ErrEmptyCart)
}

func TestQuote_TwoStores(t *testing.T) {
	svc := newTestService(testDeps{
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": quote("20.00", 10),
			"v2/m": quote("50.00", 10),
		}},
		coupons: &mockValidator{coupons: map[[2]string]*coupon.Coupon{
			{"s1", "SAVE10"}: activeTestCoupon(t, "SAVE10", "s1", "10"),
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{
			"s1": flatRate("s1", "5.00"),
			"s2": flatRate("s2", "0"),
		}},
	})

	items := []cart.LineItem{
		lineItem("s1", "v1", 2),
		lineItem("s2", "v2", 1),
	}
	groups, totals, err := svc.Quote(context.Background(), items, "US", map[string]string{"s1": "SAVE10"})
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Equal(t, "s1", groups[0].StoreID)
	assert.Equal(t, "s2", groups[1].StoreID)
	assert.Equal(t, "SAVE10", groups[0].CouponCode())
	assert.Empty(t, groups[1].CouponCode())

	assert.True(t, totals.SubTotal.Equal(decimal.RequireFromString("90.00")), "subTotal %s", totals.SubTotal)
	assert.True(t, totals.ShippingFees.Equal(decimal.RequireFromString("5.00")), "shipping %s", totals.ShippingFees)
	assert.True(t, totals.Discount.Equal(decimal.RequireFromString("4.00")), "discount %s", totals.Discount)
	assert.True(t, totals.Total.Equal(decimal.RequireFromString("91.00")), "total %s", totals.Total)
}

func TestQuote_BillsFreshPriceNotSnapshot(t *testing.T) {
	svc := newTestService(testDeps{
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": quote("25.00", 10),
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{"s1": flatRate("s1", "0")}},
	})

	// The cart snapshot says 20 but the catalog now says 25.
	stale := lineItem("s1", "v1", 1)
	stale.UnitPrice = decimal.RequireFromString("20.00")

	groups, totals, err := svc.Quote(context.Background(), []cart.LineItem{stale}, "US", nil)
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.True(t, groups[0].Items[0].UnitPrice.Equal(decimal.RequireFromString("25.00")))
	assert.True(t, totals.SubTotal.Equal(decimal.RequireFromString("25.00")))
}

func TestQuote_AppliesCatalogDiscount(t *testing.T) {
	svc := newTestService(testDeps{
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": {
				UnitPrice:         decimal.RequireFromString("45.00"),
				DiscountPercent:   decimal.RequireFromString("10"),
				AvailableQuantity: 5,
			},
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{"s1": flatRate("s1", "0")}},
	})

	groups, _, err := svc.Quote(context.Background(), []cart.LineItem{lineItem("s1", "v1", 1)}, "US", nil)
	require.NoError(t, err)
	assert.True(t, groups[0].Items[0].UnitPrice.Equal(decimal.RequireFromString("40.50")))
}

func TestQuote_VariantGone(t *testing.T) {
	svc := newTestService(testDeps{
		catalog:  &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{"s1": flatRate("s1", "0")}},
	})

	_, _, err := svc.Quote(context.Background(), []cart.LineItem{lineItem("s1", "v1", 1)}, "US", nil)

	var unavail *catalog.UnavailableError
	require.ErrorAs(t, err, &unavail)
	assert.Equal(t, "v1", unavail.VariantID)
	assert.Equal(t, -1, unavail.Available)
}

func TestQuote_InsufficientQuantity(t *testing.T) {
	svc := newTestService(testDeps{
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": quote("20.00", 1),
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{"s1": flatRate("s1", "0")}},
	})

	_, _, err := svc.Quote(context.Background(), []cart.LineItem{lineItem("s1", "v1", 3)}, "US", nil)

	var unavail *catalog.UnavailableError
	require.ErrorAs(t, err, &unavail)
	assert.Equal(t, 3, unavail.Requested)
	assert.Equal(t, 1, unavail.Available)
}

func TestQuote_CouponFromOtherStore(t *testing.T) {
	// SAVE10 only exists in s2's namespace; applying it to s1 fails the whole
	// checkout rather than borrowing the other store's coupon.
	svc := newTestService(testDeps{
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": quote("20.00", 10),
		}},
		coupons: &mockValidator{coupons: map[[2]string]*coupon.Coupon{
			{"s2", "SAVE10"}: activeTestCoupon(t, "SAVE10", "s2", "10"),
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{"s1": flatRate("s1", "0")}},
	})

	_, _, err := svc.Quote(context.Background(), []cart.LineItem{lineItem("s1", "v1", 1)}, "US",
		map[string]string{"s1": "SAVE10"})
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestQuote_ExpiredCoupon(t *testing.T) {
	expired, err := coupon.New("OLD", "s1", decimal.RequireFromString("10"),
		fixedNow.AddDate(-1, 0, 0), fixedNow.Add(-time.Hour))
	require.NoError(t, err)

	svc := newTestService(testDeps{
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": quote("20.00", 10),
		}},
		coupons: &mockValidator{coupons: map[[2]string]*coupon.Coupon{
			{"s1", "OLD"}: expired,
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{"s1": flatRate("s1", "0")}},
	})

	_, _, err = svc.Quote(context.Background(), []cart.LineItem{lineItem("s1", "v1", 1)}, "US",
		map[string]string{"s1": "OLD"})
	require.ErrorIs(t, err, coupon.ErrExpired)
}

func TestQuote_NoShippingRuleBlocks(t *testing.T) {
	svc := newTestService(testDeps{
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": quote("20.00", 10),
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{}},
	})

	_, _, err := svc.Quote(context.Background(), []cart.LineItem{lineItem("s1", "v1", 1)}, "US", nil)
	require.ErrorIs(t, err, shipping.ErrNoRule)
}

func TestQuote_InfrastructureFailureWrapped(t *testing.T) {
	cause := errors.New("connection reset")
	svc := newTestService(testDeps{
		catalog:  &mockCatalogRepo{err: cause},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{"s1": flatRate("s1", "0")}},
	})

	_, _, err := svc.Quote(context.Background(), []cart.LineItem{lineItem("s1", "v1", 1)}, "US", nil)

	var agg *AggregationFailedError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, "checkout aggregation failed", agg.Error())
	assert.ErrorIs(t, err, cause)
}

func TestPlaceOrder_Success(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(testDeps{
		carts: &mockCartRepo{items: []cart.LineItem{lineItem("s1", "v1", 2)}},
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": quote("20.00", 10),
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{"s1": flatRate("s1", "5.00")}},
		orders:   orders,
	})

	res, err := svc.PlaceOrder(context.Background(), Request{UserID: "u1", CountryID: "US"})
	require.NoError(t, err)

	require.NotNil(t, res.Order)
	assert.NotEmpty(t, res.Order.ID)
	assert.Equal(t, "u1", res.Order.UserID)
	assert.Equal(t, fixedNow, res.Order.CreatedAt)
	assert.True(t, res.Order.Total.Equal(decimal.RequireFromString("45.00")))
	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, "s1", res.Order.Items[0].StoreID)
	assert.Equal(t, 2, res.Order.Items[0].Quantity)

	assert.Equal(t, 1, orders.createdCnt)
}

func TestPlaceOrder_FailureLeavesCartOpen(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(testDeps{
		carts: &mockCartRepo{items: []cart.LineItem{
			lineItem("s1", "v1", 1),
			lineItem("s2", "v2", 1),
		}},
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": quote("20.00", 10),
			"v2/m": quote("50.00", 0),
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{
			"s1": flatRate("s1", "0"),
			"s2": flatRate("s2", "0"),
		}},
		orders: orders,
	})

	_, err := svc.PlaceOrder(context.Background(), Request{UserID: "u1", CountryID: "US"})

	var unavail *catalog.UnavailableError
	require.ErrorAs(t, err, &unavail)
	// One failing group aborts the whole order; nothing is persisted.
	assert.Equal(t, 0, orders.createdCnt)
}

func TestPlaceOrder_TransactionalAvailabilityFailure(t *testing.T) {
	// The resolve-time check passed but the order transaction found the stock
	// taken in the meantime.
	svc := newTestService(testDeps{
		carts: &mockCartRepo{items: []cart.LineItem{lineItem("s1", "v1", 2)}},
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": quote("20.00", 10),
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{"s1": flatRate("s1", "0")}},
		orders: &mockOrderRepo{createErr: &catalog.UnavailableError{
			VariantID: "v1", SizeID: "m", Requested: 2, Available: 1,
		}},
	})

	_, err := svc.PlaceOrder(context.Background(), Request{UserID: "u1", CountryID: "US"})

	var unavail *catalog.UnavailableError
	require.ErrorAs(t, err, &unavail)
	assert.Equal(t, 1, unavail.Available)
}

func TestPlaceOrder_PaymentSession(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(testDeps{
		carts: &mockCartRepo{items: []cart.LineItem{lineItem("s1", "v1", 1)}},
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": quote("20.00", 10),
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{"s1": flatRate("s1", "0")}},
		orders:   orders,
		payments: &mockPayments{ref: "pi_123"},
	})

	res, err := svc.PlaceOrder(context.Background(), Request{UserID: "u1", CountryID: "US"})
	require.NoError(t, err)

	assert.Equal(t, "pi_123", res.Order.PaymentRef)
	assert.Equal(t, "pi_123", orders.lastRef)
}

func TestPlaceOrder_PaymentFailureWrapped(t *testing.T) {
	svc := newTestService(testDeps{
		carts: &mockCartRepo{items: []cart.LineItem{lineItem("s1", "v1", 1)}},
		catalog: &mockCatalogRepo{quotes: map[string]catalog.PriceQuote{
			"v1/m": quote("20.00", 10),
		}},
		shipping: &mockResolver{rules: map[string]*shipping.Rule{"s1": flatRate("s1", "0")}},
		payments: &mockPayments{err: errors.New("gateway timeout")},
	})

	_, err := svc.PlaceOrder(context.Background(), Request{UserID: "u1", CountryID: "US"})

	var agg *AggregationFailedError
	require.ErrorAs(t, err, &agg)
}
