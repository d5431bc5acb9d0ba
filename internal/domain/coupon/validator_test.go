package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepo keys coupons by (storeID, code) the same way the real table does.
type mockRepo struct {
	coupons map[[2]string]*Coupon
	err     error
}

func (m *mockRepo) FindByCode(_ context.Context, code, storeID string) (*Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.coupons[[2]string{storeID, code}]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockRepo) Upsert(_ context.Context, c *Coupon) error {
	m.coupons[[2]string{c.StoreID, c.Code}] = c
	return nil
}

func newMockRepo(coupons ...*Coupon) *mockRepo {
	m := &mockRepo{coupons: make(map[[2]string]*Coupon)}
	for _, c := range coupons {
		m.coupons[[2]string{c.StoreID, c.Code}] = c
	}
	return m
}

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func activeCoupon(t *testing.T, code, storeID string, percent int64) *Coupon {
	t.Helper()
	c, err := New(code, storeID, decimal.NewFromInt(percent), windowStart, windowEnd)
	require.NoError(t, err)
	return c
}

func TestValidate_Success(t *testing.T) {
	v := NewRepoValidator(newMockRepo(activeCoupon(t, "SAVE10", "s1", 10)))

	c, err := v.Validate(context.Background(), "SAVE10", "s1", testNow)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code)
	assert.Equal(t, "s1", c.StoreID)
}

func TestValidate_CaseInsensitiveLookup(t *testing.T) {
	// The repo only holds the canonical upper-case form; any casing the
	// shopper types must resolve to the same single row.
	v := NewRepoValidator(newMockRepo(activeCoupon(t, "SAVE10", "s1", 10)))

	for _, typed := range []string{"save10", "Save10", "SAVE10", " save10 "} {
		c, err := v.Validate(context.Background(), typed, "s1", testNow)
		require.NoError(t, err, "code %q", typed)
		assert.Equal(t, "SAVE10", c.Code)
	}
}

func TestValidate_UnknownCode(t *testing.T) {
	v := NewRepoValidator(newMockRepo())

	_, err := v.Validate(context.Background(), "NOPE", "s1", testNow)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidate_CodeScopedToStore(t *testing.T) {
	// Same code string in two stores resolves independently per store.
	v := NewRepoValidator(newMockRepo(
		activeCoupon(t, "SAVE10", "s1", 10),
		activeCoupon(t, "SAVE10", "s2", 25),
	))

	c1, err := v.Validate(context.Background(), "SAVE10", "s1", testNow)
	require.NoError(t, err)
	assert.True(t, c1.DiscountPercent.Equal(decimal.NewFromInt(10)))

	c2, err := v.Validate(context.Background(), "SAVE10", "s2", testNow)
	require.NoError(t, err)
	assert.True(t, c2.DiscountPercent.Equal(decimal.NewFromInt(25)))

	// The code only existing elsewhere is indistinguishable from no coupon.
	_, err = v.Validate(context.Background(), "SAVE10", "s3", testNow)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidate_Expired(t *testing.T) {
	expired, err := New("OLD", "s1", decimal.NewFromInt(10),
		testNow.AddDate(-1, 0, 0), testNow.Add(-time.Hour))
	require.NoError(t, err)

	v := NewRepoValidator(newMockRepo(expired))

	_, err = v.Validate(context.Background(), "OLD", "s1", testNow)
	require.ErrorIs(t, err, ErrExpired)
}

func TestValidate_NotYetActive(t *testing.T) {
	future, err := New("SOON", "s1", decimal.NewFromInt(10),
		testNow.Add(time.Hour), testNow.AddDate(1, 0, 0))
	require.NoError(t, err)

	v := NewRepoValidator(newMockRepo(future))

	_, err = v.Validate(context.Background(), "SOON", "s1", testNow)
	require.ErrorIs(t, err, ErrExpired)
}

func TestValidate_RepoError(t *testing.T) {
	v := NewRepoValidator(&mockRepo{err: errors.New("connection refused")})

	_, err := v.Validate(context.Background(), "SAVE10", "s1", testNow)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
