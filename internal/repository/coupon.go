package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velesto/storefront/internal/domain/coupon"
)

const (
	getCouponSQL = `SELECT code, store_id, discount_percent, start_date, end_date
		FROM coupons WHERE store_id = $1 AND code = $2`

	upsertCouponSQL = `INSERT INTO coupons (store_id, code, discount_percent, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (store_id, code) DO UPDATE SET
			discount_percent = EXCLUDED.discount_percent,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its canonical code within one store's
// namespace. Callers normalize via coupon.NormalizeCode; matching the stored
// form exactly keeps the lookup aligned with the (store_id, code) primary
// key, so at most one row can match. Returns coupon.ErrNotFound when the
// store has no such code, even if another store does.
func (r *CouponRepository) FindByCode(ctx context.Context, code, storeID string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponSQL, storeID, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q in store %s: %w", code, storeID, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q in store %s: %w", code, storeID, err)
	}
	return &c, nil
}

// Upsert inserts or replaces a coupon within its store's namespace.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		c.StoreID, c.Code, c.DiscountPercent, c.StartDate, c.EndDate,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q for store %s: %w", c.Code, c.StoreID, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(&c.Code, &c.StoreID, &c.DiscountPercent, &c.StartDate, &c.EndDate)
	return c, err
}
