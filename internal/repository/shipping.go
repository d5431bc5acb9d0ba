package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velesto/storefront/internal/domain/shipping"
)

const (
	// Exact country match wins over the store's wildcard rule.
	resolveRuleSQL = `SELECT store_id, country_id, base_fee, free_shipping_threshold, free_shipping_countries
		FROM shipping_rules
		WHERE store_id = $1 AND country_id IN ($2, '*')
		ORDER BY (country_id = $2) DESC
		LIMIT 1`

	upsertRuleSQL = `INSERT INTO shipping_rules (store_id, country_id, base_fee, free_shipping_threshold, free_shipping_countries)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (store_id, country_id) DO UPDATE SET
			base_fee = EXCLUDED.base_fee,
			free_shipping_threshold = EXCLUDED.free_shipping_threshold,
			free_shipping_countries = EXCLUDED.free_shipping_countries`
)

var _ shipping.Resolver = (*ShippingRepository)(nil)

// ShippingRepository implements shipping.Resolver backed by PostgreSQL.
type ShippingRepository struct {
	pool *pgxpool.Pool
}

// NewShippingRepository returns a ShippingRepository that uses the given pool.
func NewShippingRepository(pool *pgxpool.Pool) *ShippingRepository {
	return &ShippingRepository{pool: pool}
}

// Resolve returns the store's rule for the destination country, falling back
// to the store's wildcard rule. Returns shipping.ErrNoRule when neither
// exists; checkout must block rather than assume free shipping.
func (r *ShippingRepository) Resolve(ctx context.Context, storeID, countryID string) (*shipping.Rule, error) {
	rows, err := r.pool.Query(ctx, resolveRuleSQL, storeID, countryID)
	if err != nil {
		return nil, fmt.Errorf("resolving shipping rule %s/%s: %w", storeID, countryID, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipping.ErrNoRule
		}
		return nil, fmt.Errorf("resolving shipping rule %s/%s: %w", storeID, countryID, err)
	}
	return &rule, nil
}

// Upsert inserts or replaces a store's rule for one country (or the '*'
// wildcard).
func (r *ShippingRepository) Upsert(ctx context.Context, rule *shipping.Rule) error {
	_, err := r.pool.Exec(ctx, upsertRuleSQL,
		rule.StoreID, rule.CountryID, rule.BaseFee,
		rule.FreeShippingThreshold, rule.FreeShippingCountries,
	)
	if err != nil {
		return fmt.Errorf("upserting shipping rule %s/%s: %w", rule.StoreID, rule.CountryID, err)
	}
	return nil
}

func scanRule(row pgx.CollectableRow) (shipping.Rule, error) {
	var (
		rule      shipping.Rule
		threshold *decimal.Decimal
	)
	err := row.Scan(
		&rule.StoreID, &rule.CountryID, &rule.BaseFee,
		&threshold, &rule.FreeShippingCountries,
	)
	rule.FreeShippingThreshold = threshold
	return rule, err
}
