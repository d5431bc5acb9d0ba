package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velesto/storefront/internal/domain/catalog"
)

const (
	listVariantsSQL = `SELECT variant_id, size_id, store_id, name, price, discount_percent, quantity
		FROM product_variants ORDER BY variant_id, size_id`

	getVariantSQL = `SELECT variant_id, size_id, store_id, name, price, discount_percent, quantity
		FROM product_variants WHERE variant_id = $1 AND size_id = $2`

	resolvePriceSQL = `SELECT price, discount_percent, quantity
		FROM product_variants WHERE variant_id = $1 AND size_id = $2`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// List returns all catalog variants ordered by variant and size.
func (r *CatalogRepository) List(ctx context.Context) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, listVariantsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

// Get returns a single variant/size row.
func (r *CatalogRepository) Get(ctx context.Context, variantID, sizeID string) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantSQL, variantID, sizeID)
	if err != nil {
		return nil, fmt.Errorf("getting variant %s/%s: %w", variantID, sizeID, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting variant %s/%s: %w", variantID, sizeID, err)
	}
	return &v, nil
}

// ResolvePrice returns the current authoritative price, discount, and
// availability for a variant/size.
func (r *CatalogRepository) ResolvePrice(ctx context.Context, variantID, sizeID string) (catalog.PriceQuote, error) {
	var q catalog.PriceQuote
	err := r.pool.QueryRow(ctx, resolvePriceSQL, variantID, sizeID).Scan(
		&q.UnitPrice, &q.DiscountPercent, &q.AvailableQuantity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.PriceQuote{}, catalog.ErrNotFound
		}
		return catalog.PriceQuote{}, fmt.Errorf("resolving price %s/%s: %w", variantID, sizeID, err)
	}
	return q, nil
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(
		&v.VariantID, &v.SizeID, &v.StoreID, &v.Name,
		&v.Price, &v.DiscountPercent, &v.Quantity,
	)
	return v, err
}
