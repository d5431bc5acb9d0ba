package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velesto/storefront/internal/domain/order"
)

const getStoreSQL = `SELECT id, name, owner_user_id FROM stores WHERE id = $1`

var _ order.StoreRepository = (*StoreRepository)(nil)

// StoreRepository provides store lookups backed by PostgreSQL.
type StoreRepository struct {
	pool *pgxpool.Pool
}

// NewStoreRepository returns a StoreRepository that uses the given pool.
func NewStoreRepository(pool *pgxpool.Pool) *StoreRepository {
	return &StoreRepository{pool: pool}
}

// GetByID returns a store by its identifier.
func (r *StoreRepository) GetByID(ctx context.Context, id string) (*order.Store, error) {
	var s order.Store
	err := r.pool.QueryRow(ctx, getStoreSQL, id).Scan(&s.ID, &s.Name, &s.OwnerUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &order.NotFoundError{Kind: "store", ID: id}
		}
		return nil, fmt.Errorf("getting store %q: %w", id, err)
	}
	return &s, nil
}
