package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velesto/storefront/internal/domain/cart"
)

const (
	listCartItemsSQL = `SELECT id, variant_id, size_id, store_id, quantity, unit_price, added_at
		FROM cart_items WHERE user_id = $1 ORDER BY added_at, id`

	addCartItemSQL = `INSERT INTO cart_items (id, user_id, variant_id, size_id, store_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	updateCartQuantitySQL = `UPDATE cart_items SET quantity = $3
		WHERE user_id = $1 AND id = $2`

	removeCartItemSQL = `DELETE FROM cart_items WHERE user_id = $1 AND id = $2`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// ListByUser returns the user's open cart items in insertion order.
func (r *CartRepository) ListByUser(ctx context.Context, userID string) ([]cart.LineItem, error) {
	rows, err := r.pool.Query(ctx, listCartItemsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart for user %s: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanLineItem)
}

// Add inserts a new line item into the user's cart.
func (r *CartRepository) Add(ctx context.Context, userID string, item cart.LineItem) error {
	_, err := r.pool.Exec(ctx, addCartItemSQL,
		item.ID, userID, item.VariantID, item.SizeID, item.StoreID,
		item.Quantity, item.UnitPrice,
	)
	if err != nil {
		return fmt.Errorf("adding cart item for user %s: %w", userID, err)
	}
	return nil
}

// UpdateQuantity changes the quantity of one line item. Quantity is the only
// mutable field while the cart is open.
func (r *CartRepository) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	tag, err := r.pool.Exec(ctx, updateCartQuantitySQL, userID, itemID, quantity)
	if err != nil {
		return fmt.Errorf("updating cart item %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Remove deletes one line item from the user's cart.
func (r *CartRepository) Remove(ctx context.Context, userID, itemID string) error {
	tag, err := r.pool.Exec(ctx, removeCartItemSQL, userID, itemID)
	if err != nil {
		return fmt.Errorf("removing cart item %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanLineItem(row pgx.CollectableRow) (cart.LineItem, error) {
	var item cart.LineItem
	err := row.Scan(
		&item.ID, &item.VariantID, &item.SizeID, &item.StoreID,
		&item.Quantity, &item.UnitPrice, &item.AddedAt,
	)
	return item, err
}
