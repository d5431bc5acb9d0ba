package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velesto/storefront/internal/domain/catalog"
	"github.com/velesto/storefront/internal/domain/order"
)

const (
	// Availability is re-checked under a row lock at commit time. This is the
	// optimistic counterpart to the checkout-time read: no reservation is
	// held between the two.
	lockVariantSQL = `SELECT quantity FROM product_variants
		WHERE variant_id = $1 AND size_id = $2 FOR UPDATE`

	insertOrderSQL = `INSERT INTO orders (id, user_id, country_id, sub_total, shipping_fees, discount, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, store_id, variant_id, size_id, quantity, unit_price, coupon_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`

	getOrderSQL = `SELECT id, user_id, country_id, sub_total, shipping_fees, discount, total, payment_ref, created_at
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT store_id, variant_id, size_id, quantity, unit_price, coupon_code
		FROM order_items WHERE order_id = $1`

	setPaymentRefSQL = `UPDATE orders SET payment_ref = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its frozen items, re-checks inventory under
// row locks, and clears the user's cart, all in one transaction. On any
// shortfall it returns catalog.UnavailableError and nothing is persisted.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, item := range o.Items {
		var available int
		err := tx.QueryRow(ctx, lockVariantSQL, item.VariantID, item.SizeID).Scan(&available)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &catalog.UnavailableError{
					VariantID: item.VariantID,
					SizeID:    item.SizeID,
					Requested: item.Quantity,
					Available: -1,
				}
			}
			return fmt.Errorf("checking availability %s/%s: %w", item.VariantID, item.SizeID, err)
		}
		if available < item.Quantity {
			return &catalog.UnavailableError{
				VariantID: item.VariantID,
				SizeID:    item.SizeID,
				Requested: item.Quantity,
				Available: available,
			}
		}
	}

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, o.CountryID,
		o.SubTotal, o.ShippingFees, o.Discount, o.Total,
	)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			o.ID, item.StoreID, item.VariantID, item.SizeID,
			item.Quantity, item.UnitPrice, item.CouponCode,
		)
		if err != nil {
			return fmt.Errorf("inserting order item %s/%s: %w", item.VariantID, item.SizeID, err)
		}
	}

	if _, err := tx.Exec(ctx, clearCartSQL, o.UserID); err != nil {
		return fmt.Errorf("clearing cart for user %s: %w", o.UserID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order and its frozen items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.UserID, &o.CountryID,
		&o.SubTotal, &o.ShippingFees, &o.Discount, &o.Total,
		&o.PaymentRef, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &order.NotFoundError{Kind: "order", ID: id}
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}
	return &o, nil
}

// SetPaymentRef records the provider-side payment identifier for an order.
func (r *OrderRepository) SetPaymentRef(ctx context.Context, orderID, ref string) error {
	tag, err := r.pool.Exec(ctx, setPaymentRefSQL, orderID, ref)
	if err != nil {
		return fmt.Errorf("setting payment ref for order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return &order.NotFoundError{Kind: "order", ID: orderID}
	}
	return nil
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var item order.Item
	err := row.Scan(
		&item.StoreID, &item.VariantID, &item.SizeID,
		&item.Quantity, &item.UnitPrice, &item.CouponCode,
	)
	return item, err
}
