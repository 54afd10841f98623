package repo

import (
	"context"

	"github.com/marketplace-service/internal/model"
)

type PostgresCartRepository struct {
	db DBTX
}

func NewPostgresCartRepository(db DBTX) *PostgresCartRepository {
	return &PostgresCartRepository{db: db}
}

// Get never returns ErrNotFound; a user without items has an empty cart.
func (r *PostgresCartRepository) Get(ctx context.Context, userID string) (*model.Cart, error) {
	query := `SELECT product_id, quantity, added_at FROM cart_items WHERE user_id = $1 ORDER BY added_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cart := &model.Cart{UserID: userID, Items: []model.CartItem{}}
	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.AddedAt); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, rows.Err()
}

// AddItem merges the quantity into an existing line for the same product.
func (r *PostgresCartRepository) AddItem(ctx context.Context, userID string, item model.CartItem) error {
	query := `INSERT INTO cart_items (user_id, product_id, quantity, added_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`
	_, err := r.db.ExecContext(ctx, query, userID, item.ProductID, item.Quantity, item.AddedAt)
	return err
}

func (r *PostgresCartRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrNotFound)
}

func (r *PostgresCartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}
