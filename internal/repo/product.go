package repo

import (
	"context"

	"github.com/marketplace-service/internal/model"
)

type PostgresProductRepository struct {
	db DBTX
}

func NewPostgresProductRepository(db DBTX) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	query := `SELECT id, seller_id, name, price, currency, digital, file_url, stock, active, created_at
		FROM products WHERE id = $1`
	var p model.Product
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.SellerID, &p.Name, &p.Price, &p.Currency, &p.Digital, &p.FileURL, &p.Stock, &p.Active, &p.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// AdjustStock adds delta to the product stock, refusing to go below zero.
func (r *PostgresProductRepository) AdjustStock(ctx context.Context, id string, delta int) error {
	query := `UPDATE products SET stock = stock + $2 WHERE id = $1 AND stock + $2 >= 0`
	res, err := r.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrInsufficientStock)
}
