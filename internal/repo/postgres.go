package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/marketplace-service/internal/model"
)

const orderColumns = `id, user_id, product_id, seller_id, quantity, unit_price, amount, currency,
	status, payment_status, payment_method, transaction_id, failure_reason, created_at, updated_at, paid_at`

type PostgresOrderRepository struct {
	db DBTX
}

func NewPostgresOrderRepository(db DBTX) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

func (r *PostgresOrderRepository) Create(ctx context.Context, order *model.Order) error {
	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := r.db.ExecContext(ctx, query,
		order.ID, order.UserID, order.ProductID, order.SellerID, order.Quantity,
		order.UnitPrice, order.Amount, order.Currency, order.Status, order.PaymentStatus,
		order.PaymentMethod, order.TransactionID, order.FailureReason,
		order.CreatedAt, order.UpdatedAt, order.PaidAt,
	)
	return err
}

func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(r.db.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate locks the row until the surrounding transaction ends.
func (r *PostgresOrderRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return scanOrder(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresOrderRepository) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (r *PostgresOrderRepository) Update(ctx context.Context, order *model.Order) error {
	query := `UPDATE orders SET quantity = $1, amount = $2, status = $3, payment_status = $4,
		payment_method = $5, transaction_id = $6, failure_reason = $7, updated_at = $8, paid_at = $9
		WHERE id = $10`
	res, err := r.db.ExecContext(ctx, query,
		order.Quantity, order.Amount, order.Status, order.PaymentStatus,
		order.PaymentMethod, order.TransactionID, order.FailureReason,
		order.UpdatedAt, order.PaidAt, order.ID,
	)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrNotFound)
}

func (r *PostgresOrderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrNotFound)
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var order model.Order
	err := row.Scan(
		&order.ID, &order.UserID, &order.ProductID, &order.SellerID, &order.Quantity,
		&order.UnitPrice, &order.Amount, &order.Currency, &order.Status, &order.PaymentStatus,
		&order.PaymentMethod, &order.TransactionID, &order.FailureReason,
		&order.CreatedAt, &order.UpdatedAt, &order.PaidAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}
