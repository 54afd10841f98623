package repo

import (
	"context"
	"encoding/json"

	"github.com/marketplace-service/internal/model"
)

// PostgresAuditLogRepository only ever inserts; there is no update or delete path.
type PostgresAuditLogRepository struct {
	db DBTX
}

func NewPostgresAuditLogRepository(db DBTX) *PostgresAuditLogRepository {
	return &PostgresAuditLogRepository{db: db}
}

func (r *PostgresAuditLogRepository) Append(ctx context.Context, entry *model.PaymentAuditLog) error {
	details := []byte("{}")
	if len(entry.Details) > 0 {
		var err error
		if details, err = json.Marshal(entry.Details); err != nil {
			return err
		}
	}
	query := `INSERT INTO payment_audit_logs (id, order_id, user_id, event, processor, amount, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.OrderID, entry.UserID, entry.Event, entry.Processor, entry.Amount, details, entry.CreatedAt,
	)
	return err
}

func (r *PostgresAuditLogRepository) ListByOrder(ctx context.Context, orderID string) ([]model.PaymentAuditLog, error) {
	query := `SELECT id, order_id, user_id, event, processor, amount, details, created_at
		FROM payment_audit_logs WHERE order_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.PaymentAuditLog
	for rows.Next() {
		var (
			e       model.PaymentAuditLog
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.UserID, &e.Event, &e.Processor, &e.Amount, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
