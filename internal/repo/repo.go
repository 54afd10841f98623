package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/marketplace-service/internal/model"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLinkUnavailable   = errors.New("download link unavailable")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.Order, error)
	List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
	Update(ctx context.Context, order *model.Order) error
	Delete(ctx context.Context, id string) error
}

type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*model.Product, error)
	AdjustStock(ctx context.Context, id string, delta int) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type CartRepository interface {
	Get(ctx context.Context, userID string) (*model.Cart, error)
	AddItem(ctx context.Context, userID string, item model.CartItem) error
	RemoveItem(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

type DownloadLinkRepository interface {
	Create(ctx context.Context, link *model.DownloadLink) error
	GetByToken(ctx context.Context, token string) (*model.DownloadLink, error)
	ListByOrder(ctx context.Context, orderID string) ([]model.DownloadLink, error)
	RecordDownload(ctx context.Context, id string, at time.Time) error
	RevokeByOrder(ctx context.Context, orderID string) error
}

type AuditLogRepository interface {
	Append(ctx context.Context, entry *model.PaymentAuditLog) error
	ListByOrder(ctx context.Context, orderID string) ([]model.PaymentAuditLog, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Orders    OrderRepository
	Products  ProductRepository
	Users     UserRepository
	Carts     CartRepository
	Downloads DownloadLinkRepository
	Audit     AuditLogRepository
}

type Store interface {
	Repos() Repositories
	// WithinTx runs fn against transaction-bound repositories, committing
	// when fn returns nil and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(Repositories) error) error
}

type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func expectAffected(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
