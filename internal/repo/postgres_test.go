package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/marketplace-service/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderCols = []string{
	"id", "user_id", "product_id", "seller_id", "quantity", "unit_price", "amount", "currency",
	"status", "payment_status", "payment_method", "transaction_id", "failure_reason", "created_at", "updated_at", "paid_at",
}

func TestOrderGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(
			"o1", "user-1", "ebook", "seller-1", 1, "19.99", "19.99", "USD",
			"completed", "paid", "credit_card", "cc_1", "", now, now, now,
		))

	order, err := NewPostgresOrderRepository(db).GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, order.Status)
	assert.Equal(t, model.PaymentStatusPaid, order.PaymentStatus)
	assert.True(t, decimal.RequireFromString("19.99").Equal(order.Amount))
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, now, *order.PaidAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(orderCols))

	_, err = NewPostgresOrderRepository(db).GetByIDForUpdate(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderListBuildsFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs("user-1", "pending", 10, 20).
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow("o2", "user-1", "mug", "seller-2", 2, "12.50", "25.00", "USD", "pending", "unpaid", "", "", "", now, now, nil).
			AddRow("o1", "user-1", "mug", "seller-2", 1, "12.50", "12.50", "USD", "pending", "unpaid", "", "", "", now, now, nil))

	orders, err := NewPostgresOrderRepository(db).List(context.Background(), model.OrderFilter{
		UserID: "user-1",
		Status: model.OrderStatusPending,
		Limit:  10,
		Offset: 20,
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o2", orders[0].ID)
	assert.Nil(t, orders[0].PaidAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderListWithoutFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders ORDER BY created_at DESC")).
		WithArgs().
		WillReturnRows(sqlmock.NewRows(orderCols))

	orders, err := NewPostgresOrderRepository(db).List(context.Background(), model.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderUpdateAndDeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresOrderRepository(db)
	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM orders").WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Update(context.Background(), &model.Order{ID: "missing"}), ErrNotFound)
	assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductAdjustStock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresProductRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock = stock + $2 WHERE id = $1 AND stock + $2 >= 0")).
		WithArgs("mug", -2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE products").
		WithArgs("mug", -5).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.AdjustStock(context.Background(), "mug", -2))
	assert.ErrorIs(t, repo.AdjustStock(context.Background(), "mug", -5), ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByEmailIsCaseInsensitive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE lower(email) = $1")).
		WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "password_hash", "created_at"}).
			AddRow("user-1", "Jane@example.com", "Jane", "customer", "hash", time.Now()))

	user, err := NewPostgresUserRepository(db).GetByEmail(context.Background(), "JANE@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleCustomer, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartGetReturnsEmptyCart(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM cart_items WHERE user_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "added_at"}))
	mock.ExpectExec("DELETE FROM cart_items WHERE user_id = (.+) AND product_id").
		WithArgs("user-1", "mug").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresCartRepository(db)
	cart, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotNil(t, cart.Items)
	assert.Empty(t, cart.Items)

	assert.ErrorIs(t, repo.RemoveItem(context.Background(), "user-1", "mug"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadRecordDownload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Now()
	repo := NewPostgresDownloadLinkRepository(db)
	mock.ExpectExec("UPDATE download_links SET download_count = download_count \\+ 1").
		WithArgs("l1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE download_links SET download_count").
		WithArgs("l1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.RecordDownload(context.Background(), "l1", at))
	assert.ErrorIs(t, repo.RecordDownload(context.Background(), "l1", at), ErrLinkUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditAppendAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	repo := NewPostgresAuditLogRepository(db)
	mock.ExpectExec("INSERT INTO payment_audit_logs").
		WithArgs("a1", "o1", "user-1", "payment_initiated", "paypal", sqlmock.AnyArg(), []byte("{}"), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM payment_audit_logs WHERE order_id").
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "user_id", "event", "processor", "amount", "details", "created_at"}).
			AddRow("a1", "o1", "user-1", "payment_initiated", "paypal", "19.99", []byte("{}"), now).
			AddRow("a2", "o1", "user-1", "payment_succeeded", "paypal", "19.99", []byte(`{"transaction_id":"pp_1"}`), now))

	require.NoError(t, repo.Append(context.Background(), &model.PaymentAuditLog{
		ID:        "a1",
		OrderID:   "o1",
		UserID:    "user-1",
		Event:     model.AuditPaymentInitiated,
		Processor: "paypal",
		Amount:    decimal.RequireFromString("19.99"),
		CreatedAt: now,
	}))

	entries, err := repo.ListByOrder(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.AuditPaymentSucceeded, entries[1].Event)
	assert.Equal(t, "pp_1", entries[1].Details["transaction_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = NewPostgresStore(db).WithinTx(context.Background(), func(r Repositories) error {
		return r.Products.AdjustStock(context.Background(), "mug", -1)
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = NewPostgresStore(db).WithinTx(context.Background(), func(r Repositories) error {
		return r.Products.AdjustStock(context.Background(), "mug", -1)
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxReportsRollbackFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection lost"))

	err = NewPostgresStore(db).WithinTx(context.Background(), func(Repositories) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "connection lost")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsAppliesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"m/002_orders.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS orders (id TEXT)")},
		"m/001_init.sql":   {Data: []byte("CREATE TABLE IF NOT EXISTS users (id TEXT)")},
		"m/README.md":      {Data: []byte("not sql")},
	}
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS users")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS orders")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, RunMigrations(db, fsys, "m"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := Migrations.ReadDir("migrations")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"001_init.sql", "002_orders.sql", "003_payments.sql"}, names)
}
