package repo

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresStore struct {
	db    *sql.DB
	repos Repositories
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, repos: newRepositories(db)}
}

func newRepositories(q DBTX) Repositories {
	return Repositories{
		Orders:    NewPostgresOrderRepository(q),
		Products:  NewPostgresProductRepository(q),
		Users:     NewPostgresUserRepository(q),
		Carts:     NewPostgresCartRepository(q),
		Downloads: NewPostgresDownloadLinkRepository(q),
		Audit:     NewPostgresAuditLogRepository(q),
	}
}

func (s *PostgresStore) Repos() Repositories {
	return s.repos
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(newRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
