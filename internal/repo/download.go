package repo

import (
	"context"
	"time"

	"github.com/marketplace-service/internal/model"
)

const downloadColumns = `id, token, order_id, product_id, user_id, expires_at, download_count,
	max_downloads, revoked, last_downloaded_at, created_at`

type PostgresDownloadLinkRepository struct {
	db DBTX
}

func NewPostgresDownloadLinkRepository(db DBTX) *PostgresDownloadLinkRepository {
	return &PostgresDownloadLinkRepository{db: db}
}

func (r *PostgresDownloadLinkRepository) Create(ctx context.Context, link *model.DownloadLink) error {
	query := `INSERT INTO download_links (` + downloadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, query,
		link.ID, link.Token, link.OrderID, link.ProductID, link.UserID, link.ExpiresAt,
		link.DownloadCount, link.MaxDownloads, link.Revoked, link.LastDownloadedAt, link.CreatedAt,
	)
	return err
}

func (r *PostgresDownloadLinkRepository) GetByToken(ctx context.Context, token string) (*model.DownloadLink, error) {
	query := `SELECT ` + downloadColumns + ` FROM download_links WHERE token = $1`
	return scanDownloadLink(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresDownloadLinkRepository) ListByOrder(ctx context.Context, orderID string) ([]model.DownloadLink, error) {
	query := `SELECT ` + downloadColumns + ` FROM download_links WHERE order_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []model.DownloadLink
	for rows.Next() {
		link, err := scanDownloadLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

// RecordDownload increments the counter only while the link is still usable,
// so concurrent redemptions cannot exceed max_downloads.
func (r *PostgresDownloadLinkRepository) RecordDownload(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE download_links SET download_count = download_count + 1, last_downloaded_at = $2
		WHERE id = $1 AND NOT revoked AND download_count < max_downloads AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrLinkUnavailable)
}

func (r *PostgresDownloadLinkRepository) RevokeByOrder(ctx context.Context, orderID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE download_links SET revoked = TRUE WHERE order_id = $1`, orderID)
	return err
}

func scanDownloadLink(row rowScanner) (*model.DownloadLink, error) {
	var l model.DownloadLink
	err := row.Scan(
		&l.ID, &l.Token, &l.OrderID, &l.ProductID, &l.UserID, &l.ExpiresAt, &l.DownloadCount,
		&l.MaxDownloads, &l.Revoked, &l.LastDownloadedAt, &l.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}
