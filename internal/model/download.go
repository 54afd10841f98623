package model

import "time"

// DownloadLink grants its owner a bounded number of downloads of a digital
// product until it expires or is revoked.
type DownloadLink struct {
	ID               string     `json:"id"`
	Token            string     `json:"token"`
	OrderID          string     `json:"order_id"`
	ProductID        string     `json:"product_id"`
	UserID           string     `json:"user_id"`
	ExpiresAt        time.Time  `json:"expires_at"`
	DownloadCount    int        `json:"download_count"`
	MaxDownloads     int        `json:"max_downloads"`
	Revoked          bool       `json:"revoked"`
	LastDownloadedAt *time.Time `json:"last_downloaded_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (l *DownloadLink) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l *DownloadLink) Exhausted() bool {
	return l.DownloadCount >= l.MaxDownloads
}
