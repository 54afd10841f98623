package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace-service/internal/logger"
	"github.com/marketplace-service/internal/model"
	"github.com/marketplace-service/internal/ratelimit"
	"github.com/marketplace-service/internal/repo"
	"go.uber.org/zap"
)

type DownloadService struct {
	store        repo.Store
	limiter      ratelimit.Limiter
	ttl          time.Duration
	maxDownloads int
	now          func() time.Time
}

func NewDownloadService(store repo.Store, limiter ratelimit.Limiter, ttl time.Duration, maxDownloads int) *DownloadService {
	return &DownloadService{
		store:        store,
		limiter:      limiter,
		ttl:          ttl,
		maxDownloads: maxDownloads,
		now:          time.Now,
	}
}

type Download struct {
	Link    *model.DownloadLink `json:"link"`
	FileURL string              `json:"file_url"`
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Issue creates a fresh link for order using r, so it commits or rolls back
// with the caller's transaction.
func (s *DownloadService) Issue(ctx context.Context, r repo.Repositories, order *model.Order) (*model.DownloadLink, error) {
	now := s.now()
	link := &model.DownloadLink{
		ID:           uuid.New().String(),
		Token:        newToken(),
		OrderID:      order.ID,
		ProductID:    order.ProductID,
		UserID:       order.UserID,
		ExpiresAt:    now.Add(s.ttl),
		MaxDownloads: s.maxDownloads,
		CreatedAt:    now,
	}
	if err := r.Downloads.Create(ctx, link); err != nil {
		return nil, err
	}
	entry := newAuditEntry(order, model.AuditDownloadLinkIssued, order.PaymentMethod, now, map[string]string{
		"link_id":    link.ID,
		"expires_at": link.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err := r.Audit.Append(ctx, entry); err != nil {
		return nil, err
	}
	return link, nil
}

// Redeem counts one download against the link and returns the file location.
func (s *DownloadService) Redeem(ctx context.Context, actor model.Actor, token string) (*Download, error) {
	log := logger.FromContext(ctx)
	repos := s.store.Repos()

	link, err := repos.Downloads.GetByToken(ctx, token)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if link.UserID != actor.UserID {
		return nil, ErrForbidden
	}

	now := s.now()
	switch {
	case link.Revoked:
		return nil, ErrLinkRevoked
	case link.Expired(now):
		return nil, ErrLinkExpired
	case link.Exhausted():
		return nil, ErrDownloadLimit
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, link.Token)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if !allowed {
			log.Warn("download rate limited", zap.String("link_id", link.ID))
			return nil, ErrRateLimited
		}
	}

	if err := repos.Downloads.RecordDownload(ctx, link.ID, now); err != nil {
		return nil, mapRepoErr(err)
	}
	link.DownloadCount++
	link.LastDownloadedAt = &now

	product, err := repos.Products.GetByID(ctx, link.ProductID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	log.Info("download redeemed", zap.String("link_id", link.ID), zap.Int("download_count", link.DownloadCount))
	return &Download{Link: link, FileURL: product.FileURL}, nil
}

// Regenerate revokes the order's existing links and issues a new one.
func (s *DownloadService) Regenerate(ctx context.Context, actor model.Actor, orderID string) (*model.DownloadLink, error) {
	var link *model.DownloadLink
	err := s.store.WithinTx(ctx, func(r repo.Repositories) error {
		order, err := r.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapRepoErr(err)
		}
		if !actor.CanAccess(order.UserID) {
			return ErrForbidden
		}
		if order.Status != model.OrderStatusCompleted {
			return fmt.Errorf("%w: order is %s", ErrInvalidTransition, order.Status)
		}
		product, err := r.Products.GetByID(ctx, order.ProductID)
		if err != nil {
			return mapRepoErr(err)
		}
		if !product.Digital {
			return ErrNotDigital
		}
		if err := r.Downloads.RevokeByOrder(ctx, order.ID); err != nil {
			return err
		}
		link, err = s.Issue(ctx, r, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (s *DownloadService) ListForOrder(ctx context.Context, actor model.Actor, orderID string) ([]model.DownloadLink, error) {
	repos := s.store.Repos()
	order, err := repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !actor.CanAccess(order.UserID) {
		return nil, ErrForbidden
	}
	links, err := repos.Downloads.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if links == nil {
		links = []model.DownloadLink{}
	}
	return links, nil
}
