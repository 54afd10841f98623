// Package repotest provides an in-memory repo.Store for tests.
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marketplace-service/internal/model"
	"github.com/marketplace-service/internal/repo"
)

// Store is an in-memory repo.Store. WithinTx snapshots the state and
// restores it when fn fails, which is enough to observe rollbacks in tests.
// The maps are exported so tests can seed and inspect state directly.
type Store struct {
	mu        sync.RWMutex
	txMu      sync.Mutex
	Orders    map[string]*model.Order
	Products  map[string]*model.Product
	Users     map[string]*model.User
	Carts     map[string][]model.CartItem
	Downloads map[string]*model.DownloadLink
	AuditLog  []model.PaymentAuditLog
}

func NewStore() *Store {
	return &Store{
		Orders:    make(map[string]*model.Order),
		Products:  make(map[string]*model.Product),
		Users:     make(map[string]*model.User),
		Carts:     make(map[string][]model.CartItem),
		Downloads: make(map[string]*model.DownloadLink),
	}
}

func (m *Store) Repos() repo.Repositories {
	return repo.Repositories{
		Orders:    memOrders{m},
		Products:  memProducts{m},
		Users:     memUsers{m},
		Carts:     memCarts{m},
		Downloads: memDownloads{m},
		Audit:     memAudit{m},
	}
}

func (m *Store) WithinTx(ctx context.Context, fn func(repo.Repositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m.Repos()); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	orders    map[string]model.Order
	products  map[string]model.Product
	carts     map[string][]model.CartItem
	downloads map[string]model.DownloadLink
	audit     int
}

func (m *Store) snapshot() snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := snapshot{
		orders:    make(map[string]model.Order, len(m.Orders)),
		products:  make(map[string]model.Product, len(m.Products)),
		carts:     make(map[string][]model.CartItem, len(m.Carts)),
		downloads: make(map[string]model.DownloadLink, len(m.Downloads)),
		audit:     len(m.AuditLog),
	}
	for k, v := range m.Orders {
		s.orders[k] = *v
	}
	for k, v := range m.Products {
		s.products[k] = *v
	}
	for k, v := range m.Carts {
		s.carts[k] = append([]model.CartItem(nil), v...)
	}
	for k, v := range m.Downloads {
		s.downloads[k] = *v
	}
	return s
}

func (m *Store) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Orders = make(map[string]*model.Order, len(s.orders))
	for k, v := range s.orders {
		m.Orders[k] = &v
	}
	m.Products = make(map[string]*model.Product, len(s.products))
	for k, v := range s.products {
		m.Products[k] = &v
	}
	m.Carts = s.carts
	m.Downloads = make(map[string]*model.DownloadLink, len(s.downloads))
	for k, v := range s.downloads {
		m.Downloads[k] = &v
	}
	m.AuditLog = m.AuditLog[:s.audit]
}

// AuditEvents lists the audit events recorded for orderID in append order.
func (m *Store) AuditEvents(orderID string) []model.AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.AuditEvent
	for _, e := range m.AuditLog {
		if e.OrderID == orderID {
			out = append(out, e.Event)
		}
	}
	return out
}

type memOrders struct{ m *Store }

func (r memOrders) Create(_ context.Context, o *model.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *o
	r.m.Orders[o.ID] = &cp
	return nil
}

func (r memOrders) GetByID(_ context.Context, id string) (*model.Order, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	o, ok := r.m.Orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r memOrders) GetByIDForUpdate(ctx context.Context, id string) (*model.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memOrders) List(_ context.Context, f model.OrderFilter) ([]model.Order, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []model.Order
	for _, o := range r.m.Orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memOrders) Update(_ context.Context, o *model.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.Orders[o.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *o
	r.m.Orders[o.ID] = &cp
	return nil
}

func (r memOrders) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.Orders[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.m.Orders, id)
	return nil
}

type memProducts struct{ m *Store }

func (r memProducts) GetByID(_ context.Context, id string) (*model.Product, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	p, ok := r.m.Products[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memProducts) AdjustStock(_ context.Context, id string, delta int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.Products[id]
	if !ok || p.Stock+delta < 0 {
		return repo.ErrInsufficientStock
	}
	p.Stock += delta
	return nil
}

type memUsers struct{ m *Store }

func (r memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.Users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return u, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, u := range r.m.Users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, repo.ErrNotFound
}

type memCarts struct{ m *Store }

func (r memCarts) Get(_ context.Context, userID string) (*model.Cart, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return &model.Cart{UserID: userID, Items: append([]model.CartItem{}, r.m.Carts[userID]...)}, nil
}

func (r memCarts) AddItem(_ context.Context, userID string, item model.CartItem) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	items := r.m.Carts[userID]
	for i := range items {
		if items[i].ProductID == item.ProductID {
			items[i].Quantity += item.Quantity
			return nil
		}
	}
	r.m.Carts[userID] = append(items, item)
	return nil
}

func (r memCarts) RemoveItem(_ context.Context, userID, productID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	items := r.m.Carts[userID]
	for i := range items {
		if items[i].ProductID == productID {
			r.m.Carts[userID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return repo.ErrNotFound
}

func (r memCarts) Clear(_ context.Context, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.Carts, userID)
	return nil
}

type memDownloads struct{ m *Store }

func (r memDownloads) Create(_ context.Context, l *model.DownloadLink) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *l
	r.m.Downloads[l.ID] = &cp
	return nil
}

func (r memDownloads) GetByToken(_ context.Context, token string) (*model.DownloadLink, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, l := range r.m.Downloads {
		if l.Token == token {
			cp := *l
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r memDownloads) ListByOrder(_ context.Context, orderID string) ([]model.DownloadLink, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []model.DownloadLink
	for _, l := range r.m.Downloads {
		if l.OrderID == orderID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memDownloads) RecordDownload(_ context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.Downloads[id]
	if !ok || l.Revoked || l.DownloadCount >= l.MaxDownloads || !at.Before(l.ExpiresAt) {
		return repo.ErrLinkUnavailable
	}
	l.DownloadCount++
	l.LastDownloadedAt = &at
	return nil
}

func (r memDownloads) RevokeByOrder(_ context.Context, orderID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, l := range r.m.Downloads {
		if l.OrderID == orderID {
			l.Revoked = true
		}
	}
	return nil
}

type memAudit struct{ m *Store }

func (r memAudit) Append(_ context.Context, e *model.PaymentAuditLog) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.AuditLog = append(r.m.AuditLog, *e)
	return nil
}

func (r memAudit) ListByOrder(_ context.Context, orderID string) ([]model.PaymentAuditLog, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []model.PaymentAuditLog
	for _, e := range r.m.AuditLog {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Publisher records the channels it was asked to publish on.
type Publisher struct {
	mu        sync.Mutex
	published []string
}

func (m *Publisher) Publish(_ context.Context, channel string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, channel)
	return nil
}

func (m *Publisher) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.published...)
}
