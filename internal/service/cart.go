package service

import (
	"context"
	"fmt"
	"time"

	"github.com/marketplace-service/internal/events"
	"github.com/marketplace-service/internal/logger"
	"github.com/marketplace-service/internal/model"
	"github.com/marketplace-service/internal/repo"
	"go.uber.org/zap"
)

type CartService struct {
	store     repo.Store
	publisher events.Publisher
	now       func() time.Time
}

func NewCartService(store repo.Store, publisher events.Publisher) *CartService {
	return &CartService{store: store, publisher: publisher, now: time.Now}
}

type AddCartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

func (s *CartService) GetCart(ctx context.Context, actor model.Actor) (*model.Cart, error) {
	return s.store.Repos().Carts.Get(ctx, actor.UserID)
}

func (s *CartService) AddItem(ctx context.Context, actor model.Actor, req AddCartItemRequest) (*model.Cart, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	repos := s.store.Repos()
	product, err := repos.Products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !product.Active {
		return nil, ErrProductUnavailable
	}
	if product.Digital {
		if req.Quantity > 1 {
			return nil, ErrDigitalQuantity
		}
		cart, err := repos.Carts.Get(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		for _, it := range cart.Items {
			if it.ProductID == product.ID {
				return cart, nil
			}
		}
	}

	item := model.CartItem{ProductID: product.ID, Quantity: req.Quantity, AddedAt: s.now()}
	if err := repos.Carts.AddItem(ctx, actor.UserID, item); err != nil {
		logger.FromContext(ctx).Error("postgres: failed to add cart item", zap.String("product_id", req.ProductID), zap.Error(err))
		return nil, err
	}
	return repos.Carts.Get(ctx, actor.UserID)
}

func (s *CartService) RemoveItem(ctx context.Context, actor model.Actor, productID string) (*model.Cart, error) {
	repos := s.store.Repos()
	if err := repos.Carts.RemoveItem(ctx, actor.UserID, productID); err != nil {
		return nil, mapRepoErr(err)
	}
	return repos.Carts.Get(ctx, actor.UserID)
}

func (s *CartService) Clear(ctx context.Context, actor model.Actor) error {
	return s.store.Repos().Carts.Clear(ctx, actor.UserID)
}

// Checkout turns every cart line into its own pending order and empties the
// cart. Either all orders are placed or none are.
func (s *CartService) Checkout(ctx context.Context, actor model.Actor) ([]model.Order, error) {
	log := logger.FromContext(ctx)

	var orders []model.Order
	err := s.store.WithinTx(ctx, func(r repo.Repositories) error {
		cart, err := r.Carts.Get(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return ErrEmptyCart
		}

		now := s.now()
		for _, item := range cart.Items {
			order, err := placeOrder(ctx, r, actor.UserID, item.ProductID, item.Quantity, now)
			if err != nil {
				return fmt.Errorf("checkout: %w", err)
			}
			orders = append(orders, *order)
		}
		return r.Carts.Clear(ctx, actor.UserID)
	})
	if err != nil {
		log.Warn("checkout failed", zap.String("user_id", actor.UserID), zap.Error(err))
		return nil, err
	}

	log.Info("checkout completed", zap.String("user_id", actor.UserID), zap.Int("orders", len(orders)))
	for i := range orders {
		publish(ctx, s.publisher, events.OrderCreatedChannel, events.NewOrderEvent(&orders[i]))
	}
	return orders, nil
}
