package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace-service/internal/events"
	"github.com/marketplace-service/internal/logger"
	"github.com/marketplace-service/internal/model"
	"github.com/marketplace-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	adminOverrideReason = "admin_override"
)

type OrderService struct {
	store     repo.Store
	publisher events.Publisher
	now       func() time.Time
}

func NewOrderService(store repo.Store, publisher events.Publisher) *OrderService {
	return &OrderService{store: store, publisher: publisher, now: time.Now}
}

type CreateOrderRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type ListOrdersRequest struct {
	Status model.OrderStatus `form:"status"`
	Limit  int               `form:"limit"`
	Offset int               `form:"offset"`
}

func (s *OrderService) CreateOrder(ctx context.Context, actor model.Actor, req CreateOrderRequest) (*model.Order, error) {
	log := logger.FromContext(ctx)

	var order *model.Order
	err := s.store.WithinTx(ctx, func(r repo.Repositories) error {
		var err error
		order, err = placeOrder(ctx, r, actor.UserID, req.ProductID, req.Quantity, s.now())
		return err
	})
	if err != nil {
		log.Error("postgres: failed to create order", zap.String("product_id", req.ProductID), zap.Error(err))
		return nil, err
	}

	publish(ctx, s.publisher, events.OrderCreatedChannel, events.NewOrderEvent(order))
	return order, nil
}

// placeOrder reserves stock and inserts a pending order using r.
func placeOrder(ctx context.Context, r repo.Repositories, userID, productID string, quantity int, now time.Time) (*model.Order, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := r.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", productID, mapRepoErr(err))
	}
	if !product.Active {
		return nil, fmt.Errorf("product %s: %w", productID, ErrProductUnavailable)
	}
	if product.Digital && quantity != 1 {
		return nil, fmt.Errorf("product %s: %w", productID, ErrDigitalQuantity)
	}
	if !product.Digital {
		if err := r.Products.AdjustStock(ctx, product.ID, -quantity); err != nil {
			return nil, fmt.Errorf("product %s: %w", productID, mapRepoErr(err))
		}
	}

	order := &model.Order{
		ID:            uuid.New().String(),
		UserID:        userID,
		ProductID:     product.ID,
		SellerID:      product.SellerID,
		Quantity:      quantity,
		UnitPrice:     product.Price,
		Amount:        product.Price.Mul(decimal.NewFromInt(int64(quantity))),
		Currency:      product.Currency,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.Orders.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, actor model.Actor, id string) (*model.Order, error) {
	order, err := s.store.Repos().Orders.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !actor.CanAccess(order.UserID) {
		return nil, ErrForbidden
	}
	return order, nil
}

// GetOrders lists the actor's own orders, or every order for admins.
func (s *OrderService) GetOrders(ctx context.Context, actor model.Actor, req ListOrdersRequest) ([]model.Order, error) {
	filter := model.OrderFilter{Status: req.Status, Limit: req.Limit, Offset: req.Offset}
	if !actor.IsAdmin() {
		filter.UserID = actor.UserID
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.Repos().Orders.List(ctx, filter)
}

func (s *OrderService) CancelOrder(ctx context.Context, actor model.Actor, id string) (*model.Order, error) {
	log := logger.FromContext(ctx)

	var order *model.Order
	err := s.store.WithinTx(ctx, func(r repo.Repositories) error {
		var err error
		order, err = r.Orders.GetByIDForUpdate(ctx, id)
		if err != nil {
			return mapRepoErr(err)
		}
		if !actor.CanAccess(order.UserID) {
			return ErrForbidden
		}
		if !order.Status.CanTransitionTo(model.OrderStatusCancelled) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, model.OrderStatusCancelled)
		}

		return cancelOrder(ctx, r, order, actor, s.now())
	})
	if err != nil {
		log.Error("postgres: failed to cancel order", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}

	log.Info("order cancelled", zap.String("order_id", id))
	publish(ctx, s.publisher, events.OrderCancelledChannel, events.NewOrderEvent(order))
	return order, nil
}

// UpdateOrderStatus is the admin override for moving an order along the
// status machine. Cancellation and refund run the same bookkeeping as
// CancelOrder and Refund. Processing and completed are only reachable
// through a payment; an admin may fail a processing order to release it.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, actor model.Actor, id string, status model.OrderStatus) (*model.Order, error) {
	log := logger.FromContext(ctx)

	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	var (
		order   *model.Order
		channel string
	)
	err := s.store.WithinTx(ctx, func(r repo.Repositories) error {
		var err error
		order, err = r.Orders.GetByIDForUpdate(ctx, id)
		if err != nil {
			return mapRepoErr(err)
		}
		if !order.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
		}

		now := s.now()
		switch status {
		case model.OrderStatusCancelled:
			channel = events.OrderCancelledChannel
			return cancelOrder(ctx, r, order, actor, now)
		case model.OrderStatusRefunded:
			channel = events.OrderRefundedChannel
			return refundOrder(ctx, r, order, actor, adminOverrideReason, now)
		case model.OrderStatusFailed:
			channel = events.OrderPaymentFailedChannel
			order.Status = model.OrderStatusFailed
			order.PaymentStatus = model.PaymentStatusFailed
			order.FailureReason = adminOverrideReason
			order.UpdatedAt = now
			if err := r.Orders.Update(ctx, order); err != nil {
				return err
			}
			return r.Audit.Append(ctx, newAuditEntry(order, model.AuditPaymentFailed, order.PaymentMethod, now, map[string]string{
				"reason":    adminOverrideReason,
				"failed_by": actor.UserID,
			}))
		default:
			return fmt.Errorf("%w: %s is set by the payment flow", ErrInvalidTransition, status)
		}
	})
	if err != nil {
		log.Error("postgres: failed to update order status", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}

	log.Info("order status updated", zap.String("order_id", id), zap.String("status", string(status)))
	ev := events.NewOrderEvent(order)
	if status == model.OrderStatusRefunded {
		ev.Reason = adminOverrideReason
	}
	publish(ctx, s.publisher, channel, ev)
	return order, nil
}

// cancelOrder returns reserved stock and marks order cancelled using r.
func cancelOrder(ctx context.Context, r repo.Repositories, order *model.Order, actor model.Actor, now time.Time) error {
	product, err := r.Products.GetByID(ctx, order.ProductID)
	if err != nil {
		return mapRepoErr(err)
	}
	if !product.Digital {
		if err := r.Products.AdjustStock(ctx, product.ID, order.Quantity); err != nil {
			return err
		}
	}

	order.Status = model.OrderStatusCancelled
	order.UpdatedAt = now
	if err := r.Orders.Update(ctx, order); err != nil {
		return err
	}
	return r.Audit.Append(ctx, newAuditEntry(order, model.AuditOrderCancelled, "", now, map[string]string{
		"cancelled_by": actor.UserID,
	}))
}

// DeleteOrder removes an order that never took money.
func (s *OrderService) DeleteOrder(ctx context.Context, actor model.Actor, id string) error {
	log := logger.FromContext(ctx)

	if !actor.IsAdmin() {
		return ErrForbidden
	}

	err := s.store.WithinTx(ctx, func(r repo.Repositories) error {
		order, err := r.Orders.GetByIDForUpdate(ctx, id)
		if err != nil {
			return mapRepoErr(err)
		}
		switch {
		case order.PaymentStatus == model.PaymentStatusPaid:
			return fmt.Errorf("%w: paid orders cannot be deleted", ErrInvalidTransition)
		case order.Status == model.OrderStatusProcessing:
			return fmt.Errorf("%w: payment in progress", ErrInvalidTransition)
		}
		return mapRepoErr(r.Orders.Delete(ctx, id))
	})
	if err != nil {
		log.Error("postgres: failed to delete order", zap.String("order_id", id), zap.Error(err))
		return err
	}

	log.Info("order deleted", zap.String("order_id", id))
	return nil
}

func publish(ctx context.Context, publisher events.Publisher, channel string, ev events.OrderEvent) {
	if publisher == nil {
		return
	}
	log := logger.FromContext(ctx)
	if err := publisher.Publish(ctx, channel, ev); err != nil {
		log.Error("failed to publish event", zap.String("channel", channel), zap.Error(err))
		return
	}
	log.Info("event published", zap.String("channel", channel), zap.String("order_id", ev.OrderID))
}

func newAuditEntry(order *model.Order, event model.AuditEvent, processor string, at time.Time, details map[string]string) *model.PaymentAuditLog {
	return &model.PaymentAuditLog{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Event:     event,
		Processor: processor,
		Amount:    order.Amount,
		Details:   details,
		CreatedAt: at,
	}
}
