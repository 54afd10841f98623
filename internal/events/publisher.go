package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/marketplace-service/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	OrderCreatedChannel       = "order.created"
	OrderPaidChannel          = "order.paid"
	OrderPaymentFailedChannel = "order.payment_failed"
	OrderCancelledChannel     = "order.cancelled"
	OrderRefundedChannel      = "order.refunded"
)

// LifecycleChannels are the channels the notification consumer listens on.
var LifecycleChannels = []string{
	OrderCreatedChannel,
	OrderPaidChannel,
	OrderPaymentFailedChannel,
	OrderCancelledChannel,
	OrderRefundedChannel,
}

type OrderEvent struct {
	OrderID       string            `json:"order_id"`
	UserID        string            `json:"user_id"`
	ProductID     string            `json:"product_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Status        model.OrderStatus `json:"status"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	DownloadToken string            `json:"download_token,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

func NewOrderEvent(o *model.Order) OrderEvent {
	return OrderEvent{
		OrderID:       o.ID,
		UserID:        o.UserID,
		ProductID:     o.ProductID,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Status:        o.Status,
		TransactionID: o.TransactionID,
		Reason:        o.FailureReason,
		OccurredAt:    time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel, data).Err()
}
