package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marketplace-service/internal/model"
	"github.com/marketplace-service/internal/notifier"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Consumer turns order lifecycle events into customer notifications.
type Consumer struct {
	client   *redis.Client
	users    UserLookup
	notifier notifier.Notifier
	log      *zap.Logger
}

func NewConsumer(client *redis.Client, users UserLookup, n notifier.Notifier, log *zap.Logger) *Consumer {
	return &Consumer{client: client, users: users, notifier: n, log: log}
}

// Subscribe blocks until ctx is cancelled.
func (c *Consumer) Subscribe(ctx context.Context, channels ...string) {
	sub := c.client.Subscribe(ctx, channels...)
	defer sub.Close()
	ch := sub.Channel()

	c.log.Info("subscribed", zap.Strings("channels", channels))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := c.Handle(ctx, msg.Channel, []byte(msg.Payload)); err != nil {
				c.log.Error("failed to handle event", zap.String("channel", msg.Channel), zap.Error(err))
			}
		}
	}
}

func (c *Consumer) Handle(ctx context.Context, channel string, payload []byte) error {
	var ev OrderEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	log := c.log.With(zap.String("channel", channel), zap.String("order_id", ev.OrderID))

	user, err := c.users.GetByID(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("lookup user %s: %w", ev.UserID, err)
	}

	msg, ok := compose(channel, ev, user)
	if !ok {
		log.Debug("no notification for channel")
		return nil
	}

	if err := c.notifier.Notify(ctx, msg); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	log.Info("notification sent", zap.String("to", msg.To))
	return nil
}

func compose(channel string, ev OrderEvent, user *model.User) (notifier.Message, bool) {
	total := ev.Amount.StringFixed(2) + " " + ev.Currency
	greeting := "Hi " + user.Name + ",\n\n"

	var subject, body string
	switch channel {
	case OrderCreatedChannel:
		subject = fmt.Sprintf("Order %s received", ev.OrderID)
		body = fmt.Sprintf("We received your order %s for %s. It will be confirmed once payment completes.", ev.OrderID, total)
	case OrderPaidChannel:
		subject = fmt.Sprintf("Payment confirmed for order %s", ev.OrderID)
		body = fmt.Sprintf("Your payment of %s was successful (transaction %s).", total, ev.TransactionID)
		if ev.DownloadToken != "" {
			body += fmt.Sprintf("\nYour download is ready: /downloads/%s", ev.DownloadToken)
		}
	case OrderPaymentFailedChannel:
		subject = fmt.Sprintf("Payment failed for order %s", ev.OrderID)
		body = fmt.Sprintf("We could not process your payment of %s (%s). You can retry from your order page.", total, ev.Reason)
	case OrderCancelledChannel:
		subject = fmt.Sprintf("Order %s cancelled", ev.OrderID)
		body = fmt.Sprintf("Your order %s has been cancelled.", ev.OrderID)
	case OrderRefundedChannel:
		subject = fmt.Sprintf("Order %s refunded", ev.OrderID)
		body = fmt.Sprintf("A refund of %s has been issued for order %s.", total, ev.OrderID)
	default:
		return notifier.Message{}, false
	}

	return notifier.Message{To: user.Email, Subject: subject, Text: greeting + body}, true
}
