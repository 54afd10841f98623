package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marketplace-service/internal/events"
	"github.com/marketplace-service/internal/logger"
	"github.com/marketplace-service/internal/model"
	"github.com/marketplace-service/internal/payment"
	"github.com/marketplace-service/internal/repo"
	"go.uber.org/zap"
)

const (
	gatewayErrorReason    = "gateway_error"
	settlementErrorReason = "settlement_error"
)

type PaymentService struct {
	store      repo.Store
	processors *payment.Registry
	downloads  *DownloadService
	publisher  events.Publisher
	now        func() time.Time
}

func NewPaymentService(store repo.Store, processors *payment.Registry, downloads *DownloadService, publisher events.Publisher) *PaymentService {
	return &PaymentService{
		store:      store,
		processors: processors,
		downloads:  downloads,
		publisher:  publisher,
		now:        time.Now,
	}
}

type PaymentResult struct {
	Order         *model.Order        `json:"order"`
	Success       bool                `json:"success"`
	DeclineReason string              `json:"decline_reason,omitempty"`
	DownloadLink  *model.DownloadLink `json:"download_link,omitempty"`
}

type RefundRequest struct {
	Reason string `json:"reason"`
}

// ProcessPayment validates the details, charges the order amount and records
// the outcome. A declined charge is reported through PaymentResult.Success;
// errors are reserved for requests that could not be attempted or a gateway
// that could not be reached.
func (s *PaymentService) ProcessPayment(ctx context.Context, actor model.Actor, orderID string, details payment.Details) (*PaymentResult, error) {
	log := logger.FromContext(ctx).With(zap.String("order_id", orderID), zap.String("processor", details.Method))
	audit := s.store.Repos().Audit

	order, err := s.store.Repos().Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if order.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	if !order.Status.CanTransitionTo(model.OrderStatusProcessing) {
		return nil, fmt.Errorf("%w: cannot pay an order in status %s", ErrInvalidTransition, order.Status)
	}

	if err := audit.Append(ctx, newAuditEntry(order, model.AuditPaymentInitiated, details.Method, s.now(), nil)); err != nil {
		return nil, err
	}

	processor, err := s.processors.Get(details.Method)
	if err != nil {
		s.auditValidationFailure(ctx, order, details.Method, err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayment, err)
	}
	if err := processor.Validate(details); err != nil {
		s.auditValidationFailure(ctx, order, details.Method, err)
		log.Warn("payment details rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayment, err)
	}

	// Claim the order so a concurrent request cannot charge it twice.
	err = s.store.WithinTx(ctx, func(r repo.Repositories) error {
		locked, err := r.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapRepoErr(err)
		}
		if !locked.Status.CanTransitionTo(model.OrderStatusProcessing) {
			return fmt.Errorf("%w: cannot pay an order in status %s", ErrInvalidTransition, locked.Status)
		}
		locked.Status = model.OrderStatusProcessing
		locked.PaymentMethod = processor.Name()
		locked.FailureReason = ""
		locked.UpdatedAt = s.now()
		order = locked
		return r.Orders.Update(ctx, locked)
	})
	if err != nil {
		return nil, err
	}

	result, chargeErr := processor.Charge(ctx, payment.Charge{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Details:  details,
	})
	if chargeErr != nil {
		log.Error("payment gateway error", zap.Error(chargeErr))
		result = payment.Result{Success: false, DeclineReason: gatewayErrorReason}
	}

	out, err := s.settle(ctx, order, processor.Name(), result)
	if err != nil {
		log.Error("postgres: failed to record payment outcome",
			zap.Bool("charged", result.Success),
			zap.String("transaction_id", result.TransactionID),
			zap.Error(err))
		s.releaseUnsettled(ctx, orderID, processor.Name(), result)
		return nil, err
	}

	if out.Success {
		log.Info("payment succeeded", zap.String("transaction_id", out.Order.TransactionID))
		ev := events.NewOrderEvent(out.Order)
		if out.DownloadLink != nil {
			ev.DownloadToken = out.DownloadLink.Token
		}
		publish(ctx, s.publisher, events.OrderPaidChannel, ev)
	} else {
		log.Info("payment declined", zap.String("reason", out.DeclineReason))
		publish(ctx, s.publisher, events.OrderPaymentFailedChannel, events.NewOrderEvent(out.Order))
	}

	if chargeErr != nil {
		return out, fmt.Errorf("%w: %v", ErrGateway, chargeErr)
	}
	return out, nil
}

// settle records the charge outcome in a single transaction.
func (s *PaymentService) settle(ctx context.Context, order *model.Order, processor string, result payment.Result) (*PaymentResult, error) {
	out := &PaymentResult{Order: order, Success: result.Success, DeclineReason: result.DeclineReason}

	err := s.store.WithinTx(ctx, func(r repo.Repositories) error {
		now := s.now()
		details := make(map[string]string, len(result.Metadata)+1)
		for k, v := range result.Metadata {
			details[k] = v
		}

		if !result.Success {
			order.Status = model.OrderStatusFailed
			order.PaymentStatus = model.PaymentStatusFailed
			order.FailureReason = result.DeclineReason
			order.UpdatedAt = now
			if err := r.Orders.Update(ctx, order); err != nil {
				return err
			}
			details["reason"] = result.DeclineReason
			return r.Audit.Append(ctx, newAuditEntry(order, model.AuditPaymentFailed, processor, now, details))
		}

		order.Status = model.OrderStatusCompleted
		order.PaymentStatus = model.PaymentStatusPaid
		order.TransactionID = result.TransactionID
		order.FailureReason = ""
		order.PaidAt = &now
		order.UpdatedAt = now
		if err := r.Orders.Update(ctx, order); err != nil {
			return err
		}
		details["transaction_id"] = result.TransactionID
		if err := r.Audit.Append(ctx, newAuditEntry(order, model.AuditPaymentSucceeded, processor, now, details)); err != nil {
			return err
		}

		product, err := r.Products.GetByID(ctx, order.ProductID)
		if err != nil {
			return mapRepoErr(err)
		}
		if product.Digital {
			link, err := s.downloads.Issue(ctx, r, order)
			if err != nil {
				return fmt.Errorf("issue download link: %w", err)
			}
			out.DownloadLink = link
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// releaseUnsettled marks an order whose outcome could not be recorded as
// failed so it can be retried or cancelled. The charge result is kept in the
// audit log for reconciliation.
func (s *PaymentService) releaseUnsettled(ctx context.Context, orderID, processor string, result payment.Result) {
	log := logger.FromContext(ctx).With(zap.String("order_id", orderID))

	err := s.store.WithinTx(ctx, func(r repo.Repositories) error {
		order, err := r.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapRepoErr(err)
		}
		if order.Status != model.OrderStatusProcessing {
			return nil
		}

		now := s.now()
		order.Status = model.OrderStatusFailed
		order.PaymentStatus = model.PaymentStatusFailed
		order.FailureReason = settlementErrorReason
		order.UpdatedAt = now
		if err := r.Orders.Update(ctx, order); err != nil {
			return err
		}
		details := map[string]string{
			"reason":  settlementErrorReason,
			"charged": strconv.FormatBool(result.Success),
		}
		if result.TransactionID != "" {
			details["transaction_id"] = result.TransactionID
		}
		return r.Audit.Append(ctx, newAuditEntry(order, model.AuditPaymentFailed, processor, now, details))
	})
	if err != nil {
		log.Error("postgres: failed to release unsettled order", zap.String("transaction_id", result.TransactionID), zap.Error(err))
		return
	}
	log.Warn("unsettled order marked failed", zap.String("transaction_id", result.TransactionID))
}

func (s *PaymentService) auditValidationFailure(ctx context.Context, order *model.Order, processor string, cause error) {
	details := map[string]string{"error": cause.Error()}
	var verr *payment.ValidationError
	if errors.As(cause, &verr) {
		details["field"] = verr.Field
	}
	entry := newAuditEntry(order, model.AuditPaymentValidationFailed, processor, s.now(), details)
	if err := s.store.Repos().Audit.Append(ctx, entry); err != nil {
		logger.FromContext(ctx).Error("postgres: failed to append audit log", zap.String("order_id", order.ID), zap.Error(err))
	}
}

// Refund reverses a completed payment and revokes any download links.
func (s *PaymentService) Refund(ctx context.Context, actor model.Actor, orderID string, req RefundRequest) (*model.Order, error) {
	log := logger.FromContext(ctx).With(zap.String("order_id", orderID))

	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	var order *model.Order
	err := s.store.WithinTx(ctx, func(r repo.Repositories) error {
		var err error
		order, err = r.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapRepoErr(err)
		}
		if !order.Status.CanTransitionTo(model.OrderStatusRefunded) {
			return fmt.Errorf("%w: cannot refund an order in status %s", ErrInvalidTransition, order.Status)
		}

		return refundOrder(ctx, r, order, actor, req.Reason, s.now())
	})
	if err != nil {
		log.Error("failed to refund order", zap.Error(err))
		return nil, err
	}

	log.Info("order refunded")
	ev := events.NewOrderEvent(order)
	ev.Reason = req.Reason
	publish(ctx, s.publisher, events.OrderRefundedChannel, ev)
	return order, nil
}

// refundOrder marks order refunded and revokes its download links using r.
func refundOrder(ctx context.Context, r repo.Repositories, order *model.Order, actor model.Actor, reason string, now time.Time) error {
	order.Status = model.OrderStatusRefunded
	order.PaymentStatus = model.PaymentStatusRefunded
	order.UpdatedAt = now
	if err := r.Orders.Update(ctx, order); err != nil {
		return err
	}
	if err := r.Downloads.RevokeByOrder(ctx, order.ID); err != nil {
		return err
	}
	return r.Audit.Append(ctx, newAuditEntry(order, model.AuditPaymentRefunded, order.PaymentMethod, now, map[string]string{
		"reason":         reason,
		"refunded_by":    actor.UserID,
		"transaction_id": order.TransactionID,
	}))
}

// AuditTrail returns the payment audit log of an order, oldest first.
func (s *PaymentService) AuditTrail(ctx context.Context, actor model.Actor, orderID string) ([]model.PaymentAuditLog, error) {
	repos := s.store.Repos()
	order, err := repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !actor.CanAccess(order.UserID) {
		return nil, ErrForbidden
	}
	return repos.Audit.ListByOrder(ctx, orderID)
}
