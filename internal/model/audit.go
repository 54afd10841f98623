package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuditEvent string

const (
	AuditPaymentInitiated        AuditEvent = "payment_initiated"
	AuditPaymentValidationFailed AuditEvent = "payment_validation_failed"
	AuditPaymentSucceeded        AuditEvent = "payment_succeeded"
	AuditPaymentFailed           AuditEvent = "payment_failed"
	AuditPaymentRefunded         AuditEvent = "payment_refunded"
	AuditOrderCancelled          AuditEvent = "order_cancelled"
	AuditDownloadLinkIssued      AuditEvent = "download_link_issued"
)

// PaymentAuditLog rows are append-only.
type PaymentAuditLog struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	UserID    string            `json:"user_id"`
	Event     AuditEvent        `json:"event"`
	Processor string            `json:"processor,omitempty"`
	Amount    decimal.Decimal   `json:"amount"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
