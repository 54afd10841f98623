package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/braintree-go/braintree-go"
	"github.com/marketplace-service/internal/config"
	"github.com/shopspring/decimal"
)

// Braintree charges a vaulted payment method token through the Braintree
// gateway.
type Braintree struct {
	gateway *braintree.Braintree
}

func NewBraintree(cfg config.Braintree) *Braintree {
	return &Braintree{
		gateway: braintree.New(environment(cfg.Environment), cfg.MerchantID, cfg.PublicKey, cfg.PrivateKey),
	}
}

// environment maps BRAINTREE_ENVIRONMENT onto a gateway; anything other
// than "production" is the sandbox.
func environment(name string) braintree.Environment {
	if name == "production" {
		return braintree.Production
	}
	return braintree.Sandbox
}

func (p *Braintree) Name() string { return MethodBraintree }

func (p *Braintree) Validate(d Details) error {
	return check(tokenInput{PaymentToken: d.PaymentToken})
}

func (p *Braintree) Charge(ctx context.Context, c Charge) (Result, error) {
	cents := c.Amount.Mul(decimal.NewFromInt(100)).IntPart()

	tx, err := p.gateway.Transaction().Create(ctx, &braintree.TransactionRequest{
		Type:               "sale",
		Amount:             braintree.NewDecimal(cents, 2),
		PaymentMethodToken: c.Details.PaymentToken,
		OrderId:            c.OrderID,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: true,
		},
	})
	if err != nil {
		// Declines arrive as a 422 carrying the failed transaction.
		var bterr *braintree.BraintreeError
		if errors.As(err, &bterr) && bterr.Transaction != nil {
			return declined(bterr.Transaction), nil
		}
		return Result{}, fmt.Errorf("braintree: create transaction: %w", err)
	}

	switch tx.Status {
	case braintree.TransactionStatusProcessorDeclined,
		braintree.TransactionStatusGatewayRejected,
		braintree.TransactionStatusSettlementDeclined,
		braintree.TransactionStatusFailed:
		return declined(tx), nil
	}

	return Result{
		Success:       true,
		TransactionID: tx.Id,
		Metadata:      map[string]string{"braintree_status": string(tx.Status)},
	}, nil
}

func declined(tx *braintree.Transaction) Result {
	reason := tx.ProcessorResponseText
	if tx.GatewayRejectionReason != "" {
		reason = string(tx.GatewayRejectionReason)
	}
	if reason == "" {
		reason = string(tx.Status)
	}
	return Result{
		Success:       false,
		DeclineReason: reason,
		Metadata: map[string]string{
			"braintree_status":         string(tx.Status),
			"braintree_transaction_id": tx.Id,
		},
	}
}
