package payment

import (
	"context"
	"strings"
	"time"
)

const (
	MethodCreditCard   = "credit_card"
	MethodPayPal       = "paypal"
	MethodBankTransfer = "bank_transfer"
	MethodBraintree    = "braintree"
)

type CreditCard struct {
	sim *Simulator
	now func() time.Time
}

func NewCreditCard(sim *Simulator, now func() time.Time) *CreditCard {
	if now == nil {
		now = time.Now
	}
	return &CreditCard{sim: sim, now: now}
}

func (p *CreditCard) Name() string { return MethodCreditCard }

func (p *CreditCard) Validate(d Details) error {
	if err := check(cardInput{
		Number:         NormalizeCardNumber(d.CardNumber),
		CardholderName: strings.TrimSpace(d.CardholderName),
		ExpMonth:       d.ExpMonth,
		ExpYear:        d.ExpYear,
		CVV:            d.CVV,
	}); err != nil {
		return err
	}
	if CardExpired(d.ExpMonth, d.ExpYear, p.now()) {
		return invalid("exp_year", "card has expired")
	}
	return nil
}

func (p *CreditCard) Charge(_ context.Context, c Charge) (Result, error) {
	digits := NormalizeCardNumber(c.Details.CardNumber)
	return p.sim.settle("ch", map[string]string{
		"brand": CardBrand(digits),
		"last4": lastFour(digits),
	}), nil
}

type PayPal struct {
	sim *Simulator
}

func NewPayPal(sim *Simulator) *PayPal {
	return &PayPal{sim: sim}
}

func (p *PayPal) Name() string { return MethodPayPal }

func (p *PayPal) Validate(d Details) error {
	return check(payPalInput{Email: d.PayPalEmail})
}

func (p *PayPal) Charge(_ context.Context, c Charge) (Result, error) {
	return p.sim.settle("pp", map[string]string{"payer": c.Details.PayPalEmail}), nil
}

type BankTransfer struct {
	sim *Simulator
}

func NewBankTransfer(sim *Simulator) *BankTransfer {
	return &BankTransfer{sim: sim}
}

func (p *BankTransfer) Name() string { return MethodBankTransfer }

func (p *BankTransfer) Validate(d Details) error {
	return check(bankInput{
		AccountHolder: strings.TrimSpace(d.AccountHolder),
		AccountNumber: strings.ReplaceAll(d.AccountNumber, " ", ""),
	})
}

func (p *BankTransfer) Charge(_ context.Context, c Charge) (Result, error) {
	acct := strings.ReplaceAll(c.Details.AccountNumber, " ", "")
	return p.sim.settle("bt", map[string]string{"account_last4": lastFour(acct)}), nil
}
