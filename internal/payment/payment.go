// Package payment validates payment details and charges them through a
// named processor.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var ErrUnsupportedProcessor = errors.New("unsupported payment processor")

// ValidationError reports a payment detail that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// Details carries whatever the customer submitted for the chosen method.
// Only the fields relevant to Method are read.
type Details struct {
	Method         string `json:"method" binding:"required"`
	CardNumber     string `json:"card_number,omitempty"`
	CardholderName string `json:"cardholder_name,omitempty"`
	ExpMonth       int    `json:"exp_month,omitempty"`
	ExpYear        int    `json:"exp_year,omitempty"`
	CVV            string `json:"cvv,omitempty"`
	PayPalEmail    string `json:"paypal_email,omitempty"`
	AccountHolder  string `json:"account_holder,omitempty"`
	AccountNumber  string `json:"account_number,omitempty"`
	PaymentToken   string `json:"payment_token,omitempty"`
}

type Charge struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
	Details  Details
}

// Result is the outcome of a charge that reached the processor. A declined
// charge is a Result with Success false, not an error.
type Result struct {
	Success       bool
	TransactionID string
	DeclineReason string
	// Metadata is safe to persist: it never holds full card numbers or CVVs.
	Metadata map[string]string
}

type Processor interface {
	Name() string
	Validate(d Details) error
	Charge(ctx context.Context, c Charge) (Result, error)
}

type Registry struct {
	processors map[string]Processor
}

func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{processors: make(map[string]Processor, len(processors))}
	for _, p := range processors {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Processor) {
	r.processors[p.Name()] = p
}

func (r *Registry) Get(name string) (Processor, error) {
	p, ok := r.processors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProcessor, name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
