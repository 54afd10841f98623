package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/braintree-go/braintree-go"
	"github.com/marketplace-service/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBraintree points a Braintree processor at a server that answers
// every transaction request with status and body.
func newTestBraintree(t *testing.T, status int, body string) *Braintree {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/merchants/m/transactions", r.URL.Path)
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	gateway := braintree.NewWithHttpClient(braintree.NewEnvironment(srv.URL), "m", "pub", "priv", srv.Client())
	return &Braintree{gateway: gateway}
}

func braintreeCharge() Charge {
	return Charge{
		OrderID:  "o1",
		Amount:   decimal.RequireFromString("19.99"),
		Currency: "USD",
		Details:  Details{Method: MethodBraintree, PaymentToken: "tok_123"},
	}
}

func TestBraintreeValidate(t *testing.T) {
	p := NewBraintree(config.Braintree{MerchantID: "m", PublicKey: "pub", PrivateKey: "priv"})

	assert.Equal(t, MethodBraintree, p.Name())

	var verr *ValidationError
	require.ErrorAs(t, p.Validate(Details{Method: MethodBraintree}), &verr)
	assert.Equal(t, "payment_token", verr.Field)
	assert.NoError(t, p.Validate(Details{Method: MethodBraintree, PaymentToken: "tok_123"}))
}

func TestBraintreeEnvironment(t *testing.T) {
	assert.Equal(t, braintree.Production, environment("production"))
	assert.Equal(t, braintree.Sandbox, environment("sandbox"))
	assert.Equal(t, braintree.Sandbox, environment(""))
}

func TestBraintreeChargeSettles(t *testing.T) {
	p := newTestBraintree(t, http.StatusCreated, `<?xml version="1.0" encoding="UTF-8"?>
<transaction>
  <id>tx_ok</id>
  <status>submitted_for_settlement</status>
</transaction>`)

	res, err := p.Charge(context.Background(), braintreeCharge())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "tx_ok", res.TransactionID)
	assert.Equal(t, "submitted_for_settlement", res.Metadata["braintree_status"])
}

func TestBraintreeChargeProcessorDeclined(t *testing.T) {
	p := newTestBraintree(t, http.StatusUnprocessableEntity, `<?xml version="1.0" encoding="UTF-8"?>
<api-error-response>
  <message>Do Not Honor</message>
  <transaction>
    <id>tx_declined</id>
    <status>processor_declined</status>
    <processor-response-text>Do Not Honor</processor-response-text>
  </transaction>
</api-error-response>`)

	res, err := p.Charge(context.Background(), braintreeCharge())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Do Not Honor", res.DeclineReason)
	assert.Empty(t, res.TransactionID)
	assert.Equal(t, "tx_declined", res.Metadata["braintree_transaction_id"])
}

func TestBraintreeChargeGatewayRejected(t *testing.T) {
	p := newTestBraintree(t, http.StatusUnprocessableEntity, `<?xml version="1.0" encoding="UTF-8"?>
<api-error-response>
  <message>Gateway Rejected: cvv</message>
  <transaction>
    <id>tx_rejected</id>
    <status>gateway_rejected</status>
    <gateway-rejection-reason>cvv</gateway-rejection-reason>
  </transaction>
</api-error-response>`)

	res, err := p.Charge(context.Background(), braintreeCharge())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "cvv", res.DeclineReason)
	assert.Equal(t, "gateway_rejected", res.Metadata["braintree_status"])
}

func TestBraintreeChargeGatewayErrors(t *testing.T) {
	p := newTestBraintree(t, http.StatusUnprocessableEntity, `<?xml version="1.0" encoding="UTF-8"?>
<api-error-response>
  <message>Payment method token is invalid.</message>
</api-error-response>`)

	_, err := p.Charge(context.Background(), braintreeCharge())
	assert.ErrorContains(t, err, "Payment method token is invalid.")

	p = newTestBraintree(t, http.StatusInternalServerError, "")
	_, err = p.Charge(context.Background(), braintreeCharge())
	assert.Error(t, err)
}
