package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketplace-service/internal/auth"
	"github.com/marketplace-service/internal/logger"
	"github.com/marketplace-service/internal/model"
	"github.com/marketplace-service/internal/payment"
	"github.com/marketplace-service/internal/repo/repotest"
	"github.com/marketplace-service/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	buyer = &model.User{ID: "user-1", Email: "buyer@example.com", Name: "Buyer", Role: model.RoleCustomer}
	staff = &model.User{ID: "admin-1", Email: "staff@example.com", Name: "Staff", Role: model.RoleAdmin}
)

type testServer struct {
	router *gin.Engine
	store  *repotest.Store
	tokens *auth.Manager
}

func newTestServer(t *testing.T, successRate float64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repotest.NewStore()
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	for _, u := range []*model.User{buyer, staff} {
		cp := *u
		cp.PasswordHash = hash
		store.Users[u.ID] = &cp
	}
	store.Products["ebook"] = &model.Product{
		ID:       "ebook",
		SellerID: "seller-1",
		Name:     "Go in Practice",
		Price:    decimal.RequireFromString("19.99"),
		Currency: "USD",
		Digital:  true,
		FileURL:  "https://files.example.com/ebook.pdf",
		Active:   true,
	}
	store.Products["mug"] = &model.Product{
		ID:       "mug",
		SellerID: "seller-2",
		Name:     "Gopher Mug",
		Price:    decimal.RequireFromString("12.50"),
		Currency: "USD",
		Stock:    2,
		Active:   true,
	}

	pub := &repotest.Publisher{}
	tokens := auth.NewManager("test-secret", "marketplace", time.Hour)
	sim := payment.NewSimulator(successRate, payment.RandFunc(func() float64 { return 0.5 }))
	registry := payment.NewRegistry(payment.NewCreditCard(sim, time.Now), payment.NewPayPal(sim))
	downloads := service.NewDownloadService(store, nil, time.Hour, 3)

	h := NewHandler(
		service.NewOrderService(store, pub),
		service.NewCartService(store, pub),
		service.NewPaymentService(store, registry, downloads, pub),
		downloads,
		service.NewAccountService(store.Repos().Users, tokens),
		tokens,
	)

	r := gin.New()
	r.Use(logger.Middleware(zap.NewNop()))
	h.RegisterRoutes(r)

	return &testServer{router: r, store: store, tokens: tokens}
}

func (s *testServer) token(t *testing.T, u *model.User) string {
	t.Helper()
	token, _, err := s.tokens.Issue(u)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func validCard() payment.Details {
	return payment.Details{
		Method:         payment.MethodCreditCard,
		CardNumber:     "4242 4242 4242 4242",
		CardholderName: "Jane Doe",
		ExpMonth:       12,
		ExpYear:        time.Now().Year() + 3,
		CVV:            "123",
	}
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t, 1)

	w := srv.do(t, http.MethodPost, "/auth/login", "", service.LoginRequest{Email: "BUYER@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[service.LoginResponse](t, w)
	assert.Equal(t, buyer.ID, resp.User.ID)

	principal, err := srv.tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, buyer.ID, principal.UserID)
	assert.Equal(t, model.RoleCustomer, principal.Role)
	assert.NotContains(t, w.Body.String(), "correct horse")

	w = srv.do(t, http.MethodPost, "/auth/login", "", service.LoginRequest{Email: "buyer@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutesRequireAuthentication(t *testing.T) {
	srv := newTestServer(t, 1)

	w := srv.do(t, http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(t, http.MethodGet, "/orders", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(t, http.MethodGet, "/admin/orders/o1/audit", srv.token(t, buyer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPurchaseDigitalProduct(t *testing.T) {
	srv := newTestServer(t, 1)
	token := srv.token(t, buyer)

	w := srv.do(t, http.MethodPost, "/orders", token, service.CreateOrderRequest{ProductID: "ebook", Quantity: 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[model.Order](t, w)
	assert.Equal(t, model.OrderStatusPending, order.Status)

	w = srv.do(t, http.MethodPost, "/orders/"+order.ID+"/payment", token, validCard())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[service.PaymentResult](t, w)
	assert.True(t, result.Success)
	assert.Equal(t, model.OrderStatusCompleted, result.Order.Status)
	require.NotNil(t, result.DownloadLink)

	w = srv.do(t, http.MethodGet, "/downloads/"+result.DownloadLink.Token, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dl := decode[service.Download](t, w)
	assert.Equal(t, "https://files.example.com/ebook.pdf", dl.FileURL)
	assert.Equal(t, 1, dl.Link.DownloadCount)

	w = srv.do(t, http.MethodGet, "/downloads/"+result.DownloadLink.Token, token, nil, "Accept", "text/html")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://files.example.com/ebook.pdf", w.Header().Get("Location"))

	w = srv.do(t, http.MethodGet, "/orders/"+order.ID+"/downloads", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.DownloadLink](t, w), 1)

	w = srv.do(t, http.MethodGet, "/admin/orders/"+order.ID+"/audit", srv.token(t, staff), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trail []model.AuditEvent
	for _, e := range decode[[]model.PaymentAuditLog](t, w) {
		trail = append(trail, e.Event)
	}
	assert.Equal(t, []model.AuditEvent{
		model.AuditPaymentInitiated,
		model.AuditPaymentSucceeded,
		model.AuditDownloadLinkIssued,
	}, trail)
}

func TestPaymentDeclined(t *testing.T) {
	srv := newTestServer(t, 0.1)
	token := srv.token(t, buyer)

	w := srv.do(t, http.MethodPost, "/orders", token, service.CreateOrderRequest{ProductID: "ebook", Quantity: 1})
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[model.Order](t, w)

	w = srv.do(t, http.MethodPost, "/orders/"+order.ID+"/payment", token, validCard())
	require.Equal(t, http.StatusPaymentRequired, w.Code, w.Body.String())
	result := decode[service.PaymentResult](t, w)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.DeclineReason)
	assert.Equal(t, model.OrderStatusFailed, result.Order.Status)
	assert.Nil(t, result.DownloadLink)
}

func TestPaymentRejectsBadDetails(t *testing.T) {
	srv := newTestServer(t, 1)
	token := srv.token(t, buyer)

	w := srv.do(t, http.MethodPost, "/orders", token, service.CreateOrderRequest{ProductID: "ebook", Quantity: 1})
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[model.Order](t, w)

	bad := validCard()
	bad.CardNumber = "4242424242424241"
	w = srv.do(t, http.MethodPost, "/orders/"+order.ID+"/payment", token, bad)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = srv.do(t, http.MethodPost, "/orders/"+order.ID+"/payment", token, payment.Details{Method: "bitcoin"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = srv.do(t, http.MethodPost, "/orders/"+order.ID+"/payment", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, "/orders/"+order.ID+"/payment", srv.token(t, staff), validCard())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCartCheckout(t *testing.T) {
	srv := newTestServer(t, 1)
	token := srv.token(t, buyer)

	w := srv.do(t, http.MethodPost, "/cart/checkout", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = srv.do(t, http.MethodPost, "/cart/items", token, service.AddCartItemRequest{ProductID: "mug", Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = srv.do(t, http.MethodPost, "/cart/items", token, service.AddCartItemRequest{ProductID: "ebook", Quantity: 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[model.Cart](t, w).Items, 2)

	w = srv.do(t, http.MethodPost, "/cart/checkout", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, decode[[]model.Order](t, w), 2)
	assert.Equal(t, 0, srv.store.Products["mug"].Stock)

	w = srv.do(t, http.MethodGet, "/cart", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[model.Cart](t, w).Items)

	w = srv.do(t, http.MethodGet, "/orders?status=pending", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Order](t, w), 2)
}

func TestAdminOrderRoutes(t *testing.T) {
	srv := newTestServer(t, 1)
	token := srv.token(t, buyer)
	adminToken := srv.token(t, staff)

	w := srv.do(t, http.MethodPost, "/orders", token, service.CreateOrderRequest{ProductID: "mug", Quantity: 1})
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[model.Order](t, w)

	w = srv.do(t, http.MethodPatch, "/admin/orders/"+order.ID+"/status", adminToken, gin.H{"status": "refunded"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = srv.do(t, http.MethodPost, "/admin/orders/"+order.ID+"/refund", adminToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = srv.do(t, http.MethodPatch, "/admin/orders/"+order.ID+"/status", adminToken, gin.H{"status": "processing"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = srv.do(t, http.MethodPatch, "/admin/orders/"+order.ID+"/status", adminToken, gin.H{"status": "cancelled"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.OrderStatusCancelled, decode[model.Order](t, w).Status)
	assert.Equal(t, 2, srv.store.Products["mug"].Stock)

	w = srv.do(t, http.MethodDelete, "/admin/orders/"+order.ID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = srv.do(t, http.MethodGet, "/orders/"+order.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelOrder(t *testing.T) {
	srv := newTestServer(t, 1)
	token := srv.token(t, buyer)

	w := srv.do(t, http.MethodPost, "/orders", token, service.CreateOrderRequest{ProductID: "mug", Quantity: 2})
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[model.Order](t, w)

	w = srv.do(t, http.MethodPost, "/orders/"+order.ID+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.OrderStatusCancelled, decode[model.Order](t, w).Status)
	assert.Equal(t, 2, srv.store.Products["mug"].Stock)

	w = srv.do(t, http.MethodPost, "/orders/"+order.ID+"/cancel", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err  error
		want int
	}{
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("%w: pending -> refunded", service.ErrInvalidTransition), http.StatusConflict},
		{service.ErrEmptyCart, http.StatusConflict},
		{service.ErrOutOfStock, http.StatusConflict},
		{service.ErrInvalidPayment, http.StatusUnprocessableEntity},
		{service.ErrUnsupportedProcessor, http.StatusUnprocessableEntity},
		{service.ErrLinkExpired, http.StatusGone},
		{service.ErrDownloadLimit, http.StatusGone},
		{service.ErrRateLimited, http.StatusTooManyRequests},
		{service.ErrGateway, http.StatusBadGateway},
		{errors.New("pq: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			writeError(c, tt.err)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "pq:")
			}
		})
	}
}
