package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marketplace-service/internal/auth"
	"github.com/marketplace-service/internal/logger"
	"github.com/marketplace-service/internal/model"
	"github.com/marketplace-service/internal/payment"
	"github.com/marketplace-service/internal/service"
	"go.uber.org/zap"
)

type Handler struct {
	orders    *service.OrderService
	carts     *service.CartService
	payments  *service.PaymentService
	downloads *service.DownloadService
	accounts  *service.AccountService
	tokens    *auth.Manager
}

func NewHandler(
	orders *service.OrderService,
	carts *service.CartService,
	payments *service.PaymentService,
	downloads *service.DownloadService,
	accounts *service.AccountService,
	tokens *auth.Manager,
) *Handler {
	return &Handler{
		orders:    orders,
		carts:     carts,
		payments:  payments,
		downloads: downloads,
		accounts:  accounts,
		tokens:    tokens,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/auth/login", h.Login)

	api := r.Group("/", auth.RequireAuth(h.tokens))

	api.GET("/cart", h.GetCart)
	api.POST("/cart/items", h.AddCartItem)
	api.DELETE("/cart/items/:product_id", h.RemoveCartItem)
	api.POST("/cart/checkout", h.Checkout)

	api.POST("/orders", h.CreateOrder)
	api.GET("/orders", h.GetOrders)
	api.GET("/orders/:id", h.GetOrder)
	api.POST("/orders/:id/cancel", h.CancelOrder)
	api.POST("/orders/:id/payment", h.ProcessPayment)
	api.GET("/orders/:id/downloads", h.ListDownloads)
	api.POST("/orders/:id/downloads", h.RegenerateDownload)

	api.GET("/downloads/:token", h.RedeemDownload)

	admin := api.Group("/admin", auth.RequireRole(model.RoleAdmin))
	admin.PATCH("/orders/:id/status", h.UpdateOrderStatus)
	admin.DELETE("/orders/:id", h.DeleteOrder)
	admin.POST("/orders/:id/refund", h.Refund)
	admin.GET("/orders/:id/audit", h.AuditTrail)
}

func (h *Handler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.accounts.Login(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), auth.Current(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), auth.Current(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) GetOrders(c *gin.Context) {
	var req service.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orders, err := h.orders.GetOrders(c.Request.Context(), auth.Current(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	if orders == nil {
		orders = []model.Order{}
	}

	c.JSON(http.StatusOK, orders)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	order, err := h.orders.CancelOrder(c.Request.Context(), auth.Current(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

type updateStatusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required"`
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.UpdateOrderStatus(c.Request.Context(), auth.Current(c), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) DeleteOrder(c *gin.Context) {
	if err := h.orders.DeleteOrder(c.Request.Context(), auth.Current(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ProcessPayment(c *gin.Context) {
	var req payment.Details
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.payments.ProcessPayment(c.Request.Context(), auth.Current(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}

	if !result.Success {
		c.JSON(http.StatusPaymentRequired, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Refund(c *gin.Context) {
	var req service.RefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	order, err := h.payments.Refund(c.Request.Context(), auth.Current(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) AuditTrail(c *gin.Context) {
	entries, err := h.payments.AuditTrail(c.Request.Context(), auth.Current(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if entries == nil {
		entries = []model.PaymentAuditLog{}
	}

	c.JSON(http.StatusOK, entries)
}

// writeError maps service errors onto HTTP statuses. Unexpected errors are
// logged and reported without detail.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrOutOfStock),
		errors.Is(err, service.ErrProductUnavailable),
		errors.Is(err, service.ErrNotDigital):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidPayment),
		errors.Is(err, service.ErrUnsupportedProcessor),
		errors.Is(err, service.ErrInvalidQuantity):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrLinkExpired),
		errors.Is(err, service.ErrLinkRevoked),
		errors.Is(err, service.ErrDownloadLimit):
		status = http.StatusGone
	case errors.Is(err, service.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, service.ErrGateway):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
