package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marketplace-service/internal/auth"
	"github.com/marketplace-service/internal/service"
)

func (h *Handler) GetCart(c *gin.Context) {
	cart, err := h.carts.GetCart(c.Request.Context(), auth.Current(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

func (h *Handler) AddCartItem(c *gin.Context) {
	var req service.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := h.carts.AddItem(c.Request.Context(), auth.Current(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	cart, err := h.carts.RemoveItem(c.Request.Context(), auth.Current(c), c.Param("product_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

func (h *Handler) Checkout(c *gin.Context) {
	orders, err := h.carts.Checkout(c.Request.Context(), auth.Current(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, orders)
}
