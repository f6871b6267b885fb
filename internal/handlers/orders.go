package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
)

// CreateOrder handles POST /api/orders.
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.orders.Create(c.Request.Context(), actor(c).ID, &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// GetOrder handles GET /api/orders/:id.
func (h *Handlers) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /api/orders, scoped to the acting buyer.
func (h *Handlers) ListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, err := h.orders.ListByBuyer(c.Request.Context(), actor(c).ID, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// UpdateOrderStatus handles PATCH /api/orders/:id/status.
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), actor(c), c.Param("id"), req.Status)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// CancelOrder handles POST /api/orders/:id/cancel.
func (h *Handlers) CancelOrder(c *gin.Context) {
	order, err := h.orders.Cancel(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ConfirmReceived handles POST /api/orders/:id/received.
func (h *Handlers) ConfirmReceived(c *gin.Context) {
	order, err := h.orders.ConfirmReceived(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
