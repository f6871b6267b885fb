package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/service"
)

// CreatePaymentURL handles POST /api/payments/create-url.
func (h *Handlers) CreatePaymentURL(c *gin.Context) {
	var req service.CreatePaymentURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	payURL, err := h.payments.CreatePaymentURL(c.Request.Context(), actor(c), &req, c.ClientIP())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment_url": payURL})
}

// VNPayReturn handles GET /api/payments/vnpay-return: the browser redirect
// back from the gateway. The outcome rides to the storefront as a query
// flag, never as an API error.
func (h *Handlers) VNPayReturn(c *gin.Context) {
	orderID, flag := h.payments.HandleReturn(c.Request.Context(), c.Request.URL.Query())

	target := h.frontend + "/orders"
	if orderID != "" {
		target += "/" + orderID
	}
	target += "?payment=" + string(flag)

	c.Redirect(http.StatusFound, target)
}

// VNPayIPN handles GET /api/payments/vnpay-ipn: the authoritative
// server-to-server confirmation. Always 200; the body carries the
// gateway's response code vocabulary.
func (h *Handlers) VNPayIPN(c *gin.Context) {
	resp := h.payments.HandleIPN(c.Request.Context(), c.Request.URL.Query())
	c.JSON(http.StatusOK, resp)
}
