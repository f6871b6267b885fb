// Package handlers adapts the HTTP surface to the service layer and
// translates internal errors into status codes.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/apperrors"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/service"
)

// Handlers bundles the HTTP endpoints and their dependencies.
type Handlers struct {
	orders   *service.OrderService
	payments *service.PaymentService
	ready    ReadinessChecker
	frontend string
	logger   zerolog.Logger
}

// ReadinessChecker reports whether backing stores are reachable.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

func New(
	orders *service.OrderService,
	payments *service.PaymentService,
	ready ReadinessChecker,
	frontendURL string,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		orders:   orders,
		payments: payments,
		ready:    ready,
		frontend: frontendURL,
		logger:   logger.With().Str("component", "handlers").Logger(),
	}
}

// actor extracts the authenticated caller placed on the context by the
// auth middleware.
func actor(c *gin.Context) service.Actor {
	return service.Actor{
		ID:    c.GetString("user_id"),
		Admin: c.GetString("user_role") == "admin",
	}
}

// handleError maps an error's kind onto an HTTP response. Internal detail
// never leaks to the client.
func (h *Handlers) handleError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindAuthorization:
		status = http.StatusForbidden
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindConflict:
		status = http.StatusConflict
	case apperrors.KindSignature:
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	c.JSON(status, gin.H{"error": apperrors.MessageOf(err)})
}
