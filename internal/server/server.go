// Package server wires the gin router, middleware and HTTP server.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/config"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/handlers"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/metrics"
)

type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

func New(cfg config.ServerConfig, h *handlers.Handlers, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(observeRequests())

	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		orders := api.Group("/orders", identity())
		{
			orders.POST("", h.CreateOrder)
			orders.GET("", h.ListOrders)
			orders.GET("/:id", h.GetOrder)
			orders.PATCH("/:id/status", h.UpdateOrderStatus)
			orders.POST("/:id/cancel", h.CancelOrder)
			orders.POST("/:id/received", h.ConfirmReceived)
		}

		payments := api.Group("/payments")
		{
			payments.POST("/create-url", identity(), h.CreatePaymentURL)
			// Gateway callbacks carry no caller identity; authenticity is
			// the secure hash.
			payments.GET("/vnpay-return", h.VNPayReturn)
			payments.GET("/vnpay-ipn", h.VNPayIPN)
		}
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + strconv.Itoa(cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// identity lifts the upstream gateway's identity headers onto the request
// context and rejects anonymous callers.
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-Id")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}
		c.Set("user_id", userID)
		c.Set("user_role", c.GetHeader("X-User-Role"))
		c.Next()
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func (s *Server) Run() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
