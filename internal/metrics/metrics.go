// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders successfully created.",
	})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Order status transitions by target status.",
	}, []string{"to"})

	CouponRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_redemptions_total",
		Help: "Coupon redemption attempts by result.",
	}, []string{"result"})

	PaymentReconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Payment callback reconciliations by channel and result.",
	}, []string{"channel", "result"})

	SignatureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_signature_failures_total",
		Help: "Gateway callbacks rejected for a secure hash mismatch.",
	})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method, path and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
