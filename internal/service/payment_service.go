package service

import (
	"context"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/apperrors"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/gateway"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/metrics"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
)

// PaymentGateway builds signed redirect URLs and authenticates callbacks.
type PaymentGateway interface {
	BuildPaymentURL(req gateway.PayURLRequest) (string, error)
	VerifyCallback(params url.Values) (*gateway.Callback, error)
}

// ReturnFlag is the outcome communicated to the browser after the gateway
// redirects the buyer back.
type ReturnFlag string

const (
	ReturnFlagSuccess        ReturnFlag = "success"
	ReturnFlagFailed         ReturnFlag = "failed"
	ReturnFlagError          ReturnFlag = "error"
	ReturnFlagChecksumFailed ReturnFlag = "checksum_failed"
)

// IPN response codes the gateway expects back from the merchant.
const (
	ipnCodeSuccess        = "00"
	ipnCodeOrderNotFound  = "01"
	ipnCodeAmountMismatch = "04"
	ipnCodeChecksumFailed = "97"
	ipnCodeInternalError  = "99"
)

// IPNResponse is the acknowledgement body returned to the gateway's
// server-to-server callback.
type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// PaymentService drives the payment leg of the order lifecycle: issuing
// redirect URLs and reconciling the gateway's confirmations against stored
// orders.
type PaymentService struct {
	gateway PaymentGateway
	orders  OrderRepository
	cache   OrderCache
	events  EventPublisher
	logger  zerolog.Logger
	now     func() time.Time
}

func NewPaymentService(
	gw PaymentGateway,
	orders OrderRepository,
	cache OrderCache,
	events EventPublisher,
	logger zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		gateway: gw,
		orders:  orders,
		cache:   cache,
		events:  events,
		logger:  logger.With().Str("component", "payment-service").Logger(),
		now:     time.Now,
	}
}

// CreatePaymentURLRequest carries the buyer's choices for the redirect.
type CreatePaymentURLRequest struct {
	OrderID  string `json:"order_id" binding:"required"`
	BankCode string `json:"bank_code"`
	Locale   string `json:"locale"`
}

// CreatePaymentURL builds a signed gateway redirect for an order. The
// amount always comes from the stored order total, never from the client.
func (s *PaymentService) CreatePaymentURL(ctx context.Context, actor Actor, req *CreatePaymentURLRequest, clientIP string) (string, error) {
	order, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return "", err
	}

	if !actor.Admin && actor.ID != order.BuyerID {
		return "", apperrors.Authorization("order %s does not belong to you", req.OrderID)
	}
	if order.IsPaid {
		return "", apperrors.Conflict("order %s is already paid", req.OrderID)
	}
	if order.Status == models.OrderStatusCancelled {
		return "", apperrors.Conflict("order %s has been cancelled", req.OrderID)
	}

	payURL, err := s.gateway.BuildPaymentURL(gateway.PayURLRequest{
		OrderID:  order.ID,
		Amount:   order.TotalPrice,
		BankCode: req.BankCode,
		Locale:   req.Locale,
		ClientIP: clientIP,
	})
	if err != nil {
		return "", err
	}

	s.logger.Info().Str("order_id", order.ID).Int64("amount", order.TotalPrice).Msg("payment url issued")
	return payURL, nil
}

// HandleReturn processes the browser redirect channel. It only informs the
// UI; the IPN channel is authoritative, but a valid successful return also
// settles the order so the buyer sees it paid immediately. Reconciliation
// is the same as the IPN's: signature, stored order, amount, then settle.
func (s *PaymentService) HandleReturn(ctx context.Context, params url.Values) (orderID string, flag ReturnFlag) {
	cb, err := s.gateway.VerifyCallback(params)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindSignature) {
			metrics.SignatureFailures.Inc()
			metrics.PaymentReconciliations.WithLabelValues("return", "checksum_failed").Inc()
			s.logger.Warn().Err(err).Msg("return callback failed signature check")
			return "", ReturnFlagChecksumFailed
		}
		metrics.PaymentReconciliations.WithLabelValues("return", "error").Inc()
		s.logger.Warn().Err(err).Msg("malformed return callback")
		return "", ReturnFlagError
	}

	if !cb.Succeeded() {
		metrics.PaymentReconciliations.WithLabelValues("return", "declined").Inc()
		s.logger.Info().
			Str("order_id", cb.TxnRef).
			Str("response_code", cb.ResponseCode).
			Msg("payment declined by gateway")
		return cb.TxnRef, ReturnFlagFailed
	}

	order, err := s.orders.GetByID(ctx, cb.TxnRef)
	if err != nil {
		metrics.PaymentReconciliations.WithLabelValues("return", "error").Inc()
		s.logger.Error().Err(err).Str("order_id", cb.TxnRef).Msg("failed to load order for return callback")
		return cb.TxnRef, ReturnFlagError
	}

	if cb.Amount != order.TotalPrice {
		metrics.PaymentReconciliations.WithLabelValues("return", "amount_mismatch").Inc()
		s.logger.Warn().
			Str("order_id", order.ID).
			Int64("expected", order.TotalPrice).
			Int64("received", cb.Amount).
			Msg("return callback amount mismatch")
		return cb.TxnRef, ReturnFlagFailed
	}

	if err := s.settle(ctx, cb); err != nil {
		metrics.PaymentReconciliations.WithLabelValues("return", "error").Inc()
		s.logger.Error().Err(err).Str("order_id", cb.TxnRef).Msg("failed to settle order from return callback")
		return cb.TxnRef, ReturnFlagError
	}

	metrics.PaymentReconciliations.WithLabelValues("return", "settled").Inc()
	return cb.TxnRef, ReturnFlagSuccess
}

// HandleIPN processes the authoritative server-to-server channel and
// always answers with the gateway's expected code vocabulary. A replayed
// confirmation for an already-paid order acknowledges success without
// mutating anything.
func (s *PaymentService) HandleIPN(ctx context.Context, params url.Values) IPNResponse {
	cb, err := s.gateway.VerifyCallback(params)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindSignature) {
			metrics.SignatureFailures.Inc()
			metrics.PaymentReconciliations.WithLabelValues("ipn", "checksum_failed").Inc()
			s.logger.Warn().Err(err).Msg("ipn failed signature check")
			return IPNResponse{RspCode: ipnCodeChecksumFailed, Message: "Checksum failed"}
		}
		metrics.PaymentReconciliations.WithLabelValues("ipn", "error").Inc()
		s.logger.Warn().Err(err).Msg("malformed ipn")
		return IPNResponse{RspCode: ipnCodeInternalError, Message: "Unknown error"}
	}

	order, err := s.orders.GetByID(ctx, cb.TxnRef)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			metrics.PaymentReconciliations.WithLabelValues("ipn", "not_found").Inc()
			return IPNResponse{RspCode: ipnCodeOrderNotFound, Message: "Order not found"}
		}
		metrics.PaymentReconciliations.WithLabelValues("ipn", "error").Inc()
		s.logger.Error().Err(err).Str("order_id", cb.TxnRef).Msg("failed to load order for ipn")
		return IPNResponse{RspCode: ipnCodeInternalError, Message: "Unknown error"}
	}

	if cb.Amount != order.TotalPrice {
		metrics.PaymentReconciliations.WithLabelValues("ipn", "amount_mismatch").Inc()
		s.logger.Warn().
			Str("order_id", order.ID).
			Int64("expected", order.TotalPrice).
			Int64("received", cb.Amount).
			Msg("ipn amount mismatch")
		return IPNResponse{RspCode: ipnCodeAmountMismatch, Message: "Invalid amount"}
	}

	if !cb.Succeeded() {
		metrics.PaymentReconciliations.WithLabelValues("ipn", "declined").Inc()
		s.logger.Info().
			Str("order_id", order.ID).
			Str("response_code", cb.ResponseCode).
			Msg("gateway reported payment failure")
		return IPNResponse{RspCode: ipnCodeSuccess, Message: "Confirm success"}
	}

	if err := s.settle(ctx, cb); err != nil {
		metrics.PaymentReconciliations.WithLabelValues("ipn", "error").Inc()
		s.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed to settle order from ipn")
		return IPNResponse{RspCode: ipnCodeInternalError, Message: "Unknown error"}
	}

	metrics.PaymentReconciliations.WithLabelValues("ipn", "settled").Inc()
	return IPNResponse{RspCode: ipnCodeSuccess, Message: "Confirm success"}
}

// settle marks the order paid exactly once. A second confirmation for the
// same order is a no-op, not an error, so both channels and gateway
// retries converge on the same stored state.
func (s *PaymentService) settle(ctx context.Context, cb *gateway.Callback) error {
	paidAt := cb.PayDate
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	receipt := models.PaymentReceipt{
		TransactionNo: cb.TransactionNo,
		ResponseCode:  cb.ResponseCode,
		PayDate:       paidAt,
	}

	alreadyPaid, err := s.orders.MarkPaid(ctx, cb.TxnRef, receipt, paidAt)
	if err != nil {
		return err
	}
	if alreadyPaid {
		s.logger.Info().Str("order_id", cb.TxnRef).Msg("duplicate payment confirmation ignored")
		return nil
	}

	s.logger.Info().
		Str("order_id", cb.TxnRef).
		Str("transaction_no", cb.TransactionNo).
		Msg("order settled")

	if err := s.cache.Delete(ctx, cb.TxnRef); err != nil {
		s.logger.Warn().Err(err).Str("order_id", cb.TxnRef).Msg("failed to invalidate cached order")
	}

	order, err := s.orders.GetByID(ctx, cb.TxnRef)
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", cb.TxnRef).Msg("failed to reload settled order")
		return nil
	}
	if err := s.cache.InvalidateBuyer(ctx, order.BuyerID); err != nil {
		s.logger.Warn().Err(err).Str("buyer_id", order.BuyerID).Msg("failed to invalidate buyer cache")
	}
	if err := s.events.OrderPaid(ctx, order); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed to publish order paid event")
	}

	return nil
}
