package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/apperrors"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/gateway"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
)

type paymentServiceFixture struct {
	svc     *PaymentService
	gateway *mockGateway
	repo    *mockOrderRepo
	cache   *mockCache
	events  *mockPublisher
}

func newPaymentServiceFixture(t *testing.T) *paymentServiceFixture {
	t.Helper()

	f := &paymentServiceFixture{
		gateway: &mockGateway{},
		repo:    &mockOrderRepo{},
		cache:   newMockCache(),
		events:  &mockPublisher{},
	}
	f.svc = NewPaymentService(f.gateway, f.repo, f.cache, f.events, zerolog.Nop())
	return f
}

func unpaidOrder() *models.Order {
	return &models.Order{
		ID:         "order-1",
		BuyerID:    "buyer-1",
		SellerID:   "seller-1",
		TotalPrice: 480000,
		Status:     models.OrderStatusPending,
	}
}

func successCallback() *gateway.Callback {
	return &gateway.Callback{
		TxnRef:        "order-1",
		Amount:        480000,
		ResponseCode:  "00",
		TransactionNo: "14422574",
		PayDate:       time.Date(2025, 6, 1, 17, 35, 0, 0, time.FixedZone("ICT", 7*3600)),
	}
}

func TestCreatePaymentURL(t *testing.T) {
	f := newPaymentServiceFixture(t)
	f.repo.getByIDFn = func(_ context.Context, _ string) (*models.Order, error) {
		return unpaidOrder(), nil
	}

	var built gateway.PayURLRequest
	f.gateway.buildFn = func(req gateway.PayURLRequest) (string, error) {
		built = req
		return "https://pay.example/redirect", nil
	}

	payURL, err := f.svc.CreatePaymentURL(
		context.Background(),
		Actor{ID: "buyer-1"},
		&CreatePaymentURLRequest{OrderID: "order-1", BankCode: "NCB"},
		"203.0.113.7",
	)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/redirect", payURL)

	// The amount is the stored total, never client input.
	assert.Equal(t, int64(480000), built.Amount)
	assert.Equal(t, "order-1", built.OrderID)
	assert.Equal(t, "NCB", built.BankCode)
	assert.Equal(t, "203.0.113.7", built.ClientIP)
}

func TestCreatePaymentURLRules(t *testing.T) {
	f := newPaymentServiceFixture(t)

	f.repo.getByIDFn = func(_ context.Context, _ string) (*models.Order, error) {
		return unpaidOrder(), nil
	}
	_, err := f.svc.CreatePaymentURL(context.Background(), Actor{ID: "stranger"}, &CreatePaymentURLRequest{OrderID: "order-1"}, "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))

	f.repo.getByIDFn = func(_ context.Context, _ string) (*models.Order, error) {
		o := unpaidOrder()
		o.IsPaid = true
		return o, nil
	}
	_, err = f.svc.CreatePaymentURL(context.Background(), Actor{ID: "buyer-1"}, &CreatePaymentURLRequest{OrderID: "order-1"}, "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))

	f.repo.getByIDFn = func(_ context.Context, _ string) (*models.Order, error) {
		o := unpaidOrder()
		o.Status = models.OrderStatusCancelled
		return o, nil
	}
	_, err = f.svc.CreatePaymentURL(context.Background(), Actor{ID: "buyer-1"}, &CreatePaymentURLRequest{OrderID: "order-1"}, "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestHandleIPNSettles(t *testing.T) {
	f := newPaymentServiceFixture(t)
	f.gateway.verifyFn = func(_ url.Values) (*gateway.Callback, error) {
		return successCallback(), nil
	}
	f.repo.getByIDFn = func(_ context.Context, _ string) (*models.Order, error) {
		return unpaidOrder(), nil
	}

	var paid []string
	f.repo.markPaidFn = func(_ context.Context, id string, receipt models.PaymentReceipt) (bool, error) {
		paid = append(paid, id)
		assert.Equal(t, "14422574", receipt.TransactionNo)
		return false, nil
	}

	resp := f.svc.HandleIPN(context.Background(), url.Values{})
	assert.Equal(t, IPNResponse{RspCode: "00", Message: "Confirm success"}, resp)
	assert.Equal(t, []string{"order-1"}, paid)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, "order.paid", f.events.events[0].eventType)
}

func TestHandleIPNIdempotentReplay(t *testing.T) {
	f := newPaymentServiceFixture(t)
	f.gateway.verifyFn = func(_ url.Values) (*gateway.Callback, error) {
		return successCallback(), nil
	}
	f.repo.getByIDFn = func(_ context.Context, _ string) (*models.Order, error) {
		o := unpaidOrder()
		o.IsPaid = true
		return o, nil
	}
	f.repo.markPaidFn = func(_ context.Context, _ string, _ models.PaymentReceipt) (bool, error) {
		return true, nil
	}

	// A replayed confirmation still acknowledges success and publishes
	// nothing.
	resp := f.svc.HandleIPN(context.Background(), url.Values{})
	assert.Equal(t, "00", resp.RspCode)
	assert.Empty(t, f.events.events)
}

func TestHandleIPNChecksumFailed(t *testing.T) {
	f := newPaymentServiceFixture(t)
	f.gateway.verifyFn = func(_ url.Values) (*gateway.Callback, error) {
		return nil, apperrors.Signature("secure hash mismatch")
	}

	var paidCalls int
	f.repo.markPaidFn = func(_ context.Context, _ string, _ models.PaymentReceipt) (bool, error) {
		paidCalls++
		return false, nil
	}

	resp := f.svc.HandleIPN(context.Background(), url.Values{})
	assert.Equal(t, "97", resp.RspCode)
	assert.Zero(t, paidCalls)
	assert.Empty(t, f.events.events)
}

func TestHandleIPNOrderNotFound(t *testing.T) {
	f := newPaymentServiceFixture(t)
	f.gateway.verifyFn = func(_ url.Values) (*gateway.Callback, error) {
		return successCallback(), nil
	}

	resp := f.svc.HandleIPN(context.Background(), url.Values{})
	assert.Equal(t, "01", resp.RspCode)
}

func TestHandleIPNAmountMismatch(t *testing.T) {
	f := newPaymentServiceFixture(t)
	f.gateway.verifyFn = func(_ url.Values) (*gateway.Callback, error) {
		cb := successCallback()
		cb.Amount = 1000
		return cb, nil
	}
	f.repo.getByIDFn = func(_ context.Context, _ string) (*models.Order, error) {
		return unpaidOrder(), nil
	}

	var paidCalls int
	f.repo.markPaidFn = func(_ context.Context, _ string, _ models.PaymentReceipt) (bool, error) {
		paidCalls++
		return false, nil
	}

	resp := f.svc.HandleIPN(context.Background(), url.Values{})
	assert.Equal(t, "04", resp.RspCode)
	assert.Zero(t, paidCalls)
}

func TestHandleIPNDeclinedPayment(t *testing.T) {
	f := newPaymentServiceFixture(t)
	f.gateway.verifyFn = func(_ url.Values) (*gateway.Callback, error) {
		cb := successCallback()
		cb.ResponseCode = "24"
		return cb, nil
	}
	f.repo.getByIDFn = func(_ context.Context, _ string) (*models.Order, error) {
		return unpaidOrder(), nil
	}

	var paidCalls int
	f.repo.markPaidFn = func(_ context.Context, _ string, _ models.PaymentReceipt) (bool, error) {
		paidCalls++
		return false, nil
	}

	// The gateway is acknowledged even though the payment failed; the order
	// stays unpaid.
	resp := f.svc.HandleIPN(context.Background(), url.Values{})
	assert.Equal(t, "00", resp.RspCode)
	assert.Zero(t, paidCalls)
}

func TestHandleReturnSuccess(t *testing.T) {
	f := newPaymentServiceFixture(t)
	f.gateway.verifyFn = func(_ url.Values) (*gateway.Callback, error) {
		return successCallback(), nil
	}
	f.repo.getByIDFn = func(_ context.Context, _ string) (*models.Order, error) {
		return unpaidOrder(), nil
	}

	orderID, flag := f.svc.HandleReturn(context.Background(), url.Values{})
	assert.Equal(t, "order-1", orderID)
	assert.Equal(t, ReturnFlagSuccess, flag)
}

func TestHandleReturnAmountMismatch(t *testing.T) {
	f := newPaymentServiceFixture(t)
	f.gateway.verifyFn = func(_ url.Values) (*gateway.Callback, error) {
		cb := successCallback()
		cb.Amount = 1000
		return cb, nil
	}
	f.repo.getByIDFn = func(_ context.Context, _ string) (*models.Order, error) {
		return unpaidOrder(), nil
	}

	var paidCalls int
	f.repo.markPaidFn = func(_ context.Context, _ string, _ models.PaymentReceipt) (bool, error) {
		paidCalls++
		return false, nil
	}

	// Same rule as the server channel: a callback whose amount disagrees
	// with the stored total never settles.
	orderID, flag := f.svc.HandleReturn(context.Background(), url.Values{})
	assert.Equal(t, "order-1", orderID)
	assert.Equal(t, ReturnFlagFailed, flag)
	assert.Zero(t, paidCalls)
	assert.Empty(t, f.events.events)
}

func TestHandleReturnOutcomes(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		f := newPaymentServiceFixture(t)
		f.gateway.verifyFn = func(_ url.Values) (*gateway.Callback, error) {
			cb := successCallback()
			cb.ResponseCode = "24"
			return cb, nil
		}

		orderID, flag := f.svc.HandleReturn(context.Background(), url.Values{})
		assert.Equal(t, "order-1", orderID)
		assert.Equal(t, ReturnFlagFailed, flag)
	})

	t.Run("checksum failed", func(t *testing.T) {
		f := newPaymentServiceFixture(t)
		f.gateway.verifyFn = func(_ url.Values) (*gateway.Callback, error) {
			return nil, apperrors.Signature("secure hash mismatch")
		}

		orderID, flag := f.svc.HandleReturn(context.Background(), url.Values{})
		assert.Empty(t, orderID)
		assert.Equal(t, ReturnFlagChecksumFailed, flag)
	})

	t.Run("settlement error", func(t *testing.T) {
		f := newPaymentServiceFixture(t)
		f.gateway.verifyFn = func(_ url.Values) (*gateway.Callback, error) {
			return successCallback(), nil
		}
		f.repo.getByIDFn = func(_ context.Context, _ string) (*models.Order, error) {
			return unpaidOrder(), nil
		}
		f.repo.markPaidFn = func(_ context.Context, _ string, _ models.PaymentReceipt) (bool, error) {
			return false, apperrors.Internal("database down", nil)
		}

		orderID, flag := f.svc.HandleReturn(context.Background(), url.Values{})
		assert.Equal(t, "order-1", orderID)
		assert.Equal(t, ReturnFlagError, flag)
	})
}
