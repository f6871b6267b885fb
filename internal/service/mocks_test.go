package service

import (
	"context"
	"net/url"
	"time"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/apperrors"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/gateway"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/repository"
)

// mockTx runs the transaction body against a nil handle; the repositories
// underneath are mocks and never touch it.
type mockTx struct {
	calls int
}

func (m *mockTx) WithinTx(ctx context.Context, fn func(q repository.DBTX) error) error {
	m.calls++
	return fn(nil)
}

type mockOrderRepo struct {
	insertFn       func(ctx context.Context, order *models.Order) error
	getByIDFn      func(ctx context.Context, id string) (*models.Order, error)
	listByBuyerFn  func(ctx context.Context, buyerID string, limit, offset int) ([]*models.Order, error)
	updateStatusFn func(ctx context.Context, id string, from, to models.OrderStatus) error
	markPaidFn     func(ctx context.Context, id string, receipt models.PaymentReceipt) (bool, error)
}

func (m *mockOrderRepo) Insert(ctx context.Context, _ repository.DBTX, order *models.Order) error {
	if m.insertFn == nil {
		return nil
	}
	return m.insertFn(ctx, order)
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	if m.getByIDFn == nil {
		return nil, apperrors.NotFound("order %s not found", id)
	}
	return m.getByIDFn(ctx, id)
}

func (m *mockOrderRepo) ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]*models.Order, error) {
	if m.listByBuyerFn == nil {
		return nil, nil
	}
	return m.listByBuyerFn(ctx, buyerID, limit, offset)
}

func (m *mockOrderRepo) UpdateStatus(ctx context.Context, _ repository.DBTX, id string, from, to models.OrderStatus, _ time.Time) error {
	if m.updateStatusFn == nil {
		return nil
	}
	return m.updateStatusFn(ctx, id, from, to)
}

func (m *mockOrderRepo) MarkPaid(ctx context.Context, id string, receipt models.PaymentReceipt, _ time.Time) (bool, error) {
	if m.markPaidFn == nil {
		return false, nil
	}
	return m.markPaidFn(ctx, id, receipt)
}

type mockCatalog struct {
	products  map[string]*models.Product
	decrement map[string]int
	restored  map[string]int
	failStock string
}

func newMockCatalog(products ...*models.Product) *mockCatalog {
	byID := make(map[string]*models.Product)
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockCatalog{
		products:  byID,
		decrement: make(map[string]int),
		restored:  make(map[string]int),
	}
}

func (m *mockCatalog) FindByID(_ context.Context, id string) (*models.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, apperrors.NotFound("product %s not found", id)
	}
	return p, nil
}

func (m *mockCatalog) DecrementStock(_ context.Context, _ repository.DBTX, id string, qty int) error {
	if id == m.failStock {
		return apperrors.Conflict("insufficient stock for product %s", id)
	}
	m.decrement[id] += qty
	return nil
}

func (m *mockCatalog) RestoreStock(_ context.Context, _ repository.DBTX, id string, qty int) error {
	m.restored[id] += qty
	return nil
}

type mockCoupons struct {
	redeemFn    func(ctx context.Context, code string, orderTotal int64) (*models.Redemption, error)
	redeemCalls int
}

func (m *mockCoupons) Validate(ctx context.Context, code string, orderTotal int64) (*models.Redemption, error) {
	if m.redeemFn == nil {
		return nil, apperrors.NotFound("coupon %s not found", code)
	}
	return m.redeemFn(ctx, code, orderTotal)
}

func (m *mockCoupons) Redeem(ctx context.Context, _ repository.DBTX, code string, orderTotal int64) (*models.Redemption, error) {
	m.redeemCalls++
	if m.redeemFn == nil {
		return nil, apperrors.NotFound("coupon %s not found", code)
	}
	return m.redeemFn(ctx, code, orderTotal)
}

type mockUsers struct {
	users map[string]*models.User
}

func (m *mockUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, apperrors.NotFound("user %s not found", id)
}

type sentNotification struct {
	userID string
	title  string
}

type mockNotifier struct {
	sent []sentNotification
}

func (m *mockNotifier) Create(_ context.Context, userID, title, _, _, _ string) error {
	m.sent = append(m.sent, sentNotification{userID: userID, title: title})
	return nil
}

type publishedEvent struct {
	eventType string
	orderID   string
}

type mockPublisher struct {
	events []publishedEvent
}

func (m *mockPublisher) record(eventType string, order *models.Order) error {
	m.events = append(m.events, publishedEvent{eventType: eventType, orderID: order.ID})
	return nil
}

func (m *mockPublisher) OrderCreated(_ context.Context, order *models.Order) error {
	return m.record("order.created", order)
}

func (m *mockPublisher) OrderPaid(_ context.Context, order *models.Order) error {
	return m.record("order.paid", order)
}

func (m *mockPublisher) OrderCancelled(_ context.Context, order *models.Order) error {
	return m.record("order.cancelled", order)
}

func (m *mockPublisher) OrderStatusChanged(_ context.Context, order *models.Order, _ models.OrderStatus) error {
	return m.record("order.status_changed", order)
}

type mockCache struct {
	byID        map[string]*models.Order
	invalidated []string
}

func newMockCache() *mockCache {
	return &mockCache{byID: make(map[string]*models.Order)}
}

func (m *mockCache) Get(_ context.Context, id string) (*models.Order, error) {
	return m.byID[id], nil
}

func (m *mockCache) Set(_ context.Context, order *models.Order) error {
	m.byID[order.ID] = order
	return nil
}

func (m *mockCache) Delete(_ context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

func (m *mockCache) GetByBuyer(_ context.Context, _ string) ([]*models.Order, error) {
	return nil, nil
}

func (m *mockCache) SetByBuyer(_ context.Context, _ string, _ []*models.Order) error {
	return nil
}

func (m *mockCache) InvalidateBuyer(_ context.Context, buyerID string) error {
	m.invalidated = append(m.invalidated, buyerID)
	return nil
}

type mockGateway struct {
	buildFn  func(req gateway.PayURLRequest) (string, error)
	verifyFn func(params url.Values) (*gateway.Callback, error)
}

func (m *mockGateway) BuildPaymentURL(req gateway.PayURLRequest) (string, error) {
	return m.buildFn(req)
}

func (m *mockGateway) VerifyCallback(params url.Values) (*gateway.Callback, error) {
	return m.verifyFn(params)
}
