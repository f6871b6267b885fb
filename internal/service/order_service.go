package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/apperrors"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/metrics"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/repository"
)

// Actor identifies the authenticated caller of a mutation.
type Actor struct {
	ID    string
	Admin bool
}

// TxRunner provides the all-or-nothing boundary around multi-write
// sequences (stock decrements + coupon redemption + order persistence).
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(q repository.DBTX) error) error
}

// OrderRepository persists and reads order records.
type OrderRepository interface {
	Insert(ctx context.Context, q repository.DBTX, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, q repository.DBTX, id string, from, to models.OrderStatus, now time.Time) error
	MarkPaid(ctx context.Context, id string, receipt models.PaymentReceipt, paidAt time.Time) (alreadyPaid bool, err error)
}

// ProductCatalog resolves products and mutates on-hand stock.
type ProductCatalog interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
	DecrementStock(ctx context.Context, q repository.DBTX, id string, qty int) error
	RestoreStock(ctx context.Context, q repository.DBTX, id string, qty int) error
}

// CouponLedger validates and redeems discount codes.
type CouponLedger interface {
	Validate(ctx context.Context, code string, orderTotal int64) (*models.Redemption, error)
	Redeem(ctx context.Context, q repository.DBTX, code string, orderTotal int64) (*models.Redemption, error)
}

// UserDirectory resolves users.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// NotificationSender emits user notifications.
type NotificationSender interface {
	Create(ctx context.Context, userID, title, message, category, link string) error
}

// EventPublisher publishes order lifecycle events.
type EventPublisher interface {
	OrderCreated(ctx context.Context, order *models.Order) error
	OrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error
	OrderPaid(ctx context.Context, order *models.Order) error
	OrderCancelled(ctx context.Context, order *models.Order) error
}

// OrderCache is the read-through cache for order records.
type OrderCache interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	Set(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id string) error
	GetByBuyer(ctx context.Context, buyerID string) ([]*models.Order, error)
	SetByBuyer(ctx context.Context, buyerID string, orders []*models.Order) error
	InvalidateBuyer(ctx context.Context, buyerID string) error
}

// transitions enumerates every legal status change. pending starts the
// machine; completed and cancelled are terminal.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed: {models.OrderStatusShipping, models.OrderStatusCancelled},
	models.OrderStatusShipping:  {models.OrderStatusDelivered, models.OrderStatusCancelled},
	models.OrderStatusDelivered: {models.OrderStatusCompleted},
	models.OrderStatusCompleted: {},
	models.OrderStatusCancelled: {},
}

// sellerTargets are the statuses a seller may drive an order to.
var sellerTargets = map[models.OrderStatus]bool{
	models.OrderStatusConfirmed: true,
	models.OrderStatusShipping:  true,
	models.OrderStatusDelivered: true,
	models.OrderStatusCancelled: true,
}

type notificationTemplate struct {
	title   string
	message string
}

// statusNotifications maps a transition target to the buyer notification it
// emits. The contract is this table, not ad hoc branching.
var statusNotifications = map[models.OrderStatus]notificationTemplate{
	models.OrderStatusConfirmed: {"Order confirmed", "Your order has been confirmed and is being prepared."},
	models.OrderStatusShipping:  {"Order shipped", "The courier has picked up your order."},
	models.OrderStatusDelivered: {"Order delivered", "Your order has been delivered, please review your purchase."},
	models.OrderStatusCancelled: {"Order cancelled", "Your order has been cancelled."},
}

const notificationCategory = "order"

// OrderService owns order creation, cancellation and status transitions.
type OrderService struct {
	store    TxRunner
	orders   OrderRepository
	catalog  ProductCatalog
	coupons  CouponLedger
	users    UserDirectory
	notifier NotificationSender
	events   EventPublisher
	cache    OrderCache
	logger   zerolog.Logger
	now      func() time.Time
}

func NewOrderService(
	store TxRunner,
	orders OrderRepository,
	catalog ProductCatalog,
	coupons CouponLedger,
	users UserDirectory,
	notifier NotificationSender,
	events EventPublisher,
	cache OrderCache,
	logger zerolog.Logger,
) *OrderService {
	return &OrderService{
		store:    store,
		orders:   orders,
		catalog:  catalog,
		coupons:  coupons,
		users:    users,
		notifier: notifier,
		events:   events,
		cache:    cache,
		logger:   logger.With().Str("component", "order-service").Logger(),
		now:      time.Now,
	}
}

// Create validates the request, decrements stock, redeems an optional
// coupon and persists the order as pending — all inside one transaction, so
// a failure partway through leaves no stock decremented and no coupon use
// consumed. Totals are recomputed from catalog prices; the client's figures
// are advisory only.
func (s *OrderService) Create(ctx context.Context, buyerID string, req *models.CreateOrderRequest) (*models.Order, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByID(ctx, buyerID); err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, apperrors.Validation("buyer %s not found", buyerID)
		}
		return nil, err
	}

	// Snapshot items from the catalog. The first item's product determines
	// the order's seller.
	items := make([]models.OrderItem, 0, len(req.Items))
	var sellerID string
	var subtotal int64
	for _, line := range req.Items {
		product, err := s.catalog.FindByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if sellerID == "" {
			sellerID = product.SellerID
		}
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.Image,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
		subtotal += int64(line.Quantity) * product.Price
	}

	if buyerID == sellerID {
		return nil, apperrors.Conflict("buyer cannot order their own products")
	}

	now := s.now()
	order := &models.Order{
		ID:            uuid.NewString(),
		BuyerID:       buyerID,
		SellerID:      sellerID,
		Items:         items,
		Shipping:      req.Shipping,
		PaymentMethod: req.PaymentMethod,
		ItemsPrice:    subtotal,
		ShippingPrice: req.ShippingPrice,
		Status:        models.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.store.WithinTx(ctx, func(q repository.DBTX) error {
		for _, item := range order.Items {
			if err := s.catalog.DecrementStock(ctx, q, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		// An ineligible or exhausted coupon does not block checkout; the
		// order simply proceeds without a discount.
		if req.CouponCode != "" {
			redemption, err := s.coupons.Redeem(ctx, q, req.CouponCode, subtotal)
			switch {
			case err == nil:
				order.CouponCode = redemption.Code
				order.DiscountAmount = redemption.Discount
				metrics.CouponRedemptions.WithLabelValues("redeemed").Inc()
			case apperrors.IsKind(err, apperrors.KindNotFound) || apperrors.IsKind(err, apperrors.KindConflict):
				s.logger.Warn().Err(err).Str("code", req.CouponCode).Msg("coupon not applied")
				metrics.CouponRedemptions.WithLabelValues("rejected").Inc()
			default:
				return err
			}
		}

		order.TotalPrice = order.ItemsPrice + order.ShippingPrice - order.DiscountAmount
		return s.orders.Insert(ctx, q, order)
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	s.logger.Info().
		Str("order_id", order.ID).
		Str("buyer_id", order.BuyerID).
		Int64("total", order.TotalPrice).
		Msg("order created")

	s.afterMutation(ctx, order)
	if err := s.events.OrderCreated(ctx, order); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed to publish order created event")
	}

	return order, nil
}

// Get returns an order, read-through cached. Only the order's buyer, its
// seller or an admin may see it.
func (s *OrderService) Get(ctx context.Context, actor Actor, id string) (*models.Order, error) {
	order, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if !actor.Admin && actor.ID != order.BuyerID && actor.ID != order.SellerID {
		return nil, apperrors.Authorization("order %s does not belong to you", id)
	}

	return order, nil
}

// ListByBuyer returns the acting buyer's orders, first page cached.
func (s *OrderService) ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	if offset == 0 {
		if orders, err := s.cache.GetByBuyer(ctx, buyerID); err == nil && orders != nil {
			return orders, nil
		}
	}

	orders, err := s.orders.ListByBuyer(ctx, buyerID, limit, offset)
	if err != nil {
		return nil, err
	}

	if offset == 0 {
		if err := s.cache.SetByBuyer(ctx, buyerID, orders); err != nil {
			s.logger.Warn().Err(err).Str("buyer_id", buyerID).Msg("failed to cache buyer orders")
		}
	}

	return orders, nil
}

// Cancel is the buyer-driven terminal step out of pending. Stock restored
// for every line item in the same transaction as the status flip.
func (s *OrderService) Cancel(ctx context.Context, actor Actor, id string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !actor.Admin && actor.ID != order.BuyerID {
		return nil, apperrors.Authorization("only the buyer may cancel this order")
	}
	if order.Status != models.OrderStatusPending {
		return nil, apperrors.Conflict("order %s cannot be cancelled in status %s", id, order.Status)
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(q repository.DBTX) error {
		for _, item := range order.Items {
			if err := s.catalog.RestoreStock(ctx, q, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return s.orders.UpdateStatus(ctx, q, id, models.OrderStatusPending, models.OrderStatusCancelled, now)
	})
	if err != nil {
		return nil, err
	}

	order.Status = models.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now

	metrics.StatusTransitions.WithLabelValues(string(models.OrderStatusCancelled)).Inc()
	s.logger.Info().Str("order_id", id).Msg("order cancelled by buyer")

	s.afterMutation(ctx, order)
	if err := s.events.OrderCancelled(ctx, order); err != nil {
		s.logger.Error().Err(err).Str("order_id", id).Msg("failed to publish order cancelled event")
	}

	return order, nil
}

// UpdateStatus is the seller-driven (or admin) transition. Moving to
// cancelled from any non-terminal status restores stock, mirroring Cancel.
func (s *OrderService) UpdateStatus(ctx context.Context, actor Actor, id string, target models.OrderStatus) (*models.Order, error) {
	if !sellerTargets[target] {
		return nil, apperrors.Validation("invalid target status %q", target)
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !actor.Admin && actor.ID != order.SellerID {
		return nil, apperrors.Authorization("only the seller may update this order")
	}
	if !canTransition(order.Status, target) {
		return nil, apperrors.Conflict("cannot move order from %s to %s", order.Status, target)
	}

	previous := order.Status
	now := s.now()

	err = s.store.WithinTx(ctx, func(q repository.DBTX) error {
		if target == models.OrderStatusCancelled {
			for _, item := range order.Items {
				if err := s.catalog.RestoreStock(ctx, q, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}
		return s.orders.UpdateStatus(ctx, q, id, previous, target, now)
	})
	if err != nil {
		return nil, err
	}

	order.Status = target
	order.UpdatedAt = now
	switch target {
	case models.OrderStatusDelivered:
		order.DeliveredAt = &now
	case models.OrderStatusCancelled:
		order.CancelledAt = &now
	}

	metrics.StatusTransitions.WithLabelValues(string(target)).Inc()
	s.logger.Info().
		Str("order_id", id).
		Str("from", string(previous)).
		Str("to", string(target)).
		Msg("order status updated")

	s.afterMutation(ctx, order)
	s.notifyStatus(ctx, order, target)
	if err := s.events.OrderStatusChanged(ctx, order, previous); err != nil {
		s.logger.Error().Err(err).Str("order_id", id).Msg("failed to publish status change event")
	}

	return order, nil
}

// ConfirmReceived is the buyer-driven terminal step out of delivered. The
// seller is told their revenue has been recognized.
func (s *OrderService) ConfirmReceived(ctx context.Context, actor Actor, id string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !actor.Admin && actor.ID != order.BuyerID {
		return nil, apperrors.Authorization("only the buyer may confirm receipt")
	}
	if order.Status != models.OrderStatusDelivered {
		return nil, apperrors.Conflict("order %s is %s, not delivered", id, order.Status)
	}

	previous := order.Status
	now := s.now()
	err = s.store.WithinTx(ctx, func(q repository.DBTX) error {
		return s.orders.UpdateStatus(ctx, q, id, models.OrderStatusDelivered, models.OrderStatusCompleted, now)
	})
	if err != nil {
		return nil, err
	}

	order.Status = models.OrderStatusCompleted
	order.CompletedAt = &now
	order.UpdatedAt = now

	metrics.StatusTransitions.WithLabelValues(string(models.OrderStatusCompleted)).Inc()
	s.logger.Info().Str("order_id", id).Msg("order completed")

	s.afterMutation(ctx, order)
	if err := s.notifier.Create(ctx, order.SellerID,
		"Order completed",
		"The buyer has confirmed receipt; revenue for this order has been recognized.",
		notificationCategory, "/orders/"+order.ID,
	); err != nil {
		s.logger.Error().Err(err).Str("order_id", id).Msg("failed to notify seller")
	}
	if err := s.events.OrderStatusChanged(ctx, order, previous); err != nil {
		s.logger.Error().Err(err).Str("order_id", id).Msg("failed to publish status change event")
	}

	return order, nil
}

func (s *OrderService) fetch(ctx context.Context, id string) (*models.Order, error) {
	if order, err := s.cache.Get(ctx, id); err == nil && order != nil {
		return order, nil
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, order); err != nil {
		s.logger.Warn().Err(err).Str("order_id", id).Msg("failed to cache order")
	}
	return order, nil
}

// afterMutation refreshes the id-keyed cache entry and drops the buyer's
// list page.
func (s *OrderService) afterMutation(ctx context.Context, order *models.Order) {
	if err := s.cache.Set(ctx, order); err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID).Msg("failed to refresh cached order")
	}
	if err := s.cache.InvalidateBuyer(ctx, order.BuyerID); err != nil {
		s.logger.Warn().Err(err).Str("buyer_id", order.BuyerID).Msg("failed to invalidate buyer cache")
	}
}

func (s *OrderService) notifyStatus(ctx context.Context, order *models.Order, target models.OrderStatus) {
	tmpl, ok := statusNotifications[target]
	if !ok {
		return
	}
	if err := s.notifier.Create(ctx, order.BuyerID, tmpl.title, tmpl.message, notificationCategory, "/orders/"+order.ID); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Str("status", string(target)).Msg("failed to notify buyer")
	}
}

func canTransition(from, to models.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func validateCreateRequest(req *models.CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return apperrors.Validation("order must contain at least one item")
	}
	for _, item := range req.Items {
		if item.ProductID == "" {
			return apperrors.Validation("product id is required for every item")
		}
		if item.Quantity <= 0 {
			return apperrors.Validation("quantity must be positive for product %s", item.ProductID)
		}
	}
	if req.Shipping.FullName == "" || req.Shipping.Address == "" || req.Shipping.Phone == "" {
		return apperrors.Validation("shipping name, address and phone are required")
	}
	if req.PaymentMethod == "" {
		return apperrors.Validation("payment method is required")
	}
	if req.ShippingPrice < 0 {
		return apperrors.Validation("shipping price cannot be negative")
	}
	return nil
}
