package models

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipping  OrderStatus = "shipping"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderItem is a line item snapshotted at creation time. Name, image and
// unit price are copied from the catalog, never live-joined.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// ShippingInfo is the delivery destination for an order.
type ShippingInfo struct {
	FullName string `json:"full_name"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
}

// PaymentReceipt is the minimal record of a settled gateway transaction.
type PaymentReceipt struct {
	TransactionNo string    `json:"transaction_no"`
	ResponseCode  string    `json:"response_code"`
	PayDate       time.Time `json:"pay_date"`
}

// Order is the persisted order record. Amounts are integer VND.
// total_price = items_price + shipping_price - discount_amount, always
// computed server-side.
type Order struct {
	ID             string          `json:"id"`
	BuyerID        string          `json:"buyer_id"`
	SellerID       string          `json:"seller_id"`
	Items          []OrderItem     `json:"items"`
	Shipping       ShippingInfo    `json:"shipping"`
	PaymentMethod  string          `json:"payment_method"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	DiscountAmount int64           `json:"discount_amount"`
	ItemsPrice     int64           `json:"items_price"`
	ShippingPrice  int64           `json:"shipping_price"`
	TotalPrice     int64           `json:"total_price"`
	IsPaid         bool            `json:"is_paid"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	Receipt        *PaymentReceipt `json:"receipt,omitempty"`
	Status         OrderStatus     `json:"status"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsTerminal reports whether no further transition exists out of s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CreateOrderItem is a requested line item. Quantity is binding; unit price
// is advisory and replaced by the catalog price at creation.
type CreateOrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// CreateOrderRequest is the order creation input. ItemsPrice and
// DiscountAmount are client-computed and advisory only; the service
// recomputes both.
type CreateOrderRequest struct {
	Items          []CreateOrderItem `json:"items"`
	Shipping       ShippingInfo      `json:"shipping_info"`
	PaymentMethod  string            `json:"payment_method"`
	ItemsPrice     int64             `json:"items_price"`
	ShippingPrice  int64             `json:"shipping_price"`
	CouponCode     string            `json:"coupon_code,omitempty"`
	DiscountAmount int64             `json:"discount_amount,omitempty"`
}

// UpdateOrderStatusRequest is the seller-driven status transition input.
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status"`
}
