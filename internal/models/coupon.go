package models

import "time"

// DiscountType selects how a coupon's value is applied.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is a discount code. Codes are stored upper-cased and matched
// case-insensitively.
type Coupon struct {
	ID            string       `json:"id"`
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue int64        `json:"discount_value"`
	ExpiresAt     time.Time    `json:"expires_at"`
	UsageLimit    int          `json:"usage_limit"`
	UsageCount    int          `json:"usage_count"`
	MinOrderValue int64        `json:"min_order_value"`
	IsActive      bool         `json:"is_active"`
}

// Redemption is the outcome of applying a coupon to an order subtotal.
type Redemption struct {
	CouponID string `json:"coupon_id"`
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}
