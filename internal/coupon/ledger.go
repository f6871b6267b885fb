// Package coupon implements the discount code ledger: pure validation of a
// code against an order subtotal, and atomic redemption that consumes
// exactly one use.
package coupon

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/apperrors"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/repository"
)

// Ledger validates and redeems coupons. usage_count <= usage_limit is
// enforced by the conditional UPDATE in Redeem, never by a read-then-write
// pair.
type Ledger struct {
	db     repository.DBTX
	logger zerolog.Logger
	now    func() time.Time
}

func NewLedger(db repository.DBTX, logger zerolog.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger.With().Str("component", "coupon-ledger").Logger(),
		now:    time.Now,
	}
}

// Normalize upper-cases a code for case-insensitive matching.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks a code against an order subtotal without consuming a use.
func (l *Ledger) Validate(ctx context.Context, code string, orderTotal int64) (*models.Redemption, error) {
	c, err := l.fetch(ctx, l.db, Normalize(code))
	if err != nil {
		return nil, err
	}

	if err := Evaluate(c, orderTotal, l.now()); err != nil {
		return nil, err
	}

	return &models.Redemption{
		CouponID: c.ID,
		Code:     c.Code,
		Discount: Discount(c.DiscountType, c.DiscountValue, orderTotal),
	}, nil
}

// Redeem consumes one use of a code. Eligibility lives in the WHERE clause
// of a single UPDATE, so two concurrent redemptions of a coupon's last use
// cannot both succeed. Runs against the caller's transaction so a failed
// order creation also rolls the redemption back.
func (l *Ledger) Redeem(ctx context.Context, q repository.DBTX, code string, orderTotal int64) (*models.Redemption, error) {
	normalized := Normalize(code)

	query := `
		UPDATE coupons
		SET usage_count = usage_count + 1
		WHERE code = $1
		  AND is_active
		  AND expires_at > $2
		  AND usage_count < usage_limit
		  AND min_order_value <= $3
		RETURNING id, discount_type, discount_value
	`

	var (
		id            string
		discountType  models.DiscountType
		discountValue int64
	)
	err := q.QueryRowContext(ctx, query, normalized, l.now(), orderTotal).Scan(&id, &discountType, &discountValue)
	if err == sql.ErrNoRows {
		// The conditional update matched nothing; re-run the pure checks to
		// report which rule failed.
		c, fetchErr := l.fetch(ctx, q, normalized)
		if fetchErr != nil {
			return nil, fetchErr
		}
		if evalErr := Evaluate(c, orderTotal, l.now()); evalErr != nil {
			return nil, evalErr
		}
		return nil, apperrors.Conflict("coupon %s is no longer redeemable", normalized)
	}
	if err != nil {
		l.logger.Error().Err(err).Str("code", normalized).Msg("failed to redeem coupon")
		return nil, apperrors.Internal("failed to redeem coupon", err)
	}

	l.logger.Info().Str("code", normalized).Str("coupon_id", id).Msg("coupon redeemed")

	return &models.Redemption{
		CouponID: id,
		Code:     normalized,
		Discount: Discount(discountType, discountValue, orderTotal),
	}, nil
}

func (l *Ledger) fetch(ctx context.Context, q repository.DBTX, code string) (*models.Coupon, error) {
	query := `
		SELECT id, code, discount_type, discount_value, expires_at,
		       usage_limit, usage_count, min_order_value, is_active
		FROM coupons WHERE code = $1
	`

	var c models.Coupon
	err := q.QueryRowContext(ctx, query, code).Scan(
		&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.ExpiresAt,
		&c.UsageLimit, &c.UsageCount, &c.MinOrderValue, &c.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("coupon %s not found", code)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to fetch coupon", err)
	}

	return &c, nil
}

// Evaluate applies the eligibility rules for a coupon against an order
// subtotal at a given instant.
func Evaluate(c *models.Coupon, orderTotal int64, now time.Time) error {
	switch {
	case !c.IsActive:
		return apperrors.Conflict("coupon %s is not active", c.Code)
	case !c.ExpiresAt.After(now):
		return apperrors.Conflict("coupon %s has expired", c.Code)
	case c.UsageCount >= c.UsageLimit:
		return apperrors.Conflict("coupon %s has reached its usage limit", c.Code)
	case orderTotal < c.MinOrderValue:
		return apperrors.Conflict("order total %d is below the %d minimum for coupon %s", orderTotal, c.MinOrderValue, c.Code)
	}
	return nil
}

// Discount computes the discount amount. Fixed discounts are capped at the
// order total so the computed grand total can never go negative.
func Discount(t models.DiscountType, value, orderTotal int64) int64 {
	var d int64
	switch t {
	case models.DiscountPercentage:
		d = orderTotal * value / 100
	case models.DiscountFixed:
		d = value
	}
	if d > orderTotal {
		d = orderTotal
	}
	return d
}
