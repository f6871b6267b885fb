package coupon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/apperrors"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "SALE10", Normalize("  sale10 "))
	assert.Equal(t, "SALE10", Normalize("Sale10"))
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	base := models.Coupon{
		ID:            "c-1",
		Code:          "SALE10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: 10,
		ExpiresAt:     now.Add(24 * time.Hour),
		UsageLimit:    100,
		UsageCount:    0,
		MinOrderValue: 100000,
		IsActive:      true,
	}

	tests := []struct {
		name         string
		mutate       func(c *models.Coupon)
		orderTotal   int64
		wantConflict bool
	}{
		{
			name:       "eligible",
			mutate:     func(c *models.Coupon) {},
			orderTotal: 500000,
		},
		{
			name:         "inactive",
			mutate:       func(c *models.Coupon) { c.IsActive = false },
			orderTotal:   500000,
			wantConflict: true,
		},
		{
			name:         "expired",
			mutate:       func(c *models.Coupon) { c.ExpiresAt = now.Add(-time.Minute) },
			orderTotal:   500000,
			wantConflict: true,
		},
		{
			name:         "expiring exactly now",
			mutate:       func(c *models.Coupon) { c.ExpiresAt = now },
			orderTotal:   500000,
			wantConflict: true,
		},
		{
			name:         "usage limit reached",
			mutate:       func(c *models.Coupon) { c.UsageCount = 100 },
			orderTotal:   500000,
			wantConflict: true,
		},
		{
			name:         "below minimum order value",
			mutate:       func(c *models.Coupon) {},
			orderTotal:   99999,
			wantConflict: true,
		},
		{
			name:       "exactly minimum order value",
			mutate:     func(c *models.Coupon) {},
			orderTotal: 100000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)

			err := Evaluate(&c, tt.orderTotal, now)
			if !tt.wantConflict {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "got %v", err)
		})
	}
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name       string
		typ        models.DiscountType
		value      int64
		orderTotal int64
		want       int64
	}{
		{"ten percent of 500000", models.DiscountPercentage, 10, 500000, 50000},
		{"percentage truncates", models.DiscountPercentage, 3, 100, 3},
		{"hundred percent", models.DiscountPercentage, 100, 250000, 250000},
		{"fixed amount", models.DiscountFixed, 30000, 500000, 30000},
		{"fixed capped at order total", models.DiscountFixed, 600000, 500000, 500000},
		{"unknown type yields zero", models.DiscountType("bogus"), 50, 500000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Discount(tt.typ, tt.value, tt.orderTotal))
		})
	}
}
