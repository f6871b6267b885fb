package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/apperrors"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
)

// PostgresOrderRepository persists orders. Line items and shipping info are
// stored as JSONB snapshots alongside the priced totals.
type PostgresOrderRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewPostgresOrderRepository(db DBTX, logger zerolog.Logger) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db:     db,
		logger: logger.With().Str("component", "order-repository").Logger(),
	}
}

const orderColumns = `
	id, buyer_id, seller_id, items, shipping, payment_method,
	coupon_code, discount_amount, items_price, shipping_price, total_price,
	is_paid, paid_at, txn_no, txn_response_code, txn_pay_date,
	status, delivered_at, cancelled_at, completed_at, created_at, updated_at
`

// Insert writes a new order inside the caller's transaction.
func (r *PostgresOrderRepository) Insert(ctx context.Context, q DBTX, order *models.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return apperrors.Internal("failed to encode order items", err)
	}
	shippingJSON, err := json.Marshal(order.Shipping)
	if err != nil {
		return apperrors.Internal("failed to encode shipping info", err)
	}

	query := `
		INSERT INTO orders (
			id, buyer_id, seller_id, items, shipping, payment_method,
			coupon_code, discount_amount, items_price, shipping_price, total_price,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err = q.ExecContext(ctx, query,
		order.ID,
		order.BuyerID,
		order.SellerID,
		itemsJSON,
		shippingJSON,
		order.PaymentMethod,
		nullString(order.CouponCode),
		order.DiscountAmount,
		order.ItemsPrice,
		order.ShippingPrice,
		order.TotalPrice,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed to insert order")
		return apperrors.Internal("failed to persist order", err)
	}

	return nil
}

// GetByID retrieves an order by its identifier.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOrder(r.db.QueryRowContext(ctx, query, id))
}

// ListByBuyer returns a buyer's orders, newest first.
func (r *PostgresOrderRepository) ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders WHERE buyer_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, buyerID, limit, offset)
	if err != nil {
		return nil, apperrors.Internal("failed to list orders", err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("failed to list orders", err)
	}

	return orders, nil
}

// UpdateStatus flips an order's status and stamps the matching transition
// timestamp. The WHERE clause is a compare-and-set on the expected current
// status, so two racing transitions out of the same state cannot both
// succeed; the loser gets a conflict and its transaction rolls back any
// stock it restored.
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, q DBTX, id string, from, to models.OrderStatus, now time.Time) error {
	var deliveredAt, cancelledAt, completedAt *time.Time
	switch to {
	case models.OrderStatusDelivered:
		deliveredAt = &now
	case models.OrderStatusCancelled:
		cancelledAt = &now
	case models.OrderStatusCompleted:
		completedAt = &now
	}

	query := `
		UPDATE orders
		SET status = $3, updated_at = $4,
		    delivered_at = COALESCE($5, delivered_at),
		    cancelled_at = COALESCE($6, cancelled_at),
		    completed_at = COALESCE($7, completed_at)
		WHERE id = $1 AND status = $2
	`

	result, err := q.ExecContext(ctx, query, id, from, to, now, deliveredAt, cancelledAt, completedAt)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id).Str("status", string(to)).Msg("failed to update order status")
		return apperrors.Internal("failed to update order status", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		return nil
	}

	// No row matched: the order is gone or its status moved underneath us.
	var current models.OrderStatus
	err = q.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("order %s not found", id)
	}
	if err != nil {
		return apperrors.Internal("failed to check order status", err)
	}

	return apperrors.Conflict("order %s is %s, not %s", id, current, from)
}

// MarkPaid settles an order at most once. The WHERE clause carries the
// idempotency guard: a replayed confirmation matches zero rows and reports
// alreadyPaid instead of mutating anything.
func (r *PostgresOrderRepository) MarkPaid(ctx context.Context, id string, receipt models.PaymentReceipt, paidAt time.Time) (alreadyPaid bool, err error) {
	query := `
		UPDATE orders
		SET is_paid = TRUE, paid_at = $2,
		    txn_no = $3, txn_response_code = $4, txn_pay_date = $5,
		    updated_at = $2
		WHERE id = $1 AND is_paid = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, id, paidAt, receipt.TransactionNo, receipt.ResponseCode, receipt.PayDate)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id).Msg("failed to mark order paid")
		return false, apperrors.Internal("failed to mark order paid", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		return false, nil
	}

	// No row updated: either the order is already paid or it does not exist.
	var isPaid bool
	err = r.db.QueryRowContext(ctx, `SELECT is_paid FROM orders WHERE id = $1`, id).Scan(&isPaid)
	if err == sql.ErrNoRows {
		return false, apperrors.NotFound("order %s not found", id)
	}
	if err != nil {
		return false, apperrors.Internal("failed to check order payment state", err)
	}
	if !isPaid {
		return false, apperrors.Internal("order payment state changed mid-settlement", nil)
	}

	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresOrderRepository) scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var itemsJSON, shippingJSON []byte
	var couponCode, txnNo, txnResponseCode sql.NullString
	var paidAt, txnPayDate, deliveredAt, cancelledAt, completedAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.SellerID,
		&itemsJSON,
		&shippingJSON,
		&order.PaymentMethod,
		&couponCode,
		&order.DiscountAmount,
		&order.ItemsPrice,
		&order.ShippingPrice,
		&order.TotalPrice,
		&order.IsPaid,
		&paidAt,
		&txnNo,
		&txnResponseCode,
		&txnPayDate,
		&order.Status,
		&deliveredAt,
		&cancelledAt,
		&completedAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("order not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to read order", err)
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, apperrors.Internal("failed to decode order items", err)
	}
	if err := json.Unmarshal(shippingJSON, &order.Shipping); err != nil {
		return nil, apperrors.Internal("failed to decode shipping info", err)
	}

	if couponCode.Valid {
		order.CouponCode = couponCode.String
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if txnNo.Valid {
		order.Receipt = &models.PaymentReceipt{
			TransactionNo: txnNo.String,
			ResponseCode:  txnResponseCode.String,
			PayDate:       txnPayDate.Time,
		}
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}
	if cancelledAt.Valid {
		order.CancelledAt = &cancelledAt.Time
	}
	if completedAt.Valid {
		order.CompletedAt = &completedAt.Time
	}

	return &order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
