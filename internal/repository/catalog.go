package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/apperrors"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
)

// PostgresProductCatalog resolves products and mutates their on-hand stock.
// Decrement and restore are single conditional statements so concurrent
// orders cannot race a counter past its bound; they take a DBTX so the order
// creation transaction encloses every stock write.
type PostgresProductCatalog struct {
	db     DBTX
	logger zerolog.Logger
}

func NewPostgresProductCatalog(db DBTX, logger zerolog.Logger) *PostgresProductCatalog {
	return &PostgresProductCatalog{
		db:     db,
		logger: logger.With().Str("component", "product-catalog").Logger(),
	}
}

// FindByID retrieves a product by its identifier.
func (c *PostgresProductCatalog) FindByID(ctx context.Context, id string) (*models.Product, error) {
	query := `SELECT id, seller_id, name, image, price, quantity FROM products WHERE id = $1`

	var p models.Product
	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.SellerID, &p.Name, &p.Image, &p.Price, &p.Quantity,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("product %s not found", id)
	}
	if err != nil {
		c.logger.Error().Err(err).Str("product_id", id).Msg("failed to fetch product")
		return nil, apperrors.Internal("failed to fetch product", err)
	}

	return &p, nil
}

// DecrementStock takes qty units off the shelf, but only if they are all
// there. The quantity check lives in the WHERE clause, not in a prior read.
func (c *PostgresProductCatalog) DecrementStock(ctx context.Context, q DBTX, id string, qty int) error {
	query := `UPDATE products SET quantity = quantity - $2 WHERE id = $1 AND quantity >= $2`

	result, err := q.ExecContext(ctx, query, id, qty)
	if err != nil {
		c.logger.Error().Err(err).Str("product_id", id).Int("qty", qty).Msg("failed to decrement stock")
		return apperrors.Internal("failed to decrement stock", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		return nil
	}

	var onHand int
	err = q.QueryRowContext(ctx, `SELECT quantity FROM products WHERE id = $1`, id).Scan(&onHand)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("product %s not found", id)
	}
	if err != nil {
		return apperrors.Internal("failed to check product stock", err)
	}

	return apperrors.Conflict("insufficient stock for product %s: %d on hand, %d requested", id, onHand, qty)
}

// RestoreStock puts qty units back, reversing a creation-time decrement.
func (c *PostgresProductCatalog) RestoreStock(ctx context.Context, q DBTX, id string, qty int) error {
	query := `UPDATE products SET quantity = quantity + $2 WHERE id = $1`

	result, err := q.ExecContext(ctx, query, id, qty)
	if err != nil {
		c.logger.Error().Err(err).Str("product_id", id).Int("qty", qty).Msg("failed to restore stock")
		return apperrors.Internal("failed to restore stock", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperrors.NotFound("product %s not found", id)
	}

	return nil
}
