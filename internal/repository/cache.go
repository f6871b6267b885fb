package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/config"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
)

const (
	orderKeyPrefix  = "order:"
	buyerOrdersKey  = "buyer_orders:"
	defaultCacheTTL = 5 * time.Minute
)

// RedisOrderCache is a read-through cache for order records, keyed by order
// id and by buyer id. Every mutation of an order must invalidate both keys.
type RedisOrderCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisOrderCache(cfg config.RedisConfig, logger zerolog.Logger) *RedisOrderCache {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}

	return &RedisOrderCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "order-cache").Logger(),
	}
}

// Get returns the cached order, or nil on a miss.
func (c *RedisOrderCache) Get(ctx context.Context, id string) (*models.Order, error) {
	data, err := c.client.Get(ctx, orderKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.logger.Error().Err(err).Str("order_id", id).Msg("cache get failed")
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *RedisOrderCache) Set(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, orderKeyPrefix+order.ID, data, c.ttl).Err(); err != nil {
		c.logger.Error().Err(err).Str("order_id", order.ID).Msg("cache set failed")
		return err
	}
	return nil
}

func (c *RedisOrderCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, orderKeyPrefix+id).Err()
}

// GetByBuyer returns the cached first page of a buyer's orders, nil on miss.
func (c *RedisOrderCache) GetByBuyer(ctx context.Context, buyerID string) ([]*models.Order, error) {
	data, err := c.client.Get(ctx, buyerOrdersKey+buyerID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var orders []*models.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *RedisOrderCache) SetByBuyer(ctx context.Context, buyerID string, orders []*models.Order) error {
	data, err := json.Marshal(orders)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, buyerOrdersKey+buyerID, data, c.ttl).Err()
}

func (c *RedisOrderCache) InvalidateBuyer(ctx context.Context, buyerID string) error {
	return c.client.Del(ctx, buyerOrdersKey+buyerID).Err()
}

// Ping checks the Redis connection.
func (c *RedisOrderCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisOrderCache) Close() error {
	return c.client.Close()
}
