package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrCacheMiss is returned by ProductCache.Get when nothing is cached.
var ErrCacheMiss = errors.New("cache miss")

// ProductCache is a read-through cache of product documents
type ProductCache struct {
	client  *Client
	baseTTL time.Duration
}

func NewProductCache(client *Client) *ProductCache {
	return &ProductCache{
		client:  client,
		baseTTL: 5 * time.Minute,
	}
}

func (p *ProductCache) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	data, err := p.client.rdb.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return &product, nil
}

func (p *ProductCache) Set(ctx context.Context, product *models.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(60)) * time.Second
	if err := p.client.rdb.Set(ctx, productKey(product.ID), data, p.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (p *ProductCache) Delete(ctx context.Context, id uuid.UUID) error {
	if err := p.client.rdb.Del(ctx, productKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func productKey(id uuid.UUID) string {
	return fmt.Sprintf("product:%s", id)
}
