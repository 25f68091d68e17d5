package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/storefront/apiserver/config"
	"github.com/storefront/apiserver/types"
)

const (
	productKeyPrefix = "product:id:"
	versionKeyPrefix = "product:version:"
	defaultTTL       = 5 * time.Minute
	versionTTL       = 24 * time.Hour
)

// setIfVersion stores ARGV[2] under KEYS[1] only while the version counter in
// KEYS[2] still equals ARGV[1]. A missing counter reads as 0.
var setIfVersion = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// ProductCache stores product reads in Redis keyed by product id.
type ProductCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewProductCache connects to Redis and verifies the connection.
func NewProductCache(ctx context.Context, cfg config.RedisConfig) (*ProductCache, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ProductCache{rdb: rdb, ttl: ttl}, nil
}

// Get returns the cached product. The bool is false on a miss.
func (c *ProductCache) Get(ctx context.Context, id string) (types.Product, bool, error) {
	val, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Product{}, false, nil
	}
	if err != nil {
		return types.Product{}, false, err
	}

	var product types.Product
	if err := json.Unmarshal(val, &product); err != nil {
		return types.Product{}, false, err
	}
	return product, true, nil
}

// Version returns the invalidation counter of the product.
func (c *ProductCache) Version(ctx context.Context, id string) (int64, error) {
	v, err := c.rdb.Get(ctx, versionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// SetIfVersion caches the product unless it was invalidated after version was read.
func (c *ProductCache) SetIfVersion(ctx context.Context, product types.Product, version int64) (bool, error) {
	b, err := json.Marshal(product)
	if err != nil {
		return false, err
	}
	keys := []string{productKey(product.ID), versionKey(product.ID)}
	stored, err := setIfVersion.Run(ctx, c.rdb, keys, strconv.FormatInt(version, 10), b, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate drops the cached product and bumps its version in one transaction.
func (c *ProductCache) Invalidate(ctx context.Context, id string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, productKey(id))
		pipe.Incr(ctx, versionKey(id))
		pipe.Expire(ctx, versionKey(id), versionTTL)
		return nil
	})
	return err
}

func (c *ProductCache) Close() error {
	return c.rdb.Close()
}

func productKey(id string) string {
	return productKeyPrefix + id
}

func versionKey(id string) string {
	return versionKeyPrefix + id
}
