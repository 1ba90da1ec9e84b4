package billing

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	customerRefKeyPrefix = "nutrinea:asaas:customer-ref:"
	customerRefTTL       = 24 * time.Hour
)

// CustomerRefCache remembers gateway customer -> externalReference lookups.
type CustomerRefCache interface {
	Get(ctx context.Context, customerID string) (string, bool)
	Set(ctx context.Context, customerID, externalReference string)
}

type redisCustomerRefCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCustomerRefCache returns a cache backed by Redis. A nil client
// yields a nil cache, which the resolver treats as disabled.
func NewRedisCustomerRefCache(client *redis.Client) CustomerRefCache {
	if client == nil {
		return nil
	}
	return &redisCustomerRefCache{client: client, ttl: customerRefTTL}
}

func (c *redisCustomerRefCache) Get(ctx context.Context, customerID string) (string, bool) {
	val, err := c.client.Get(ctx, customerRefKeyPrefix+customerID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("[Billing] customer cache read failed for %s: %v", customerID, err)
		}
		return "", false
	}
	return val, val != ""
}

func (c *redisCustomerRefCache) Set(ctx context.Context, customerID, externalReference string) {
	if customerID == "" || externalReference == "" {
		return
	}
	if err := c.client.Set(ctx, customerRefKeyPrefix+customerID, externalReference, c.ttl).Err(); err != nil {
		log.Warnf("[Billing] customer cache write failed for %s: %v", customerID, err)
	}
}
