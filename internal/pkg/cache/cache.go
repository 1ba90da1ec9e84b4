package cache

import (
	"context"
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/nutrinea/nutrinea/internal/pkg/env"
)

var client *redis.Client

// SetupCache initializes the connection to the Redis server. An unreachable
// server is only a warning; callers degrade to uncached behaviour.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		log.Warnf("[Cache] could not connect to Redis at %s: %v", client.Options().Addr, err)
	} else {
		log.Infof("[Cache] connected to Redis: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Endpoint returns host, port and password of the configured server, for
// components that open their own connection (limiter storage).
func Endpoint() (string, int, string) {
	opts := GetClient().Options()
	host, rawPort, err := net.SplitHostPort(opts.Addr)
	if err != nil {
		return "localhost", 6379, opts.Password
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		port = 6379
	}
	return host, port, opts.Password
}
