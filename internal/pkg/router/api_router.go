package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/nutrinea/nutrinea/app/controllers"
	"github.com/nutrinea/nutrinea/internal/pkg/cache"
	"github.com/nutrinea/nutrinea/internal/pkg/env"
	"github.com/nutrinea/nutrinea/internal/pkg/middleware"
)

type ApiRouter struct {
	billing *controllers.BillingController
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", newApiLimiter())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Nutrinea billing api",
		})
	})

	v1 := api.Group("/v1", middleware.ServiceKeyAuth(env.GetEnv("SERVICE_API_KEY", "")))

	v1.Get("/users/:id/subscription", h.billing.HandleGetSubscription)
	v1.Delete("/users/:id/subscription", h.billing.HandleCancelSubscription)
	v1.Post("/users/:id/subscription/checkout", h.billing.HandleStartCheckout)
	v1.Post("/users/:id/subscription/verify", h.billing.HandleVerifyPayment)

	v1.Get("/webhooks/logs", h.billing.HandleListWebhookLogs)
	v1.Get("/webhooks/stats", h.billing.HandleWebhookStats)
}

func NewApiRouter(bc *controllers.BillingController) *ApiRouter {
	return &ApiRouter{billing: bc}
}

// newApiLimiter keeps its counters in Redis database 2 (the cache uses 0) so
// limits hold across replicas. Without Redis the counters stay in memory.
func newApiLimiter() fiber.Handler {
	maxRequests, err := strconv.Atoi(env.GetEnv("API_RATE_LIMIT_MAX", "60"))
	if err != nil || maxRequests <= 0 {
		maxRequests = 60
	}

	cfg := limiter.Config{
		Max:        maxRequests,
		Expiration: 1 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	}

	if reachableRedis(cache.GetClient()) == nil {
		log.Warn("[API] rate limiter falls back to in-memory storage")
		return limiter.New(cfg)
	}

	host, port, password := cache.Endpoint()
	cfg.Storage = redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 2,
	})
	return limiter.New(cfg)
}
