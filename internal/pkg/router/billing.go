package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/nutrinea/nutrinea/app/controllers"
	"github.com/nutrinea/nutrinea/app/repository"
	"github.com/nutrinea/nutrinea/internal/pkg/billing"
	"github.com/nutrinea/nutrinea/internal/pkg/cache"
	"github.com/nutrinea/nutrinea/internal/pkg/metrics/counter"
	"github.com/nutrinea/nutrinea/internal/pkg/s3archive"
)

// NewBillingController wires the billing service from the global repository
// factory, the Asaas configuration, Redis and the optional S3 archive.
func NewBillingController() *controllers.BillingController {
	repo := billing.NewRepositoryFrom(repository.GetGlobalFactory().GetRepositories())

	// nil when Redis is down; the cache and counters are then left unwired
	rdb := reachableRedis(cache.GetClient())

	gateway := newGateway()
	svc := billing.NewService(repo, gateway)
	resolver := billing.NewResolver(repo, gateway, billing.NewRedisCustomerRefCache(rdb))

	dispatcher := billing.NewDispatcher(svc, resolver)
	if archiver := newArchiver(); archiver != nil {
		dispatcher = dispatcher.WithArchiver(archiver)
	}

	bc := controllers.NewBillingController(svc, dispatcher)
	if webhookCounter := counter.NewWebhookCounter(rdb); webhookCounter != nil {
		dispatcher.WithCounter(webhookCounter)
		bc.WithStats(webhookCounter)
	}
	return bc
}

func newGateway() billing.Gateway {
	cfg, err := billing.LoadAsaasConfig()
	if err != nil {
		log.Errorf("[Billing] invalid Asaas configuration: %v", err)
		return nil
	}
	if !cfg.IsConfigured() {
		log.Warn("[Billing] ASAAS_API_KEY not set, gateway calls are disabled")
		return nil
	}
	log.Infof("[Billing] Asaas gateway configured for %s (%s)", cfg.Environment, cfg.ResolvedBaseURL())
	return billing.NewAsaasClient(cfg)
}

func newArchiver() billing.PayloadArchiver {
	cfg, err := s3archive.LoadConfig()
	if err != nil {
		log.Errorf("[S3Archive] invalid configuration: %v", err)
		return nil
	}
	if !cfg.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := s3archive.NewClient(ctx, cfg)
	if err != nil {
		log.Errorf("[S3Archive] could not create S3 client: %v", err)
		return nil
	}
	return client
}

// reachableRedis returns client when it answers a ping, else nil.
func reachableRedis(client *redis.Client) *redis.Client {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("[Cache] Redis at %s unreachable, dependent components disabled: %v", client.Options().Addr, err)
		return nil
	}
	return client
}
