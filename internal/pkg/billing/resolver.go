package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

type resolveStrategy struct {
	name    string
	resolve func(ctx context.Context, ev *WebhookEvent) (string, error)
}

// Resolver attributes a webhook event to a local user id. Strategies run in a
// fixed order and the first non-empty answer wins.
type Resolver struct {
	repo       Repository
	gateway    Gateway
	cache      CustomerRefCache
	strategies []resolveStrategy
}

// NewResolver builds a resolver. gateway and cache may be nil, which disables
// the remote customer lookup and its cache respectively.
func NewResolver(repo Repository, gateway Gateway, cache CustomerRefCache) *Resolver {
	r := &Resolver{repo: repo, gateway: gateway, cache: cache}
	r.strategies = []resolveStrategy{
		{name: "payment.metadata.userId", resolve: fromPaymentMetadata},
		{name: "payment.externalReference", resolve: fromPaymentReference},
		{name: "subscription.externalReference", resolve: fromSubscriptionReference},
		{name: "customer.externalReference", resolve: fromCustomerReference},
		{name: "stored customer link", resolve: r.fromStoredCustomer},
		{name: "gateway customer lookup", resolve: r.fromGatewayCustomer},
	}
	return r
}

// Strategies lists the strategy names in evaluation order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.name
	}
	return names
}

// ResolveUserID returns the user id for ev, or "" when every strategy misses.
// Lookup failures count as misses.
func (r *Resolver) ResolveUserID(ctx context.Context, ev *WebhookEvent) string {
	if ev == nil {
		return ""
	}
	for _, s := range r.strategies {
		id, err := s.resolve(ctx, ev)
		if err != nil {
			log.Warnf("[Billing] identity strategy %q failed: %v", s.name, err)
			continue
		}
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}

func fromPaymentMetadata(_ context.Context, ev *WebhookEvent) (string, error) {
	if ev.Payment == nil {
		return "", nil
	}
	return ev.Payment.Metadata.UserID, nil
}

func fromPaymentReference(_ context.Context, ev *WebhookEvent) (string, error) {
	if ev.Payment == nil {
		return "", nil
	}
	return ev.Payment.ExternalReference, nil
}

func fromSubscriptionReference(_ context.Context, ev *WebhookEvent) (string, error) {
	if ev.Subscription == nil {
		return "", nil
	}
	return ev.Subscription.ExternalReference, nil
}

func fromCustomerReference(_ context.Context, ev *WebhookEvent) (string, error) {
	if ev.Customer == nil {
		return "", nil
	}
	return ev.Customer.ExternalReference, nil
}

func (r *Resolver) fromStoredCustomer(ctx context.Context, ev *WebhookEvent) (string, error) {
	customerID := ev.CustomerID()
	if customerID == "" || r.repo == nil {
		return "", nil
	}
	user, err := r.repo.FindUserByExternalCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return user.ID, nil
}

func (r *Resolver) fromGatewayCustomer(ctx context.Context, ev *WebhookEvent) (string, error) {
	customerID := ev.CustomerID()
	if customerID == "" || r.gateway == nil {
		return "", nil
	}
	if r.cache != nil {
		if ref, ok := r.cache.Get(ctx, customerID); ok {
			return ref, nil
		}
	}
	customer, err := r.gateway.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrGatewayNotFound) {
			return "", nil
		}
		return "", err
	}
	if r.cache != nil {
		r.cache.Set(ctx, customerID, customer.ExternalReference)
	}
	return customer.ExternalReference, nil
}
