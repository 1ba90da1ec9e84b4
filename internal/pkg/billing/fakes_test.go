package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nutrinea/nutrinea/app/models"
)

type fakeGateway struct {
	mu sync.Mutex

	customers      map[string]*AsaasCustomer
	payments       map[string]*AsaasPayment
	cancelErr      error
	getCustomerErr error

	calls            map[string]int
	cancelled        []string
	createdCustomers []CustomerInput
	createdPayments  []ChargeInput
	createdSubs      []SubscriptionInput
	nextID           int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		customers: make(map[string]*AsaasCustomer),
		payments:  make(map[string]*AsaasPayment),
		calls:     make(map[string]int),
	}
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *fakeGateway) track(op string) {
	g.mu.Lock()
	g.calls[op]++
	g.mu.Unlock()
}

func (g *fakeGateway) id(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	return fmt.Sprintf("%s_%03d", prefix, g.nextID)
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	g.track("CancelSubscription")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, subscriptionID)
	return g.cancelErr
}

func (g *fakeGateway) GetPayment(ctx context.Context, paymentID string) (*AsaasPayment, error) {
	g.track("GetPayment")
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, &AsaasError{StatusCode: 404, Method: "GET", Path: "/payments/" + paymentID}
	}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) GetCustomer(ctx context.Context, customerID string) (*AsaasCustomer, error) {
	g.track("GetCustomer")
	if g.getCustomerErr != nil {
		return nil, g.getCustomerErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.customers[customerID]
	if !ok {
		return nil, &AsaasError{StatusCode: 404, Method: "GET", Path: "/customers/" + customerID}
	}
	cp := *c
	return &cp, nil
}

func (g *fakeGateway) FindCustomerByCpfCnpj(ctx context.Context, cpfCnpj string) (*AsaasCustomer, error) {
	g.track("FindCustomerByCpfCnpj")
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.customers {
		if c.CpfCnpj == cpfCnpj {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, in CustomerInput) (*AsaasCustomer, error) {
	g.track("CreateCustomer")
	c := &AsaasCustomer{ID: g.id("cus"), Name: in.Name, Email: in.Email, CpfCnpj: in.CpfCnpj, ExternalReference: in.ExternalReference}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customers[c.ID] = c
	g.createdCustomers = append(g.createdCustomers, in)
	return c, nil
}

func (g *fakeGateway) CreatePayment(ctx context.Context, in ChargeInput) (*AsaasPayment, error) {
	g.track("CreatePayment")
	p := &AsaasPayment{
		ID:                g.id("pay"),
		Customer:          in.Customer,
		Value:             in.Value,
		BillingType:       in.BillingType,
		Status:            "PENDING",
		Description:       in.Description,
		ExternalReference: in.ExternalReference,
		DueDate:           in.DueDate,
		InvoiceURL:        "https://sandbox.asaas.com/i/abc",
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID] = p
	g.createdPayments = append(g.createdPayments, in)
	return p, nil
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, in SubscriptionInput) (*AsaasSubscription, error) {
	g.track("CreateSubscription")
	s := &AsaasSubscription{ID: g.id("sub"), Customer: in.Customer, Status: "ACTIVE", Cycle: in.Cycle, Value: in.Value, Description: in.Description, ExternalReference: in.ExternalReference}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdSubs = append(g.createdSubs, in)
	return s, nil
}

type mapCache struct {
	mu   sync.Mutex
	vals map[string]string
	gets int
}

func newMapCache() *mapCache {
	return &mapCache{vals: make(map[string]string)}
}

func (c *mapCache) Get(ctx context.Context, customerID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.vals[customerID]
	return v, ok && v != ""
}

func (c *mapCache) Set(ctx context.Context, customerID, ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref != "" {
		c.vals[customerID] = ref
	}
}

var fixedNow = time.Date(2026, 1, 31, 14, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func strPtr(s string) *string { return &s }

func newTestUser(id string) *models.User {
	return &models.User{ID: id, Name: "Ana", Email: "ana@example.com", SubscriptionStatus: models.SUBSCRIPTION_FREE}
}
