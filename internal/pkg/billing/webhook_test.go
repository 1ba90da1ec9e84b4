package billing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrinea/nutrinea/app/models"
	"github.com/nutrinea/nutrinea/internal/pkg/entitlements"
)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	repo       *MemoryRepository
	gateway    *fakeGateway
}

func newDispatcherFixture(users ...*models.User) *dispatcherFixture {
	repo := NewMemoryRepository(users...)
	gw := newFakeGateway()
	svc := NewService(repo, gw).WithClock(fixedClock)
	return &dispatcherFixture{
		dispatcher: NewDispatcher(svc, NewResolver(repo, gw, nil)),
		repo:       repo,
		gateway:    gw,
	}
}

func (f *dispatcherFixture) dispatch(t *testing.T, body string) WebhookResponse {
	t.Helper()
	return f.dispatcher.Dispatch(context.Background(), []byte(body))
}

func countLogs(logs []models.WebhookLog, status string) int {
	n := 0
	for _, l := range logs {
		if l.Status == status {
			n++
		}
	}
	return n
}

func TestDispatchPaymentWithMetadata(t *testing.T) {
	f := newDispatcherFixture(newTestUser("u1"))

	resp := f.dispatch(t, `{
		"event": "PAYMENT_CONFIRMED",
		"payment": {
			"id": "pay_1",
			"customer": "cus_1",
			"subscription": "sub_1",
			"description": "Assinatura PREMIUM Mensal - Nutrinea",
			"metadata": {"userId": "u1"}
		}
	}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	stored := f.repo.User("u1")
	assert.Equal(t, models.SUBSCRIPTION_PREMIUM, stored.SubscriptionStatus)
	assert.True(t, stored.SubscriptionExpiresAt.Equal(time.Date(2026, 2, 28, 14, 30, 0, 0, time.UTC)))
	assert.Equal(t, "sub_1", stored.SubscriptionID())
	assert.Equal(t, entitlements.PlanPremium, stored.EffectiveStatus(fixedNow))
	assert.Equal(t, 0, f.gateway.total())

	logs := f.repo.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, 2, countLogs(logs, models.WEBHOOK_LOG_SUCCESS))
	assert.Equal(t, "event 'PAYMENT_CONFIRMED' received and logged", logs[0].Details)
}

func TestDispatchEventNameAppearsInOneSuccessEntry(t *testing.T) {
	f := newDispatcherFixture(newTestUser("u1"))

	f.dispatch(t, `{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","externalReference":"u1","description":"profissional anual"}}`)

	mentions := 0
	for _, l := range f.repo.Logs() {
		if l.Status == models.WEBHOOK_LOG_SUCCESS && strings.Contains(l.Details, "PAYMENT_RECEIVED") {
			mentions++
		}
	}
	assert.Equal(t, 1, mentions)
	assert.Equal(t, models.SUBSCRIPTION_PROFESSIONAL, f.repo.User("u1").SubscriptionStatus)
}

func TestDispatchResolvesThroughGatewayCustomer(t *testing.T) {
	f := newDispatcherFixture(newTestUser("u1"))
	f.gateway.customers["cus_1"] = &AsaasCustomer{ID: "cus_1", ExternalReference: "u1"}

	resp := f.dispatch(t, `{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","customer":"cus_1","description":"Assinatura PROFISSIONAL Anual - Nutrinea"}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	stored := f.repo.User("u1")
	assert.Equal(t, models.SUBSCRIPTION_PROFESSIONAL, stored.SubscriptionStatus)
	assert.True(t, stored.SubscriptionExpiresAt.Equal(time.Date(2027, 1, 31, 14, 30, 0, 0, time.UTC)))
	assert.Equal(t, 1, f.gateway.count("GetCustomer"))
}

func TestDispatchUnattributablePayment(t *testing.T) {
	f := newDispatcherFixture(newTestUser("u1"))

	resp := f.dispatch(t, `{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","customer":"cus_ghost","description":"Assinatura PREMIUM Mensal"}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	logs := f.repo.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, 1, countLogs(logs, models.WEBHOOK_LOG_SUCCESS))
	assert.Equal(t, 1, countLogs(logs, models.WEBHOOK_LOG_FAILURE))
	assert.Contains(t, logs[1].Details, "could not attribute payment")
	assert.Equal(t, models.SUBSCRIPTION_FREE, f.repo.User("u1").SubscriptionStatus)
}

func TestDispatchPaymentWithoutPlan(t *testing.T) {
	f := newDispatcherFixture(newTestUser("u1"))

	resp := f.dispatch(t, `{"event":"PAYMENT_CONFIRMED","payment":{"id":"pay_1","externalReference":"u1","description":"doação"}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	logs := f.repo.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, models.WEBHOOK_LOG_FAILURE, logs[1].Status)
	assert.NotContains(t, logs[1].Details, "PAYMENT_CONFIRMED")
	assert.Equal(t, models.SUBSCRIPTION_FREE, f.repo.User("u1").SubscriptionStatus)
}

func TestDispatchInvalidJSON(t *testing.T) {
	f := newDispatcherFixture()

	resp := f.dispatch(t, `{"event": "PAYMENT_RECEIVED",`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	logs := f.repo.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.WEBHOOK_LOG_FAILURE, logs[0].Status)
	assert.Equal(t, `{"event": "PAYMENT_RECEIVED",`, logs[0].Payload)
	assert.Contains(t, logs[0].Details, "could not parse payload")
}

func TestDispatchMistypedFieldsAreLoggedAndAcknowledged(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		event string
	}{
		{
			name:  "payment value as string",
			body:  `{"event":"PAYMENT_RECEIVED","payment":{"value":"19.90","externalReference":"u1","description":"Assinatura PREMIUM Mensal"}}`,
			event: "PAYMENT_RECEIVED",
		},
		{
			name:  "deleted flag as string",
			body:  `{"event":"SUBSCRIPTION_UPDATED","subscription":{"id":"sub_1","deleted":"false","externalReference":"u1"}}`,
			event: "SUBSCRIPTION_UPDATED",
		},
		{
			name:  "numeric event",
			body:  `{"event":42}`,
			event: "42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(newTestUser("u1"))

			resp := f.dispatch(t, tt.body)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			logs := f.repo.Logs()
			require.Len(t, logs, 2)
			assert.Equal(t, models.WEBHOOK_LOG_SUCCESS, logs[0].Status)
			assert.Equal(t, "event '"+tt.event+"' received and logged", logs[0].Details)
			assert.Equal(t, models.WEBHOOK_LOG_FAILURE, logs[1].Status)
			assert.Contains(t, logs[1].Details, "unrecognized payload shape")
			assert.Equal(t, tt.event, logs[1].Event)
			assert.Equal(t, models.SUBSCRIPTION_FREE, f.repo.User("u1").SubscriptionStatus)
		})
	}
}

func TestDispatchTopLevelArrayIsNotRejected(t *testing.T) {
	f := newDispatcherFixture()

	resp := f.dispatch(t, `[{"event":"PAYMENT_RECEIVED"}]`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	logs := f.repo.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.WEBHOOK_LOG_FAILURE, logs[0].Status)
	assert.Equal(t, "no event field", logs[0].Details)
}

func TestEventName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: `{"event":" PAYMENT_CONFIRMED "}`, want: "PAYMENT_CONFIRMED"},
		{raw: `{"event":null}`, want: ""},
		{raw: `{"event":true}`, want: "true"},
		{raw: `{"payment":{}}`, want: ""},
		{raw: `"PAYMENT_RECEIVED"`, want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, eventName([]byte(tt.raw)), tt.raw)
	}
}

func TestDispatchMissingEvent(t *testing.T) {
	f := newDispatcherFixture()

	resp := f.dispatch(t, `{"payment":{"id":"pay_1"}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	logs := f.repo.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.WEBHOOK_LOG_FAILURE, logs[0].Status)
	assert.Equal(t, "no event field", logs[0].Details)
}

func TestDispatchUnknownEventIsAcknowledged(t *testing.T) {
	f := newDispatcherFixture(newTestUser("u1"))

	resp := f.dispatch(t, `{"event":"PAYMENT_CREATED","payment":{"id":"pay_1","externalReference":"u1","description":"premium mensal"}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	logs := f.repo.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.WEBHOOK_LOG_SUCCESS, logs[0].Status)
	assert.Equal(t, models.SUBSCRIPTION_FREE, f.repo.User("u1").SubscriptionStatus)
}

func TestDispatchSubscriptionDeactivation(t *testing.T) {
	events := []string{
		`{"event":"SUBSCRIPTION_DELETED","subscription":{"id":"sub_1","customer":"cus_1","externalReference":"u1"}}`,
		`{"event":"SUBSCRIPTION_INACTIVATED","subscription":{"id":"sub_1","customer":"cus_1","externalReference":"u1"}}`,
		`{"event":"SUBSCRIPTION_UPDATED","subscription":{"id":"sub_1","customer":"cus_1","status":"INACTIVE","externalReference":"u1"}}`,
	}

	for _, body := range events {
		u := newTestUser("u1")
		u.SubscriptionStatus = models.SUBSCRIPTION_PREMIUM
		exp := fixedNow.AddDate(0, 1, 0)
		u.SubscriptionExpiresAt = &exp
		u.ExternalSubscriptionID = strPtr("sub_1")
		f := newDispatcherFixture(u)

		resp := f.dispatch(t, body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		stored := f.repo.User("u1")
		assert.Equal(t, models.SUBSCRIPTION_FREE, stored.SubscriptionStatus, body)
		assert.Nil(t, stored.ExternalSubscriptionID, body)
		assert.Equal(t, 0, f.gateway.count("CancelSubscription"), body)
		assert.Equal(t, 2, countLogs(f.repo.Logs(), models.WEBHOOK_LOG_SUCCESS), body)
	}
}

func TestDispatchActiveSubscriptionUpdateIsIgnored(t *testing.T) {
	u := newTestUser("u1")
	u.SubscriptionStatus = models.SUBSCRIPTION_PREMIUM
	f := newDispatcherFixture(u)

	resp := f.dispatch(t, `{"event":"SUBSCRIPTION_UPDATED","subscription":{"id":"sub_1","status":"ACTIVE","externalReference":"u1"}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.SUBSCRIPTION_PREMIUM, f.repo.User("u1").SubscriptionStatus)
	assert.Len(t, f.repo.Logs(), 1)
}

func TestDispatchCustomerAsBareID(t *testing.T) {
	linked := newTestUser("u1")
	linked.ExternalCustomerID = strPtr("cus_1")
	f := newDispatcherFixture(linked)

	resp := f.dispatch(t, `{"event":"SUBSCRIPTION_DELETED","customer":"cus_1"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, countLogs(f.repo.Logs(), models.WEBHOOK_LOG_SUCCESS))
}

type failingArchiver struct{ calls int }

func (a *failingArchiver) Archive(ctx context.Context, id string, payload []byte) error {
	a.calls++
	return errors.New("bucket unavailable")
}

func TestDispatchArchiveFailureDoesNotChangeOutcome(t *testing.T) {
	f := newDispatcherFixture(newTestUser("u1"))
	archiver := &failingArchiver{}
	f.dispatcher.WithArchiver(archiver)

	resp := f.dispatch(t, `{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","externalReference":"u1","description":"premium mensal"}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, archiver.calls)
	assert.Equal(t, models.SUBSCRIPTION_PREMIUM, f.repo.User("u1").SubscriptionStatus)
}

type tallyCounter map[string]int

func (c tallyCounter) Add(ctx context.Context, event, status string) {
	c[event+"/"+status]++
}

func TestDispatchCountsEveryAuditEntry(t *testing.T) {
	f := newDispatcherFixture(newTestUser("u1"))
	counts := tallyCounter{}
	f.dispatcher.WithCounter(counts)

	f.dispatch(t, `{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","externalReference":"u1","description":"premium mensal"}}`)
	f.dispatch(t, `not json`)

	assert.Equal(t, 2, counts["PAYMENT_RECEIVED/"+models.WEBHOOK_LOG_SUCCESS])
	assert.Equal(t, 1, counts["/"+models.WEBHOOK_LOG_FAILURE])
	assert.Len(t, f.repo.Logs(), 3)
}

type panickingRepo struct {
	*MemoryRepository
}

func (r panickingRepo) UpdateSubscription(ctx context.Context, userID string, update models.SubscriptionUpdate) error {
	panic("lost connection")
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	repo := panickingRepo{NewMemoryRepository(newTestUser("u1"))}
	svc := NewService(repo, nil).WithClock(fixedClock)
	d := NewDispatcher(svc, NewResolver(repo, nil, nil))

	resp := d.Dispatch(context.Background(), []byte(`{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","externalReference":"u1","description":"premium mensal"}}`))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	logs := repo.Logs()
	require.Len(t, logs, 2)
	assert.Contains(t, logs[1].Details, "handler panic")
}
