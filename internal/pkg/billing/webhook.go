package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/nutrinea/nutrinea/app/models"
)

const (
	EventPaymentReceived         = "PAYMENT_RECEIVED"
	EventPaymentConfirmed        = "PAYMENT_CONFIRMED"
	EventCheckoutPaid            = "CHECKOUT_PAID"
	EventSubscriptionInactivated = "SUBSCRIPTION_INACTIVATED"
	EventSubscriptionDeleted     = "SUBSCRIPTION_DELETED"
	EventSubscriptionUpdated     = "SUBSCRIPTION_UPDATED"

	subscriptionStatusInactive = "INACTIVE"
)

// PayloadArchiver stores raw deliveries outside the database.
type PayloadArchiver interface {
	Archive(ctx context.Context, id string, payload []byte) error
}

// EventCounter tallies audit entries by event and status.
type EventCounter interface {
	Add(ctx context.Context, event, status string)
}

// Dispatcher turns one webhook delivery into audit entries and at most one
// subscription write. Every delivery is logged, and only an unparsable body
// is answered with a non-2xx status.
type Dispatcher struct {
	service  *Service
	resolver *Resolver
	archiver PayloadArchiver
	counter  EventCounter
}

func NewDispatcher(service *Service, resolver *Resolver) *Dispatcher {
	return &Dispatcher{service: service, resolver: resolver}
}

// WithArchiver enables raw payload archival.
func (d *Dispatcher) WithArchiver(a PayloadArchiver) *Dispatcher {
	d.archiver = a
	return d
}

// WithCounter enables per-event delivery counts.
func (d *Dispatcher) WithCounter(c EventCounter) *Dispatcher {
	d.counter = c
	return d
}

// Dispatch processes one raw delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) (resp WebhookResponse) {
	payload := string(body)

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		d.record(ctx, "", payload, models.WEBHOOK_LOG_FAILURE, "could not parse payload: "+err.Error())
		return WebhookResponse{StatusCode: http.StatusBadRequest, Message: "invalid JSON payload"}
	}

	event := eventName(raw)
	if event == "" {
		d.record(ctx, "", payload, models.WEBHOOK_LOG_FAILURE, "no event field")
		return ack("webhook received without event")
	}

	receipt := d.record(ctx, event, payload, models.WEBHOOK_LOG_SUCCESS, fmt.Sprintf("event '%s' received and logged", event))
	d.archive(ctx, receipt, body)

	// well-formed JSON that does not fit the envelope is logged and acknowledged
	var ev WebhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		d.record(ctx, event, payload, models.WEBHOOK_LOG_FAILURE, "unrecognized payload shape: "+err.Error())
		return ack("webhook received")
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Webhook] handler panic: %v", r)
			d.record(ctx, event, payload, models.WEBHOOK_LOG_FAILURE, fmt.Sprintf("handler panic: %v", r))
			resp = ack("webhook received")
		}
	}()

	switch {
	case isPaymentEvent(event):
		d.handlePayment(ctx, event, payload, &ev)
	case isCancellationEvent(event, &ev):
		d.handleCancellation(ctx, event, payload, &ev)
	default:
		return ack("event acknowledged")
	}
	return ack("webhook processed")
}

func (d *Dispatcher) handlePayment(ctx context.Context, event, payload string, ev *WebhookEvent) {
	if ev.Payment == nil {
		d.record(ctx, event, payload, models.WEBHOOK_LOG_FAILURE, "payload has no payment object")
		return
	}

	userID := d.resolver.ResolveUserID(ctx, ev)
	if userID == "" {
		d.record(ctx, event, payload, models.WEBHOOK_LOG_FAILURE,
			fmt.Sprintf("could not attribute payment %s (customer %s) to a user", ev.Payment.ID, ev.CustomerID()))
		return
	}

	pc := PlanCycleForPayment(ev.Payment)
	change, err := d.service.ApplyPlan(ctx, userID, pc.Plan, pc.Cycle, ev.Payment.Subscription)
	if err != nil {
		d.record(ctx, event, payload, models.WEBHOOK_LOG_FAILURE,
			fmt.Sprintf("payment %s for user %s not applied: %v", ev.Payment.ID, userID, err))
		return
	}
	d.record(ctx, event, payload, models.WEBHOOK_LOG_SUCCESS, change.Message)
}

func (d *Dispatcher) handleCancellation(ctx context.Context, event, payload string, ev *WebhookEvent) {
	userID := d.resolver.ResolveUserID(ctx, ev)
	if userID == "" {
		subID := ""
		if ev.Subscription != nil {
			subID = ev.Subscription.ID
		}
		d.record(ctx, event, payload, models.WEBHOOK_LOG_FAILURE,
			fmt.Sprintf("could not attribute subscription %s (customer %s) to a user", subID, ev.CustomerID()))
		return
	}

	change, err := d.service.Revoke(ctx, userID)
	if err != nil {
		d.record(ctx, event, payload, models.WEBHOOK_LOG_FAILURE,
			fmt.Sprintf("deactivation for user %s failed: %v", userID, err))
		return
	}
	d.record(ctx, event, payload, models.WEBHOOK_LOG_SUCCESS, change.Message)
}

// record appends an audit entry. A failing log write is reported but never
// changes the response to the gateway.
func (d *Dispatcher) record(ctx context.Context, event, payload, status, details string) *models.WebhookLog {
	entry := models.NewWebhookLog(event, payload, status, details)
	if err := d.service.repo.CreateWebhookLog(ctx, entry); err != nil {
		log.Errorf("[Webhook] could not persist audit entry (%s: %s): %v", status, details, err)
	}
	if d.counter != nil {
		d.counter.Add(ctx, event, status)
	}
	return entry
}

func (d *Dispatcher) archive(ctx context.Context, entry *models.WebhookLog, body []byte) {
	if d.archiver == nil {
		return
	}
	if err := d.archiver.Archive(ctx, entry.ID, body); err != nil {
		log.Warnf("[Webhook] payload archive failed for %s: %v", entry.ID, err)
	}
}

// eventName reads the event field from a loosely decoded body. A non-string
// value is kept as its JSON text; anything that is not an object yields "".
func eventName(raw json.RawMessage) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	value, ok := fields["event"]
	if !ok {
		return ""
	}
	var name string
	if err := json.Unmarshal(value, &name); err == nil {
		return strings.TrimSpace(name)
	}
	text := strings.TrimSpace(string(value))
	if text == "null" {
		return ""
	}
	return text
}

func ack(message string) WebhookResponse {
	return WebhookResponse{StatusCode: http.StatusOK, Message: message}
}

func isPaymentEvent(event string) bool {
	switch event {
	case EventPaymentReceived, EventPaymentConfirmed, EventCheckoutPaid:
		return true
	default:
		return false
	}
}

func isCancellationEvent(event string, ev *WebhookEvent) bool {
	switch event {
	case EventSubscriptionInactivated, EventSubscriptionDeleted:
		return true
	case EventSubscriptionUpdated:
		return ev.Subscription != nil &&
			(strings.EqualFold(ev.Subscription.Status, subscriptionStatusInactive) || ev.Subscription.Deleted)
	default:
		return false
	}
}
