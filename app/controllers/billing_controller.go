package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nutrinea/nutrinea/internal/pkg/billing"
)

const (
	webhookTimeout = 15 * time.Second
	apiTimeout     = 20 * time.Second
)

// WebhookStats reads the per-event delivery counters.
type WebhookStats interface {
	Snapshot(ctx context.Context) (map[string]map[string]int64, error)
	Drain(ctx context.Context) (map[string]map[string]int64, error)
}

// BillingController serves the webhook endpoint and the internal subscription API.
type BillingController struct {
	service    *billing.Service
	dispatcher *billing.Dispatcher
	stats      WebhookStats
}

func NewBillingController(service *billing.Service, dispatcher *billing.Dispatcher) *BillingController {
	return &BillingController{service: service, dispatcher: dispatcher}
}

func (bc *BillingController) WithStats(stats WebhookStats) *BillingController {
	bc.stats = stats
	return bc
}

// HandleAsaasWebhookInfo answers the gateway's reachability probe.
func (bc *BillingController) HandleAsaasWebhookInfo(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Asaas webhook endpoint. Deliveries must be sent with POST.",
	})
}

// HandleAsaasWebhook logs and processes one delivery. Only an unparsable body
// is rejected; everything else is acknowledged so the gateway does not retry.
func (bc *BillingController) HandleAsaasWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	resp := bc.dispatcher.Dispatch(ctx, rawBody)
	if resp.StatusCode == fiber.StatusBadRequest {
		return c.Status(fiber.StatusBadRequest).SendString(resp.Message)
	}
	return c.Status(resp.StatusCode).JSON(fiber.Map{"message": resp.Message})
}

// HandleGetSubscription returns the effective tier of a user.
func (bc *BillingController) HandleGetSubscription(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
	defer cancel()

	view, err := bc.service.GetSubscription(ctx, c.Params("id"))
	if err != nil {
		return billingError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id":                  view.UserID,
		"effective_status":         view.EffectiveStatus,
		"stored_status":            view.StoredStatus,
		"expires_at":               formatTimePtr(view.ExpiresAt),
		"external_subscription_id": view.ExternalSubscriptionID,
		"limits":                   view.Limits,
	})
}

// HandleCancelSubscription demotes the user and cancels upstream best-effort.
func (bc *BillingController) HandleCancelSubscription(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
	defer cancel()

	change, err := bc.service.Cancel(ctx, c.Params("id"))
	if err != nil {
		return billingError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id":    change.UserID,
		"status":     change.Status,
		"expires_at": formatTimePtr(change.ExpiresAt),
		"message":    change.Message,
	})
}

// HandleStartCheckout opens a charge or recurring subscription at the gateway.
func (bc *BillingController) HandleStartCheckout(c *fiber.Ctx) error {
	var req billing.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	req.UserID = c.Params("id")

	ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
	defer cancel()

	res, err := bc.service.StartCheckout(ctx, req)
	if err != nil {
		return billingError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

type verifyPaymentRequest struct {
	PaymentID string `json:"payment_id"`
}

// HandleVerifyPayment re-checks a payment for clients returning from checkout.
func (bc *BillingController) HandleVerifyPayment(c *fiber.Ctx) error {
	var req verifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
	defer cancel()

	res, err := bc.service.VerifyPayment(ctx, c.Params("id"), req.PaymentID)
	if err != nil {
		return billingError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

// HandleListWebhookLogs pages through the audit log, newest first.
func (bc *BillingController) HandleListWebhookLogs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
	defer cancel()

	entries, total, err := bc.service.ListWebhookLogs(ctx, offset, limit)
	if err != nil {
		return billingError(c, err)
	}

	items := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		items = append(items, fiber.Map{
			"id":         e.ID,
			"event":      e.Event,
			"status":     e.Status,
			"details":    e.Details,
			"payload":    e.Payload,
			"created_at": e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"items":  items,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// HandleWebhookStats returns delivery counts by event and outcome. With
// reset=true the counters are drained.
func (bc *BillingController) HandleWebhookStats(c *fiber.Ctx) error {
	if bc.stats == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Webhook counters not available"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
	defer cancel()

	read := bc.stats.Snapshot
	if c.QueryBool("reset", false) {
		read = bc.stats.Drain
	}
	counts, err := read(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not read webhook counters"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"events": counts})
}
