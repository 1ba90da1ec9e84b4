package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nutrinea/nutrinea/app/controllers"
)

// WebhookRouter exposes the public endpoints: the gateway callback and the
// health probe. Neither is rate limited so gateway retries are never refused.
type WebhookRouter struct {
	billing *controllers.BillingController
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	webhooks := app.Group("/webhooks")
	webhooks.Get("/asaas", h.billing.HandleAsaasWebhookInfo)
	webhooks.Post("/asaas", h.billing.HandleAsaasWebhook)
}

func NewWebhookRouter(bc *controllers.BillingController) *WebhookRouter {
	return &WebhookRouter{billing: bc}
}
