package router

import (
	"github.com/gofiber/fiber/v2"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	// The webhook and API routers share one controller so both see the same
	// service, resolver and archive wiring.
	bc := NewBillingController()
	setup(app, NewWebhookRouter(bc), NewApiRouter(bc))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
