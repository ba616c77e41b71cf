package identity

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
)

// NewHTTPServer creates a fiber backed server with the identity routes
// mounted. Applications that already run their own router can call
// RegisterRoutes directly instead.
func NewHTTPServer(opts ...APIControllerOption) (router.Server[*fiber.App], *APIController) {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})

	controller := RegisterRoutes(srv.Router(), opts...)

	return srv, controller
}
