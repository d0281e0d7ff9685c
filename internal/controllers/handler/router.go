package handler

import (
	"outreach/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type Router struct {
	handler Handler
	app     *fiber.App
	conf    *config.Config
	logger  *zap.SugaredLogger
}

func NewRouter(handler Handler, app *fiber.App, conf *config.Config, logger *zap.SugaredLogger) *Router {
	return &Router{
		logger:  logger,
		app:     app,
		conf:    conf,
		handler: handler,
	}
}

func (r *Router) RegisterRouter() {
	r.app.Get("/health", r.handler.HealthCheck)

	r.app.Use(
		recover.New(recover.Config{
			EnableStackTrace: true,
		}),
		logger.New(),
	)

	r.app.Route("/outreach", func(router fiber.Router) {
		api := router.Group("/api")

		v1 := api.Group("/v1")

		v1.Post("/campaigns", r.handler.CreateCampaign)
		v1.Patch("/campaigns/:id", r.handler.UpdateCampaign)
		v1.Get("/campaigns/:id", r.handler.GetCampaign)
		v1.Get("/campaigns/:id/analytics", r.handler.GetCampaignAnalytics)
		v1.Post("/campaigns/:id/leads", r.handler.AddLeadsToCampaign)

		v1.Post("/provider/webhook", r.handler.ProviderWebhook)
	})
}
