// Package main provides the Nodeloom local API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/nodeloom/nodeloom/pkg/drafts"
	"github.com/nodeloom/nodeloom/pkg/eventbus"
	"github.com/nodeloom/nodeloom/pkg/web"
)

type API struct {
	logger   *slog.Logger
	drafts   drafts.Repository
	eventBus eventbus.EventBus
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	repo drafts.Repository,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:   logger,
		drafts:   repo,
		eventBus: eventBus,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.drafts, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Nodeloom API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
