// Package main provides the Billhawk API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/billhawk/billhawk/pkg/billing"
	"github.com/billhawk/billhawk/pkg/cmd"
	"github.com/billhawk/billhawk/pkg/eventbus"
	"github.com/billhawk/billhawk/pkg/fraud"
	"github.com/billhawk/billhawk/pkg/otelhelper"
	"github.com/billhawk/billhawk/pkg/persistence"
	redispersistence "github.com/billhawk/billhawk/pkg/persistence/redis"
	"github.com/billhawk/billhawk/pkg/reminder"
	"github.com/billhawk/billhawk/pkg/sweeper"
	"github.com/billhawk/billhawk/pkg/web"
	"github.com/billhawk/billhawk/pkg/workflow"
)

type API struct {
	logger    *slog.Logger
	handlers  *web.APIHandlers
	scheduler *reminder.Scheduler
}

func NewAPI(
	ctx context.Context,
	logger *slog.Logger,
	store persistence.Persistence,
	bus eventbus.EventBus,
	busProvider string,
) (*API, error) {
	tracer, err := otelhelper.NewTracer(ctx, "billhawk-api")
	if err != nil {
		return nil, err
	}

	gateways := cmd.NewGatewayRegistry(logger)
	dispatcher := cmd.NewDispatcher(store, logger)
	scheduler := reminder.NewScheduler(store, dispatcher, bus, nil, logger)
	sweep := sweeper.NewSweeper(store, scheduler, bus, nil, logger)

	var velocity fraud.VelocityStore = fraud.NewMemoryVelocityStore()
	if redisStore, ok := store.(*redispersistence.Persistence); ok {
		velocity = fraud.NewRedisVelocityStore(redisStore.Client())
	}

	screen := fraud.NewScreen(fraud.Config{}, velocity, logger)

	billingService := billing.NewService(gateways, screen, store, bus, scheduler, tracer, logger)

	// With the in-process bus, published events only reach a subscriber in
	// this process, so the rule engine runs here. Kafka deployments run it in
	// billhawk-automation instead.
	if busProvider == "gochannel" || busProvider == "" {
		registry := cmd.NewRegistry(store, dispatcher, logger)
		engine := workflow.NewEngine(store.AutomationRules(), store.WorkflowExecutions(),
			store.AutomationLogs(), registry, logger)

		if err := engine.BindEventBus(bus); err != nil {
			return nil, err
		}

		if err := bus.Subscribe(ctx); err != nil {
			return nil, err
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	handlers := web.NewAPIHandlers(billingService, scheduler, sweep, store, validate, logger)

	return &API{
		logger:    logger,
		handlers:  handlers,
		scheduler: scheduler,
	}, nil
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Billhawk API")
	})

	a.handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	defer a.scheduler.Stop()

	return a.App().Listen(":" + strconv.Itoa(port))
}
