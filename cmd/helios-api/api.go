// Package main provides the Helios lifecycle API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/helioshq/helios/pkg/directory"
	"github.com/helioshq/helios/pkg/eventbus"
	"github.com/helioshq/helios/pkg/notify"
	"github.com/helioshq/helios/pkg/persistence"
	"github.com/helioshq/helios/pkg/services"
	"github.com/helioshq/helios/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	directory   directory.Directory
	orgID       string
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	dir directory.Directory,
	orgID string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		directory:   dir,
		orgID:       orgID,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	notifier := notify.NewBusNotifier(a.eventBus)
	requestService := services.NewRequests(a.persistence, notifier, a.directory, a.logger, a.orgID)
	taskService := services.NewTasks(a.persistence, a.directory, a.logger, a.orgID)

	handlers := web.NewAPIHandlers(requestService, taskService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Helios API")
	})

	r := app.Group("/requests")
	r.Get("/", handlers.GetRequests)
	r.Post("/", handlers.CreateRequest)
	r.Get("/counts", handlers.GetRequestCounts)
	r.Get("/active-onboardings", handlers.GetActiveOnboardings)
	r.Get("/:id", handlers.GetRequest)
	r.Patch("/:id", handlers.UpdateRequest)
	r.Post("/:id/approve", handlers.ApproveRequest)
	r.Post("/:id/reject", handlers.RejectRequest)
	r.Post("/:id/cancel", handlers.CancelRequest)
	r.Delete("/:id/tasks", handlers.DeleteRequestTasks)

	t := app.Group("/tasks")
	t.Get("/", handlers.GetTasks)
	t.Post("/", handlers.CreateTask)
	t.Post("/batch", handlers.CreateTasks)
	t.Get("/mine", handlers.GetMyTasks)
	t.Get("/counts", handlers.GetTaskCounts)
	t.Get("/overdue", handlers.GetOverdueTasks)
	t.Get("/:id", handlers.GetTask)
	t.Post("/:id/complete", handlers.CompleteTask)
	t.Post("/:id/skip", handlers.SkipTask)
	t.Post("/:id/start", handlers.StartTask)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
