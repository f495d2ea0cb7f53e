package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler   *handler.SubmissionHandler
	StatusStreamHandler *handler.StatusStreamHandler
	ReviewHandler       *handler.ReviewHandler
	ExamHandler         *handler.ExamHandler
	HealthPinger        handler.Pinger
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthPinger))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2", jwtMiddleware)

	groups := v2.Group("/groups")
	if deps.StatusStreamHandler != nil {
		deps.StatusStreamHandler.Register(groups)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(groups)
	}

	if deps.ReviewHandler != nil || deps.ExamHandler != nil {
		teacher := v2.Group("/teacher/groups", middleware.RequireRole(middleware.AuthRoleTeacher))
		if deps.ReviewHandler != nil {
			deps.ReviewHandler.Register(teacher)
		}
		if deps.ExamHandler != nil {
			deps.ExamHandler.Register(teacher)
		}
	}
}
