package router

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/classpilot-io/AI-grading/internal/config"
	"github.com/classpilot-io/AI-grading/internal/handler"
	"github.com/classpilot-io/AI-grading/internal/middleware"
	"github.com/classpilot-io/AI-grading/internal/models"
	"github.com/classpilot-io/AI-grading/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	DB                  *gorm.DB
	AssignmentHandler   *handler.AssignmentHandler
	SubmissionHandler   *handler.SubmissionHandler
	ClassSummaryHandler *handler.ClassSummaryHandler
	UserHandler         *handler.UserHandler
	// SessionMiddleware attaches the caller's session when a token is present.
	SessionMiddleware fiber.Handler
	// GradingLimiter throttles routes that call the model.
	GradingLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	sessionMiddleware := deps.SessionMiddleware
	if sessionMiddleware == nil {
		sessionMiddleware = passThrough
	}

	limiter := deps.GradingLimiter
	if limiter == nil {
		limiter = passThrough
	}

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.DB))

	api.Use(sessionMiddleware)
	authenticated := middleware.RequireSession()
	teacherOnly := middleware.RequireRole(models.RoleTeacher)

	assignments := api.Group("/assignment")
	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(assignments, teacherOnly)
	}
	if deps.ClassSummaryHandler != nil {
		deps.ClassSummaryHandler.Register(assignments, teacherOnly, limiter)
	}

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.RegisterAssignmentRoutes(assignments, teacherOnly)
		deps.SubmissionHandler.Register(api.Group("/submission"), limiter, authenticated)
	}

	if deps.UserHandler != nil {
		deps.UserHandler.Register(api.Group("/users"), authenticated)
	}
}

func passThrough(c *fiber.Ctx) error {
	return c.Next()
}
