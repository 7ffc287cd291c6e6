package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/classpilot-io/AI-grading/internal/service"
	"github.com/classpilot-io/AI-grading/internal/utils"
)

// ClassSummaryHandler serves generated class overviews.
type ClassSummaryHandler struct {
	service service.ClassSummaryService
	logger  zerolog.Logger
}

// NewClassSummaryHandler constructs the handler.
func NewClassSummaryHandler(service service.ClassSummaryService, logger zerolog.Logger) *ClassSummaryHandler {
	return &ClassSummaryHandler{
		service: service,
		logger:  logger.With().Str("component", "class_summary_handler").Logger(),
	}
}

// Register attaches the summary routes under the assignment group.
func (h *ClassSummaryHandler) Register(router fiber.Router, teacherOnly, limit fiber.Handler) {
	router.Post("/:id/class-summary", teacherOnly, limit, h.generate)
	router.Get("/:id/class-summary", teacherOnly, h.latest)
}

func (h *ClassSummaryHandler) generate(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	summary, err := h.service.Generate(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "class summary generated", summary)
}

func (h *ClassSummaryHandler) latest(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	summary, err := h.service.Latest(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "class summary retrieved", summary)
}
