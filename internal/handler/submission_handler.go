package handler

import (
	"bufio"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/classpilot-io/AI-grading/internal/dto"
	"github.com/classpilot-io/AI-grading/internal/middleware"
	"github.com/classpilot-io/AI-grading/internal/service"
	"github.com/classpilot-io/AI-grading/internal/utils"
)

// SubmissionHandler manages submission and grading endpoints.
type SubmissionHandler struct {
	grading     service.GradingService
	submissions service.SubmissionService
	logger      zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(grading service.GradingService, submissions service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		grading:     grading,
		submissions: submissions,
		logger:      logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. limit guards the
// endpoints that reach the model; submitting works without a session.
func (h *SubmissionHandler) Register(router fiber.Router, limit, authenticated fiber.Handler) {
	router.Post("", limit, h.grade)
	router.Post("/upload", limit, h.upload)
	router.Post("/:id/grade", authenticated, limit, h.regrade)
	router.Get("/:id", authenticated, h.get)
	router.Delete("/:id", authenticated, h.delete)
}

// RegisterAssignmentRoutes attaches the per-assignment submission listing.
func (h *SubmissionHandler) RegisterAssignmentRoutes(router fiber.Router, teacherOnly fiber.Handler) {
	router.Get("/:id/submissions", teacherOnly, h.listByAssignment)
}

// grade uploads the answer file and streams the model output back as plain text.
// Failures before the first byte are reported as JSON errors.
func (h *SubmissionHandler) grade(c *fiber.Ctx) error {
	payload, err := h.parseSubmission(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	run, err := h.grading.Start(requestContext(c), actorFromContext(c), payload, formFile(c, "answerFile"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	logger := requestLogger(h.logger, c)

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("X-Accel-Buffering", "no")
	c.Set(middleware.HeaderGradingSubject, string(run.Subject))

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if err := run.Stream(w); err != nil {
			logger.Debug().Err(err).Msg("grading stream ended with error")
		}
	})

	return nil
}

func (h *SubmissionHandler) upload(c *fiber.Ctx) error {
	payload, err := h.parseSubmission(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	queued, err := h.submissions.Upload(requestContext(c), actorFromContext(c), payload, formFile(c, "answerFile"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "submission queued for grading", queued)
}

func (h *SubmissionHandler) regrade(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	queued, err := h.submissions.Regrade(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "submission queued for grading", queued)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.submissions.Get(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) listByAssignment(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submissions, err := h.submissions.ListByAssignment(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, submissions, "submissions retrieved", fiber.Map{"count": len(submissions)})
}

func (h *SubmissionHandler) delete(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.submissions.Delete(requestContext(c), actorFromContext(c), id); err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission deleted", nil)
}

func (h *SubmissionHandler) parseSubmission(c *fiber.Ctx) (dto.SubmissionCreateRequest, error) {
	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return dto.SubmissionCreateRequest{}, err
	}
	return payload, nil
}
