package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/classpilot-io/AI-grading/internal/middleware"
	"github.com/classpilot-io/AI-grading/internal/relay"
	"github.com/classpilot-io/AI-grading/internal/service"
	"github.com/classpilot-io/AI-grading/internal/utils"
	"github.com/classpilot-io/AI-grading/internal/worker"
	"github.com/classpilot-io/AI-grading/pkg/ai"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

func parseUUIDParam(c *fiber.Ctx, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Params(key)))
	if err != nil {
		return uuid.Nil, errors.New("invalid " + key)
	}
	return id, nil
}

func actorFromContext(c *fiber.Ctx) service.Actor {
	session := middleware.CurrentSession(c)
	return service.Actor{ID: session.UserID, Role: session.Role}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// formFile returns the first file uploaded under key, or nil when absent.
func formFile(c *fiber.Ctx, key string) *multipart.FileHeader {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	files := form.File[key]
	if len(files) == 0 {
		return nil
	}
	return files[0]
}

// respondError maps domain errors onto the JSON error envelope. Unknown errors are
// logged and reported as 500.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request", validationDetails(validationErrors))
	case errors.Is(err, grading.ErrUnsupportedSubject),
		errors.Is(err, service.ErrSubmissionFileRequired),
		errors.Is(err, service.ErrUnsupportedFileType),
		errors.Is(err, service.ErrSubjectImmutable):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrClassSummaryNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrGradingInProgress),
		errors.Is(err, service.ErrNoGradedSubmissions),
		errors.Is(err, service.ErrEmailTaken):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, grading.ErrFileFetch):
		return utils.SendError(c, fiber.StatusBadGateway, "submission file could not be fetched")
	case errors.Is(err, ai.ErrStreamStart),
		errors.Is(err, relay.ErrStreamTransport):
		requestLogger(logger, c).Warn().Err(err).Msg("model provider unavailable")
		return utils.SendError(c, fiber.StatusBadGateway, "grading model unavailable")
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrQueueClosed):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "grading queue is busy, retry later")
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[fieldErr.Field()] = fieldErr.Tag()
	}
	return details
}
