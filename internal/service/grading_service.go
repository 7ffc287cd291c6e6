package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"mime/multipart"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/classpilot-io/AI-grading/internal/dto"
	"github.com/classpilot-io/AI-grading/internal/models"
	"github.com/classpilot-io/AI-grading/internal/observability"
	"github.com/classpilot-io/AI-grading/internal/relay"
	"github.com/classpilot-io/AI-grading/internal/repository"
	"github.com/classpilot-io/AI-grading/pkg/ai"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

var (
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrSubmissionFileRequired indicates the multipart answer file was missing.
	ErrSubmissionFileRequired = errors.New("answer file is required")
	// ErrUnsupportedFileType indicates the answer file is neither a PDF nor an image.
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

const (
	defaultGradingTimeout = 90 * time.Second
	lockMargin            = 30 * time.Second
	persistTimeout        = 10 * time.Second
)

// GradingService runs the upload, model call, relay and persistence pipeline.
type GradingService interface {
	Start(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (*GradingRun, error)
	Store(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error)
	GradeStored(ctx context.Context, submissionID uuid.UUID) error
}

// GradingConfig tunes the pipeline.
type GradingConfig struct {
	Timeout time.Duration
}

type gradingService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	uploader    FileUploader
	builder     *grading.RequestBuilder
	streamer    ai.Streamer
	locker      GradingLocker
	publisher   EventPublisher
	validator   *validator.Validate
	timeout     time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGradingService wires the grading pipeline. publisher may be nil.
func NewGradingService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	uploader FileUploader,
	builder *grading.RequestBuilder,
	streamer ai.Streamer,
	locker GradingLocker,
	publisher EventPublisher,
	validate *validator.Validate,
	cfg GradingConfig,
	logger zerolog.Logger,
) GradingService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGradingTimeout
	}
	if locker == nil {
		locker = noopLocker{}
	}

	return &gradingService{
		assignments: assignments,
		submissions: submissions,
		uploader:    uploader,
		builder:     builder,
		streamer:    streamer,
		locker:      locker,
		publisher:   publisher,
		validator:   validate,
		timeout:     timeout,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		now:         time.Now,
	}
}

// GradingRun is a started model stream waiting to be relayed to a client.
type GradingRun struct {
	Subject      grading.Subject
	AssignmentID uuid.UUID
	FileURL      string

	ctx      context.Context
	cancel   context.CancelFunc
	chunks   iter.Seq2[string, error]
	finalize relay.Finalizer
	release  func()
	span     trace.Span
	logger   zerolog.Logger
	once     sync.Once
}

// Stream relays the model output to w and persists the outcome. It must be called
// at most once; Close releases the run without streaming.
func (r *GradingRun) Stream(w relay.FlushWriter) error {
	defer r.Close()

	subject := string(r.Subject)
	observability.GradingInFlight().Inc()
	defer observability.GradingInFlight().Dec()

	rl := relay.New(relay.WithChunkObserver(func(n int) {
		observability.RelayedBytes().WithLabelValues(subject).Add(float64(n))
	}))

	start := time.Now()
	err := rl.Run(r.ctx, r.chunks, w, r.finalize)
	outcome := gradingOutcome(err)
	observability.GradingOutcomes().WithLabelValues(subject, outcome).Inc()

	r.span.SetAttributes(
		attribute.String("grading.outcome", outcome),
		attribute.Int("grading.chunks", rl.Chunks()),
	)

	event := r.logger.Info()
	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, outcome)
		event = r.logger.Warn().Err(err)
	}
	event.
		Str("outcome", outcome).
		Str("state", rl.State().String()).
		Int("chunks", rl.Chunks()).
		Dur("duration", time.Since(start)).
		Msg("grading run finished")

	return err
}

// Close releases the model stream, the lock and the trace span. It is idempotent.
func (r *GradingRun) Close() {
	r.once.Do(func() {
		r.cancel()
		r.release()
		r.span.End()
	})
}

func gradingOutcome(err error) string {
	switch {
	case err == nil:
		return "graded"
	case errors.Is(err, grading.ErrMalformedGradingJSON):
		return "malformed"
	case errors.Is(err, relay.ErrStreamTransport):
		return "upstream_error"
	case errors.Is(err, relay.ErrClientGone):
		return "client_gone"
	default:
		return "persist_error"
	}
}

func (s *gradingService) Start(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (*GradingRun, error) {
	submission, assignment, template, err := s.prepare(ctx, actor, payload, file)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, gradingLockKey(assignment.ID, submission.StudentIdentifier), s.timeout+lockMargin)
	if err != nil {
		return nil, err
	}

	fileURL, err := s.storeFile(ctx, assignment.ID, submission.StudentIdentifier, file)
	if err != nil {
		release()
		return nil, err
	}
	submission.SubmissionFilePath = fileURL

	run, err := s.open(ctx, assignment, template, submission, release)
	if err != nil {
		release()
		return nil, err
	}

	return run, nil
}

func (s *gradingService) Store(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	submission, assignment, _, err := s.prepare(ctx, actor, payload, file)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	fileURL, err := s.storeFile(ctx, assignment.ID, submission.StudentIdentifier, file)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission.SubmissionFilePath = fileURL
	submission.Status = models.SubmissionStatusPending

	saved, err := s.submissions.Upsert(ctx, &submission)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().Str("submission_id", saved.ID.String()).Msg("submission stored for grading")
	return dto.NewSubmissionResponse(saved), nil
}

func (s *gradingService) GradeStored(ctx context.Context, submissionID uuid.UUID) error {
	stored, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	assignment, err := s.loadAssignment(ctx, stored.AssignmentID)
	if err != nil {
		return err
	}

	template, err := grading.SelectPrompt(assignment.Subject)
	if err != nil {
		return err
	}

	release, err := s.locker.Acquire(ctx, gradingLockKey(assignment.ID, stored.StudentIdentifier), s.timeout+lockMargin)
	if err != nil {
		return err
	}

	submission := models.Submission{
		AssignmentID:       stored.AssignmentID,
		StudentID:          stored.StudentID,
		StudentIdentifier:  stored.StudentIdentifier,
		SubmissionFilePath: stored.SubmissionFilePath,
	}

	run, err := s.open(ctx, assignment, template, submission, release)
	if err != nil {
		release()
		if errors.Is(err, grading.ErrFileFetch) {
			// The stored row keeps its status and results.
			s.logger.Warn().Err(err).Str("submission_id", stored.ID.String()).Msg("submission file unavailable, grading skipped")
			return err
		}
		s.markFailed(submission, assignment.Subject, err)
		return err
	}

	err = run.Stream(relay.Discard)
	if errors.Is(err, relay.ErrStreamTransport) || errors.Is(err, relay.ErrClientGone) {
		s.markFailed(submission, assignment.Subject, err)
	}
	return err
}

func (s *gradingService) prepare(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (models.Submission, models.Assignment, grading.PromptTemplate, error) {
	payload.AssignmentID = strings.TrimSpace(payload.AssignmentID)
	payload.StudentIdentifier = strings.TrimSpace(payload.StudentIdentifier)

	if err := s.validator.Struct(payload); err != nil {
		return models.Submission{}, models.Assignment{}, grading.PromptTemplate{}, err
	}
	if file == nil {
		return models.Submission{}, models.Assignment{}, grading.PromptTemplate{}, ErrSubmissionFileRequired
	}

	assignmentID, err := uuid.Parse(payload.AssignmentID)
	if err != nil {
		return models.Submission{}, models.Assignment{}, grading.PromptTemplate{}, ErrAssignmentNotFound
	}

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return models.Submission{}, models.Assignment{}, grading.PromptTemplate{}, err
	}

	template, err := grading.SelectPrompt(assignment.Subject)
	if err != nil {
		return models.Submission{}, models.Assignment{}, grading.PromptTemplate{}, err
	}

	if err := validateAnswerFile(file); err != nil {
		return models.Submission{}, models.Assignment{}, grading.PromptTemplate{}, err
	}

	submission := models.Submission{
		AssignmentID:      assignment.ID,
		StudentIdentifier: payload.StudentIdentifier,
	}
	if actor.Role == models.RoleStudent && actor.ID != uuid.Nil {
		studentID := actor.ID
		submission.StudentID = &studentID
	}

	return submission, assignment, template, nil
}

// open fetches the stored file, starts the model stream and returns a run that owns
// release from here on.
func (s *gradingService) open(ctx context.Context, assignment models.Assignment, template grading.PromptTemplate, submission models.Submission, release func()) (*GradingRun, error) {
	tracer := otel.Tracer("github.com/classpilot-io/AI-grading/internal/service/grading")
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	runCtx, span := tracer.Start(runCtx, "grading.run")
	span.SetAttributes(
		attribute.String("grading.assignment_id", assignment.ID.String()),
		attribute.String("grading.subject", string(template.Subject)),
	)

	prompt, err := s.builder.Build(ctx, submission.SubmissionFilePath, template)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "file_fetch_failed")
		span.End()
		cancel()
		s.logger.Warn().Err(err).Str("file", submission.SubmissionFilePath).Msg("failed to build grading request")
		return nil, err
	}

	chunks, err := s.streamer.Stream(runCtx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream_start_failed")
		span.End()
		cancel()
		s.logger.Warn().Err(err).Msg("failed to start model stream")
		return nil, err
	}

	logger := s.logger.With().
		Str("assignment_id", assignment.ID.String()).
		Str("student_identifier", submission.StudentIdentifier).
		Str("subject", string(template.Subject)).
		Logger()

	return &GradingRun{
		Subject:      template.Subject,
		AssignmentID: assignment.ID,
		FileURL:      submission.SubmissionFilePath,
		ctx:          runCtx,
		cancel:       cancel,
		chunks:       chunks,
		finalize:     s.finalizer(submission, string(template.Subject), logger),
		release:      release,
		span:         span,
		logger:       logger,
	}, nil
}

// finalizer parses the buffered output and records the outcome. Malformed output is
// stored as a failed submission with no results.
func (s *gradingService) finalizer(base models.Submission, subject string, logger zerolog.Logger) relay.Finalizer {
	return func(ctx context.Context, raw []byte) error {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()

		record := models.Submission{
			AssignmentID:       base.AssignmentID,
			StudentID:          base.StudentID,
			StudentIdentifier:  base.StudentIdentifier,
			SubmissionFilePath: base.SubmissionFilePath,
		}

		result, parseErr := grading.Parse(subject, string(raw))
		if parseErr != nil {
			logger.Error().Err(parseErr).Int("bytes", len(raw)).Msg("model output is not a valid grading result")

			record.Status = models.SubmissionStatusFailed
			saved, err := s.submissions.Upsert(persistCtx, &record)
			if err != nil {
				logger.Error().Err(err).Msg("failed to record failed grading")
				return errors.Join(parseErr, fmt.Errorf("persist failed grading: %w", err))
			}
			publishGradingCompleted(s.publisher, logger, saved, subject, nil)
			return parseErr
		}

		gradedAt := s.now().UTC()
		record.Status = models.SubmissionStatusGraded
		record.Results = datatypes.JSON(result.Raw)
		record.GradedAt = &gradedAt

		saved, err := s.submissions.Upsert(persistCtx, &record)
		if err != nil {
			logger.Error().Err(err).Msg("failed to persist grading result")
			return fmt.Errorf("persist grading result: %w", err)
		}

		logger.Info().
			Str("submission_id", saved.ID.String()).
			Str("awarded", string(result.AwardedMarks())).
			Str("total", string(result.TotalMarks())).
			Msg("submission graded")
		publishGradingCompleted(s.publisher, logger, saved, subject, &result)
		return nil
	}
}

func (s *gradingService) markFailed(submission models.Submission, subject string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	record := models.Submission{
		AssignmentID:       submission.AssignmentID,
		StudentID:          submission.StudentID,
		StudentIdentifier:  submission.StudentIdentifier,
		SubmissionFilePath: submission.SubmissionFilePath,
		Status:             models.SubmissionStatusFailed,
	}

	saved, err := s.submissions.Upsert(ctx, &record)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to mark submission as failed")
		return
	}

	s.logger.Warn().Err(cause).Str("submission_id", saved.ID.String()).Msg("queued grading failed")
	publishGradingCompleted(s.publisher, s.logger, saved, subject, nil)
}

func (s *gradingService) loadAssignment(ctx context.Context, id uuid.UUID) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *gradingService) storeFile(ctx context.Context, assignmentID uuid.UUID, studentIdentifier string, file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	storagePath := path.Join("submissions", assignmentID.String(), studentIdentifier, path.Base(file.Filename))
	url, err := s.uploader.Upload(ctx, storagePath, src)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return url, nil
}

func validateAnswerFile(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	mime, err := mimetype.DetectReader(reader)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}

	for m := mime; m != nil; m = m.Parent() {
		if m.Is("application/pdf") || strings.HasPrefix(m.String(), "image/") {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedFileType, mime.String())
}
