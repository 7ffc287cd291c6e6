package service

import (
	"context"
	"errors"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/classpilot-io/AI-grading/internal/dto"
	"github.com/classpilot-io/AI-grading/internal/models"
	"github.com/classpilot-io/AI-grading/internal/repository"
	"github.com/classpilot-io/AI-grading/internal/worker"
)

// GradingQueue schedules background grading jobs.
type GradingQueue interface {
	Enqueue(name string, job worker.Job) (*worker.Task, error)
}

// SubmissionService covers submission lookups and queued grading.
type SubmissionService interface {
	Upload(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.GradingTaskResponse, error)
	Regrade(ctx context.Context, actor Actor, id uuid.UUID) (dto.GradingTaskResponse, error)
	Get(ctx context.Context, actor Actor, id uuid.UUID) (dto.SubmissionResponse, error)
	ListByAssignment(ctx context.Context, actor Actor, assignmentID uuid.UUID) ([]dto.SubmissionResponse, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	grading     GradingService
	queue       GradingQueue
	logger      zerolog.Logger
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(subRepo repository.SubmissionRepository, assignmentRepo repository.AssignmentRepository, grading GradingService, queue GradingQueue, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: subRepo,
		assignments: assignmentRepo,
		grading:     grading,
		queue:       queue,
		logger:      logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) Upload(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.GradingTaskResponse, error) {
	stored, err := s.grading.Store(ctx, actor, payload, file)
	if err != nil {
		return dto.GradingTaskResponse{}, err
	}

	return s.enqueue(stored)
}

func (s *submissionService) Regrade(ctx context.Context, actor Actor, id uuid.UUID) (dto.GradingTaskResponse, error) {
	submission, assignment, err := s.load(ctx, id)
	if err != nil {
		return dto.GradingTaskResponse{}, err
	}

	if err := ensureOwner(actor, assignment); err != nil {
		return dto.GradingTaskResponse{}, err
	}

	return s.enqueue(dto.NewSubmissionResponse(submission))
}

func (s *submissionService) Get(ctx context.Context, actor Actor, id uuid.UUID) (dto.SubmissionResponse, error) {
	submission, assignment, err := s.load(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	ownStudent := submission.StudentID != nil && *submission.StudentID == actor.ID
	if !ownStudent && ensureOwner(actor, assignment) != nil {
		return dto.SubmissionResponse{}, ErrForbidden
	}

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) ListByAssignment(ctx context.Context, actor Actor, assignmentID uuid.UUID) ([]dto.SubmissionResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	if err := ensureOwner(actor, assignment); err != nil {
		return nil, err
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{AssignmentID: &assignmentID})
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	_, assignment, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if err := ensureOwner(actor, assignment); err != nil {
		return err
	}

	if err := s.submissions.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	s.logger.Info().Str("submission_id", id.String()).Msg("submission deleted")
	return nil
}

func (s *submissionService) load(ctx context.Context, id uuid.UUID) (models.Submission, models.Assignment, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, models.Assignment{}, ErrSubmissionNotFound
		}
		return models.Submission{}, models.Assignment{}, err
	}

	if submission.Assignment != nil {
		return submission, *submission.Assignment, nil
	}

	assignment, err := s.assignments.GetByID(ctx, submission.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Submission{}, models.Assignment{}, err
	}
	return submission, assignment, nil
}

func (s *submissionService) enqueue(submission dto.SubmissionResponse) (dto.GradingTaskResponse, error) {
	submissionID := submission.ID
	task, err := s.queue.Enqueue("grade:"+submissionID.String(), func(ctx context.Context) error {
		return s.grading.GradeStored(ctx, submissionID)
	})
	if err != nil {
		return dto.GradingTaskResponse{}, err
	}

	s.logger.Info().Str("submission_id", submissionID.String()).Str("task_id", task.ID).Msg("grading queued")

	return dto.GradingTaskResponse{TaskID: task.ID, Submission: submission}, nil
}
