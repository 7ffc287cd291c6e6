package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/classpilot-io/AI-grading/internal/dto"
	"github.com/classpilot-io/AI-grading/internal/models"
	"github.com/classpilot-io/AI-grading/internal/repository"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

var (
	// ErrAssignmentNotFound indicates the requested assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrSubjectImmutable indicates an update tried to change an assignment's subject.
	ErrSubjectImmutable = errors.New("assignment subject cannot be changed")
)

// FileUploader abstracts uploading binary data and returning a URL.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// AssignmentService exposes assignment domain use cases.
type AssignmentService interface {
	List(ctx context.Context, actor Actor, filter dto.AssignmentFilter) (dto.AssignmentListResponse, error)
	Get(ctx context.Context, id uuid.UUID) (dto.AssignmentResponse, error)
	Create(ctx context.Context, actor Actor, payload dto.AssignmentCreateRequest, files dto.AssignmentFiles) (dto.AssignmentResponse, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, payload dto.AssignmentUpdateRequest, files dto.AssignmentFiles) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
}

type assignmentService struct {
	repo          repository.AssignmentRepository
	validator     *validator.Validate
	uploader      FileUploader
	publicBaseURL string
	logger        zerolog.Logger
	now           func() time.Time
}

// NewAssignmentService builds a new assignment service. Submission links are rooted
// at publicBaseURL.
func NewAssignmentService(repo repository.AssignmentRepository, validate *validator.Validate, uploader FileUploader, publicBaseURL string, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		repo:          repo,
		validator:     validate,
		uploader:      uploader,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger.With().Str("component", "assignment_service").Logger(),
		now:           time.Now,
	}
}

func (s *assignmentService) List(ctx context.Context, actor Actor, filter dto.AssignmentFilter) (dto.AssignmentListResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return dto.AssignmentListResponse{}, err
	}

	repoFilter := repository.AssignmentFilter{
		Subject:  filter.Subject,
		Search:   filter.Search,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	if actor.IsTeacher() {
		teacherID := actor.ID
		repoFilter.TeacherID = &teacherID
	}

	assignments, total, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return dto.AssignmentListResponse{}, err
	}

	return dto.AssignmentListResponse{
		Items: dto.NewAssignmentResponseSlice(assignments),
		Total: total,
	}, nil
}

func (s *assignmentService) Get(ctx context.Context, id uuid.UUID) (dto.AssignmentResponse, error) {
	assignment, err := s.find(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Create(ctx context.Context, actor Actor, payload dto.AssignmentCreateRequest, files dto.AssignmentFiles) (dto.AssignmentResponse, error) {
	if !actor.IsTeacher() {
		return dto.AssignmentResponse{}, ErrForbidden
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	subject, err := grading.ParseSubject(payload.Subject)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment := models.Assignment{
		ID:          uuid.New(),
		TeacherID:   actor.ID,
		Subject:     string(subject),
		Name:        strings.TrimSpace(payload.Name),
		ClassName:   strings.TrimSpace(payload.ClassName),
		Description: payload.Description,
	}
	assignment.SubmissionLink = s.submissionLink(assignment.ID)

	if err := s.attachFiles(ctx, &assignment, files); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Str("assignment_id", assignment.ID.String()).Str("subject", assignment.Subject).Msg("assignment created")

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Update(ctx context.Context, actor Actor, id uuid.UUID, payload dto.AssignmentUpdateRequest, files dto.AssignmentFiles) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.find(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := ensureOwner(actor, assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if payload.Subject != nil {
		subject, err := grading.ParseSubject(*payload.Subject)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		if string(subject) != assignment.Subject {
			return dto.AssignmentResponse{}, ErrSubjectImmutable
		}
	}

	if payload.Name != nil {
		assignment.Name = strings.TrimSpace(*payload.Name)
	}

	if payload.ClassName != nil {
		assignment.ClassName = strings.TrimSpace(*payload.ClassName)
	}

	if payload.Description != nil {
		assignment.Description = *payload.Description
	}

	if err := s.attachFiles(ctx, &assignment, files); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.repo.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Str("assignment_id", assignment.ID.String()).Msg("assignment updated")

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	assignment, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	if err := ensureOwner(actor, assignment); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	s.logger.Info().Str("assignment_id", id.String()).Msg("assignment deleted")
	return nil
}

func (s *assignmentService) find(ctx context.Context, id uuid.UUID) (models.Assignment, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *assignmentService) submissionLink(id uuid.UUID) string {
	return s.publicBaseURL + "/submit/" + id.String()
}

func (s *assignmentService) attachFiles(ctx context.Context, assignment *models.Assignment, files dto.AssignmentFiles) error {
	if files.QuestionPaper != nil {
		url, err := s.uploadFile(ctx, assignment.ID, "question-paper", files.QuestionPaper)
		if err != nil {
			return err
		}
		assignment.QuestionPaperPath = url
	}

	if files.AnswerKey != nil {
		url, err := s.uploadFile(ctx, assignment.ID, "answer-key", files.AnswerKey)
		if err != nil {
			return err
		}
		assignment.AnswerKeyPath = url
	}

	return nil
}

func (s *assignmentService) uploadFile(ctx context.Context, assignmentID uuid.UUID, kind string, file *multipart.FileHeader) (string, error) {
	if err := validateAnswerFile(file); err != nil {
		return "", err
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	storagePath := path.Join("assignments", assignmentID.String(), kind+path.Ext(file.Filename))
	url, err := s.uploader.Upload(ctx, storagePath, src)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return url, nil
}
