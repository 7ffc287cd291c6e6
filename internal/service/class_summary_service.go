package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/classpilot-io/AI-grading/internal/dto"
	"github.com/classpilot-io/AI-grading/internal/models"
	"github.com/classpilot-io/AI-grading/internal/repository"
	"github.com/classpilot-io/AI-grading/pkg/ai"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

var (
	// ErrNoGradedSubmissions indicates there is nothing to summarise yet.
	ErrNoGradedSubmissions = errors.New("assignment has no graded submissions")
	// ErrClassSummaryNotFound indicates no summary was generated for the assignment.
	ErrClassSummaryNotFound = errors.New("class summary not found")
)

// ClassSummaryService produces model written overviews of a class's results.
type ClassSummaryService interface {
	Generate(ctx context.Context, actor Actor, assignmentID uuid.UUID) (dto.ClassSummaryResponse, error)
	Latest(ctx context.Context, actor Actor, assignmentID uuid.UUID) (dto.ClassSummaryResponse, error)
}

type classSummaryService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	summaries   repository.ClassSummaryRepository
	generator   ai.Generator
	policy      *bluemonday.Policy
	logger      zerolog.Logger
}

// NewClassSummaryService constructs the service.
func NewClassSummaryService(assignments repository.AssignmentRepository, submissions repository.SubmissionRepository, summaries repository.ClassSummaryRepository, generator ai.Generator, logger zerolog.Logger) ClassSummaryService {
	return &classSummaryService{
		assignments: assignments,
		submissions: submissions,
		summaries:   summaries,
		generator:   generator,
		policy:      bluemonday.UGCPolicy(),
		logger:      logger.With().Str("component", "class_summary_service").Logger(),
	}
}

func (s *classSummaryService) Generate(ctx context.Context, actor Actor, assignmentID uuid.UUID) (dto.ClassSummaryResponse, error) {
	assignment, err := s.ownedAssignment(ctx, actor, assignmentID)
	if err != nil {
		return dto.ClassSummaryResponse{}, err
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{AssignmentID: &assignmentID})
	if err != nil {
		return dto.ClassSummaryResponse{}, err
	}

	prompt, graded := buildClassSummaryPrompt(assignment, submissions)
	if graded == 0 {
		return dto.ClassSummaryResponse{}, ErrNoGradedSubmissions
	}

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return dto.ClassSummaryResponse{}, fmt.Errorf("generate class summary: %w", err)
	}

	summary := models.ClassSummary{
		AssignmentID: assignmentID,
		Metrics: datatypes.NewJSONType(models.ClassSummaryMetrics{
			Summary:         strings.TrimSpace(s.policy.Sanitize(text)),
			SubmissionCount: len(submissions),
			GradedCount:     graded,
		}),
	}

	if err := s.summaries.Create(ctx, &summary); err != nil {
		return dto.ClassSummaryResponse{}, err
	}

	s.logger.Info().Str("assignment_id", assignmentID.String()).Int("graded", graded).Msg("class summary generated")

	return dto.NewClassSummaryResponse(summary), nil
}

func (s *classSummaryService) Latest(ctx context.Context, actor Actor, assignmentID uuid.UUID) (dto.ClassSummaryResponse, error) {
	if _, err := s.ownedAssignment(ctx, actor, assignmentID); err != nil {
		return dto.ClassSummaryResponse{}, err
	}

	summary, err := s.summaries.Latest(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassSummaryResponse{}, ErrClassSummaryNotFound
		}
		return dto.ClassSummaryResponse{}, err
	}

	return dto.NewClassSummaryResponse(summary), nil
}

func (s *classSummaryService) ownedAssignment(ctx context.Context, actor Actor, id uuid.UUID) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}

	if err := ensureOwner(actor, assignment); err != nil {
		return models.Assignment{}, err
	}
	return assignment, nil
}

type summaryLine struct {
	Student string   `json:"student"`
	Awarded string   `json:"awarded"`
	Total   string   `json:"total"`
	Summary string   `json:"summary,omitempty"`
	Missed  []string `json:"incorrect_questions,omitempty"`
}

// buildClassSummaryPrompt renders graded results into a prompt and reports how many
// submissions were graded.
func buildClassSummaryPrompt(assignment models.Assignment, submissions []models.Submission) (string, int) {
	lines := make([]summaryLine, 0, len(submissions))
	for _, submission := range submissions {
		if !submission.IsGraded() || len(submission.Results) == 0 {
			continue
		}

		result, err := grading.Parse(assignment.Subject, string(submission.Results))
		if err != nil {
			continue
		}

		line := summaryLine{
			Student: submission.StudentIdentifier,
			Awarded: string(result.AwardedMarks()),
			Total:   string(result.TotalMarks()),
		}
		if result.English != nil {
			line.Summary = result.English.Summary
		}
		if result.Math != nil {
			for _, grade := range result.Math.Grades {
				if grade.Status == grading.StatusIncorrect {
					line.Missed = append(line.Missed, string(grade.QuestionNumber))
				}
			}
		}
		lines = append(lines, line)
	}

	encoded, _ := json.Marshal(lines)

	var b strings.Builder
	fmt.Fprintf(&b, "You are helping a teacher review results for the %s assignment %q", assignment.Subject, assignment.Name)
	if assignment.ClassName != "" {
		fmt.Fprintf(&b, " set for class %s", assignment.ClassName)
	}
	b.WriteString(".\nHere are the graded submissions as JSON:\n")
	b.Write(encoded)
	b.WriteString("\n\nWrite a short Markdown summary for the teacher: overall performance, common mistakes, ")
	b.WriteString("and which students may need support. Do not include HTML.")

	return b.String(), len(lines)
}
