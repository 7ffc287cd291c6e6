package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/classpilot-io/AI-grading/internal/models"
	"github.com/classpilot-io/AI-grading/internal/repository"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

type stubGenerator struct {
	text    string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.text, g.err
}

func TestClassSummaryGenerateAndLatest(t *testing.T) {
	db := setupServiceDB(t)
	assignments := repository.NewAssignmentRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	generator := &stubGenerator{text: "## Overview\nMost students did well.<script>alert(1)</script>"}
	svc := NewClassSummaryService(assignments, submissions, repository.NewClassSummaryRepository(db), generator, quietLogger())
	ctx := context.Background()

	teacher := Actor{ID: uuid.New(), Role: models.RoleTeacher}
	assignment := models.Assignment{TeacherID: teacher.ID, Subject: "mathematics", Name: "Linear equations", ClassName: "8A"}
	require.NoError(t, assignments.Create(ctx, &assignment))

	_, err := svc.Generate(ctx, teacher, assignment.ID)
	require.ErrorIs(t, err, ErrNoGradedSubmissions)
	_, err = svc.Latest(ctx, teacher, assignment.ID)
	require.ErrorIs(t, err, ErrClassSummaryNotFound)

	gradedAt := time.Now().UTC()
	_, err = submissions.Upsert(ctx, &models.Submission{
		AssignmentID:      assignment.ID,
		StudentIdentifier: "ada",
		Status:            models.SubmissionStatusGraded,
		Results:           datatypes.JSON(grading.StripCodeFence(mathOutput)),
		GradedAt:          &gradedAt,
	})
	require.NoError(t, err)
	_, err = submissions.Upsert(ctx, &models.Submission{
		AssignmentID:      assignment.ID,
		StudentIdentifier: "grace",
		Status:            models.SubmissionStatusPending,
	})
	require.NoError(t, err)

	summary, err := svc.Generate(ctx, teacher, assignment.ID)
	require.NoError(t, err)
	require.Equal(t, 2, summary.SubmissionCount)
	require.Equal(t, 1, summary.GradedCount)
	require.Contains(t, summary.Summary, "Most students did well.")
	require.NotContains(t, summary.Summary, "<script>")

	require.Len(t, generator.prompts, 1)
	require.Contains(t, generator.prompts[0], `"student":"ada"`)
	require.Contains(t, generator.prompts[0], `"incorrect_questions":["2"]`)
	require.NotContains(t, generator.prompts[0], "grace")

	latest, err := svc.Latest(ctx, teacher, assignment.ID)
	require.NoError(t, err)
	require.Equal(t, summary.ID, latest.ID)

	_, err = svc.Generate(ctx, Actor{ID: uuid.New(), Role: models.RoleTeacher}, assignment.ID)
	require.ErrorIs(t, err, ErrForbidden)

	generator.err = errors.New("model offline")
	_, err = svc.Generate(ctx, teacher, assignment.ID)
	require.ErrorContains(t, err, "model offline")

	_, err = svc.Latest(ctx, teacher, uuid.New())
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}
