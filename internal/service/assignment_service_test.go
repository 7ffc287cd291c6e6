package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/classpilot-io/AI-grading/internal/dto"
	"github.com/classpilot-io/AI-grading/internal/models"
	"github.com/classpilot-io/AI-grading/internal/repository"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

func newAssignmentFixture(t *testing.T) (AssignmentService, *stubUploader) {
	t.Helper()
	db := setupServiceDB(t)
	uploader := &stubUploader{}
	svc := NewAssignmentService(repository.NewAssignmentRepository(db), newTestValidator(), uploader, "https://grader.test/", quietLogger())
	return svc, uploader
}

func TestAssignmentServiceCreate(t *testing.T) {
	svc, uploader := newAssignmentFixture(t)
	teacher := Actor{ID: uuid.New(), Role: models.RoleTeacher}
	ctx := context.Background()

	files := dto.AssignmentFiles{
		QuestionPaper: newFileHeader(t, "questionPaper", "paper.pdf", []byte(pdfContent)),
		AnswerKey:     newFileHeader(t, "answerKey", "key.pdf", []byte(pdfContent)),
	}
	created, err := svc.Create(ctx, teacher, dto.AssignmentCreateRequest{Subject: "Mathematics", Name: " Fractions ", ClassName: "7B"}, files)
	require.NoError(t, err)

	require.Equal(t, "mathematics", created.Subject)
	require.Equal(t, "Fractions", created.Name)
	require.Equal(t, teacher.ID, created.TeacherID)
	require.Equal(t, "https://grader.test/submit/"+created.ID.String(), created.SubmissionLink)
	require.Equal(t, "https://files.test/assignments/"+created.ID.String()+"/question-paper.pdf", created.QuestionPaperPath)
	require.Equal(t, "https://files.test/assignments/"+created.ID.String()+"/answer-key.pdf", created.AnswerKeyPath)
	require.Len(t, uploader.paths, 2)

	fetched, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.SubmissionLink, fetched.SubmissionLink)
}

func TestAssignmentServiceCreateRejections(t *testing.T) {
	svc, uploader := newAssignmentFixture(t)
	ctx := context.Background()
	teacher := Actor{ID: uuid.New(), Role: models.RoleTeacher}

	_, err := svc.Create(ctx, Actor{ID: uuid.New(), Role: models.RoleStudent}, dto.AssignmentCreateRequest{Subject: "english", Name: "Essay"}, dto.AssignmentFiles{})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(ctx, teacher, dto.AssignmentCreateRequest{Subject: "chemistry", Name: "Titration"}, dto.AssignmentFiles{})
	require.ErrorIs(t, err, grading.ErrUnsupportedSubject)

	_, err = svc.Create(ctx, teacher, dto.AssignmentCreateRequest{Subject: "english"}, dto.AssignmentFiles{})
	require.Error(t, err)

	_, err = svc.Create(ctx, teacher, dto.AssignmentCreateRequest{Subject: "english", Name: "Essay"}, dto.AssignmentFiles{
		QuestionPaper: newFileHeader(t, "questionPaper", "paper.txt", []byte("plain words")),
	})
	require.ErrorIs(t, err, ErrUnsupportedFileType)
	require.Empty(t, uploader.paths)
}

func TestAssignmentServiceUpdateKeepsSubject(t *testing.T) {
	svc, _ := newAssignmentFixture(t)
	ctx := context.Background()
	teacher := Actor{ID: uuid.New(), Role: models.RoleTeacher}

	created, err := svc.Create(ctx, teacher, dto.AssignmentCreateRequest{Subject: "english", Name: "Essay"}, dto.AssignmentFiles{})
	require.NoError(t, err)

	sameSubject := "ENGLISH"
	name := "Persuasive essay"
	updated, err := svc.Update(ctx, teacher, created.ID, dto.AssignmentUpdateRequest{Subject: &sameSubject, Name: &name}, dto.AssignmentFiles{})
	require.NoError(t, err)
	require.Equal(t, "Persuasive essay", updated.Name)
	require.Equal(t, "english", updated.Subject)

	otherSubject := "mathematics"
	_, err = svc.Update(ctx, teacher, created.ID, dto.AssignmentUpdateRequest{Subject: &otherSubject}, dto.AssignmentFiles{})
	require.ErrorIs(t, err, ErrSubjectImmutable)

	_, err = svc.Update(ctx, Actor{ID: uuid.New(), Role: models.RoleTeacher}, created.ID, dto.AssignmentUpdateRequest{Name: &name}, dto.AssignmentFiles{})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Update(ctx, teacher, uuid.New(), dto.AssignmentUpdateRequest{Name: &name}, dto.AssignmentFiles{})
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestAssignmentServiceListScopesTeachers(t *testing.T) {
	svc, _ := newAssignmentFixture(t)
	ctx := context.Background()
	first := Actor{ID: uuid.New(), Role: models.RoleTeacher}
	second := Actor{ID: uuid.New(), Role: models.RoleTeacher}

	_, err := svc.Create(ctx, first, dto.AssignmentCreateRequest{Subject: "english", Name: "Poetry"}, dto.AssignmentFiles{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, first, dto.AssignmentCreateRequest{Subject: "mathematics", Name: "Algebra"}, dto.AssignmentFiles{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, second, dto.AssignmentCreateRequest{Subject: "english", Name: "Drama"}, dto.AssignmentFiles{})
	require.NoError(t, err)

	mine, err := svc.List(ctx, first, dto.AssignmentFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 2, mine.Total)

	english, err := svc.List(ctx, first, dto.AssignmentFilter{Subject: "english"})
	require.NoError(t, err)
	require.Len(t, english.Items, 1)
	require.Equal(t, "Poetry", english.Items[0].Name)

	everyone, err := svc.List(ctx, Actor{}, dto.AssignmentFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 3, everyone.Total)

	_, err = svc.List(ctx, first, dto.AssignmentFilter{PageSize: 500})
	require.Error(t, err)
}

func TestAssignmentServiceDelete(t *testing.T) {
	svc, _ := newAssignmentFixture(t)
	ctx := context.Background()
	teacher := Actor{ID: uuid.New(), Role: models.RoleTeacher}

	created, err := svc.Create(ctx, teacher, dto.AssignmentCreateRequest{Subject: "english", Name: "Essay"}, dto.AssignmentFiles{})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, Actor{ID: uuid.New(), Role: models.RoleTeacher}, created.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, teacher, created.ID))

	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}
