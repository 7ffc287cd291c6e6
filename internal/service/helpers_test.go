package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"mime/multipart"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/classpilot-io/AI-grading/internal/models"
	"github.com/classpilot-io/AI-grading/internal/repository"
	"github.com/classpilot-io/AI-grading/pkg/ai"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

const (
	pdfContent = "%PDF-1.4\n1 0 obj\n<<>>\nendobj\n"
	mathOutput = "```json\n" + `{"grades":[{"question_number":"1","question_text":"2+2","answer_text":"4","correct_answer":"4","awarded_marks":"2","total_marks":"2","status":"Correct","parts":[]},{"question_number":"2","question_text":"3x=9","answer_text":"x=2","correct_answer":"x=3","awarded_marks":"1","total_marks":"3","status":"Incorrect","parts":[]}],"submission_awarded_marks":"3","submission_total_marks":"5"}` + "\n```"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Assignment{}, &models.Submission{}, &models.ClassSummary{}))
	return db
}

func newTestValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func quietLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newFileHeader(t *testing.T, field, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File[field][0]
}

type stubUploader struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (u *stubUploader) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if _, err := io.ReadAll(reader); err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.paths = append(u.paths, name)
	return "https://files.test/" + name, nil
}

type stubFetcher struct {
	mu      sync.Mutex
	data    []byte
	err     error
	fetched []string
}

func (f *stubFetcher) Fetch(_ context.Context, fileURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, fileURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type stubStreamer struct {
	mu       sync.Mutex
	parts    []string
	tail     error
	startErr error
	prompts  []ai.Prompt
}

func (s *stubStreamer) Stream(_ context.Context, prompt ai.Prompt) (iter.Seq2[string, error], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.startErr != nil {
		return nil, s.startErr
	}

	parts := append([]string(nil), s.parts...)
	tail := s.tail
	return func(yield func(string, error) bool) {
		for _, part := range parts {
			if !yield(part, nil) {
				return
			}
		}
		if tail != nil {
			yield("", tail)
		}
	}, nil
}

type stubPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *stubPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

type flushBuffer struct {
	bytes.Buffer
	flushes int
}

func (f *flushBuffer) Flush() error {
	f.flushes++
	return nil
}

type gradingFixture struct {
	db          *gorm.DB
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	uploader    *stubUploader
	fetcher     *stubFetcher
	streamer    *stubStreamer
	publisher   *stubPublisher
	service     GradingService
}

func newGradingFixture(t *testing.T, locker GradingLocker) *gradingFixture {
	t.Helper()

	db := setupServiceDB(t)
	fx := &gradingFixture{
		db:          db,
		assignments: repository.NewAssignmentRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		uploader:    &stubUploader{},
		fetcher:     &stubFetcher{data: []byte(pdfContent)},
		streamer:    &stubStreamer{},
		publisher:   &stubPublisher{},
	}

	fx.service = NewGradingService(
		fx.assignments,
		fx.submissions,
		fx.uploader,
		grading.NewRequestBuilder(fx.fetcher),
		fx.streamer,
		locker,
		fx.publisher,
		newTestValidator(),
		GradingConfig{},
		quietLogger(),
	)
	return fx
}

func (fx *gradingFixture) seedAssignment(t *testing.T, teacherID uuid.UUID, subject string) models.Assignment {
	t.Helper()
	assignment := models.Assignment{TeacherID: teacherID, Subject: subject, Name: "Week 3 quiz", ClassName: "9C"}
	require.NoError(t, fx.assignments.Create(context.Background(), &assignment))
	return assignment
}

func chunk(s string, size int) []string {
	var parts []string
	for len(s) > size {
		parts = append(parts, s[:size])
		s = s[size:]
	}
	return append(parts, s)
}
