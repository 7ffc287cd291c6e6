package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/classpilot-io/AI-grading/internal/config"
	"github.com/classpilot-io/AI-grading/internal/database"
	"github.com/classpilot-io/AI-grading/internal/handler"
	"github.com/classpilot-io/AI-grading/internal/middleware"
	"github.com/classpilot-io/AI-grading/internal/models"
	"github.com/classpilot-io/AI-grading/internal/repository"
	"github.com/classpilot-io/AI-grading/internal/router"
	"github.com/classpilot-io/AI-grading/internal/service"
	"github.com/classpilot-io/AI-grading/internal/worker"
	"github.com/classpilot-io/AI-grading/pkg/ai"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

const (
	testSecret = "handler-secret"
	pdfContent = "%PDF-1.4\n1 0 obj\n<<>>\nendobj\n"
	mathOutput = "```json\n" + `{"grades":[{"question_number":1,"question_text":"2+2","answer_text":"4","correct_answer":"4","awarded_marks":2,"total_marks":2,"status":"Correct","parts":[]}],"submission_awarded_marks":2,"submission_total_marks":2}` + "\n```"
)

type stubUploader struct{}

func (stubUploader) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if _, err := io.ReadAll(reader); err != nil {
		return "", err
	}
	return "https://files.test/" + name, nil
}

type stubFetcher struct {
	mu  sync.Mutex
	err error
}

func (f *stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []byte(pdfContent), nil
}

type stubModel struct {
	mu       sync.Mutex
	parts    []string
	startErr error
	summary  string
}

func (m *stubModel) Stream(context.Context, ai.Prompt) (iter.Seq2[string, error], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	parts := append([]string(nil), m.parts...)
	return func(yield func(string, error) bool) {
		for _, part := range parts {
			if !yield(part, nil) {
				return
			}
		}
	}, nil
}

func (m *stubModel) Generate(context.Context, string) (string, error) {
	return m.summary, nil
}

type testEnv struct {
	app         *fiber.App
	db          *gorm.DB
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	fetcher     *stubFetcher
	model       *stubModel
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	env := &testEnv{
		db:          db,
		assignments: repository.NewAssignmentRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		fetcher:     &stubFetcher{},
		model:       &stubModel{parts: []string{mathOutput[:20], mathOutput[20:90], mathOutput[90:]}, summary: "Class did well."},
	}

	queue := worker.New(worker.Config{Workers: 1, QueueSize: 4}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue.Shutdown(ctx)
	})

	gradingService := service.NewGradingService(
		env.assignments,
		env.submissions,
		stubUploader{},
		grading.NewRequestBuilder(env.fetcher),
		env.model,
		nil,
		nil,
		validate,
		service.GradingConfig{Timeout: 5 * time.Second},
		logger,
	)
	assignmentService := service.NewAssignmentService(env.assignments, validate, stubUploader{}, "https://grader.test", logger)
	submissionService := service.NewSubmissionService(env.submissions, env.assignments, gradingService, queue, logger)
	summaryService := service.NewClassSummaryService(env.assignments, env.submissions, repository.NewClassSummaryRepository(db), env.model, logger)
	userService := service.NewUserService(repository.NewUserRepository(db), validate, logger)

	env.app = fiber.New()
	middleware.Register(env.app, middleware.Config{})
	router.Register(env.app, config.Config{AppName: "Test", JWTSecret: testSecret}, router.Dependencies{
		DB:                  db,
		AssignmentHandler:   handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler:   handler.NewSubmissionHandler(gradingService, submissionService, logger),
		ClassSummaryHandler: handler.NewClassSummaryHandler(summaryService, logger),
		UserHandler:         handler.NewUserHandler(userService, logger),
		SessionMiddleware:   middleware.JWTOptional(testSecret),
	})

	return env
}

func (e *testEnv) seedAssignment(t *testing.T, teacherID uuid.UUID, subject string) models.Assignment {
	t.Helper()
	assignment := models.Assignment{TeacherID: teacherID, Subject: subject, Name: "Quiz"}
	require.NoError(t, e.assignments.Create(context.Background(), &assignment))
	return assignment
}

func (e *testEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func bearer(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

type multipartFile struct {
	field   string
	name    string
	content []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files ...multipartFile) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, file := range files {
		part, err := writer.CreateFormFile(file.field, file.name)
		require.NoError(t, err)
		_, err = part.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}
