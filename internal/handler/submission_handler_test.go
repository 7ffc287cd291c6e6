package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/classpilot-io/AI-grading/internal/dto"
	"github.com/classpilot-io/AI-grading/internal/models"
	"github.com/classpilot-io/AI-grading/pkg/ai"
)

func submissionFields(assignmentID uuid.UUID, student string) map[string]string {
	return map[string]string{"assignmentId": assignmentID.String(), "studentIdentifier": student}
}

func answerFile(name string) multipartFile {
	return multipartFile{field: "answerFile", name: name, content: []byte(pdfContent)}
}

func TestGradeStreamsModelOutput(t *testing.T) {
	env := newTestEnv(t)
	assignment := env.seedAssignment(t, uuid.New(), "mathematics")

	req := multipartRequest(t, http.MethodPost, "/api/v1/submission", submissionFields(assignment.ID, "ada"), answerFile("answers.pdf"))
	resp := env.do(t, req)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	require.Equal(t, "mathematics", resp.Header.Get("X-Grading-Subject"))
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, mathOutput, string(body))

	require.Eventually(t, func() bool {
		stored, err := env.submissions.GetByAssignmentAndStudent(context.Background(), assignment.ID, "ada")
		return err == nil && stored.Status == models.SubmissionStatusGraded
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGradeReportsPreStreamFailuresAsJSON(t *testing.T) {
	env := newTestEnv(t)
	physics := env.seedAssignment(t, uuid.New(), "physics")
	english := env.seedAssignment(t, uuid.New(), "english")

	cases := []struct {
		name    string
		fields  map[string]string
		files   []multipartFile
		prepare func()
		status  int
	}{
		{name: "unsupported subject", fields: submissionFields(physics.ID, "s1"), files: []multipartFile{answerFile("a.pdf")}, status: http.StatusBadRequest},
		{name: "missing assignment", fields: submissionFields(uuid.New(), "s1"), files: []multipartFile{answerFile("a.pdf")}, status: http.StatusNotFound},
		{name: "missing identifier", fields: map[string]string{"assignmentId": english.ID.String()}, files: []multipartFile{answerFile("a.pdf")}, status: http.StatusBadRequest},
		{name: "missing file", fields: submissionFields(english.ID, "s1"), status: http.StatusBadRequest},
		{name: "text file", fields: submissionFields(english.ID, "s1"), files: []multipartFile{{field: "answerFile", name: "a.txt", content: []byte("hello there")}}, status: http.StatusBadRequest},
		{
			name:    "fetch failure",
			fields:  submissionFields(english.ID, "s1"),
			files:   []multipartFile{answerFile("a.pdf")},
			prepare: func() { env.fetcher.err = errors.New("status 403") },
			status:  http.StatusBadGateway,
		},
		{
			name:   "model unavailable",
			fields: submissionFields(english.ID, "s1"),
			files:  []multipartFile{answerFile("a.pdf")},
			prepare: func() {
				env.fetcher.err = nil
				env.model.startErr = ai.ErrStreamStart
			},
			status: http.StatusBadGateway,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.prepare != nil {
				tc.prepare()
			}
			resp := env.do(t, multipartRequest(t, http.MethodPost, "/api/v1/submission", tc.fields, tc.files...))
			require.Equal(t, tc.status, resp.StatusCode)
			require.Contains(t, resp.Header.Get("Content-Type"), "application/json")

			payload := decodeEnvelope(t, resp)
			require.False(t, payload.Success)
			require.NotEmpty(t, payload.Message)
		})
	}
}

func TestUploadQueuesGradingAndSubmissionIsReadable(t *testing.T) {
	env := newTestEnv(t)
	teacherID := uuid.New()
	studentID := uuid.New()
	assignment := env.seedAssignment(t, teacherID, "mathematics")

	req := multipartRequest(t, http.MethodPost, "/api/v1/submission/upload", submissionFields(assignment.ID, "grace"), answerFile("answers.pdf"))
	req.Header.Set("Authorization", bearer(t, studentID, "student"))
	resp := env.do(t, req)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var queued dto.GradingTaskResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &queued))
	require.NotEmpty(t, queued.TaskID)
	require.Equal(t, models.SubmissionStatusPending, queued.Submission.Status)

	require.Eventually(t, func() bool {
		stored, err := env.submissions.GetByID(context.Background(), queued.Submission.ID)
		return err == nil && stored.Status == models.SubmissionStatusGraded
	}, 2*time.Second, 20*time.Millisecond)

	target := "/api/v1/submission/" + queued.Submission.ID.String()

	resp = env.do(t, jsonRequest(t, http.MethodGet, target, nil))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other := jsonRequest(t, http.MethodGet, target, nil)
	other.Header.Set("Authorization", bearer(t, uuid.New(), "student"))
	resp = env.do(t, other)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	own := jsonRequest(t, http.MethodGet, target, nil)
	own.Header.Set("Authorization", bearer(t, studentID, "student"))
	resp = env.do(t, own)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decodeEnvelope(t, resp)
	validateContract(t, "submission_response.schema.json", payload.Data)

	list := jsonRequest(t, http.MethodGet, "/api/v1/assignment/"+assignment.ID.String()+"/submissions", nil)
	list.Header.Set("Authorization", bearer(t, teacherID, "teacher"))
	resp = env.do(t, list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []dto.SubmissionResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &listed))
	require.Len(t, listed, 1)

	regrade := jsonRequest(t, http.MethodPost, target+"/grade", nil)
	regrade.Header.Set("Authorization", bearer(t, teacherID, "teacher"))
	resp = env.do(t, regrade)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	remove := jsonRequest(t, http.MethodDelete, target, nil)
	remove.Header.Set("Authorization", bearer(t, teacherID, "teacher"))
	resp = env.do(t, remove)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmissionRoutesRejectBadIDs(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(t, http.MethodGet, "/api/v1/submission/not-a-uuid", nil)
	req.Header.Set("Authorization", bearer(t, uuid.New(), "teacher"))
	resp := env.do(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req = jsonRequest(t, http.MethodGet, "/api/v1/submission/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", bearer(t, uuid.New(), "teacher"))
	resp = env.do(t, req)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func validateContract(t *testing.T, name string, data json.RawMessage) {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	schema, err := jsonschema.NewCompiler().Compile("file://" + schemaPath)
	require.NoError(t, err)

	var document interface{}
	require.NoError(t, json.Unmarshal(data, &document))
	require.NoError(t, schema.Validate(document))
}
