// Package gradeclient submits answer files to the grading API and turns the streamed
// model output into a paced, frame-by-frame reveal.
package gradeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultStreamTimeout = 3 * time.Minute

// APIError is a non-2xx response carrying the server's JSON envelope.
type APIError struct {
	StatusCode int
	Message    string
	Details    map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("grading api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("grading api returned status %d: %s", e.StatusCode, e.Message)
}

// Assignment is the subset of assignment fields a submitting client needs.
type Assignment struct {
	ID             uuid.UUID `json:"id"`
	Subject        string    `json:"subject"`
	Name           string    `json:"name"`
	ClassName      string    `json:"className"`
	SubmissionLink string    `json:"submissionLink"`
}

// Submission is one answer file headed for grading.
type Submission struct {
	AssignmentID      uuid.UUID
	StudentIdentifier string
	FileName          string
	File              io.Reader
}

// Stream is an open grading response. Body yields the raw model output and must be closed.
type Stream struct {
	Subject string
	Body    io.ReadCloser
}

// Client talks to the grading API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    Session
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSession authenticates requests with the session's token.
func WithSession(session Session) Option {
	return func(c *Client) {
		c.session = session
	}
}

// New builds a client for the API rooted at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultStreamTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// GetAssignment fetches an assignment so callers know which subject the stream will carry.
func (c *Client) GetAssignment(ctx context.Context, id uuid.UUID) (Assignment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/v1/assignment/"+url.PathEscape(id.String())), nil)
	if err != nil {
		return Assignment{}, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Assignment{}, fmt.Errorf("get assignment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Assignment{}, decodeAPIError(resp)
	}

	var payload struct {
		Data Assignment `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Assignment{}, fmt.Errorf("decode assignment: %w", err)
	}
	return payload.Data, nil
}

// Submit uploads the answer file and returns the streamed grading output. Failures the
// server reports before streaming starts come back as *APIError.
func (c *Client) Submit(ctx context.Context, submission Submission) (*Stream, error) {
	if submission.File == nil {
		return nil, fmt.Errorf("submit: answer file is required")
	}

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)

	go func() {
		writer.CloseWithError(writeSubmissionForm(form, submission))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/v1/submission"), body)
	if err != nil {
		body.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "text/plain")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	return &Stream{Subject: resp.Header.Get("X-Grading-Subject"), Body: resp.Body}, nil
}

func writeSubmissionForm(form *multipart.Writer, submission Submission) error {
	if err := form.WriteField("assignmentId", submission.AssignmentID.String()); err != nil {
		return err
	}
	if err := form.WriteField("studentIdentifier", submission.StudentIdentifier); err != nil {
		return err
	}

	name := submission.FileName
	if name == "" {
		name = "answer"
	}
	part, err := form.CreateFormFile("answerFile", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, submission.File); err != nil {
		return err
	}
	return form.Close()
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

func (c *Client) authorize(req *http.Request) {
	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err == nil {
		apiErr.Message = payload.Message
		apiErr.Details = payload.Details
	}
	return apiErr
}
