package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/classpilot-io/AI-grading/pkg/gradeclient"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

type options struct {
	server      string
	assignment  string
	student     string
	file        string
	sessionPath string
	token       string
	userID      string
	role        string
}

func main() {
	opts := parseFlags()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		renderErrorPanel(os.Stdout, err)
		logger.Debug().Err(err).Msg("grading failed")
		os.Exit(1)
	}
}

func parseFlags() options {
	defaultSession := filepath.Join(os.TempDir(), "gradecli", "session.json")
	if dir, err := os.UserConfigDir(); err == nil {
		defaultSession = filepath.Join(dir, "gradecli", "session.json")
	}

	var opts options
	flag.StringVar(&opts.server, "server", "http://localhost:8080", "grading API base URL")
	flag.StringVar(&opts.assignment, "assignment", "", "assignment id")
	flag.StringVar(&opts.student, "student", "", "student identifier")
	flag.StringVar(&opts.file, "file", "", "answer file (pdf or image)")
	flag.StringVar(&opts.sessionPath, "session", defaultSession, "session file")
	flag.StringVar(&opts.token, "token", "", "store this bearer token in the session file")
	flag.StringVar(&opts.userID, "user", "", "user id stored alongside -token")
	flag.StringVar(&opts.role, "role", "student", "role stored alongside -token")
	flag.Parse()
	return opts
}

func run(ctx context.Context, opts options, out io.Writer) error {
	session, err := resolveSession(opts)
	if err != nil {
		return err
	}

	if opts.assignment == "" || opts.student == "" || opts.file == "" {
		if opts.token != "" {
			fmt.Fprintf(out, "session saved to %s\n", opts.sessionPath)
			return nil
		}
		return errors.New("-assignment, -student and -file are required")
	}

	assignmentID, err := uuid.Parse(opts.assignment)
	if err != nil {
		return fmt.Errorf("invalid assignment id: %w", err)
	}

	file, err := os.Open(opts.file)
	if err != nil {
		return err
	}
	defer file.Close()

	client := gradeclient.New(opts.server, gradeclient.WithSession(session))

	assignment, err := client.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%s)\n", assignment.Name, assignment.Subject)

	stream, err := client.Submit(ctx, gradeclient.Submission{
		AssignmentID:      assignmentID,
		StudentIdentifier: opts.student,
		FileName:          filepath.Base(opts.file),
		File:              file,
	})
	if err != nil {
		return err
	}
	defer stream.Body.Close()

	subject := stream.Subject
	if subject == "" {
		subject = assignment.Subject
	}

	spin := startSpinner(out)
	result, err := gradeclient.Consume(ctx, stream.Body, subject, spin.update)
	spin.stop()
	if err != nil {
		return err
	}

	return reveal(ctx, out, result)
}

func resolveSession(opts options) (gradeclient.Session, error) {
	if opts.token == "" {
		return gradeclient.LoadSession(opts.sessionPath)
	}

	session := gradeclient.Session{Token: opts.token, Role: opts.role}
	if opts.userID != "" {
		id, err := uuid.Parse(opts.userID)
		if err != nil {
			return gradeclient.Session{}, fmt.Errorf("invalid user id: %w", err)
		}
		session.UserID = id
	}

	if err := gradeclient.SaveSession(opts.sessionPath, session); err != nil {
		return gradeclient.Session{}, err
	}
	return session, nil
}

type spinner struct {
	out      io.Writer
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	received int
}

func startSpinner(out io.Writer) *spinner {
	s := &spinner{out: out, done: make(chan struct{})}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *spinner) loop() {
	defer s.wg.Done()

	frames := []string{"|", "/", "-", "\\"}
	ticker := time.NewTicker(120 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		s.mu.Lock()
		received := s.received
		s.mu.Unlock()
		fmt.Fprintf(s.out, "\r%s grading... %d bytes", frames[i%len(frames)], received)

		select {
		case <-s.done:
			fmt.Fprint(s.out, "\r\033[K")
			return
		case <-ticker.C:
		}
	}
}

func (s *spinner) update(p gradeclient.Progress) {
	s.mu.Lock()
	s.received = p.Received
	s.mu.Unlock()
}

func (s *spinner) stop() {
	close(s.done)
	s.wg.Wait()
}

func reveal(ctx context.Context, out io.Writer, result grading.Result) error {
	for frame := range gradeclient.Replay(ctx, result) {
		if frame.Newest >= 0 {
			renderEntry(out, frame.Entries[frame.Newest])
		}
		if frame.Done {
			return renderTotals(out, result)
		}
	}
	return ctx.Err()
}

func renderEntry(out io.Writer, entry gradeclient.Entry) {
	if entry.Question == nil {
		fmt.Fprintf(out, "  %s\n", entry.Line)
		return
	}

	q := entry.Question
	mark := "x"
	if q.Status == grading.StatusCorrect {
		mark = "v"
	}
	fmt.Fprintf(out, "[%s] Q%s  %s/%s  %s\n", mark, q.QuestionNumber, q.AwardedMarks, q.TotalMarks, q.QuestionText)
	if q.Status != grading.StatusCorrect && q.CorrectAnswer != nil {
		fmt.Fprintf(out, "      answered %q, expected %q\n", q.AnswerText, *q.CorrectAnswer)
	}
	for i, part := range q.Parts {
		fmt.Fprintf(out, "      (%c) %s/%s %s\n", 'a'+rune(i), part.AwardedMarks, part.TotalMarks, part.Status)
	}
}

func renderTotals(out io.Writer, result grading.Result) error {
	if result.Math == nil && result.English == nil {
		var pretty strings.Builder
		encoder := json.NewEncoder(&pretty)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result.Other); err != nil {
			return err
		}
		fmt.Fprint(out, pretty.String())
		return nil
	}

	if result.English != nil && result.English.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", result.English.Summary)
	}
	fmt.Fprintf(out, "\nTotal: %s / %s\n", result.AwardedMarks(), result.TotalMarks())
	return nil
}

func renderErrorPanel(out io.Writer, err error) {
	title := "Grading failed"
	message := err.Error()

	var apiErr *gradeclient.APIError
	switch {
	case errors.As(err, &apiErr):
		title = fmt.Sprintf("Grading rejected (%d)", apiErr.StatusCode)
		if apiErr.Message != "" {
			message = apiErr.Message
		}
	case errors.Is(err, grading.ErrMalformedGradingJSON):
		title = "Could not read grading result"
	case errors.Is(err, context.Canceled):
		title = "Cancelled"
	}

	width := len(title)
	if len(message) > width {
		width = len(message)
	}
	border := "+" + strings.Repeat("-", width+2) + "+"

	fmt.Fprintln(out, border)
	fmt.Fprintf(out, "| %-*s |\n", width, title)
	fmt.Fprintf(out, "| %-*s |\n", width, message)
	if apiErr != nil {
		for field, detail := range apiErr.Details {
			line := field + ": " + detail
			if len(line) > width {
				line = line[:width]
			}
			fmt.Fprintf(out, "| %-*s |\n", width, line)
		}
	}
	fmt.Fprintln(out, border)
}
