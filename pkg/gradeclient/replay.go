package gradeclient

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/classpilot-io/AI-grading/pkg/grading"
)

const (
	DefaultQuestionInterval = 180 * time.Millisecond
	DefaultFeedbackDelay    = 600 * time.Millisecond
	DefaultFeedbackInterval = 400 * time.Millisecond
)

// Entry is one revealed unit: a graded question or a feedback line.
type Entry struct {
	Question *grading.QuestionGrade
	Line     string
}

// Frame is the display state after a reveal step. Entries is cumulative and Newest is
// the index to scroll to, or -1 when nothing is listed.
type Frame struct {
	Entries []Entry
	Newest  int
	Done    bool
	Result  grading.Result
}

type replayConfig struct {
	questionInterval time.Duration
	feedbackDelay    time.Duration
	feedbackInterval time.Duration
}

// ReplayOption adjusts reveal pacing.
type ReplayOption func(*replayConfig)

// WithQuestionInterval sets the gap between revealed math questions.
func WithQuestionInterval(d time.Duration) ReplayOption {
	return func(c *replayConfig) { c.questionInterval = d }
}

// WithFeedbackPacing sets the delay before the first feedback line and the gap after it.
func WithFeedbackPacing(delay, interval time.Duration) ReplayOption {
	return func(c *replayConfig) {
		c.feedbackDelay = delay
		c.feedbackInterval = interval
	}
}

// Replay reveals an already parsed result over time. Math results reveal one question
// per tick, english results one non-empty feedback line per tick, anything else arrives
// as a single finished frame. The channel closes after the Done frame or when ctx ends.
func Replay(ctx context.Context, result grading.Result, opts ...ReplayOption) <-chan Frame {
	cfg := replayConfig{
		questionInterval: DefaultQuestionInterval,
		feedbackDelay:    DefaultFeedbackDelay,
		feedbackInterval: DefaultFeedbackInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	frames := make(chan Frame)
	units, delay, interval := revealPlan(result, cfg)

	go func() {
		defer close(frames)

		if len(units) == 0 {
			select {
			case frames <- Frame{Newest: -1, Done: true, Result: result}:
			case <-ctx.Done():
			}
			return
		}

		timer := time.NewTimer(delay)
		defer timer.Stop()

		for i := range units {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			frame := Frame{
				Entries: slices.Clone(units[:i+1]),
				Newest:  i,
				Done:    i == len(units)-1,
				Result:  result,
			}

			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}

			if !frame.Done {
				timer.Reset(interval)
			}
		}
	}()

	return frames
}

func revealPlan(result grading.Result, cfg replayConfig) ([]Entry, time.Duration, time.Duration) {
	switch {
	case result.Math != nil:
		units := make([]Entry, 0, len(result.Math.Grades))
		for i := range result.Math.Grades {
			units = append(units, Entry{Question: &result.Math.Grades[i]})
		}
		return units, cfg.questionInterval, cfg.questionInterval
	case result.English != nil:
		lines := FeedbackLines(result.English.DetailedFeedback)
		units := make([]Entry, 0, len(lines))
		for _, line := range lines {
			units = append(units, Entry{Line: line})
		}
		return units, cfg.feedbackDelay, cfg.feedbackInterval
	default:
		return nil, 0, 0
	}
}

// FeedbackLines splits feedback on newlines and drops blank lines.
func FeedbackLines(feedback string) []string {
	var lines []string
	for _, line := range strings.Split(feedback, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
