package gradeclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/classpilot-io/AI-grading/pkg/grading"
)

const readChunkSize = 4 << 10

// State is the lifecycle of one grading view.
type State int

const (
	StateStreaming State = iota
	StateError
	StateRevealing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	case StateRevealing:
		return "revealing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Progress reports how far consumption has got.
type Progress struct {
	State    State
	Received int
	Err      error
}

// ProgressFunc observes consumption. It is called synchronously from Consume.
type ProgressFunc func(Progress)

// Consume reads the streamed model output to completion and parses it for subject.
// Nothing is rendered from partial output: the caller gets either a parsed result
// (StateRevealing) or an error (StateError).
func Consume(ctx context.Context, r io.Reader, subject string, onProgress ProgressFunc) (grading.Result, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	var text strings.Builder
	buf := make([]byte, readChunkSize)

	fail := func(err error) (grading.Result, error) {
		onProgress(Progress{State: StateError, Received: text.Len(), Err: err})
		return grading.Result{}, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		n, err := r.Read(buf)
		if n > 0 {
			text.Write(buf[:n])
			onProgress(Progress{State: StateStreaming, Received: text.Len()})
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("read grading stream: %w", err))
		}
	}

	result, err := grading.Parse(subject, text.String())
	if err != nil {
		return fail(err)
	}

	onProgress(Progress{State: StateRevealing, Received: text.Len()})
	return result, nil
}
