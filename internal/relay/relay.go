package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
)

var (
	// ErrStreamTransport indicates the upstream model stream failed mid-way.
	ErrStreamTransport = errors.New("upstream stream failed")
	// ErrClientGone indicates the outbound response could not be written or flushed.
	ErrClientGone = errors.New("client disconnected")
)

// State is the relay lifecycle position.
type State int

const (
	StateStreaming State = iota
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FlushWriter is an outbound body that can push buffered bytes to the client.
type FlushWriter interface {
	io.Writer
	Flush() error
}

// Finalizer consumes the complete buffered upstream output once the stream ends cleanly.
type Finalizer func(ctx context.Context, raw []byte) error

// Relay copies an upstream chunk sequence to an outbound writer while keeping a copy
// of everything written. A Relay runs once.
type Relay struct {
	mu      sync.Mutex
	state   State
	buffer  bytes.Buffer
	chunks  int
	onChunk func(n int)
}

// Option customises a Relay.
type Option func(*Relay)

// WithChunkObserver registers a callback invoked with the byte size of every relayed chunk.
func WithChunkObserver(fn func(n int)) Option {
	return func(r *Relay) {
		r.onChunk = fn
	}
}

// New returns a relay in the streaming state.
func New(opts ...Option) *Relay {
	r := &Relay{state: StateStreaming}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains chunks into w, flushing after every chunk. When the sequence ends
// without error, finalize receives the buffered output and the relay ends DONE or
// FAILED depending on its result. Upstream or outbound failures skip finalize. A
// cancelled ctx reports ErrClientGone, an expired one ErrStreamTransport.
func (r *Relay) Run(ctx context.Context, chunks iter.Seq2[string, error], w FlushWriter, finalize Finalizer) error {
	r.mu.Lock()
	if r.state != StateStreaming || r.chunks > 0 {
		r.mu.Unlock()
		return errors.New("relay already used")
	}
	r.mu.Unlock()

	for chunk, err := range chunks {
		if err != nil {
			return r.fail(fmt.Errorf("%w: %v", ErrStreamTransport, err))
		}
		if err := ctx.Err(); err != nil {
			// The grading timeout elapsed while the client may still be connected.
			if errors.Is(err, context.DeadlineExceeded) {
				return r.fail(fmt.Errorf("%w: %w", ErrStreamTransport, err))
			}
			return r.fail(fmt.Errorf("%w: %w", ErrClientGone, err))
		}
		if chunk == "" {
			continue
		}

		r.mu.Lock()
		r.buffer.WriteString(chunk)
		r.chunks++
		r.mu.Unlock()

		if _, err := io.WriteString(w, chunk); err != nil {
			return r.fail(fmt.Errorf("%w: %v", ErrClientGone, err))
		}
		if err := w.Flush(); err != nil {
			return r.fail(fmt.Errorf("%w: %v", ErrClientGone, err))
		}
		if r.onChunk != nil {
			r.onChunk(len(chunk))
		}
	}

	r.setState(StateFinalizing)

	if finalize != nil {
		if err := finalize(ctx, r.Buffered()); err != nil {
			return r.fail(err)
		}
	}

	r.setState(StateDone)
	return nil
}

// State reports the current lifecycle position.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Buffered returns a copy of every chunk written so far, in order.
func (r *Relay) Buffered() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Clone(r.buffer.Bytes())
}

// Chunks reports how many non-empty chunks were relayed.
func (r *Relay) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks
}

func (r *Relay) setState(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *Relay) fail(err error) error {
	r.setState(StateFailed)
	return err
}

// Discard is a FlushWriter that drops everything, for runs with no client attached.
var Discard FlushWriter = discardWriter{}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (discardWriter) Flush() error { return nil }
