package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type geminiReply struct {
	status int
	deltas []string
	// tail is written verbatim after the deltas.
	tail string
	// hold keeps the response open after the deltas until the client hangs up.
	hold bool
}

func geminiServer(t *testing.T, reply geminiReply, disconnected chan<- struct{}) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
			http.NotFound(w, r)
			return
		}

		if reply.status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(reply.status)
			_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"backend overloaded","status":"UNAVAILABLE"}}`, reply.status)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range reply.deltas {
			_, _ = fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":%q}]}}]}\n\n", delta)
			w.(http.Flusher).Flush()
		}
		if reply.tail != "" {
			_, _ = fmt.Fprint(w, reply.tail)
			w.(http.Flusher).Flush()
		}

		if reply.hold {
			select {
			case <-r.Context().Done():
				if disconnected != nil {
					close(disconnected)
				}
			case <-time.After(5 * time.Second):
			}
		}
	}))
}

func newTestGemini(t *testing.T, server *httptest.Server) *GeminiStreamer {
	t.Helper()
	streamer, err := NewGeminiStreamer(context.Background(), GeminiConfig{
		APIKey:  "test",
		Model:   "gemini-test",
		BaseURL: server.URL,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return streamer
}

func TestGeminiStreamerReportsStartFailure(t *testing.T) {
	server := geminiServer(t, geminiReply{status: http.StatusServiceUnavailable}, nil)
	defer server.Close()

	seq, err := newTestGemini(t, server).Stream(context.Background(), Prompt{Instruction: "grade"})
	require.ErrorIs(t, err, ErrStreamStart)
	require.Nil(t, seq)
}

func TestGeminiStreamerYieldsDeltasInOrder(t *testing.T) {
	deltas := []string{"```json\n{\"questions\":", "[{\"question_number\":\"1\"}]", "}\n```"}
	server := geminiServer(t, geminiReply{status: http.StatusOK, deltas: deltas}, nil)
	defer server.Close()

	seq, err := newTestGemini(t, server).Stream(context.Background(), Prompt{
		Instruction: "grade",
		Attachment:  &Attachment{MIMEType: "application/pdf", Data: "JVBERi0="},
	})
	require.NoError(t, err)

	var chunks []string
	for chunk, err := range seq {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	require.Equal(t, deltas, chunks)
}

func TestGeminiStreamerYieldsMidStreamErrorLast(t *testing.T) {
	server := geminiServer(t, geminiReply{
		status: http.StatusOK,
		deltas: []string{"{\"questions\":"},
		tail:   "data: {\"candidates\":[{\"content\"\n\n",
	}, nil)
	defer server.Close()

	seq, err := newTestGemini(t, server).Stream(context.Background(), Prompt{Instruction: "grade"})
	require.NoError(t, err)

	var chunks []string
	var errs []error
	for chunk, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		require.Empty(t, errs, "chunk yielded after an error")
		chunks = append(chunks, chunk)
	}

	require.Equal(t, []string{"{\"questions\":"}, chunks)
	require.Len(t, errs, 1)
	require.False(t, errors.Is(errs[0], ErrStreamStart))
}

func TestGeminiStreamerReleasesConnectionOnEarlyBreak(t *testing.T) {
	disconnected := make(chan struct{})
	server := geminiServer(t, geminiReply{
		status: http.StatusOK,
		deltas: []string{"first", "second", "third"},
		hold:   true,
	}, disconnected)
	defer server.Close()

	seq, err := newTestGemini(t, server).Stream(context.Background(), Prompt{Instruction: "grade"})
	require.NoError(t, err)

	var chunks []string
	for chunk, err := range seq {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
		if len(chunks) == 2 {
			break
		}
	}
	require.Equal(t, []string{"first", "second"}, chunks)

	select {
	case <-disconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("response body was not closed after the consumer stopped")
	}
}
