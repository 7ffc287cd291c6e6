package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, status int, deltas []string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = fmt.Fprint(w, `{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range deltas {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
			w.(http.Flusher).Flush()
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestOpenAIStreamerYieldsDeltasInOrder(t *testing.T) {
	server := sseServer(t, http.StatusOK, []string{"```json\n{\"a\":", "1}", "\n```"})
	defer server.Close()

	streamer, err := NewOpenAIStreamer(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	require.NoError(t, err)

	seq, err := streamer.Stream(context.Background(), Prompt{
		Instruction: "grade",
		Attachment:  &Attachment{MIMEType: "image/jpeg", Data: "AAAA"},
	})
	require.NoError(t, err)

	var chunks []string
	for chunk, err := range seq {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}

	require.Equal(t, []string{"```json\n{\"a\":", "1}", "\n```"}, chunks)
	require.Equal(t, "```json\n{\"a\":1}\n```", strings.Join(chunks, ""))
}

func TestOpenAIStreamerReportsStartFailure(t *testing.T) {
	server := sseServer(t, http.StatusTooManyRequests, nil)
	defer server.Close()

	streamer, err := NewOpenAIStreamer(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	require.NoError(t, err)

	seq, err := streamer.Stream(context.Background(), Prompt{Instruction: "grade"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrStreamStart))
	require.Nil(t, seq)
}

func TestNewProviderRejectsUnknownName(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Name: "llama"})
	require.Error(t, err)
}

func TestAttachmentDataURI(t *testing.T) {
	att := Attachment{MIMEType: "application/pdf", Data: "JVBERi0="}
	require.Equal(t, "data:application/pdf;base64,JVBERi0=", att.DataURI())

	raw, err := att.Bytes()
	require.NoError(t, err)
	require.Equal(t, "%PDF-", string(raw))
}
