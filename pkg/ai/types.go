package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"iter"
)

// ErrStreamStart indicates the provider refused or failed to open a stream before any chunk was produced.
var ErrStreamStart = errors.New("model stream could not be started")

// Attachment is an inline binary payload sent alongside the instruction text.
type Attachment struct {
	MIMEType string
	// Data holds the base64 (standard encoding) representation of the file bytes.
	Data string
}

// Bytes decodes the attachment payload.
func (a Attachment) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

// DataURI renders the attachment as an RFC 2397 data URI.
func (a Attachment) DataURI() string {
	return "data:" + a.MIMEType + ";base64," + a.Data
}

// Prompt is a single multimodal request: instruction text plus an optional inline file.
type Prompt struct {
	Instruction string
	Attachment  *Attachment
}

// Streamer produces model output incrementally.
//
// A failure to start the call is returned directly and wraps ErrStreamStart. Once the
// sequence is returned, a transport failure is yielded as the final ("", err) pair.
// The sequence is single-use.
type Streamer interface {
	Stream(ctx context.Context, prompt Prompt) (iter.Seq2[string, error], error)
}

// Generator produces a complete text response in one call.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// Provider is implemented by model clients able to both stream and generate.
type Provider interface {
	Streamer
	Generator
	Name() string
}
