package grading

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/classpilot-io/AI-grading/pkg/ai"
)

// ErrFileFetch indicates the submission file could not be downloaded.
var ErrFileFetch = errors.New("submission file could not be fetched")

const (
	mimePDF  = "application/pdf"
	mimeJPEG = "image/jpeg"
)

// Fetcher downloads a stored file by URL.
type Fetcher interface {
	Fetch(ctx context.Context, fileURL string) ([]byte, error)
}

// RequestBuilder turns a stored submission file into a model prompt.
type RequestBuilder struct {
	fetcher Fetcher
}

// NewRequestBuilder constructs a builder backed by the given fetcher.
func NewRequestBuilder(fetcher Fetcher) *RequestBuilder {
	return &RequestBuilder{fetcher: fetcher}
}

// Build fetches the file at fileURL and combines it with the template instructions.
func (b *RequestBuilder) Build(ctx context.Context, fileURL string, template PromptTemplate) (ai.Prompt, error) {
	data, err := b.fetcher.Fetch(ctx, fileURL)
	if err != nil {
		return ai.Prompt{}, fmt.Errorf("%w: %v", ErrFileFetch, err)
	}

	return ai.Prompt{
		Instruction: template.Instruction,
		Attachment: &ai.Attachment{
			MIMEType: InferMIMEType(fileURL),
			Data:     base64.StdEncoding.EncodeToString(data),
		},
	}, nil
}

// InferMIMEType looks only at the URL suffix: ".pdf" is a PDF and everything else is
// reported as JPEG. Known defect: PNG and other image uploads are tagged image/jpeg.
func InferMIMEType(fileURL string) string {
	path := fileURL
	if parsed, err := url.Parse(fileURL); err == nil && parsed.Path != "" {
		path = parsed.Path
	}

	if strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return mimePDF
	}
	return mimeJPEG
}
