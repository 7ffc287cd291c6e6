package ai

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// GeminiConfig defines configuration options for the Gemini provider.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the Gemini API endpoint, e.g. for a regional proxy.
	BaseURL string
	Logger  zerolog.Logger
}

// GeminiStreamer implements Provider on top of the Google Gen AI SDK.
type GeminiStreamer struct {
	client *genai.Client
	cfg    GeminiConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiStreamer creates the Gen AI client for the Gemini API backend.
func NewGeminiStreamer(ctx context.Context, cfg GeminiConfig) (*GeminiStreamer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiStreamer{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/classpilot-io/AI-grading/pkg/ai/gemini"),
		logger: cfg.Logger.With().Str("component", "gemini_streamer").Logger(),
	}, nil
}

// Name identifies the provider in logs and metrics.
func (s *GeminiStreamer) Name() string {
	return "gemini"
}

// Stream calls GenerateContentStream. The SDK sequence is lazy, so the first response is
// pulled eagerly: an error there is reported as a start failure instead of a truncated stream.
func (s *GeminiStreamer) Stream(parent context.Context, prompt Prompt) (iter.Seq2[string, error], error) {
	ctx, span := s.tracer.Start(parent, "gemini.stream", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
	))

	contents, err := buildGeminiContents(prompt)
	if err != nil {
		span.End()
		return nil, fmt.Errorf("%w: %v", ErrStreamStart, err)
	}

	start := time.Now()
	next, stop := iter.Pull2(s.client.Models.GenerateContentStream(ctx, s.cfg.Model, contents, nil))

	first, err, ok := next()
	if ok && err != nil {
		stop()
		aiFailures.WithLabelValues(s.Name(), s.cfg.Model, "start").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, fmt.Errorf("%w: gemini: %v", ErrStreamStart, err)
	}

	return func(yield func(string, error) bool) {
		defer span.End()
		defer stop()

		resp := first
		for ok {
			if err != nil {
				aiFailures.WithLabelValues(s.Name(), s.cfg.Model, "stream").Inc()
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}

			if resp != nil {
				if text := resp.Text(); text != "" {
					aiChunks.WithLabelValues(s.Name(), s.cfg.Model).Inc()
					if !yield(text, nil) {
						return
					}
				}
			}

			resp, err, ok = next()
		}

		aiDuration.WithLabelValues(s.Name(), s.cfg.Model, "stream").Observe(time.Since(start).Seconds())
	}, nil
}

// Generate performs a single, non-streaming call.
func (s *GeminiStreamer) Generate(parent context.Context, text string) (string, error) {
	ctx, span := s.tracer.Start(parent, "gemini.generate", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	result, err := s.client.Models.GenerateContent(ctx, s.cfg.Model, genai.Text(text), nil)
	aiDuration.WithLabelValues(s.Name(), s.cfg.Model, "generate").Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(s.Name(), s.cfg.Model, "generate").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	output := strings.TrimSpace(result.Text())
	if output == "" {
		err := fmt.Errorf("no text content returned from gemini")
		aiFailures.WithLabelValues(s.Name(), s.cfg.Model, "generate").Inc()
		span.RecordError(err)
		return "", err
	}

	return output, nil
}

func buildGeminiContents(prompt Prompt) ([]*genai.Content, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt.Instruction)}
	if prompt.Attachment != nil {
		data, err := prompt.Attachment.Bytes()
		if err != nil {
			return nil, fmt.Errorf("decode attachment: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, prompt.Attachment.MIMEType))
	}

	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
}
