package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIConfig defines configuration options for the OpenAI provider.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIStreamer implements Provider against the OpenAI chat completion API.
type OpenAIStreamer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIStreamer builds a new provider using the supplied configuration.
func NewOpenAIStreamer(cfg OpenAIConfig) (*OpenAIStreamer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIStreamer{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/classpilot-io/AI-grading/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_streamer").Logger(),
	}, nil
}

// Name identifies the provider in logs and metrics.
func (s *OpenAIStreamer) Name() string {
	return "openai"
}

// Stream opens a streaming chat completion for the prompt.
func (s *OpenAIStreamer) Stream(parent context.Context, prompt Prompt) (iter.Seq2[string, error], error) {
	ctx, span := s.tracer.Start(parent, "openai.stream", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
	))

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Messages:    []openai.ChatCompletionMessage{buildOpenAIMessage(prompt)},
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		aiFailures.WithLabelValues(s.Name(), s.cfg.Model, "start").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, fmt.Errorf("%w: openai: %v", ErrStreamStart, err)
	}

	return func(yield func(string, error) bool) {
		defer span.End()
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				aiDuration.WithLabelValues(s.Name(), s.cfg.Model, "stream").Observe(time.Since(start).Seconds())
				return
			}
			if err != nil {
				aiFailures.WithLabelValues(s.Name(), s.cfg.Model, "stream").Inc()
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield("", fmt.Errorf("openai stream: %w", err))
				return
			}

			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			aiChunks.WithLabelValues(s.Name(), s.cfg.Model).Inc()
			if !yield(delta, nil) {
				return
			}
		}
	}, nil
}

// Generate performs a blocking chat completion and returns the trimmed text.
func (s *OpenAIStreamer) Generate(parent context.Context, text string) (string, error) {
	ctx, span := s.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	aiDuration.WithLabelValues(s.Name(), s.cfg.Model, "generate").Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(s.Name(), s.cfg.Model, "generate").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		aiFailures.WithLabelValues(s.Name(), s.cfg.Model, "generate").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildOpenAIMessage(prompt Prompt) openai.ChatCompletionMessage {
	if prompt.Attachment == nil {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt.Instruction,
		}
	}

	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: prompt.Instruction,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    prompt.Attachment.DataURI(),
					Detail: openai.ImageURLDetailHigh,
				},
			},
		},
	}
}
