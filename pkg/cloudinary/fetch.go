package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

const defaultFetchTimeout = 30 * time.Second

// Fetcher downloads stored files by public URL.
type Fetcher struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewFetcher builds a fetcher; a non-positive timeout falls back to 30s.
func NewFetcher(timeout time.Duration, logger zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	return &Fetcher{
		timeout: timeout,
		logger:  logger.With().Str("component", "file_fetcher").Logger(),
	}
}

// Fetch returns the body of fileURL. Any non-2xx status is an error.
//
// ctx is checked once before the request and its deadline caps the agent timeout.
// Cancellation is not observed mid-request: a cancelled ctx without a deadline lets
// the download run until it completes or the fetcher timeout elapses.
func (f *Fetcher) Fetch(ctx context.Context, fileURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Get(fileURL).Timeout(timeout).MaxRedirectsCount(3)
	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		f.logger.Warn().Errs("errors", errs).Str("url", fileURL).Msg("file fetch failed")
		return nil, fmt.Errorf("fetch %s: %w", fileURL, errors.Join(errs...))
	}

	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		f.logger.Warn().Int("status", status).Str("url", fileURL).Msg("file fetch returned non-success status")
		return nil, fmt.Errorf("fetch %s: unexpected status %d", fileURL, status)
	}

	return body, nil
}
