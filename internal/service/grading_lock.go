package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrGradingInProgress indicates another grading run holds the lock for the submission.
var ErrGradingInProgress = errors.New("grading already in progress")

const lockKeyPrefix = "grader:lock"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// GradingLocker serialises grading runs per submission.
type GradingLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

type redisLocker struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewGradingLocker returns a Redis backed locker, or one that never blocks when
// client is nil.
func NewGradingLocker(client *redis.Client, logger zerolog.Logger) GradingLocker {
	if client == nil {
		return noopLocker{}
	}
	return &redisLocker{
		client: client,
		logger: logger.With().Str("component", "grading_lock").Logger(),
	}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	fullKey := fmt.Sprintf("%s:%s", lockKeyPrefix, key)

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire grading lock: %w", err)
	}
	if !ok {
		return nil, ErrGradingInProgress
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Str("key", fullKey).Msg("failed to release grading lock")
		}
	}, nil
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

func gradingLockKey(assignmentID uuid.UUID, studentIdentifier string) string {
	return assignmentID.String() + ":" + studentIdentifier
}
