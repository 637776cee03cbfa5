package app

import (
	"context"
	"time"

	"quiz-match-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizInvalidator is implemented by quiz repositories that cache content.
type QuizInvalidator interface {
	Invalidate(ctx context.Context, quizID string) error
}

// Store is the key/value, hash, set and list surface used to mirror ephemeral match state.
// Implementations return domain.ErrKeyNotFound from Get and Expire for missing keys; collection reads
// on missing keys return empty results. A ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Keys lists keys matching a redis glob pattern (*, ? and [...]).
	Keys(ctx context.Context, pattern string) ([]string, error)

	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// ResultRepository persists final match records and ratings.
type ResultRepository interface {
	// Ratings returns the stored rating of each known user in scope. Unknown users are absent.
	Ratings(ctx context.Context, scope string, userIDs []string) (map[string]int, error)
	// SaveMatch stores the match record, per-player rows and updated ratings atomically.
	SaveMatch(ctx context.Context, result domain.MatchResult) error
}

// ResultPublisher announces completed matches to other services.
type ResultPublisher interface {
	PublishMatchResult(ctx context.Context, result domain.MatchResult) error
}

// Notifier delivers server events to a transport session. Send must not block.
type Notifier interface {
	Send(sessionID string, event domain.Event) error
}
