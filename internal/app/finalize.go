package app

import (
	"context"
	"errors"
	"log"

	"github.com/cenkalti/backoff/v4"

	"quiz-match-service/internal/domain"
)

// finalize applies ratings, persists the result and broadcasts match_end. A persistence failure
// leaves the in-memory result authoritative with Persisted=false.
func (s *MatchService) finalize(ctx context.Context, room *Room) {
	res, ok := room.draftResult()
	if !ok {
		return
	}
	res = s.persistResult(ctx, res)
	room.finish(res)

	if s.publisher != nil {
		if err := s.publisher.PublishMatchResult(ctx, res); err != nil {
			log.Printf("finalize match=%s: publish result: %v", res.MatchID, err)
		}
	}
}

func (s *MatchService) persistResult(ctx context.Context, res domain.MatchResult) domain.MatchResult {
	if s.results == nil {
		res.Standings = ApplyRatings(res.Standings, nil)
		return res
	}

	ids := make([]string, len(res.Standings))
	for i, st := range res.Standings {
		ids[i] = st.UserID
	}
	var ratings map[string]int
	err := s.withRetry(ctx, func() error {
		var err error
		ratings, err = s.results.Ratings(ctx, res.Scope, ids)
		return err
	})
	if err != nil {
		log.Printf("finalize match=%s: load ratings: %v", res.MatchID, domain.Persistence(err))
		return res
	}

	res.Standings = ApplyRatings(res.Standings, ratings)
	res.Persisted = true
	if err := s.withRetry(ctx, func() error { return s.results.SaveMatch(ctx, res) }); err != nil {
		log.Printf("finalize match=%s: save result: %v", res.MatchID, domain.Persistence(err))
		res.Persisted = false
	}
	return res
}

// withRetry retries op with exponential backoff. Validation errors are permanent and fail at once.
func (s *MatchService) withRetry(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retry.InitialInterval
	if s.retry.MaxInterval > 0 {
		eb.MaxInterval = s.retry.MaxInterval
	}
	eb.MaxElapsedTime = 0
	attempts := s.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && errors.Is(err, domain.ErrValidation) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
