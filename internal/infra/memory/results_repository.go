package memory

import (
	"context"
	"sync"

	"quiz-match-service/internal/domain"
)

// ResultRepository keeps match results and ratings in process memory. SaveMatch is atomic.
type ResultRepository struct {
	mu      sync.RWMutex
	matches map[string]domain.MatchResult
	ratings map[ratingKey]int
}

type ratingKey struct {
	userID string
	scope  string
}

func NewResultRepository() *ResultRepository {
	return &ResultRepository{
		matches: make(map[string]domain.MatchResult),
		ratings: make(map[ratingKey]int),
	}
}

func (r *ResultRepository) Ratings(_ context.Context, scope string, userIDs []string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(userIDs))
	for _, id := range userIDs {
		if rating, ok := r.ratings[ratingKey{userID: id, scope: scope}]; ok {
			out[id] = rating
		}
	}
	return out, nil
}

func (r *ResultRepository) SaveMatch(_ context.Context, result domain.MatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.matches[result.MatchID]; exists {
		return domain.Validation("duplicate_match", "match "+result.MatchID+" already saved")
	}
	stored := result
	stored.Standings = append([]domain.Standing(nil), result.Standings...)
	r.matches[result.MatchID] = stored
	for _, st := range result.Standings {
		r.ratings[ratingKey{userID: st.UserID, scope: result.Scope}] = st.RatingAfter
	}
	return nil
}

// Match returns a saved result.
func (r *ResultRepository) Match(matchID string) (domain.MatchResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.matches[matchID]
	return res, ok
}

// SetRating seeds a rating, e.g. for demos and tests.
func (r *ResultRepository) SetRating(scope, userID string, rating int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratings[ratingKey{userID: userID, scope: scope}] = rating
}
