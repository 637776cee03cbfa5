package app

import (
	"sort"
	"time"

	"quiz-match-service/internal/domain"
)

// AnswerOutcome is the scoring of one submission.
type AnswerOutcome struct {
	Correct bool
	Points  int
}

// ScoreAnswer scores a selection that has already been validated against q.
// A correct answer earns base + floor(base/2 * remaining/window); an incorrect one earns nothing.
func ScoreAnswer(q domain.Question, selection []string, timeSpent, window time.Duration) AnswerOutcome {
	if !selectionMatches(q, selection) {
		return AnswerOutcome{}
	}
	base := q.BasePoints()
	if window <= 0 {
		return AnswerOutcome{Correct: true, Points: base}
	}
	if timeSpent < 0 {
		timeSpent = 0
	}
	if timeSpent > window {
		timeSpent = window
	}
	remaining := window - timeSpent
	bonus := int64(base) * int64(remaining) / (2 * int64(window))
	return AnswerOutcome{Correct: true, Points: base + int(bonus)}
}

// validateSelection rejects empty selections and unknown option ids.
func validateSelection(q domain.Question, selection []string) error {
	if len(selection) == 0 {
		return domain.ErrEmptySelection
	}
	for _, id := range selection {
		if !q.HasOption(id) {
			return domain.ErrOptionNotFound
		}
	}
	return nil
}

// selectionMatches reports whether selection equals the correct option set, ignoring order and duplicates.
func selectionMatches(q domain.Question, selection []string) bool {
	correct := q.CorrectOptionIDs()
	if len(correct) == 0 {
		return false
	}
	chosen := make(map[string]struct{}, len(selection))
	for _, id := range selection {
		chosen[id] = struct{}{}
	}
	if len(chosen) != len(correct) {
		return false
	}
	for _, id := range correct {
		if _, ok := chosen[id]; !ok {
			return false
		}
	}
	return true
}

// standingInput is the per-player data ranking needs.
type standingInput struct {
	UserID       string
	DisplayName  string
	Score        int
	CorrectCount int
	TotalTimeMs  int64
	Evicted      bool
}

// rankStandings orders players: non-evicted first, then score descending, then total time ascending,
// then the given (join) order. Exact ties share a rank.
func rankStandings(in []standingInput) []domain.Standing {
	ordered := append([]standingInput(nil), in...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return outranks(ordered[i], ordered[j])
	})

	out := make([]domain.Standing, len(ordered))
	for i, p := range ordered {
		rank := i + 1
		if i > 0 && tied(ordered[i-1], p) {
			rank = out[i-1].Rank
		}
		out[i] = domain.Standing{
			Rank:         rank,
			UserID:       p.UserID,
			DisplayName:  p.DisplayName,
			Score:        p.Score,
			CorrectCount: p.CorrectCount,
			TotalTimeMs:  p.TotalTimeMs,
			Evicted:      p.Evicted,
		}
	}
	return out
}

func outranks(a, b standingInput) bool {
	if a.Evicted != b.Evicted {
		return !a.Evicted
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.TotalTimeMs < b.TotalTimeMs
}

func tied(a, b standingInput) bool {
	return a.Evicted == b.Evicted && a.Score == b.Score && a.TotalTimeMs == b.TotalTimeMs
}
