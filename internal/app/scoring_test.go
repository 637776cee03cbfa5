package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-match-service/internal/domain"
)

func scoringQuestion() domain.Question {
	return domain.Question{
		ID:     "q1",
		Points: 100,
		Options: []domain.Option{
			{ID: "a", Correct: true},
			{ID: "b"},
			{ID: "c", Correct: true},
		},
	}
}

func TestScoreAnswerSpeedBonus(t *testing.T) {
	q := scoringQuestion()
	window := 10 * time.Second

	tests := []struct {
		name      string
		selection []string
		spent     time.Duration
		want      AnswerOutcome
	}{
		{name: "instant", selection: []string{"a", "c"}, spent: 0, want: AnswerOutcome{Correct: true, Points: 150}},
		{name: "half window", selection: []string{"c", "a"}, spent: 5 * time.Second, want: AnswerOutcome{Correct: true, Points: 125}},
		{name: "last moment", selection: []string{"a", "c"}, spent: window, want: AnswerOutcome{Correct: true, Points: 100}},
		{name: "floored bonus", selection: []string{"a", "c"}, spent: 3333 * time.Millisecond, want: AnswerOutcome{Correct: true, Points: 133}},
		{name: "duplicates ignored", selection: []string{"a", "a", "c"}, spent: 0, want: AnswerOutcome{Correct: true, Points: 150}},
		{name: "partial set", selection: []string{"a"}, spent: 0, want: AnswerOutcome{}},
		{name: "extra option", selection: []string{"a", "b", "c"}, spent: 0, want: AnswerOutcome{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreAnswer(q, tt.selection, tt.spent, window))
		})
	}
}

func TestScoreAnswerDefaultPoints(t *testing.T) {
	q := scoringQuestion()
	q.Points = 0
	assert.Equal(t, domain.DefaultQuestionPoints, ScoreAnswer(q, []string{"a", "c"}, time.Second, 0).Points)
}

func TestValidateSelection(t *testing.T) {
	q := scoringQuestion()
	assert.ErrorIs(t, validateSelection(q, nil), domain.ErrEmptySelection)
	assert.ErrorIs(t, validateSelection(q, []string{"a", "zz"}), domain.ErrOptionNotFound)
	assert.NoError(t, validateSelection(q, []string{"b"}))
}

func TestRankStandings(t *testing.T) {
	out := rankStandings([]standingInput{
		{UserID: "gone", Score: 900, Evicted: true},
		{UserID: "slow", Score: 300, TotalTimeMs: 9000},
		{UserID: "fast", Score: 300, TotalTimeMs: 4000},
		{UserID: "top", Score: 500, TotalTimeMs: 12000},
		{UserID: "twin", Score: 300, TotalTimeMs: 9000},
	})

	ids := make([]string, len(out))
	ranks := make([]int, len(out))
	for i, st := range out {
		ids[i] = st.UserID
		ranks[i] = st.Rank
	}
	assert.Equal(t, []string{"top", "fast", "slow", "twin", "gone"}, ids)
	assert.Equal(t, []int{1, 2, 3, 3, 5}, ranks)
	assert.True(t, out[4].Evicted)
}

func TestApplyRatingsHeadToHead(t *testing.T) {
	standings := []domain.Standing{{Rank: 1, UserID: "a"}, {Rank: 2, UserID: "b"}}
	out := ApplyRatings(standings, nil)

	require.Len(t, out, 2)
	assert.Equal(t, InitialRating, out[0].RatingBefore)
	assert.Equal(t, 16, out[0].RatingDelta)
	assert.Equal(t, -16, out[1].RatingDelta)
	assert.Equal(t, 1216, out[0].RatingAfter)
	assert.Equal(t, 1184, out[1].RatingAfter)
	assert.Zero(t, standings[0].RatingAfter, "input must not be modified")
}

func TestApplyRatingsFavouriteGainsLess(t *testing.T) {
	out := ApplyRatings(
		[]domain.Standing{{Rank: 1, UserID: "strong"}, {Rank: 2, UserID: "weak"}},
		map[string]int{"strong": 1600, "weak": 1200},
	)
	// E = 1/(1+10^-1) ~ 0.909, so 32*(1-0.909) rounds to 3.
	assert.Equal(t, 3, out[0].RatingDelta)
	assert.Equal(t, -3, out[1].RatingDelta)
}

func TestApplyRatingsDrawAndFloor(t *testing.T) {
	draw := ApplyRatings([]domain.Standing{{Rank: 1, UserID: "a"}, {Rank: 1, UserID: "b"}}, nil)
	assert.Zero(t, draw[0].RatingDelta)
	assert.Zero(t, draw[1].RatingDelta)

	floored := ApplyRatings(
		[]domain.Standing{{Rank: 1, UserID: "a"}, {Rank: 2, UserID: "b"}},
		map[string]int{"a": 110, "b": 105},
	)
	assert.Equal(t, RatingFloor, floored[1].RatingAfter)
	assert.Equal(t, RatingFloor-105, floored[1].RatingDelta)
}

func TestApplyRatingsSplitsAcrossOpponents(t *testing.T) {
	out := ApplyRatings([]domain.Standing{
		{Rank: 1, UserID: "a"},
		{Rank: 2, UserID: "b"},
		{Rank: 3, UserID: "c"},
	}, nil)
	assert.Equal(t, []int{16, 0, -16}, []int{out[0].RatingDelta, out[1].RatingDelta, out[2].RatingDelta})

	changes := RatingChanges(out)
	assert.Equal(t, domain.RatingChange{UserID: "a", Before: 1200, After: 1216}, changes[0])
}

func TestApplyRatingsSinglePlayerUnchanged(t *testing.T) {
	out := ApplyRatings([]domain.Standing{{Rank: 1, UserID: "solo"}}, map[string]int{"solo": 1500})
	assert.Equal(t, 1500, out[0].RatingAfter)
	assert.Zero(t, out[0].RatingDelta)
}
