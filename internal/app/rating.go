package app

import (
	"math"

	"quiz-match-service/internal/domain"
)

const (
	// InitialRating is assigned to users without a stored rating.
	InitialRating = 1200
	// RatingK is the maximum rating swing against a single opponent.
	RatingK = 32
	// RatingFloor is the lowest rating a user can drop to.
	RatingFloor = 100
)

// ExpectedScore is the logistic probability that a player rated ra beats one rated rb.
func ExpectedScore(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

// ApplyRatings fills the rating columns of ranked standings. Every pair of players is treated as a
// game won by the higher standing, drawn on an exact tie, and each pairwise delta is divided by n-1.
// ratings holds the current rating per user; missing users start at InitialRating.
func ApplyRatings(standings []domain.Standing, ratings map[string]int) []domain.Standing {
	out := append([]domain.Standing(nil), standings...)
	n := len(out)
	for i := range out {
		before, ok := ratings[out[i].UserID]
		if !ok {
			before = InitialRating
		}
		out[i].RatingBefore = before
		out[i].RatingAfter = before
	}
	if n < 2 {
		return out
	}

	for i := range out {
		var delta float64
		for j := range out {
			if i == j {
				continue
			}
			expected := ExpectedScore(out[i].RatingBefore, out[j].RatingBefore)
			delta += RatingK * (actualScore(out[i], out[j]) - expected) / float64(n-1)
		}
		after := out[i].RatingBefore + int(math.Round(delta))
		if after < RatingFloor {
			after = RatingFloor
		}
		out[i].RatingAfter = after
		out[i].RatingDelta = after - out[i].RatingBefore
	}
	return out
}

// actualScore compares two ranked standings: the better rank wins, equal rank draws.
func actualScore(a, b domain.Standing) float64 {
	switch {
	case a.Rank < b.Rank:
		return 1
	case a.Rank > b.Rank:
		return 0
	default:
		return 0.5
	}
}

// RatingChanges lists the before/after pair of every standing.
func RatingChanges(standings []domain.Standing) []domain.RatingChange {
	changes := make([]domain.RatingChange, len(standings))
	for i, s := range standings {
		changes[i] = domain.RatingChange{UserID: s.UserID, Before: s.RatingBefore, After: s.RatingAfter}
	}
	return changes
}
