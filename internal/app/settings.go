package app

import (
	"fmt"
	"time"

	"quiz-match-service/internal/domain"
)

// Settings configure a single match room.
type Settings struct {
	MaxPlayers       int
	MinPlayers       int
	QuestionDuration time.Duration
	Countdown        time.Duration
	Intermission     time.Duration
	WaitingTimeout   time.Duration
	ReconnectGrace   time.Duration
	Retention        time.Duration
	RatingScope      string
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:       4,
		MinPlayers:       2,
		QuestionDuration: 15 * time.Second,
		Countdown:        3 * time.Second,
		Intermission:     3 * time.Second,
		WaitingTimeout:   5 * time.Minute,
		ReconnectGrace:   30 * time.Second,
		Retention:        10 * time.Minute,
		RatingScope:      "global",
	}
}

// Merge fills zero fields of s from base.
func (s Settings) Merge(base Settings) Settings {
	if s.MaxPlayers == 0 {
		s.MaxPlayers = base.MaxPlayers
	}
	if s.MinPlayers == 0 {
		s.MinPlayers = base.MinPlayers
	}
	if s.QuestionDuration == 0 {
		s.QuestionDuration = base.QuestionDuration
	}
	if s.Countdown == 0 {
		s.Countdown = base.Countdown
	}
	if s.Intermission == 0 {
		s.Intermission = base.Intermission
	}
	if s.WaitingTimeout == 0 {
		s.WaitingTimeout = base.WaitingTimeout
	}
	if s.ReconnectGrace == 0 {
		s.ReconnectGrace = base.ReconnectGrace
	}
	if s.Retention == 0 {
		s.Retention = base.Retention
	}
	if s.RatingScope == "" {
		s.RatingScope = base.RatingScope
	}
	return s
}

// Validate rejects settings a room cannot run with.
func (s Settings) Validate() error {
	switch {
	case s.MinPlayers < 1:
		return invalidSettings("min players must be at least 1")
	case s.MaxPlayers < s.MinPlayers:
		return invalidSettings(fmt.Sprintf("max players %d below min players %d", s.MaxPlayers, s.MinPlayers))
	case s.QuestionDuration <= 0:
		return invalidSettings("question duration must be positive")
	case s.Countdown < 0 || s.Intermission < 0:
		return invalidSettings("countdown and intermission must not be negative")
	case s.WaitingTimeout <= 0 || s.ReconnectGrace <= 0 || s.Retention <= 0:
		return invalidSettings("timeouts must be positive")
	}
	return nil
}

func invalidSettings(msg string) error {
	return domain.Validation(domain.ErrInvalidSettings.Code, msg)
}

// questionDuration resolves the answer window of q.
func (s Settings) questionDuration(q domain.Question) time.Duration {
	if q.TimeLimitSec > 0 {
		return time.Duration(q.TimeLimitSec) * time.Second
	}
	return s.QuestionDuration
}
