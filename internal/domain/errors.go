package domain

import "errors"

// Kind classifies errors for the transport layer.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindCapacity    Kind = "capacity"
	KindState       Kind = "state"
	KindNotFound    Kind = "not_found"
	KindPersistence Kind = "persistence"
	KindInternal    Kind = "internal"
)

// Error is the error type returned by the match subsystem.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Is makes a kind sentinel (an Error without Code) match every error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == "" && t.Kind == e.Kind
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Kind sentinels, usable with errors.Is.
var (
	ErrValidation  = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrCapacity    = &Error{Kind: KindCapacity, Message: "capacity exceeded"}
	ErrState       = &Error{Kind: KindState, Message: "invalid state"}
	ErrNotFound    = &Error{Kind: KindNotFound, Message: "not found"}
	ErrPersistence = &Error{Kind: KindPersistence, Message: "persistence failed"}
)

var (
	// ErrMatchNotFound is returned for unknown match ids.
	ErrMatchNotFound = newError(KindNotFound, "match_not_found", "match not found")
	// ErrCodeNotFound is returned for unknown join codes.
	ErrCodeNotFound = newError(KindNotFound, "code_not_found", "join code not found")
	// ErrPlayerNotFound is returned when a user acts in a match they never joined.
	ErrPlayerNotFound = newError(KindNotFound, "player_not_found", "player not found in match")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError(KindNotFound, "quiz_not_found", "quiz not found")
	// ErrKeyNotFound is returned by stores for missing keys.
	ErrKeyNotFound = newError(KindNotFound, "key_not_found", "key not found")

	ErrQuestionNotFound = newError(KindValidation, "question_not_found", "question not found")
	ErrOptionNotFound   = newError(KindValidation, "option_not_found", "option not found")
	ErrEmptySelection   = newError(KindValidation, "empty_selection", "no option selected")
	ErrEmptyQuiz        = newError(KindValidation, "empty_quiz", "quiz has no questions")
	ErrInvalidSettings  = newError(KindValidation, "invalid_settings", "invalid match settings")

	ErrRoomFull = newError(KindCapacity, "room_full", "room full")

	ErrAlreadyAnswered     = newError(KindState, "already_answered", "already answered")
	ErrQuestionClosed      = newError(KindState, "question_closed", "question closed")
	ErrMatchEnded          = newError(KindState, "match_ended", "match ended")
	ErrMatchNotStarted     = newError(KindState, "match_not_started", "match has not started")
	ErrMatchAlreadyStarted = newError(KindState, "match_already_started", "match already started")
	ErrEvicted             = newError(KindState, "evicted", "reconnect grace period expired")
	ErrAlreadyInMatch      = newError(KindState, "already_in_match", "connection already joined a match")
	ErrNotInMatch          = newError(KindState, "not_in_match", "connection has not joined a match")
	ErrCodeExhausted       = newError(KindState, "code_exhausted", "could not allocate a unique join code")
	ErrRegistryClosed      = newError(KindState, "registry_closed", "match registry is shut down")
)

// Validation builds an ad-hoc validation error, e.g. for malformed payloads.
func Validation(code, message string) *Error {
	return newError(KindValidation, code, message)
}

// Persistence wraps a storage failure.
func Persistence(err error) *Error {
	return newError(KindPersistence, "persistence_failed", err.Error())
}

// AsError converts any error into *Error, classifying unknown errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(KindInternal, "internal", err.Error())
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	return AsError(err).Kind
}
