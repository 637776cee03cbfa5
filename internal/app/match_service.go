package app

import (
	"context"
	"time"

	"quiz-match-service/internal/clock"
	"quiz-match-service/internal/domain"
)

// RetryPolicy bounds retries of persistence calls made while finalizing a match.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when Dependencies.Retry is zero.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}
}

// Dependencies wires a MatchService. Quizzes and Notifier are required; the rest have defaults.
type Dependencies struct {
	Quizzes   QuizRepository
	Notifier  Notifier
	Store     Store
	Results   ResultRepository
	Publisher ResultPublisher
	Clock     clock.Clock
	Settings  Settings
	Retry     RetryPolicy
	// Executor runs match finalization. Defaults to a new goroutine.
	Executor       func(func())
	RegistryOption []RegistryOption
}

// MatchService is the entry point the transports use. Every error it returns is a *domain.Error.
type MatchService struct {
	quizzes   QuizRepository
	results   ResultRepository
	publisher ResultPublisher
	registry  *Registry
	clock     clock.Clock
	settings  Settings
	retry     RetryPolicy
	execute   func(func())
}

// NewMatchService builds the service and its registry.
func NewMatchService(deps Dependencies) *MatchService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Executor == nil {
		deps.Executor = func(f func()) { go f() }
	}
	if deps.Retry.MaxAttempts == 0 {
		deps.Retry = DefaultRetryPolicy()
	}
	s := &MatchService{
		quizzes:   deps.Quizzes,
		results:   deps.Results,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		settings:  deps.Settings.Merge(DefaultSettings()),
		retry:     deps.Retry,
		execute:   deps.Executor,
	}
	s.registry = NewRegistry(deps.Store, deps.Clock, deps.Notifier, deps.RegistryOption...)
	s.registry.hooks.completed = func(room *Room) {
		s.execute(func() { s.finalize(context.Background(), room) })
	}
	return s
}

// Registry exposes the room registry.
func (s *MatchService) Registry() *Registry { return s.registry }

// Init prepares the registry for use.
func (s *MatchService) Init(ctx context.Context) error {
	if err := s.registry.Init(ctx); err != nil {
		return domain.Persistence(err)
	}
	return nil
}

// CreateMatchRequest describes a new match. Zero fields fall back to the service settings.
type CreateMatchRequest struct {
	QuizID           string
	MaxPlayers       int
	MinPlayers       int
	QuestionDuration time.Duration
}

// CreateMatch snapshots the quiz and opens a waiting room.
func (s *MatchService) CreateMatch(ctx context.Context, req CreateMatchRequest) (domain.MatchSummary, error) {
	if req.QuizID == "" {
		return domain.MatchSummary{}, domain.Validation("missing_quiz_id", "quizId is required")
	}
	if req.MaxPlayers < 0 || req.MinPlayers < 0 || req.QuestionDuration < 0 {
		return domain.MatchSummary{}, domain.Validation(domain.ErrInvalidSettings.Code, "settings must not be negative")
	}
	quiz, err := s.quizzes.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return domain.MatchSummary{}, domain.AsError(err)
	}
	settings := Settings{
		MaxPlayers:       req.MaxPlayers,
		MinPlayers:       req.MinPlayers,
		QuestionDuration: req.QuestionDuration,
	}.Merge(s.settings)
	room, err := s.registry.Create(ctx, quiz, settings)
	if err != nil {
		return domain.MatchSummary{}, domain.AsError(err)
	}
	return room.Summary(), nil
}

// Join adds the identity to a match, bound to sessionID.
func (s *MatchService) Join(_ context.Context, matchID string, id domain.Identity, sessionID string) (domain.MatchSnapshot, error) {
	room, err := s.registry.Get(matchID)
	if err != nil {
		return domain.MatchSnapshot{}, err
	}
	snap, err := room.Join(id, sessionID)
	return snap, asDomain(err)
}

// JoinByCode resolves the join code and joins that match.
func (s *MatchService) JoinByCode(ctx context.Context, code string, id domain.Identity, sessionID string) (domain.MatchSnapshot, error) {
	room, err := s.registry.GetByCode(code)
	if err != nil {
		return domain.MatchSnapshot{}, err
	}
	return s.Join(ctx, room.ID(), id, sessionID)
}

// Ready sets the player's ready flag.
func (s *MatchService) Ready(_ context.Context, matchID, userID string, ready bool) error {
	room, err := s.registry.Get(matchID)
	if err != nil {
		return err
	}
	return asDomain(room.SetReady(userID, ready))
}

// SubmitAnswer scores an answer to the open question.
func (s *MatchService) SubmitAnswer(_ context.Context, matchID, userID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	room, err := s.registry.Get(matchID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	res, err := room.Submit(userID, sub)
	return res, asDomain(err)
}

// State returns the personalised snapshot used to resynchronize a client.
func (s *MatchService) State(_ context.Context, matchID, userID string) (domain.MatchSnapshot, error) {
	room, err := s.registry.Get(matchID)
	if err != nil {
		return domain.MatchSnapshot{}, err
	}
	snap, err := room.Snapshot(userID)
	return snap, asDomain(err)
}

// Leave takes the player out of the match.
func (s *MatchService) Leave(_ context.Context, matchID, userID string) error {
	room, err := s.registry.Get(matchID)
	if err != nil {
		return err
	}
	return asDomain(room.Leave(userID))
}

// Disconnect reports a closed transport session.
func (s *MatchService) Disconnect(_ context.Context, matchID, userID, sessionID string) error {
	room, err := s.registry.Get(matchID)
	if err != nil {
		return err
	}
	return asDomain(room.Disconnect(userID, sessionID))
}

// Reconnect rebinds a player to a new session.
func (s *MatchService) Reconnect(_ context.Context, matchID, userID, sessionID string) (domain.MatchSnapshot, error) {
	room, err := s.registry.Get(matchID)
	if err != nil {
		return domain.MatchSnapshot{}, err
	}
	snap, err := room.Reconnect(userID, sessionID)
	return snap, asDomain(err)
}

// Cancel aborts a waiting match.
func (s *MatchService) Cancel(_ context.Context, matchID string) error {
	room, err := s.registry.Get(matchID)
	if err != nil {
		return err
	}
	return asDomain(room.Cancel(domain.ReasonCancelled))
}

// Get returns the public snapshot of a match.
func (s *MatchService) Get(_ context.Context, matchID string) (domain.MatchSnapshot, error) {
	room, err := s.registry.Get(matchID)
	if err != nil {
		return domain.MatchSnapshot{}, err
	}
	snap, err := room.Snapshot("")
	return snap, asDomain(err)
}

// GetByCode returns the public snapshot of the match behind a join code.
func (s *MatchService) GetByCode(ctx context.Context, code string) (domain.MatchSnapshot, error) {
	room, err := s.registry.GetByCode(code)
	if err != nil {
		return domain.MatchSnapshot{}, err
	}
	return s.Get(ctx, room.ID())
}

// List returns the live matches.
func (s *MatchService) List(_ context.Context) []domain.MatchSummary {
	return s.registry.List()
}

// RefreshQuiz drops any cached copy of a quiz so the next match loads the current content. Rooms
// already created keep the snapshot they started with.
func (s *MatchService) RefreshQuiz(ctx context.Context, quizID string) error {
	if quizID == "" {
		return domain.Validation("missing_quiz_id", "quizId is required")
	}
	inv, ok := s.quizzes.(QuizInvalidator)
	if !ok {
		return nil
	}
	if err := inv.Invalidate(ctx, quizID); err != nil {
		return domain.Persistence(err)
	}
	return nil
}

// ActiveMatches reports how many rooms the registry holds.
func (s *MatchService) ActiveMatches() int {
	return s.registry.Len()
}

// Shutdown closes every room.
func (s *MatchService) Shutdown(ctx context.Context) error {
	return asDomain(s.registry.Shutdown(ctx))
}

func asDomain(err error) error {
	if err == nil {
		return nil
	}
	return domain.AsError(err)
}
