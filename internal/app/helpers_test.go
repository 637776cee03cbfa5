package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/clock"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
)

// recorder is a Notifier that keeps every event per session.
type recorder struct {
	mu     sync.Mutex
	events map[string][]domain.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(map[string][]domain.Event)}
}

func (r *recorder) Send(sessionID string, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[sessionID] = append(r.events[sessionID], ev)
	return nil
}

func (r *recorder) types(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events[sessionID]))
	for _, ev := range r.events[sessionID] {
		out = append(out, ev.Type)
	}
	return out
}

// last returns the most recent event of type typ sent to sessionID.
func (r *recorder) last(sessionID, typ string) (domain.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.events[sessionID]
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == typ {
			return evs[i], true
		}
	}
	return domain.Event{}, false
}

type failingResults struct {
	ratingsErr error
	saveErr    error
	saves      int
}

func (f *failingResults) Ratings(context.Context, string, []string) (map[string]int, error) {
	if f.ratingsErr != nil {
		return nil, f.ratingsErr
	}
	return map[string]int{}, nil
}

func (f *failingResults) SaveMatch(context.Context, domain.MatchResult) error {
	f.saves++
	return f.saveErr
}

type capturePublisher struct {
	mu      sync.Mutex
	results []domain.MatchResult
}

func (p *capturePublisher) PublishMatchResult(_ context.Context, res domain.MatchResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, res)
	return nil
}

type harness struct {
	t        *testing.T
	clock    *clock.Fake
	notifier *recorder
	store    *memory.Store
	results  *memory.ResultRepository
	service  *app.MatchService
}

type harnessOption func(*app.Dependencies)

func withResults(r app.ResultRepository) harnessOption {
	return func(d *app.Dependencies) { d.Results = r }
}

func withQuizzes(q app.QuizRepository) harnessOption {
	return func(d *app.Dependencies) { d.Quizzes = q }
}

func withPublisher(p app.ResultPublisher) harnessOption {
	return func(d *app.Dependencies) { d.Publisher = p }
}

func withSettings(s app.Settings) harnessOption {
	return func(d *app.Dependencies) { d.Settings = s.Merge(d.Settings) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC))
	h := &harness{
		t:        t,
		clock:    clk,
		notifier: newRecorder(),
		store:    memory.NewStoreWithClock(clk.Now),
		results:  memory.NewResultRepository(),
	}
	deps := app.Dependencies{
		Quizzes: memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
			"one":  buildQuiz("one", 1, 20),
			"five": buildQuiz("five", 5, 10),
		}), time.Minute),
		Notifier: h.notifier,
		Store:    h.store,
		Results:  h.results,
		Clock:    clk,
		Settings: app.Settings{
			Countdown:    time.Second,
			Intermission: time.Second,
		}.Merge(app.DefaultSettings()),
		Retry:    app.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		Executor: func(f func()) { f() },
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.service = app.NewMatchService(deps)
	return h
}

// buildQuiz makes n questions q1..qn; option "a" is correct, "b" is not.
func buildQuiz(id string, n, limitSec int) domain.Quiz {
	quiz := domain.Quiz{ID: id, Title: id}
	for i := 1; i <= n; i++ {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:     fmt.Sprintf("q%d", i),
			Prompt: fmt.Sprintf("question %d", i),
			Options: []domain.Option{
				{ID: "a", Text: "right", Correct: true},
				{ID: "b", Text: "wrong"},
			},
			Points:       100,
			TimeLimitSec: limitSec,
		})
	}
	return quiz
}

func (h *harness) create(quizID string, req app.CreateMatchRequest) domain.MatchSummary {
	h.t.Helper()
	req.QuizID = quizID
	summary, err := h.service.CreateMatch(context.Background(), req)
	require.NoError(h.t, err)
	return summary
}

// join adds user with session "s-<user>".
func (h *harness) join(matchID, user string) domain.MatchSnapshot {
	h.t.Helper()
	snap, err := h.service.Join(context.Background(), matchID, domain.Identity{UserID: user, DisplayName: user}, "s-"+user)
	require.NoError(h.t, err)
	return snap
}

func (h *harness) ready(matchID string, users ...string) {
	h.t.Helper()
	for _, u := range users {
		require.NoError(h.t, h.service.Ready(context.Background(), matchID, u, true))
	}
}

func (h *harness) submit(matchID, user, questionID, option string) (domain.AnswerResult, error) {
	return h.service.SubmitAnswer(context.Background(), matchID, user, domain.AnswerSubmission{
		QuestionID: questionID,
		OptionIDs:  []string{option},
	})
}

// started creates a match, seats users, readies them and runs the countdown so question 1 is open.
func (h *harness) started(quizID string, users ...string) string {
	h.t.Helper()
	summary := h.create(quizID, app.CreateMatchRequest{MaxPlayers: len(users), MinPlayers: len(users)})
	for _, u := range users {
		h.join(summary.MatchID, u)
	}
	h.ready(summary.MatchID, users...)
	h.clock.Advance(time.Second)
	return summary.MatchID
}

func (h *harness) state(matchID, user string) domain.MatchSnapshot {
	h.t.Helper()
	snap, err := h.service.State(context.Background(), matchID, user)
	require.NoError(h.t, err)
	return snap
}
