package app

import (
	"fmt"
	"log"
	"sync"
	"time"

	"quiz-match-service/internal/clock"
	"quiz-match-service/internal/domain"
)

type roomHooks struct {
	// completed runs once, outside the room lock, after the room reaches completed.
	completed func(*Room)
	// finished runs once the room should leave the registry (cancelled, or retention elapsed).
	finished func(*Room)
}

// Room is one match. Every mutation, timer callback and store write happens under mu; work that
// touches other components is queued with afterUnlock and runs once mu is released.
type Room struct {
	mu sync.Mutex

	id        string
	code      string
	quiz      domain.Quiz
	settings  Settings
	clock     clock.Clock
	notifier  Notifier
	mirror    mirror
	hooks     roomHooks
	createdAt time.Time
	timers    *timerSet

	status            domain.MatchStatus
	players           *playerList
	expired           map[string]struct{}
	index             int
	questionOpen      bool
	questionStartedAt time.Time
	questionWindow    time.Duration
	startedAt         time.Time
	endedAt           time.Time
	draft             *domain.MatchResult
	result            *domain.MatchResult
	closed            bool
	after             []func()
}

func newRoom(id, code string, quiz domain.Quiz, settings Settings, c clock.Clock, notifier Notifier, store Store, hooks roomHooks) *Room {
	return &Room{
		id:        id,
		code:      code,
		quiz:      quiz.Clone(),
		settings:  settings,
		clock:     c,
		notifier:  notifier,
		mirror:    mirror{store: store, matchID: id},
		hooks:     hooks,
		createdAt: c.Now(),
		timers:    newTimerSet(c),
		status:    domain.StatusWaiting,
		players:   newPlayerList(),
		expired:   make(map[string]struct{}),
	}
}

// ID returns the match id.
func (r *Room) ID() string { return r.id }

// Code returns the join code.
func (r *Room) Code() string { return r.code }

func (r *Room) withLock(fn func() error) error {
	r.mu.Lock()
	err := fn()
	after := r.after
	r.after = nil
	r.mu.Unlock()
	for _, f := range after {
		f()
	}
	return err
}

func (r *Room) afterUnlock(f func()) {
	r.after = append(r.after, f)
}

// scheduleLocked arms a named timer whose handler re-enters the room lock and runs only if the
// timer is still current and the room is open.
func (r *Room) scheduleLocked(name string, d time.Duration, handler func()) {
	r.timers.schedule(name, d, func(gen uint64) {
		_ = r.withLock(func() error {
			if r.closed || !r.timers.claim(name, gen) {
				return nil
			}
			handler()
			return nil
		})
	})
}

func (r *Room) transitionLocked(next domain.MatchStatus) bool {
	if !r.status.CanTransition(next) {
		return false
	}
	r.status = next
	return true
}

// activate arms the waiting timeout and writes the initial mirror.
func (r *Room) activate() {
	_ = r.withLock(func() error {
		r.scheduleLocked(timerWaiting, r.settings.WaitingTimeout, func() {
			if r.status == domain.StatusWaiting {
				r.cancelLocked(domain.ReasonWaitingTimeout)
			}
		})
		r.mirror.log("created")
		r.mirror.state(r.snapshotLocked(""))
		return nil
	})
}

// close stops every timer. The room rejects all further operations.
func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.timers.cancelAll()
	r.after = nil
}

func (r *Room) playerLocked(userID string) (*player, error) {
	if r.closed {
		return nil, domain.ErrMatchNotFound
	}
	p, ok := r.players.get(userID)
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return p, nil
}

func (r *Room) sendLocked(p *player, ev domain.Event) {
	if p.connection != domain.Connected || p.sessionID == "" {
		return
	}
	if err := r.notifier.Send(p.sessionID, ev); err != nil {
		log.Printf("match=%s: deliver %s to user=%s failed: %v", r.id, ev.Type, p.userID, err)
	}
}

func (r *Room) broadcastLocked(ev domain.Event, except string) {
	r.players.each(func(p *player) {
		if p.userID != except {
			r.sendLocked(p, ev)
		}
	})
}

func (r *Room) broadcastPlayersLocked() {
	r.broadcastLocked(domain.Event{
		Type:    domain.EventPlayerListUpdated,
		Payload: domain.PlayerListPayload{MatchID: r.id, Players: r.players.views()},
	}, "")
}

func (r *Room) snapshotLocked(userID string) domain.MatchSnapshot {
	now := r.clock.Now()
	snap := domain.MatchSnapshot{
		MatchID:              r.id,
		Code:                 r.code,
		QuizID:               r.quiz.ID,
		Status:               r.status,
		CurrentQuestionIndex: r.index,
		TotalQuestions:       len(r.quiz.Questions),
		QuestionOpen:         r.questionOpen,
		MaxPlayers:           r.settings.MaxPlayers,
		Players:              r.players.views(),
		ServerTime:           now.UnixMilli(),
	}
	if r.questionOpen {
		view := domain.NewQuestionView(r.quiz.Questions[r.index])
		snap.Question = &view
		remaining := r.questionWindow - now.Sub(r.questionStartedAt)
		if remaining < 0 {
			remaining = 0
		}
		snap.TimeRemainingMs = remaining.Milliseconds()
	}
	if p, ok := r.players.get(userID); ok {
		snap.Self = &domain.SelfView{
			PlayerView:  r.players.view(p),
			TotalTimeMs: p.totalTimeMs,
			Answers:     p.answerLog(),
		}
	}
	if r.result != nil {
		res := *r.result
		snap.Result = &res
	}
	return snap
}

func (r *Room) mirrorStateLocked() {
	r.mirror.state(r.snapshotLocked(""))
}

// Snapshot returns the room state. With a non-empty userID the caller must be a player and the
// snapshot includes their own answers.
func (r *Room) Snapshot(userID string) (domain.MatchSnapshot, error) {
	var snap domain.MatchSnapshot
	err := r.withLock(func() error {
		if r.closed {
			return domain.ErrMatchNotFound
		}
		if userID != "" {
			if _, ok := r.players.get(userID); !ok {
				return domain.ErrPlayerNotFound
			}
		}
		snap = r.snapshotLocked(userID)
		return nil
	})
	return snap, err
}

// Summary returns the listing view of the room.
func (r *Room) Summary() domain.MatchSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.MatchSummary{
		MatchID:        r.id,
		Code:           r.code,
		QuizID:         r.quiz.ID,
		Status:         r.status,
		Players:        r.players.len(),
		MaxPlayers:     r.settings.MaxPlayers,
		TotalQuestions: len(r.quiz.Questions),
		CreatedAt:      r.createdAt,
	}
}

// Join adds a player, or treats a known user as reconnecting on a new session.
func (r *Room) Join(id domain.Identity, sessionID string) (domain.MatchSnapshot, error) {
	var snap domain.MatchSnapshot
	err := r.withLock(func() error {
		if r.closed {
			return domain.ErrMatchNotFound
		}
		if p, ok := r.players.get(id.UserID); ok {
			if id.DisplayName != "" {
				p.displayName = id.DisplayName
			}
			var err error
			snap, err = r.reconnectLocked(p, sessionID)
			return err
		}
		switch r.status {
		case domain.StatusInProgress:
			return domain.ErrMatchAlreadyStarted
		case domain.StatusCompleted, domain.StatusCancelled:
			return domain.ErrMatchEnded
		}
		if r.players.len() >= r.settings.MaxPlayers {
			return domain.ErrRoomFull
		}

		p, _ := r.players.add(id, sessionID)
		delete(r.expired, id.UserID)
		r.mirror.presence(p.userID, p.connection)
		r.mirror.log("joined:" + p.userID)

		snap = r.snapshotLocked(p.userID)
		r.sendLocked(p, domain.Event{Type: domain.EventMatchJoined, Payload: snap})
		r.broadcastLocked(domain.Event{
			Type:    domain.EventPlayerJoined,
			Payload: domain.PlayerPayload{MatchID: r.id, Player: r.players.view(p)},
		}, p.userID)
		r.broadcastPlayersLocked()
		r.mirrorStateLocked()
		return nil
	})
	return snap, err
}

// SetReady flips a player's ready flag and starts the match once every player in the room is ready.
func (r *Room) SetReady(userID string, ready bool) error {
	return r.withLock(func() error {
		p, err := r.playerLocked(userID)
		if err != nil {
			return err
		}
		switch r.status {
		case domain.StatusInProgress:
			return domain.ErrMatchAlreadyStarted
		case domain.StatusCompleted, domain.StatusCancelled:
			return domain.ErrMatchEnded
		}
		p.ready = ready
		r.broadcastPlayersLocked()
		r.maybeStartLocked()
		return nil
	})
}

// Cancel aborts a room that has not started.
func (r *Room) Cancel(reason string) error {
	return r.withLock(func() error {
		if r.closed {
			return domain.ErrMatchNotFound
		}
		switch r.status {
		case domain.StatusInProgress:
			return domain.ErrMatchAlreadyStarted
		case domain.StatusCompleted, domain.StatusCancelled:
			return domain.ErrMatchEnded
		}
		r.cancelLocked(reason)
		return nil
	})
}

// Leave removes a player before the start, or evicts them once the match runs.
func (r *Room) Leave(userID string) error {
	return r.withLock(func() error {
		p, err := r.playerLocked(userID)
		if err != nil {
			return err
		}
		switch r.status {
		case domain.StatusWaiting:
			r.removeLocked(p, domain.EventPlayerLeft)
		case domain.StatusInProgress:
			if p.active() {
				r.evictLocked(p, domain.EventPlayerLeft)
			}
		default:
			return domain.ErrMatchEnded
		}
		return nil
	})
}

func (r *Room) maybeStartLocked() {
	if r.status != domain.StatusWaiting {
		return
	}
	if r.players.len() < r.settings.MinPlayers {
		return
	}
	if r.players.count(func(p *player) bool { return !p.ready }) > 0 {
		return
	}
	r.startLocked()
}

func (r *Room) startLocked() {
	if !r.transitionLocked(domain.StatusInProgress) {
		return
	}
	now := r.clock.Now()
	r.startedAt = now
	r.timers.cancel(timerWaiting)
	r.broadcastLocked(domain.Event{
		Type: domain.EventMatchStarted,
		Payload: domain.MatchStartedPayload{
			MatchID:        r.id,
			CountdownMs:    r.settings.Countdown.Milliseconds(),
			TotalQuestions: len(r.quiz.Questions),
			ServerTime:     now.UnixMilli(),
		},
	}, "")
	r.mirror.log("started")
	r.mirrorStateLocked()
	r.scheduleLocked(timerAdvance, r.settings.Countdown, r.openQuestionLocked)
}

func (r *Room) openQuestionLocked() {
	if r.status != domain.StatusInProgress || r.index >= len(r.quiz.Questions) {
		return
	}
	q := r.quiz.Questions[r.index]
	now := r.clock.Now()
	r.questionOpen = true
	r.questionStartedAt = now
	r.questionWindow = r.settings.questionDuration(q)

	index := r.index
	r.scheduleLocked(timerQuestion, r.questionWindow, func() {
		if r.index == index {
			r.closeQuestionLocked()
		}
	})
	r.broadcastLocked(domain.Event{
		Type: domain.EventQuestionStart,
		Payload: domain.QuestionStartPayload{
			MatchID:        r.id,
			QuestionIndex:  index,
			TotalQuestions: len(r.quiz.Questions),
			Question:       domain.NewQuestionView(q),
			DurationMs:     r.questionWindow.Milliseconds(),
			ServerTime:     now.UnixMilli(),
		},
	}, "")
	r.mirror.log(fmt.Sprintf("question_start:%d", index))
	r.mirrorStateLocked()
}

// closeQuestionLocked ends the open question, advances the index and either schedules the next
// question or completes the match.
func (r *Room) closeQuestionLocked() {
	if !r.questionOpen || r.status != domain.StatusInProgress {
		return
	}
	r.questionOpen = false
	r.timers.cancel(timerQuestion)

	q := r.quiz.Questions[r.index]
	windowMs := r.questionWindow.Milliseconds()
	outcomes := make([]domain.QuestionOutcome, 0, r.players.len())
	r.players.each(func(p *player) {
		rec, ok := p.answers[q.ID]
		if !ok {
			p.totalTimeMs += windowMs
		}
		outcomes = append(outcomes, domain.QuestionOutcome{
			UserID:     p.userID,
			Answered:   ok,
			Correct:    rec.Correct,
			Points:     rec.Points,
			TotalScore: p.score,
		})
	})

	closed := r.index
	r.index++
	last := r.index >= len(r.quiz.Questions)
	next := r.settings.Intermission
	if last {
		next = 0
	}
	r.broadcastLocked(domain.Event{
		Type: domain.EventQuestionEnd,
		Payload: domain.QuestionEndPayload{
			MatchID:          r.id,
			QuestionIndex:    closed,
			QuestionID:       q.ID,
			CorrectOptionIDs: q.CorrectOptionIDs(),
			Results:          outcomes,
			NextQuestionInMs: next.Milliseconds(),
		},
	}, "")
	r.mirror.log(fmt.Sprintf("question_end:%d", closed))

	if last {
		r.completeLocked(domain.ReasonCompleted)
		return
	}
	r.mirrorStateLocked()
	r.scheduleLocked(timerAdvance, r.settings.Intermission, r.openQuestionLocked)
}

// allAnsweredLocked reports whether every non-evicted player answered the open question. Players
// inside their reconnect grace window still hold the question open.
func (r *Room) allAnsweredLocked() bool {
	if !r.questionOpen {
		return false
	}
	questionID := r.quiz.Questions[r.index].ID
	active, pending := 0, 0
	r.players.each(func(p *player) {
		if !p.active() {
			return
		}
		active++
		if !p.answered(questionID) {
			pending++
		}
	})
	return active > 0 && pending == 0
}

func (r *Room) questionIndexLocked(questionID string) int {
	for i, q := range r.quiz.Questions {
		if q.ID == questionID {
			return i
		}
	}
	return -1
}

// Submit records a player's answer to the open question. Elapsed time is measured from the
// server-side question start.
func (r *Room) Submit(userID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	var result domain.AnswerResult
	err := r.withLock(func() error {
		p, err := r.playerLocked(userID)
		if err != nil {
			return err
		}
		switch r.status {
		case domain.StatusWaiting:
			return domain.ErrMatchNotStarted
		case domain.StatusCompleted, domain.StatusCancelled:
			return domain.ErrMatchEnded
		}
		if !p.active() {
			return domain.ErrEvicted
		}
		qi := r.questionIndexLocked(sub.QuestionID)
		if qi < 0 {
			return domain.ErrQuestionNotFound
		}
		if qi != r.index || !r.questionOpen {
			return domain.ErrQuestionClosed
		}
		q := r.quiz.Questions[qi]
		if p.answered(q.ID) {
			return domain.ErrAlreadyAnswered
		}
		if err := validateSelection(q, sub.OptionIDs); err != nil {
			return err
		}
		now := r.clock.Now()
		elapsed := now.Sub(r.questionStartedAt)
		if elapsed > r.questionWindow {
			return domain.ErrQuestionClosed
		}
		if elapsed < 0 {
			elapsed = 0
		}

		outcome := ScoreAnswer(q, sub.OptionIDs, elapsed, r.questionWindow)
		p.record(domain.AnswerRecord{
			QuestionID:  q.ID,
			OptionIDs:   append([]string(nil), sub.OptionIDs...),
			TimeSpentMs: elapsed.Milliseconds(),
			Correct:     outcome.Correct,
			Points:      outcome.Points,
			AnsweredAt:  now,
		})
		result = domain.AnswerResult{
			QuestionID:  q.ID,
			Correct:     outcome.Correct,
			Awarded:     outcome.Points,
			TimeSpentMs: elapsed.Milliseconds(),
			TotalScore:  p.score,
		}
		r.sendLocked(p, domain.Event{Type: domain.EventAnswerResult, Payload: result})
		r.mirror.log(fmt.Sprintf("answer:%d:%s", qi, p.userID))

		if r.allAnsweredLocked() {
			r.closeQuestionLocked()
		}
		return nil
	})
	return result, err
}

func (r *Room) standingsLocked() []domain.Standing {
	in := make([]standingInput, 0, r.players.len())
	r.players.each(func(p *player) {
		in = append(in, standingInput{
			UserID:       p.userID,
			DisplayName:  p.displayName,
			Score:        p.score,
			CorrectCount: p.correctCount(),
			TotalTimeMs:  p.totalTimeMs,
			Evicted:      !p.active(),
		})
	})
	return rankStandings(in)
}

func (r *Room) completeLocked(reason string) {
	if !r.transitionLocked(domain.StatusCompleted) {
		return
	}
	r.questionOpen = false
	r.endedAt = r.clock.Now()
	r.timers.cancelAll()

	standings := r.standingsLocked()
	answers := make(map[string][]domain.AnswerRecord, r.players.len())
	r.players.each(func(p *player) { answers[p.userID] = p.answerLog() })
	r.draft = &domain.MatchResult{
		MatchID:   r.id,
		QuizID:    r.quiz.ID,
		Code:      r.code,
		Status:    domain.StatusCompleted,
		Reason:    reason,
		WinnerID:  winnerOf(standings),
		Standings: standings,
		Answers:   answers,
		Scope:     r.settings.RatingScope,
		StartedAt: r.startedAt,
		EndedAt:   r.endedAt,
	}
	r.mirror.log("completed:" + reason)
	r.mirrorStateLocked()
	r.afterUnlock(func() { r.hooks.completed(r) })
}

func winnerOf(standings []domain.Standing) string {
	if len(standings) == 0 || standings[0].Evicted {
		return ""
	}
	if len(standings) > 1 && standings[1].Rank == standings[0].Rank {
		return ""
	}
	return standings[0].UserID
}

// draftResult returns the result computed at completion, before ratings are applied.
func (r *Room) draftResult() (domain.MatchResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draft == nil {
		return domain.MatchResult{}, false
	}
	return *r.draft, true
}

// finish installs the finalized result, broadcasts match_end and starts the retention window.
func (r *Room) finish(res domain.MatchResult) {
	_ = r.withLock(func() error {
		if r.closed || r.result != nil || r.status != domain.StatusCompleted {
			return nil
		}
		r.result = &res
		r.broadcastLocked(domain.Event{
			Type:    domain.EventMatchEnd,
			Payload: domain.MatchEndPayload{MatchID: r.id, Status: res.Status, Reason: res.Reason, Result: &res},
		}, "")
		r.mirror.log("finalized")
		r.mirrorStateLocked()
		r.mirror.expire(r.settings.Retention)
		r.scheduleLocked(timerRetention, r.settings.Retention, func() {
			r.afterUnlock(func() { r.hooks.finished(r) })
		})
		return nil
	})
}

func (r *Room) cancelLocked(reason string) {
	if !r.transitionLocked(domain.StatusCancelled) {
		return
	}
	r.endedAt = r.clock.Now()
	r.timers.cancelAll()
	res := domain.MatchResult{
		MatchID:   r.id,
		QuizID:    r.quiz.ID,
		Code:      r.code,
		Status:    domain.StatusCancelled,
		Reason:    reason,
		Standings: r.standingsLocked(),
		EndedAt:   r.endedAt,
	}
	r.result = &res
	r.broadcastLocked(domain.Event{
		Type:    domain.EventMatchEnd,
		Payload: domain.MatchEndPayload{MatchID: r.id, Status: res.Status, Reason: reason},
	}, "")
	r.mirror.log("cancelled:" + reason)
	r.mirrorStateLocked()
	r.afterUnlock(func() { r.hooks.finished(r) })
}
