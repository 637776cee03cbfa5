package app

import "quiz-match-service/internal/domain"

type player struct {
	userID      string
	displayName string
	sessionID   string
	score       int
	ready       bool
	connection  domain.ConnectionStatus
	answers     map[string]domain.AnswerRecord
	answerOrder []string
	totalTimeMs int64
}

func (p *player) answered(questionID string) bool {
	_, ok := p.answers[questionID]
	return ok
}

func (p *player) record(rec domain.AnswerRecord) {
	p.answers[rec.QuestionID] = rec
	p.answerOrder = append(p.answerOrder, rec.QuestionID)
	p.score += rec.Points
	p.totalTimeMs += rec.TimeSpentMs
}

func (p *player) answerLog() []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, 0, len(p.answerOrder))
	for _, id := range p.answerOrder {
		rec := p.answers[id]
		rec.OptionIDs = append([]string(nil), rec.OptionIDs...)
		out = append(out, rec)
	}
	return out
}

func (p *player) correctCount() int {
	n := 0
	for _, rec := range p.answers {
		if rec.Correct {
			n++
		}
	}
	return n
}

func (p *player) active() bool { return p.connection != domain.Evicted }

// playerList is an ordered map of players keyed by user id. Join order is preserved and the first
// player is the host.
type playerList struct {
	order []string
	byID  map[string]*player
}

func newPlayerList() *playerList {
	return &playerList{byID: make(map[string]*player)}
}

func (l *playerList) get(userID string) (*player, bool) {
	p, ok := l.byID[userID]
	return p, ok
}

// add inserts a new player. It returns false if the user is already present.
func (l *playerList) add(id domain.Identity, sessionID string) (*player, bool) {
	if _, ok := l.byID[id.UserID]; ok {
		return nil, false
	}
	p := &player{
		userID:      id.UserID,
		displayName: id.DisplayName,
		sessionID:   sessionID,
		connection:  domain.Connected,
		answers:     make(map[string]domain.AnswerRecord),
	}
	l.byID[id.UserID] = p
	l.order = append(l.order, id.UserID)
	return p, true
}

func (l *playerList) remove(userID string) {
	if _, ok := l.byID[userID]; !ok {
		return
	}
	delete(l.byID, userID)
	for i, id := range l.order {
		if id == userID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *playerList) len() int { return len(l.order) }

func (l *playerList) host() string {
	if len(l.order) == 0 {
		return ""
	}
	return l.order[0]
}

// each visits players in join order.
func (l *playerList) each(fn func(*player)) {
	for _, id := range l.order {
		fn(l.byID[id])
	}
}

func (l *playerList) count(pred func(*player) bool) int {
	n := 0
	l.each(func(p *player) {
		if pred(p) {
			n++
		}
	})
	return n
}

func (l *playerList) activePlayers() []*player {
	out := make([]*player, 0, len(l.order))
	l.each(func(p *player) {
		if p.active() {
			out = append(out, p)
		}
	})
	return out
}

func (l *playerList) view(p *player) domain.PlayerView {
	return domain.PlayerView{
		UserID:      p.userID,
		DisplayName: p.displayName,
		Score:       p.score,
		Ready:       p.ready,
		Host:        l.host() == p.userID,
		Connection:  p.connection,
		Answered:    len(p.answers),
	}
}

func (l *playerList) views() []domain.PlayerView {
	out := make([]domain.PlayerView, 0, len(l.order))
	l.each(func(p *player) { out = append(out, l.view(p)) })
	return out
}
