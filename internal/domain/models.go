package domain

import "time"

// DefaultQuestionPoints is the base award for a correct answer when a question does not set Points.
const DefaultQuestionPoints = 100

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question. More than one option may be correct; a selection must match
// the full correct set.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []Option `json:"options"`
	Points       int      `json:"points"`       // defaults to DefaultQuestionPoints if zero
	TimeLimitSec int      `json:"timeLimitSec"` // zero uses the match default
}

// BasePoints returns the configured points or the default.
func (q Question) BasePoints() int {
	if q.Points > 0 {
		return q.Points
	}
	return DefaultQuestionPoints
}

// CorrectOptionIDs lists the ids of every correct option in declaration order.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, 1)
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// Quiz is a collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// Clone returns a deep copy so a match can hold an immutable snapshot.
func (q Quiz) Clone() Quiz {
	out := Quiz{ID: q.ID, Title: q.Title, Questions: make([]Question, len(q.Questions))}
	for i, question := range q.Questions {
		question.Options = append([]Option(nil), question.Options...)
		out.Questions[i] = question
	}
	return out
}

// MatchStatus is the lifecycle state of a match room.
type MatchStatus string

const (
	StatusWaiting    MatchStatus = "waiting"
	StatusInProgress MatchStatus = "in_progress"
	StatusCompleted  MatchStatus = "completed"
	StatusCancelled  MatchStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s MatchStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether moving from s to next keeps the lifecycle moving forward.
func (s MatchStatus) CanTransition(next MatchStatus) bool {
	switch s {
	case StatusWaiting:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted
	default:
		return false
	}
}

// ConnectionStatus tracks a player's transport presence.
type ConnectionStatus string

const (
	Connected               ConnectionStatus = "connected"
	TemporarilyDisconnected ConnectionStatus = "temporarily_disconnected"
	// Evicted players missed the reconnect grace window and no longer take part in scoring.
	Evicted ConnectionStatus = "evicted"
)

// Identity is the authenticated user behind a socket.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionID string
	OptionIDs  []string
}

// AnswerRecord is one entry of a player's answer log.
type AnswerRecord struct {
	QuestionID  string    `json:"questionId"`
	OptionIDs   []string  `json:"optionIds"`
	TimeSpentMs int64     `json:"timeSpentMs"`
	Correct     bool      `json:"correct"`
	Points      int       `json:"points"`
	AnsweredAt  time.Time `json:"answeredAt"`
}

// AnswerResult summarizes the outcome of a submission for a single user.
type AnswerResult struct {
	QuestionID  string `json:"questionId"`
	Correct     bool   `json:"correct"`
	Awarded     int    `json:"awarded"`
	TimeSpentMs int64  `json:"timeSpentMs"`
	TotalScore  int    `json:"totalScore"`
}

// PlayerView is the wire representation of a player.
type PlayerView struct {
	UserID      string           `json:"userId"`
	DisplayName string           `json:"displayName"`
	Score       int              `json:"score"`
	Ready       bool             `json:"ready"`
	Host        bool             `json:"host"`
	Connection  ConnectionStatus `json:"connection"`
	Answered    int              `json:"answered"`
}

// SelfView adds the private parts of a player's state to PlayerView.
type SelfView struct {
	PlayerView
	TotalTimeMs int64          `json:"totalTimeMs"`
	Answers     []AnswerRecord `json:"answers"`
}

// OptionView hides correctness while a question is open.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is a question as shown to players.
type QuestionView struct {
	ID      string       `json:"id"`
	Prompt  string       `json:"prompt"`
	Options []OptionView `json:"options"`
	Points  int          `json:"points"`
}

// NewQuestionView strips correctness flags from q.
func NewQuestionView(q Question) QuestionView {
	view := QuestionView{ID: q.ID, Prompt: q.Prompt, Points: q.BasePoints(), Options: make([]OptionView, len(q.Options))}
	for i, opt := range q.Options {
		view.Options[i] = OptionView{ID: opt.ID, Text: opt.Text}
	}
	return view
}

// MatchSummary is the listing view of a match.
type MatchSummary struct {
	MatchID        string      `json:"matchId"`
	Code           string      `json:"code"`
	QuizID         string      `json:"quizId"`
	Status         MatchStatus `json:"status"`
	Players        int         `json:"players"`
	MaxPlayers     int         `json:"maxPlayers"`
	TotalQuestions int         `json:"totalQuestions"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// MatchSnapshot is the full resumable state of a match, optionally personalised for one player.
type MatchSnapshot struct {
	MatchID              string        `json:"matchId"`
	Code                 string        `json:"code"`
	QuizID               string        `json:"quizId"`
	Status               MatchStatus   `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	TotalQuestions       int           `json:"totalQuestions"`
	QuestionOpen         bool          `json:"questionOpen"`
	Question             *QuestionView `json:"question,omitempty"`
	TimeRemainingMs      int64         `json:"timeRemainingMs"`
	MaxPlayers           int           `json:"maxPlayers"`
	Players              []PlayerView  `json:"players"`
	Self                 *SelfView     `json:"self,omitempty"`
	Result               *MatchResult  `json:"result,omitempty"`
	ServerTime           int64         `json:"serverTime"`
}

// Standing is a player's final position.
type Standing struct {
	Rank         int    `json:"rank"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	Score        int    `json:"score"`
	CorrectCount int    `json:"correctCount"`
	TotalTimeMs  int64  `json:"totalTimeMs"`
	Evicted      bool   `json:"evicted"`
	RatingBefore int    `json:"ratingBefore"`
	RatingAfter  int    `json:"ratingAfter"`
	RatingDelta  int    `json:"ratingDelta"`
}

// End reasons of a match.
const (
	ReasonCompleted      = "completed"
	ReasonForfeit        = "forfeit"
	ReasonAbandoned      = "abandoned"
	ReasonWaitingTimeout = "waiting_timeout"
	ReasonCancelled      = "cancelled"
	ReasonEmpty          = "empty"
)

// MatchResult is the final record of a match.
type MatchResult struct {
	MatchID   string      `json:"matchId"`
	QuizID    string      `json:"quizId"`
	Code      string      `json:"code"`
	Status    MatchStatus `json:"status"`
	Reason    string      `json:"reason"`
	WinnerID  string      `json:"winnerId,omitempty"`
	Standings []Standing  `json:"standings"`
	// Answers holds each player's answer log keyed by user id.
	Answers   map[string][]AnswerRecord `json:"-"`
	Scope     string                    `json:"scope,omitempty"`
	Persisted bool                      `json:"persisted"`
	StartedAt time.Time                 `json:"startedAt"`
	EndedAt   time.Time                 `json:"endedAt"`
}

// RatingChange is one row of a rating update.
type RatingChange struct {
	UserID string `json:"userId"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}
