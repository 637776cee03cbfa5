package domain

// Server to client event names.
const (
	EventMatchJoined                   = "match_joined"
	EventPlayerJoined                  = "player_joined"
	EventPlayerListUpdated             = "player_list_updated"
	EventMatchStarted                  = "match_started"
	EventQuestionStart                 = "question_start"
	EventQuestionEnd                   = "question_end"
	EventAnswerResult                  = "answer_result"
	EventMatchReconnected              = "match_reconnected"
	EventPlayerTemporarilyDisconnected = "player_temporarily_disconnected"
	EventPlayerReconnected             = "player_reconnected"
	EventPlayerLeft                    = "player_left"
	EventPlayerEvicted                 = "player_evicted"
	EventMatchState                    = "match_state"
	EventMatchEnd                      = "match_end"
	EventError                         = "error"
	EventPong                          = "pong"
)

// Client to server event names.
const (
	CommandJoinMatch       = "join_match"
	CommandJoinMatchByCode = "join_match_by_code"
	CommandPlayerReady     = "player_ready"
	CommandSubmitAnswer    = "submit_answer"
	CommandGetMatchState   = "get_match_state"
	CommandLeaveMatch      = "leave_match"
	CommandPing            = "ping"
)

// Event is a typed server message. Payload is serialized as JSON by the transport.
// match_joined, match_reconnected and match_state carry a MatchSnapshot; answer_result an AnswerResult.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type PlayerPayload struct {
	MatchID string     `json:"matchId"`
	Player  PlayerView `json:"player"`
}

type PlayerListPayload struct {
	MatchID string       `json:"matchId"`
	Players []PlayerView `json:"players"`
}

type MatchStartedPayload struct {
	MatchID        string `json:"matchId"`
	CountdownMs    int64  `json:"countdownMs"`
	TotalQuestions int    `json:"totalQuestions"`
	ServerTime     int64  `json:"serverTime"`
}

type QuestionStartPayload struct {
	MatchID        string       `json:"matchId"`
	QuestionIndex  int          `json:"questionIndex"`
	TotalQuestions int          `json:"totalQuestions"`
	Question       QuestionView `json:"question"`
	DurationMs     int64        `json:"durationMs"`
	ServerTime     int64        `json:"serverTime"`
}

// QuestionOutcome is one player's result for a closed question.
type QuestionOutcome struct {
	UserID     string `json:"userId"`
	Answered   bool   `json:"answered"`
	Correct    bool   `json:"correct"`
	Points     int    `json:"points"`
	TotalScore int    `json:"totalScore"`
}

type QuestionEndPayload struct {
	MatchID          string            `json:"matchId"`
	QuestionIndex    int               `json:"questionIndex"`
	QuestionID       string            `json:"questionId"`
	CorrectOptionIDs []string          `json:"correctOptionIds"`
	Results          []QuestionOutcome `json:"results"`
	NextQuestionInMs int64             `json:"nextQuestionInMs"`
}

type DisconnectedPayload struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
	GraceMs int64  `json:"graceMs"`
}

type UserPayload struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
}

type MatchEndPayload struct {
	MatchID string       `json:"matchId"`
	Status  MatchStatus  `json:"status"`
	Reason  string       `json:"reason"`
	Result  *MatchResult `json:"result,omitempty"`
}

type ErrorPayload struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent converts err into an error event for the sender.
func ErrorEvent(err error) Event {
	e := AsError(err)
	return Event{Type: EventError, Payload: ErrorPayload{Kind: e.Kind, Code: e.Code, Message: e.Message}}
}
