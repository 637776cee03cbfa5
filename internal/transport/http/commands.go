package http

import (
	"encoding/json"
	"strings"

	"quiz-match-service/internal/domain"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// command is a decoded, validated client event.
type command interface {
	validate() error
}

type joinMatchCommand struct {
	MatchID string `json:"matchId"`
}

type joinByCodeCommand struct {
	Code string `json:"code"`
}

type readyCommand struct {
	Ready *bool `json:"ready"`
}

type submitAnswerCommand struct {
	QuestionID string   `json:"questionId"`
	OptionIDs  []string `json:"optionIds"`
	OptionID   string   `json:"optionId"`
}

type getStateCommand struct{}

type leaveCommand struct{}

type pingCommand struct{}

func (c joinMatchCommand) validate() error {
	if strings.TrimSpace(c.MatchID) == "" {
		return domain.Validation("invalid_payload", "matchId is required")
	}
	return nil
}

func (c joinByCodeCommand) validate() error {
	if len(strings.TrimSpace(c.Code)) == 0 {
		return domain.Validation("invalid_payload", "code is required")
	}
	return nil
}

func (c readyCommand) validate() error { return nil }

func (c readyCommand) value() bool {
	return c.Ready == nil || *c.Ready
}

func (c submitAnswerCommand) validate() error {
	if c.QuestionID == "" {
		return domain.Validation("invalid_payload", "questionId is required")
	}
	if len(c.selection()) == 0 {
		return domain.ErrEmptySelection
	}
	return nil
}

// selection merges the single and multi option forms.
func (c submitAnswerCommand) selection() []string {
	ids := make([]string, 0, len(c.OptionIDs)+1)
	for _, id := range c.OptionIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if c.OptionID != "" {
		ids = append(ids, c.OptionID)
	}
	return ids
}

func (getStateCommand) validate() error { return nil }
func (leaveCommand) validate() error { return nil }
func (pingCommand) validate() error { return nil }

// decodeCommand turns a raw frame into a typed command.
func decodeCommand(raw []byte) (command, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, domain.Validation("invalid_message", "message is not valid JSON")
	}

	var cmd command
	switch msg.Type {
	case domain.CommandJoinMatch:
		cmd = &joinMatchCommand{}
	case domain.CommandJoinMatchByCode:
		cmd = &joinByCodeCommand{}
	case domain.CommandPlayerReady:
		cmd = &readyCommand{}
	case domain.CommandSubmitAnswer:
		cmd = &submitAnswerCommand{}
	case domain.CommandGetMatchState:
		return getStateCommand{}, nil
	case domain.CommandLeaveMatch:
		return leaveCommand{}, nil
	case domain.CommandPing:
		return pingCommand{}, nil
	case "":
		return nil, domain.Validation("invalid_message", "message type is required")
	default:
		return nil, domain.Validation("unsupported_type", "unsupported message type "+msg.Type)
	}

	if len(msg.Payload) > 0 && string(msg.Payload) != "null" {
		if err := json.Unmarshal(msg.Payload, cmd); err != nil {
			return nil, domain.Validation("invalid_payload", "invalid "+msg.Type+" payload")
		}
	}
	cmd = deref(cmd)
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func deref(cmd command) command {
	switch c := cmd.(type) {
	case *joinMatchCommand:
		return *c
	case *joinByCodeCommand:
		return *c
	case *readyCommand:
		return *c
	case *submitAnswerCommand:
		return *c
	}
	return cmd
}
