package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

// TokenVerifier resolves a bearer token into a player identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

type WSHandler struct {
	service  *app.MatchService
	hub      *Hub
	verifier TokenVerifier
	upgrader websocket.Upgrader
}

// NewWSHandler wires sockets into the match service. A nil verifier trusts userId and name
// query parameters.
func NewWSHandler(service *app.MatchService, hub *Hub, verifier TokenVerifier) *WSHandler {
	return &WSHandler{
		service:  service,
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsSession is one socket. Only the read loop touches matchID.
type wsSession struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	send     chan domain.Event
	matchID  string
}

func (h *WSHandler) identify(r *http.Request) (domain.Identity, error) {
	q := r.URL.Query()
	if h.verifier != nil {
		token := q.Get("token")
		if token == "" {
			return domain.Identity{}, errors.New("missing token")
		}
		return h.verifier.Verify(token)
	}
	id := domain.Identity{UserID: q.Get("userId"), DisplayName: q.Get("name")}
	if id.UserID == "" || id.DisplayName == "" {
		return domain.Identity{}, errors.New("missing userId or name")
	}
	return id, nil
}

// ServeWS upgrades HTTP requests to websockets and wires them into the match use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	s := &wsSession{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		send:     make(chan domain.Event, sendQueueSize),
	}
	h.hub.register(s.id, s.send)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()

	h.readPump(s)

	if s.matchID != "" {
		if err := h.service.Disconnect(context.Background(), s.matchID, s.identity.UserID, s.id); err != nil {
			log.Printf("ws disconnect match=%s user=%s: %v", s.matchID, s.identity.UserID, err)
		}
	}
	h.hub.unregister(s.id)
	<-writerDone
}

func (h *WSHandler) readPump(s *wsSession) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read error session=%s: %v", s.id, err)
			}
			return
		}
		cmd, err := decodeCommand(raw)
		if err == nil {
			err = h.dispatch(s, cmd)
		}
		if err != nil {
			h.reply(s, domain.ErrorEvent(err))
		}
	}
}

// writePump is the only writer of the connection.
func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(ev); err != nil {
				log.Printf("ws write error session=%s: %v", s.id, err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) reply(s *wsSession, ev domain.Event) {
	if err := h.hub.Send(s.id, ev); err != nil {
		log.Printf("ws reply %s session=%s: %v", ev.Type, s.id, err)
	}
}

// dispatch runs one command. Successful joins, answers and lifecycle changes are announced by the
// room itself through the hub.
func (h *WSHandler) dispatch(s *wsSession, cmd command) error {
	ctx := context.Background()
	switch c := cmd.(type) {
	case joinMatchCommand:
		return h.join(s, c.MatchID, func() (domain.MatchSnapshot, error) {
			return h.service.Join(ctx, c.MatchID, s.identity, s.id)
		})
	case joinByCodeCommand:
		room, err := h.service.Registry().GetByCode(c.Code)
		if err != nil {
			return err
		}
		return h.join(s, room.ID(), func() (domain.MatchSnapshot, error) {
			return h.service.JoinByCode(ctx, c.Code, s.identity, s.id)
		})
	case readyCommand:
		if s.matchID == "" {
			return domain.ErrNotInMatch
		}
		return h.service.Ready(ctx, s.matchID, s.identity.UserID, c.value())
	case submitAnswerCommand:
		if s.matchID == "" {
			return domain.ErrNotInMatch
		}
		_, err := h.service.SubmitAnswer(ctx, s.matchID, s.identity.UserID, domain.AnswerSubmission{
			QuestionID: c.QuestionID,
			OptionIDs:  c.selection(),
		})
		return err
	case getStateCommand:
		if s.matchID == "" {
			return domain.ErrNotInMatch
		}
		snap, err := h.service.State(ctx, s.matchID, s.identity.UserID)
		if err != nil {
			return err
		}
		h.reply(s, domain.Event{Type: domain.EventMatchState, Payload: snap})
		return nil
	case leaveCommand:
		if s.matchID == "" {
			return domain.ErrNotInMatch
		}
		if err := h.service.Leave(ctx, s.matchID, s.identity.UserID); err != nil {
			return err
		}
		s.matchID = ""
		return nil
	case pingCommand:
		h.reply(s, domain.Event{Type: domain.EventPong, Payload: map[string]int64{"serverTime": time.Now().UnixMilli()}})
		return nil
	default:
		return domain.Validation("unsupported_type", "unsupported command")
	}
}

func (h *WSHandler) join(s *wsSession, matchID string, do func() (domain.MatchSnapshot, error)) error {
	if s.matchID != "" && s.matchID != matchID {
		return domain.ErrAlreadyInMatch
	}
	snap, err := do()
	if err != nil {
		return err
	}
	s.matchID = snap.MatchID
	return nil
}
