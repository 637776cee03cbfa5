package http

import (
	"errors"
	"sync"

	"quiz-match-service/internal/domain"
)

var (
	errUnknownSession = errors.New("unknown session")
	errQueueFull      = errors.New("send queue full")
)

// Hub maps session ids to socket send queues and implements app.Notifier.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]chan domain.Event
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]chan domain.Event)}
}

func (h *Hub) register(sessionID string, queue chan domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = queue
}

// unregister drops the session and closes its queue, which stops the writer.
func (h *Hub) unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if queue, ok := h.sessions[sessionID]; ok {
		delete(h.sessions, sessionID)
		close(queue)
	}
}

// Send enqueues without blocking. A slow client loses the event and resynchronizes with get_match_state.
func (h *Hub) Send(sessionID string, event domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	queue, ok := h.sessions[sessionID]
	if !ok {
		return errUnknownSession
	}
	select {
	case queue <- event:
		return nil
	default:
		return errQueueFull
	}
}

// Sessions reports the number of open sockets.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
