package app

import "quiz-match-service/internal/domain"

// Disconnect marks a player temporarily disconnected and starts the reconnect grace timer.
// Calls from a session the player is no longer bound to are ignored.
func (r *Room) Disconnect(userID, sessionID string) error {
	return r.withLock(func() error {
		p, err := r.playerLocked(userID)
		if err != nil {
			return err
		}
		if p.sessionID != sessionID || p.connection != domain.Connected || r.status.Terminal() {
			return nil
		}
		p.connection = domain.TemporarilyDisconnected
		grace := r.settings.ReconnectGrace
		r.scheduleLocked(timerGrace+userID, grace, func() { r.graceExpiredLocked(userID) })
		r.mirror.presence(userID, p.connection)
		r.mirror.log("disconnected:" + userID)

		r.broadcastLocked(domain.Event{
			Type:    domain.EventPlayerTemporarilyDisconnected,
			Payload: domain.DisconnectedPayload{MatchID: r.id, UserID: userID, GraceMs: grace.Milliseconds()},
		}, userID)
		r.broadcastPlayersLocked()
		return nil
	})
}

// Reconnect rebinds a player to a new session and sends them a full snapshot. It fails with
// domain.ErrEvicted once the grace window has expired.
func (r *Room) Reconnect(userID, sessionID string) (domain.MatchSnapshot, error) {
	var snap domain.MatchSnapshot
	err := r.withLock(func() error {
		if r.closed {
			return domain.ErrMatchNotFound
		}
		p, ok := r.players.get(userID)
		if !ok {
			if _, gone := r.expired[userID]; gone {
				return domain.ErrEvicted
			}
			return domain.ErrPlayerNotFound
		}
		var err error
		snap, err = r.reconnectLocked(p, sessionID)
		return err
	})
	return snap, err
}

func (r *Room) reconnectLocked(p *player, sessionID string) (domain.MatchSnapshot, error) {
	if !p.active() {
		return domain.MatchSnapshot{}, domain.ErrEvicted
	}
	if r.status == domain.StatusCancelled {
		return domain.MatchSnapshot{}, domain.ErrMatchEnded
	}
	wasDisconnected := p.connection == domain.TemporarilyDisconnected
	r.timers.cancel(timerGrace + p.userID)
	p.connection = domain.Connected
	p.sessionID = sessionID
	r.mirror.presence(p.userID, p.connection)
	r.mirror.log("reconnected:" + p.userID)

	snap := r.snapshotLocked(p.userID)
	r.sendLocked(p, domain.Event{Type: domain.EventMatchReconnected, Payload: snap})
	if wasDisconnected {
		r.broadcastLocked(domain.Event{
			Type:    domain.EventPlayerReconnected,
			Payload: domain.UserPayload{MatchID: r.id, UserID: p.userID},
		}, p.userID)
		r.broadcastPlayersLocked()
	}
	return snap, nil
}

func (r *Room) graceExpiredLocked(userID string) {
	p, ok := r.players.get(userID)
	if !ok || p.connection != domain.TemporarilyDisconnected {
		return
	}
	switch r.status {
	case domain.StatusWaiting:
		r.expired[userID] = struct{}{}
		r.removeLocked(p, domain.EventPlayerEvicted)
	case domain.StatusInProgress:
		r.evictLocked(p, domain.EventPlayerEvicted)
	}
}

// removeLocked drops a player from a waiting room. The host role passes to the next player and an
// empty room is cancelled.
func (r *Room) removeLocked(p *player, eventType string) {
	r.timers.cancel(timerGrace + p.userID)
	r.broadcastLocked(domain.Event{Type: eventType, Payload: domain.UserPayload{MatchID: r.id, UserID: p.userID}}, "")
	r.players.remove(p.userID)
	r.mirror.dropPresence(p.userID)
	r.mirror.log(eventType + ":" + p.userID)

	if r.players.len() == 0 {
		r.cancelLocked(domain.ReasonEmpty)
		return
	}
	r.broadcastPlayersLocked()
	r.mirrorStateLocked()
	r.maybeStartLocked()
}

// evictLocked takes a player out of a running match. A 1-on-1 match ends by forfeit and a match
// without active players ends abandoned.
func (r *Room) evictLocked(p *player, eventType string) {
	r.timers.cancel(timerGrace + p.userID)
	r.broadcastLocked(domain.Event{Type: eventType, Payload: domain.UserPayload{MatchID: r.id, UserID: p.userID}}, "")
	p.connection = domain.Evicted
	p.ready = false
	r.mirror.presence(p.userID, p.connection)
	r.mirror.log(eventType + ":" + p.userID)
	r.broadcastPlayersLocked()

	active := r.players.activePlayers()
	switch {
	case len(active) == 0:
		r.completeLocked(domain.ReasonAbandoned)
	case r.players.len() == 2 && len(active) == 1:
		r.completeLocked(domain.ReasonForfeit)
	case r.allAnsweredLocked():
		r.closeQuestionLocked()
	default:
		r.mirrorStateLocked()
	}
}
