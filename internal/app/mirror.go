package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"quiz-match-service/internal/domain"
)

const (
	activeMatchesKey = "matches:active"
	mirrorTimeout    = 2 * time.Second
)

func codeKey(code string) string { return "match:code:" + code }
func stateKey(matchID string) string { return fmt.Sprintf("match:%s:state", matchID) }
func presenceKey(matchID string) string { return fmt.Sprintf("match:%s:presence", matchID) }
func logKey(matchID string) string { return fmt.Sprintf("match:%s:log", matchID) }
func matchPattern(matchID string) string { return fmt.Sprintf("match:%s:*", matchID) }

// mirror writes a room's ephemeral state to the store. Failures are logged and never surface to callers.
type mirror struct {
	store   Store
	matchID string
}

func (m mirror) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), mirrorTimeout)
}

func (m mirror) state(snapshot domain.MatchSnapshot) {
	if m.store == nil {
		return
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("mirror match=%s: encode state: %v", m.matchID, err)
		return
	}
	ctx, cancel := m.ctx()
	defer cancel()
	if err := m.store.Set(ctx, stateKey(m.matchID), string(raw), 0); err != nil {
		log.Printf("mirror match=%s: write state: %v", m.matchID, err)
	}
}

func (m mirror) presence(userID string, status domain.ConnectionStatus) {
	if m.store == nil {
		return
	}
	ctx, cancel := m.ctx()
	defer cancel()
	if err := m.store.HSet(ctx, presenceKey(m.matchID), userID, string(status)); err != nil {
		log.Printf("mirror match=%s: write presence user=%s: %v", m.matchID, userID, err)
	}
}

func (m mirror) dropPresence(userID string) {
	if m.store == nil {
		return
	}
	ctx, cancel := m.ctx()
	defer cancel()
	if err := m.store.HDel(ctx, presenceKey(m.matchID), userID); err != nil {
		log.Printf("mirror match=%s: drop presence user=%s: %v", m.matchID, userID, err)
	}
}

func (m mirror) log(line string) {
	if m.store == nil {
		return
	}
	ctx, cancel := m.ctx()
	defer cancel()
	if err := m.store.RPush(ctx, logKey(m.matchID), line); err != nil {
		log.Printf("mirror match=%s: append log: %v", m.matchID, err)
	}
}

func (m mirror) expire(ttl time.Duration) {
	if m.store == nil {
		return
	}
	ctx, cancel := m.ctx()
	defer cancel()
	for _, key := range []string{stateKey(m.matchID), presenceKey(m.matchID), logKey(m.matchID)} {
		if err := m.store.Expire(ctx, key, ttl); err != nil && !isKeyNotFound(err) {
			log.Printf("mirror match=%s: expire %s: %v", m.matchID, key, err)
		}
	}
}

// purgeMatchKeys removes every key of a match plus its code and active-set entry.
func purgeMatchKeys(ctx context.Context, store Store, matchID, code string) error {
	if store == nil {
		return nil
	}
	keys, err := store.Keys(ctx, matchPattern(matchID))
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	if code != "" {
		keys = append(keys, codeKey(code))
	}
	if len(keys) > 0 {
		if err := store.Del(ctx, keys...); err != nil {
			return fmt.Errorf("delete keys: %w", err)
		}
	}
	if err := store.SRem(ctx, activeMatchesKey, matchID); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	return nil
}

func isKeyNotFound(err error) bool {
	return errors.Is(err, domain.ErrKeyNotFound)
}
