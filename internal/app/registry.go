package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"quiz-match-service/internal/clock"
	"quiz-match-service/internal/domain"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// MaxCodeAttempts bounds join code regeneration on collision.
	MaxCodeAttempts = 10
)

// Registry maps match ids and join codes to live rooms. Its lock may be held while taking a room
// lock, never the reverse.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	codes  map[string]string
	closed bool

	store    Store
	clock    clock.Clock
	notifier Notifier
	hooks    roomHooks
	newID    func() string
	newCode  func() (string, error)
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithCodeGenerator replaces the random join code source.
func WithCodeGenerator(gen func() (string, error)) RegistryOption {
	return func(r *Registry) { r.newCode = gen }
}

// WithIDGenerator replaces the uuid match id source.
func WithIDGenerator(gen func() string) RegistryOption {
	return func(r *Registry) { r.newID = gen }
}

// NewRegistry builds an empty registry. store may be nil to disable mirroring.
func NewRegistry(store Store, clk clock.Clock, notifier Notifier, opts ...RegistryOption) *Registry {
	r := &Registry{
		rooms:    make(map[string]*Room),
		codes:    make(map[string]string),
		store:    store,
		clock:    clk,
		notifier: notifier,
		newID:    uuid.NewString,
		newCode:  randomCode,
	}
	r.hooks = roomHooks{
		completed: func(*Room) {},
		finished: func(room *Room) {
			if err := r.Remove(context.Background(), room.ID()); err != nil {
				log.Printf("registry: remove match=%s: %v", room.ID(), err)
			}
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func randomCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Init purges the mirror keys of matches a previous process left behind; their timers died with it.
func (r *Registry) Init(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	stale, err := r.store.SMembers(ctx, activeMatchesKey)
	if err != nil {
		return fmt.Errorf("list active matches: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	staleSet := make(map[string]struct{}, len(stale))
	for _, id := range stale {
		staleSet[id] = struct{}{}
		if err := purgeMatchKeys(ctx, r.store, id, ""); err != nil {
			return fmt.Errorf("purge match %s: %w", id, err)
		}
	}
	codeKeys, err := r.store.Keys(ctx, codeKey("*"))
	if err != nil {
		return fmt.Errorf("list codes: %w", err)
	}
	for _, key := range codeKeys {
		id, err := r.store.Get(ctx, key)
		if err != nil {
			continue
		}
		if _, ok := staleSet[id]; ok {
			if err := r.store.Del(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
	}
	log.Printf("registry: purged %d stale matches", len(stale))
	return nil
}

// Create opens a waiting room for quiz.
func (r *Registry) Create(ctx context.Context, quiz domain.Quiz, settings Settings) (*Room, error) {
	if len(quiz.Questions) == 0 {
		return nil, domain.ErrEmptyQuiz
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, domain.ErrRegistryClosed
	}

	id := r.newID()
	code, err := r.claimCodeLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	room := newRoom(id, code, quiz, settings, r.clock, r.notifier, r.store, r.hooks)
	r.rooms[id] = room
	r.codes[code] = id
	if r.store != nil {
		if err := r.store.SAdd(ctx, activeMatchesKey, id); err != nil {
			log.Printf("registry: mark match=%s active: %v", id, err)
		}
	}
	room.activate()
	return room, nil
}

// claimCodeLocked finds a code unused locally and, when a store is configured, across processes.
func (r *Registry) claimCodeLocked(ctx context.Context, matchID string) (string, error) {
	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		code = strings.ToUpper(code)
		if _, taken := r.codes[code]; taken {
			continue
		}
		if r.store == nil {
			return code, nil
		}
		ok, err := r.store.SetNX(ctx, codeKey(code), matchID, 0)
		if err != nil {
			log.Printf("registry: claim code %s in store: %v", code, err)
			return code, nil
		}
		if ok {
			return code, nil
		}
	}
	return "", domain.ErrCodeExhausted
}

// Get returns the live room with id.
func (r *Registry) Get(id string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return room, nil
}

// GetByCode resolves a join code, ignoring case.
func (r *Registry) GetByCode(code string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.codes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	room, ok := r.rooms[id]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	return room, nil
}

// Remove tears a room down: its timers are cancelled, both indexes dropped and its keys purged.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	room, ok := r.rooms[id]
	if ok {
		delete(r.rooms, id)
		delete(r.codes, room.Code())
	}
	r.mu.Unlock()
	if !ok {
		return domain.ErrMatchNotFound
	}

	room.close()
	if err := purgeMatchKeys(ctx, r.store, id, room.Code()); err != nil {
		log.Printf("registry: purge match=%s: %v", id, err)
	}
	return nil
}

// List returns summaries of live rooms, oldest first.
func (r *Registry) List() []domain.MatchSummary {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	out := make([]domain.MatchSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].MatchID < out[j].MatchID
	})
	return out
}

// Len reports the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Shutdown closes every room and rejects further creation.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Remove(ctx, id); err != nil && err != domain.ErrMatchNotFound {
			return err
		}
	}
	return nil
}
