package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"quiz-match-service/internal/domain"
)

type kind int

const (
	kindString kind = iota
	kindHash
	kindSet
	kindList
)

type entry struct {
	kind      kind
	str       string
	hash      map[string]string
	set       map[string]struct{}
	list      []string
	expiresAt time.Time
}

// Store is an in-process implementation of app.Store with redis semantics. Expired keys are
// dropped lazily on access.
type Store struct {
	mu    sync.Mutex
	data  map[string]*entry
	clock func() time.Time
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock allows deterministic expiry in tests.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{data: make(map[string]*entry), clock: now}
}

// errWrongType mirrors the redis WRONGTYPE reply.
var errWrongType = errors.New("WRONGTYPE operation against a key holding the wrong kind of value")

func (s *Store) liveLocked(key string) (*entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(s.clock()) {
		delete(s.data, key)
		return nil, false
	}
	return e, true
}

// typedLocked returns the live entry of key, creating it with k when create is set.
func (s *Store) typedLocked(key string, k kind, create bool) (*entry, error) {
	e, ok := s.liveLocked(key)
	if ok {
		if e.kind != k {
			return nil, errWrongType
		}
		return e, nil
	}
	if !create {
		return nil, nil
	}
	e = &entry{kind: k}
	switch k {
	case kindHash:
		e.hash = make(map[string]string)
	case kindSet:
		e.set = make(map[string]struct{})
	}
	s.data[key] = e
	return e, nil
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock().Add(ttl)
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typedLocked(key, kindString, false)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", domain.ErrKeyNotFound
	}
	return e.str, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = &entry{kind: kindString, str: value, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *Store) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(key); ok {
		return false, nil
	}
	s.data[key] = &entry{kind: kindString, str: value, expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key)
	if !ok {
		return domain.ErrKeyNotFound
	}
	if ttl <= 0 {
		delete(s.data, key)
		return nil
	}
	e.expiresAt = s.expiry(ttl)
	return nil
}

func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0)
	for key := range s.data {
		if _, ok := s.liveLocked(key); !ok {
			continue
		}
		if matchGlob(pattern, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typedLocked(key, kindHash, true)
	if err != nil {
		return err
	}
	e.hash[field] = value
	return nil
}

func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	e, err := s.typedLocked(key, kindHash, false)
	if err != nil || e == nil {
		return out, err
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (s *Store) HDel(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typedLocked(key, kindHash, false)
	if err != nil || e == nil {
		return err
	}
	for _, f := range fields {
		delete(e.hash, f)
	}
	if len(e.hash) == 0 {
		delete(s.data, key)
	}
	return nil
}

func (s *Store) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typedLocked(key, kindSet, true)
	if err != nil {
		return err
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	return nil
}

func (s *Store) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typedLocked(key, kindSet, false)
	if err != nil || e == nil {
		return err
	}
	for _, m := range members {
		delete(e.set, m)
	}
	if len(e.set) == 0 {
		delete(s.data, key)
	}
	return nil
}

func (s *Store) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typedLocked(key, kindSet, false)
	if err != nil {
		return nil, err
	}
	members := make([]string, 0)
	if e == nil {
		return members, nil
	}
	for m := range e.set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *Store) RPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typedLocked(key, kindList, true)
	if err != nil {
		return err
	}
	e.list = append(e.list, values...)
	return nil
}

// LRange follows redis index rules: negative indexes count from the end and stop is inclusive.
func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0)
	e, err := s.typedLocked(key, kindList, false)
	if err != nil || e == nil {
		return out, err
	}
	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return out, nil
	}
	return append(out, e.list[start:stop+1]...), nil
}

// matchGlob implements redis KEYS patterns: * matches any run (including none), ? one byte,
// [abc], [^abc] and [a-z] classes, and \ escapes the next byte.
func matchGlob(pattern, key string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if matchGlob(pattern, key[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(key) == 0 {
				return false
			}
			pattern, key = pattern[1:], key[1:]
		case '[':
			if len(key) == 0 {
				return false
			}
			rest, ok := matchClass(pattern[1:], key[0])
			if !ok {
				return false
			}
			pattern, key = rest, key[1:]
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			fallthrough
		default:
			if len(key) == 0 || pattern[0] != key[0] {
				return false
			}
			pattern, key = pattern[1:], key[1:]
		}
	}
	return len(key) == 0
}

// matchClass matches c against the class body at the start of pattern and returns the pattern
// after the closing bracket.
func matchClass(pattern string, c byte) (string, bool) {
	negate := false
	if len(pattern) > 0 && pattern[0] == '^' {
		negate = true
		pattern = pattern[1:]
	}
	matched := false
	for len(pattern) > 0 && pattern[0] != ']' {
		lo := pattern[0]
		if lo == '\\' && len(pattern) > 1 {
			pattern = pattern[1:]
			lo = pattern[0]
		}
		hi := lo
		if len(pattern) > 2 && pattern[1] == '-' && pattern[2] != ']' {
			hi = pattern[2]
			pattern = pattern[2:]
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		if c >= lo && c <= hi {
			matched = true
		}
		pattern = pattern[1:]
	}
	if len(pattern) > 0 {
		pattern = pattern[1:]
	}
	return pattern, matched != negate
}
