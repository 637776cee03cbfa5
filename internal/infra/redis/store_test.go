package redis

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quiz-match-service/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewStore(newClient(mr)), mr
}

func TestStoreStringOperations(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "match:code:ZZZZZZ"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	ok, err := store.SetNX(ctx, "match:code:ABC123", "m1", 0)
	if err != nil || !ok {
		t.Fatalf("first setnx: ok=%v err=%v", ok, err)
	}
	ok, err = store.SetNX(ctx, "match:code:ABC123", "m2", 0)
	if err != nil || ok {
		t.Fatalf("second setnx must lose: ok=%v err=%v", ok, err)
	}
	if got, _ := store.Get(ctx, "match:code:ABC123"); got != "m1" {
		t.Fatalf("expected m1, got %q", got)
	}

	if err := store.Set(ctx, "match:m1:state", "{}", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Expire(ctx, "match:m1:state", time.Minute); err != nil {
		t.Fatalf("expire: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if mr.Exists("match:m1:state") {
		t.Fatalf("expected key to expire")
	}
	if err := store.Expire(ctx, "match:m1:state", time.Minute); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound on missing key, got %v", err)
	}
}

func TestStoreCollectionsAndKeys(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.HSet(ctx, "match:m1:presence", "u1", "connected"); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if err := store.SAdd(ctx, "matches:active", "m1", "m2"); err != nil {
		t.Fatalf("sadd: %v", err)
	}
	if err := store.RPush(ctx, "match:m1:log", "created", "started"); err != nil {
		t.Fatalf("rpush: %v", err)
	}

	presence, err := store.HGetAll(ctx, "match:m1:presence")
	if err != nil || presence["u1"] != "connected" {
		t.Fatalf("hgetall: %v %v", presence, err)
	}
	lines, err := store.LRange(ctx, "match:m1:log", 0, -1)
	if err != nil || len(lines) != 2 || lines[1] != "started" {
		t.Fatalf("lrange: %v %v", lines, err)
	}

	keys, err := store.Keys(ctx, "match:m1:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "match:m1:log" || keys[1] != "match:m1:presence" {
		t.Fatalf("unexpected keys %v", keys)
	}

	if err := store.Del(ctx, keys...); err != nil {
		t.Fatalf("del: %v", err)
	}
	if err := store.SRem(ctx, "matches:active", "m1"); err != nil {
		t.Fatalf("srem: %v", err)
	}
	members, _ := store.SMembers(ctx, "matches:active")
	if len(members) != 1 || members[0] != "m2" {
		t.Fatalf("unexpected members %v", members)
	}
	if mr.Exists("match:m1:log") || mr.Exists("match:m1:presence") {
		t.Fatalf("expected match keys removed")
	}
}
