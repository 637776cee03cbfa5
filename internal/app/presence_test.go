package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

func TestReconnectMidQuestionRestoresState(t *testing.T) {
	h := newHarness(t)
	matchID := h.started("one", "alice", "bob")
	ctx := context.Background()

	_, err := h.submit(matchID, "alice", "q1", "a")
	require.NoError(t, err)
	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.service.Disconnect(ctx, matchID, "alice", "s-alice"))

	peer, ok := h.notifier.last("s-bob", domain.EventPlayerTemporarilyDisconnected)
	require.True(t, ok)
	assert.Equal(t, int64(30000), peer.Payload.(domain.DisconnectedPayload).GraceMs)

	h.clock.Advance(10 * time.Second)
	snap, err := h.service.Reconnect(ctx, matchID, "alice", "s-alice-2")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusInProgress, snap.Status)
	assert.Equal(t, 0, snap.CurrentQuestionIndex)
	assert.True(t, snap.QuestionOpen)
	assert.Equal(t, int64(8000), snap.TimeRemainingMs)
	assert.Equal(t, 150, snap.Self.Score)
	assert.Len(t, snap.Self.Answers, 1)
	assert.Equal(t, domain.Connected, snap.Self.Connection)

	_, ok = h.notifier.last("s-alice-2", domain.EventMatchReconnected)
	assert.True(t, ok)
	_, ok = h.notifier.last("s-bob", domain.EventPlayerReconnected)
	assert.True(t, ok)

	h.clock.Advance(30 * time.Second)
	snap = h.state(matchID, "alice")
	assert.NotEqual(t, domain.Evicted, snap.Self.Connection, "grace timer cancelled on reconnect")
}

func TestDisconnectedPlayerMissesEvents(t *testing.T) {
	h := newHarness(t)
	matchID := h.started("five", "alice", "bob")
	require.NoError(t, h.service.Disconnect(context.Background(), matchID, "bob", "s-bob"))
	before := len(h.notifier.types("s-bob"))

	_, err := h.submit(matchID, "alice", "q1", "a")
	require.NoError(t, err)
	_, ok := h.notifier.last("s-alice", domain.EventQuestionEnd)
	assert.False(t, ok, "a player inside the grace window keeps the question open")

	h.clock.Advance(10 * time.Second)
	_, ok = h.notifier.last("s-alice", domain.EventQuestionEnd)
	assert.True(t, ok)
	assert.Len(t, h.notifier.types("s-bob"), before)
}

func TestReconnectWithinGraceResumesUnansweredQuestion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	matchID := h.started("five", "alice", "bob")

	h.clock.Advance(time.Second)
	require.NoError(t, h.service.Disconnect(ctx, matchID, "alice", "s-alice"))
	h.clock.Advance(time.Second)
	_, err := h.submit(matchID, "bob", "q1", "a")
	require.NoError(t, err)
	_, ok := h.notifier.last("s-bob", domain.EventQuestionEnd)
	require.False(t, ok)

	h.clock.Advance(3 * time.Second)
	snap, err := h.service.Reconnect(ctx, matchID, "alice", "s-alice-2")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CurrentQuestionIndex)
	assert.True(t, snap.QuestionOpen)
	assert.Equal(t, int64(5000), snap.TimeRemainingMs)
	assert.Empty(t, snap.Self.Answers)

	res, err := h.submit(matchID, "alice", "q1", "a")
	require.NoError(t, err)
	assert.True(t, res.Correct)

	end, ok := h.notifier.last("s-bob", domain.EventQuestionEnd)
	require.True(t, ok, "question closes once both players answered")
	assert.Equal(t, 0, end.Payload.(domain.QuestionEndPayload).QuestionIndex)
	assert.Equal(t, 1, h.state(matchID, "alice").CurrentQuestionIndex)
}

func TestGraceExpiryForfeitsOneOnOne(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	matchID := h.started("five", "alice", "bob")
	require.NoError(t, h.service.Disconnect(ctx, matchID, "alice", "s-alice"))
	h.clock.Advance(9 * time.Second)
	_, err := h.submit(matchID, "bob", "q1", "a")
	require.NoError(t, err)
	h.clock.Advance(21 * time.Second)

	evicted, ok := h.notifier.last("s-bob", domain.EventPlayerEvicted)
	require.True(t, ok)
	assert.Equal(t, "alice", evicted.Payload.(domain.UserPayload).UserID)

	end, ok := h.notifier.last("s-bob", domain.EventMatchEnd)
	require.True(t, ok)
	res := end.Payload.(domain.MatchEndPayload).Result
	assert.Equal(t, domain.ReasonForfeit, res.Reason)
	assert.Equal(t, "bob", res.WinnerID)
	assert.Equal(t, "alice", res.Standings[1].UserID)
	assert.True(t, res.Standings[1].Evicted)
	assert.Positive(t, res.Standings[0].RatingDelta)

	_, err = h.service.Reconnect(ctx, matchID, "alice", "s-alice-2")
	assert.ErrorIs(t, err, domain.ErrEvicted)
	_, err = h.service.Join(ctx, matchID, domain.Identity{UserID: "alice"}, "s-alice-3")
	assert.ErrorIs(t, err, domain.ErrEvicted)
}

func TestStaleSessionDisconnectIgnored(t *testing.T) {
	h := newHarness(t)
	summary := h.create("one", app.CreateMatchRequest{})
	ctx := context.Background()
	h.join(summary.MatchID, "alice")

	_, err := h.service.Join(ctx, summary.MatchID, domain.Identity{UserID: "alice"}, "s-alice-2")
	require.NoError(t, err)
	require.NoError(t, h.service.Disconnect(ctx, summary.MatchID, "alice", "s-alice"))

	snap := h.state(summary.MatchID, "alice")
	assert.Equal(t, domain.Connected, snap.Self.Connection)
	assert.Equal(t, "alice", snap.Self.DisplayName)

	assert.ErrorIs(t, h.service.Disconnect(ctx, summary.MatchID, "nobody", "s-x"), domain.ErrPlayerNotFound)
}

func TestWaitingGraceExpiryRemovesPlayerAndPassesHost(t *testing.T) {
	h := newHarness(t)
	summary := h.create("one", app.CreateMatchRequest{MaxPlayers: 3})
	ctx := context.Background()
	h.join(summary.MatchID, "alice")
	h.join(summary.MatchID, "bob")

	require.NoError(t, h.service.Disconnect(ctx, summary.MatchID, "alice", "s-alice"))
	h.clock.Advance(30 * time.Second)

	snap := h.state(summary.MatchID, "bob")
	require.Len(t, snap.Players, 1)
	assert.True(t, snap.Self.Host)
	assert.Equal(t, domain.StatusWaiting, snap.Status)

	_, err := h.service.Reconnect(ctx, summary.MatchID, "alice", "s-alice-2")
	assert.ErrorIs(t, err, domain.ErrEvicted)

	_, err = h.service.Join(ctx, summary.MatchID, domain.Identity{UserID: "alice", DisplayName: "alice"}, "s-alice-3")
	require.NoError(t, err, "a removed player may join again as new")
	assert.False(t, h.state(summary.MatchID, "alice").Self.Host)

	presence, err := h.store.HGetAll(ctx, "match:"+summary.MatchID+":presence")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "connected", "bob": "connected"}, presence)
}

func TestRemovingUnreadyPlayerStartsMatch(t *testing.T) {
	h := newHarness(t)
	summary := h.create("one", app.CreateMatchRequest{MaxPlayers: 3})
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol"} {
		h.join(summary.MatchID, u)
	}
	h.ready(summary.MatchID, "alice", "bob")
	require.NoError(t, h.service.Leave(ctx, summary.MatchID, "carol"))

	assert.Equal(t, domain.StatusInProgress, h.state(summary.MatchID, "alice").Status)
	left, ok := h.notifier.last("s-alice", domain.EventPlayerLeft)
	require.True(t, ok)
	assert.Equal(t, "carol", left.Payload.(domain.UserPayload).UserID)
}

func TestDisconnectedUnreadyPlayerHoldsStart(t *testing.T) {
	h := newHarness(t)
	summary := h.create("one", app.CreateMatchRequest{MaxPlayers: 3})
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol"} {
		h.join(summary.MatchID, u)
	}
	require.NoError(t, h.service.Disconnect(ctx, summary.MatchID, "carol", "s-carol"))
	h.ready(summary.MatchID, "alice", "bob")
	assert.Equal(t, domain.StatusWaiting, h.state(summary.MatchID, "alice").Status)

	h.clock.Advance(30 * time.Second)
	snap := h.state(summary.MatchID, "alice")
	assert.Equal(t, domain.StatusInProgress, snap.Status, "grace expiry removes carol and the rest are ready")
	assert.Len(t, snap.Players, 2)
}

func TestReconnectedPlayerReadyingStartsMatch(t *testing.T) {
	h := newHarness(t)
	summary := h.create("one", app.CreateMatchRequest{MaxPlayers: 3})
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol"} {
		h.join(summary.MatchID, u)
	}
	require.NoError(t, h.service.Disconnect(ctx, summary.MatchID, "carol", "s-carol"))
	h.ready(summary.MatchID, "alice", "bob")

	_, err := h.service.Reconnect(ctx, summary.MatchID, "carol", "s-carol-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, h.state(summary.MatchID, "alice").Status)
	h.ready(summary.MatchID, "carol")
	assert.Equal(t, domain.StatusInProgress, h.state(summary.MatchID, "alice").Status)
}

func TestLastPlayerLeavingCancelsRoom(t *testing.T) {
	h := newHarness(t)
	summary := h.create("one", app.CreateMatchRequest{})
	ctx := context.Background()
	h.join(summary.MatchID, "alice")

	require.NoError(t, h.service.Leave(ctx, summary.MatchID, "alice"))
	_, err := h.service.Get(ctx, summary.MatchID)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
	assert.Empty(t, h.service.List(ctx))
}

func TestEvictionInLargerMatchContinues(t *testing.T) {
	h := newHarness(t)
	matchID := h.started("five", "alice", "bob", "carol")
	ctx := context.Background()

	require.NoError(t, h.service.Leave(ctx, matchID, "carol"))
	snap := h.state(matchID, "alice")
	assert.Equal(t, domain.StatusInProgress, snap.Status)

	_, err := h.submit(matchID, "carol", "q1", "a")
	assert.ErrorIs(t, err, domain.ErrEvicted)
	_, err = h.submit(matchID, "alice", "q1", "a")
	require.NoError(t, err)
	_, err = h.submit(matchID, "bob", "q1", "a")
	require.NoError(t, err)

	snap = h.state(matchID, "alice")
	assert.Equal(t, 1, snap.CurrentQuestionIndex, "evicted players do not hold questions open")
	assert.Equal(t, domain.StatusInProgress, snap.Status)

	require.NoError(t, h.service.Leave(ctx, matchID, "bob"))
	require.NoError(t, h.service.Leave(ctx, matchID, "alice"))
	_, ok := h.notifier.last("s-carol", domain.EventMatchEnd)
	assert.False(t, ok, "evicted players receive nothing")

	snap, err = h.service.Get(ctx, matchID)
	require.NoError(t, err)
	require.NotNil(t, snap.Result)
	assert.Equal(t, domain.ReasonAbandoned, snap.Result.Reason)
	assert.Empty(t, snap.Result.WinnerID)
}
