package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testConfig() *Config {
	return &Config{
		bind:              "127.0.0.1",
		heartbeatInterval: 30 * time.Second,
		maxTeams:          8,
		port:              8080,
		sessionGrace:      25 * time.Millisecond,
		sessionTimeout:    0,
	}
}

// fakeEndpoint records every frame a session hands it.
type fakeEndpoint struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed bool
	reject bool // refuse all frames, simulating a slow peer
}

func newFakeEndpoint(id string) *fakeEndpoint {
	return &fakeEndpoint{id: id}
}

func (f *fakeEndpoint) ID() string { return f.id }

func (f *fakeEndpoint) Enqueue(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reject || f.closed {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeEndpoint) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeEndpoint) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// received counts frames of the given type.
func (f *fakeEndpoint) received(msgType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, frame := range f.frames {
		var env Envelope
		if err := json.Unmarshal(frame, &env); err == nil && env.Type == msgType {
			count++
		}
	}
	return count
}

// lastState decodes the most recent game_state frame, or nil.
func (f *fakeEndpoint) lastState(t *testing.T) *GameState {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.frames) - 1; i >= 0; i-- {
		var env Envelope
		if err := json.Unmarshal(f.frames[i], &env); err != nil || env.Type != msgGameState {
			continue
		}
		var state GameState
		if err := json.Unmarshal(env.Payload, &state); err != nil {
			t.Fatalf("bad game_state payload: %v", err)
		}
		return &state
	}
	return nil
}

func startedSession(t *testing.T, teamCount int, totalRounds int) (*Session, []*fakeEndpoint) {
	t.Helper()

	sess := newSession(testConfig(), "TESTID")

	eps := make([]*fakeEndpoint, teamCount)
	for i := range eps {
		eps[i] = newFakeEndpoint(fmt.Sprintf("conn-%d", i))
		if _, err := sess.join(eps[i], fmt.Sprintf("Team %d", i+1)); err != nil {
			t.Fatalf("join() failed: %v", err)
		}
	}

	_, err := sess.start(eps[0], &StartGamePayload{
		IncludedCategories:   []string{categoryActions},
		IncludedDifficulties: []string{difficultyEasy},
		TurnDuration:         30,
		TotalRounds:          totalRounds,
	})
	if err != nil {
		t.Fatalf("start() failed: %v", err)
	}

	return sess, eps
}

func TestSessionJoinLobby(t *testing.T) {
	sess := newSession(testConfig(), "TESTID")

	host := newFakeEndpoint("host")
	state, err := sess.join(host, "Reds")
	if err != nil {
		t.Fatalf("join() failed: %v", err)
	}

	if len(state.Teams) != 1 || !state.Teams[0].IsHost {
		t.Fatal("first joiner should become the host team")
	}
	if state.HostID != "host" {
		t.Errorf("HostID = %q, want host connection id", state.HostID)
	}

	other := newFakeEndpoint("other")
	state, err = sess.join(other, "Blues")
	if err != nil {
		t.Fatalf("join() failed: %v", err)
	}

	if len(state.Teams) != 2 || state.Teams[1].ID != 2 {
		t.Fatal("second joiner should append as team 2")
	}

	// The host hears about the new player; the joiner does not hear
	// about itself.
	if host.received(msgPlayerJoined) != 1 {
		t.Errorf("host received %d player_joined, want 1", host.received(msgPlayerJoined))
	}
	if other.received(msgPlayerJoined) != 0 {
		t.Errorf("joiner received %d player_joined about itself, want 0", other.received(msgPlayerJoined))
	}

	// Everyone got the refreshed full state.
	if got := other.lastState(t); got == nil || len(got.Teams) != 2 {
		t.Error("joiner should hold the broadcast state with both teams")
	}
}

func TestSessionJoinDefaultTeamName(t *testing.T) {
	sess := newSession(testConfig(), "TESTID")

	state, err := sess.join(newFakeEndpoint("a"), "")
	if err != nil {
		t.Fatalf("join() failed: %v", err)
	}
	if state.Teams[0].Name == "" {
		t.Error("empty team name should be defaulted, not kept")
	}
}

func TestSessionJoinFull(t *testing.T) {
	cfg := testConfig()
	cfg.maxTeams = 2
	sess := newSession(cfg, "TESTID")

	for i := 0; i < 2; i++ {
		if _, err := sess.join(newFakeEndpoint(fmt.Sprintf("c%d", i)), ""); err != nil {
			t.Fatalf("join() failed: %v", err)
		}
	}

	ep := newFakeEndpoint("late")
	if _, err := sess.join(ep, "Overflow"); err != ErrGameFull {
		t.Errorf("join() past capacity = %v, want ErrGameFull", err)
	}
	if sess.connCount() != 2 {
		t.Errorf("rejected join must not register the connection")
	}
}

func TestSessionJoinAfterStart(t *testing.T) {
	sess, _ := startedSession(t, 2, 3)

	// A new name cannot join a running game.
	if _, err := sess.join(newFakeEndpoint("new"), "Strangers"); err != ErrGameStarted {
		t.Errorf("join() with unknown name after start = %v, want ErrGameStarted", err)
	}

	// A known name reconnects to its team.
	back := newFakeEndpoint("back")
	state, err := sess.join(back, "Team 2")
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if len(state.Teams) != 2 {
		t.Error("rejoin must not add a team")
	}
	if !state.IsGameStarted {
		t.Error("rejoin snapshot should reflect the running game")
	}
}

func TestSessionStartOnlyHost(t *testing.T) {
	sess := newSession(testConfig(), "TESTID")

	host := newFakeEndpoint("host")
	guest := newFakeEndpoint("guest")
	if _, err := sess.join(host, "Reds"); err != nil {
		t.Fatalf("join() failed: %v", err)
	}
	if _, err := sess.join(guest, "Blues"); err != nil {
		t.Fatalf("join() failed: %v", err)
	}

	if _, err := sess.start(guest, &StartGamePayload{TotalRounds: 3}); err == nil {
		t.Error("non-host start() should fail")
	}

	state, err := sess.start(host, &StartGamePayload{TotalRounds: 3})
	if err != nil {
		t.Fatalf("host start() failed: %v", err)
	}
	if !state.IsGameStarted {
		t.Error("state should be started")
	}

	// Both connections got the started state.
	if got := guest.lastState(t); got == nil || !got.IsGameStarted {
		t.Error("guest should hold the started state")
	}
}

func TestSessionEndTurn(t *testing.T) {
	sess, eps := startedSession(t, 2, 1)

	state, err := sess.endTurn(1, 7, []WordResult{{Word: "Umbrella", Category: categoryThings, Correct: true}})
	if err != nil {
		t.Fatalf("endTurn() failed: %v", err)
	}
	if state.Teams[0].Score != 7 {
		t.Errorf("team 1 score = %d, want 7", state.Teams[0].Score)
	}
	if state.CurrentTeamIndex != 1 || state.IsGameOver {
		t.Errorf("after team 1: index=%d over=%v, want 1/false", state.CurrentTeamIndex, state.IsGameOver)
	}

	state, err = sess.endTurn(2, 4, nil)
	if err != nil {
		t.Fatalf("endTurn() failed: %v", err)
	}
	if !state.IsGameOver {
		t.Error("game should be over after the last team's turn of the only round")
	}

	if got := eps[1].lastState(t); got == nil || !got.IsGameOver {
		t.Error("all connections should hold the final state")
	}
}

func TestSessionEndTurnUnknownTeam(t *testing.T) {
	sess, eps := startedSession(t, 2, 3)
	before := sess.snapshot()
	broadcasts := eps[0].received(msgGameState)

	if _, err := sess.endTurn(5, 10, nil); err == nil {
		t.Fatal("endTurn() for unknown team should fail")
	}

	after := sess.snapshot()
	if after.CurrentTeamIndex != before.CurrentTeamIndex || after.Teams[0].Score != before.Teams[0].Score {
		t.Error("unknown team id must leave state unchanged")
	}
	if eps[0].received(msgGameState) != broadcasts {
		t.Error("a rejected turn result must not be broadcast")
	}
}

func TestSessionTurnStarted(t *testing.T) {
	sess, eps := startedSession(t, 2, 3)
	before := sess.snapshot()

	sess.turnStarted(1)

	for _, ep := range eps {
		if ep.received(msgTurnStarted) != 1 {
			t.Errorf("endpoint %s received %d turn_started, want 1", ep.id, ep.received(msgTurnStarted))
		}
	}

	after := sess.snapshot()
	if after.CurrentTeamIndex != before.CurrentTeamIndex || after.CurrentRound != before.CurrentRound {
		t.Error("turn_started must not mutate state")
	}
}

func TestSessionLeaveKeepsTeam(t *testing.T) {
	sess, eps := startedSession(t, 3, 3)

	sess.leave(eps[1])

	state := sess.snapshot()
	if len(state.Teams) != 3 {
		t.Error("a disconnect must not remove the team from state")
	}
	if sess.connCount() != 2 {
		t.Errorf("connCount = %d, want 2", sess.connCount())
	}

	if eps[0].received(msgPlayerLeft) != 1 {
		t.Errorf("remaining endpoint received %d player_left, want 1", eps[0].received(msgPlayerLeft))
	}
}

func TestSessionLeaveIdempotent(t *testing.T) {
	sess, eps := startedSession(t, 3, 3)

	sess.leave(eps[1])
	notified := eps[0].received(msgPlayerLeft)

	sess.leave(eps[1])

	if eps[0].received(msgPlayerLeft) != notified {
		t.Error("leaving twice must not notify twice")
	}
	if sess.connCount() != 2 {
		t.Errorf("connCount = %d, want 2", sess.connCount())
	}
}

func TestSessionHostLeavesLobby(t *testing.T) {
	sess := newSession(testConfig(), "TESTID")
	removed := false
	sess.remove = func() { removed = true }

	host := newFakeEndpoint("host")
	guest := newFakeEndpoint("guest")
	if _, err := sess.join(host, "Reds"); err != nil {
		t.Fatalf("join() failed: %v", err)
	}
	if _, err := sess.join(guest, "Blues"); err != nil {
		t.Fatalf("join() failed: %v", err)
	}

	sess.leave(host)

	if guest.received(msgGameEnded) != 1 {
		t.Errorf("guest received %d game_ended, want 1", guest.received(msgGameEnded))
	}
	if !guest.isClosed() {
		t.Error("remaining connections should be closed on teardown")
	}
	if !removed {
		t.Error("session should detach from its registry")
	}

	if _, err := sess.join(newFakeEndpoint("again"), "More"); err != ErrSessionClosed {
		t.Errorf("join() on a torn-down session = %v, want ErrSessionClosed", err)
	}
}

func TestSessionHostLeavesStartedGame(t *testing.T) {
	sess, eps := startedSession(t, 2, 3)

	sess.leave(eps[0])

	if eps[1].received(msgGameEnded) != 0 {
		t.Error("host leaving a started game must not end it")
	}

	state := sess.snapshot()
	if len(state.Teams) != 2 {
		t.Error("host team must remain in state, rejoinable by name")
	}

	// Host rejoins by team name.
	back := newFakeEndpoint("host-back")
	if _, err := sess.join(back, "Team 1"); err != nil {
		t.Fatalf("host rejoin failed: %v", err)
	}
}

func TestSessionEmptyRemovedAfterGrace(t *testing.T) {
	sess, eps := startedSession(t, 2, 3)

	removed := make(chan struct{})
	sess.remove = func() { close(removed) }

	sess.leave(eps[0])
	sess.leave(eps[1])

	select {
	case <-removed:
	case <-time.After(time.Second):
		t.Fatal("empty session was not removed within the grace period")
	}
}

func TestSessionSlowConnectionDropped(t *testing.T) {
	sess, eps := startedSession(t, 3, 3)

	eps[2].mu.Lock()
	eps[2].reject = true
	eps[2].mu.Unlock()

	// Next broadcast drops the unresponsive connection but still
	// reaches the healthy ones.
	if _, err := sess.endTurn(1, 3, nil); err != nil {
		t.Fatalf("endTurn() failed: %v", err)
	}

	if sess.connCount() != 2 {
		t.Errorf("connCount = %d, want 2 after dropping slow peer", sess.connCount())
	}
	if !eps[2].isClosed() {
		t.Error("slow connection should be closed")
	}
	if got := eps[0].lastState(t); got == nil || got.Teams[0].Score != 3 {
		t.Error("healthy connections must still receive the broadcast")
	}

	state := sess.snapshot()
	if len(state.Teams) != 3 {
		t.Error("dropping a connection must not remove its team")
	}
}

func TestSessionEnd(t *testing.T) {
	sess, eps := startedSession(t, 2, 3)

	sess.end("session_timeout")
	sess.end("session_timeout")

	for _, ep := range eps {
		if ep.received(msgGameEnded) != 1 {
			t.Errorf("endpoint %s received %d game_ended, want exactly 1", ep.id, ep.received(msgGameEnded))
		}
		if !ep.isClosed() {
			t.Errorf("endpoint %s should be closed", ep.id)
		}
	}
}
