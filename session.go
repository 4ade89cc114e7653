package main

import (
	"fmt"
	"sync"
	"time"
)

// endpoint is one live transport connection subscribed to a session. The
// session only ever queues outbound frames and closes; everything else
// about the transport stays in the gateway.
type endpoint interface {
	ID() string

	// Enqueue hands the endpoint a frame to deliver, without blocking.
	// A false return means the peer is too slow or broken; the session
	// treats it as an implicit disconnect.
	Enqueue(frame []byte) bool

	Close()
}

// Session owns one GameState and the set of live connections subscribed
// to it. All mutation is serialized under s.mu: one event is fully
// processed before the next begins, so concurrent joins and turn-ends
// from different connections apply in arrival order.
type Session struct {
	id  string
	cfg *Config

	mu         sync.RWMutex
	state      *GameState
	conns      map[endpoint]bool
	connTeams  map[string]int // endpoint id -> team id
	hostConn   string         // endpoint id currently holding the host team
	closed     bool
	lastActive time.Time

	// remove detaches this session from its registry; set by the
	// registry at creation, idempotent.
	remove func()
}

func newSession(cfg *Config, gameID string) *Session {
	return &Session{
		id:         gameID,
		cfg:        cfg,
		state:      newGameState(gameID, ""),
		conns:      make(map[endpoint]bool),
		connTeams:  make(map[string]int),
		lastActive: time.Now(),
		remove:     func() {},
	}
}

// snapshot returns a copy of the current state, safe to use outside the
// session's lock.
func (s *Session) snapshot() *GameState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

func (s *Session) idle() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// join admits a connection into the session. In the lobby each new
// connection becomes a team: the first one is the host with team id 1,
// later ones append in join order. After the game has started a join is
// a reconnect and must name an existing team.
func (s *Session) join(ep endpoint, teamName string) (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	s.lastActive = time.Now()

	if s.state.IsGameStarted {
		team := s.state.teamByName(teamName)
		if team == nil {
			return nil, ErrGameStarted
		}

		s.conns[ep] = true
		s.connTeams[ep.ID()] = team.ID
		if team.IsHost {
			s.hostConn = ep.ID()
		}

		logf(s.cfg, "GAMES: Team %q rejoined %s", team.Name, s.id)
		s.notifyOthersLocked(ep, msgPlayerJoined, PlayerJoinedPayload{TeamName: team.Name})

		return s.state.clone(), nil
	}

	if len(s.state.Teams) >= s.cfg.maxTeams {
		return nil, ErrGameFull
	}

	if teamName == "" {
		teamName = fmt.Sprintf("Team %d", len(s.state.Teams)+1)
	}

	next := s.state.clone()
	team, err := next.addTeam(teamName)
	if err != nil {
		return nil, err
	}
	if team.IsHost {
		next.HostID = ep.ID()
	}
	s.state = next

	s.conns[ep] = true
	s.connTeams[ep.ID()] = team.ID
	if team.IsHost {
		s.hostConn = ep.ID()
		logf(s.cfg, "GAMES: Team %q opened %s as host", team.Name, s.id)
	} else {
		logf(s.cfg, "GAMES: Team %q joined %s", team.Name, s.id)
	}

	s.notifyOthersLocked(ep, msgPlayerJoined, PlayerJoinedPayload{TeamName: team.Name})
	s.broadcastStateLocked()

	return s.state.clone(), nil
}

// start applies the lobby→started transition. Only the host connection
// may start; ep may be nil for callers outside the wire protocol.
func (s *Session) start(ep endpoint, p *StartGamePayload) (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	s.lastActive = time.Now()

	if ep != nil && ep.ID() != s.hostConn {
		return nil, fmt.Errorf("%w: only the host may start the game", ErrInvalidState)
	}

	next := s.state.clone()
	err := next.startGame(p.Teams, p.IncludedCategories, p.IncludedDifficulties, p.TurnDuration, p.TotalRounds)
	if err != nil {
		return nil, err
	}
	s.state = next

	logf(s.cfg, "GAMES: Started %s (%d teams, %d rounds, %ds turns)",
		s.id, len(next.Teams), next.TotalRounds, next.TurnDuration)

	s.broadcastStateLocked()

	return s.state.clone(), nil
}

// endTurn records a finished turn for a team, then advances to the next
// team, round, or game over. An unknown team id leaves the state
// untouched: logged, no broadcast.
func (s *Session) endTurn(teamID, score int, words []WordResult) (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	s.lastActive = time.Now()

	next := s.state.clone()
	if err := next.recordTurnResult(teamID, score); err != nil {
		logf(s.cfg, "ERROR: Turn result for %s dropped: %v", s.id, err)
		return nil, err
	}
	if err := next.advanceTurn(); err != nil {
		logf(s.cfg, "ERROR: Turn advance for %s dropped: %v", s.id, err)
		return nil, err
	}
	s.state = next

	correct := 0
	for _, w := range words {
		if w.Correct {
			correct++
		}
	}
	logf(s.cfg, "GAMES: Team %d scored %d in %s (%d/%d words, round %d)",
		teamID, score, s.id, correct, len(words), next.CurrentRound)

	if next.IsGameOver {
		logf(s.cfg, "GAMES: Game over in %s", s.id)
	}

	s.broadcastStateLocked()

	return s.state.clone(), nil
}

// turnStarted rebroadcasts a turn announcement. Advisory only: no state
// is touched.
func (s *Session) turnStarted(teamID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.lastActive = time.Now()

	frame, err := newEnvelope(msgTurnStarted, TurnStartedPayload{TeamID: teamID})
	if err != nil {
		return
	}
	s.sendAllLocked(frame)
}

// leave removes a connection from the live set. The team it represented
// stays in GameState, rejoinable by name. Idempotent: leaving twice has
// no further effect. If the host leaves before the game starts, the
// session is torn down and everyone is told the game ended.
func (s *Session) leave(ep endpoint) {
	s.mu.Lock()

	if s.closed || !s.conns[ep] {
		s.mu.Unlock()
		return
	}

	teamID := s.connTeams[ep.ID()]
	delete(s.conns, ep)
	delete(s.connTeams, ep.ID())
	s.lastActive = time.Now()

	if team := s.state.teamByID(teamID); team != nil {
		logf(s.cfg, "GAMES: Team %q disconnected from %s", team.Name, s.id)
	}

	hostLeft := ep.ID() == s.hostConn

	if hostLeft && !s.state.IsGameStarted {
		logf(s.cfg, "GAMES: Host left %s before start, ending game", s.id)
		s.closeLocked("host_left")
		s.mu.Unlock()
		s.remove()
		return
	}

	s.notifyOthersLocked(nil, msgPlayerLeft, PlayerLeftPayload{GameID: s.id})

	empty := len(s.conns) == 0
	s.mu.Unlock()

	if empty {
		go s.scheduleRemoval(s.cfg.sessionGrace)
	}
}

// scheduleRemoval waits for d, and if the session is still empty,
// removes it from the registry.
func (s *Session) scheduleRemoval(d time.Duration) {
	time.Sleep(d)

	s.mu.Lock()
	if s.closed || len(s.conns) > 0 {
		s.mu.Unlock()
		return
	}
	logf(s.cfg, "GAMES: Reaping empty game %s", s.id)
	s.closeLocked("")
	s.mu.Unlock()

	s.remove()
}

// end tears the session down, notifying every live connection. Used by
// the registry's reaper and by process shutdown.
func (s *Session) end(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closeLocked(reason)
	s.mu.Unlock()

	s.remove()
}

// closeLocked notifies remaining connections (when reason is set),
// closes them all, and marks the session terminal. Assumes s.mu held.
func (s *Session) closeLocked(reason string) {
	if reason != "" {
		if frame, err := newEnvelope(msgGameEnded, GameEndedPayload{Reason: reason}); err == nil {
			for ep := range s.conns {
				ep.Enqueue(frame)
			}
		}
	}

	for ep := range s.conns {
		ep.Close()
		delete(s.conns, ep)
	}
	s.connTeams = make(map[string]int)
	s.closed = true
}

// broadcastStateLocked sends the full authoritative state to every live
// connection. Full-state replacement is the only sync mechanism: clients
// never apply deltas, so a dropped or reordered frame cannot corrupt
// their view. Assumes s.mu held.
func (s *Session) broadcastStateLocked() {
	frame, err := newEnvelope(msgGameState, s.state)
	if err != nil {
		logf(s.cfg, "ERROR: Marshal state for %s: %v", s.id, err)
		return
	}
	s.sendAllLocked(frame)
}

// sendAllLocked fans a frame out to every live connection. Each send is
// independent: one slow or broken connection is dropped without
// stalling delivery to the rest. Assumes s.mu held.
func (s *Session) sendAllLocked(frame []byte) {
	for ep := range s.conns {
		if !ep.Enqueue(frame) {
			delete(s.conns, ep)
			delete(s.connTeams, ep.ID())
			ep.Close()
		}
	}
}

// notifyOthersLocked sends a notification to every live connection
// except skip (nil skips no one). Assumes s.mu held.
func (s *Session) notifyOthersLocked(skip endpoint, msgType string, payload any) {
	frame, err := newEnvelope(msgType, payload)
	if err != nil {
		return
	}

	for ep := range s.conns {
		if ep == skip {
			continue
		}
		if !ep.Enqueue(frame) {
			delete(s.conns, ep)
			delete(s.connTeams, ep.ID())
			ep.Close()
		}
	}
}

// connCount reports the number of live connections.
func (s *Session) connCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
