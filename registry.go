package main

import (
	"crypto/rand"
	"sync"
	"time"
)

// Game ids use a confusion-free alphabet (no 0/O, 1/I/L) so they can be
// read aloud across a room. Six characters gives 32^6 ≈ 1.07e9 ids.
const (
	gameIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	gameIDLength   = 6
)

func randomGameID(n int) string {
	const letters = gameIDAlphabet
	const max = byte(255 - (256 % len(letters)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, letters[int(b)%len(letters)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}

	return string(out)
}

// Registry is the authoritative map from game id to session. It is an
// ordinary value with an explicit lifecycle, so tests can run several
// independent registries in one process.
type Registry struct {
	cfg *Config

	mu       sync.Mutex
	sessions map[string]*Session
	done     chan struct{}
	once     sync.Once
}

func newRegistry(cfg *Config) *Registry {
	r := &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	if cfg.sessionTimeout > 0 {
		go r.reaperLoop()
	}
	return r
}

// create opens a new session. An empty requestedID gets a fresh random
// id, collision-checked against active sessions; a requested id already
// in use is refused rather than silently remapped.
func (r *Registry) create(requestedID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := requestedID
	if id == "" {
		id = r.newGameIDLocked()
	} else if _, exists := r.sessions[id]; exists {
		return nil, ErrDuplicateSession
	}

	sess := newSession(r.cfg, id)
	sess.remove = func() { r.remove(id) }
	r.sessions[id] = sess

	logf(r.cfg, "GAMES: Created game %s", id)

	return sess, nil
}

// get looks up an active session.
func (r *Registry) get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// getOrCreate joins an existing session or opens a new one, the
// create-or-join semantics behind the join_game message. The bool
// reports whether the session already existed.
func (r *Registry) getOrCreate(id string) (*Session, bool, error) {
	if id != "" {
		if sess, ok := r.get(id); ok {
			return sess, true, nil
		}
	}

	sess, err := r.create(id)
	if err != nil {
		// Lost a race with a concurrent create for the same id; the
		// winner's session is the one to join.
		if sess, ok := r.get(id); ok {
			return sess, true, nil
		}
		return nil, false, err
	}

	return sess, false, nil
}

// remove detaches a session from the registry. Idempotent; removing an
// unknown id is a no-op.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// count reports the number of active sessions.
func (r *Registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// shutdown stops the reaper and ends every active session. Safe to call
// more than once.
func (r *Registry) shutdown() {
	r.once.Do(func() { close(r.done) })

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.end("server_shutdown")
	}
}

// newGameIDLocked generates a crypto-random game id that doesn't collide
// with an active session. Assumes r.mu held.
func (r *Registry) newGameIDLocked() string {
	for {
		id := randomGameID(gameIDLength)
		if _, exists := r.sessions[id]; !exists {
			return id
		}
	}
}

// reaperLoop periodically ends sessions that have been idle longer than
// the configured timeout.
func (r *Registry) reaperLoop() {
	ticker := time.NewTicker(r.cfg.sessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-r.cfg.sessionTimeout)

		r.mu.Lock()
		idle := make([]*Session, 0)
		for _, sess := range r.sessions {
			if sess.idle().Before(cutoff) {
				idle = append(idle, sess)
			}
		}
		r.mu.Unlock()

		for _, sess := range idle {
			logf(r.cfg, "GAMES: Reaping idle game %s", sess.id)
			sess.end("session_timeout")
		}
	}
}
