package main

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	// Time allowed to write a frame to a peer.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from a peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one WebSocket connection, known to sessions only through the
// endpoint interface so the underlying transport can be swapped without
// touching session logic.
type client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool

	sess *Session // game association; nil until a join_game succeeds
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
	}
}

func (c *client) ID() string {
	return c.id
}

// Enqueue hands a frame to the write pump without blocking. A full queue
// means the peer is too slow to keep up; the frame is refused and the
// caller treats the connection as dead.
func (c *client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// gateway accepts connections, parses inbound envelopes into typed
// events, dispatches them to the right session, and owns the heartbeat.
type gateway struct {
	cfg   *Config
	reg   *Registry
	words *wordList
}

func newGateway(cfg *Config, reg *Registry, words *wordList) *gateway {
	return &gateway{
		cfg:   cfg,
		reg:   reg,
		words: words,
	}
}

func (g *gateway) pongWait() time.Duration {
	return 2 * g.cfg.heartbeatInterval
}

// serveWS upgrades a request and runs the connection until it dies.
func (g *gateway) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(g.cfg, "ERROR: Upgrade from %s: %v", realIP(r), err)
			return
		}

		c := newClient(conn)

		go g.writePump(c)
		g.readPump(c, ps.ByName("gameid"))
	}
}

// readPump reads frames off the wire and dispatches them. A peer that
// misses every pong for a full pong-wait window trips the read deadline,
// which lands here as a read error and counts as a disconnect.
func (g *gateway) readPump(c *client, gameID string) {
	defer func() {
		if c.sess != nil {
			c.sess.leave(c)
		}
		c.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(g.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(g.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logf(g.cfg, "ERROR: Read: %v", err)
			}
			return
		}

		g.dispatch(c, gameID, data)
	}
}

// writePump drains the client's queue onto the wire and pings the peer
// on every heartbeat interval.
func (g *gateway) writePump(c *client) {
	ticker := time.NewTicker(g.cfg.heartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame. Protocol and state errors go back
// to the offending connection only; nothing here may crash the process
// or leave a session half-mutated.
func (g *gateway) dispatch(c *client, routeGameID string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			logf(g.cfg, "ERROR: Panic handling message: %v", r)
			g.sendError(c, "internal error")
		}
	}()

	msgType, payload, err := decodeClientEvent(data)
	if err != nil {
		g.sendError(c, err.Error())
		return
	}

	if c.sess == nil && msgType != msgJoinGame {
		g.sendError(c, "join a game first")
		return
	}

	switch msgType {
	case msgJoinGame:
		g.handleJoin(c, routeGameID, payload.(*JoinGamePayload))

	case msgStartGame:
		if _, err := c.sess.start(c, payload.(*StartGamePayload)); err != nil {
			g.sendError(c, err.Error())
		}

	case msgEndTurn:
		p := payload.(*EndTurnPayload)
		if _, err := c.sess.endTurn(p.TeamID, p.Score, p.Words); err != nil {
			g.sendError(c, err.Error())
		}

	case msgTurnStarted:
		c.sess.turnStarted(payload.(*TurnStartedPayload).TeamID)

	case msgNextWord:
		g.handleNextWord(c, payload.(*NextWordPayload))
	}
}

// handleJoin implements create-or-join: an unknown or empty game id
// opens a fresh session, an active one is joined. The assigned id rides
// back in the game_state snapshot.
func (g *gateway) handleJoin(c *client, routeGameID string, p *JoinGamePayload) {
	if c.sess != nil {
		g.sendError(c, "already in a game")
		return
	}

	gameID := p.GameID
	if gameID == "" {
		gameID = routeGameID
	}

	sess, _, err := g.reg.getOrCreate(gameID)
	if err != nil {
		g.sendError(c, err.Error())
		return
	}

	state, err := sess.join(c, p.TeamName)
	if err != nil {
		g.sendError(c, err.Error())
		return
	}
	c.sess = sess

	frame, err := newEnvelope(msgGameState, state)
	if err != nil {
		logf(g.cfg, "ERROR: Marshal state for %s: %v", sess.id, err)
		return
	}
	c.Enqueue(frame)
}

// handleNextWord serves the word provider contract: a fresh word from
// the requested category, filtered by the game's difficulties, never
// repeating a used word. Advisory; game state is read, not written.
func (g *gateway) handleNextWord(c *client, p *NextWordPayload) {
	state := c.sess.snapshot()

	category := p.Category
	if category == "" {
		category = g.words.randomCategory(state.IncludedCategories)
	}

	word, ok := g.words.nextWord(category, state.IncludedDifficulties, p.UsedWords)

	frame, err := newEnvelope(msgWord, WordPayload{
		Word:      word,
		Category:  category,
		Exhausted: !ok,
	})
	if err != nil {
		return
	}
	c.Enqueue(frame)
}

func (g *gateway) sendError(c *client, text string) {
	frame, err := newEnvelope(msgError, ErrorPayload{Message: text})
	if err != nil {
		return
	}
	c.Enqueue(frame)
}

// qrHandler generates a PNG QR code for the current game URL, for
// sharing a session across the room.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// redirectNewGame handles GET on the game root by generating a fresh
// game id and redirecting to its lobby page. The session itself is
// created lazily by the first join_game over the socket.
func redirectNewGame(cfg *Config, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := randomGameID(gameIDLength)
		logf(cfg, "GAMES: Redirecting to new game %s/%s", path, gameID)
		http.Redirect(w, r, path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerWordGame sets up routes so that:
//   - $path              → redirects to a new random game
//   - $path/:gameid      → HTML client
//   - $path/:gameid/ws   → WebSocket for that game
//   - $path/:gameid/qr   → PNG QR code for that game URL
func registerWordGame(cfg *Config, path string, mux *httprouter.Router, reg *Registry) *gateway {
	g := newGateway(cfg, reg, defaultWords())

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, cfg.prefix+path))

	mux.GET(cfg.prefix+path+"/:gameid", indexHandler(cfg))

	mux.GET(cfg.prefix+path+"/:gameid/ws", g.serveWS())

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)

	return g
}
