package main

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// adapter is the client-side session adapter: one local, eventually
// consistent copy of a game's state, tracking whatever the gateway last
// broadcast. Every game_state frame replaces the local copy outright;
// nothing is ever merged. On reconnect the adapter re-sends join_game
// with the same game id to resynchronize.
type adapter struct {
	url string

	mu       sync.RWMutex
	conn     *websocket.Conn
	state    *GameState
	gameID   string
	teamName string
	closed   bool

	// onNotice receives every non-state frame (player_joined, errors,
	// words, game_ended). Optional; set before connect.
	onNotice func(env Envelope)

	done chan struct{}
}

func newAdapter(url string) *adapter {
	return &adapter{
		url:  url,
		done: make(chan struct{}),
	}
}

// connect dials the gateway and starts consuming frames.
func (a *adapter) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(a.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.url, err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	go a.readLoop(conn)

	return nil
}

// joinGame requests create-or-join for gameID. An empty id asks the
// server to open a fresh game; the assigned id arrives with the first
// game_state snapshot.
func (a *adapter) joinGame(gameID, teamName string) error {
	a.mu.Lock()
	a.gameID = gameID
	a.teamName = teamName
	a.mu.Unlock()

	return a.send(msgJoinGame, JoinGamePayload{GameID: gameID, TeamName: teamName})
}

// reconnect dials again and re-issues join_game with the remembered
// game id, the recovery path for a stale or dropped connection.
func (a *adapter) reconnect() error {
	a.mu.Lock()
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
	gameID, teamName := a.gameID, a.teamName
	a.mu.Unlock()

	if err := a.connect(); err != nil {
		return err
	}

	return a.send(msgJoinGame, JoinGamePayload{GameID: gameID, TeamName: teamName})
}

func (a *adapter) startGame(p StartGamePayload) error {
	return a.send(msgStartGame, p)
}

func (a *adapter) endTurn(teamID, score int, words []WordResult) error {
	return a.send(msgEndTurn, EndTurnPayload{TeamID: teamID, Score: score, Words: words})
}

func (a *adapter) announceTurn(teamID int) error {
	return a.send(msgTurnStarted, TurnStartedPayload{TeamID: teamID})
}

func (a *adapter) requestWord(category string, used []string) error {
	return a.send(msgNextWord, NextWordPayload{Category: category, UsedWords: used})
}

// snapshot returns the last state the gateway broadcast, or nil before
// the first game_state arrives.
func (a *adapter) snapshot() *GameState {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.state == nil {
		return nil
	}
	return a.state.clone()
}

func (a *adapter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	close(a.done)
	if a.conn != nil {
		_ = a.conn.Close()
	}
}

func (a *adapter) send(msgType string, payload any) error {
	frame, err := newEnvelope(msgType, payload)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return fmt.Errorf("not connected")
	}
	return a.conn.WriteMessage(websocket.TextMessage, frame)
}

func (a *adapter) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		if env.Type == msgGameState {
			var state GameState
			if err := json.Unmarshal(env.Payload, &state); err != nil {
				continue
			}

			a.mu.Lock()
			a.state = &state
			a.gameID = state.GameID
			a.mu.Unlock()
			continue
		}

		a.mu.RLock()
		notice := a.onNotice
		a.mu.RUnlock()

		if notice != nil {
			notice(env)
		}

		select {
		case <-a.done:
			return
		default:
		}
	}
}
