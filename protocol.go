package main

import (
	"encoding/json"
	"fmt"
)

// Message types understood by the gateway. Inbound types not listed here
// are answered with an error envelope and otherwise ignored.
const (
	msgJoinGame    = "join_game"
	msgStartGame   = "start_game"
	msgEndTurn     = "end_turn"
	msgTurnStarted = "turn_started"
	msgNextWord    = "next_word"

	msgGameState    = "game_state"
	msgPlayerJoined = "player_joined"
	msgPlayerLeft   = "player_left"
	msgGameEnded    = "game_ended"
	msgWord         = "word"
	msgError        = "error"
)

// Envelope is the framing for every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinGamePayload struct {
	GameID   string `json:"gameId"`
	TeamName string `json:"teamName,omitempty"`
}

type StartGamePayload struct {
	Teams                []Team   `json:"teams"`
	IncludedCategories   []string `json:"includedCategories"`
	IncludedDifficulties []string `json:"includedDifficulties"`
	TurnDuration         int      `json:"turnDuration"`
	TotalRounds          int      `json:"totalRounds"`
}

type EndTurnPayload struct {
	TeamID int          `json:"teamId"`
	Score  int          `json:"score"`
	Words  []WordResult `json:"words"`
}

type TurnStartedPayload struct {
	TeamID int `json:"teamId"`
}

type NextWordPayload struct {
	Category  string   `json:"category,omitempty"`
	UsedWords []string `json:"usedWords,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type PlayerJoinedPayload struct {
	TeamName string `json:"teamName"`
}

type PlayerLeftPayload struct {
	GameID string `json:"gameId"`
}

type GameEndedPayload struct {
	Reason string `json:"reason"`
}

type WordPayload struct {
	Word      string `json:"word,omitempty"`
	Category  string `json:"category,omitempty"`
	Exhausted bool   `json:"exhausted,omitempty"`
}

// newEnvelope marshals a payload into a framed message, ready to send.
func newEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
	}

	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// decodeClientEvent parses one inbound frame into its typed payload,
// keyed by the envelope's type tag. Unknown types and malformed payloads
// are errors; neither reaches a game session.
func decodeClientEvent(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("malformed envelope: %w", err)
	}

	var payload any
	switch env.Type {
	case msgJoinGame:
		payload = &JoinGamePayload{}
	case msgStartGame:
		payload = &StartGamePayload{}
	case msgEndTurn:
		payload = &EndTurnPayload{}
	case msgTurnStarted:
		payload = &TurnStartedPayload{}
	case msgNextWord:
		payload = &NextWordPayload{}
	default:
		return env.Type, nil, fmt.Errorf("unknown message type %q", env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return env.Type, nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
	}

	return env.Type, payload, nil
}
