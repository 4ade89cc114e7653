package main

import (
	"fmt"
	"slices"
)

// Game constants, mirrored by the bundled word list.
const (
	defaultTotalRounds  = 3
	defaultTurnDuration = 30
)

// Team is one scoring unit in a game. Teams are appended in join order and
// never reordered; their index in GameState.Teams is the turn order.
type Team struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	RoundScores []int  `json:"roundScores"`
	IsHost      bool   `json:"isHost,omitempty"`
}

// WordResult records the outcome of a single word during a turn.
type WordResult struct {
	Word     string `json:"word"`
	Category string `json:"category"`
	Correct  bool   `json:"correct"`
}

// GameState is the authoritative state of one game session. It is owned
// exclusively by that session's event loop; everyone else sees copies.
type GameState struct {
	GameID               string   `json:"gameId"`
	Teams                []Team   `json:"teams"`
	CurrentRound         int      `json:"currentRound"`
	TotalRounds          int      `json:"totalRounds"`
	CurrentTeamIndex     int      `json:"currentTeamIndex"`
	IncludedCategories   []string `json:"includedCategories"`
	IncludedDifficulties []string `json:"includedDifficulties"`
	TurnDuration         int      `json:"turnDuration"`
	IsGameStarted        bool     `json:"isGameStarted"`
	IsGameOver           bool     `json:"isGameOver"`
	HostID               string   `json:"hostId"`
}

func newGameState(gameID, hostID string) *GameState {
	return &GameState{
		GameID:               gameID,
		Teams:                []Team{},
		CurrentRound:         1,
		TotalRounds:          defaultTotalRounds,
		CurrentTeamIndex:     0,
		IncludedCategories:   []string{},
		IncludedDifficulties: []string{},
		TurnDuration:         defaultTurnDuration,
		HostID:               hostID,
	}
}

// clone returns a deep copy, safe to hand outside the owning event loop.
func (s *GameState) clone() *GameState {
	out := *s
	out.Teams = make([]Team, len(s.Teams))
	for i, t := range s.Teams {
		out.Teams[i] = t
		out.Teams[i].RoundScores = slices.Clone(t.RoundScores)
	}
	out.IncludedCategories = slices.Clone(s.IncludedCategories)
	out.IncludedDifficulties = slices.Clone(s.IncludedDifficulties)
	return &out
}

func (s *GameState) teamByID(id int) *Team {
	for i := range s.Teams {
		if s.Teams[i].ID == id {
			return &s.Teams[i]
		}
	}
	return nil
}

func (s *GameState) teamByName(name string) *Team {
	for i := range s.Teams {
		if s.Teams[i].Name == name {
			return &s.Teams[i]
		}
	}
	return nil
}

// addTeam appends a team during the lobby phase. The first team becomes
// the host team and gets id 1; later teams get the next free id.
func (s *GameState) addTeam(name string) (*Team, error) {
	if s.IsGameStarted {
		return nil, ErrGameStarted
	}

	team := Team{
		ID:          len(s.Teams) + 1,
		Name:        name,
		RoundScores: []int{},
		IsHost:      len(s.Teams) == 0,
	}
	s.Teams = append(s.Teams, team)

	return &s.Teams[len(s.Teams)-1], nil
}

// startGame applies the lobby→started transition. Only the fields the
// start event is permitted to touch are written; GameID and HostID are
// never overwritten by a payload.
func (s *GameState) startGame(teams []Team, categories, difficulties []string, turnDuration, totalRounds int) error {
	if s.IsGameStarted {
		return ErrGameStarted
	}

	if len(teams) > 0 {
		// The host's team setup is authoritative: fresh ids in the
		// order given, scores zeroed, first team is host.
		s.Teams = make([]Team, len(teams))
		for i, t := range teams {
			s.Teams[i] = Team{
				ID:          i + 1,
				Name:        t.Name,
				RoundScores: []int{},
				IsHost:      i == 0,
			}
		}
	}
	if len(s.Teams) == 0 {
		return fmt.Errorf("%w: cannot start with no teams", ErrInvalidState)
	}

	if totalRounds < 1 {
		totalRounds = defaultTotalRounds
	}
	if turnDuration < 1 {
		turnDuration = defaultTurnDuration
	}

	s.IncludedCategories = slices.Clone(categories)
	s.IncludedDifficulties = slices.Clone(difficulties)
	s.TurnDuration = turnDuration
	s.TotalRounds = totalRounds
	s.CurrentRound = 1
	s.CurrentTeamIndex = 0
	s.IsGameStarted = true
	s.IsGameOver = false

	return nil
}

// recordTurnResult adds delta to a team's score and appends it to the
// team's round history. This is the only mutation path for scores.
func (s *GameState) recordTurnResult(teamID, delta int) error {
	team := s.teamByID(teamID)
	if team == nil {
		return fmt.Errorf("%w: no team with id %d", ErrInvalidState, teamID)
	}

	team.Score += delta
	team.RoundScores = append(team.RoundScores, delta)

	return nil
}

// advanceTurn computes the next team, round, and game-over flag after a
// turn ends. It is deterministic: the same state always yields the same
// result. When the last team of the final round finishes, the state
// freezes at that team and round rather than advancing past the end.
func (s *GameState) advanceTurn() error {
	if !s.IsGameStarted || s.IsGameOver {
		return ErrInvalidState
	}
	if len(s.Teams) == 0 {
		return fmt.Errorf("%w: no teams", ErrInvalidState)
	}

	nextIndex := (s.CurrentTeamIndex + 1) % len(s.Teams)
	roundComplete := nextIndex == 0

	nextRound := s.CurrentRound
	if roundComplete {
		nextRound++
	}

	if nextRound > s.TotalRounds {
		s.IsGameOver = true
		return nil
	}

	s.CurrentTeamIndex = nextIndex
	s.CurrentRound = nextRound

	return nil
}
