package game

import (
	"fmt"
	"strings"
)

// SeatPlayer is one roster seat as seen in the shared game state.
type SeatPlayer struct {
	PlayerID  string
	Name      string
	Connected bool
}

// State is the shared game-state model. The host controller owns the
// authoritative copy and is its sole writer; each follower holds a local
// projection updated only by applied host deltas.
type State struct {
	Settings Settings
	Players  []SeatPlayer
	Dealer   int
	Round    int // current 1-based round, 0 before the first deal
	Deal     [][]int
	Scorepad *Scorepad
	Hand     *HandState

	// AutoPlayHands tells robot followers how many hands to play
	// unattended; zero disables.
	AutoPlayHands int
}

// NewState creates a fresh model for the given settings with an empty
// roster.
func NewState(settings Settings) *State {
	return &State{Settings: settings, Dealer: 0}
}

// ResetScorepad sizes the ledger for the current roster.
func (s *State) ResetScorepad() {
	s.Scorepad = NewScorepad(len(s.Players), s.Settings.Rounds(), s.Settings.BonusTwos)
}

// SeatOf returns the seat of a player id, or -1.
func (s *State) SeatOf(playerID string) int {
	for i, p := range s.Players {
		if p.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (s *State) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "round=%d dealer=%d players: ", s.Round, s.Dealer)
	for _, p := range s.Players {
		fmt.Fprintf(&sb, "%s(connected=%t) ", p.Name, p.Connected)
	}
	return sb.String()
}
