package wire

// SettingsMsg carries the deck/round configuration and scoring toggles.
type SettingsMsg struct {
	CardsInRound []int `json:"cards"`  // cards dealt per round, in round order
	BonusTwos    bool  `json:"bonus2"` // bonus for winning a trick containing a two
}

// SeatInfo is one roster seat as broadcast to followers.
type SeatInfo struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// PlayersMsg is the payload for players/previewPlayers/gamePlayers.
type PlayersMsg struct {
	Players []SeatInfo `json:"players"`
}

// DealerMsg announces the dealer-of-record seat.
type DealerMsg struct {
	Dealer int `json:"dealer"`
}

// DealMsg carries a full deal: seat → compact card identifiers.
type DealMsg struct {
	Round int     `json:"round"`
	Deal  [][]int `json:"deal"`
}

// ScoreDelta is one scorepad cell delta. Each field is independently
// unset (unaffected), null (cleared) or set.
type ScoreDelta struct {
	Bid  Opt[int] `json:"bid,omitzero"`
	Made Opt[int] `json:"made,omitzero"`
	Twos Opt[int] `json:"twos,omitzero"`
}

// ScoresMsg is the payload for scores (delta) and allscores (full):
// seat → round → cell delta.
type ScoresMsg struct {
	Scores map[int]map[int]ScoreDelta `json:"scores"`
}

// HandStateMsg is the full hand-in-progress state.
type HandStateMsg struct {
	Round      int      `json:"round"`
	Hands      [][]int  `json:"hands"` // remaining cards per seat
	Trick      int      `json:"trick"`
	TrickCards []int    `json:"trickCards"`
	ToLead     int      `json:"toLead"`
	Made       []int    `json:"made"`
	Twos       []int    `json:"twos"`
	LastCards  []int    `json:"lastCards,omitempty"`
	LastToLead Opt[int] `json:"lastToLead,omitzero"`
}

// PlayedMsg announces a single card played.
type PlayedMsg struct {
	Round  int `json:"round"`
	Trick  int `json:"trick"`
	Player int `json:"player"` // seat
	Card   int `json:"card"`
}

// AutoPlayMsg tells robot followers how many hands to play unattended.
// Zero disables auto-play.
type AutoPlayMsg struct {
	Hands int `json:"hands"`
}

// ThumbnailMsg carries a player thumbnail. Image and Date use three-way
// fields so a removed thumbnail (null) is distinct from an unaffected one.
type ThumbnailMsg struct {
	PlayerID string      `json:"playerId"`
	Image    Opt[string] `json:"image,omitzero"` // base64 PNG
	Date     Opt[string] `json:"date,omitzero"`
}

// RequestThumbnailMsg asks a peer for its copy of a player thumbnail.
type RequestThumbnailMsg struct {
	PlayerID string `json:"playerId"`
}

// StatusMsg is a human-readable notice shown by the receiving device.
type StatusMsg struct {
	Message string `json:"message"`
}

// RefreshRequestMsg solicits a full state bundle; sent by a client once
// per (re)connect, never otherwise.
type RefreshRequestMsg struct{}

// PlayHandMsg signals followers to move into the play-hand screen.
type PlayHandMsg struct{}

// DisconnectMsg carries the human-readable reason a session is being
// torn down; delivered over the established channel before teardown.
type DisconnectMsg struct {
	Reason string `json:"reason"`
}

// TestConnectionMsg / TestResponseMsg are the liveness echo pair.
type TestConnectionMsg struct{}
type TestResponseMsg struct{}

// StateMsg is the composite "state" bundle: each non-nil sub-payload is
// redispatched through the normal handler as if it had arrived
// standalone, in the fixed order returned by Each.
type StateMsg struct {
	Settings  *SettingsMsg  `json:"settings,omitempty"`
	Players   *PlayersMsg   `json:"players,omitempty"`
	Dealer    *DealerMsg    `json:"dealer,omitempty"`
	Deal      *DealMsg      `json:"deal,omitempty"`
	AllScores *ScoresMsg    `json:"allscores,omitempty"`
	AutoPlay  *AutoPlayMsg  `json:"autoPlay,omitempty"`
	HandState *HandStateMsg `json:"handState,omitempty"`
	PlayHand  *PlayHandMsg  `json:"playHand,omitempty"`
}

// Each visits the present sub-payloads in dispatch order:
// settings → players → dealer → deal → scores → auto-play → hand-state →
// play-signal.
func (b *StateMsg) Each(fn func(descriptor string, payload any)) {
	if b.Settings != nil {
		fn(DescSettings, b.Settings)
	}
	if b.Players != nil {
		fn(DescPlayers, b.Players)
	}
	if b.Dealer != nil {
		fn(DescDealer, b.Dealer)
	}
	if b.Deal != nil {
		fn(DescDeal, b.Deal)
	}
	if b.AllScores != nil {
		fn(DescAllScores, b.AllScores)
	}
	if b.AutoPlay != nil {
		fn(DescAutoPlay, b.AutoPlay)
	}
	if b.HandState != nil {
		fn(DescHandState, b.HandState)
	}
	if b.PlayHand != nil {
		fn(DescPlayHand, b.PlayHand)
	}
}
