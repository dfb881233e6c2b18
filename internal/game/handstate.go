package game

import (
	"fmt"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

// HandState is the hand-in-progress model: remaining hands, the trick
// being played, tallies so far and the last completed trick kept for UI
// replay. Mutated only through PlayCard so the host and any previewing
// client resolve tricks identically.
type HandState struct {
	Round      int
	Trump      Suit
	BonusTwos  bool
	Hands      [][]int
	Trick      int // 1-based
	TrickCards []int
	ToLead     int
	Made       []int
	Twos       []int
	LastCards  []int
	LastToLead int // -1 until a trick completes
}

// NewHandState starts a hand from a fresh deal with toLead leading the
// first trick.
func NewHandState(round int, trump Suit, bonusTwos bool, deal [][]int, toLead int) *HandState {
	hands := make([][]int, len(deal))
	for i, h := range deal {
		hands[i] = append([]int(nil), h...)
	}
	return &HandState{
		Round:      round,
		Trump:      trump,
		BonusTwos:  bonusTwos,
		Hands:      hands,
		Trick:      1,
		ToLead:     toLead,
		Made:       make([]int, len(deal)),
		Twos:       make([]int, len(deal)),
		LastToLead: -1,
	}
}

// Seats is the number of players in the hand.
func (h *HandState) Seats() int { return len(h.Hands) }

// ToPlay is the seat due to play the next card.
func (h *HandState) ToPlay() int {
	return (h.ToLead + len(h.TrickCards)) % h.Seats()
}

// Complete reports whether every card of the hand has been played.
func (h *HandState) Complete() bool {
	if len(h.TrickCards) != 0 {
		return false
	}
	for _, hand := range h.Hands {
		if len(hand) > 0 {
			return false
		}
	}
	return true
}

// PlayCard plays a card for the seat currently to play. When the trick
// fills it is resolved: the winner's tallies grow, the trick moves to
// LastCards for replay and the winner leads the next trick.
func (h *HandState) PlayCard(card int) error {
	seat := h.ToPlay()
	if !h.removeFromHand(seat, card) {
		return fmt.Errorf("seat %d does not hold %s", seat, Card(card))
	}
	h.TrickCards = append(h.TrickCards, card)
	if len(h.TrickCards) < h.Seats() {
		return nil
	}

	cards := make([]Card, len(h.TrickCards))
	for i, c := range h.TrickCards {
		cards[i] = Card(c)
	}
	winner := (h.ToLead + WinnerOffset(cards, h.Trump)) % h.Seats()
	h.Made[winner]++
	if h.BonusTwos {
		h.Twos[winner] += TwosInTrick(cards)
	}

	h.LastCards = h.TrickCards
	h.LastToLead = h.ToLead
	h.TrickCards = nil
	h.ToLead = winner
	h.Trick++
	return nil
}

func (h *HandState) removeFromHand(seat, card int) bool {
	hand := h.Hands[seat]
	for i, c := range hand {
		if c == card {
			h.Hands[seat] = append(hand[:i:i], hand[i+1:]...)
			return true
		}
	}
	return false
}

// Message encodes the hand state for the wire.
func (h *HandState) Message() *wire.HandStateMsg {
	msg := &wire.HandStateMsg{
		Round:      h.Round,
		Hands:      h.Hands,
		Trick:      h.Trick,
		TrickCards: h.TrickCards,
		ToLead:     h.ToLead,
		Made:       h.Made,
		Twos:       h.Twos,
		LastCards:  h.LastCards,
	}
	if h.LastToLead >= 0 {
		msg.LastToLead = wire.Some(h.LastToLead)
	}
	return msg
}

// HandStateFromMsg rebuilds a HandState from the wire form. Trump and
// the bonus rule are derived from settings, not carried on the wire.
func HandStateFromMsg(msg *wire.HandStateMsg, trump Suit, bonusTwos bool) *HandState {
	h := &HandState{
		Round:      msg.Round,
		Trump:      trump,
		BonusTwos:  bonusTwos,
		Hands:      msg.Hands,
		Trick:      msg.Trick,
		TrickCards: msg.TrickCards,
		ToLead:     msg.ToLead,
		Made:       msg.Made,
		Twos:       msg.Twos,
		LastCards:  msg.LastCards,
		LastToLead: msg.LastToLead.Or(-1),
	}
	if h.Trick == 0 {
		h.Trick = 1
	}
	return h
}
