// Package robot is an unattended follower: it joins a hosted game over
// any backend, bids mechanically and plays a legal card whenever its
// seat is due. Used by the demo CLI and the integration tests to fill
// seats.
package robot

import (
	"time"

	"k8s.io/klog/v2"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/client"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/game"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/profile"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/transport"
)

// Robot drives a client.Controller without a UI.
type Robot struct {
	ctrl     *client.Controller
	identity transport.Identity

	// ThinkTime is an optional pause before each action so demo games
	// are watchable. Zero acts immediately.
	ThinkTime time.Duration

	nudge chan struct{}
	done  chan struct{}
}

// New creates a robot on its own follower controller.
func New(backend transport.Backend, identity transport.Identity) *Robot {
	r := &Robot{
		identity: identity,
		nudge:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	r.ctrl = client.NewController(backend, identity, profile.LogNotifier{})
	r.ctrl.SetOnChange(func(string) { r.poke() })
	return r
}

// Controller exposes the underlying follower controller.
func (r *Robot) Controller() *client.Controller { return r.ctrl }

// Join connects to the host peer and starts the acting loop.
func (r *Robot) Join(host *transport.Peer) bool {
	ok := r.ctrl.Connect(host)
	go r.loop()
	return ok
}

// Stop halts the acting loop and the underlying session.
func (r *Robot) Stop() {
	close(r.done)
	r.ctrl.Stop()
}

func (r *Robot) poke() {
	select {
	case r.nudge <- struct{}{}:
	default:
	}
}

func (r *Robot) loop() {
	for {
		select {
		case <-r.done:
			return
		case <-r.nudge:
		}
		if r.ThinkTime > 0 {
			time.Sleep(r.ThinkTime)
		}
		r.act()
	}
}

// act takes at most one action per nudge; the resulting echo from the
// host nudges again, so multi-step turns still complete.
func (r *Robot) act() {
	if r.ctrl.Idle() || r.ctrl.AwaitingState() || r.ctrl.InputSuppressed() {
		return
	}
	if _, pending := r.ctrl.PendingBid(); pending {
		return
	}

	bid, card := -1, -1
	r.ctrl.WithState(func(s *game.State) {
		seat := s.SeatOf(r.identity.PlayerID)
		if seat < 0 {
			return
		}
		if r.bidDue(s, seat) {
			bid = r.chooseBid(s, seat)
			return
		}
		h := s.Hand
		if h == nil || h.ToPlay() != seat || len(h.Hands[seat]) == 0 {
			return
		}
		card = r.chooseCard(h, seat)
	})

	switch {
	case bid >= 0:
		klog.V(1).Infof("Robot %s bids %d", r.identity.PlayerName, bid)
		r.ctrl.EnterBid(bid)
	case card >= 0:
		klog.V(1).Infof("Robot %s plays %s", r.identity.PlayerName, game.Card(card))
		r.ctrl.PlayCard(card)
	}
}

func (r *Robot) bidDue(state *game.State, seat int) bool {
	if state.Round < 1 || state.Scorepad == nil {
		return false
	}
	cell := state.Scorepad.Cell(seat, state.Round)
	return cell.Bid.IsZero()
}

// chooseBid counts trumps and aces, capped to the hand size.
func (r *Robot) chooseBid(state *game.State, seat int) int {
	if seat >= len(state.Deal) {
		return 0
	}
	trump := state.Settings.Trump(state.Round)
	bid := 0
	for _, c := range state.Deal[seat] {
		card := game.Card(c)
		if card.Suit() == trump && trump != game.NoTrump {
			bid++
		} else if card.Rank() == game.RankAce {
			bid++
		}
	}
	if max := state.Settings.CardsInRoundN(state.Round); bid > max {
		bid = max
	}
	return bid
}

// chooseCard follows the suit led with its lowest card, or discards its
// lowest card; leading, it plays its highest.
func (r *Robot) chooseCard(hand *game.HandState, seat int) int {
	cards := hand.Hands[seat]
	if len(hand.TrickCards) == 0 {
		best := cards[0]
		for _, c := range cards[1:] {
			if game.Card(c).Rank() > game.Card(best).Rank() {
				best = c
			}
		}
		return best
	}

	led := game.Card(hand.TrickCards[0]).Suit()
	lowest, lowestInSuit := -1, -1
	for _, c := range cards {
		card := game.Card(c)
		if card.Suit() == led && (lowestInSuit < 0 || card.Rank() < game.Card(lowestInSuit).Rank()) {
			lowestInSuit = c
		}
		if lowest < 0 || card.Rank() < game.Card(lowest).Rank() {
			lowest = c
		}
	}
	if lowestInSuit >= 0 {
		return lowestInSuit
	}
	return lowest
}
