// Package client implements the follower role: it requests one full
// snapshot per (re)connect, applies host-authored deltas to a local
// read-only projection, and routes every mutation it wants through a
// message to the host.
package client

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/game"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/profile"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/transport"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

// Controller is the follower-side controller for one session.
type Controller struct {
	mu       sync.Mutex
	backend  transport.Backend
	identity transport.Identity
	state    *game.State
	queue    *wire.Queue[*transport.Peer]
	notify   profile.Notifier

	hostPeer      *transport.Peer
	awaitingState bool
	suppressInput bool
	idle          bool
	purpose       transport.Purpose

	// pendingBid is the locally-authored bid awaiting the host's echo.
	pendingBid wire.Opt[int]

	// after collects notifier calls made under the lock; handleMessage
	// runs them once the lock is released.
	after []func()

	onChange func(what string)
}

// NewController wires a follower controller onto a transport backend.
func NewController(backend transport.Backend, identity transport.Identity, notify profile.Notifier) *Controller {
	c := &Controller{
		backend:  backend,
		identity: identity,
		state:    game.NewState(game.Settings{}),
		notify:   notify,
		idle:     true,
	}
	c.queue = wire.NewQueue(c.handleMessage)
	backend.SetDelegate(c)
	return c
}

// SetOnChange registers the view-redraw callback; what names the
// affected area ("players", "scores", "hand", ...).
func (c *Controller) SetOnChange(fn func(what string)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Hold and Release expose the handler-busy gate so a screen transition
// can defer queue draining until it completes.
func (c *Controller) Hold()    { c.queue.Hold() }
func (c *Controller) Release() { c.queue.Release() }

// State returns the local projection. Read-only for callers: it is
// mutated solely by applied host deltas (and the local pending bid).
func (c *Controller) State() *game.State { return c.state }

// WithState runs fn with the projection locked, for readers that race
// the message queue.
func (c *Controller) WithState(fn func(s *game.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.state)
}

// ShareOnly marks this endpoint as a score viewer: it receives the
// host's broadcasts but never takes a seat.
func (c *Controller) ShareOnly() {
	c.mu.Lock()
	c.purpose = transport.Sharing
	c.mu.Unlock()
}

// Browse starts discovery of hosts.
func (c *Controller) Browse() error { return c.backend.StartBrowsing() }

// Peers snapshots the discovered host candidates.
func (c *Controller) Peers() []*transport.Peer { return c.backend.Peers() }

// Connect initiates the handshake with a discovered host. The result
// arrives via PeerStateChanged; the connecting watchdog covers a stall.
func (c *Controller) Connect(p *transport.Peer) bool {
	ctx := transport.NewContext(c.identity)
	c.mu.Lock()
	if c.purpose == transport.Sharing {
		ctx.Purpose = c.purpose.String()
	}
	c.hostPeer = p
	c.idle = false
	c.mu.Unlock()
	return c.backend.Connect(p, ctx)
}

// AwaitingState reports whether the initial full state is still due.
func (c *Controller) AwaitingState() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaitingState
}

// InputSuppressed is true while reconnecting; the UI blocks new input.
func (c *Controller) InputSuppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressInput
}

// Idle is true when no session is active (home screen).
func (c *Controller) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idle
}

// Stop ends the session.
func (c *Controller) Stop() { c.backend.Stop() }

// --- transport.Delegate ---

func (c *Controller) PeerDiscovered(p *transport.Peer) {
	klog.V(1).Infof("Client discovered host candidate %s", p.DeviceName)
	c.changed("peers")
}

func (c *Controller) PeerLost(p *transport.Peer) {
	c.changed("peers")
}

// ConnectionRequested on a follower only happens for host-initiated
// backchannels; refuse anything unexpected.
func (c *Controller) ConnectionRequested(p *transport.Peer, ctx transport.ConnectionContext) bool {
	return false
}

func (c *Controller) PeerStateChanged(p *transport.Peer) {
	c.mu.Lock()
	if c.hostPeer != nil && p != c.hostPeer {
		c.mu.Unlock()
		return
	}
	var alert string
	switch p.State() {
	case transport.Connected:
		// The one moment a client solicits a snapshot: everything else
		// is host-pushed.
		c.awaitingState = true
		c.suppressInput = false
		c.backend.Send(wire.MustNew(wire.DescRefreshRequest, wire.RefreshRequestMsg{}), p)
		klog.Infof("Connected to host %s, requested refresh", p.DeviceName)
	case transport.Reconnecting:
		c.suppressInput = true
		klog.Infof("Connection to host dropped, reconnecting")
	case transport.NotConnected:
		if p.AutoReconnect() {
			break
		}
		// Host-initiated or terminal: back to idle, local session
		// state is discarded.
		c.idle = true
		c.suppressInput = false
		c.awaitingState = false
		c.state = game.NewState(game.Settings{})
		c.pendingBid = wire.Opt[int]{}
		if reason := p.Reason(); reason != "" {
			alert = reason
		}
		klog.Infof("Session ended (%s)", p.Reason())
	}
	c.mu.Unlock()

	if alert != "" {
		c.notify.Alert(alert)
		c.notify.PresentView("home")
	}
	c.changed("connection")
}

func (c *Controller) DataReceived(from *transport.Peer, msg wire.Message) {
	c.queue.Append(from, msg)
}

// --- message handling ---

func (c *Controller) handleMessage(from *transport.Peer, msg wire.Message) {
	payload, err := msg.Parse()
	if err != nil {
		klog.V(1).Infof("Client ignoring %s: %v", msg.Descriptor, err)
		return
	}

	c.mu.Lock()
	what := c.dispatchLocked(msg.Descriptor, payload)
	after := c.after
	c.after = nil
	c.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	if what != "" {
		c.changed(what)
	}
}

// dispatchLocked applies one payload to the projection and names the
// affected view area. The state bundle unwraps its sub-payloads through
// this same dispatch in fixed order.
func (c *Controller) dispatchLocked(descriptor string, payload any) string {
	switch m := payload.(type) {
	case *wire.StateMsg:
		m.Each(func(desc string, sub any) {
			c.dispatchLocked(desc, sub)
		})
		c.awaitingState = false
		return "all"
	case *wire.SettingsMsg:
		c.state.Settings = game.Settings{CardsInRound: m.CardsInRound, BonusTwos: m.BonusTwos}
		return "settings"
	case *wire.PlayersMsg:
		players := make([]game.SeatPlayer, len(m.Players))
		for i, s := range m.Players {
			players[i] = game.SeatPlayer{PlayerID: s.PlayerID, Name: s.Name, Connected: s.Connected}
		}
		c.state.Players = players
		if c.state.Scorepad == nil && c.state.Settings.Rounds() > 0 {
			c.state.ResetScorepad()
		}
		return "players"
	case *wire.DealerMsg:
		c.state.Dealer = m.Dealer
		return "dealer"
	case *wire.DealMsg:
		c.state.Round = m.Round
		c.state.Deal = m.Deal
		return "deal"
	case *wire.ScoresMsg:
		c.applyScoresLocked(m)
		return "scores"
	case *wire.AutoPlayMsg:
		c.state.AutoPlayHands = m.Hands
		return "autoPlay"
	case *wire.HandStateMsg:
		if m.Round < 1 {
			klog.V(1).Infof("Hand state with invalid round %d ignored", m.Round)
			return ""
		}
		c.state.Round = m.Round
		c.state.Hand = game.HandStateFromMsg(m,
			c.state.Settings.Trump(m.Round), c.state.Settings.BonusTwos)
		return "hand"
	case *wire.PlayedMsg:
		c.applyPlayedLocked(m)
		return "hand"
	case *wire.PlayHandMsg:
		c.after = append(c.after, func() { c.notify.PresentView("playHand") })
		return "hand"
	case *wire.StatusMsg:
		c.after = append(c.after, func() { c.notify.Alert(m.Message) })
		return ""
	case *wire.DisconnectMsg:
		// Reason ahead of the transport-level teardown.
		if c.hostPeer != nil {
			c.hostPeer.SetReason(m.Reason)
		}
		klog.Infof("Host is disconnecting us: %s", m.Reason)
		return ""
	case *wire.ThumbnailMsg:
		return "thumbnail"
	case *wire.TestConnectionMsg:
		c.backend.Send(wire.MustNew(wire.DescTestResponse, wire.TestResponseMsg{}), c.hostPeer)
		return ""
	case *wire.TestResponseMsg:
		return ""
	}
	klog.V(1).Infof("Client ignoring descriptor %s", descriptor)
	return ""
}

func (c *Controller) applyScoresLocked(m *wire.ScoresMsg) {
	if c.state.Scorepad == nil {
		if c.state.Settings.Rounds() == 0 || len(c.state.Players) == 0 {
			return
		}
		c.state.ResetScorepad()
	}
	mySeat := c.state.SeatOf(c.identity.PlayerID)
	for seat, rounds := range m.Scores {
		if seat < 0 || seat >= c.state.Scorepad.Seats() {
			continue
		}
		for round, delta := range rounds {
			if round < 1 || round > c.state.Scorepad.Rounds {
				continue
			}
			c.state.Scorepad.Apply(seat, round, delta)
			// The authoritative echo lands; the pending bid is settled.
			if seat == mySeat && round == c.state.Round && !delta.Bid.IsZero() {
				c.pendingBid = wire.Opt[int]{}
			}
		}
	}
}

func (c *Controller) applyPlayedLocked(m *wire.PlayedMsg) {
	hand := c.state.Hand
	if hand == nil || m.Round != hand.Round {
		return
	}
	if m.Player != hand.ToPlay() {
		klog.V(1).Infof("Played message out of sequence, awaiting hand state")
		return
	}
	if err := hand.PlayCard(m.Card); err != nil {
		klog.V(1).Infof("Could not apply played card: %v", err)
	}
}

// --- locally-authored operations (routed through the host) ---

// EnterBid records the local player's bid and sends it to the host; the
// projection is settled by the authoritative echo.
func (c *Controller) EnterBid(bid int) {
	c.mu.Lock()
	seat := c.state.SeatOf(c.identity.PlayerID)
	round := c.state.Round
	host := c.hostPeer
	suppressed := c.suppressInput
	if seat < 0 || round < 1 || suppressed {
		c.mu.Unlock()
		return
	}
	c.pendingBid = wire.Some(bid)
	msg := wire.MustNew(wire.DescScores, wire.ScoresMsg{
		Scores: map[int]map[int]wire.ScoreDelta{seat: {round: {Bid: wire.Some(bid)}}},
	})
	c.mu.Unlock()
	c.backend.Send(msg, host)
}

// PendingBid returns the bid awaiting its echo, if any.
func (c *Controller) PendingBid() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingBid.Get()
}

// PlayCard plays the local player's card: previewed locally only after
// the host echoes it back via played/handState.
func (c *Controller) PlayCard(card int) {
	c.mu.Lock()
	hand := c.state.Hand
	seat := c.state.SeatOf(c.identity.PlayerID)
	host := c.hostPeer
	suppressed := c.suppressInput
	if hand == nil || seat < 0 || hand.ToPlay() != seat || suppressed {
		c.mu.Unlock()
		return
	}
	msg := wire.MustNew(wire.DescPlayed, wire.PlayedMsg{
		Round: hand.Round, Trick: hand.Trick, Player: seat, Card: card,
	})
	// Apply locally as a preview; the rule is identical on the host so
	// the echo cannot disagree.
	if err := hand.PlayCard(card); err != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.backend.Send(msg, host)
	c.changed("hand")
}

// RequestThumbnail asks the host for a player's thumbnail.
func (c *Controller) RequestThumbnail(playerID string) {
	c.mu.Lock()
	host := c.hostPeer
	c.mu.Unlock()
	c.backend.Send(wire.MustNew(wire.DescRequestThumbnail, wire.RequestThumbnailMsg{PlayerID: playerID}), host)
}

func (c *Controller) changed(what string) {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(what)
	}
}
