// Package host implements the authoritative role: it owns the roster,
// deals the cards, resolves tricks and is the sole writer of the score
// ledger. Followers only ever see host-authored deltas.
package host

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/game"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/profile"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/recovery"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/transport"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

// Reject reasons delivered to a refused peer before teardown.
const (
	ReasonInProgress  = "Game already in progress"
	ReasonGameFull    = "Game is full"
	ReasonDuplicate   = "Already playing on another device"
	ReasonNotInvolved = "Not a player in this game"
)

// Config tunes the host controller.
type Config struct {
	MinPlayers int // connected seats needed before the host can proceed
	MaxPlayers int
	// RefreshMinInterval throttles per-device full refreshes; zero
	// disables the throttle.
	RefreshMinInterval time.Duration
	// RecoveryPath is where hand checkpoints are written; empty
	// disables recovery.
	RecoveryPath string
	// Seed fixes the deal shuffle; zero seeds from the clock.
	Seed int64
}

func (c *Config) applyDefaults() {
	if c.MinPlayers == 0 {
		c.MinPlayers = 3
	}
	if c.MaxPlayers == 0 {
		c.MaxPlayers = 4
	}
}

// Controller is the host-side controller for one game session.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	backend  transport.Backend
	identity transport.Identity
	state    *game.State
	slots    []*PlayerSlot
	queue    *wire.Queue[*transport.Peer]
	store    *recovery.Store
	players  profile.PlayerStore
	notify   profile.Notifier
	rng      *rand.Rand

	inProgress  bool
	original    map[string]bool // roster player ids at game start
	rejects     map[string]string
	lastRefresh map[string]time.Time
	onChange    func()
}

// NewController wires a host controller onto a transport backend. The
// host's own player occupies slot 0.
func NewController(backend transport.Backend, identity transport.Identity,
	settings game.Settings, cfg Config,
	players profile.PlayerStore, notify profile.Notifier) *Controller {

	cfg.applyDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	c := &Controller{
		cfg:         cfg,
		backend:     backend,
		identity:    identity,
		state:       game.NewState(settings),
		players:     players,
		notify:      notify,
		rng:         rand.New(rand.NewSource(seed)),
		original:    make(map[string]bool),
		rejects:     make(map[string]string),
		lastRefresh: make(map[string]time.Time),
	}
	if cfg.RecoveryPath != "" {
		c.store = recovery.NewStore(cfg.RecoveryPath)
	}
	c.queue = wire.NewQueue(c.handleMessage)

	c.slots = []*PlayerSlot{{
		PlayerID: identity.PlayerID,
		Name:     identity.PlayerName,
		Token:    uuid.New(),
	}}
	if _, ok := players.FindPlayer(identity.PlayerID); !ok {
		players.CreatePlayer(identity.PlayerName, identity.PlayerID)
	}
	c.rebuildPlayersLocked()

	backend.SetDelegate(c)
	return c
}

// SetOnChange registers a local UI hook called after state changes.
func (c *Controller) SetOnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Hold and Release expose the handler-busy gate for UI transitions.
func (c *Controller) Hold()    { c.queue.Hold() }
func (c *Controller) Release() { c.queue.Release() }

// State returns the authoritative model. Callers must treat it as
// read-only; only the controller mutates it.
func (c *Controller) State() *game.State { return c.state }

// WithState runs fn with the model locked; for readers that race the
// message queue, like an unattended host loop.
func (c *Controller) WithState(fn func(s *game.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.state)
}

// Start begins advertising for followers.
func (c *Controller) Start() error {
	if err := c.backend.StartAdvertising(); err != nil {
		c.notify.Alert(fmt.Sprintf("Unable to start hosting: %v", err))
		return err
	}
	return nil
}

// Stop ends the session.
func (c *Controller) Stop() { c.backend.Stop() }

// AddPlayer adds a player to the roster, returning a non-empty reject
// reason when the roster rules refuse it. New entries go before any
// pending-disconnect tail so visible ordering matches join order.
func (c *Controller) AddPlayer(name, id string, peer *transport.Peer) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addPlayerLocked(name, id, peer)
}

func (c *Controller) addPlayerLocked(name, id string, peer *transport.Peer) string {
	for _, s := range c.slots {
		if s.PlayerID == id {
			if s.DisconnectReason == "" {
				// Keep the original peer when it is still live on another
				// device; the duplicate is resolved on connect completion.
				if peer != nil && (s.Peer == nil || s.Peer == peer ||
					s.Peer.DeviceID == peer.DeviceID || s.Peer.State() != transport.Connected) {
					s.Peer = peer
					s.Status = InviteNone
				}
				return ""
			}
		}
	}
	if c.inProgress && len(c.original) > 0 && !c.original[id] {
		return ReasonInProgress
	}
	live := 0
	for _, s := range c.slots {
		if s.DisconnectReason == "" {
			live++
		}
	}
	if live >= c.cfg.MaxPlayers {
		return ReasonGameFull
	}

	slot := &PlayerSlot{PlayerID: id, Name: name, Peer: peer, Token: uuid.New()}
	if peer == nil {
		// Reserved ahead of any connection (an invited seat).
		slot.Status = InviteInvited
	}
	if _, ok := c.players.FindPlayer(id); !ok {
		c.players.CreatePlayer(name, id)
	}

	idx := len(c.slots)
	for idx > 1 && c.slots[idx-1].DisconnectReason != "" {
		idx--
	}
	c.slots = append(c.slots, nil)
	copy(c.slots[idx+1:], c.slots[idx:])
	c.slots[idx] = slot

	c.rebuildPlayersLocked()
	c.broadcastPlayersLocked()
	klog.Infof("Player %s (%s) added to roster (%d seats)", name, id, len(c.slots))
	return ""
}

// rebuildPlayersLocked projects the roster into the shared state.
func (c *Controller) rebuildPlayersLocked() {
	players := make([]game.SeatPlayer, 0, len(c.slots))
	for _, s := range c.slots {
		connected := s.Connected() || s == c.slots[0]
		players = append(players, game.SeatPlayer{PlayerID: s.PlayerID, Name: s.Name, Connected: connected})
	}
	c.state.Players = players
}

// ConnectedPlayers counts seats with a live session, including the
// host's own.
func (c *Controller) ConnectedPlayers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked()
}

func (c *Controller) connectedLocked() int {
	n := 1 // the host itself
	for _, s := range c.slots[1:] {
		if s.Connected() {
			n++
		}
	}
	return n
}

// CanProceed reports whether enough seats are connected for the host to
// continue the game.
func (c *Controller) CanProceed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked() >= c.cfg.MinPlayers
}

// Roster snapshots the slots for display.
func (c *Controller) Roster() []*PlayerSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*PlayerSlot(nil), c.slots...)
}

// --- transport.Delegate ---

func (c *Controller) PeerDiscovered(p *transport.Peer) {
	klog.V(1).Infof("Host discovered peer %s (%s)", p.DeviceName, p.PlayerName)
}

func (c *Controller) PeerLost(p *transport.Peer) {
	klog.V(1).Infof("Host lost sight of peer %s", p.DeviceName)
}

// ConnectionRequested always accepts at the transport level, even when
// the roster rules will drop the peer immediately: the reason is then
// delivered over the established channel instead of the transport's own
// rejection path.
func (c *Controller) ConnectionRequested(p *transport.Peer, ctx transport.ConnectionContext) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Sharing peers watch the score without taking a seat; they get the
	// state bundle on connect and every broadcast thereafter.
	if transport.ParsePurpose(ctx.Purpose) == transport.Sharing {
		klog.Infof("Sharing connection from %s accepted", ctx.PlayerName)
		return true
	}

	reason := c.addPlayerLocked(ctx.PlayerName, ctx.PlayerID, p)
	if reason != "" {
		c.rejects[p.DeviceID] = reason
		klog.Infof("Connection from %s will be dropped: %s", ctx.PlayerName, reason)
		return true
	}
	delete(c.rejects, p.DeviceID)
	if slot := c.slotForLocked(ctx.PlayerID); slot != nil {
		slot.PresenceAddress = ctx.PresenceAddress
	}
	return true
}

func (c *Controller) slotForLocked(playerID string) *PlayerSlot {
	for _, s := range c.slots {
		if s.PlayerID == playerID {
			return s
		}
	}
	return nil
}

func (c *Controller) PeerStateChanged(p *transport.Peer) {
	c.mu.Lock()
	var after []func()

	switch p.State() {
	case transport.Connected:
		after = c.peerConnectedLocked(p)
	case transport.Reconnecting:
		if slot := c.slotForLocked(p.PlayerID); slot != nil && slot.Peer == p {
			slot.Status = InviteReconnecting
			c.rebuildPlayersLocked()
			c.broadcastPlayersLocked()
		}
	case transport.NotConnected:
		after = c.peerDroppedLocked(p)
	}

	onChange := c.onChange
	c.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	if onChange != nil {
		onChange()
	}
}

// peerConnectedLocked handles a completed session: pending-disconnect
// slots and cross-device duplicates are told why and dropped; everyone
// else gets the state bundle covering the game so far.
func (c *Controller) peerConnectedLocked(p *transport.Peer) []func() {
	if reason, ok := c.rejects[p.DeviceID]; ok {
		delete(c.rejects, p.DeviceID)
		return []func(){c.dropPeerFn(p, reason)}
	}

	if p.Purpose == transport.Sharing {
		c.sendStateBundleLocked(p)
		klog.Infof("Sharing peer %s connected", p.DeviceName)
		return nil
	}

	slot := c.slotForLocked(p.PlayerID)
	if slot == nil {
		return []func(){c.dropPeerFn(p, ReasonNotInvolved)}
	}
	if slot.DisconnectReason != "" {
		reason := slot.DisconnectReason
		return []func(){c.dropPeerFn(p, reason)}
	}

	// Duplicate-device policy: a second physical connection for an
	// already-connected player id loses; the original is preserved.
	if slot.Peer != nil && slot.Peer != p &&
		slot.Peer.DeviceID != p.DeviceID && slot.Peer.State() == transport.Connected {
		return []func(){c.dropPeerFn(p, ReasonDuplicate)}
	}

	slot.Peer = p
	slot.Status = InviteNone
	c.rebuildPlayersLocked()
	c.broadcastPlayersLocked()
	c.sendStateBundleLocked(p)
	klog.Infof("Peer %s connected for %s", p.DeviceName, slot.Name)
	return nil
}

// dropPeerFn builds the deferred drop: reason over the channel first,
// then transport teardown with reconnection disabled. Deferred so the
// backend's resulting callbacks are not re-entrant under the lock.
func (c *Controller) dropPeerFn(p *transport.Peer, reason string) func() {
	return func() {
		c.backend.Send(wire.MustNew(wire.DescDisconnect, wire.DisconnectMsg{Reason: reason}), p)
		c.backend.Disconnect(p, reason, false)
	}
}

// peerDroppedLocked handles a session ending. A spontaneous drop keeps
// the slot as a reconnect placeholder when the backend supports
// reconnection, otherwise the seat is removed.
func (c *Controller) peerDroppedLocked(p *transport.Peer) []func() {
	slot := c.slotForLocked(p.PlayerID)
	if slot == nil || slot.Peer != p || slot == c.slots[0] {
		return nil
	}
	if c.backend.SupportsReconnect() {
		slot.Status = InviteReconnecting
	} else {
		c.removeSlotLocked(slot)
	}
	c.rebuildPlayersLocked()
	c.broadcastPlayersLocked()
	klog.Infof("Peer %s dropped (%s); %d seats connected", p.DeviceName, p.Reason(), c.connectedLocked())
	return nil
}

func (c *Controller) removeSlotLocked(slot *PlayerSlot) {
	for i, s := range c.slots {
		if s == slot && i > 0 {
			c.slots = append(c.slots[:i], c.slots[i+1:]...)
			return
		}
	}
}

func (c *Controller) DataReceived(from *transport.Peer, msg wire.Message) {
	c.queue.Append(from, msg)
}

// --- message handling (single consumer via the queue) ---

func (c *Controller) handleMessage(from *transport.Peer, msg wire.Message) {
	payload, err := msg.Parse()
	if err != nil {
		if errors.Is(err, wire.ErrUnknownDescriptor) {
			c.fallback(from, msg)
		} else {
			klog.V(1).Infof("Ignoring %s from %s: %v", msg.Descriptor, from.DeviceName, err)
		}
		return
	}

	c.mu.Lock()
	var after []func()
	switch m := payload.(type) {
	case *wire.RefreshRequestMsg:
		c.handleRefreshLocked(from)
	case *wire.ScoresMsg:
		c.applyScoresLocked(from, m)
	case *wire.PlayedMsg:
		after = c.applyPlayedLocked(from, m)
	case *wire.RequestThumbnailMsg:
		c.handleThumbnailRequestLocked(from, m)
	case *wire.ThumbnailMsg:
		c.storeThumbnailLocked(m)
	case *wire.TestConnectionMsg:
		c.backend.Send(wire.MustNew(wire.DescTestResponse, wire.TestResponseMsg{}), from)
	case *wire.TestResponseMsg:
		klog.Infof("Connection to %s confirmed alive", from.DeviceName)
	case *wire.StatusMsg:
		after = append(after, func() { c.notify.Alert(m.Message) })
	default:
		klog.V(1).Infof("Host ignoring %s from %s", msg.Descriptor, from.DeviceName)
	}
	onChange := c.onChange
	c.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	if onChange != nil {
		onChange()
	}
}

// fallback swallows descriptors outside the protocol so newer peers can
// talk to older hosts.
func (c *Controller) fallback(from *transport.Peer, msg wire.Message) {
	klog.V(2).Infof("Unhandled descriptor %q from %s", msg.Descriptor, from.DeviceName)
}

// handleRefreshLocked answers the reconnect-triggered full refresh,
// honoring the per-device throttle when one is configured.
func (c *Controller) handleRefreshLocked(from *transport.Peer) {
	if min := c.cfg.RefreshMinInterval; min > 0 {
		if last, ok := c.lastRefresh[from.DeviceID]; ok && time.Since(last) < min {
			klog.V(1).Infof("Refresh from %s throttled", from.DeviceName)
			return
		}
	}
	c.lastRefresh[from.DeviceID] = time.Now()
	c.sendStateBundleLocked(from)
}

// applyScoresLocked merges a follower's own-authored cells (its bid)
// and echoes the authoritative delta to every follower.
func (c *Controller) applyScoresLocked(from *transport.Peer, m *wire.ScoresMsg) {
	if c.state.Scorepad == nil {
		return
	}
	fromSeat := c.state.SeatOf(from.PlayerID)
	for seat, rounds := range m.Scores {
		if seat != fromSeat {
			klog.Warningf("Peer %s tried to author seat %d scores, ignoring", from.DeviceName, seat)
			continue
		}
		for round, delta := range rounds {
			if round < 1 || round > c.state.Scorepad.Rounds {
				continue
			}
			c.state.Scorepad.Apply(seat, round, delta)
			c.broadcastScoreLocked(seat, round)
		}
	}
	c.checkpointLocked()
}

// applyPlayedLocked validates and applies a follower's card, then
// re-broadcasts it; completed hands post their results to the ledger.
func (c *Controller) applyPlayedLocked(from *transport.Peer, m *wire.PlayedMsg) []func() {
	hand := c.state.Hand
	if hand == nil || m.Round != hand.Round {
		klog.Warningf("Played card for wrong round from %s", from.DeviceName)
		return nil
	}
	seat := c.state.SeatOf(from.PlayerID)
	if seat != hand.ToPlay() || seat != m.Player {
		klog.Warningf("Out-of-turn play from %s (seat %d, to play %d)", from.DeviceName, seat, hand.ToPlay())
		return nil
	}
	return c.playCardLocked(m.Card, from)
}

// playCardLocked applies one card to the hand and broadcasts the delta
// to everyone except its author.
func (c *Controller) playCardLocked(card int, author *transport.Peer) []func() {
	hand := c.state.Hand
	played := wire.PlayedMsg{Round: hand.Round, Trick: hand.Trick, Player: hand.ToPlay(), Card: card}
	if err := hand.PlayCard(card); err != nil {
		klog.Warningf("Rejected play: %v", err)
		return nil
	}
	msg := wire.MustNew(wire.DescPlayed, played)
	for _, s := range c.slots[1:] {
		if s.Peer != nil && s.Peer != author && s.Connected() {
			c.backend.Send(msg, s.Peer)
		}
	}
	// View-only peers follow the trick card by card too.
	for _, p := range c.backend.Peers() {
		if p.Purpose == transport.Sharing && p.State() == transport.Connected {
			c.backend.Send(msg, p)
		}
	}
	if len(hand.TrickCards) == 0 {
		// Trick resolved; push the authoritative hand state so any
		// follower whose local projection drifted snaps back.
		c.backend.Send(wire.MustNew(wire.DescHandState, hand.Message()))
	}
	c.checkpointLocked()

	if hand.Complete() {
		return c.handCompleteLocked()
	}
	return nil
}

// handCompleteLocked posts made/twos to the ledger, broadcasts the
// round's results and records running totals with the persistence
// layer.
func (c *Controller) handCompleteLocked() []func() {
	hand := c.state.Hand
	pad := c.state.Scorepad
	if pad == nil {
		return nil
	}
	for seat := range c.state.Players {
		pad.Apply(seat, hand.Round, wire.ScoreDelta{
			Made: wire.Some(hand.Made[seat]),
			Twos: wire.Some(hand.Twos[seat]),
		})
		c.broadcastScoreLocked(seat, hand.Round)
		c.players.SetScore(c.state.Players[seat].PlayerID, pad.Score(seat))
	}
	klog.Infof("Round %d complete", hand.Round)
	if c.store != nil {
		c.store.Clear()
	}
	if hand.Round >= c.state.Settings.Rounds() {
		return []func(){func() { c.notify.PresentView("gameSummary") }}
	}
	return nil
}

func (c *Controller) broadcastScoreLocked(seat, round int) {
	delta := c.state.Scorepad.Delta(seat, round)
	msg := wire.MustNew(wire.DescScores, wire.ScoresMsg{
		Scores: map[int]map[int]wire.ScoreDelta{seat: {round: delta}},
	})
	c.backend.Send(msg)
}

func (c *Controller) broadcastPlayersLocked() {
	c.backend.Send(wire.MustNew(wire.DescPlayers, c.playersMsgLocked()))
}

func (c *Controller) playersMsgLocked() wire.PlayersMsg {
	seats := make([]wire.SeatInfo, len(c.state.Players))
	for i, p := range c.state.Players {
		seats[i] = wire.SeatInfo{PlayerID: p.PlayerID, Name: p.Name, Connected: p.Connected}
	}
	return wire.PlayersMsg{Players: seats}
}

// sendStateBundleLocked pushes the composite state message describing
// the game since the last acknowledged refresh.
func (c *Controller) sendStateBundleLocked(to *transport.Peer) {
	bundle := wire.StateMsg{
		Settings: &wire.SettingsMsg{
			CardsInRound: c.state.Settings.CardsInRound,
			BonusTwos:    c.state.Settings.BonusTwos,
		},
	}
	players := c.playersMsgLocked()
	bundle.Players = &players
	bundle.Dealer = &wire.DealerMsg{Dealer: c.state.Dealer}
	if c.state.Round > 0 && c.state.Deal != nil {
		bundle.Deal = &wire.DealMsg{Round: c.state.Round, Deal: c.state.Deal}
	}
	if c.state.Scorepad != nil {
		bundle.AllScores = c.state.Scorepad.AllScores()
	}
	if c.state.AutoPlayHands > 0 {
		bundle.AutoPlay = &wire.AutoPlayMsg{Hands: c.state.AutoPlayHands}
	}
	if c.state.Hand != nil && !c.state.Hand.Complete() {
		bundle.HandState = c.state.Hand.Message()
		bundle.PlayHand = &wire.PlayHandMsg{}
	}
	c.backend.Send(wire.MustNew(wire.DescState, bundle), to)
}

// --- authoritative operations ---

// StartGame freezes the roster and resets the ledger.
func (c *Controller) StartGame() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectedLocked() < c.cfg.MinPlayers {
		return fmt.Errorf("need %d connected players, have %d", c.cfg.MinPlayers, c.connectedLocked())
	}
	c.inProgress = true
	c.original = make(map[string]bool)
	for _, s := range c.slots {
		c.original[s.PlayerID] = true
	}
	c.state.ResetScorepad()
	for _, s := range c.slots[1:] {
		if s.Connected() {
			c.sendStateBundleLocked(s.Peer)
		}
	}
	klog.Infof("Game started with %d players", len(c.slots))
	return nil
}

// DealNextHand advances the dealer and round, generates the deal and
// pushes it with the fresh hand state to all followers.
func (c *Controller) DealNextHand() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inProgress {
		return fmt.Errorf("game not started")
	}
	round := c.state.Round + 1
	if round > c.state.Settings.Rounds() {
		return fmt.Errorf("no rounds left")
	}
	seats := len(c.state.Players)
	if round > 1 {
		c.state.Dealer = (c.state.Dealer + 1) % seats
	}
	c.state.Round = round
	c.state.Deal = game.NewDeal(c.rng, seats, c.state.Settings.CardsInRoundN(round))
	toLead := (c.state.Dealer + 1) % seats
	c.state.Hand = game.NewHandState(round, c.state.Settings.Trump(round),
		c.state.Settings.BonusTwos, c.state.Deal, toLead)

	c.backend.Send(wire.MustNew(wire.DescDealer, wire.DealerMsg{Dealer: c.state.Dealer}))
	c.backend.Send(wire.MustNew(wire.DescDeal, wire.DealMsg{Round: round, Deal: c.state.Deal}))
	c.backend.Send(wire.MustNew(wire.DescHandState, c.state.Hand.Message()))
	c.backend.Send(wire.MustNew(wire.DescPlayHand, wire.PlayHandMsg{}))
	c.checkpointLocked()
	klog.Infof("Dealt round %d (%d cards, trump %s)", round,
		c.state.Settings.CardsInRoundN(round), c.state.Settings.Trump(round))
	return nil
}

// PlayCard plays the host's own card.
func (c *Controller) PlayCard(card int) error {
	c.mu.Lock()
	hand := c.state.Hand
	if hand == nil {
		c.mu.Unlock()
		return fmt.Errorf("no hand in progress")
	}
	after := c.playCardLocked(card, nil)
	c.mu.Unlock()
	for _, fn := range after {
		fn()
	}
	return nil
}

// EnterBid records a bid on the host's scorepad and echoes it out.
func (c *Controller) EnterBid(seat, bid int) { c.enterScore(seat, wire.ScoreDelta{Bid: wire.Some(bid)}) }

// ClearBid clears a bid cell (travels as an explicit null).
func (c *Controller) ClearBid(seat int) { c.enterScore(seat, wire.ScoreDelta{Bid: wire.Null[int]()}) }

// EnterMade and EnterTwos override a round's results, e.g. when scoring
// a table that is not playing electronically.
func (c *Controller) EnterMade(seat, made int) {
	c.enterScore(seat, wire.ScoreDelta{Made: wire.Some(made)})
}
func (c *Controller) EnterTwos(seat, twos int) {
	c.enterScore(seat, wire.ScoreDelta{Twos: wire.Some(twos)})
}

func (c *Controller) enterScore(seat int, delta wire.ScoreDelta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Scorepad == nil || c.state.Round < 1 {
		return
	}
	c.state.Scorepad.Apply(seat, c.state.Round, delta)
	c.broadcastScoreLocked(seat, c.state.Round)
	c.checkpointLocked()
}

// SetAutoPlay tells robot followers how many hands to play unattended.
func (c *Controller) SetAutoPlay(hands int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AutoPlayHands = hands
	c.backend.Send(wire.MustNew(wire.DescAutoPlay, wire.AutoPlayMsg{Hands: hands}))
}

// SendStatus pushes a notice to every follower.
func (c *Controller) SendStatus(message string) {
	c.backend.Send(wire.MustNew(wire.DescStatus, wire.StatusMsg{Message: message}))
}

// TestPeerConnection probes a seat's device; the reply is logged when it
// arrives.
func (c *Controller) TestPeerConnection(seat int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seat < 1 || seat >= len(c.slots) || !c.slots[seat].Connected() {
		return
	}
	c.backend.Send(wire.MustNew(wire.DescTestConnection, wire.TestConnectionMsg{}), c.slots[seat].Peer)
}

// --- thumbnails ---

func (c *Controller) handleThumbnailRequestLocked(from *transport.Peer, m *wire.RequestThumbnailMsg) {
	player, ok := c.players.FindPlayer(m.PlayerID)
	reply := wire.ThumbnailMsg{PlayerID: m.PlayerID}
	if ok && player.ThumbnailB64 != "" {
		reply.Image = wire.Some(player.ThumbnailB64)
		reply.Date = wire.Some(player.ThumbnailDate)
	} else {
		// Explicit null: the thumbnail is known to be absent, not
		// merely unaffected.
		reply.Image = wire.Null[string]()
		reply.Date = wire.Null[string]()
	}
	c.backend.Send(wire.MustNew(wire.DescThumbnail, reply), from)
}

func (c *Controller) storeThumbnailLocked(m *wire.ThumbnailMsg) {
	player, ok := c.players.FindPlayer(m.PlayerID)
	if !ok {
		return
	}
	if m.Image.IsNull() {
		player.ThumbnailB64 = ""
		player.ThumbnailDate = ""
		return
	}
	if img, ok := m.Image.Get(); ok {
		player.ThumbnailB64 = img
		player.ThumbnailDate = m.Date.Or("")
	}
}

// --- recovery ---

// checkpointLocked persists the hand in progress.
func (c *Controller) checkpointLocked() {
	if c.store == nil || c.state.Hand == nil {
		return
	}
	h := c.state.Hand
	players := make([]recovery.SeatRecord, len(c.state.Players))
	for i, p := range c.state.Players {
		players[i] = recovery.SeatRecord{PlayerID: p.PlayerID, Name: p.Name}
	}
	c.store.Save(&recovery.Snapshot{
		Round:      h.Round,
		Dealer:     c.state.Dealer,
		Players:    players,
		Hands:      h.Hands,
		Trick:      h.Trick,
		TrickCards: h.TrickCards,
		ToLead:     h.ToLead,
		LastCards:  h.LastCards,
		LastToLead: h.LastToLead,
		Made:       h.Made,
		Twos:       h.Twos,
	})
}

// Resume restores a checkpointed hand after a restart. Returns false
// when there is nothing usable to resume.
func (c *Controller) Resume() bool {
	if c.store == nil {
		return false
	}
	snap, ok := c.store.Load()
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inProgress = true
	c.original = make(map[string]bool)
	for _, rec := range snap.Players {
		c.original[rec.PlayerID] = true
		if c.slotForLocked(rec.PlayerID) == nil {
			// Former players rejoin into their old seats via the normal
			// connect path; until then the seat waits as a placeholder.
			slot := &PlayerSlot{PlayerID: rec.PlayerID, Name: rec.Name,
				Status: InviteReconnecting, Token: uuid.New()}
			c.slots = append(c.slots, slot)
			if _, ok := c.players.FindPlayer(rec.PlayerID); !ok {
				c.players.CreatePlayer(rec.Name, rec.PlayerID)
			}
		}
	}
	c.rebuildPlayersLocked()
	c.state.Round = snap.Round
	c.state.Dealer = snap.Dealer
	c.state.Hand = &game.HandState{
		Round:      snap.Round,
		Trump:      c.state.Settings.Trump(snap.Round),
		BonusTwos:  c.state.Settings.BonusTwos,
		Hands:      snap.Hands,
		Trick:      snap.Trick,
		TrickCards: snap.TrickCards,
		ToLead:     snap.ToLead,
		LastCards:  snap.LastCards,
		LastToLead: snap.LastToLead,
		Made:       snap.Made,
		Twos:       snap.Twos,
	}
	if c.state.Scorepad == nil {
		c.state.ResetScorepad()
	}
	klog.Infof("Resumed round %d at trick %d", snap.Round, snap.Trick)
	return true
}
