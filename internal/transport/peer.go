package transport

import (
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// ConnState is the lifecycle state of a Peer.
type ConnState int

const (
	NotConnected ConnState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnState) String() string {
	switch s {
	case NotConnected:
		return "notConnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Purpose distinguishes peers that play from peers that only watch the
// score.
type Purpose int

const (
	Playing Purpose = iota
	Sharing
)

// ParsePurpose maps the wire form of a connection context's purpose.
func ParsePurpose(s string) Purpose {
	if s == "sharing" {
		return Sharing
	}
	return Playing
}

func (p Purpose) String() string {
	if p == Sharing {
		return "sharing"
	}
	return "playing"
}

// Peer identifies a remote device/session. Owned by the transport
// backend; controllers hold a read-mostly reference and react to
// delegate callbacks.
type Peer struct {
	DeviceID   string
	DeviceName string
	PlayerID   string // stable across reconnects
	PlayerName string
	Purpose    Purpose

	// Addr is the backend-specific address (LAN tcp endpoint etc.).
	Addr string

	mu    sync.Mutex
	state ConnState
	// autoReconnect marks a peer worth chasing after a transport drop.
	// notConnected without it is terminal: the peer is evicted from the
	// backend's tracking table.
	autoReconnect bool
	// reason is the last disconnect reason delivered for this peer.
	reason string
}

// State returns the peer's connection state.
func (p *Peer) State() ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// AutoReconnect reports whether the peer should be chased after a drop.
func (p *Peer) AutoReconnect() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoReconnect
}

// SetAutoReconnect flags or clears the reconnection intent.
func (p *Peer) SetAutoReconnect(v bool) {
	p.mu.Lock()
	p.autoReconnect = v
	p.mu.Unlock()
}

// Reason returns the last disconnect reason delivered for this peer.
func (p *Peer) Reason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

// SetReason records a disconnect reason ahead of the state transition
// that delivers it.
func (p *Peer) SetReason(r string) {
	p.mu.Lock()
	p.reason = r
	p.mu.Unlock()
}

// setState applies the state and reports whether it changed. The guard
// makes duplicate notifications impossible.
func (p *Peer) setState(s ConnState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == s {
		return false
	}
	p.state = s
	return true
}

// Tracker is the per-backend peer table and state machine. It owns the
// connecting watchdog and the reconnect browse timer, independent of
// any UI lifecycle; both simply re-arm transport operations.
type Tracker struct {
	mu             sync.Mutex
	peers          map[string]*Peer // by device id
	delegate       Delegate
	connectTimeout time.Duration
	rebrowseEvery  time.Duration
	rebrowse       func() // re-arm advertise/browse
	rebrowseTimer  *time.Timer
	watchdogs      map[string]*time.Timer
	stopped        bool
}

// NewTracker creates a tracker; rebrowse is invoked periodically while
// any peer is reconnecting.
func NewTracker(connectTimeout, rebrowseEvery time.Duration, rebrowse func()) *Tracker {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	if rebrowseEvery <= 0 {
		rebrowseEvery = 3 * time.Second
	}
	return &Tracker{
		peers:          make(map[string]*Peer),
		connectTimeout: connectTimeout,
		rebrowseEvery:  rebrowseEvery,
		rebrowse:       rebrowse,
		watchdogs:      make(map[string]*time.Timer),
	}
}

// SetDelegate sets the callback target for state changes.
func (t *Tracker) SetDelegate(d Delegate) {
	t.mu.Lock()
	t.delegate = d
	t.mu.Unlock()
}

// Add registers a peer, returning the existing one for the same device
// if already tracked.
func (t *Tracker) Add(p *Peer) *Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.peers[p.DeviceID]; ok {
		return existing
	}
	t.peers[p.DeviceID] = p
	return p
}

// Find returns the tracked peer for a device id.
func (t *Tracker) Find(deviceID string) *Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peers[deviceID]
}

// Peers snapshots the tracked peers.
func (t *Tracker) Peers() []*Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}

// Transition moves a peer to a new state, delivering exactly one
// PeerStateChanged per transition. reason is recorded when non-empty.
func (t *Tracker) Transition(p *Peer, state ConnState, reason string) {
	if reason != "" {
		p.SetReason(reason)
	}
	if !p.setState(state) {
		return
	}
	klog.V(1).Infof("Peer %s (%s) -> %s", p.DeviceName, p.PlayerName, state)

	t.mu.Lock()
	if wd, ok := t.watchdogs[p.DeviceID]; ok {
		wd.Stop()
		delete(t.watchdogs, p.DeviceID)
	}
	switch state {
	case Connecting:
		t.watchdogs[p.DeviceID] = time.AfterFunc(t.connectTimeout, func() { t.watchdogFired(p) })
	case NotConnected:
		if !p.AutoReconnect() {
			delete(t.peers, p.DeviceID)
		}
	}
	t.updateRebrowseLocked()
	delegate := t.delegate
	t.mu.Unlock()

	if delegate != nil {
		delegate.PeerStateChanged(p)
	}
}

// watchdogFired resets a backend stuck connecting with no progress.
func (t *Tracker) watchdogFired(p *Peer) {
	if p.State() != Connecting {
		return
	}
	klog.Warningf("Connect watchdog fired for %s", p.DeviceName)
	if p.AutoReconnect() {
		t.Transition(p, Reconnecting, "")
	} else {
		t.Transition(p, NotConnected, "")
	}
}

// updateRebrowseLocked arms or disarms the reconnect browse timer
// according to whether any peer is reconnecting. Caller holds t.mu.
func (t *Tracker) updateRebrowseLocked() {
	any := false
	for _, p := range t.peers {
		if p.State() == Reconnecting {
			any = true
			break
		}
	}
	switch {
	case any && t.rebrowseTimer == nil && !t.stopped:
		t.rebrowseTimer = time.AfterFunc(t.rebrowseEvery, t.rebrowseFired)
	case !any && t.rebrowseTimer != nil:
		t.rebrowseTimer.Stop()
		t.rebrowseTimer = nil
	}
}

func (t *Tracker) rebrowseFired() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.rebrowseTimer = nil
	t.updateRebrowseLocked()
	rebrowse := t.rebrowse
	t.mu.Unlock()
	if rebrowse != nil {
		rebrowse()
	}
}

// Remove drops a peer from the table without a transition (used when
// discovery loses an unconnected peer).
func (t *Tracker) Remove(p *Peer) {
	t.mu.Lock()
	delete(t.peers, p.DeviceID)
	if wd, ok := t.watchdogs[p.DeviceID]; ok {
		wd.Stop()
		delete(t.watchdogs, p.DeviceID)
	}
	t.mu.Unlock()
}

// Stop cancels all timers.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	for id, wd := range t.watchdogs {
		wd.Stop()
		delete(t.watchdogs, id)
	}
	if t.rebrowseTimer != nil {
		t.rebrowseTimer.Stop()
		t.rebrowseTimer = nil
	}
	t.mu.Unlock()
}
