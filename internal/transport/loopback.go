package transport

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

// LoopbackNetwork wires a host endpoint directly to in-process follower
// endpoints with no network at all. Robot/AI opponents attach through it
// with the exact Backend contract real transports use.
type LoopbackNetwork struct {
	mu        sync.Mutex
	endpoints map[string]*LoopbackBackend // by device id
}

// NewLoopbackNetwork creates an empty switchboard.
func NewLoopbackNetwork() *LoopbackNetwork {
	return &LoopbackNetwork{endpoints: make(map[string]*LoopbackBackend)}
}

// Endpoint creates (or returns) the backend for an identity and starts
// its event loop.
func (n *LoopbackNetwork) Endpoint(identity Identity) *LoopbackBackend {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.endpoints[identity.DeviceID]; ok {
		return b
	}
	b := &LoopbackBackend{
		net:      n,
		identity: identity,
		events:   make(chan func(), 256),
		done:     make(chan struct{}),
	}
	b.tracker = NewTracker(0, 0, nil)
	n.endpoints[identity.DeviceID] = b
	go b.run()
	return b
}

func (n *LoopbackNetwork) endpoint(deviceID string) *LoopbackBackend {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.endpoints[deviceID]
}

func (n *LoopbackNetwork) all() []*LoopbackBackend {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*LoopbackBackend, 0, len(n.endpoints))
	for _, b := range n.endpoints {
		out = append(out, b)
	}
	return out
}

// LoopbackBackend is one endpoint on a LoopbackNetwork. All delegate
// callbacks run on the endpoint's own event goroutine, so an endpoint
// never sees concurrent callbacks.
type LoopbackBackend struct {
	net      *LoopbackNetwork
	identity Identity
	tracker  *Tracker

	mu          sync.Mutex
	delegate    Delegate
	advertising bool
	browsing    bool

	events chan func()
	done   chan struct{}
	once   sync.Once
}

var _ Backend = (*LoopbackBackend)(nil)

func (b *LoopbackBackend) run() {
	for {
		select {
		case fn := <-b.events:
			fn()
		case <-b.done:
			return
		}
	}
}

// post schedules fn on the endpoint's event goroutine.
func (b *LoopbackBackend) post(fn func()) {
	select {
	case b.events <- fn:
	case <-b.done:
	}
}

// Identity returns the endpoint's identity.
func (b *LoopbackBackend) Identity() Identity { return b.identity }

func (b *LoopbackBackend) SetDelegate(d Delegate) {
	b.mu.Lock()
	b.delegate = d
	b.mu.Unlock()
	b.tracker.SetDelegate(&loopbackEvents{b: b})
}

func (b *LoopbackBackend) getDelegate() Delegate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delegate
}

// loopbackEvents forwards tracker transitions to the delegate on the
// endpoint's event goroutine.
type loopbackEvents struct{ b *LoopbackBackend }

func (e *loopbackEvents) PeerDiscovered(p *Peer)                               {}
func (e *loopbackEvents) PeerLost(p *Peer)                                     {}
func (e *loopbackEvents) ConnectionRequested(p *Peer, c ConnectionContext) bool { return false }
func (e *loopbackEvents) DataReceived(from *Peer, msg wire.Message)            {}
func (e *loopbackEvents) PeerStateChanged(p *Peer) {
	if d := e.b.getDelegate(); d != nil {
		d.PeerStateChanged(p)
	}
}

func (b *LoopbackBackend) StartAdvertising() error {
	b.mu.Lock()
	b.advertising = true
	b.mu.Unlock()
	for _, other := range b.net.all() {
		if other == b {
			continue
		}
		other.mu.Lock()
		browsing := other.browsing
		other.mu.Unlock()
		if browsing {
			other.discover(b.identity)
		}
	}
	return nil
}

func (b *LoopbackBackend) StartBrowsing() error {
	b.mu.Lock()
	b.browsing = true
	b.mu.Unlock()
	for _, other := range b.net.all() {
		if other == b {
			continue
		}
		other.mu.Lock()
		advertising := other.advertising
		other.mu.Unlock()
		if advertising {
			b.discover(other.identity)
		}
	}
	return nil
}

// discover registers a peer for a remote identity and notifies the
// delegate on the event goroutine.
func (b *LoopbackBackend) discover(remote Identity) {
	b.post(func() {
		if b.tracker.Find(remote.DeviceID) != nil {
			return
		}
		p := b.tracker.Add(&Peer{
			DeviceID:      remote.DeviceID,
			DeviceName:    remote.DeviceName,
			PlayerID:      remote.PlayerID,
			PlayerName:    remote.PlayerName,
			autoReconnect: true,
		})
		if d := b.getDelegate(); d != nil {
			d.PeerDiscovered(p)
		}
	})
}

func (b *LoopbackBackend) Connect(p *Peer, ctx ConnectionContext) bool {
	remote := b.net.endpoint(p.DeviceID)
	if remote == nil {
		return false
	}
	// Transition on the event goroutine so the caller never receives
	// delegate callbacks re-entrantly.
	b.post(func() { b.tracker.Transition(p, Connecting, "") })
	remote.post(func() {
		// Build the remote's view of us.
		rp := remote.tracker.Find(b.identity.DeviceID)
		if rp == nil {
			rp = remote.tracker.Add(&Peer{
				DeviceID:      b.identity.DeviceID,
				DeviceName:    b.identity.DeviceName,
				autoReconnect: true,
			})
		}
		rp.PlayerID = ctx.PlayerID
		rp.PlayerName = ctx.PlayerName
		rp.Purpose = ParsePurpose(ctx.Purpose)

		d := remote.getDelegate()
		accepted := d != nil && d.ConnectionRequested(rp, ctx)
		b.post(func() {
			if accepted {
				b.tracker.Transition(p, Connected, "")
			} else {
				p.SetAutoReconnect(false)
				b.tracker.Transition(p, NotConnected, "connection refused")
			}
		})
		if accepted {
			remote.tracker.Transition(rp, Connected, "")
		}
	})
	return true
}

func (b *LoopbackBackend) Send(msg wire.Message, to ...*Peer) {
	targets := to
	if len(targets) == 0 {
		for _, p := range b.tracker.Peers() {
			if p.State() == Connected {
				targets = append(targets, p)
			}
		}
	}
	for _, p := range targets {
		remote := b.net.endpoint(p.DeviceID)
		if remote == nil || p.State() != Connected {
			klog.V(2).Infof("Loopback send to %s dropped", p.DeviceName)
			continue
		}
		remote.post(func() {
			from := remote.tracker.Find(b.identity.DeviceID)
			if from == nil {
				return
			}
			if d := remote.getDelegate(); d != nil {
				d.DataReceived(from, msg)
			}
		})
	}
}

func (b *LoopbackBackend) Disconnect(p *Peer, reason string, shouldReconnect bool) {
	if remote := b.net.endpoint(p.DeviceID); remote != nil {
		remote.post(func() {
			rp := remote.tracker.Find(b.identity.DeviceID)
			if rp == nil {
				return
			}
			rp.SetAutoReconnect(shouldReconnect)
			remote.tracker.Transition(rp, NotConnected, reason)
		})
	}
	b.post(func() {
		p.SetAutoReconnect(false)
		b.tracker.Transition(p, NotConnected, "")
	})
}

func (b *LoopbackBackend) Peers() []*Peer { return b.tracker.Peers() }

func (b *LoopbackBackend) SupportsReconnect() bool { return true }

func (b *LoopbackBackend) Stop() {
	b.once.Do(func() {
		close(b.done)
		b.tracker.Stop()
	})
}
