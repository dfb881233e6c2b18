package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"k8s.io/klog/v2"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/relay"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

// RelayBackend joins a named session on the relay server and exchanges
// addressed frames through it. Advertise and browse are symmetric: both
// just join the session; the hub's membership events drive discovery.
type RelayBackend struct {
	identity Identity
	url      string // ws://host:port/ws
	session  string // invitation/session code
	tracker  *Tracker

	mu        sync.Mutex
	delegate  Delegate
	conn      *websocket.Conn
	writeMu   sync.Mutex
	joined    bool
	initiated map[string]bool // device ids we dialed (reconnect from our side)
	lastCtx   ConnectionContext

	ctx    context.Context
	cancel context.CancelFunc
}

var _ Backend = (*RelayBackend)(nil)

// NewRelayClient creates a backend for the given relay URL and session
// code.
func NewRelayClient(url, session string, identity Identity) *RelayBackend {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RelayBackend{
		identity:  identity,
		url:       url,
		session:   session,
		initiated: make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
	}
	b.tracker = NewTracker(0, 0, b.rejoin)
	return b
}

func (b *RelayBackend) SetDelegate(d Delegate) {
	b.mu.Lock()
	b.delegate = d
	b.mu.Unlock()
	b.tracker.SetDelegate(&relayEvents{b: b})
}

func (b *RelayBackend) getDelegate() Delegate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delegate
}

type relayEvents struct{ b *RelayBackend }

func (e *relayEvents) PeerDiscovered(p *Peer)                                {}
func (e *relayEvents) PeerLost(p *Peer)                                      {}
func (e *relayEvents) ConnectionRequested(p *Peer, c ConnectionContext) bool { return false }
func (e *relayEvents) DataReceived(from *Peer, msg wire.Message)             {}
func (e *relayEvents) PeerStateChanged(p *Peer) {
	if d := e.b.getDelegate(); d != nil {
		d.PeerStateChanged(p)
	}
}

func (b *RelayBackend) StartAdvertising() error { return b.join() }
func (b *RelayBackend) StartBrowsing() error    { return b.join() }

// join dials the relay and enters the session; idempotent.
func (b *RelayBackend) join() error {
	b.mu.Lock()
	if b.joined {
		b.mu.Unlock()
		return nil
	}
	b.joined = true
	b.mu.Unlock()
	return b.dial()
}

func (b *RelayBackend) dial() error {
	dialCtx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, b.url, nil)
	if err != nil {
		b.mu.Lock()
		b.joined = false
		b.mu.Unlock()
		return err
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	join := relay.Frame{
		Kind:    relay.KindJoin,
		Session: b.session,
		Info: &relay.PeerInfo{
			DeviceID:   b.identity.DeviceID,
			DeviceName: b.identity.DeviceName,
			PlayerID:   b.identity.PlayerID,
			PlayerName: b.identity.PlayerName,
		},
	}
	if err := b.write(join); err != nil {
		conn.CloseNow()
		return err
	}
	go b.readLoop(conn)
	return nil
}

// rejoin re-dials the relay while peers are reconnecting.
func (b *RelayBackend) rejoin() {
	b.mu.Lock()
	connected := b.conn != nil
	b.mu.Unlock()
	if connected {
		return
	}
	klog.V(1).Infof("Relay rejoin attempt for session %s", b.session)
	if err := b.join(); err != nil {
		klog.V(1).Infof("Relay rejoin failed: %v", err)
	}
}

func (b *RelayBackend) write(f relay.Frame) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return context.Canceled
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}

func (b *RelayBackend) readLoop(conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
			b.joined = false
		}
		b.mu.Unlock()
		b.relayLost()
	}()
	for {
		var f relay.Frame
		if err := wsjson.Read(b.ctx, conn, &f); err != nil {
			select {
			case <-b.ctx.Done():
			default:
				klog.V(1).Infof("Relay read ended: %v", err)
			}
			return
		}
		b.handleFrame(f)
	}
}

// relayLost moves connected peers to reconnecting; the tracker's
// rebrowse timer keeps re-dialing the relay.
func (b *RelayBackend) relayLost() {
	select {
	case <-b.ctx.Done():
		return
	default:
	}
	for _, p := range b.tracker.Peers() {
		if p.State() == Connected || p.State() == Connecting {
			b.tracker.Transition(p, Reconnecting, "")
		}
	}
}

func (b *RelayBackend) handleFrame(f relay.Frame) {
	switch f.Kind {
	case relay.KindPeers:
		for i := range f.Peers {
			b.sawPeer(f.Peers[i])
		}
	case relay.KindPeerJoined:
		if f.Info != nil {
			b.sawPeer(*f.Info)
		}
	case relay.KindPeerLeft:
		if f.Info == nil {
			return
		}
		if p := b.tracker.Find(f.Info.DeviceID); p != nil && p.State() == Connected {
			if p.AutoReconnect() {
				b.tracker.Transition(p, Reconnecting, "")
			} else {
				b.tracker.Transition(p, NotConnected, "")
			}
		}
	case relay.KindConnect:
		b.inboundConnect(f)
	case relay.KindAccept:
		if p := b.tracker.Find(f.From); p != nil {
			b.tracker.Transition(p, Connected, "")
		}
	case relay.KindReject:
		if p := b.tracker.Find(f.From); p != nil {
			p.SetAutoReconnect(false)
			b.tracker.Transition(p, NotConnected, f.Reason)
		}
	case relay.KindData:
		if f.Msg == nil {
			return
		}
		p := b.tracker.Find(f.From)
		if p == nil {
			return
		}
		if d := b.getDelegate(); d != nil {
			d.DataReceived(p, *f.Msg)
		}
	case relay.KindDisconnect:
		if p := b.tracker.Find(f.From); p != nil {
			p.SetAutoReconnect(f.Reconnect)
			b.tracker.Transition(p, NotConnected, f.Reason)
		}
	}
}

func (b *RelayBackend) sawPeer(info relay.PeerInfo) {
	existing := b.tracker.Find(info.DeviceID)
	if existing != nil {
		b.mu.Lock()
		initiated := b.initiated[info.DeviceID]
		lastCtx := b.lastCtx
		b.mu.Unlock()
		// A reconnecting peer rejoining the session: if we dialed it
		// originally, repeat the connect handshake from our side.
		if existing.State() == Reconnecting && initiated {
			klog.V(1).Infof("Relay peer %s back, reconnecting", info.DeviceName)
			b.Connect(existing, lastCtx)
		}
		return
	}
	p := b.tracker.Add(&Peer{
		DeviceID:      info.DeviceID,
		DeviceName:    info.DeviceName,
		PlayerID:      info.PlayerID,
		PlayerName:    info.PlayerName,
		autoReconnect: true,
	})
	if d := b.getDelegate(); d != nil {
		d.PeerDiscovered(p)
	}
}

func (b *RelayBackend) inboundConnect(f relay.Frame) {
	var connCtx ConnectionContext
	if len(f.Context) > 0 {
		if err := json.Unmarshal(f.Context, &connCtx); err != nil {
			klog.Errorf("Relay connect with malformed context: %v", err)
			return
		}
	}
	p := b.tracker.Find(f.From)
	if p == nil {
		info := relay.PeerInfo{DeviceID: f.From}
		if f.Info != nil {
			info = *f.Info
		}
		p = b.tracker.Add(&Peer{
			DeviceID:      info.DeviceID,
			DeviceName:    info.DeviceName,
			autoReconnect: true,
		})
	}
	p.PlayerID = connCtx.PlayerID
	p.PlayerName = connCtx.PlayerName
	p.Purpose = ParsePurpose(connCtx.Purpose)

	d := b.getDelegate()
	if d == nil || !d.ConnectionRequested(p, connCtx) {
		_ = b.write(relay.Frame{Kind: relay.KindReject, To: f.From, Reason: "connection refused"})
		return
	}
	if err := b.write(relay.Frame{Kind: relay.KindAccept, To: f.From}); err != nil {
		return
	}
	b.tracker.Transition(p, Connected, "")
}

func (b *RelayBackend) Connect(p *Peer, connCtx ConnectionContext) bool {
	raw, err := json.Marshal(connCtx)
	if err != nil {
		return false
	}
	b.mu.Lock()
	b.initiated[p.DeviceID] = true
	b.lastCtx = connCtx
	b.mu.Unlock()
	b.tracker.Transition(p, Connecting, "")
	info := relay.PeerInfo{
		DeviceID:   b.identity.DeviceID,
		DeviceName: b.identity.DeviceName,
		PlayerID:   connCtx.PlayerID,
		PlayerName: connCtx.PlayerName,
	}
	if err := b.write(relay.Frame{Kind: relay.KindConnect, To: p.DeviceID, Info: &info, Context: raw}); err != nil {
		klog.V(1).Infof("Relay connect send failed: %v", err)
		// the connecting watchdog resets the attempt
	}
	return true
}

func (b *RelayBackend) Send(msg wire.Message, to ...*Peer) {
	targets := to
	if len(targets) == 0 {
		for _, p := range b.tracker.Peers() {
			if p.State() == Connected {
				targets = append(targets, p)
			}
		}
	}
	for _, p := range targets {
		if err := b.write(relay.Frame{Kind: relay.KindData, To: p.DeviceID, Msg: &msg}); err != nil {
			klog.V(1).Infof("Relay send to %s dropped: %v", p.DeviceName, err)
		}
	}
}

func (b *RelayBackend) Disconnect(p *Peer, reason string, shouldReconnect bool) {
	_ = b.write(relay.Frame{Kind: relay.KindDisconnect, To: p.DeviceID, Reason: reason, Reconnect: shouldReconnect})
	p.SetAutoReconnect(false)
	b.tracker.Transition(p, NotConnected, "")
}

func (b *RelayBackend) Peers() []*Peer { return b.tracker.Peers() }

// SupportsReconnect is true: in relay mode a dropped follower keeps its
// roster slot as a reconnect placeholder.
func (b *RelayBackend) SupportsReconnect() bool { return true }

func (b *RelayBackend) Stop() {
	b.cancel()
	b.tracker.Stop()
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}
