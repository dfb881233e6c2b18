package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

// DiscoveryPort is the UDP port LAN beacons are broadcast on.
const DiscoveryPort = 47152

const (
	beaconEvery = 2 * time.Second
	beaconStale = 8 * time.Second
)

// beacon is the discovery datagram an advertising endpoint broadcasts.
type beacon struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	TCPPort    int    `json:"tcpPort"`
}

// LANBackend is the local broadcast transport: UDP beacons for
// discovery with symmetric advertise/browse roles, and TCP sessions
// carrying length-prefixed JSON frames.
type LANBackend struct {
	identity Identity
	tracker  *Tracker

	mu          sync.Mutex
	delegate    Delegate
	conns       map[string]net.Conn // device id -> conn
	lastSeen    map[string]time.Time
	advertising bool
	browsing    bool
	tcpPort     int

	ln      net.Listener
	udp     *net.UDPConn
	sendUDP *net.UDPConn

	ctx    context.Context
	cancel context.CancelFunc
}

var _ Backend = (*LANBackend)(nil)

// NewLAN creates a LAN backend for the local identity.
func NewLAN(identity Identity) *LANBackend {
	ctx, cancel := context.WithCancel(context.Background())
	b := &LANBackend{
		identity: identity,
		conns:    make(map[string]net.Conn),
		lastSeen: make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}
	b.tracker = NewTracker(0, 0, b.rearm)
	return b
}

func (b *LANBackend) SetDelegate(d Delegate) {
	b.mu.Lock()
	b.delegate = d
	b.mu.Unlock()
	b.tracker.SetDelegate(&lanEvents{b: b})
}

func (b *LANBackend) getDelegate() Delegate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delegate
}

type lanEvents struct{ b *LANBackend }

func (e *lanEvents) PeerDiscovered(p *Peer)                                {}
func (e *lanEvents) PeerLost(p *Peer)                                      {}
func (e *lanEvents) ConnectionRequested(p *Peer, c ConnectionContext) bool { return false }
func (e *lanEvents) DataReceived(from *Peer, msg wire.Message)             {}
func (e *lanEvents) PeerStateChanged(p *Peer) {
	if d := e.b.getDelegate(); d != nil {
		d.PeerStateChanged(p)
	}
}

// rearm restarts advertising/browsing while peers are reconnecting.
func (b *LANBackend) rearm() {
	b.mu.Lock()
	advertising, browsing := b.advertising, b.browsing
	b.mu.Unlock()
	if advertising {
		_ = b.StartAdvertising()
	}
	if browsing {
		_ = b.StartBrowsing()
	}
}

// StartAdvertising opens the TCP listener (once) and starts beaconing.
func (b *LANBackend) StartAdvertising() error {
	b.mu.Lock()
	already := b.advertising
	b.advertising = true
	b.mu.Unlock()
	if already {
		return nil
	}

	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return fmt.Errorf("lan listen: %w", err)
	}
	b.ln = ln
	b.tcpPort = ln.Addr().(*net.TCPAddr).Port
	klog.V(1).Infof("LAN advertising %s on tcp port %d", b.identity.DeviceName, b.tcpPort)

	go b.acceptLoop()
	go b.beaconLoop()
	return nil
}

func (b *LANBackend) acceptLoop() {
	for {
		c, err := b.ln.Accept()
		if err != nil {
			select {
			case <-b.ctx.Done():
				return
			default:
			}
			klog.Errorf("LAN accept error: %v", err)
			continue
		}
		go b.handleInbound(c)
	}
}

func (b *LANBackend) beaconLoop() {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{
		IP:   net.IPv4bcast,
		Port: DiscoveryPort,
	})
	if err != nil {
		klog.Errorf("LAN beacon socket: %v", err)
		return
	}
	b.sendUDP = conn
	payload, _ := json.Marshal(beacon{
		DeviceID:   b.identity.DeviceID,
		DeviceName: b.identity.DeviceName,
		PlayerID:   b.identity.PlayerID,
		PlayerName: b.identity.PlayerName,
		TCPPort:    b.tcpPort,
	})
	ticker := time.NewTicker(beaconEvery)
	defer ticker.Stop()
	for {
		if _, err := conn.Write(payload); err != nil {
			klog.V(2).Infof("LAN beacon write failed: %v", err)
		}
		select {
		case <-ticker.C:
		case <-b.ctx.Done():
			return
		}
	}
}

// StartBrowsing listens for beacons and raises discovery callbacks.
func (b *LANBackend) StartBrowsing() error {
	b.mu.Lock()
	already := b.browsing
	b.browsing = true
	b.mu.Unlock()
	if already {
		return nil
	}

	udp, err := net.ListenUDP("udp4", &net.UDPAddr{Port: DiscoveryPort})
	if err != nil {
		return fmt.Errorf("lan browse: %w", err)
	}
	b.udp = udp
	go b.browseLoop()
	go b.sweepLoop()
	return nil
}

func (b *LANBackend) browseLoop() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := b.udp.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-b.ctx.Done():
				return
			default:
			}
			klog.V(2).Infof("LAN browse read: %v", err)
			continue
		}
		var bc beacon
		if err := json.Unmarshal(buf[:n], &bc); err != nil || bc.DeviceID == "" {
			continue
		}
		if bc.DeviceID == b.identity.DeviceID {
			continue
		}
		b.sawBeacon(bc, addr.IP)
	}
}

func (b *LANBackend) sawBeacon(bc beacon, ip net.IP) {
	b.mu.Lock()
	b.lastSeen[bc.DeviceID] = time.Now()
	b.mu.Unlock()

	if existing := b.tracker.Find(bc.DeviceID); existing != nil {
		return
	}
	p := b.tracker.Add(&Peer{
		DeviceID:   bc.DeviceID,
		DeviceName: bc.DeviceName,
		PlayerID:   bc.PlayerID,
		PlayerName: bc.PlayerName,
		Addr:       fmt.Sprintf("%s:%d", ip, bc.TCPPort),
	})
	if d := b.getDelegate(); d != nil {
		d.PeerDiscovered(p)
	}
}

// sweepLoop reports peers whose beacons have gone stale.
func (b *LANBackend) sweepLoop() {
	ticker := time.NewTicker(beaconStale / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-b.ctx.Done():
			return
		}
		for _, p := range b.tracker.Peers() {
			if p.State() != NotConnected {
				continue
			}
			b.mu.Lock()
			seen, ok := b.lastSeen[p.DeviceID]
			b.mu.Unlock()
			if ok && time.Since(seen) > beaconStale {
				b.tracker.Remove(p)
				if d := b.getDelegate(); d != nil {
					d.PeerLost(p)
				}
			}
		}
	}
}

// Connect dials the peer's TCP endpoint and runs the connect handshake.
func (b *LANBackend) Connect(p *Peer, connCtx ConnectionContext) bool {
	if p.Addr == "" {
		return false
	}
	b.tracker.Transition(p, Connecting, "")
	go func() {
		c, err := net.DialTimeout("tcp", p.Addr, 4*time.Second)
		if err != nil {
			klog.V(1).Infof("LAN dial %s failed: %v", p.Addr, err)
			return // the connecting watchdog resets the attempt
		}
		id := b.identity
		frame, err := encodeFrame(lanFrame{Kind: "connect", Identity: &id, Context: &connCtx})
		if err == nil {
			_, err = c.Write(frame)
		}
		if err != nil {
			_ = c.Close()
			return
		}
		r := bufio.NewReader(c)
		reply, err := decodeFrame(r)
		if err != nil || reply.Kind != "accept" {
			_ = c.Close()
			if reply.Kind == "reject" {
				p.SetAutoReconnect(false)
				b.tracker.Transition(p, NotConnected, reply.Reason)
			}
			return
		}
		b.attach(p, c)
		b.tracker.Transition(p, Connected, "")
		b.readLoop(p, r, c)
	}()
	return true
}

// handleInbound runs the accepting side of the connect handshake.
func (b *LANBackend) handleInbound(c net.Conn) {
	r := bufio.NewReader(c)
	frame, err := decodeFrame(r)
	if err != nil || frame.Kind != "connect" || frame.Identity == nil || frame.Context == nil {
		_ = c.Close()
		return
	}
	p := b.tracker.Find(frame.Identity.DeviceID)
	if p == nil {
		p = b.tracker.Add(&Peer{
			DeviceID:   frame.Identity.DeviceID,
			DeviceName: frame.Identity.DeviceName,
		})
	}
	p.PlayerID = frame.Context.PlayerID
	p.PlayerName = frame.Context.PlayerName
	p.Purpose = ParsePurpose(frame.Context.Purpose)
	p.Addr = c.RemoteAddr().String()

	d := b.getDelegate()
	if d == nil || !d.ConnectionRequested(p, *frame.Context) {
		reply, _ := encodeFrame(lanFrame{Kind: "reject", Reason: "connection refused"})
		_, _ = c.Write(reply)
		_ = c.Close()
		return
	}
	reply, err := encodeFrame(lanFrame{Kind: "accept"})
	if err == nil {
		_, err = c.Write(reply)
	}
	if err != nil {
		_ = c.Close()
		return
	}
	b.attach(p, c)
	b.tracker.Transition(p, Connected, "")
	b.readLoop(p, r, c)
}

func (b *LANBackend) attach(p *Peer, c net.Conn) {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	b.mu.Lock()
	if old, ok := b.conns[p.DeviceID]; ok {
		_ = old.Close()
	}
	b.conns[p.DeviceID] = c
	b.mu.Unlock()
}

func (b *LANBackend) detach(p *Peer, c net.Conn) {
	_ = c.Close()
	b.mu.Lock()
	if b.conns[p.DeviceID] == c {
		delete(b.conns, p.DeviceID)
	}
	b.mu.Unlock()
}

func (b *LANBackend) readLoop(p *Peer, r *bufio.Reader, c net.Conn) {
	defer b.detach(p, c)
	for {
		frame, err := decodeFrame(r)
		if err != nil {
			// Spontaneous drop.
			if p.State() == Connected {
				if p.AutoReconnect() {
					b.tracker.Transition(p, Reconnecting, "")
				} else {
					b.tracker.Transition(p, NotConnected, "")
				}
			}
			return
		}
		switch frame.Kind {
		case "data":
			if frame.Msg == nil {
				continue
			}
			if d := b.getDelegate(); d != nil {
				d.DataReceived(p, *frame.Msg)
			}
		case "disconnect":
			p.SetAutoReconnect(frame.Reconnect)
			b.tracker.Transition(p, NotConnected, frame.Reason)
			return
		}
	}
}

// Send writes a data frame to each target; failures are dropped
// silently, the next full refresh restores correctness.
func (b *LANBackend) Send(msg wire.Message, to ...*Peer) {
	targets := to
	if len(targets) == 0 {
		for _, p := range b.tracker.Peers() {
			if p.State() == Connected {
				targets = append(targets, p)
			}
		}
	}
	frame, err := encodeFrame(lanFrame{Kind: "data", Msg: &msg})
	if err != nil {
		klog.Errorf("LAN encode error: %v", err)
		return
	}
	for _, p := range targets {
		b.mu.Lock()
		c := b.conns[p.DeviceID]
		b.mu.Unlock()
		if c == nil {
			continue
		}
		if _, err := c.Write(frame); err != nil {
			klog.V(1).Infof("LAN send to %s dropped: %v", p.DeviceName, err)
		}
	}
}

func (b *LANBackend) Disconnect(p *Peer, reason string, shouldReconnect bool) {
	b.mu.Lock()
	c := b.conns[p.DeviceID]
	b.mu.Unlock()
	if c != nil {
		if frame, err := encodeFrame(lanFrame{Kind: "disconnect", Reason: reason, Reconnect: shouldReconnect}); err == nil {
			_, _ = c.Write(frame)
		}
		_ = c.Close()
	}
	p.SetAutoReconnect(false)
	b.tracker.Transition(p, NotConnected, "")
}

func (b *LANBackend) Peers() []*Peer { return b.tracker.Peers() }

// SupportsReconnect is false: in broadcast mode a spontaneously dropped
// follower loses its roster slot and rejoins from scratch.
func (b *LANBackend) SupportsReconnect() bool { return false }

func (b *LANBackend) Stop() {
	b.cancel()
	b.tracker.Stop()
	if b.ln != nil {
		_ = b.ln.Close()
	}
	if b.udp != nil {
		_ = b.udp.Close()
	}
	if b.sendUDP != nil {
		_ = b.sendUDP.Close()
	}
	b.mu.Lock()
	for _, c := range b.conns {
		_ = c.Close()
	}
	b.conns = map[string]net.Conn{}
	b.mu.Unlock()
}
