package transport

import (
	"testing"
	"time"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

// recordingDelegate turns delegate callbacks into channel events so
// tests can await them.
type recordingDelegate struct {
	accept     bool
	discovered chan *Peer
	state      chan *Peer
	data       chan wire.Message
	requests   chan ConnectionContext
}

func newRecordingDelegate(accept bool) *recordingDelegate {
	return &recordingDelegate{
		accept:     accept,
		discovered: make(chan *Peer, 16),
		state:      make(chan *Peer, 16),
		data:       make(chan wire.Message, 16),
		requests:   make(chan ConnectionContext, 16),
	}
}

func (d *recordingDelegate) PeerDiscovered(p *Peer) { d.discovered <- p }
func (d *recordingDelegate) PeerLost(p *Peer)       {}
func (d *recordingDelegate) ConnectionRequested(p *Peer, ctx ConnectionContext) bool {
	d.requests <- ctx
	return d.accept
}
func (d *recordingDelegate) PeerStateChanged(p *Peer)              { d.state <- p }
func (d *recordingDelegate) DataReceived(from *Peer, m wire.Message) { d.data <- m }

func awaitPeer(t *testing.T, ch chan *Peer, what string) *Peer {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return nil
	}
}

func awaitState(t *testing.T, ch chan *Peer, want ConnState) *Peer {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-ch:
			if p.State() == want {
				return p
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
			return nil
		}
	}
}

func testIdentity(name string) Identity {
	return Identity{
		DeviceID:   name + "-device",
		DeviceName: name + "'s device",
		PlayerID:   name + "-player",
		PlayerName: name,
	}
}

func TestLoopbackConnectAndSend(t *testing.T) {
	network := NewLoopbackNetwork()
	hostID, clientID := testIdentity("host"), testIdentity("client")
	hostBackend := network.Endpoint(hostID)
	clientBackend := network.Endpoint(clientID)
	defer hostBackend.Stop()
	defer clientBackend.Stop()

	hostDelegate := newRecordingDelegate(true)
	clientDelegate := newRecordingDelegate(false)
	hostBackend.SetDelegate(hostDelegate)
	clientBackend.SetDelegate(clientDelegate)

	if err := hostBackend.StartAdvertising(); err != nil {
		t.Fatal(err)
	}
	if err := clientBackend.StartBrowsing(); err != nil {
		t.Fatal(err)
	}

	hostPeer := awaitPeer(t, clientDelegate.discovered, "host discovery")
	if hostPeer.DeviceID != hostID.DeviceID {
		t.Fatalf("discovered wrong device %s", hostPeer.DeviceID)
	}

	if !clientBackend.Connect(hostPeer, NewContext(clientID)) {
		t.Fatal("connect refused")
	}
	ctx := <-hostDelegate.requests
	if ctx.PlayerID != clientID.PlayerID {
		t.Fatalf("connect context carried wrong player %s", ctx.PlayerID)
	}
	awaitState(t, clientDelegate.state, Connected)
	clientPeer := awaitState(t, hostDelegate.state, Connected)

	// Client to host, addressed.
	clientBackend.Send(wire.MustNew(wire.DescStatus, wire.StatusMsg{Message: "hello"}), hostPeer)
	select {
	case msg := <-hostDelegate.data:
		if msg.Descriptor != wire.DescStatus {
			t.Fatalf("got descriptor %s", msg.Descriptor)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("host never received the message")
	}

	// Host to everyone, broadcast.
	hostBackend.Send(wire.MustNew(wire.DescPlayHand, wire.PlayHandMsg{}))
	select {
	case msg := <-clientDelegate.data:
		if msg.Descriptor != wire.DescPlayHand {
			t.Fatalf("got descriptor %s", msg.Descriptor)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client never received the broadcast")
	}

	// Host-initiated disconnect with reconnection disabled is terminal.
	hostBackend.Disconnect(clientPeer, "Game is full", false)
	dropped := awaitState(t, clientDelegate.state, NotConnected)
	if dropped.Reason() != "Game is full" {
		t.Fatalf("reason = %q", dropped.Reason())
	}
	if dropped.AutoReconnect() {
		t.Fatal("terminal drop must clear the reconnect intent")
	}
}

func TestLoopbackRefusedConnection(t *testing.T) {
	network := NewLoopbackNetwork()
	hostBackend := network.Endpoint(testIdentity("host"))
	clientBackend := network.Endpoint(testIdentity("client"))
	defer hostBackend.Stop()
	defer clientBackend.Stop()

	hostDelegate := newRecordingDelegate(false)
	clientDelegate := newRecordingDelegate(false)
	hostBackend.SetDelegate(hostDelegate)
	clientBackend.SetDelegate(clientDelegate)

	_ = hostBackend.StartAdvertising()
	_ = clientBackend.StartBrowsing()

	hostPeer := awaitPeer(t, clientDelegate.discovered, "host discovery")
	clientBackend.Connect(hostPeer, NewContext(testIdentity("client")))
	<-hostDelegate.requests

	refused := awaitState(t, clientDelegate.state, NotConnected)
	if refused.AutoReconnect() {
		t.Fatal("refused connection must not reconnect")
	}
}
