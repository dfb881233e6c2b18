package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

type stateOnlyDelegate struct {
	state chan *Peer
}

func (d *stateOnlyDelegate) PeerDiscovered(p *Peer)                                {}
func (d *stateOnlyDelegate) PeerLost(p *Peer)                                      {}
func (d *stateOnlyDelegate) ConnectionRequested(p *Peer, c ConnectionContext) bool { return false }
func (d *stateOnlyDelegate) PeerStateChanged(p *Peer)                              { d.state <- p }
func (d *stateOnlyDelegate) DataReceived(from *Peer, m wire.Message)               {}

func TestTrackerNotifiesOncePerTransition(t *testing.T) {
	tracker := NewTracker(time.Minute, time.Minute, nil)
	defer tracker.Stop()
	d := &stateOnlyDelegate{state: make(chan *Peer, 8)}
	tracker.SetDelegate(d)

	p := tracker.Add(&Peer{DeviceID: "d1", autoReconnect: true})
	tracker.Transition(p, Connected, "")
	tracker.Transition(p, Connected, "")

	<-d.state
	select {
	case <-d.state:
		t.Fatal("duplicate transition must not notify twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTrackerConnectWatchdog(t *testing.T) {
	tracker := NewTracker(50*time.Millisecond, time.Minute, nil)
	defer tracker.Stop()
	d := &stateOnlyDelegate{state: make(chan *Peer, 8)}
	tracker.SetDelegate(d)

	p := tracker.Add(&Peer{DeviceID: "d1", autoReconnect: true})
	tracker.Transition(p, Connecting, "")
	<-d.state // connecting

	select {
	case got := <-d.state:
		if got.State() != Reconnecting {
			t.Fatalf("watchdog moved peer to %s", got.State())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog never fired")
	}
}

func TestTrackerRebrowseWhileReconnecting(t *testing.T) {
	rebrowsed := make(chan struct{}, 8)
	tracker := NewTracker(time.Minute, 30*time.Millisecond, func() {
		rebrowsed <- struct{}{}
	})
	defer tracker.Stop()
	d := &stateOnlyDelegate{state: make(chan *Peer, 8)}
	tracker.SetDelegate(d)

	p := tracker.Add(&Peer{DeviceID: "d1", autoReconnect: true})
	tracker.Transition(p, Reconnecting, "")

	select {
	case <-rebrowsed:
	case <-time.After(5 * time.Second):
		t.Fatal("rebrowse never fired while a peer was reconnecting")
	}
}

func TestTrackerEvictsTerminalPeer(t *testing.T) {
	tracker := NewTracker(time.Minute, time.Minute, nil)
	defer tracker.Stop()
	d := &stateOnlyDelegate{state: make(chan *Peer, 8)}
	tracker.SetDelegate(d)

	p := tracker.Add(&Peer{DeviceID: "d1", autoReconnect: true})
	tracker.Transition(p, Connected, "")
	<-d.state

	p.SetAutoReconnect(false)
	tracker.Transition(p, NotConnected, "done")
	got := <-d.state
	if got.Reason() != "done" {
		t.Fatalf("reason = %q", got.Reason())
	}
	if tracker.Find("d1") != nil {
		t.Fatal("terminal peer must be evicted from the table")
	}
}

// Backends flip the reconnect flag and record reasons from their own
// goroutines while delegates read them; run with -race.
func TestPeerFlagsConcurrentAccess(t *testing.T) {
	p := &Peer{DeviceID: "d1"}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p.SetAutoReconnect(j%2 == 0)
				p.SetReason("dropped")
				_ = p.AutoReconnect()
				_ = p.Reason()
				_ = p.State()
			}
		}()
	}
	wg.Wait()
	if p.Reason() != "dropped" {
		t.Fatalf("reason = %q", p.Reason())
	}
}
