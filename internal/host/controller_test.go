package host

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/client"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/game"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/profile"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/robot"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/transport"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func identity(name string) transport.Identity {
	return transport.Identity{
		DeviceID:   name + "-device",
		DeviceName: name + "'s device",
		PlayerID:   name + "-player",
		PlayerName: name,
	}
}

// joinClient browses, discovers the host and connects, waiting until the
// initial state bundle has been applied.
func joinClient(t *testing.T, network *transport.LoopbackNetwork, id transport.Identity) *client.Controller {
	t.Helper()
	ctrl := client.NewController(network.Endpoint(id), id, profile.LogNotifier{})
	if err := ctrl.Browse(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, id.PlayerName+" discovering the host", func() bool {
		return len(ctrl.Peers()) > 0
	})
	if !ctrl.Connect(ctrl.Peers()[0]) {
		t.Fatalf("%s connect refused", id.PlayerName)
	}
	waitFor(t, id.PlayerName+" receiving the state bundle", func() bool {
		return !ctrl.Idle() && !ctrl.AwaitingState()
	})
	return ctrl
}

func newTestHost(t *testing.T, network *transport.LoopbackNetwork, settings game.Settings, cfg Config) (*Controller, *profile.MemoryStore) {
	t.Helper()
	store := profile.NewMemoryStore()
	ctrl := NewController(network.Endpoint(identity("host")), identity("host"),
		settings, cfg, store, profile.LogNotifier{})
	if err := ctrl.Start(); err != nil {
		t.Fatal(err)
	}
	return ctrl, store
}

func TestHostRosterThreePlayers(t *testing.T) {
	network := transport.NewLoopbackNetwork()
	hostCtrl, _ := newTestHost(t, network, game.DefaultSettings(), Config{MinPlayers: 3})

	if hostCtrl.CanProceed() {
		t.Fatal("host alone must not be able to proceed")
	}

	a := joinClient(t, network, identity("ada"))
	b := joinClient(t, network, identity("bea"))

	waitFor(t, "three connected seats", func() bool {
		return hostCtrl.ConnectedPlayers() == 3 && hostCtrl.CanProceed()
	})

	for _, ctrl := range []*client.Controller{a, b} {
		waitFor(t, "full roster on the client", func() bool {
			ok := true
			ctrl.WithState(func(s *game.State) {
				if len(s.Players) != 3 {
					ok = false
					return
				}
				for _, p := range s.Players {
					if !p.Connected {
						ok = false
					}
				}
			})
			return ok
		})
	}

	// Join order is preserved, host first.
	roster := hostCtrl.Roster()
	if roster[0].PlayerID != "host-player" {
		t.Fatalf("slot 0 is %s, not the host", roster[0].PlayerID)
	}
}

func TestHostRejectsDuplicatePlayer(t *testing.T) {
	network := transport.NewLoopbackNetwork()
	hostCtrl, _ := newTestHost(t, network, game.DefaultSettings(), Config{MinPlayers: 3})

	joinClient(t, network, identity("ada"))

	// Same player id from a different device loses; the original stays.
	dup := identity("ada")
	dup.DeviceID = "ada-second-device"
	dup.DeviceName = "ada's other device"
	dupCtrl := client.NewController(network.Endpoint(dup), dup, profile.LogNotifier{})
	if err := dupCtrl.Browse(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "duplicate discovering the host", func() bool {
		return len(dupCtrl.Peers()) > 0
	})
	dupCtrl.Connect(dupCtrl.Peers()[0])

	waitFor(t, "duplicate being dropped", func() bool {
		return dupCtrl.Idle()
	})
	if got := hostCtrl.ConnectedPlayers(); got != 2 {
		t.Fatalf("connected players = %d, original seat must survive", got)
	}
}

func TestHostRejectsWhenFull(t *testing.T) {
	network := transport.NewLoopbackNetwork()
	newTestHost(t, network, game.DefaultSettings(), Config{MinPlayers: 2, MaxPlayers: 2})

	joinClient(t, network, identity("ada"))

	late := identity("cal")
	lateCtrl := client.NewController(network.Endpoint(late), late, profile.LogNotifier{})
	if err := lateCtrl.Browse(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "late player discovering the host", func() bool {
		return len(lateCtrl.Peers()) > 0
	})
	lateCtrl.Connect(lateCtrl.Peers()[0])

	waitFor(t, "late player being dropped", func() bool {
		return lateCtrl.Idle()
	})
}

func TestHostBidEcho(t *testing.T) {
	network := transport.NewLoopbackNetwork()
	hostCtrl, _ := newTestHost(t, network, game.DefaultSettings(), Config{MinPlayers: 3})

	a := joinClient(t, network, identity("ada"))
	b := joinClient(t, network, identity("bea"))
	waitFor(t, "full roster", func() bool { return hostCtrl.CanProceed() })

	if err := hostCtrl.StartGame(); err != nil {
		t.Fatal(err)
	}
	if err := hostCtrl.DealNextHand(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "round reaching the clients", func() bool {
		rounds := 0
		for _, ctrl := range []*client.Controller{a, b} {
			ctrl.WithState(func(s *game.State) { rounds += s.Round })
		}
		return rounds == 2
	})

	a.EnterBid(2)
	var seatA int
	hostCtrl.WithState(func(s *game.State) { seatA = s.SeatOf("ada-player") })
	if seatA < 0 {
		t.Fatal("ada has no seat")
	}

	// The authoritative echo lands on the host pad and every follower.
	waitFor(t, "bid on the host pad", func() bool {
		var ok bool
		hostCtrl.WithState(func(s *game.State) {
			bid, set := s.Scorepad.Cell(seatA, 1).Bid.Get()
			ok = set && bid == 2
		})
		return ok
	})
	waitFor(t, "bid echoed to the other follower", func() bool {
		var ok bool
		b.WithState(func(s *game.State) {
			if s.Scorepad == nil {
				return
			}
			bid, set := s.Scorepad.Cell(seatA, 1).Bid.Get()
			ok = set && bid == 2
		})
		return ok
	})
	waitFor(t, "pending bid settled by the echo", func() bool {
		_, pending := a.PendingBid()
		return !pending
	})
}

func TestHostReconnectReceivesScores(t *testing.T) {
	network := transport.NewLoopbackNetwork()
	hostCtrl, _ := newTestHost(t, network, game.DefaultSettings(), Config{MinPlayers: 3})

	joinClient(t, network, identity("ada"))
	bID := identity("bea")
	bBackend := network.Endpoint(bID)
	b := client.NewController(bBackend, bID, profile.LogNotifier{})
	if err := b.Browse(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "bea discovering the host", func() bool { return len(b.Peers()) > 0 })
	hostPeer := b.Peers()[0]
	b.Connect(hostPeer)
	waitFor(t, "bea joined", func() bool { return hostCtrl.CanProceed() })

	if err := hostCtrl.StartGame(); err != nil {
		t.Fatal(err)
	}
	if err := hostCtrl.DealNextHand(); err != nil {
		t.Fatal(err)
	}
	hostCtrl.EnterBid(0, 3)

	// Bea drops spontaneously; loopback supports reconnection so the
	// seat is kept as a placeholder.
	bBackend.Disconnect(hostPeer, "network glitch", true)
	waitFor(t, "bea idle after the drop", func() bool { return b.Idle() })
	waitFor(t, "host keeping the seat", func() bool {
		return len(hostCtrl.Roster()) == 3
	})

	// Reconnect: browse again, connect, and the refresh bundle restores
	// the ledger.
	if err := b.Browse(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "bea rediscovering the host", func() bool { return len(b.Peers()) > 0 })
	b.Connect(b.Peers()[0])
	waitFor(t, "scores restored after reconnect", func() bool {
		var ok bool
		b.WithState(func(s *game.State) {
			if s.Scorepad == nil {
				return
			}
			bid, set := s.Scorepad.Cell(0, 1).Bid.Get()
			ok = set && bid == 3
		})
		return ok
	})
}

func TestHostResumeRestoresRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.json")
	network := transport.NewLoopbackNetwork()
	hostCtrl, _ := newTestHost(t, network, game.DefaultSettings(),
		Config{MinPlayers: 2, RecoveryPath: path})

	joinClient(t, network, identity("ada"))
	waitFor(t, "full roster", func() bool { return hostCtrl.CanProceed() })
	if err := hostCtrl.StartGame(); err != nil {
		t.Fatal(err)
	}
	if err := hostCtrl.DealNextHand(); err != nil {
		t.Fatal(err)
	}

	// A fresh controller on the same path, as after a restart.
	restarted, _ := newTestHost(t, transport.NewLoopbackNetwork(), game.DefaultSettings(),
		Config{MinPlayers: 2, RecoveryPath: path})
	if !restarted.Resume() {
		t.Fatal("resume must succeed with a checkpoint present")
	}

	restarted.WithState(func(s *game.State) {
		if s.Round != 1 || s.Hand == nil || s.Hand.Trick != 1 {
			t.Fatalf("hand not restored: round=%d", s.Round)
		}
		if len(s.Players) != 2 || s.Players[1].PlayerID != "ada-player" {
			t.Fatalf("roster not restored: %+v", s.Players)
		}
		if s.Scorepad == nil || s.Scorepad.Seats() != 2 {
			t.Fatal("scorepad not sized for the restored roster")
		}
	})

	// A former player rejoins the resumed game; a stranger does not.
	if reason := restarted.AddPlayer("ada", "ada-player", nil); reason != "" {
		t.Fatalf("former player rejected: %s", reason)
	}
	if reason := restarted.AddPlayer("zed", "zed-player", nil); reason != ReasonInProgress {
		t.Fatalf("stranger got %q, want in-progress rejection", reason)
	}
}

func TestHostSharingPeerWatchesWithoutSeat(t *testing.T) {
	network := transport.NewLoopbackNetwork()
	hostCtrl, _ := newTestHost(t, network, game.DefaultSettings(), Config{MinPlayers: 2})

	a := joinClient(t, network, identity("ada"))
	waitFor(t, "full roster", func() bool { return hostCtrl.CanProceed() })

	// A view-only connection: gets the bundle and broadcasts, no seat.
	sID := identity("sue")
	viewer := client.NewController(network.Endpoint(sID), sID, profile.LogNotifier{})
	viewer.ShareOnly()
	if err := viewer.Browse(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "viewer discovering the host", func() bool {
		return len(viewer.Peers()) > 0
	})
	if !viewer.Connect(viewer.Peers()[0]) {
		t.Fatal("viewer connect refused")
	}
	waitFor(t, "viewer receiving the bundle", func() bool {
		return !viewer.Idle() && !viewer.AwaitingState()
	})

	if got := len(hostCtrl.Roster()); got != 2 {
		t.Fatalf("roster size = %d, a sharing peer must not take a seat", got)
	}

	if err := hostCtrl.StartGame(); err != nil {
		t.Fatal(err)
	}
	if err := hostCtrl.DealNextHand(); err != nil {
		t.Fatal(err)
	}
	hostCtrl.EnterBid(0, 3)

	waitFor(t, "score broadcast reaching the viewer", func() bool {
		var ok bool
		viewer.WithState(func(s *game.State) {
			if s.Scorepad == nil {
				return
			}
			bid, set := s.Scorepad.Cell(0, 1).Bid.Get()
			ok = set && bid == 3
		})
		return ok
	})

	// Mid-trick plays reach the viewer card by card, not only at the
	// end-of-trick hand-state broadcast.
	var lead int
	waitFor(t, "ada on lead", func() bool {
		ok := false
		a.WithState(func(s *game.State) {
			if s.Hand != nil && s.Hand.ToPlay() == 1 && len(s.Hand.Hands[1]) > 0 {
				lead = s.Hand.Hands[1][0]
				ok = true
			}
		})
		return ok
	})
	a.PlayCard(lead)
	waitFor(t, "mid-trick card reaching the viewer", func() bool {
		var ok bool
		viewer.WithState(func(s *game.State) {
			ok = s.Hand != nil && len(s.Hand.TrickCards) == 1
		})
		return ok
	})
}

func TestHostFullRoundWithRobots(t *testing.T) {
	network := transport.NewLoopbackNetwork()
	settings := game.Settings{CardsInRound: []int{2}, BonusTwos: true}
	hostCtrl, store := newTestHost(t, network, settings, Config{MinPlayers: 4, Seed: 7})

	names := []string{"ada", "bea", "cal"}
	var robots []*robot.Robot
	for _, name := range names {
		id := identity(name)
		r := robot.New(network.Endpoint(id), id)
		if err := r.Controller().Browse(); err != nil {
			t.Fatal(err)
		}
		waitFor(t, name+" discovering the host", func() bool {
			return len(r.Controller().Peers()) > 0
		})
		r.Join(r.Controller().Peers()[0])
		robots = append(robots, r)
	}
	defer func() {
		for _, r := range robots {
			r.Stop()
		}
	}()
	waitFor(t, "all robots seated", func() bool { return hostCtrl.CanProceed() })

	if err := hostCtrl.StartGame(); err != nil {
		t.Fatal(err)
	}
	if err := hostCtrl.DealNextHand(); err != nil {
		t.Fatal(err)
	}

	// Drive the host's own seat; robots handle theirs.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var (
			complete bool
			bidDue   bool
			card     = -1
		)
		hostCtrl.WithState(func(s *game.State) {
			if s.Hand.Complete() {
				complete = true
				return
			}
			if s.Scorepad.Cell(0, 1).Bid.IsZero() {
				bidDue = true
				return
			}
			if s.Hand.ToPlay() == 0 && len(s.Hand.Hands[0]) > 0 {
				card = s.Hand.Hands[0][0]
			}
		})
		switch {
		case complete:
		case bidDue:
			hostCtrl.EnterBid(0, 1)
			continue
		case card >= 0:
			if err := hostCtrl.PlayCard(card); err != nil {
				t.Fatal(err)
			}
			continue
		default:
			time.Sleep(10 * time.Millisecond)
			continue
		}
		break
	}

	// Every trick went somewhere and the results hit the ledger.
	hostCtrl.WithState(func(s *game.State) {
		if !s.Hand.Complete() {
			t.Fatal("hand never completed")
		}
		totalMade := 0
		for seat := range s.Players {
			made, set := s.Scorepad.Cell(seat, 1).Made.Get()
			if !set {
				t.Fatalf("seat %d has no made entry", seat)
			}
			totalMade += made
		}
		if totalMade != 2 {
			t.Fatalf("made %d tricks in a 2-card round", totalMade)
		}
		for seat, p := range s.Players {
			if store.Score(p.PlayerID) != s.Scorepad.Score(seat) {
				t.Fatalf("persisted score for %s does not match the pad", p.Name)
			}
		}
	})

	// The robots' projections agree with the host's ledger.
	for i, r := range robots {
		var seat, want int
		hostCtrl.WithState(func(s *game.State) {
			seat = s.SeatOf(names[i] + "-player")
			want, _ = s.Scorepad.Cell(seat, 1).Made.Get()
		})
		if seat < 1 {
			t.Fatalf("%s has no seat", names[i])
		}
		waitFor(t, "robot ledger convergence", func() bool {
			var made int
			var set bool
			r.Controller().WithState(func(s *game.State) {
				if s.Scorepad != nil {
					made, set = s.Scorepad.Cell(seat, 1).Made.Get()
				}
			})
			return set && made == want
		})
	}
}
