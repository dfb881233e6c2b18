// Command whist runs a contract whist game session from the terminal.
//
// Modes:
//
//	demo  - self-contained game on the in-process loopback, the local
//	        seat and three robots playing every round (default)
//	host  - host a game over LAN broadcast or a relay server and play
//	        the local seat unattended once enough players join
//	join  - join a discovered game as an unattended robot player
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/game"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/host"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/profile"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/robot"
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/transport"
)

var (
	flagMode    = flag.String("mode", "demo", "demo, host or join")
	flagName    = flag.String("name", "Player", "Player name")
	flagBackend = flag.String("backend", "lan", "Transport for host/join: lan or relay")
	flagRelay   = flag.String("relay", "ws://localhost:8080/ws", "Relay server URL (backend=relay)")
	flagSession = flag.String("session", "whist", "Relay session code (backend=relay)")
	flagRobots  = flag.Int("robots", 3, "Robot seats to fill (demo/host)")
	flagFrom    = flag.Int("from", 7, "Cards in the first round")
	flagTo      = flag.Int("to", 1, "Cards in the last round before the bounce")
	flagBounce  = flag.Bool("bounce", false, "Play back up to the first round's size")
	flagThink   = flag.Duration("think", 0, "Robot pause before each action")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	identity := transport.Identity{
		DeviceID:   uuid.NewString(),
		DeviceName: *flagName + "'s device",
		PlayerID:   uuid.NewString(),
		PlayerName: *flagName,
	}

	var err error
	switch *flagMode {
	case "demo":
		err = runDemo(identity)
	case "host":
		err = runHost(identity, makeBackend(identity))
	case "join":
		err = runJoin(identity, makeBackend(identity))
	default:
		err = fmt.Errorf("unknown mode %q", *flagMode)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func makeBackend(identity transport.Identity) transport.Backend {
	switch *flagBackend {
	case "lan":
		return transport.NewLAN(identity)
	case "relay":
		return transport.NewRelayClient(*flagRelay, *flagSession, identity)
	}
	log.Fatalf("unknown backend %q", *flagBackend)
	return nil
}

func settings() game.Settings {
	return game.Settings{
		CardsInRound: game.RoundPlan(*flagFrom, *flagTo, *flagBounce),
		BonusTwos:    true,
	}
}

// runDemo plays a whole game in one process over the loopback.
func runDemo(identity transport.Identity) error {
	network := transport.NewLoopbackNetwork()
	hostBackend := network.Endpoint(identity)

	store := profile.NewMemoryStore()
	ctrl := host.NewController(hostBackend, identity, settings(),
		host.Config{MinPlayers: *flagRobots + 1, MaxPlayers: *flagRobots + 1},
		store, profile.LogNotifier{})
	if err := ctrl.Start(); err != nil {
		return err
	}

	robots := startRobots(network, *flagRobots)
	defer func() {
		for _, r := range robots {
			r.Stop()
		}
	}()

	// Robots join through the same discover/connect handshake remote
	// devices use.
	for _, r := range robots {
		if err := r.Controller().Browse(); err != nil {
			return err
		}
	}
	for _, r := range robots {
		hostPeer := awaitPeer(r.Controller().Peers)
		if hostPeer == nil {
			return fmt.Errorf("robot never discovered the host")
		}
		r.Join(hostPeer)
	}
	if !awaitReady(ctrl) {
		return fmt.Errorf("robots never connected")
	}

	if err := ctrl.StartGame(); err != nil {
		return err
	}
	return autopilot(ctrl)
}

// runHost hosts over a real transport and waits for remote players,
// then plays the local seat unattended.
func runHost(identity transport.Identity, backend transport.Backend) error {
	store := profile.NewMemoryStore()
	ctrl := host.NewController(backend, identity, settings(),
		host.Config{RecoveryPath: recoveryPath()}, store, profile.LogNotifier{})
	if err := ctrl.Start(); err != nil {
		return err
	}
	defer ctrl.Stop()

	resumed := ctrl.Resume()
	if resumed {
		fmt.Printf("Resuming interrupted game as %s, waiting for players to rejoin...\n", identity.PlayerName)
	} else {
		fmt.Printf("Hosting as %s, waiting for players...\n", identity.PlayerName)
	}
	for !ctrl.CanProceed() {
		time.Sleep(500 * time.Millisecond)
	}
	if !resumed {
		if err := ctrl.StartGame(); err != nil {
			return err
		}
	}
	return autopilot(ctrl)
}

// runJoin joins a discovered host and plays unattended.
func runJoin(identity transport.Identity, backend transport.Backend) error {
	r := robot.New(backend, identity)
	r.ThinkTime = *flagThink
	if err := r.Controller().Browse(); err != nil {
		return err
	}
	fmt.Printf("Browsing for a game as %s...\n", identity.PlayerName)
	hostPeer := awaitPeer(r.Controller().Peers)
	if hostPeer == nil {
		return fmt.Errorf("no host found")
	}
	fmt.Printf("Joining %s\n", hostPeer.DeviceName)
	r.Join(hostPeer)

	// Play until the host ends the session.
	for !r.Controller().Idle() {
		time.Sleep(time.Second)
	}
	r.Stop()
	fmt.Println("Session ended")
	return nil
}

func startRobots(network *transport.LoopbackNetwork, n int) []*robot.Robot {
	names := []string{"Ada", "Bea", "Cal", "Dee", "Eli", "Fay"}
	robots := make([]*robot.Robot, 0, n)
	for i := 0; i < n; i++ {
		id := transport.Identity{
			DeviceID:   uuid.NewString(),
			DeviceName: names[i%len(names)] + "'s device",
			PlayerID:   uuid.NewString(),
			PlayerName: names[i%len(names)],
		}
		r := robot.New(network.Endpoint(id), id)
		r.ThinkTime = *flagThink
		robots = append(robots, r)
	}
	return robots
}

func awaitPeer(peers func() []*transport.Peer) *transport.Peer {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if ps := peers(); len(ps) > 0 {
			return ps[0]
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func awaitReady(ctrl *host.Controller) bool {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.CanProceed() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// autopilot plays the host's own seat mechanically and deals each round
// until the game completes, then prints the final scores.
func autopilot(ctrl *host.Controller) error {
	rounds := 0
	ctrl.WithState(func(s *game.State) { rounds = s.Settings.Rounds() })

	for {
		var (
			done     bool
			needDeal bool
			bid      = -1
			card     = -1
		)
		ctrl.WithState(func(s *game.State) {
			if s.Hand == nil || s.Hand.Complete() {
				if s.Round >= rounds && s.Hand != nil {
					done = true
					return
				}
				needDeal = true
				return
			}
			if s.Scorepad != nil && s.Scorepad.Cell(0, s.Round).Bid.IsZero() {
				bid = hostBid(s)
				return
			}
			if s.Hand.ToPlay() == 0 && len(s.Hand.Hands[0]) > 0 {
				card = hostCard(s.Hand)
			}
		})

		switch {
		case done:
			printScores(ctrl)
			return nil
		case needDeal:
			if err := ctrl.DealNextHand(); err != nil {
				return err
			}
		case bid >= 0:
			ctrl.EnterBid(0, bid)
		case card >= 0:
			if err := ctrl.PlayCard(card); err != nil {
				return err
			}
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}
}

// hostBid counts trumps and aces like the robots do.
func hostBid(s *game.State) int {
	trump := s.Settings.Trump(s.Round)
	bid := 0
	for _, c := range s.Deal[0] {
		card := game.Card(c)
		if card.Suit() == trump && trump != game.NoTrump {
			bid++
		} else if card.Rank() == game.RankAce {
			bid++
		}
	}
	if max := s.Settings.CardsInRoundN(s.Round); bid > max {
		bid = max
	}
	return bid
}

func hostCard(h *game.HandState) int {
	cards := h.Hands[0]
	if len(h.TrickCards) == 0 {
		return cards[0]
	}
	led := game.Card(h.TrickCards[0]).Suit()
	for _, c := range cards {
		if game.Card(c).Suit() == led {
			return c
		}
	}
	return cards[0]
}

func printScores(ctrl *host.Controller) {
	ctrl.WithState(func(s *game.State) {
		fmt.Println("Final scores:")
		for seat, p := range s.Players {
			fmt.Printf("  %-12s %4d\n", p.Name, s.Scorepad.Score(seat))
		}
	})
}

func recoveryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return dir + "/whist/recovery.json"
}
