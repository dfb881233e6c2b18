package transport

import (
	"time"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

// Identity describes the local endpoint as other devices see it.
type Identity struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// ConnectionContext is the blob the connecting side sends with a
// connection request; the accepting side's delegate decides accept or
// reject on it before the session completes.
type ConnectionContext struct {
	PlayerID        string `json:"playerId"`
	PlayerName      string `json:"playerName"`
	Timestamp       int64  `json:"timestamp"`
	PresenceAddress string `json:"presenceAddress,omitempty"`
	// Purpose is "sharing" for a view-only score connection; empty means
	// the peer wants a seat.
	Purpose string `json:"purpose,omitempty"`
}

// NewContext builds a connection context for the local identity.
func NewContext(id Identity) ConnectionContext {
	return ConnectionContext{
		PlayerID:   id.PlayerID,
		PlayerName: id.PlayerName,
		Timestamp:  time.Now().Unix(),
	}
}

// Delegate receives transport callbacks. Implementations must tolerate
// being called from backend goroutines; the controllers funnel shared-
// state mutation through their own single execution context.
type Delegate interface {
	PeerDiscovered(p *Peer)
	PeerLost(p *Peer)
	// ConnectionRequested decides whether an inbound connection request
	// completes. The context carries the remote player's identity.
	ConnectionRequested(p *Peer, ctx ConnectionContext) bool
	PeerStateChanged(p *Peer)
	DataReceived(from *Peer, msg wire.Message)
}

// Backend is the capability contract every transport implements: LAN
// broadcast discovery, the relay client, and the in-process loopback
// all look identical to the host and client controllers.
type Backend interface {
	SetDelegate(d Delegate)

	// StartAdvertising makes this endpoint discoverable.
	StartAdvertising() error
	// StartBrowsing starts discovery of advertising endpoints.
	StartBrowsing() error

	// Peers snapshots the currently tracked peers, connected or not.
	Peers() []*Peer

	// Connect requests a session with a discovered peer. The result
	// arrives later via PeerStateChanged; the return value only means
	// "request accepted for attempt".
	Connect(p *Peer, ctx ConnectionContext) bool

	// Send transmits to the given peers, or to every connected peer when
	// none are named. Sends are fire-and-forget: a failed send is
	// dropped and correctness restored by the next full-state refresh.
	Send(msg wire.Message, to ...*Peer)

	// Disconnect tears down a session, delivering reason to the remote
	// side first. shouldReconnect tells the remote whether to attempt
	// automatic reconnection.
	Disconnect(p *Peer, reason string, shouldReconnect bool)

	// SupportsReconnect reports whether a dropped peer should be kept as
	// a reconnect placeholder (relay, loopback) or removed outright
	// (LAN broadcast).
	SupportsReconnect() bool

	Stop()
}
