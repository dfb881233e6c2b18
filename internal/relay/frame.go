// Package relay implements the message-relay service used for remote
// play: devices join a named session on the relay server, which fans
// frames out to addressees. The client side lives in
// internal/transport.
package relay

import (
	"encoding/json"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

// Frame kinds exchanged between relay clients and the server.
const (
	KindJoin       = "join"       // client -> server: enter a session
	KindPeers      = "peers"      // server -> client: current session members
	KindPeerJoined = "peerJoined" // server -> clients: a member arrived
	KindPeerLeft   = "peerLeft"   // server -> clients: a member dropped
	KindConnect    = "connect"    // routed: connection request with context
	KindAccept     = "accept"     // routed: connection accepted
	KindReject     = "reject"     // routed: connection refused
	KindData       = "data"       // routed: application message
	KindDisconnect = "disconnect" // routed: session teardown with reason
)

// PeerInfo identifies one session member.
type PeerInfo struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
}

// Frame is the relay envelope. The server routes on To/From and treats
// Context and Msg as opaque.
type Frame struct {
	Kind      string          `json:"kind"`
	Session   string          `json:"session,omitempty"`
	From      string          `json:"from,omitempty"` // device id
	To        string          `json:"to,omitempty"`   // device id; empty = all others
	Info      *PeerInfo       `json:"info,omitempty"`
	Context   json.RawMessage `json:"context,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Reconnect bool            `json:"reconnect,omitempty"`
	Msg       *wire.Message   `json:"msg,omitempty"`
	Peers     []PeerInfo      `json:"peers,omitempty"`
}
