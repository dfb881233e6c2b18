package host

import (
	"github.com/google/uuid"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/transport"
)

// InviteStatus tracks where a roster entry is in its join/invite cycle.
type InviteStatus int

const (
	InviteNone InviteStatus = iota
	InviteInviting
	InviteInvited
	InviteReconnecting
)

func (s InviteStatus) String() string {
	switch s {
	case InviteNone:
		return "none"
	case InviteInviting:
		return "inviting"
	case InviteInvited:
		return "invited"
	case InviteReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// PlayerSlot is one host-side roster entry. Slot 0 is always the host's
// own player and is never removed or disconnected by the protocol.
type PlayerSlot struct {
	PlayerID string
	Name     string
	// Peer is nil while the seat is pending (invited but not connected).
	Peer   *transport.Peer
	Status InviteStatus
	// DisconnectReason non-empty marks "drop on connect": the peer is
	// accepted just long enough to be told why it is being dropped.
	DisconnectReason string
	// Token is a stable identity for UI correlation across roster
	// reshuffles.
	Token uuid.UUID
	// PresenceAddress is optional supplementary contact info from the
	// connection context.
	PresenceAddress string
}

// Connected reports whether the slot has a live session.
func (s *PlayerSlot) Connected() bool {
	return s.Peer != nil && s.Peer.State() == transport.Connected
}
