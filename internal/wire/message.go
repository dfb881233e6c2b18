package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"k8s.io/klog/v2"
)

// Strict makes malformed payloads for known descriptors panic instead of
// being logged and dropped. Tests and development builds set it to catch
// protocol drift early; production leaves it false.
var Strict = false

// Descriptor tags identifying the meaning and shape of a message.
const (
	DescState            = "state" // bundle, see StateMsg
	DescSettings         = "settings"
	DescPlayers          = "players"
	DescPreviewPlayers   = "previewPlayers"
	DescGamePlayers      = "gamePlayers"
	DescDealer           = "dealer"
	DescDeal             = "deal"
	DescScores           = "scores"
	DescAllScores        = "allscores"
	DescHandState        = "handState"
	DescPlayed           = "played"
	DescAutoPlay         = "autoPlay"
	DescThumbnail        = "thumbnail"
	DescRequestThumbnail = "requestThumbnail"
	DescStatus           = "status"
	DescRefreshRequest   = "refreshRequest"
	DescPlayHand         = "playHand"
	DescDisconnect       = "disconnect"
	DescTestConnection   = "testConnection"
	DescTestResponse     = "testResponse"
)

// ErrUnknownDescriptor is returned by Parse for descriptors the protocol
// layer does not recognize; callers pass those to a fallback handler.
var ErrUnknownDescriptor = errors.New("unknown descriptor")

// Message is the wire envelope: a named descriptor plus a nested payload.
type Message struct {
	Descriptor string          `json:"descriptor"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// New creates a Message with a marshaled payload.
func New(descriptor string, payload any) (Message, error) {
	if payload == nil {
		return Message{Descriptor: descriptor}, nil
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s payload: %w", descriptor, err)
	}
	return Message{Descriptor: descriptor, Payload: payloadBytes}, nil
}

// MustNew is New for payloads that cannot fail to marshal.
func MustNew(descriptor string, payload any) Message {
	m, err := New(descriptor, payload)
	if err != nil {
		panic(err)
	}
	return m
}

// Parse unmarshals the message payload into one of the typed payload
// structs (SettingsMsg, DealMsg, etc.). A malformed payload for a known
// descriptor is a programmer error: fatal under Strict, logged and
// reported otherwise.
func (m *Message) Parse() (any, error) {
	var target any
	switch m.Descriptor {
	case DescState:
		target = &StateMsg{}
	case DescSettings:
		target = &SettingsMsg{}
	case DescPlayers, DescPreviewPlayers, DescGamePlayers:
		target = &PlayersMsg{}
	case DescDealer:
		target = &DealerMsg{}
	case DescDeal:
		target = &DealMsg{}
	case DescScores, DescAllScores:
		target = &ScoresMsg{}
	case DescHandState:
		target = &HandStateMsg{}
	case DescPlayed:
		target = &PlayedMsg{}
	case DescAutoPlay:
		target = &AutoPlayMsg{}
	case DescThumbnail:
		target = &ThumbnailMsg{}
	case DescRequestThumbnail:
		target = &RequestThumbnailMsg{}
	case DescStatus:
		target = &StatusMsg{}
	case DescRefreshRequest:
		target = &RefreshRequestMsg{}
	case DescPlayHand:
		target = &PlayHandMsg{}
	case DescDisconnect:
		target = &DisconnectMsg{}
	case DescTestConnection:
		target = &TestConnectionMsg{}
	case DescTestResponse:
		target = &TestResponseMsg{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDescriptor, m.Descriptor)
	}

	if len(m.Payload) == 0 {
		return target, nil
	}

	if err := json.Unmarshal(m.Payload, target); err != nil {
		if Strict {
			panic(fmt.Sprintf("malformed %s payload: %v", m.Descriptor, err))
		}
		klog.Errorf("Dropping malformed %s payload: %v", m.Descriptor, err)
		return nil, err
	}
	return target, nil
}
