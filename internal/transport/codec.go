package transport

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

// lanFrame is the unit exchanged on a LAN TCP session. The first frame
// of a session is the connect request; everything after accept is data
// or a transport-level disconnect.
type lanFrame struct {
	Kind      string             `json:"kind"` // connect, accept, reject, data, disconnect
	Identity  *Identity          `json:"identity,omitempty"`
	Context   *ConnectionContext `json:"context,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Reconnect bool               `json:"reconnect,omitempty"`
	Msg       *wire.Message      `json:"msg,omitempty"`
}

const maxFrame = 4 * 1024 * 1024

// length-prefixed JSON codec: [u32 len][json bytes]

func encodeFrame(f lanFrame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(b))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFrame(r *bufio.Reader) (lanFrame, error) {
	var f lanFrame
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return f, err
	}
	if n > maxFrame {
		return f, fmt.Errorf("frame too large: %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return f, err
	}
	if err := json.Unmarshal(buf, &f); err != nil {
		return f, err
	}
	return f, nil
}
