package relay

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"k8s.io/klog/v2"
)

// Server is the relay hub: sessions keyed by code, members keyed by
// device id, frames fanned out per addressee.
type Server struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	code    string
	members map[string]*member
}

type member struct {
	info PeerInfo
	send chan Frame
	conn *websocket.Conn
}

// NewServer creates an empty hub.
func NewServer() *Server {
	return &Server{sessions: make(map[string]*session)}
}

// HandleWS upgrades a relay client connection. The first frame must be
// a join naming the session and the member's identity.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		klog.Errorf("Relay accept failed: %v", err)
		return
	}
	ctx := r.Context()

	var join Frame
	if err := wsjson.Read(ctx, conn, &join); err != nil || join.Kind != KindJoin || join.Info == nil || join.Session == "" {
		klog.V(1).Infof("Relay connection without valid join frame")
		conn.Close(websocket.StatusPolicyViolation, "expected join frame")
		return
	}

	m := &member{info: *join.Info, send: make(chan Frame, 64), conn: conn}
	s.register(join.Session, m)
	defer s.unregister(join.Session, m)

	// Writer: a member's frames are delivered in order from one
	// goroutine; a stalled member is dropped rather than blocking the
	// session.
	writeCtx, cancelWrite := context.WithCancel(context.Background())
	defer cancelWrite()
	go func() {
		for f := range m.send {
			wctx, cancel := context.WithTimeout(writeCtx, 10*time.Second)
			err := wsjson.Write(wctx, conn, f)
			cancel()
			if err != nil {
				klog.V(1).Infof("Relay write to %s failed: %v", m.info.DeviceID, err)
				conn.CloseNow()
				return
			}
		}
	}()

	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			klog.V(1).Infof("Relay read from %s ended: %v", m.info.DeviceID, err)
			return
		}
		f.From = m.info.DeviceID
		s.route(join.Session, m, f)
	}
}

func (s *Server) register(code string, m *member) {
	s.mu.Lock()
	sess := s.sessions[code]
	if sess == nil {
		sess = &session{code: code, members: make(map[string]*member)}
		s.sessions[code] = sess
	}
	if old, ok := sess.members[m.info.DeviceID]; ok {
		// Same device rejoining: the old connection is dead weight.
		close(old.send)
		old.conn.CloseNow()
	}
	sess.members[m.info.DeviceID] = m

	peers := make([]PeerInfo, 0, len(sess.members)-1)
	var others []*member
	for id, other := range sess.members {
		if id == m.info.DeviceID {
			continue
		}
		peers = append(peers, other.info)
		others = append(others, other)
	}
	s.mu.Unlock()

	klog.Infof("Relay session %s: %s joined (%d members)", code, m.info.DeviceName, len(peers)+1)
	m.deliver(Frame{Kind: KindPeers, Peers: peers})
	for _, other := range others {
		info := m.info
		other.deliver(Frame{Kind: KindPeerJoined, Info: &info})
	}
}

func (s *Server) unregister(code string, m *member) {
	s.mu.Lock()
	sess := s.sessions[code]
	if sess == nil || sess.members[m.info.DeviceID] != m {
		s.mu.Unlock()
		return
	}
	delete(sess.members, m.info.DeviceID)
	close(m.send)
	var others []*member
	for _, other := range sess.members {
		others = append(others, other)
	}
	if len(sess.members) == 0 {
		delete(s.sessions, code)
	}
	s.mu.Unlock()

	klog.Infof("Relay session %s: %s left", code, m.info.DeviceName)
	for _, other := range others {
		info := m.info
		other.deliver(Frame{Kind: KindPeerLeft, Info: &info})
	}
}

// route fans a frame out to its addressee, or to every other member
// when To is empty.
func (s *Server) route(code string, from *member, f Frame) {
	s.mu.RLock()
	sess := s.sessions[code]
	if sess == nil {
		s.mu.RUnlock()
		return
	}
	var targets []*member
	if f.To != "" {
		if m, ok := sess.members[f.To]; ok {
			targets = append(targets, m)
		}
	} else {
		for id, m := range sess.members {
			if id != from.info.DeviceID {
				targets = append(targets, m)
			}
		}
	}
	s.mu.RUnlock()

	for _, m := range targets {
		m.deliver(f)
	}
}

// deliver enqueues without blocking; a full queue means the member is
// stalled and the frame is dropped (the next full refresh recovers).
func (m *member) deliver(f Frame) {
	defer func() {
		// send may be closed concurrently by unregister.
		_ = recover()
	}()
	select {
	case m.send <- f:
	default:
		klog.Warningf("Relay member %s stalled, dropping %s frame", m.info.DeviceID, f.Kind)
	}
}

// Run starts the relay server and blocks until the context is
// canceled. The bound address is sent on started once listening.
func Run(ctx context.Context, addr string, started chan<- string) error {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	server := NewServer()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS)

	srv := &http.Server{Handler: mux}
	go func() {
		klog.Infof("Relay server listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			klog.Errorf("Relay server error: %v", err)
		}
	}()
	if started != nil {
		started <- ln.Addr().String()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	klog.Infof("Shutting down relay server...")
	return srv.Shutdown(shutdownCtx)
}
