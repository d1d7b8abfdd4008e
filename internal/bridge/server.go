package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	outboxSize   = 64
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxReadBytes = 1 << 16
)

// Recorder observes Forward outcomes per peer.
type Recorder interface {
	ObserveForward(delivered bool)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithReplay sets the producer of the messages a new peer receives before
// anything else, usually the current snapshot.
func WithReplay(fn func() []Message) ServerOption {
	return func(s *Server) { s.replay = fn }
}

// WithRecorder reports forwarded and dropped messages.
func WithRecorder(r Recorder) ServerOption {
	return func(s *Server) { s.recorder = r }
}

// WithOutboxSize overrides the per-peer buffer.
func WithOutboxSize(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.outboxSize = n
		}
	}
}

type peer struct {
	conn *websocket.Conn
	out  chan Message
	done chan struct{}
	once sync.Once
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// Server is the control-side end of the bridge.
type Server struct {
	mu         sync.Mutex
	peers      map[*peer]struct{}
	replay     func() []Message
	recorder   Recorder
	outboxSize int
	upgrader   websocket.Upgrader

	httpSrv *http.Server
}

// NewServer returns a server with no peers.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		peers:      make(map[*peer]struct{}),
		outboxSize: outboxSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16384,
			// Loopback only; the overlay is a terminal process, not a browser.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Forward queues msg for every connected peer without blocking. With no
// peer it does nothing. A peer whose outbox is full loses the message.
func (s *Server) Forward(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.peers {
		select {
		case p.out <- msg:
			s.observe(true)
		default:
			s.observe(false)
			log.Debugw("bridge outbox full, dropping", "kind", msg.Kind, "stateKind", msg.StateKind, "action", msg.Action)
		}
	}
}

func (s *Server) observe(delivered bool) {
	if s.recorder != nil {
		s.recorder.ObserveForward(delivered)
	}
}

// Peers reports how many overlays are connected.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// ServeHTTP upgrades the request and serves one peer until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("bridge upgrade failed", "error", err)
		return
	}
	p := &peer{
		conn: conn,
		out:  make(chan Message, s.outboxSize),
		done: make(chan struct{}),
	}

	// Registering and queueing the replay under the lock keeps any
	// concurrent Forward behind the replay.
	s.mu.Lock()
	if s.replay != nil {
		for _, msg := range s.replay() {
			select {
			case p.out <- msg:
			default:
				log.Warnw("replay exceeds outbox", "size", s.outboxSize)
			}
		}
	}
	s.peers[p] = struct{}{}
	s.mu.Unlock()
	log.Infow("overlay connected", "remote", r.RemoteAddr)

	go s.writeLoop(p)
	s.readLoop(p)

	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	p.close()
	log.Infow("overlay disconnected", "remote", r.RemoteAddr)
}

func (s *Server) writeLoop(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.out:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(msg); err != nil {
				log.Debugw("bridge write failed", "error", err)
				p.close()
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				p.close()
				return
			}
		}
	}
}

// readLoop drains control frames; overlays do not send data messages.
func (s *Server) readLoop(p *peer) {
	p.conn.SetReadLimit(maxReadBytes)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Start listens on addr and serves the bridge until ctx is cancelled or
// Close is called. It returns the bound address.
func (s *Server) Start(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen bridge on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle(Path, s)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("bridge server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	log.Infow("bridge listening", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// Close disconnects every peer and stops the listener.
func (s *Server) Close() {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
