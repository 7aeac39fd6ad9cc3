package observer

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"agentsim.ai/internal/observerproto"
	"agentsim.ai/internal/sim/results"
)

type session struct {
	id  string
	out chan []byte

	mu  sync.Mutex
	sub observerproto.SubscribeMsg
}

func (s *session) setSub(sub observerproto.SubscribeMsg) {
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
}

func (s *session) wants(c results.Cell) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub.Scope != "" && string(c.Scope) != s.sub.Scope {
		return false
	}
	if len(s.sub.Sets) == 0 {
		return true
	}
	for _, set := range s.sub.Sets {
		if set == c.Set {
			return true
		}
	}
	return false
}

// Server streams recorded ticks to websocket observers. It is a results.Sink:
// the model calls WriteTick for every row and Close once the run ends.
type Server struct {
	runID string
	info  observerproto.RunInfo
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session
	lastTick int
	rows     int
	closed   bool
}

func NewServer(runID string, info observerproto.RunInfo, logger *log.Logger) *Server {
	return &Server{
		runID:    runID,
		info:     info,
		log:      logger,
		sessions: map[string]*session{},
		lastTick: -1,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

// Handler serves GET /v1/bootstrap and the /v1/ticks websocket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/ticks", s.WSHandler())
	return mux
}

// Sessions reports how many observers are subscribed.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) WriteTick(row results.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.lastTick = row.Tick
	s.rows++
	for _, sess := range s.sessions {
		msg := observerproto.TickMsg{
			Type:            "TICK",
			ProtocolVersion: observerproto.Version,
			RunID:           s.runID,
			Tick:            row.Tick,
			Index:           row.Index,
			Cells:           make([]observerproto.Cell, 0, len(row.Cells)),
		}
		for _, c := range row.Cells {
			if sess.wants(c) {
				msg.Cells = append(msg.Cells, observerproto.Cell{Scope: string(c.Scope), Set: c.Set, Kind: c.Kind, Name: c.Name, Value: c.Value})
			}
		}
		b, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		sendLatest(sess.out, b)
	}
	return nil
}

// Close sends DONE to every observer and ends their sessions.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	b, _ := json.Marshal(observerproto.DoneMsg{Type: "DONE", ProtocolVersion: observerproto.Version, RunID: s.runID, Rows: s.rows})
	for id, sess := range s.sessions {
		sendLatest(sess.out, b)
		close(sess.out)
		delete(s.sessions, id)
	}
	return nil
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		s.mu.Lock()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			RunID:           s.runID,
			Run:             s.info,
			LastTick:        s.lastTick,
		}
		s.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		sub, ok, err := readSubscribe(conn)
		if err != nil {
			return
		}
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sess := &session{id: fmt.Sprintf("O%d", s.nextID.Add(1)), out: make(chan []byte, 64), sub: sub}
		if !s.join(sess) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "run finished"), time.Now().Add(time.Second))
			return
		}
		defer s.leave(sess.id)
		if s.log != nil {
			s.log.Printf("observer %s joined remote=%s", sess.id, r.RemoteAddr)
		}

		// Writer goroutine; it ends the connection once the run is done.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for b := range sess.out {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(time.Second))
			_ = conn.Close()
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			next, ok, err := readSubscribe(conn)
			if err != nil {
				break
			}
			if ok {
				sess.setSub(next)
			}
		}

		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) join(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	return true
}

func (s *Server) leave(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		close(sess.out)
		delete(s.sessions, id)
	}
}

// readSubscribe reads one message. ok is false for messages that are not a
// SUBSCRIBE of this protocol version; err is set only when reading failed.
func readSubscribe(conn *websocket.Conn) (observerproto.SubscribeMsg, bool, error) {
	var sub observerproto.SubscribeMsg
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return sub, false, err
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false, nil
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, false, nil
	}
	sub.Scope = strings.TrimSpace(sub.Scope)
	return sub, true, nil
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
