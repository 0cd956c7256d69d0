package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

var healthUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// hub tracks live health sockets and fans monitor transitions out to them.
type hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &hub{
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger.With("component", "ws-hub"),
	}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// broadcast writes payload to every socket. Writes are serialised under the
// hub lock; a failed socket is dropped rather than retried.
func (h *hub) broadcast(payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if err := writePayload(conn, payload); err != nil {
			h.logger.Debug("dropping slow or closed socket", "error", err)
			delete(h.conns, conn)
			_ = conn.Close()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		_ = conn.Close()
		delete(h.conns, conn)
	}
}

func writePayload(conn *websocket.Conn, payload any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(payload)
}

func (s *Server) handleHealthWS(w http.ResponseWriter, r *http.Request) {
	conn, err := healthUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if err := writePayload(conn, s.currentHealth()); err != nil {
		_ = conn.Close()
		return
	}
	s.hub.add(conn)

	// Read pump: the client never sends data, but reading is how we learn
	// the socket closed.
	go func() {
		defer func() {
			s.hub.remove(conn)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
