// Package ws is the websocket transport between browsers and the broker.
package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chathub/internal/broker"
	"chathub/internal/logger"
)

// Router is the broker as seen by the transport.
type Router interface {
	Connect(c broker.Conn)
	Disconnect(ctx context.Context, c broker.Conn)
	Handle(ctx context.Context, c broker.Conn, f broker.Frame) error
}

type Options struct {
	// ReadLimit caps a single inbound frame in bytes.
	ReadLimit int64
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
	// AllowedOrigins lists accepted Origin headers. "*" accepts any.
	AllowedOrigins []string
}

type Server struct {
	router   Router
	opts     Options
	upgrader websocket.Upgrader

	origins  map[string]struct{}
	allowAll bool

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewServer(router Router, opts Options) *Server {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 64 * 1024
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	s := &Server{
		router:  router,
		opts:    opts,
		origins: make(map[string]struct{}),
		clients: make(map[*Client]struct{}),
	}
	for _, origin := range opts.AllowedOrigins {
		if strings.TrimSpace(origin) == "*" {
			s.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(origin)
		if !ok {
			logger.Warn("ignoring invalid allowed origin", "origin", origin)
			continue
		}
		s.origins[normalized] = struct{}{}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.allowAll {
		return true
	}
	if normalized, ok := normalizeOrigin(origin); ok {
		if _, allowed := s.origins[normalized]; allowed {
			return true
		}
	}
	logger.Warn("ws origin rejected", "origin", origin)
	return false
}

// normalizeOrigin lowercases scheme and host and drops everything else.
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// Serve upgrades the request and runs the connection until it closes. user is
// the authenticated username, or empty when the client identifies itself.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, user string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if !errors.Is(err, http.ErrHijacked) {
			logger.Debug("upgrade websocket", "err", err)
		}
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		user:   user,
		server: s,
		conn:   conn,
		send:   make(chan []byte, s.opts.SendBuffer),
	}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	s.router.Connect(client)
	logger.Debug("ws connected", "conn", client.id, "user", user, "remote", r.RemoteAddr)

	go client.writeLoop()
	client.readLoop(context.WithoutCancel(r.Context()))
}

func (s *Server) forget(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// Len reports the number of open connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// CloseAll closes every open connection. Their read loops then disconnect
// them from the broker.
func (s *Server) CloseAll() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
}
