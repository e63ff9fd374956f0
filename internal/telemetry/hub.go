// Package telemetry streams per-step controller results to WebSocket
// observers such as dashboards and test drivers.
package telemetry

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"egodrive/cruise/internal/auth"
	"egodrive/cruise/internal/logging"
	"egodrive/cruise/internal/pid"
)

const writeDeadline = 5 * time.Second

// Authenticator admits or rejects an upgrade request, returning the logical
// observer identity.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// AllowAllAuthenticator admits every request, for development setups.
type AllowAllAuthenticator struct{}

// Authenticate implements Authenticator.
func (AllowAllAuthenticator) Authenticate(*http.Request) (string, error) { return "", nil }

// HMACAuthenticator verifies HS256 compact tokens carried in the request.
type HMACAuthenticator struct {
	verifier *auth.HMACTokenVerifier
}

// TokenAudience is the audience claim telemetry tokens are checked against.
const TokenAudience = "cruise-telemetry"

// NewHMACAuthenticator builds a token authenticator for the shared secret.
func NewHMACAuthenticator(secret string) (*HMACAuthenticator, error) {
	verifier, err := auth.NewHMACTokenVerifier(secret, 2*time.Second)
	if err != nil {
		return nil, err
	}
	verifier.RequireAudience(TokenAudience)
	return &HMACAuthenticator{verifier: verifier}, nil
}

// Authenticate validates the token from the query string or header.
func (a *HMACAuthenticator) Authenticate(r *http.Request) (string, error) {
	if a == nil || a.verifier == nil {
		return "", errors.New("verifier not configured")
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return "", errors.New("missing auth token")
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Stats summarises hub activity for the operational surface.
type Stats struct {
	Clients    int    `json:"clients"`
	Broadcasts uint64 `json:"broadcasts"`
	Dropped    uint64 `json:"dropped"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// Hub fans controller results out to connected observers with bounded
// per-client queues; slow consumers lose frames rather than stalling the
// control path.
type Hub struct {
	logger        *logging.Logger
	authenticator Authenticator
	upgrader      websocket.Upgrader
	queueSize     int

	mu         sync.Mutex
	clients    map[*client]struct{}
	broadcasts uint64
	dropped    uint64
	closed     bool
}

// NewHub constructs a hub with the supplied per-client queue size.
func NewHub(logger *logging.Logger, queueSize int, authenticator Authenticator) *Hub {
	if logger == nil {
		logger = logging.L()
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	if authenticator == nil {
		authenticator = AllowAllAuthenticator{}
	}
	return &Hub{
		logger:        logger,
		authenticator: authenticator,
		upgrader:      websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		queueSize:     queueSize,
		clients:       make(map[*client]struct{}),
	}
}

// Handler upgrades observers onto the live result stream.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.authenticator.Authenticate(r)
		if err != nil {
			h.logger.Warn("telemetry client rejected", logging.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("telemetry upgrade failed", logging.Error(err))
			return
		}

		c := &client{id: identity, conn: conn, send: make(chan []byte, h.queueSize)}
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.clients[c] = struct{}{}
		h.mu.Unlock()
		h.logger.Info("telemetry client connected", logging.String("observer", identity))

		go h.writePump(c)
		go h.readPump(c)
	}
}

// ObserveResult marshals the result once and enqueues it for every client.
func (h *Hub) ObserveResult(result *pid.Result) {
	if h == nil || result == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		h.logger.Error("telemetry encode failed", logging.Error(err))
		return
	}

	h.mu.Lock()
	h.broadcasts++
	for c := range h.clients {
		//1.- Never block the control path: drop the frame for a full queue.
		select {
		case c.send <- payload:
		default:
			h.dropped++
		}
	}
	h.mu.Unlock()
}

// Stats reports client and broadcast counters.
func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Clients: len(h.clients), Broadcasts: h.broadcasts, Dropped: h.dropped}
}

// Close disconnects every client and rejects future upgrades.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
}

func (h *Hub) deregister(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if present {
		c.shutdown()
	}
}

func (h *Hub) writePump(c *client) {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.deregister(c)
			return
		}
	}
}

// readPump drains control frames so pings are answered and closure noticed.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.deregister(c)
			return
		}
	}
}

func (c *client) shutdown() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}
