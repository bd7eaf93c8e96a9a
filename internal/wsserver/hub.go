package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeDeadline bounds a single WebSocket write to one client.
const writeDeadline = 5 * time.Second

// readDeadline is the maximum time the server waits for any read activity
// (including pong responses). It allows ~3 missed pings.
const readDeadline = 90 * time.Second

// pingInterval is the interval between server-initiated WebSocket pings.
const pingInterval = 30 * time.Second

// maxReadMessageSize limits incoming subscribe/unsubscribe payloads.
const maxReadMessageSize = 32 * 1024

// defaultMaxClients caps concurrent stream clients.
const defaultMaxClients = 16

var wsUpgrader = websocket.Upgrader{
	// Only same-host clients can reach the listener; browser pages on other
	// origins are still refused.
	CheckOrigin:     checkLocalOrigin,
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// HubOptions configures the WebSocket server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for an OS-assigned port.
	Addr string
	// MaxClients caps concurrent connections. 0 means defaultMaxClients.
	MaxClients int
}

// client is one connected stream consumer.
type client struct {
	conn *websocket.Conn

	// writeMu serializes WriteMessage calls. gorilla/websocket does not
	// support concurrent writes.
	writeMu sync.Mutex

	// topics is guarded by Hub.mu.
	topics map[string]bool
}

// Hub fans events out to every connected WebSocket client.
//
// Lock ordering (never acquire in reverse):
//
//	client.writeMu -> Hub.mu
//
// mu protects the client set and per-client topics. Publish snapshots the
// recipients under mu and writes without it.
//
// Write failure policy: any write failure drops and closes that client only.
type Hub struct {
	opts HubOptions

	mu      sync.RWMutex
	clients map[*client]struct{}

	listener net.Listener
	server   *http.Server
	url      string

	closeOnce sync.Once
	closed    bool
}

// NewHub creates a Hub with the given options.
// The hub is not started until Start is called.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = defaultMaxClients
	}
	return &Hub{
		opts:    opts,
		clients: make(map[*client]struct{}),
	}
}

// Handler returns the HTTP handler serving the /ws endpoint.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	return mux
}

// Start listens on the configured address and serves WebSocket connections
// until Stop. ctx becomes the request base context.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("wsserver: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen: %w", err)
	}
	h.listener = ln

	tcpAddr := ln.Addr().(*net.TCPAddr)
	h.url = fmt.Sprintf("ws://%s/ws", net.JoinHostPort(tcpAddr.IP.String(), fmt.Sprint(tcpAddr.Port)))

	h.server = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("[DEBUG-WS] server error", "error", serveErr)
		}
	}()

	slog.Info("[DEBUG-WS] server started", "url", h.url)
	return nil
}

// Stop shuts down the HTTP server and closes every client. Idempotent; a
// stopped Hub cannot be restarted.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		clients := make([]*client, 0, len(h.clients))
		for c := range h.clients {
			clients = append(clients, c)
		}
		h.clients = make(map[*client]struct{})
		h.mu.Unlock()

		for _, c := range clients {
			closeConn(c.conn, "hub stop")
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsserver: shutdown: %w", err)
			}
		}
		slog.Info("[DEBUG-WS] server stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL, or "" before Start.
func (h *Hub) URL() string {
	return h.url
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends ev to every client subscribed to its topic. It never blocks
// longer than writeDeadline per client and returns the number of clients
// that received the event.
//
// Failures are logged at Debug only: Publish is fed from the log tee, and a
// warning here would loop back into it.
func (h *Hub) Publish(ev Event) int {
	payload, err := EncodeEvent(ev)
	if err != nil {
		slog.Debug("[DEBUG-WS] publish skipped", "error", err)
		return 0
	}

	topic := ev.Topic()
	h.mu.RLock()
	recipients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.topics[topic] {
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range recipients {
		if h.write(c, payload) {
			delivered++
		}
	}
	return delivered
}

// write sends payload to c and drops c on failure.
func (h *Hub) write(c *client, payload []byte) bool {
	c.writeMu.Lock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		c.writeMu.Unlock()
		h.drop(c, "SetWriteDeadline failure")
		return false
	}
	err := c.conn.WriteMessage(websocket.TextMessage, payload)
	if clearErr := c.conn.SetWriteDeadline(time.Time{}); clearErr != nil {
		slog.Debug("[DEBUG-WS] clear write deadline failed (non-fatal)", "error", clearErr)
	}
	c.writeMu.Unlock()

	if err != nil {
		slog.Debug("[DEBUG-WS] write failed, dropping client", "remoteAddr", c.conn.RemoteAddr(), "error", err)
		h.drop(c, "write error")
		return false
	}
	return true
}

// drop removes c from the hub and closes its connection. Safe to call more
// than once.
func (h *Hub) drop(c *client, reason string) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	closeConn(c.conn, reason)
}

func closeConn(conn *websocket.Conn, reason string) {
	if err := conn.Close(); err != nil {
		slog.Debug("[DEBUG-WS] connection close", "reason", reason, "error", err)
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	full := len(h.clients) >= h.opts.MaxClients
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "server stopping", http.StatusServiceUnavailable)
		return
	}
	if full {
		slog.Warn("[DEBUG-WS] client limit reached, rejecting connection", "limit", h.opts.MaxClients)
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[DEBUG-WS] upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[DEBUG-WS] SetReadDeadline failed on new connection", "error", err)
		closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	c := &client{conn: conn, topics: make(map[string]bool, len(AllTopics))}
	for _, topic := range AllTopics {
		c.topics[topic] = true
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		closeConn(conn, "hub stopped during upgrade")
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	slog.Info("[DEBUG-WS] client connected", "remoteAddr", conn.RemoteAddr(), "clients", count)

	pingDone := make(chan struct{})
	go h.pingLoop(c, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] wsserver handleWS recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		close(pingDone)
		h.drop(c, "read pump exit")
		slog.Info("[DEBUG-WS] client disconnected", "remoteAddr", conn.RemoteAddr())
	}()

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("[DEBUG-WS] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(msg, &sub); jsonErr != nil {
			slog.Debug("[DEBUG-WS] invalid JSON from client", "error", jsonErr)
			h.sendError(c, fmt.Sprintf("invalid JSON: %s", jsonErr))
			continue
		}
		if err := h.handleSubscription(c, sub); err != nil {
			h.sendError(c, err.Error())
		}
	}
}

// pingLoop sends periodic pings; a failed ping drops the client.
func (h *Hub) pingLoop(c *client, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] wsserver pingLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.drop(c, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			pingErr := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline))
			c.writeMu.Unlock()
			if pingErr != nil {
				slog.Debug("[DEBUG-WS] ping failed, connection likely dead", "error", pingErr)
				h.drop(c, "ping failure")
				return
			}
		}
	}
}

// handleSubscription applies a subscribe or unsubscribe request.
func (h *Hub) handleSubscription(c *client, msg subscribeMsg) error {
	for _, topic := range msg.Topics {
		if !validTopic(topic) {
			return fmt.Errorf("unknown topic %q", topic)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch msg.Action {
	case subscribeAction:
		for _, topic := range msg.Topics {
			c.topics[topic] = true
		}
	case unsubscribeAction:
		for _, topic := range msg.Topics {
			delete(c.topics, topic)
		}
	default:
		return fmt.Errorf("unknown action %q", msg.Action)
	}
	slog.Debug("[DEBUG-WS] subscription updated", "action", msg.Action, "topics", msg.Topics)
	return nil
}

// subscribedTopics returns a sorted copy of c's topics.
func (h *Hub) subscribedTopics(c *client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		out = append(out, topic)
	}
	slices.Sort(out)
	return out
}

func (h *Hub) sendError(c *client, message string) {
	payload, err := json.Marshal(errorMsg{Type: "error", Message: message})
	if err != nil {
		slog.Debug("[DEBUG-WS] failed to marshal error message", "error", err)
		return
	}
	h.write(c, payload)
}

// checkLocalOrigin accepts requests without an Origin header (native
// clients) and browser pages served from a loopback host.
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
