// Package gateway is the websocket entry point: it authenticates the upgrade request,
// keeps one conn per socket and routes client commands to the registry and broadcaster.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BearBump/LiveTrack/internal/auth"
	"github.com/BearBump/LiveTrack/internal/realtime"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// RateLimiter is satisfied by rediscache.RateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, subject string, limit int64, window time.Duration) (bool, int64, error)
}

type Options struct {
	AllowGuest bool

	SendBuffer   int
	WriteTimeout time.Duration
	PongWait     time.Duration
	ReadLimit    int64

	Limiter                 RateLimiter
	LocationRelaysPerMinute int64

	CheckOrigin func(r *http.Request) bool
	Metrics     *Metrics
	Now         func() time.Time
}

type Gateway struct {
	broadcaster *realtime.Broadcaster
	registry    *realtime.Registry
	opts        Options
	upgrader    websocket.Upgrader
	validate    *validator.Validate

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
}

func New(broadcaster *realtime.Broadcaster, opts Options) *Gateway {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 4096
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	var reg *realtime.Registry
	if broadcaster != nil {
		reg = broadcaster.Registry()
	}
	return &Gateway{
		broadcaster: broadcaster,
		registry:    reg,
		opts:        opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		validate: validator.New(),
		conns:    make(map[string]*conn),
	}
}

// ServeHTTP upgrades the request and serves the socket until it closes.
// Identity comes from the auth middleware; a bad or missing token gives an anonymous socket.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.registry == nil {
		http.Error(w, "realtime is not initialized", http.StatusServiceUnavailable)
		return
	}
	if g.isClosed() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newConn(uuid.NewString(), auth.FromContext(r.Context()), ws, g.opts.SendBuffer)
	if !g.track(c) {
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = ws.Close()
		return
	}
	g.opts.Metrics.connOpened()
	slog.Info("socket connected", "conn_id", c.id, "user_id", c.userID())

	go c.writePump(g.opts.WriteTimeout, g.opts.PongWait*9/10)
	g.readPump(r.Context(), c)
}

func (g *Gateway) track(c *conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.conns[c.id] = c
	return true
}

func (g *Gateway) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *Gateway) untrack(c *conn) {
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
}

// Connections returns the number of open sockets.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Close stops accepting sockets and closes the open ones.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	conns := make([]*conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.kill()
	}
}

func (g *Gateway) readPump(ctx context.Context, c *conn) {
	// после Hijack контекст запроса нам не указ, сокет живет сам по себе
	ctx = context.WithoutCancel(ctx)
	defer g.disconnect(ctx, c)

	c.ws.SetReadLimit(g.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("socket read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(g.opts.PongWait))

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			g.reject(c, codeBadFrame, "Expected {\"type\": ..., \"payload\": ...}")
			continue
		}
		g.handle(ctx, c, msg)
	}
}

// disconnect drops the connection from every room and tells the rooms it left.
func (g *Gateway) disconnect(ctx context.Context, c *conn) {
	c.kill()
	g.untrack(c)
	g.opts.Metrics.connClosed()

	orders := g.registry.RemoveConnection(c.id)
	for _, orderID := range orders {
		g.presence(ctx, c, orderID, realtime.EventUserLeft)
	}
	slog.Info("socket disconnected", "conn_id", c.id, "user_id", c.userID(), "rooms", len(orders))
}

var commands = map[string]bool{
	cmdJoin:           true,
	cmdLeave:          true,
	cmdDriverLocation: true,
	cmdStatus:         true,
	cmdETA:            true,
	cmdPing:           true,
}

func (g *Gateway) handle(ctx context.Context, c *conn, msg inbound) {
	if !commands[msg.Type] {
		g.opts.Metrics.received("unknown")
		g.reject(c, codeUnknownEvent, fmt.Sprintf("Unknown event %q", msg.Type))
		return
	}
	g.opts.Metrics.received(msg.Type)

	switch msg.Type {
	case cmdJoin:
		g.join(ctx, c, msg.Payload)
	case cmdLeave:
		g.leave(ctx, c, msg.Payload)
	case cmdDriverLocation:
		g.relayDriverLocation(ctx, c, msg.Payload)
	case cmdStatus:
		g.relayStatus(ctx, c, msg.Payload)
	case cmdETA:
		g.relayETA(ctx, c, msg.Payload)
	case cmdPing:
		c.reply(replyPong, pongPayload{Timestamp: g.opts.Now()})
	}
}

func (g *Gateway) reject(c *conn, code, message string) {
	g.opts.Metrics.rejectedWith(code)
	c.replyError(code, message)
}

func (g *Gateway) presence(ctx context.Context, c *conn, orderID string, kind realtime.EventKind) {
	payload := realtime.PresencePayload{OrderID: orderID, UserID: c.userID(), Timestamp: g.opts.Now()}
	if _, err := g.broadcaster.PublishExcept(ctx, orderID, kind, payload, c.id); err != nil {
		slog.Warn("presence notice failed", "order_id", orderID, "conn_id", c.id, "kind", string(kind), "error", err)
	}
}
