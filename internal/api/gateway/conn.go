package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/BearBump/LiveTrack/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// conn is one websocket client. Only writePump writes to ws.
type conn struct {
	id       string
	identity models.Identity
	ws       *websocket.Conn
	send     chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id string, identity models.Identity, ws *websocket.Conn, buffer int) *conn {
	return &conn{
		id:       id,
		identity: identity,
		ws:       ws,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

// Deliver queues msg without blocking. A full buffer marks the connection dead;
// the read loop then unregisters it.
func (c *conn) Deliver(msg []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.kill()
		return errSlowConsumer
	}
}

func (c *conn) kill() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *conn) reply(kind string, payload any) {
	b, err := json.Marshal(realtime.Envelope{
		Type:      realtime.EventKind(kind),
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	_ = c.Deliver(b)
}

func (c *conn) replyError(code, message string) {
	c.reply(replyError, errorPayload{Code: code, Message: message})
}

func (c *conn) userID() string {
	return models.UserIDOf(c.identity)
}

func (c *conn) writePump(writeTimeout, pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			if !c.flush(writeTimeout) {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.kill()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.kill()
				return
			}
		}
	}
}

// flush writes what is already queued in send; false means the socket is broken.
func (c *conn) flush(writeTimeout time.Duration) bool {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return false
			}
		default:
			return true
		}
	}
}
