package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultSendBuffer = 32

	// closeGrace bounds the close frame written on shutdown.
	closeGrace = time.Second
)

// wsConn adapts a websocket connection to connection.Conn. Outbound frames
// go through a bounded queue drained by writePump.
type wsConn struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn, buffer int) *wsConn {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &wsConn{
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// TrySend queues msg without blocking. It reports false when the queue is
// full or the connection is closed.
func (c *wsConn) TrySend(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write pump and closes the socket. Safe to call repeatedly.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		//nolint:errcheck // Best-effort close frame
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		err = c.conn.Close()
	})
	return err
}

// ServeHTTP upgrades a device connection and runs its session until the
// socket closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	conn := newWSConn(ws, h.cfg.SendBuffer)
	h.track(conn)
	defer h.untrack(conn)

	h.logger.Debug("device socket opened", "remote_addr", r.RemoteAddr)

	go conn.writePump(h.pingInterval(), h.pongWait())

	session := h.NewSession(conn)
	defer func() {
		// The request context is done once the socket is hijacked and
		// closed; presence updates need their own.
		session.Close(context.WithoutCancel(r.Context()))
		conn.Close() //nolint:errcheck // Already closed on most paths
	}()

	h.readLoop(r.Context(), conn, session)
}

func (h *Handler) readLoop(ctx context.Context, c *wsConn, session *Session) {
	if h.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(h.cfg.MaxMessageSize))
	}

	ping, pong := h.pingInterval(), h.pongWait()
	extend := func() {
		if ping > 0 {
			//nolint:errcheck // Best-effort deadline reset
			c.conn.SetReadDeadline(time.Now().Add(ping + pong))
		}
	}
	extend()
	c.conn.SetPongHandler(func(string) error {
		extend()
		if id := session.Identity(); id != "" {
			h.registry.Touch(id)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("device socket read error", "device_id", session.Identity(), "error", err)
			} else {
				h.logger.Debug("device socket closed", "device_id", session.Identity(), "error", err)
			}
			return
		}
		// Any frame counts as liveness, not just pongs.
		extend()
		if id := session.Identity(); id != "" {
			h.registry.Touch(id)
		}
		session.HandleFrame(ctx, message)
	}
}

// writePump drains the send queue and keeps the socket alive with pings.
func (c *wsConn) writePump(pingInterval, pongWait time.Duration) {
	var tick <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	writeWait := pongWait
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close() //nolint:errcheck // Read loop observes the closed socket
				return
			}
		case <-tick:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close() //nolint:errcheck // Read loop observes the closed socket
				return
			}
		}
	}
}

func (h *Handler) track(c *wsConn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Handler) untrack(c *wsConn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *Handler) pingInterval() time.Duration {
	return time.Duration(h.cfg.PingInterval) * time.Second
}

func (h *Handler) pongWait() time.Duration {
	return time.Duration(h.cfg.PongTimeout) * time.Second
}
