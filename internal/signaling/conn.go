package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/metrics"
)

const (
	wsWriteWait = 1 * time.Second

	// sendQueueSize bounds outbound frames buffered per connection. A client
	// that falls this far behind loses frames rather than stalling the relay.
	sendQueueSize = 256
)

// wsConn wraps a websocket connection behind the lobby.Conn interface.
//
// All writes go through a single pump goroutine; Send enqueues without
// blocking so it is safe to call while holding registry locks.
type wsConn struct {
	ws      *websocket.Conn
	metrics *metrics.Metrics

	sendCh    chan string
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, m *metrics.Metrics) *wsConn {
	c := &wsConn{
		ws:      ws,
		metrics: m,
		sendCh:  make(chan string, sendQueueSize),
		done:    make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *wsConn) writePump() {
	for {
		select {
		case msg := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				c.CloseWith(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

// Send enqueues a text frame. Frames are dropped (and counted) when the queue
// is full or the connection is closing.
func (c *wsConn) Send(msg string) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.metrics.Inc(metrics.DropReasonSendQueueFull)
	}
}

// CloseWith sends a close frame and tears down the connection. Only the first
// call takes effect.
func (c *wsConn) CloseWith(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(wsWriteWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *wsConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}
