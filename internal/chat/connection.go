package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write on a backpressured transport.
	writeWait = 5 * time.Second

	// sendBuffer decouples senders from a slow recipient socket. A sender's
	// persistence path never waits on the recipient's transport.
	sendBuffer = 100
)

// Conn wraps a WebSocket connection with a single-writer goroutine.
// gorilla/websocket allows at most one concurrent writer, and a connection
// here receives frames from its peer's handler and from the reminder
// dispatcher at the same time, so all writes are funnelled through one
// buffered channel.
type Conn struct {
	id      string
	ws      *websocket.Conn
	sendCh  chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	closeMu sync.Once
}

// NewConn wraps an upgraded WebSocket connection and starts its writer.
func NewConn(ws *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:     uuid.New().String(),
		ws:     ws,
		sendCh: make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	go c.writeLoop()
	return c
}

// ID identifies this connection instance in logs. Two connections for the
// same user never share an ID.
func (c *Conn) ID() string { return c.id }

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// SendJSON queues a frame for delivery. It never blocks on the transport:
// if the buffer is full the send fails with ErrWriteTimeout after a bounded
// wait, and the caller treats that as a delivery failure for this recipient
// only.
func (c *Conn) SendJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case c.sendCh <- data:
		return nil
	case <-time.After(writeWait):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnClosed
	}
}

// Close shuts the connection down. Safe to call more than once and from any
// goroutine; the first call wins.
func (c *Conn) Close() error {
	var err error
	c.closeMu.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}

// Done is closed when the connection has been shut down.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }
