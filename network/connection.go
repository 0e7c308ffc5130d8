// network/connection.go
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrMissingEvent     = errors.New("frame has no event name")
	ErrMalformedFrame   = errors.New("malformed frame")
)

const writeWait = 10 * time.Second

type Packet struct {
	Event string
	Data  json.RawMessage
}

type Connection interface {
	Send(frame []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

// WSConnection queues outbound frames so that Send never blocks on the
// socket; WritePump drains the queue.
type WSConnection struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	mutex     sync.RWMutex
	closed    bool
	heartbeat time.Duration
}

const defaultReadLimit = 64 * 1024

// NewWSConnection wraps conn. Inbound frames larger than readLimit bytes
// fail the read and close the connection.
func NewWSConnection(conn *websocket.Conn, bufferSize int, readLimit int64) *WSConnection {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	conn.SetReadLimit(readLimit)
	return &WSConnection{
		conn: conn,
		send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
}

func (c *WSConnection) Send(frame []byte) error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *WSConnection) ReadPacket() (*Packet, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		packet, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return packet, nil
	}
}

// SetHeartbeat arms the read deadline and pong handler. Pings are sent by
// WritePump every interval.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	if interval <= 0 {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	})
}

// WritePump writes queued frames until the connection is closed. It must run
// in its own goroutine, one per connection.
func (c *WSConnection) WritePump() {
	var tick <-chan time.Time
	if c.heartbeat > 0 {
		ticker := time.NewTicker(c.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-tick:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes whatever is still queued, best effort, then sends a close frame.
func (c *WSConnection) flush() {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}

// Close stops accepting frames. The socket itself is closed by Shutdown
// once the write pump has exited.
func (c *WSConnection) Close() error {
	c.closeOnce.Do(func() {
		c.mutex.Lock()
		c.closed = true
		c.mutex.Unlock()
		close(c.done)
	})
	return nil
}

// Shutdown closes the underlying socket.
func (c *WSConnection) Shutdown() error {
	c.Close()
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
