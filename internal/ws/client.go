// Package ws wraps a gorilla websocket connection with a buffered write pump
// so actor goroutines can send without ever blocking on the network.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Sender is the reachability handle actors hold for a connected player.
// Fakes implement it in tests.
type Sender interface {
	ID() string
	Send(v interface{})
	Close()
}

// Client binds one websocket connection to a unique connection id.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn) *Client {
	c := &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	go c.writePump()
	return c
}

func (c *Client) ID() string { return c.id }

// Send marshals v and queues it for delivery. Messages are dropped when the
// buffer is full or the connection has closed; delivery is fire-and-forget.
// Actors may hold the sender past the connection's lifetime, so Send must
// stay safe after Close.
func (c *Client) Send(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: marshal outbound message: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close stops the write pump and closes the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
