package hub

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/railbook/src/types"
)

// Client wraps a subscriber connection.
type Client struct {
	ID          string
	conn        types.Conn
	hub         *Hub
	Send        chan types.RemainPush
	connectedAt time.Time
	userAgent   string
	initial     []string
	channels    map[string]bool
	mu          sync.RWMutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a subscriber for the given channels.
func NewClient(id string, conn types.Conn, h *Hub, userAgent string, channels ...string) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.RemainPush, 64),
		connectedAt: time.Now(),
		userAgent:   userAgent,
		initial:     channels,
		channels:    make(map[string]bool),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	return types.ClientInfo{
		ID:          c.ID,
		ConnectedAt: c.connectedAt,
		Channels:    channels,
		UserAgent:   c.userAgent,
	}
}

// AddChannel records a channel subscription.
func (c *Client) AddChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = true
}

// ReadPump drains the connection until it closes, then unregisters.
// Subscribers never send anything meaningful; reading is how a closed
// peer is noticed.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		var discard any
		if err := c.conn.ReadJSON(&discard); err != nil {
			return
		}
	}
}

// WritePump writes queued frames to the connection.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case push := <-c.Send:
			if err := c.conn.WriteJSON(push); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }
