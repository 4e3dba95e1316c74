// Package hub fans remaining-seat frames out to WebSocket subscribers.
// Each subscription key string is a channel.
package hub

import (
	"sync"

	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/rs/zerolog"
)

// MessageBridge publishes frames to other simulator instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(push types.RemainPush) error
	Available() bool
}

// Hub manages subscriber connections and their channels.
type Hub struct {
	clients  map[string]*Client
	channels map[string]map[string]bool // channel -> set of clientIDs

	register   chan *Client
	unregister chan *Client
	broadcast  chan types.RemainPush
	localCast  chan types.RemainPush // frames from the bridge, no re-publish

	onConnect []func(string)
	onDisconn []func(string)

	bridge MessageBridge
	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
	once   sync.Once
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		channels:   make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan types.RemainPush, 256),
		localCast:  make(chan types.RemainPush, 256),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Channel returns the channel a frame belongs to.
func Channel(push types.RemainPush) string {
	return types.Key(push.TrainID, push.SeatType, push.TravelDate).String()
}

// SetBridge attaches a cross-instance bridge. Frames published through
// the hub are then also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// BroadcastToLocal delivers a frame from the bridge to local
// subscribers only, without re-publishing it.
func (h *Hub) BroadcastToLocal(push types.RemainPush) {
	select {
	case h.localCast <- push:
	case <-h.done:
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case push := <-h.broadcast:
			h.publishToBridge(push)
			h.broadcastToChannel(Channel(push), push)
		case push := <-h.localCast:
			h.broadcastToChannel(Channel(push), push)
		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop halts the event loop and disconnects every client.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Register queues a client for registration. The client's initial
// channels are subscribed before connection callbacks run.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	for _, ch := range c.initial {
		if h.channels[ch] == nil {
			h.channels[ch] = make(map[string]bool)
		}
		h.channels[ch][c.ID] = true
		c.AddChannel(ch)
	}
	callbacks := h.onConnect
	h.mu.Unlock()

	h.logger.Info().Str("client_id", c.ID).Strs("channels", c.initial).Msg("client registered")

	for _, cb := range callbacks {
		cb(c.ID)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	for ch, subs := range h.channels {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.channels, ch)
		}
	}
	callbacks := h.onDisconn
	h.mu.Unlock()

	c.Close()
	h.logger.Info().Str("client_id", c.ID).Msg("client unregistered")

	for _, cb := range callbacks {
		cb(c.ID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.channels = make(map[string]map[string]bool)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
