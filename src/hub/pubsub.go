package hub

import (
	"github.com/orchestra-mcp/railbook/src/types"
)

func (h *Hub) broadcastToChannel(channel string, push types.RemainPush) {
	h.mu.RLock()
	subs, ok := h.channels[channel]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// Copy subscriber IDs to avoid holding lock during sends.
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.SendToClient(id, push)
	}
}

// publishToBridge forwards a frame to the bridge if one is attached.
func (h *Hub) publishToBridge(push types.RemainPush) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(push); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

// Publish sends a frame to the subscribers of its channel on this and,
// through the bridge, every other instance.
func (h *Hub) Publish(push types.RemainPush) {
	select {
	case h.broadcast <- push:
	case <-h.done:
	}
}

// SendToClient queues a frame for one client. A full buffer drops the
// frame; the next push carries the same count anyway.
func (h *Hub) SendToClient(clientID string, push types.RemainPush) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case <-client.done:
		return false
	default:
	}
	select {
	case client.Send <- push:
		return true
	default:
		h.logger.Warn().Str("client_id", clientID).Msg("send buffer full, dropping")
		return false
	}
}
