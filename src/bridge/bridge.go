package bridge

import "github.com/orchestra-mcp/railbook/src/types"

// Bridge relays remaining-seat frames between simulator instances.
type Bridge interface {
	// Publish sends a frame to all other instances.
	Publish(push types.RemainPush) error

	// Start begins listening for frames from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the Hub to receive relayed frames.
type BroadcastTarget interface {
	BroadcastToLocal(push types.RemainPush)
}
