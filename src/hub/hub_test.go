package hub_test

import (
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/railbook/src/hub"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn implements types.Conn for testing without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	written  []types.RemainPush
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{closedCh: make(chan struct{})}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := v.(types.RemainPush); ok {
		m.written = append(m.written, p)
	}
	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	<-m.closedCh
	return &closeError{}
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) getWritten() []types.RemainPush {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]types.RemainPush, len(m.written))
	copy(cp, m.written)
	return cp
}

type closeError struct{}

func (e *closeError) Error() string { return "connection closed" }

type recordingBridge struct {
	mu     sync.Mutex
	pushes []types.RemainPush
}

func (b *recordingBridge) Publish(p types.RemainPush) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushes = append(b.pushes, p)
	return nil
}

func (b *recordingBridge) Available() bool { return true }

func (b *recordingBridge) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pushes)
}

const (
	wait = time.Second
	tick = 5 * time.Millisecond
)

var g1 = types.Key("G1", "二等座", "2030-01-02")

func push(k types.SubscriptionKey, n int64) types.RemainPush {
	return types.RemainPush{TrainID: k.TrainID, SeatType: k.SeatClass, TravelDate: k.TravelDate, Remaining: &n}
}

// newTestHub creates a hub and starts its event loop in a goroutine.
func newTestHub(t *testing.T) *hub.Hub {
	t.Helper()
	h := hub.New(zerolog.Nop())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

// registerClient creates, registers, and starts a mock client.
func registerClient(t *testing.T, h *hub.Hub, id string, channels ...string) (*hub.Client, *mockConn) {
	t.Helper()
	conn := newMockConn()
	client := hub.NewClient(id, conn, h, "test", channels...)
	h.Register(client)
	go client.WritePump()
	require.Eventually(t, func() bool { return h.ClientInfo(id) != nil }, wait, tick)
	return client, conn
}

func TestChannelIsKeyString(t *testing.T) {
	assert.Equal(t, g1.String(), hub.Channel(push(g1, 1)))
}

func TestHubRegisterAndUnregister(t *testing.T) {
	h := newTestHub(t)

	registerClient(t, h, "client-1")
	registerClient(t, h, "client-2")
	assert.Equal(t, 2, h.ClientCount())

	c3, _ := registerClient(t, h, "client-3", g1.String())
	h.Unregister(c3)
	assert.Eventually(t, func() bool { return h.ClientInfo("client-3") == nil }, wait, tick)
	assert.Equal(t, 2, h.ClientCount())
	assert.Zero(t, h.Subscribers(g1.String()))
}

func TestInitialChannelsSubscribedBeforeCallback(t *testing.T) {
	h := newTestHub(t)

	seen := make(chan int, 1)
	h.OnConnection(func(id string) {
		seen <- len(h.ClientInfo(id).Channels)
	})
	registerClient(t, h, "c1", g1.String())

	select {
	case n := <-seen:
		assert.Equal(t, 1, n)
	case <-time.After(wait):
		t.Fatal("connection callback not called")
	}
	assert.Equal(t, 1, h.Subscribers(g1.String()))
}

func TestChannelsCountSubscribers(t *testing.T) {
	h := newTestHub(t)
	g2 := types.Key("G2", "二等座", "2030-01-02").String()
	registerClient(t, h, "c1", g1.String(), g2)
	c2, _ := registerClient(t, h, "c2", g1.String())

	assert.Equal(t, map[string]int{g1.String(): 2, g2: 1}, h.Channels())
	assert.ElementsMatch(t, []string{g1.String(), g2}, h.ClientInfo("c1").Channels)

	h.Unregister(c2)
	assert.Eventually(t, func() bool { return h.Subscribers(g1.String()) == 1 }, wait, tick)
}

func TestPublishReachesSubscribersOnly(t *testing.T) {
	h := newTestHub(t)
	br := &recordingBridge{}
	h.SetBridge(br)
	_, conn1 := registerClient(t, h, "c1", g1.String())
	_, conn2 := registerClient(t, h, "c2", g1.String())
	_, conn3 := registerClient(t, h, "c3", types.Key("G2", "二等座", "2030-01-02").String())

	h.Publish(push(g1, 7))

	assert.Eventually(t, func() bool {
		return len(conn1.getWritten()) == 1 && len(conn2.getWritten()) == 1
	}, wait, tick)
	assert.Equal(t, int64(7), *conn1.getWritten()[0].Remaining)
	assert.Empty(t, conn3.getWritten())
	assert.Eventually(t, func() bool { return br.count() == 1 }, wait, tick)
}

func TestBroadcastToLocalSkipsBridge(t *testing.T) {
	h := newTestHub(t)
	br := &recordingBridge{}
	h.SetBridge(br)
	_, conn := registerClient(t, h, "c1", g1.String())

	h.BroadcastToLocal(push(g1, 3))

	assert.Eventually(t, func() bool { return len(conn.getWritten()) == 1 }, wait, tick)
	assert.Zero(t, br.count())
}

func TestSendToClient(t *testing.T) {
	h := newTestHub(t)
	_, conn := registerClient(t, h, "target")

	require.True(t, h.SendToClient("target", push(g1, 1)))
	assert.Eventually(t, func() bool { return len(conn.getWritten()) == 1 }, wait, tick)
	assert.False(t, h.SendToClient("nonexistent", push(g1, 1)))
}

func TestConnectionCallbacks(t *testing.T) {
	h := newTestHub(t)

	var mu sync.Mutex
	var connectedID, disconnectedID string
	h.OnConnection(func(id string) { mu.Lock(); connectedID = id; mu.Unlock() })
	h.OnDisconnection(func(id string) {
		mu.Lock()
		defer mu.Unlock()
		disconnectedID = id
		assert.Nil(t, h.ClientInfo(id), "client is gone before the callback")
	})

	client, _ := registerClient(t, h, "cb-client")
	assert.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return connectedID == "cb-client" }, wait, tick)

	h.Unregister(client)
	assert.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return disconnectedID == "cb-client" }, wait, tick)
}

func TestReadPumpUnregistersOnClose(t *testing.T) {
	h := newTestHub(t)
	client, conn := registerClient(t, h, "reader", g1.String())
	go client.ReadPump()

	conn.Close()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, wait, tick)
	assert.Empty(t, h.Channels())
}

func TestStopClosesClients(t *testing.T) {
	h := hub.New(zerolog.Nop())
	go h.Run()
	client, _ := registerClient(t, h, "c1")

	h.Stop()
	select {
	case <-client.Done():
	case <-time.After(wait):
		t.Fatal("client not closed on stop")
	}
	h.Stop()
}
