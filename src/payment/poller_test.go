package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/railbook/src/clock"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	statuses map[string][]string
	errs     map[string]int
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		calls:    make(map[string]int),
		statuses: make(map[string][]string),
		errs:     make(map[string]int),
	}
}

func (f *scriptedFetcher) OrderInfo(_ context.Context, orderID string) (types.OrderDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[orderID]++
	if f.errs[orderID] > 0 {
		f.errs[orderID]--
		return types.OrderDetail{}, errors.New("timeout")
	}
	status := "PENDING_PAY"
	if s := f.statuses[orderID]; len(s) > 0 {
		status = s[0]
		f.statuses[orderID] = s[1:]
	}
	return types.OrderDetail{Order: &types.OrderInfo{OrderID: orderID, OrderStatus: status}}, nil
}

func (f *scriptedFetcher) count(orderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[orderID]
}

type seen struct {
	orderID string
	status  string
}

func newTestPoller(f Fetcher, c clock.Clock) (*Poller, chan seen) {
	ch := make(chan seen, 16)
	p := NewPoller(f, c, 0, func(id string, d types.OrderDetail) {
		ch <- seen{id, d.Status()}
	}, zerolog.Nop())
	return p, ch
}

func next(t *testing.T, ch chan seen) seen {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("no status delivered")
		return seen{}
	}
}

func TestPollerStopsOnTerminalStatus(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	f := newScriptedFetcher()
	f.statuses["O1"] = []string{"PENDING_PAY", "ISSUED"}
	p, ch := newTestPoller(f, fc)

	p.Start("O1")
	assert.Equal(t, "O1", p.Active())

	fc.Advance(DefaultInterval)
	assert.Equal(t, seen{"O1", "PENDING_PAY"}, next(t, ch))

	fc.Advance(DefaultInterval)
	assert.Equal(t, seen{"O1", "ISSUED"}, next(t, ch))
	require.Eventually(t, func() bool { return p.Active() == "" }, time.Second, time.Millisecond)

	fc.Advance(10 * DefaultInterval)
	assert.Equal(t, 2, f.count("O1"))
}

func TestPollerSwitchesOrders(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	f := newScriptedFetcher()
	p, ch := newTestPoller(f, fc)

	p.Start("O1")
	fc.Advance(DefaultInterval)
	assert.Equal(t, "O1", next(t, ch).orderID)

	p.Start("O2")
	assert.Equal(t, "O2", p.Active())
	assert.Equal(t, 1, fc.Pending(), "only one ticker is armed")

	fc.Advance(DefaultInterval)
	assert.Equal(t, "O2", next(t, ch).orderID)
	fc.Advance(DefaultInterval)
	assert.Equal(t, "O2", next(t, ch).orderID)

	assert.Equal(t, 1, f.count("O1"))
	p.Stop()
}

func TestPollerSwallowsErrors(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	f := newScriptedFetcher()
	f.errs["O1"] = 2
	p, ch := newTestPoller(f, fc)
	defer p.Stop()

	p.Start("O1")
	for i := 1; i <= 2; i++ {
		fc.Advance(DefaultInterval)
		want := i
		require.Eventually(t, func() bool { return f.count("O1") == want }, time.Second, time.Millisecond)
	}
	assert.Empty(t, ch)

	fc.Advance(DefaultInterval)
	assert.Equal(t, seen{"O1", "PENDING_PAY"}, next(t, ch))
	assert.Equal(t, "O1", p.Active())
}

func TestPollerStopAndBlankStart(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p, ch := newTestPoller(newScriptedFetcher(), fc)

	p.Start("O1")
	p.Stop()
	assert.Empty(t, p.Active())
	fc.Advance(5 * DefaultInterval)
	assert.Empty(t, ch)

	p.Start("O1")
	p.Start("  ")
	assert.Empty(t, p.Active())
	assert.Equal(t, 0, fc.Pending())
}

func TestPollerReportsFailedFetches(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	f := newScriptedFetcher()
	f.errs["O1"] = 1
	p, ch := newTestPoller(f, fc)
	defer p.Stop()

	failed := make(chan string, 4)
	p.OnError(func(id string, err error) {
		assert.EqualError(t, err, "timeout")
		failed <- id
	})

	p.Start("O1")
	fc.Advance(DefaultInterval)
	select {
	case id := <-failed:
		assert.Equal(t, "O1", id)
	case <-time.After(time.Second):
		t.Fatal("failure not reported")
	}
	assert.Equal(t, "O1", p.Active())

	fc.Advance(DefaultInterval)
	assert.Equal(t, seen{"O1", "PENDING_PAY"}, next(t, ch))
	assert.Empty(t, failed)
}
