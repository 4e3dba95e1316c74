package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 17, 8, 0, 0, 0, time.UTC)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := NewFake(epoch)
	ch := c.After(time.Second)

	c.Advance(999 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case at := <-ch:
		assert.Equal(t, epoch.Add(time.Second), at)
	default:
		t.Fatal("did not fire")
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := NewFake(epoch)
	calls := 0
	timer := c.AfterFunc(time.Second, func() { calls++ })

	assert.True(t, timer.Stop())
	c.Advance(2 * time.Second)
	assert.Equal(t, 0, calls)
	assert.False(t, timer.Stop())
}

func TestFakeAfterFuncOrdering(t *testing.T) {
	c := NewFake(epoch)
	var order []int
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	c.AfterFunc(time.Second, func() { order = append(order, 1) })

	c.Advance(3 * time.Second)
	assert.Equal(t, []int{1, 2}, order)
}

func TestFakeTickerDropsWhenFull(t *testing.T) {
	c := NewFake(epoch)
	tk := c.NewTicker(time.Second)
	defer tk.Stop()

	c.Advance(5 * time.Second)
	require.Len(t, tk.C, 1)
	<-tk.C

	tk.Stop()
	c.Advance(5 * time.Second)
	assert.Len(t, tk.C, 0)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeWaitForTimers(t *testing.T) {
	c := NewFake(epoch)
	done := make(chan struct{})
	go func() {
		<-c.After(time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
}
