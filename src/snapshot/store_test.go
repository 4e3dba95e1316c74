package snapshot

import (
	"testing"
	"time"

	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = types.Key("G1", "二等座", "2026-01-17")

func at(sec int) time.Time {
	return time.Unix(int64(sec), 0)
}

func TestApplyRejectsOlderTimestamp(t *testing.T) {
	s := NewStore()

	_, ok := s.Apply(key, 5, at(10))
	require.True(t, ok)

	snap, ok := s.Apply(key, 9, at(7))
	assert.False(t, ok)
	assert.Equal(t, int64(5), snap.Remaining)
	assert.Equal(t, at(10), snap.AppliedAt)
}

func TestApplyRejectsEqualTimestamp(t *testing.T) {
	s := NewStore()
	s.Apply(key, 5, at(10))

	_, ok := s.Apply(key, 4, at(10))
	assert.False(t, ok)

	got, _ := s.Get(key)
	assert.Equal(t, int64(5), got.Remaining)
}

func TestApplyWithoutTimestampKeepsMarker(t *testing.T) {
	s := NewStore()
	s.Apply(key, 5, at(10))

	snap, ok := s.Apply(key, 3, time.Time{})
	require.True(t, ok)
	assert.Equal(t, int64(3), snap.Remaining)
	assert.Equal(t, at(10), snap.AppliedAt)

	// The marker did not move, so a stale timestamp is still rejected.
	_, ok = s.Apply(key, 8, at(9))
	assert.False(t, ok)

	_, ok = s.Apply(key, 2, at(11))
	assert.True(t, ok)
}

func TestApplyIndependentKeys(t *testing.T) {
	s := NewStore()
	other := types.Key("G2", "二等座", "2026-01-17")

	s.Apply(key, 5, at(10))
	_, ok := s.Apply(other, 7, at(1))
	assert.True(t, ok)

	snap, found := s.Get(key)
	require.True(t, found)
	assert.Equal(t, int64(5), snap.Remaining)
	snap, found = s.Get(other)
	require.True(t, found)
	assert.Equal(t, int64(7), snap.Remaining)
}

func TestApplyKeepsLastAppliedForArbitraryOrder(t *testing.T) {
	s := NewStore()
	order := []int{3, 1, 4, 1, 5, 9, 2, 6}
	maxSeen := 0
	for _, sec := range order {
		_, ok := s.Apply(key, int64(sec), at(sec))
		assert.Equal(t, sec > maxSeen, ok, "timestamp %d", sec)
		if sec > maxSeen {
			maxSeen = sec
		}
	}
	got, _ := s.Get(key)
	assert.Equal(t, int64(9), got.Remaining)
}
