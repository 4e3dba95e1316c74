package snapshot

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/railbook/src/types"
)

// Snapshot is the last known remaining count of one key.
type Snapshot struct {
	Remaining int64
	// AppliedAt is the newest timestamp accepted so far. Zero until a
	// timestamped update lands.
	AppliedAt time.Time
}

// Store keeps one Snapshot per subscription key and rejects updates
// that are not strictly newer than what it holds.
type Store struct {
	mu    sync.RWMutex
	items map[types.SubscriptionKey]Snapshot
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{items: make(map[types.SubscriptionKey]Snapshot)}
}

// Apply records remaining for key. An update with a zero timestamp is
// always applied and leaves AppliedAt untouched. A timestamped update
// is applied only when at is after AppliedAt. The returned bool
// reports whether the update was applied.
func (s *Store) Apply(key types.SubscriptionKey, remaining int64, at time.Time) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[key]
	if !at.IsZero() {
		if ok && !at.After(cur.AppliedAt) {
			return cur, false
		}
		cur.AppliedAt = at
	}
	cur.Remaining = remaining
	s.items[key] = cur
	return cur, true
}

// Get returns the snapshot for key.
func (s *Store) Get(key types.SubscriptionKey) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.items[key]
	return snap, ok
}
