package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/orchestra-mcp/railbook/src/clock"
	"github.com/orchestra-mcp/railbook/src/snapshot"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxConns = 8
	MinConns        = 1
	MaxConns        = 20

	InitialBackoff = 500 * time.Millisecond
	MaxBackoff     = 10 * time.Second
	BackoffFactor  = 1.8
	MaxJitter      = 250 * time.Millisecond
)

// Dialer opens the live channel for one key.
type Dialer interface {
	Dial(ctx context.Context, key types.SubscriptionKey) (types.Conn, error)
}

// Update is an accepted change of one key's remaining count.
type Update struct {
	Key       types.SubscriptionKey
	Remaining int64
	At        time.Time
}

// Options configures a Multiplexer. Dialer and Store are required.
type Options struct {
	Dialer   Dialer
	Store    *snapshot.Store
	Clock    clock.Clock
	Jitter   func() time.Duration
	Logger   zerolog.Logger
	Metrics  *Metrics
	OnUpdate func(Update)
}

// Multiplexer keeps at most maxConns live channels open, one per
// desired key, reconnecting dropped ones with capped backoff.
type Multiplexer struct {
	dialer   Dialer
	store    *snapshot.Store
	clock    clock.Clock
	jitter   func() time.Duration
	logger   zerolog.Logger
	metrics  *Metrics
	onUpdate func(Update)

	mu      sync.Mutex
	max     int
	desired []types.SubscriptionKey
	wanted  map[types.SubscriptionKey]struct{}
	records map[types.SubscriptionKey]*record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// record is the per-key connection state. Its goroutine is the only
// writer of backoff; conn is guarded by mu because eviction closes it.
type record struct {
	key     types.SubscriptionKey
	ctx     context.Context
	stop    context.CancelFunc
	backoff time.Duration

	mu   sync.Mutex
	conn types.Conn
}

// New creates a Multiplexer with maxConns set to DefaultMaxConns.
func New(opts Options) *Multiplexer {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Jitter == nil {
		opts.Jitter = func() time.Duration { return rand.N(MaxJitter) }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Multiplexer{
		dialer:   opts.Dialer,
		store:    opts.Store,
		clock:    opts.Clock,
		jitter:   opts.Jitter,
		logger:   opts.Logger.With().Str("component", "feed").Logger(),
		metrics:  opts.Metrics,
		onUpdate: opts.OnUpdate,
		max:      DefaultMaxConns,
		wanted:   make(map[types.SubscriptionKey]struct{}),
		records:  make(map[types.SubscriptionKey]*record),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetMax changes the channel cap, clamped to [MinConns, MaxConns]. It
// takes effect on the next Sync.
func (m *Multiplexer) SetMax(n int) {
	n = min(max(n, MinConns), MaxConns)
	m.mu.Lock()
	m.max = n
	m.mu.Unlock()
}

// Max returns the current channel cap.
func (m *Multiplexer) Max() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.max
}

// Sync makes the first maxConns distinct keys the desired set. Keys
// that left the set are closed without reconnecting, new keys are
// dialed, and keys already open are left alone.
func (m *Multiplexer) Sync(keys []types.SubscriptionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return
	}

	desired := make([]types.SubscriptionKey, 0, m.max)
	wanted := make(map[types.SubscriptionKey]struct{}, m.max)
	for _, k := range keys {
		if len(desired) == m.max {
			break
		}
		if _, dup := wanted[k]; dup {
			continue
		}
		wanted[k] = struct{}{}
		desired = append(desired, k)
	}
	m.desired = desired
	m.wanted = wanted

	for k, r := range m.records {
		if _, ok := wanted[k]; !ok {
			m.evictLocked(r)
		}
	}
	for _, k := range desired {
		if _, ok := m.records[k]; ok {
			continue
		}
		m.startLocked(k)
	}
}

// CloseAll closes every channel and clears the desired set.
func (m *Multiplexer) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.desired = nil
	m.wanted = make(map[types.SubscriptionKey]struct{})
	for _, r := range m.records {
		m.evictLocked(r)
	}
}

// Close tears everything down and waits for every key's goroutine.
func (m *Multiplexer) Close() {
	m.CloseAll()
	m.cancel()
	m.wg.Wait()
}

// Desired returns the current desired set in priority order.
func (m *Multiplexer) Desired() []types.SubscriptionKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.SubscriptionKey, len(m.desired))
	copy(out, m.desired)
	return out
}

// OpenCount returns the number of channels currently open.
func (m *Multiplexer) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.isOpen() {
			n++
		}
	}
	return n
}

func (m *Multiplexer) startLocked(k types.SubscriptionKey) {
	ctx, stop := context.WithCancel(m.ctx)
	r := &record{key: k, ctx: ctx, stop: stop, backoff: InitialBackoff}
	m.records[k] = r
	m.wg.Add(1)
	go m.run(r)
}

func (m *Multiplexer) evictLocked(r *record) {
	delete(m.records, r.key)
	r.stop()
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		conn.Close()
		m.metrics.closed()
	}
	m.logger.Debug().Str("key", r.key.String()).Msg("channel evicted")
}

// stillWanted reports whether r is current and its key still desired.
// A record that is no longer wanted is dropped.
func (m *Multiplexer) stillWanted(r *record) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.wanted[r.key]
	if ok && m.records[r.key] == r {
		return true
	}
	if m.records[r.key] == r {
		delete(m.records, r.key)
	}
	return false
}

func (m *Multiplexer) run(r *record) {
	defer m.wg.Done()
	for {
		m.metrics.dialed()
		conn, err := m.dialer.Dial(r.ctx, r.key)
		switch {
		case err != nil:
			if r.ctx.Err() != nil {
				return
			}
			m.logger.Debug().Err(err).Str("key", r.key.String()).Msg("dial failed")
		case !r.attach(conn):
			conn.Close()
			return
		default:
			r.backoff = InitialBackoff
			m.metrics.opened()
			m.logger.Debug().Str("key", r.key.String()).Msg("channel open")
			m.read(r, conn)
			if !r.detach(conn) {
				// Evicted while reading; eviction already accounted for it.
				return
			}
			conn.Close()
			m.metrics.closed()
		}
		if r.ctx.Err() != nil {
			return
		}
		if !m.wait(r) {
			return
		}
	}
}

// wait sleeps for the current backoff plus jitter and grows the
// backoff. It reports false when the record should stop.
func (m *Multiplexer) wait(r *record) bool {
	d := min(MaxBackoff, r.backoff) + m.jitter()
	r.backoff = NextBackoff(r.backoff)
	m.metrics.retried()
	m.logger.Debug().Str("key", r.key.String()).Dur("wait", d).Msg("reconnect scheduled")

	select {
	case <-m.clock.After(d):
	case <-r.ctx.Done():
		return false
	}
	return m.stillWanted(r)
}

// NextBackoff returns the backoff that follows b.
func NextBackoff(b time.Duration) time.Duration {
	ms := int64(float64(b.Milliseconds()) * BackoffFactor)
	return min(MaxBackoff, time.Duration(ms)*time.Millisecond)
}

// frame is a RemainPush whose time is kept raw, so an unparseable
// timestamp degrades to "no timestamp" instead of dropping the frame.
type frame struct {
	types.RemainPush
	Time string `json:"time"`
}

func (m *Multiplexer) read(r *record, conn types.Conn) {
	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) || errors.Is(err, io.ErrUnexpectedEOF) {
				m.logger.Debug().Err(err).Str("key", r.key.String()).Msg("skipping malformed frame")
				continue
			}
			if r.ctx.Err() == nil {
				m.logger.Debug().Err(err).Str("key", r.key.String()).Msg("channel closed")
			}
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			m.logger.Debug().Err(err).Str("key", r.key.String()).Msg("skipping undecodable frame")
			continue
		}
		m.apply(r.key, f)
	}
}

func (m *Multiplexer) apply(fallback types.SubscriptionKey, f frame) {
	if f.Remaining == nil {
		if f.Code != 0 {
			m.logger.Debug().Int32("code", f.Code).Str("msg", f.Msg).Str("key", fallback.String()).Msg("feed error frame")
		}
		return
	}
	key := f.KeyOr(fallback)
	var at time.Time
	if f.Time != "" {
		if t, err := time.Parse(time.RFC3339Nano, f.Time); err == nil {
			at = t
		}
	}
	snap, ok := m.store.Apply(key, *f.Remaining, at)
	if !ok {
		m.metrics.stale()
		return
	}
	m.metrics.applied()
	if m.onUpdate != nil {
		m.onUpdate(Update{Key: key, Remaining: snap.Remaining, At: snap.AppliedAt})
	}
}

func (r *record) attach(conn types.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return false
	}
	r.conn = conn
	return true
}

// detach clears conn if it is still attached. It reports false when
// eviction got there first.
func (r *record) detach(conn types.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != conn {
		return false
	}
	r.conn = nil
	return true
}

func (r *record) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}
