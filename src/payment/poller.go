package payment

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/orchestra-mcp/railbook/src/clock"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/rs/zerolog"
)

// DefaultInterval is the time between status fetches.
const DefaultInterval = 2 * time.Second

// Fetcher loads the current state of an order.
type Fetcher interface {
	OrderInfo(ctx context.Context, orderID string) (types.OrderDetail, error)
}

// StatusFunc receives every successfully fetched order state.
type StatusFunc func(orderID string, detail types.OrderDetail)

// ErrorFunc receives every failed fetch. Polling continues regardless.
type ErrorFunc func(orderID string, err error)

// Poller fetches one order's status on a fixed interval until the
// order settles or the poller is stopped. At most one order is polled
// at a time.
type Poller struct {
	fetch    Fetcher
	clock    clock.Clock
	interval time.Duration
	onStatus StatusFunc
	logger   zerolog.Logger

	mu      sync.Mutex
	active  *poll
	onError ErrorFunc
}

type poll struct {
	orderID string
	ctx     context.Context
	cancel  context.CancelFunc
	ticker  *clock.Ticker
}

// NewPoller creates an idle poller. A zero interval uses
// DefaultInterval and a nil clock the real one.
func NewPoller(fetch Fetcher, c clock.Clock, interval time.Duration, onStatus StatusFunc, logger zerolog.Logger) *Poller {
	if c == nil {
		c = clock.Real()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetch:    fetch,
		clock:    c,
		interval: interval,
		onStatus: onStatus,
		logger:   logger.With().Str("component", "payment-poller").Logger(),
	}
}

// Start polls orderID, stopping whatever was polled before. A blank id
// only stops.
func (p *Poller) Start(orderID string) {
	orderID = strings.TrimSpace(orderID)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	if orderID == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	pl := &poll{
		orderID: orderID,
		ctx:     ctx,
		cancel:  cancel,
		ticker:  p.clock.NewTicker(p.interval),
	}
	p.active = pl
	go p.loop(pl)
	p.logger.Debug().Str("order_id", orderID).Msg("polling started")
}

// OnError registers a callback for failed fetches.
func (p *Poller) OnError(f ErrorFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = f
}

// Stop ends polling. Results of a fetch in flight are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Active returns the order being polled, or "".
func (p *Poller) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return ""
	}
	return p.active.orderID
}

func (p *Poller) stopLocked() {
	if p.active == nil {
		return
	}
	p.active.cancel()
	p.active.ticker.Stop()
	p.logger.Debug().Str("order_id", p.active.orderID).Msg("polling stopped")
	p.active = nil
}

func (p *Poller) finish(pl *poll) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == pl {
		p.stopLocked()
	}
}

func (p *Poller) loop(pl *poll) {
	for {
		select {
		case <-pl.ctx.Done():
			return
		case <-pl.ticker.C:
		}
		detail, err := p.fetch.OrderInfo(pl.ctx, pl.orderID)
		if pl.ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Debug().Err(err).Str("order_id", pl.orderID).Msg("status fetch failed")
			p.mu.Lock()
			onError := p.onError
			p.mu.Unlock()
			if onError != nil {
				onError(pl.orderID, err)
			}
			continue
		}
		if p.onStatus != nil {
			p.onStatus(pl.orderID, detail)
		}
		if types.IsTerminalStatus(detail.Status()) {
			p.finish(pl)
			return
		}
	}
}
