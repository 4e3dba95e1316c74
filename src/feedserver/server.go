// Package feedserver is the development feed simulator: it serves live
// remaining-seat channels over WebSocket, pushing counts read from the
// inventory store.
package feedserver

import (
	"context"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/railbook/config"
	"github.com/orchestra-mcp/railbook/src/clock"
	"github.com/orchestra-mcp/railbook/src/hub"
	"github.com/orchestra-mcp/railbook/src/inventory"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/rs/zerolog"
)

// storeTimeout bounds one inventory read.
const storeTimeout = 2 * time.Second

// Options wires a Server.
type Options struct {
	Config *config.FeedSimConfig
	Hub    *hub.Hub
	Store  inventory.Store
	// Bridge is reported by /healthz. Nil means standalone.
	Bridge hub.MessageBridge
	Clock  clock.Clock
	Logger zerolog.Logger
}

// Server owns the per-channel pushers and the HTTP surface.
type Server struct {
	cfg    *config.FeedSimConfig
	hub    *hub.Hub
	store  inventory.Store
	bridge hub.MessageBridge
	clock  clock.Clock
	logger zerolog.Logger

	upgrader websocket.FastHTTPUpgrader
	app      *fiber.App

	mu      sync.Mutex
	pushers map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server and hooks it to the hub's connection and
// disconnection events.
// The caller runs and stops the hub.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultFeedSimConfig()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		hub:    opts.Hub,
		store:  opts.Store,
		bridge: opts.Bridge,
		clock:  clk,
		logger: opts.Logger.With().Str("component", "feedserver").Logger(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
		pushers: make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.app = fiber.New()
	s.RegisterRoutes(s.app)
	s.hub.OnConnection(s.onConnect)
	s.hub.OnDisconnection(s.onDisconnect)
	return s
}

// Close stops every pusher.
func (s *Server) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// spawn runs f tracked by Close. Nothing starts after Close.
func (s *Server) spawn(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
}

// Pushers returns the channels with a running pusher.
func (s *Server) Pushers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pushers))
	for ch := range s.pushers {
		out = append(out, ch)
	}
	return out
}

// onConnect runs on the hub loop once a subscriber's channels are
// registered. It greets the client with the current count and makes
// sure each channel has a pusher.
func (s *Server) onConnect(clientID string) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		return
	}
	for _, ch := range info.Channels {
		key, err := types.ParseKey(ch)
		if err != nil {
			continue
		}
		s.ensurePusher(ch, key)
		s.spawn(func() {
			if push, ok := s.current(key); ok {
				s.hub.SendToClient(clientID, push)
			}
		})
	}
}

// onDisconnect runs on the hub loop after a subscriber is removed and
// stops the pushers of channels left without subscribers.
func (s *Server) onDisconnect(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, stop := range s.pushers {
		if s.hub.Subscribers(ch) > 0 {
			continue
		}
		stop()
		delete(s.pushers, ch)
		s.logger.Debug().Str("channel", ch).Msg("pusher stopped")
	}
}

func (s *Server) ensurePusher(ch string, key types.SubscriptionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushers[ch] != nil || s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.pushers[ch] = cancel
	s.wg.Add(1)
	go s.runPusher(ctx, key)
	s.logger.Debug().Str("channel", ch).Msg("pusher started")
}

// runPusher broadcasts the count every push interval until ctx ends.
func (s *Server) runPusher(ctx context.Context, key types.SubscriptionKey) {
	defer s.wg.Done()
	t := s.clock.NewTicker(s.cfg.PushInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if push, ok := s.current(key); ok && ctx.Err() == nil {
			s.hub.BroadcastToLocal(push)
		}
	}
}

// current reads the count for key as a frame. A failed read becomes an
// error frame.
func (s *Server) current(key types.SubscriptionKey) (types.RemainPush, bool) {
	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	defer cancel()
	n, err := s.store.Remaining(ctx, key)
	if s.ctx.Err() != nil {
		return types.RemainPush{}, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("remaining lookup failed")
		return types.RemainPush{
			TrainID:    key.TrainID,
			SeatType:   key.SeatClass,
			TravelDate: key.TravelDate,
			Code:       500,
			Msg:        "余票查询失败",
		}, true
	}
	return s.frame(key, n), true
}

func (s *Server) frame(key types.SubscriptionKey, n int64) types.RemainPush {
	now := s.clock.Now()
	return types.RemainPush{
		TrainID:    key.TrainID,
		SeatType:   key.SeatClass,
		TravelDate: key.TravelDate,
		Remaining:  &n,
		Time:       &now,
	}
}
