package feedserver

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/railbook/src/feed"
	"github.com/orchestra-mcp/railbook/src/hub"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/valyala/fasthttp"
)

// Route paths besides feed.RemainPath.
const (
	InfoPath   = "/ws/info"
	HealthPath = "/healthz"
	DevPath    = "/api/v1/dev/remain"
)

// Validation messages sent in {code:400} frames and responses.
const (
	msgTrainID    = "train_id必填"
	msgTravelDate = "travel_date格式错误"
	msgSeatType   = "seat_type必填且有效"
	msgRemaining  = "remaining必填且不能为负"
	msgBody       = "请求体格式错误"
)

type codeResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// RegisterRoutes registers the plain HTTP routes. The WebSocket upgrade
// is served by Handler, since Fiber v3 does not expose
// *fasthttp.RequestCtx.
func (s *Server) RegisterRoutes(r fiber.Router) {
	r.Get(InfoPath, s.handleInfo)
	r.Get(HealthPath, s.handleHealth)
	r.Post(DevPath, s.handleSetRemain)
}

// Handler returns the fasthttp handler for every route.
func (s *Server) Handler() fasthttp.RequestHandler {
	routes := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == feed.RemainPath {
			s.handleRemainWS(ctx)
			return
		}
		routes(ctx)
	}
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  feed.RemainPath,
		"clients":   s.hub.ClientCount(),
		"channels":  s.hub.Channels(),
		"pushers":   len(s.Pushers()),
	})
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"bridge": s.bridge != nil && s.bridge.Available(),
	})
}

type setRemainReq struct {
	TrainID    string `json:"train_id"`
	SeatType   string `json:"seat_type"`
	TravelDate string `json:"travel_date"`
	Remaining  *int64 `json:"remaining"`
}

// handleSetRemain stores a count and pushes it at once to subscribers
// here and on every bridged instance.
func (s *Server) handleSetRemain(c fiber.Ctx) error {
	var req setRemainReq
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(codeResp{Code: 400, Msg: msgBody})
	}
	key, msg := validateKey(req.TrainID, req.SeatType, req.TravelDate)
	if msg == "" && (req.Remaining == nil || *req.Remaining < 0) {
		msg = msgRemaining
	}
	if msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(codeResp{Code: 400, Msg: msg})
	}

	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	defer cancel()
	if err := s.store.SetRemaining(ctx, key, *req.Remaining); err != nil {
		s.logger.Error().Err(err).Str("key", key.String()).Msg("set remaining failed")
		return c.Status(fiber.StatusInternalServerError).JSON(codeResp{Code: 500, Msg: "余票写入失败"})
	}
	s.hub.Publish(s.frame(key, *req.Remaining))
	s.logger.Info().Str("key", key.String()).Int64("remaining", *req.Remaining).Msg("remaining set")
	return c.JSON(codeResp{Code: 0, Msg: "ok"})
}

// validateKey checks the channel parameters and returns the first
// problem as a user-facing message.
func validateKey(trainID, seatType, travelDate string) (types.SubscriptionKey, string) {
	trainID = strings.TrimSpace(trainID)
	seatType = strings.TrimSpace(seatType)
	travelDate = strings.TrimSpace(travelDate)
	if trainID == "" {
		return types.SubscriptionKey{}, msgTrainID
	}
	if _, err := time.Parse(time.DateOnly, travelDate); err != nil {
		return types.SubscriptionKey{}, msgTravelDate
	}
	if !types.ValidSeatClass(seatType) {
		return types.SubscriptionKey{}, msgSeatType
	}
	return types.Key(trainID, seatType, travelDate), ""
}

// handleRemainWS upgrades a channel request. Bad parameters are
// reported in a single {code:400} frame before the socket closes.
func (s *Server) handleRemainWS(ctx *fasthttp.RequestCtx) {
	upgrade := string(ctx.Request.Header.Peek("Upgrade"))
	if !strings.EqualFold(upgrade, "websocket") {
		ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"code":426,"msg":"WebSocket upgrade required"}`)
		return
	}
	if s.hub.ClientCount() >= s.cfg.MaxConnections {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"code":503,"msg":"too many connections"}`)
		return
	}

	args := ctx.QueryArgs()
	key, msg := validateKey(string(args.Peek("train_id")), string(args.Peek("seat_type")), string(args.Peek("travel_date")))
	clientID := uuid.New().String()
	userAgent := string(ctx.UserAgent())

	err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		wc := &fasthttpConn{conn: conn, writeTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second}
		if msg != "" {
			_ = wc.WriteJSON(codeResp{Code: 400, Msg: msg})
			wc.Close()
			return
		}
		client := hub.NewClient(clientID, wc, s.hub, userAgent, key.String())
		s.hub.Register(client)
		go client.WritePump()
		go s.ping(wc, client)
		client.ReadPump()
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}

// ping keeps idle connections alive until the client closes.
func (s *Server) ping(wc *fasthttpConn, client *hub.Client) {
	if s.cfg.PingInterval <= 0 {
		return
	}
	t := s.clock.NewTicker(time.Duration(s.cfg.PingInterval) * time.Second)
	defer t.Stop()
	for {
		select {
		case <-client.Done():
			return
		case <-s.ctx.Done():
			return
		case <-t.C:
			if err := wc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wc.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type fasthttpConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (f *fasthttpConn) WriteJSON(v any) error {
	if f.writeTimeout > 0 {
		_ = f.conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
	}
	return f.conn.WriteJSON(v)
}

func (f *fasthttpConn) ReadJSON(v any) error { return f.conn.ReadJSON(v) }
func (f *fasthttpConn) Close() error         { return f.conn.Close() }
