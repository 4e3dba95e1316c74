package feedserver

import (
	"context"
	"encoding/json"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/railbook/config"
	"github.com/orchestra-mcp/railbook/src/clock"
	"github.com/orchestra-mcp/railbook/src/feed"
	"github.com/orchestra-mcp/railbook/src/hub"
	"github.com/orchestra-mcp/railbook/src/inventory"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

const (
	wait = 2 * time.Second
	tick = 5 * time.Millisecond
)

var g1 = types.Key("G1", "二等座", "2030-01-02")

type harness struct {
	srv   *Server
	hub   *hub.Hub
	store *inventory.Memory
	fc    *clock.FakeClock
	ln    *fasthttputil.InmemoryListener
	http  *fasthttp.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.DefaultFeedSimConfig()
	cfg.PingInterval = 0

	h := hub.New(zerolog.Nop())
	go h.Run()
	fc := clock.NewFake(time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC))
	store := inventory.NewMemory()
	srv := New(Options{Config: cfg, Hub: h, Store: store, Clock: fc, Logger: zerolog.Nop()})

	ln := fasthttputil.NewInmemoryListener()
	httpSrv := &fasthttp.Server{Handler: srv.Handler()}
	go func() { _ = httpSrv.Serve(ln) }()

	t.Cleanup(func() {
		h.Stop()
		srv.Close()
		_ = ln.Close()
	})
	return &harness{
		srv:   srv,
		hub:   h,
		store: store,
		fc:    fc,
		ln:    ln,
		http:  &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }},
	}
}

func (h *harness) dial(t *testing.T, q url.Values) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{
		NetDialContext: func(context.Context, string, string) (net.Conn, error) { return h.ln.Dial() },
	}
	u := url.URL{Scheme: "ws", Host: "feed.test", Path: feed.RemainPath, RawQuery: q.Encode()}
	conn, _, err := d.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func keyQuery(k types.SubscriptionKey) url.Values {
	return url.Values{"train_id": {k.TrainID}, "seat_type": {k.SeatClass}, "travel_date": {k.TravelDate}}
}

func readPush(t *testing.T, conn *websocket.Conn) types.RemainPush {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	var p types.RemainPush
	require.NoError(t, conn.ReadJSON(&p))
	return p
}

func (h *harness) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI("http://feed.test" + path)
	req.Header.SetMethod(method)
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}
	require.NoError(t, h.http.DoTimeout(req, resp, wait))
	out := map[string]any{}
	_ = json.Unmarshal(resp.Body(), &out)
	return resp.StatusCode(), out
}

func TestSubscriberGetsGreetingSetsAndTicks(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, keyQuery(g1))

	greet := readPush(t, conn)
	assert.Equal(t, g1, greet.KeyOr(types.SubscriptionKey{}))
	require.NotNil(t, greet.Remaining)
	assert.Equal(t, inventory.Seed(g1), *greet.Remaining)

	status, body := h.do(t, "POST", DevPath, `{"train_id":"G1","seat_type":"二等座","travel_date":"2030-01-02","remaining":3}`)
	assert.Equal(t, 200, status)
	assert.Equal(t, float64(0), body["code"])
	assert.Equal(t, int64(3), *readPush(t, conn).Remaining)

	h.fc.WaitForTimers(1)
	h.fc.Advance(h.srv.cfg.PushInterval)
	p := readPush(t, conn)
	assert.Equal(t, int64(3), *p.Remaining)
	require.NotNil(t, p.Time)
	assert.True(t, p.Time.Equal(h.fc.Now()))
}

func TestBadParametersGetErrorFrame(t *testing.T) {
	h := newHarness(t)
	q := keyQuery(g1)
	q.Set("seat_type", "站票")
	conn := h.dial(t, q)

	p := readPush(t, conn)
	assert.Equal(t, int32(400), p.Code)
	assert.Equal(t, msgSeatType, p.Msg)
	assert.Nil(t, p.Remaining)

	var discard any
	assert.Error(t, conn.ReadJSON(&discard), "socket closes after the error frame")
}

func TestValidateKey(t *testing.T) {
	_, msg := validateKey(" ", "二等座", "2030-01-02")
	assert.Equal(t, msgTrainID, msg)
	_, msg = validateKey("G1", "二等座", "2030/01/02")
	assert.Equal(t, msgTravelDate, msg)
	_, msg = validateKey("G1", "", "2030-01-02")
	assert.Equal(t, msgSeatType, msg)
	k, msg := validateKey(" G1 ", "二等座", "2030-01-02")
	assert.Empty(t, msg)
	assert.Equal(t, g1, k)
}

func TestPusherStopsWhenLastSubscriberLeaves(t *testing.T) {
	h := newHarness(t)
	first := h.dial(t, keyQuery(g1))
	readPush(t, first)
	second := h.dial(t, keyQuery(g1))
	readPush(t, second)
	assert.Equal(t, []string{g1.String()}, h.srv.Pushers())
	h.fc.WaitForTimers(1)

	first.Close()
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 1 }, wait, tick)
	assert.Equal(t, []string{g1.String()}, h.srv.Pushers(), "one subscriber still listens")

	second.Close()
	require.Eventually(t, func() bool { return len(h.srv.Pushers()) == 0 }, wait, tick, "stopped without waiting for a tick")
	assert.Zero(t, h.hub.ClientCount())
	assert.Eventually(t, func() bool { return h.fc.Pending() == 0 }, wait, tick)
}

func TestSetRemainValidates(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, "POST", DevPath, `{"train_id":"G1","seat_type":"二等座","travel_date":"2030-01-02"}`)
	assert.Equal(t, 400, status)
	assert.Equal(t, msgRemaining, body["msg"])

	status, body = h.do(t, "POST", DevPath, `nope`)
	assert.Equal(t, 400, status)
	assert.Equal(t, msgBody, body["msg"])

	n, err := h.store.Remaining(context.Background(), g1)
	require.NoError(t, err)
	assert.Equal(t, inventory.Seed(g1), n)
}

func TestPlainRequestToFeedNeedsUpgrade(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, "GET", feed.RemainPath+"?train_id=G1", "")
	assert.Equal(t, fasthttp.StatusUpgradeRequired, status)
	assert.Equal(t, float64(426), body["code"])
}

func TestInfoAndHealth(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, keyQuery(g1))
	readPush(t, conn)

	status, info := h.do(t, "GET", InfoPath, "")
	assert.Equal(t, 200, status)
	assert.Equal(t, float64(1), info["clients"])
	assert.Equal(t, feed.RemainPath, info["endpoint"])

	status, health := h.do(t, "GET", HealthPath, "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["bridge"])
}
