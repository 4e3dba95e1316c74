package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type captured struct {
	method string
	path   string
	query  map[string]string
	auth   string
	body   map[string]any
}

func newTestClient(t *testing.T, token string, h func(ctx *fasthttp.RequestCtx)) (*Client, *captured) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	seen := &captured{}
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		seen.method = string(ctx.Method())
		seen.path = string(ctx.Path())
		seen.auth = string(ctx.Request.Header.Peek("Authorization"))
		seen.query = map[string]string{}
		ctx.QueryArgs().VisitAll(func(k, v []byte) { seen.query[string(k)] = string(v) })
		seen.body = nil
		if b := ctx.PostBody(); len(b) > 0 {
			_ = json.Unmarshal(b, &seen.body)
		}
		h(ctx)
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	c := New(Options{
		BaseURL: "http://gateway.test/",
		Token:   func() string { return token },
		Logger:  zerolog.Nop(),
		Dial:    func(string) (net.Conn, error) { return ln.Dial() },
	})
	return c, seen
}

func reply(ctx *fasthttp.RequestCtx, status int, body string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(body)
}

func TestSearchSendsQueryAndDecodesPage(t *testing.T) {
	c, seen := newTestClient(t, "tok", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 200, `{"items":[{"train_id":"G1","remaining_seat_count":5}],"next_cursor":"c2"}`)
	})

	page, err := c.Search(context.Background(), types.SearchQuery{
		DepartureStation: "北京南",
		ArrivalStation:   "上海虹桥",
		TravelDate:       "2026-10-20",
		SeatType:         "二等座",
		HasTicket:        true,
		Direction:        "DESC",
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "G1", page.Items[0].TrainID)
	assert.Equal(t, int64(5), page.Items[0].RemainingSeatCount)
	assert.Equal(t, "c2", page.NextCursor)

	assert.Equal(t, "GET", seen.method)
	assert.Equal(t, "/api/v1/train/search", seen.path)
	assert.Equal(t, "Bearer tok", seen.auth)
	assert.Equal(t, "20", seen.query["limit"])
	assert.Equal(t, "true", seen.query["has_ticket"])
	assert.Equal(t, "desc", seen.query["direction"])
	assert.Equal(t, "二等座", seen.query["seat_type"])
	assert.NotContains(t, seen.query, "cursor")
	assert.NotContains(t, seen.query, "train_type")
}

func TestNoTokenNoAuthorizationHeader(t *testing.T) {
	c, seen := newTestClient(t, "", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 200, `{"items":[]}`)
	})
	_, err := c.Search(context.Background(), types.SearchQuery{})
	require.NoError(t, err)
	assert.Empty(t, seen.auth)
}

func TestUnauthorizedIsAuthExpired(t *testing.T) {
	c, _ := newTestClient(t, "stale", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 401, `{"code":401,"msg":"token expired"}`)
	})
	_, err := c.Profile(context.Background())
	assert.ErrorIs(t, err, ErrAuthExpired)
	assert.Equal(t, "未登录或Token失效", Message(err, "x"))
}

func TestNon2xxIsRejection(t *testing.T) {
	c, _ := newTestClient(t, "tok", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 409, `{"code":409,"msg":"余票不足"}`)
	})
	_, err := c.CreateOrder(context.Background(), types.CreateOrderRequest{TrainID: "G1"})
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, 409, rej.Status)
	assert.Equal(t, "余票不足", rej.Msg)
	assert.Equal(t, "余票不足", Message(err, "下单失败"))
}

func TestPlainTextErrorBody(t *testing.T) {
	c, _ := newTestClient(t, "tok", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(502)
		ctx.SetContentType("text/plain")
		ctx.SetBodyString("bad gateway\n")
	})
	err := c.CancelOrder(context.Background(), "O1")
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "bad gateway", rej.Msg)
}

func TestBodyCodeRejects(t *testing.T) {
	c, _ := newTestClient(t, "", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 200, `{"code":1001,"msg":"密码错误"}`)
	})
	_, err := c.Login(context.Background(), "13800000000", "bad")
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, 1001, rej.Code)
	assert.Equal(t, "密码错误", rej.Msg)
}

func TestLoginBuildsCredential(t *testing.T) {
	c, seen := newTestClient(t, "", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 200, `{"code":200,"msg":"ok","user_id":"u1","token":"jwt","user_info":{"user_id":"u1","real_name":"张三","real_name_verified":"VERIFIED"}}`)
	})
	res, err := c.Login(context.Background(), "13800000000", "pw")
	require.NoError(t, err)
	assert.Equal(t, types.Credential{Token: "jwt", UserID: "u1", Phone: "13800000000"}, res.Credential)
	assert.True(t, res.User.Verified())
	assert.Equal(t, "POST", seen.method)
	assert.Equal(t, map[string]any{"phone": "13800000000", "password": "pw"}, seen.body)
}

func TestPayOrderDefaultsChannel(t *testing.T) {
	c, seen := newTestClient(t, "tok", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 200, `{"order_status":"PENDING_PAY","pay_status":"PAYING","pay_no":"P1"}`)
	})
	r, err := c.PayOrder(context.Background(), "O1", "")
	require.NoError(t, err)
	assert.Equal(t, "P1", r.PayNo)
	assert.Equal(t, "ALIPAY", seen.body["pay_channel"])
}

func TestOrderInfoDecodesDetail(t *testing.T) {
	c, seen := newTestClient(t, "tok", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 200, `{"order":{"order_id":"O1","order_status":"ISSUED"},"seats":[{"seat_num":"05A"}]}`)
	})
	d, err := c.OrderInfo(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, "ISSUED", d.Status())
	assert.Equal(t, "05A", d.Seats[0].SeatNum)
	assert.Equal(t, "O1", seen.query["order_id"])
}

func TestMockNotifyBody(t *testing.T) {
	c, seen := newTestClient(t, "tok", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 200, `{"code":200,"msg":"ok"}`)
	})
	require.NoError(t, c.MockNotify(context.Background(), "O1", "P1"))
	assert.Equal(t, "/api/v1/pay/mock_notify", seen.path)
	assert.Equal(t, "SUCCESS", seen.body["third_party_status"])
}

func TestBadJSONIsTransportError(t *testing.T) {
	c, _ := newTestClient(t, "tok", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 200, `{"items":`)
	})
	_, err := c.Search(context.Background(), types.SearchQuery{})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "查询失败", Message(err, "查询失败"))
}

func TestCancelledContext(t *testing.T) {
	c, _ := newTestClient(t, "tok", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 200, `{}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Profile(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChangeOrderBodyAndResult(t *testing.T) {
	c, seen := newTestClient(t, "tok", func(ctx *fasthttp.RequestCtx) {
		reply(ctx, 200, `{"old_order_status":"CHANGED","new_order_id":"O2","new_total_amount":553.5,"refund_diff_amount":0}`)
	})
	r, err := c.ChangeOrder(context.Background(), types.ChangeRequest{
		OrderID:             "O1",
		NewTrainID:          "G2",
		NewDepartureStation: "北京南",
		NewArrivalStation:   "上海虹桥",
	})
	require.NoError(t, err)
	assert.Equal(t, "O2", r.NewOrderID)
	assert.Equal(t, types.StatusChanged, r.OldOrderStatus)
	assert.Equal(t, "POST", seen.method)
	assert.Equal(t, "/api/v1/order/change", seen.path)
	assert.Equal(t, "Bearer tok", seen.auth)
	assert.Equal(t, map[string]any{
		"order_id":              "O1",
		"new_train_id":          "G2",
		"new_departure_station": "北京南",
		"new_arrival_station":   "上海虹桥",
	}, seen.body)
}
