// Package api is the client for the reservation backend's REST gateway.
package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// DefaultTimeout bounds a request when the caller's context has no
// deadline.
const DefaultTimeout = 10 * time.Second

// DefaultPayChannel is used when PayOrder is given no channel.
const DefaultPayChannel = "ALIPAY"

// DefaultSearchLimit is the page size used when a query sets none.
const DefaultSearchLimit = 20

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Token returns the bearer token to send, or "" for none.
	Token  func() string
	Logger zerolog.Logger
	// Dial overrides how connections are opened.
	Dial fasthttp.DialFunc
}

// Client talks to the gateway. It is safe for concurrent use.
type Client struct {
	base    string
	timeout time.Duration
	token   func() string
	http    *fasthttp.Client
	logger  zerolog.Logger
}

// New creates a client for the gateway at opts.BaseURL.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Token == nil {
		opts.Token = func() string { return "" }
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		token:   opts.Token,
		http: &fasthttp.Client{
			Name:                "railbook",
			Dial:                opts.Dial,
			MaxIdleConnDuration: 30 * time.Second,
		},
		logger: opts.Logger.With().Str("component", "api").Logger(),
	}
}

// envelope is the status block most gateway responses carry.
type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: path, Err: err}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := c.base + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: path, Err: err}
		}
		req.SetBody(b)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	start := time.Now()
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return &TransportError{Op: path, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: path, Err: err}
	}

	status := resp.StatusCode()
	raw := resp.Body()
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("took", time.Since(start)).
		Msg("request")

	if status == fasthttp.StatusUnauthorized {
		return ErrAuthExpired
	}

	var env envelope
	isJSON := strings.Contains(string(resp.Header.ContentType()), "application/json")
	if isJSON {
		_ = json.Unmarshal(raw, &env)
	}
	if status < 200 || status > 299 {
		msg := env.Msg
		if !isJSON {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = "请求失败"
		}
		return &RejectionError{Status: status, Code: env.Code, Msg: msg}
	}
	if env.Code != 0 && env.Code != fasthttp.StatusOK {
		return &RejectionError{Status: status, Code: env.Code, Msg: env.Msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: path, Err: err}
	}
	return nil
}

// Search runs a train search and returns one page.
func (c *Client) Search(ctx context.Context, q types.SearchQuery) (types.SearchPage, error) {
	v := url.Values{}
	v.Set("departure_station", q.DepartureStation)
	v.Set("arrival_station", q.ArrivalStation)
	v.Set("travel_date", q.TravelDate)
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	v.Set("limit", strconv.Itoa(limit))
	setIf(v, "train_type", q.TrainType)
	setIf(v, "seat_type", q.SeatType)
	setIf(v, "depart_time_start", q.DepartTimeStart)
	setIf(v, "depart_time_end", q.DepartTimeEnd)
	if q.HasTicket {
		v.Set("has_ticket", "true")
	}
	setIf(v, "sort", q.Sort)
	if strings.EqualFold(q.Direction, "desc") {
		v.Set("direction", "desc")
	}
	setIf(v, "cursor", q.Cursor)

	var page types.SearchPage
	err := c.do(ctx, fasthttp.MethodGet, "/api/v1/train/search", v, nil, &page)
	return page, err
}

// TrainDetail loads the fares of a train between two stations.
func (c *Client) TrainDetail(ctx context.Context, trainID, from, to string) (types.TrainDetail, error) {
	v := url.Values{}
	v.Set("train_id", trainID)
	v.Set("departure_station", from)
	v.Set("arrival_station", to)
	var d types.TrainDetail
	err := c.do(ctx, fasthttp.MethodGet, "/api/v1/train/detail", v, nil, &d)
	return d, err
}

// LoginResult is a successful sign-in.
type LoginResult struct {
	Credential types.Credential
	User       types.UserInfo
}

// Login signs in with a phone number and password.
func (c *Client) Login(ctx context.Context, phone, password string) (LoginResult, error) {
	var resp struct {
		UserID   string         `json:"user_id"`
		Token    string         `json:"token"`
		UserInfo types.UserInfo `json:"user_info"`
	}
	body := map[string]string{"phone": phone, "password": password}
	if err := c.do(ctx, fasthttp.MethodPost, "/api/v1/user/login", nil, body, &resp); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Credential: types.Credential{Token: resp.Token, UserID: resp.UserID, Phone: phone},
		User:       resp.UserInfo,
	}, nil
}

// Profile loads the signed-in user's profile.
func (c *Client) Profile(ctx context.Context) (types.UserInfo, error) {
	var resp struct {
		UserInfo types.UserInfo `json:"user_info"`
	}
	err := c.do(ctx, fasthttp.MethodGet, "/api/v1/user/profile", nil, nil, &resp)
	return resp.UserInfo, err
}

// VerifyRealName submits identity details for verification.
func (c *Client) VerifyRealName(ctx context.Context, realName, idCard, phone string) error {
	body := map[string]string{"real_name": realName, "id_card": idCard, "phone": phone}
	return c.do(ctx, fasthttp.MethodPost, "/api/v1/user/verify_realname", nil, body, nil)
}

// Passengers lists the user's saved passengers.
func (c *Client) Passengers(ctx context.Context) ([]types.SavedPassenger, error) {
	var resp struct {
		Passengers []types.SavedPassenger `json:"passengers"`
	}
	err := c.do(ctx, fasthttp.MethodGet, "/api/v1/user/passengers", nil, nil, &resp)
	return resp.Passengers, err
}

// CreateOrder books seats and returns the unpaid order.
func (c *Client) CreateOrder(ctx context.Context, req types.CreateOrderRequest) (types.CreatedOrder, error) {
	var o types.CreatedOrder
	err := c.do(ctx, fasthttp.MethodPost, "/api/v1/order/create", nil, req, &o)
	return o, err
}

// PayOrder starts payment of an order on channel.
func (c *Client) PayOrder(ctx context.Context, orderID, channel string) (types.PayResult, error) {
	if channel == "" {
		channel = DefaultPayChannel
	}
	var r types.PayResult
	body := map[string]string{"order_id": orderID, "pay_channel": channel}
	err := c.do(ctx, fasthttp.MethodPost, "/api/v1/order/pay", nil, body, &r)
	return r, err
}

// MockNotify simulates the payment provider confirming payNo.
func (c *Client) MockNotify(ctx context.Context, orderID, payNo string) error {
	body := map[string]string{"order_id": orderID, "pay_no": payNo, "third_party_status": "SUCCESS"}
	return c.do(ctx, fasthttp.MethodPost, "/api/v1/pay/mock_notify", nil, body, nil)
}

// OrderInfo loads an order and its seats.
func (c *Client) OrderInfo(ctx context.Context, orderID string) (types.OrderDetail, error) {
	v := url.Values{}
	v.Set("order_id", orderID)
	var d types.OrderDetail
	err := c.do(ctx, fasthttp.MethodGet, "/api/v1/order/info", v, nil, &d)
	return d, err
}

// CancelOrder cancels an unpaid order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, fasthttp.MethodPost, "/api/v1/order/cancel", nil, map[string]string{"order_id": orderID}, nil)
}

// RefundOrder refunds an issued order.
func (c *Client) RefundOrder(ctx context.Context, orderID, reason string) (types.RefundResult, error) {
	var r types.RefundResult
	body := map[string]string{"order_id": orderID, "reason": reason}
	err := c.do(ctx, fasthttp.MethodPost, "/api/v1/order/refund", nil, body, &r)
	return r, err
}

// ChangeOrder moves an order to another train.
func (c *Client) ChangeOrder(ctx context.Context, req types.ChangeRequest) (types.ChangeResult, error) {
	var r types.ChangeResult
	err := c.do(ctx, fasthttp.MethodPost, "/api/v1/order/change", nil, req, &r)
	return r, err
}

func setIf(v url.Values, key, val string) {
	if val = strings.TrimSpace(val); val != "" {
		v.Set(key, val)
	}
}
