package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/railbook/src/types"
)

// RemainPath is the live remaining-seat endpoint.
const RemainPath = "/api/v1/ticket/ws"

// WSDialer dials live channels over WebSocket.
type WSDialer struct {
	base   *url.URL
	token  func() string
	dialer *websocket.Dialer
}

// NewWSDialer builds a dialer for base ("ws://host:port" or an http(s)
// URL, which is mapped to ws(s)). token supplies the bearer credential
// at dial time and may be nil.
func NewWSDialer(base string, token func() string, handshakeTimeout time.Duration) (*WSDialer, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported feed url scheme %q", u.Scheme)
	}
	return &WSDialer{
		base:  u,
		token: token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}, nil
}

// URL returns the channel URL for key.
func (d *WSDialer) URL(key types.SubscriptionKey) string {
	u := *d.base
	u.Path += RemainPath
	q := url.Values{}
	q.Set("train_id", key.TrainID)
	q.Set("seat_type", key.SeatClass)
	q.Set("travel_date", key.TravelDate)
	u.RawQuery = q.Encode()
	return u.String()
}

// Dial opens the channel for key.
func (d *WSDialer) Dial(ctx context.Context, key types.SubscriptionKey) (types.Conn, error) {
	header := http.Header{}
	if d.token != nil {
		if tok := d.token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}
	conn, resp, err := d.dialer.DialContext(ctx, d.URL(key), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", key, err)
	}
	return conn, nil
}
