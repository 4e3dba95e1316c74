package types

import (
	"fmt"
	"strings"
	"time"
)

// SubscriptionKey identifies one live remaining-seat channel.
type SubscriptionKey struct {
	TrainID    string `json:"train_id"`
	SeatClass  string `json:"seat_type"`
	TravelDate string `json:"travel_date"`
}

// Key builds a SubscriptionKey from its parts.
func Key(trainID, seatClass, travelDate string) SubscriptionKey {
	return SubscriptionKey{TrainID: trainID, SeatClass: seatClass, TravelDate: travelDate}
}

// String renders the key as "train|class|date".
func (k SubscriptionKey) String() string {
	return k.TrainID + "|" + k.SeatClass + "|" + k.TravelDate
}

// Complete reports whether every component is set.
func (k SubscriptionKey) Complete() bool {
	return k.TrainID != "" && k.SeatClass != "" && k.TravelDate != ""
}

// ParseKey is the inverse of SubscriptionKey.String.
func ParseKey(s string) (SubscriptionKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return SubscriptionKey{}, fmt.Errorf("invalid subscription key %q", s)
	}
	return Key(parts[0], parts[1], parts[2]), nil
}

// RemainPush is a single frame on a live feed. Error frames carry Code
// and Msg and leave Remaining nil.
type RemainPush struct {
	TrainID    string     `json:"train_id,omitempty"`
	SeatType   string     `json:"seat_type,omitempty"`
	TravelDate string     `json:"travel_date,omitempty"`
	Remaining  *int64     `json:"remaining,omitempty"`
	Time       *time.Time `json:"time,omitempty"`
	Code       int32      `json:"code,omitempty"`
	Msg        string     `json:"msg,omitempty"`
}

// KeyOr returns the frame's key, filling missing parts from fallback.
func (p RemainPush) KeyOr(fallback SubscriptionKey) SubscriptionKey {
	k := Key(p.TrainID, p.SeatType, p.TravelDate)
	if k.TrainID == "" {
		k.TrainID = fallback.TrainID
	}
	if k.SeatClass == "" {
		k.SeatClass = fallback.SeatClass
	}
	if k.TravelDate == "" {
		k.TravelDate = fallback.TravelDate
	}
	return k
}

// ClientInfo holds metadata about a connected feed subscriber.
type ClientInfo struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`
	Channels    []string  `json:"channels"`
	UserAgent   string    `json:"user_agent,omitempty"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}
