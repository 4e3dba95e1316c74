package types

import (
	"strings"
	"time"
)

// Seat classes accepted by the reservation backend.
var SeatClasses = []string{"硬座", "二等座", "一等座", "商务座", "硬卧", "软卧"}

// ValidSeatClass reports whether s is a known seat class.
func ValidSeatClass(s string) bool {
	for _, c := range SeatClasses {
		if c == s {
			return true
		}
	}
	return false
}

// Order statuses after which nothing changes without user action.
const (
	StatusIssued    = "ISSUED"
	StatusCancelled = "CANCELLED"
	StatusRefunded  = "REFUNDED"
	StatusChanged   = "CHANGED"
)

// NormalizeStatus trims and upper-cases an order status.
func NormalizeStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsTerminalStatus reports whether an order in status s is settled.
func IsTerminalStatus(s string) bool {
	switch NormalizeStatus(s) {
	case StatusIssued, StatusCancelled, StatusRefunded, StatusChanged:
		return true
	}
	return false
}

// Identity verification state reported by the profile endpoint.
const RealNameVerified = "VERIFIED"

// Train is one row of a search result.
type Train struct {
	TrainID            string    `json:"train_id"`
	TrainType          string    `json:"train_type"`
	DepartureStation   string    `json:"departure_station"`
	ArrivalStation     string    `json:"arrival_station"`
	DepartureTime      time.Time `json:"departure_time"`
	ArrivalTime        time.Time `json:"arrival_time"`
	RuntimeMinutes     uint32    `json:"runtime_minutes"`
	SeatType           string    `json:"seat_type"`
	SeatPrice          float64   `json:"seat_price"`
	RemainingSeatCount int64     `json:"remaining_seat_count"`
}

// SearchQuery describes a train search.
type SearchQuery struct {
	DepartureStation string
	ArrivalStation   string
	TravelDate       string
	TrainType        string
	SeatType         string
	DepartTimeStart  string
	DepartTimeEnd    string
	HasTicket        bool
	Sort             string
	Direction        string
	Cursor           string
	Limit            int
}

// SearchPage is one page of search results.
type SearchPage struct {
	Items      []Train `json:"items"`
	PrevCursor string  `json:"prev_cursor"`
	NextCursor string  `json:"next_cursor"`
}

// SeatFare is the remaining count and lowest price of one seat class.
type SeatFare struct {
	SeatType  string  `json:"seat_type"`
	Remaining int64   `json:"remaining"`
	MinPrice  float64 `json:"min_price"`
}

// TrainDetail is the fare detail shown while booking.
type TrainDetail struct {
	TrainID           string     `json:"train_id"`
	TrainCode         string     `json:"train_code"`
	TrainType         string     `json:"train_type"`
	DepartureStation  string     `json:"departure_station"`
	ArrivalStation    string     `json:"arrival_station"`
	DepartureTimeUnix int64      `json:"departure_time_unix"`
	ArrivalTimeUnix   int64      `json:"arrival_time_unix"`
	RuntimeMinutes    int32      `json:"runtime_minutes"`
	SeatTypes         []SeatFare `json:"seat_types"`
}

// UserInfo is the signed-in user's profile.
type UserInfo struct {
	UserID           string `json:"user_id"`
	RealName         string `json:"real_name"`
	IDCard           string `json:"id_card,omitempty"`
	Phone            string `json:"phone"`
	RealNameVerified string `json:"real_name_verified"`
}

// Verified reports whether the identity may book for itself.
func (u UserInfo) Verified() bool {
	return u.RealNameVerified == RealNameVerified && u.RealName != ""
}

// SavedPassenger is a frequently used passenger stored server side.
type SavedPassenger struct {
	PassengerID uint64 `json:"passenger_id"`
	RealName    string `json:"real_name"`
	IDCard      string `json:"id_card"`
}

// OrderPassenger is one passenger line of an order request.
type OrderPassenger struct {
	PassengerID uint64 `json:"passenger_id"`
	UseSelf     bool   `json:"use_self"`
	RealName    string `json:"real_name"`
	IDCard      string `json:"id_card"`
	SeatType    string `json:"seat_type"`
}

// CreateOrderRequest submits a booking.
type CreateOrderRequest struct {
	TrainID          string           `json:"train_id"`
	DepartureStation string           `json:"departure_station"`
	ArrivalStation   string           `json:"arrival_station"`
	Passengers       []OrderPassenger `json:"passengers"`
}

// OrderSeat is a seat locked or issued for an order.
type OrderSeat struct {
	SeatID      string  `json:"seat_id"`
	SeatType    string  `json:"seat_type"`
	CarriageNum string  `json:"carriage_num"`
	SeatNum     string  `json:"seat_num"`
	SeatPrice   float64 `json:"seat_price"`
}

// CreatedOrder is the response to a successful booking.
type CreatedOrder struct {
	OrderID         string      `json:"order_id"`
	PayDeadlineUnix int64       `json:"pay_deadline_unix"`
	Seats           []OrderSeat `json:"seats"`
}

// PayResult is the response to a payment request.
type PayResult struct {
	OrderStatus string `json:"order_status"`
	PayStatus   string `json:"pay_status"`
	PayNo       string `json:"pay_no"`
	PayURL      string `json:"pay_url,omitempty"`
}

// OrderInfo describes an order.
type OrderInfo struct {
	OrderID          string  `json:"order_id"`
	UserID           string  `json:"user_id"`
	TrainID          string  `json:"train_id"`
	DepartureStation string  `json:"departure_station"`
	ArrivalStation   string  `json:"arrival_station"`
	TotalAmount      float64 `json:"total_amount"`
	OrderStatus      string  `json:"order_status"`
	PayDeadlineUnix  int64   `json:"pay_deadline_unix"`
	PayTimeUnix      *int64  `json:"pay_time_unix"`
	PayChannel       *string `json:"pay_channel"`
	PayNo            *string `json:"pay_no"`
	CreatedAtUnix    int64   `json:"created_at_unix"`
}

// OrderDetail is an order with its seats.
type OrderDetail struct {
	Order *OrderInfo  `json:"order"`
	Seats []OrderSeat `json:"seats"`
}

// Status returns the order status, or "" when the order is missing.
func (d OrderDetail) Status() string {
	if d.Order == nil {
		return ""
	}
	return d.Order.OrderStatus
}

// RefundResult is the response to a refund request.
type RefundResult struct {
	RefundAmount float64 `json:"refund_amount"`
	RefundStatus string  `json:"refund_status"`
	OrderStatus  string  `json:"order_status"`
}

// ChangeRequest moves an order to another train.
type ChangeRequest struct {
	OrderID             string `json:"order_id"`
	NewTrainID          string `json:"new_train_id"`
	NewDepartureStation string `json:"new_departure_station"`
	NewArrivalStation   string `json:"new_arrival_station"`
}

// ChangeResult is the response to a change request.
type ChangeResult struct {
	OldOrderStatus   string      `json:"old_order_status"`
	NewOrderID       string      `json:"new_order_id"`
	NewTotalAmount   float64     `json:"new_total_amount"`
	RefundDiffAmount float64     `json:"refund_diff_amount"`
	Seats            []OrderSeat `json:"seats"`
}

// Credential is the persisted sign-in state.
type Credential struct {
	Token  string `json:"token" yaml:"token"`
	UserID string `json:"user_id" yaml:"user_id"`
	Phone  string `json:"phone,omitempty" yaml:"phone,omitempty"`
}
