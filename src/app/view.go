package app

import (
	"maps"

	"github.com/orchestra-mcp/railbook/src/booking"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/orchestra-mcp/railbook/src/viewport"
)

// View is a copy of everything a frame needs. Nothing in it aliases
// controller state.
type View struct {
	Screen    Screen
	Toast     string
	Loading   bool
	SigningIn bool

	SignedIn   bool
	Credential types.Credential
	Profile    *types.UserInfo
	LoginNext  string

	Query   types.SearchQuery
	Rows    []types.Train
	Window  viewport.Window
	Total   int
	Scroll  float64
	Layout  viewport.Config
	Page    int
	HasPrev bool
	HasNext bool

	Booking *BookingView
	Pay     *PayView
	Verify  VerifyView

	// Desired are the channels being served, LiveOpen how many of them
	// are connected.
	Desired  []types.SubscriptionKey
	LiveOpen int
}

// BookingView is the open booking.
type BookingView struct {
	Train      types.Train
	TravelDate string
	State      booking.State
	Step       booking.Step
	Drafts     []booking.Draft
	Errors     map[int]booking.FieldErrors
	Fare       *types.TrainDetail
	SeatMaps   [][]booking.Seat
	Saved      []types.SavedPassenger
	Estimate   float64
	Submitting bool
	Err        string
}

// PayView is the attached order.
type PayView struct {
	OrderID string
	State   booking.State
	Created *types.CreatedOrder
	Order   *types.OrderInfo
	Seats   []types.OrderSeat
	Result  *types.PayResult
	Paying  bool
	Polling bool
}

// VerifyView is the identity verification form state.
type VerifyView struct {
	Errors     map[booking.Field]error
	Submitting bool
	Next       string
}

func bookingView(f *booking.Flow, errMsg string) *BookingView {
	s := f.Session()
	if s == nil || !f.BookingOpen() {
		return nil
	}
	v := &BookingView{
		Train:      s.Train,
		TravelDate: s.TravelDate,
		State:      f.State(),
		Step:       s.Step,
		Drafts:     append([]booking.Draft(nil), s.Drafts...),
		Errors:     make(map[int]booking.FieldErrors, len(s.Errors)),
		Saved:      append([]types.SavedPassenger(nil), s.SavedPassengers()...),
		Estimate:   s.Estimate(),
		Submitting: s.Submitting,
		Err:        errMsg,
	}
	for i, fe := range s.Errors {
		v.Errors[i] = maps.Clone(fe)
	}
	if s.Fare != nil {
		fare := *s.Fare
		fare.SeatTypes = append([]types.SeatFare(nil), s.Fare.SeatTypes...)
		v.Fare = &fare
	}
	for i := range s.Drafts {
		v.SeatMaps = append(v.SeatMaps, s.SeatMap(i))
	}
	return v
}

func (p *payState) view(f *booking.Flow, polling bool) *PayView {
	if p.orderID == "" {
		return nil
	}
	v := &PayView{
		OrderID: p.orderID,
		State:   f.State(),
		Seats:   append([]types.OrderSeat(nil), p.seats...),
		Paying:  p.paying,
		Polling: polling,
	}
	if p.created != nil {
		c := *p.created
		c.Seats = append([]types.OrderSeat(nil), p.created.Seats...)
		v.Created = &c
	}
	if p.order != nil {
		o := *p.order
		v.Order = &o
	}
	if p.result != nil {
		r := *p.result
		v.Result = &r
	}
	return v
}
