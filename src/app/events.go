package app

import (
	"github.com/orchestra-mcp/railbook/src/api"
	"github.com/orchestra-mcp/railbook/src/feed"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/orchestra-mcp/railbook/src/viewport"
)

// Event is anything posted to the controller's queue.
type Event interface{ event() }

// Search runs a new search from the first page.
type Search struct{ Query types.SearchQuery }

// NextPage and PrevPage walk the result pages.
type (
	NextPage struct{}
	PrevPage struct{}
)

// Scroll moves the result list by whole rows.
type Scroll struct{ Rows int }

// Measured reports the painted viewport and row heights.
type Measured struct{ viewport.Measurement }

// OpenBooking starts booking a train from the result list.
type OpenBooking struct{ TrainID string }

// Booking edits. Index is the passenger row.
type (
	AddPassenger    struct{}
	RemovePassenger struct{ Index int }
	ToggleSelf      struct{ Index int }
	LinkPassenger   struct {
		Index       int
		PassengerID uint64
	}
	EditName struct {
		Index int
		Value string
	}
	EditIDNumber struct {
		Index int
		Value string
	}
	ChooseSeatClass struct {
		Index int
		Class string
	}
	PickSeat struct {
		Index int
		Seat  string
	}
	BookingNext   struct{}
	BookingBack   struct{}
	SubmitBooking struct{}
	CancelBooking struct{}
)

// Payment actions on the attached order.
type (
	PayOrder       struct{ Channel string }
	MockPay        struct{}
	RefreshPayment struct{}
	CancelOrder    struct{}
	RefundOrder    struct{ Reason string }
	// ChangeOrder moves the order to a train from the result list.
	ChangeOrder    struct{ TrainID string }
	LeavePayment   struct{}
	AttachOrder    struct{ OrderID string }
)

// Account actions.
type (
	Login struct {
		Phone    string
		Password string
	}
	Logout         struct{}
	VerifyRealName struct {
		Name     string
		IDNumber string
		Phone    string
	}
	// Navigate switches to the result list, login or verification.
	Navigate struct{ To Screen }
)

// FeedUpdated carries an accepted live update into the loop.
type FeedUpdated struct{ feed.Update }

type runFunc func()

type toastExpired struct{ seq int }

type searchLoaded struct {
	seq  int
	page types.SearchPage
	err  error
}

type detailLoaded struct {
	trainID string
	detail  types.TrainDetail
	err     error
}

type profileLoaded struct {
	user types.UserInfo
	err  error
}

type passengersLoaded struct {
	saved []types.SavedPassenger
	err   error
}

type loginDone struct {
	res api.LoginResult
	err error
}

type verifyDone struct{ err error }

type orderCreated struct {
	order types.CreatedOrder
	err   error
}

type payDone struct {
	orderID string
	res     types.PayResult
	err     error
}

type orderStatus struct {
	orderID string
	detail  types.OrderDetail
	manual  bool
	err     error
}

// actionDone reports a fire-and-forget mutation on the attached order.
type actionDone struct {
	orderID string
	ok      string
	failed  string
	err     error
}

func (Search) event()          {}
func (NextPage) event()        {}
func (PrevPage) event()        {}
func (Scroll) event()          {}
func (Measured) event()        {}
func (OpenBooking) event()     {}
func (AddPassenger) event()    {}
func (RemovePassenger) event() {}
func (ToggleSelf) event()      {}
func (LinkPassenger) event()   {}
func (EditName) event()        {}
func (EditIDNumber) event()    {}
func (ChooseSeatClass) event() {}
func (PickSeat) event()        {}
func (BookingNext) event()     {}
func (BookingBack) event()     {}
func (SubmitBooking) event()   {}
func (CancelBooking) event()   {}
func (PayOrder) event()        {}
func (MockPay) event()         {}
func (RefreshPayment) event()  {}
func (CancelOrder) event()     {}
func (RefundOrder) event()     {}
func (ChangeOrder) event()     {}
func (LeavePayment) event()    {}
func (AttachOrder) event()     {}
func (Login) event()           {}
func (Logout) event()          {}
func (VerifyRealName) event()  {}
func (Navigate) event()        {}
func (FeedUpdated) event()     {}

func (runFunc) event()          {}
func (toastExpired) event()     {}
func (searchLoaded) event()     {}
func (detailLoaded) event()     {}
func (profileLoaded) event()    {}
func (passengersLoaded) event() {}
func (loginDone) event()        {}
func (verifyDone) event()       {}
func (orderCreated) event()     {}
func (payDone) event()          {}
func (orderStatus) event()      {}
func (actionDone) event()       {}
