package booking

import (
	"errors"
	"fmt"

	"github.com/orchestra-mcp/railbook/src/types"
)

var (
	ErrInvalidTransition = errors.New("invalid booking transition")
	ErrValidation        = errors.New("passenger details are invalid")
)

// State is the position of the booking and payment workflow.
type State int

const (
	Idle State = iota
	Passengers
	Confirm
	Submitting
	AwaitingPayment
	Paid
	Cancelled
	Refunded
	Changed
)

var stateNames = map[State]string{
	Idle:            "idle",
	Passengers:      "passengers",
	Confirm:         "confirm",
	Submitting:      "submitting",
	AwaitingPayment: "awaiting_payment",
	Paid:            "paid",
	Cancelled:       "cancelled",
	Refunded:        "refunded",
	Changed:         "changed",
}

func (s State) String() string { return stateNames[s] }

// Terminal reports whether s ends the workflow.
func (s State) Terminal() bool { return s >= Paid }

// Route is where the user is sent when the entry guard refuses.
type Route string

const (
	RouteLogin  Route = "login"
	RouteVerify Route = "verify"
)

// Redirect asks the caller to navigate away and come back to Next.
type Redirect struct {
	To   Route
	Next string
}

// Identity is what the entry guard needs to know about the user.
type Identity struct {
	Authenticated bool
	Profile       types.UserInfo
}

// BookingTarget is the return target used when booking is interrupted.
func BookingTarget(trainID string) string { return "booking:" + trainID }

// Flow drives one booking from passenger entry to a settled order.
// It is not safe for concurrent use; the owner serialises calls.
type Flow struct {
	state   State
	session *Session
	orderID string
	lastErr error
}

// NewFlow returns an idle flow.
func NewFlow() *Flow { return &Flow{} }

func (f *Flow) State() State      { return f.state }
func (f *Flow) Session() *Session { return f.session }
func (f *Flow) OrderID() string   { return f.orderID }
func (f *Flow) LastError() error  { return f.lastErr }
func (f *Flow) BookingOpen() bool { return f.state == Passengers || f.state == Confirm || f.state == Submitting }
func (f *Flow) PaymentOpen() bool { return f.state == AwaitingPayment || f.state.Terminal() }

// Open starts a booking for train. Without a valid credential or a
// verified identity it returns a redirect instead and stays put.
func (f *Flow) Open(train types.Train, travelDate string, who Identity) (*Redirect, error) {
	if f.state == Submitting {
		return nil, fmt.Errorf("%w: open from %s", ErrInvalidTransition, f.state)
	}
	next := BookingTarget(train.TrainID)
	if !who.Authenticated {
		return &Redirect{To: RouteLogin, Next: next}, nil
	}
	if !who.Profile.Verified() {
		return &Redirect{To: RouteVerify, Next: next}, nil
	}
	f.session = NewSession(train, travelDate, who.Profile)
	f.state = Passengers
	f.orderID = ""
	f.lastErr = nil
	return nil, nil
}

// Next validates the passengers and moves to confirmation.
func (f *Flow) Next() error {
	if f.state != Passengers {
		return fmt.Errorf("%w: next from %s", ErrInvalidTransition, f.state)
	}
	if !f.session.Validate() {
		return ErrValidation
	}
	f.session.Step = StepConfirm
	f.state = Confirm
	return nil
}

// Back returns from confirmation to passenger entry.
func (f *Flow) Back() error {
	if f.state != Confirm {
		return fmt.Errorf("%w: back from %s", ErrInvalidTransition, f.state)
	}
	f.session.Step = StepPassengers
	f.state = Passengers
	return nil
}

// BeginSubmit re-validates and returns the order to send. A failed
// re-validation goes back to passenger entry.
func (f *Flow) BeginSubmit() (types.CreateOrderRequest, error) {
	if f.state != Confirm {
		return types.CreateOrderRequest{}, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, f.state)
	}
	if !f.session.Validate() {
		f.session.Step = StepPassengers
		f.state = Passengers
		return types.CreateOrderRequest{}, ErrValidation
	}
	f.session.Submitting = true
	f.state = Submitting
	f.lastErr = nil
	return f.session.Request(), nil
}

// SubmitSucceeded discards the booking and waits for payment.
func (f *Flow) SubmitSucceeded(orderID string) error {
	if f.state != Submitting {
		return fmt.Errorf("%w: submit result in %s", ErrInvalidTransition, f.state)
	}
	f.session = nil
	f.orderID = orderID
	f.state = AwaitingPayment
	return nil
}

// SubmitFailed returns to confirmation keeping the drafts.
func (f *Flow) SubmitFailed(err error) error {
	if f.state != Submitting {
		return fmt.Errorf("%w: submit result in %s", ErrInvalidTransition, f.state)
	}
	f.session.Submitting = false
	f.lastErr = err
	f.state = Confirm
	return nil
}

// Cancel closes an open booking that is not being submitted.
func (f *Flow) Cancel() error {
	if f.state != Passengers && f.state != Confirm {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, f.state)
	}
	f.session = nil
	f.state = Idle
	return nil
}

// AttachPayment shows payment for an existing order.
func (f *Flow) AttachPayment(orderID string) error {
	if f.BookingOpen() {
		return fmt.Errorf("%w: attach payment from %s", ErrInvalidTransition, f.state)
	}
	f.orderID = orderID
	f.state = AwaitingPayment
	return nil
}

// ObserveStatus folds a fetched order status in. A terminal status
// settles the flow. It returns the resulting state.
func (f *Flow) ObserveStatus(orderID, status string) State {
	if f.state != AwaitingPayment || orderID != f.orderID {
		return f.state
	}
	switch types.NormalizeStatus(status) {
	case types.StatusIssued:
		f.state = Paid
	case types.StatusCancelled:
		f.state = Cancelled
	case types.StatusRefunded:
		f.state = Refunded
	case types.StatusChanged:
		f.state = Changed
	}
	return f.state
}

// LeavePayment closes the payment view.
func (f *Flow) LeavePayment() {
	if f.PaymentOpen() {
		f.state = Idle
		f.orderID = ""
	}
}
