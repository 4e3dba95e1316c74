package booking

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/orchestra-mcp/railbook/src/types"
)

var (
	ErrNotVerified     = errors.New("identity is not verified")
	ErrNoDraft         = errors.New("no such passenger")
	ErrSeatUnavailable = errors.New("seat is not available")
)

// Step is the visible page of an open booking.
type Step int

const (
	StepPassengers Step = iota
	StepConfirm
)

// Draft is one passenger line being edited.
type Draft struct {
	PassengerID uint64 // linked saved passenger, 0 when typed in
	Name        string
	IDNumber    string
	SeatClass   string
	SeatPref    string
	Self        bool
}

// Linked reports whether the draft points at a saved passenger.
func (d Draft) Linked() bool { return d.PassengerID != 0 }

// Locked reports whether name and id number come from elsewhere.
func (d Draft) Locked() bool { return d.Self || d.Linked() }

// Session is an open booking for one train on one date.
type Session struct {
	Train      types.Train
	TravelDate string
	Step       Step
	Drafts     []Draft
	Errors     map[int]FieldErrors
	Fare       *types.TrainDetail
	Submitting bool

	profile types.UserInfo
	saved   []types.SavedPassenger
}

// NewSession opens a booking. When the profile is verified the first
// passenger starts as the account holder.
func NewSession(train types.Train, travelDate string, profile types.UserInfo) *Session {
	s := &Session{
		Train:      train,
		TravelDate: travelDate,
		Errors:     map[int]FieldErrors{},
		profile:    profile,
	}
	first := Draft{}
	if profile.Verified() {
		first = Draft{Self: true, Name: profile.RealName, IDNumber: profile.IDCard}
	}
	s.Drafts = []Draft{first}
	return s
}

// SetSavedPassengers replaces the list used to fill linked drafts.
func (s *Session) SetSavedPassengers(saved []types.SavedPassenger) {
	s.saved = append(s.saved[:0:0], saved...)
}

// SavedPassengers returns the saved passenger list.
func (s *Session) SavedPassengers() []types.SavedPassenger { return s.saved }

// AddDraft appends an empty passenger.
func (s *Session) AddDraft() {
	s.Drafts = append(s.Drafts, Draft{})
}

// RemoveDraft drops passenger i. The last passenger is replaced by an
// empty one rather than removed.
func (s *Session) RemoveDraft(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.Drafts = append(s.Drafts[:i], s.Drafts[i+1:]...)
	if len(s.Drafts) == 0 {
		s.Drafts = []Draft{{}}
	}
	s.Errors = map[int]FieldErrors{}
	return nil
}

// ToggleSelf flips the account-holder flag of passenger i. Turning it
// on copies the verified identity; turning it off clears name and id.
func (s *Session) ToggleSelf(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	if !s.profile.Verified() {
		return ErrNotVerified
	}
	d := &s.Drafts[i]
	if d.Self {
		d.Self = false
		d.Name = ""
		d.IDNumber = ""
		return nil
	}
	d.Self = true
	d.PassengerID = 0
	d.Name = s.profile.RealName
	d.IDNumber = s.profile.IDCard
	return nil
}

// LinkPassenger points passenger i at a saved passenger. Id 0 unlinks
// and clears name and id.
func (s *Session) LinkPassenger(i int, passengerID uint64) error {
	if err := s.check(i); err != nil {
		return err
	}
	d := &s.Drafts[i]
	d.Self = false
	d.PassengerID = passengerID
	if passengerID == 0 {
		d.Name = ""
		d.IDNumber = ""
		return nil
	}
	for _, p := range s.saved {
		if p.PassengerID == passengerID {
			d.Name = p.RealName
			d.IDNumber = p.IDCard
			break
		}
	}
	return nil
}

// SetName edits the typed name, detaching the draft from any linked or
// self identity.
func (s *Session) SetName(i int, name string) error {
	if err := s.check(i); err != nil {
		return err
	}
	d := &s.Drafts[i]
	d.Name = name
	d.Self = false
	d.PassengerID = 0
	return nil
}

// SetIDNumber edits the typed id number like SetName.
func (s *Session) SetIDNumber(i int, id string) error {
	if err := s.check(i); err != nil {
		return err
	}
	d := &s.Drafts[i]
	d.IDNumber = id
	d.Self = false
	d.PassengerID = 0
	return nil
}

// SetSeatClass chooses the seat class of passenger i. A seat preference
// made for another class is dropped.
func (s *Session) SetSeatClass(i int, class string) error {
	if err := s.check(i); err != nil {
		return err
	}
	d := &s.Drafts[i]
	if d.SeatClass != class {
		d.SeatPref = ""
	}
	d.SeatClass = class
	return nil
}

// Seat is one cell of the seat map. Gap cells are the aisle.
type Seat struct {
	Label    string
	Gap      bool
	Enabled  bool
	Selected bool
}

const seatMapRows = 10

var seatMapCols = []string{"A", "B", "", "C", "D"}

// SeatMapColumns is the number of cells per seat map row.
const SeatMapColumns = 5

// SeatMap lays out the preference grid for passenger i. The n-th seat
// (counting non-gap cells from 1) is enabled only when n does not
// exceed the remaining count of the draft's class. Nil when the draft
// has no seat class.
func (s *Session) SeatMap(i int) []Seat {
	if s.check(i) != nil || s.Drafts[i].SeatClass == "" {
		return nil
	}
	d := s.Drafts[i]
	remaining := s.remainingFor(d.SeatClass)
	out := make([]Seat, 0, seatMapRows*len(seatMapCols))
	n := int64(0)
	for row := 1; row <= seatMapRows; row++ {
		for _, col := range seatMapCols {
			if col == "" {
				out = append(out, Seat{Gap: true})
				continue
			}
			n++
			label := fmt.Sprintf("%02d%s", row, col)
			out = append(out, Seat{
				Label:    label,
				Enabled:  remaining > 0 && n <= remaining,
				Selected: d.SeatPref == label,
			})
		}
	}
	return out
}

// PickSeat toggles seat as passenger i's preference. Another passenger
// of the same class holding the seat loses it.
func (s *Session) PickSeat(i int, seat string) error {
	if err := s.check(i); err != nil {
		return err
	}
	enabled := false
	for _, cell := range s.SeatMap(i) {
		if cell.Label == seat {
			enabled = cell.Enabled
			break
		}
	}
	d := &s.Drafts[i]
	if d.SeatPref == seat {
		d.SeatPref = ""
		return nil
	}
	if !enabled {
		return ErrSeatUnavailable
	}
	d.SeatPref = seat
	for j := range s.Drafts {
		o := &s.Drafts[j]
		if j != i && o.SeatClass == d.SeatClass && o.SeatPref == seat {
			o.SeatPref = ""
		}
	}
	return nil
}

// Validate checks every draft, records the failures in Errors and
// reports whether all passed.
func (s *Session) Validate() bool {
	errs := make(map[int]FieldErrors)
	for i, d := range s.Drafts {
		fe := FieldErrors{}
		if !d.Locked() {
			if err := ValidateName(d.Name); err != nil {
				fe[FieldName] = err
			}
			if err := ValidateID(d.IDNumber); err != nil {
				fe[FieldID] = err
			}
		}
		if strings.TrimSpace(d.SeatClass) == "" {
			fe[FieldSeatClass] = ErrSeatClassRequired
		}
		if len(fe) > 0 {
			errs[i] = fe
		}
	}
	s.Errors = errs
	return len(errs) == 0
}

// Estimate sums each passenger's class minimum price, rounded to cents.
func (s *Session) Estimate() float64 {
	total := 0.0
	for _, d := range s.Drafts {
		if f, ok := s.fare(d.SeatClass); ok {
			total += f.MinPrice
		}
	}
	return math.Round(total*100) / 100
}

// SetFare installs fare detail. Drafts default to the first class with
// seats left (or the first class) when the first draft has none yet.
func (s *Session) SetFare(detail types.TrainDetail) {
	detail.SeatTypes = append([]types.SeatFare(nil), detail.SeatTypes...)
	s.Fare = &detail
	if len(detail.SeatTypes) == 0 || s.Drafts[0].SeatClass != "" {
		return
	}
	pick := detail.SeatTypes[0].SeatType
	for _, f := range detail.SeatTypes {
		if f.Remaining > 0 {
			pick = f.SeatType
			break
		}
	}
	for i := range s.Drafts {
		s.Drafts[i].SeatClass = pick
	}
}

// ApplyRemaining folds a live update into the fare detail. It reports
// whether anything changed.
func (s *Session) ApplyRemaining(key types.SubscriptionKey, remaining int64) bool {
	if s.Fare == nil || key.TrainID != s.Train.TrainID || key.TravelDate != s.TravelDate {
		return false
	}
	changed := false
	for i := range s.Fare.SeatTypes {
		f := &s.Fare.SeatTypes[i]
		if f.SeatType == key.SeatClass && f.Remaining != remaining {
			f.Remaining = remaining
			changed = true
		}
	}
	return changed
}

// Keys returns the live channels this booking needs: one per distinct
// seat class chosen by a passenger.
func (s *Session) Keys() []types.SubscriptionKey {
	seen := map[string]bool{}
	var keys []types.SubscriptionKey
	for _, d := range s.Drafts {
		if d.SeatClass == "" || seen[d.SeatClass] {
			continue
		}
		seen[d.SeatClass] = true
		keys = append(keys, types.Key(s.Train.TrainID, d.SeatClass, s.TravelDate))
	}
	return keys
}

// Request builds the order submission.
func (s *Session) Request() types.CreateOrderRequest {
	req := types.CreateOrderRequest{
		TrainID:          s.Train.TrainID,
		DepartureStation: s.Train.DepartureStation,
		ArrivalStation:   s.Train.ArrivalStation,
	}
	for _, d := range s.Drafts {
		req.Passengers = append(req.Passengers, types.OrderPassenger{
			PassengerID: d.PassengerID,
			UseSelf:     d.Self,
			RealName:    strings.TrimSpace(d.Name),
			IDCard:      NormalizeID(d.IDNumber),
			SeatType:    d.SeatClass,
		})
	}
	return req
}

func (s *Session) remainingFor(class string) int64 {
	if f, ok := s.fare(class); ok {
		return f.Remaining
	}
	return 0
}

func (s *Session) fare(class string) (types.SeatFare, bool) {
	if s.Fare == nil || class == "" {
		return types.SeatFare{}, false
	}
	for _, f := range s.Fare.SeatTypes {
		if f.SeatType == class {
			return f, true
		}
	}
	return types.SeatFare{}, false
}

func (s *Session) check(i int) error {
	if i < 0 || i >= len(s.Drafts) {
		return fmt.Errorf("%w: %d", ErrNoDraft, i)
	}
	return nil
}
