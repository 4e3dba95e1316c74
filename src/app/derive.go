package app

import (
	"errors"
	"strings"

	"github.com/orchestra-mcp/railbook/src/booking"
	"github.com/orchestra-mcp/railbook/src/types"
)

// Screen is the page being shown.
type Screen int

const (
	ScreenResults Screen = iota
	ScreenBooking
	ScreenPayment
	ScreenLogin
	ScreenVerify
)

var screenNames = [...]string{"results", "booking", "payment", "login", "verify"}

func (s Screen) String() string {
	if int(s) < len(screenNames) {
		return screenNames[s]
	}
	return "unknown"
}

// DesiredKeys returns the live channels wanted right now, highest
// priority first: the seat classes of an open booking, then, on the
// result list with a seat class filter, the visible trains. Duplicates
// are left for the multiplexer to drop.
func DesiredKeys(screen Screen, s *booking.Session, visible []string, seatType, travelDate string) []types.SubscriptionKey {
	var keys []types.SubscriptionKey
	if s != nil {
		keys = append(keys, s.Keys()...)
	}
	seatType = strings.TrimSpace(seatType)
	if screen == ScreenResults && seatType != "" {
		for _, id := range visible {
			keys = append(keys, types.Key(id, seatType, travelDate))
		}
	}
	return keys
}

var (
	ErrDepartureRequired = errors.New("departure station required")
	ErrArrivalRequired   = errors.New("arrival station required")
	ErrSameStation       = errors.New("departure and arrival are the same")
	ErrDateInPast        = errors.New("travel date is before today")
)

var searchMessages = map[error]string{
	ErrDepartureRequired: "请输入出发地",
	ErrArrivalRequired:   "请输入到达地",
	ErrSameStation:       "出发地与到达地不能相同",
	ErrDateInPast:        "出行日期不能早于今天",
}

// ValidateSearch checks a query before it is sent. today is YYYY-MM-DD.
func ValidateSearch(q types.SearchQuery, today string) error {
	dep := strings.TrimSpace(q.DepartureStation)
	arr := strings.TrimSpace(q.ArrivalStation)
	switch {
	case dep == "":
		return ErrDepartureRequired
	case arr == "":
		return ErrArrivalRequired
	case dep == arr:
		return ErrSameStation
	case strings.TrimSpace(q.TravelDate) < today:
		return ErrDateInPast
	}
	return nil
}

// Return targets carried through login and verification.
const (
	targetResults = "results"
	payPrefix     = "pay:"
	bookPrefix    = "booking:"
)

func payTarget(orderID string) string { return payPrefix + orderID }
