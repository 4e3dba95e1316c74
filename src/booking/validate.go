package booking

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field-level validation failures. They never leave the booking flow
// except as per-field errors.
var (
	ErrNameRequired      = errors.New("name is required")
	ErrNameTooLong       = errors.New("name is too long")
	ErrNameCharset       = errors.New("name must be 2-20 Chinese characters, optionally with ·")
	ErrIDRequired        = errors.New("id number is required")
	ErrIDFormat          = errors.New("id number must be 17 digits followed by a digit or X")
	ErrIDChecksum        = errors.New("id number check digit does not match")
	ErrSeatClassRequired = errors.New("seat class is required")
	ErrPhoneFormat       = errors.New("phone must be 11 digits starting with 1")
)

const maxNameRunes = 20

var (
	nameRe  = regexp.MustCompile(`^[\x{4e00}-\x{9fa5}·]{2,20}$`)
	idRe    = regexp.MustCompile(`^\d{17}[\dX]$`)
	phoneRe = regexp.MustCompile(`^1\d{10}$`)

	idWeights    = [17]int{7, 9, 10, 5, 8, 4, 2, 1, 6, 3, 7, 9, 10, 5, 8, 4, 2}
	idCheckCodes = [11]byte{'1', '0', 'X', '9', '8', '7', '6', '5', '4', '3', '2'}
)

// ValidateName checks a passenger's legal name.
func ValidateName(name string) error {
	s := strings.TrimSpace(name)
	switch {
	case s == "":
		return ErrNameRequired
	case utf8.RuneCountInString(s) > maxNameRunes:
		return ErrNameTooLong
	case !nameRe.MatchString(s):
		return ErrNameCharset
	}
	return nil
}

// NormalizeID trims an id number and upper-cases its check character.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// ValidateID checks the format and check digit of an 18-character
// resident id number.
func ValidateID(id string) error {
	s := NormalizeID(id)
	if s == "" {
		return ErrIDRequired
	}
	if !idRe.MatchString(s) {
		return ErrIDFormat
	}
	sum := 0
	for i, w := range idWeights {
		sum += int(s[i]-'0') * w
	}
	if idCheckCodes[sum%11] != s[17] {
		return ErrIDChecksum
	}
	return nil
}

// ValidatePhone checks a mainland mobile number.
func ValidatePhone(phone string) error {
	if !phoneRe.MatchString(strings.TrimSpace(phone)) {
		return ErrPhoneFormat
	}
	return nil
}

// FieldErrors maps a field to its validation failure.
type FieldErrors map[Field]error

// Field names a passenger draft input.
type Field string

const (
	FieldName      Field = "name"
	FieldID        Field = "id_number"
	FieldSeatClass Field = "seat_class"
	FieldPhone     Field = "phone"
	FieldPassenger Field = "passenger"
)
