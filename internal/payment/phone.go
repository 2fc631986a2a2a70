// Package payment initiates M-Pesa STK push payments and reconciles their
// asynchronous outcomes by polling the payment listing.
package payment

import (
	"errors"
	"regexp"
	"strings"
)

// ValidationError is a user-input failure; its message is safe to show.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// IsValidation reports whether err is a user-input validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var msisdnPattern = regexp.MustCompile(`^2547\d{8}$`)

const phoneFormatMsg = "Phone number must be in the format 07XXXXXXXX or 2547XXXXXXXX."

// NormalizePhone rewrites a Kenyan mobile number to the 2547XXXXXXXX wire
// format: a leading + is stripped and a trunk 0 becomes the 254 country
// code. Anything that does not normalize to 254, 7 and eight digits is
// rejected.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, "0") {
		s = "254" + s[1:]
	}
	if !msisdnPattern.MatchString(s) {
		return "", &ValidationError{Msg: phoneFormatMsg}
	}
	return s, nil
}
