package sheet

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransport = errors.New("network error")
	ErrParse     = errors.New("parse error")
	ErrStatus    = errors.New("sheet reported an error status")
)

// FetchError describes a failed fetch. Its message always carries the
// HTTP status code when one is known, so callers can spot "429".
type FetchError struct {
	Kind       error
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := "could not retrieve task data from the sheet: " + e.Kind.Error()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRateLimited reports whether an error message signals HTTP 429.
func IsRateLimited(msg string) bool {
	return strings.Contains(msg, "429")
}
