package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient marks failures worth retrying: network errors, 5xx and 429.
	ErrTransient = errors.New("gateway temporarily unavailable")
	// ErrRejected marks requests the exchange refused outright.
	ErrRejected = errors.New("gateway rejected request")
)

// Error is returned for every failed exchange call
type Error struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s failed: network error: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s failed: server error %d: %s", e.Operation, e.StatusCode, e.Message)
}

// Unwrap exposes both the class sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	class := ErrRejected
	if e.Transient() {
		class = ErrTransient
	}
	if e.Err != nil {
		return []error{class, e.Err}
	}
	return []error{class}
}

func (e *Error) Transient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}
