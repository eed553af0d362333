package httpparse

import "fmt"

// StatusError is a malformed-wire-data error carrying the HTTP status the
// caller should respond with (400, 413, 417, ...), per spec.md's
// parse-error-to-status-code mapping.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpparse: %d %s", e.Status, e.Message)
}

func newStatusError(status int, format string, args ...any) *StatusError {
	return &StatusError{Status: status, Message: fmt.Sprintf(format, args...)}
}
