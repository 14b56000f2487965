package core

import "errors"

// Failure is an operation error that carries the single human-readable
// message shown to the user. Err keeps the underlying cause.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Fail wraps err with a user-facing message.
func Fail(message string, err error) error {
	return &Failure{Message: message, Err: err}
}

// FailureMessage returns the user-facing message of err, or fallback when err carries none.
func FailureMessage(err error, fallback string) string {
	var f *Failure
	if errors.As(err, &f) && f.Message != "" {
		return f.Message
	}
	return fallback
}
