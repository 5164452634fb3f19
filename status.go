package arena

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrMissingRequired = Statusf(400, "Missing required fields")
	ErrNoUpdates       = Statusf(400, "No updates specified")

	ErrUnauthorized = Statusf(401, "You must be authenticated to do this")
	ErrForbidden    = Statusf(403, "You do not have permission to do this")
	ErrNotFound     = Statusf(404, "Not found")

	ErrAlreadyTerminal = Statusf(409, "Submission already reached a terminal state")
)

var _ error = &statusError{}

type statusError struct {
	Code int
	Text string

	WrappedError error
}

func (s *statusError) LogValue() slog.Value {
	if s == nil {
		return slog.Value{}
	}
	if s.WrappedError != nil {
		return slog.GroupValue(slog.String("text", s.Text), slog.Any("wrapped", s.WrappedError))
	}
	return slog.StringValue(s.Text)
}

func (s *statusError) Error() string {
	return s.Text
}

func (s *statusError) Unwrap() error {
	return s.WrappedError
}

func (s *statusError) Is(target error) bool {
	if err, ok := target.(*statusError); ok {
		return err.Text == s.Text
	}
	return false
}

func Statusf(status int, format string, args ...any) error {
	return &statusError{Code: status, Text: fmt.Sprintf(format, args...)}
}

// WrapError returns a 500 error with a user-facing text, keeping err for logging.
// If err already carries a status, that status is kept.
func WrapError(err error, text string) error {
	if err == nil {
		return nil
	}
	return &statusError{Code: ErrorCode(err), Text: text, WrappedError: err}
}

func ErrorCode(err error) int {
	if err == nil {
		return 200
	}
	var err2 *statusError
	if errors.As(err, &err2) {
		return err2.Code
	}
	return 500
}
