package finance

import (
	"errors"
	"fmt"
)

// ErrNoData is returned when the upstream answered successfully but carried
// no result for the symbol.
var ErrNoData = errors.New("finance: no data returned")

// ValidationError reports a rejected argument. It is returned before any
// network call is made.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("finance: invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func invalid(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
