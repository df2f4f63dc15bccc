package service

import (
	"errors"
	"fmt"
)

// ErrValidation indicates a malformed request. It is returned before any row
// is written.
var ErrValidation = errors.New("validation error")

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
