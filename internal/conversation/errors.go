// ABOUTME: Retryable error type for store round trips made on behalf of the widget
// ABOUTME: Callers use errors.As / IsTransient to decide whether to offer a retry

package conversation

import (
	"errors"
	"fmt"
)

// TransientError wraps a failed create/persist/resume round trip. The
// operation can be retried; no local state was lost.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s failed (retryable): %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}
