package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrChallengeRequired marks a soft block: the anti-automation layer
	// wants a fresh challenge token before it will serve this request again.
	ErrChallengeRequired = errors.New("challenge required")

	// ErrAuthRejected marks a missing or stale CSRF token on a write-shaped
	// endpoint. Recovered the same way as a soft block, counted separately.
	ErrAuthRejected = errors.New("auth rejected")
)

// TransientError wraps a network-level failure worth retrying without a
// session refresh.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried locally.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
