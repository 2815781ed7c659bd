package engine

import (
	"errors"
	"fmt"
)

// Rejection is a client-facing refusal. The reason is presented to the
// caller verbatim, so every construction site phrases it as an
// actionable message (which bet, which number, which limit).
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Rejectf builds a Rejection with a formatted reason.
func Rejectf(format string, args ...any) error {
	return &Rejection{Reason: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is a client rejection (as opposed to
// an internal failure the caller should not see details of).
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// ErrInternal marks server-side failures: storage errors mid-commit,
// exhausted ticket-code retries. The atomic commit boundary guarantees
// no partial money-affecting state was left behind. Callers surface it
// opaquely and log the wrapped cause.
var ErrInternal = errors.New("internal error")

// ErrConflict marks a concurrent-update collision detected at commit
// time. Retryable: the caller should re-fetch and try again.
var ErrConflict = errors.New("conflict, retry the operation")

func internalf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInternal}, args...)...)
}
