package transfer

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/bavix/camfleet/internal/metrics"
)

// permanentError marks a failure that retrying cannot fix (disk full,
// destination not writable). Attempt gives up on it immediately.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Attempt stops retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError

	return errors.As(err, &pe)
}

// Attempt runs op until it succeeds, at most maxAttempts times, retrying
// immediately on transient failure. It returns true on the first success and
// false once attempts are exhausted, the error is permanent, or the context
// is done. The last error is logged with the attempt count rather than
// propagated: a transfer that failed for good is an operator problem, not a
// session-aborting one.
func Attempt(ctx context.Context, op func(context.Context) error, maxAttempts int) bool {
	logger := zerolog.Ctx(ctx)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}

		err := op(ctx)
		if err == nil {
			if metrics.M.TransferSuccess != nil {
				metrics.M.TransferSuccess.Inc()
			}

			return true
		}

		if metrics.M.TransferError != nil {
			metrics.M.TransferError.Inc()
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Msg("transfer attempt failed")

		if IsPermanent(err) {
			return false
		}
	}

	return false
}
