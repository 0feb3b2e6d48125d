package cache

import "errors"

var (
	// ErrUnreachable reports that a remote store could not be contacted.
	ErrUnreachable = errors.New("cache store unreachable")

	// ErrCacheMiss is returned by callers that require an entry to exist.
	ErrCacheMiss = errors.New("cache miss")
)

// transientError marks a failure the store may recover from on its own, such
// as a dropped connection.
type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient marks err as worth another attempt under a [RetryPolicy].
// Transient(nil) is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err, or any error it wraps, was marked with
// [Transient].
func IsTransient(err error) bool {
	var te transientError
	return errors.As(err, &te)
}
