package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a transport failure. The kind is resolved once at the
// transport boundary so callers never inspect error strings to decide
// retryability.
type ErrorKind int

const (
	// KindTransient covers network-layer failures that are worth retrying.
	KindTransient ErrorKind = iota
	// KindRateLimited means the remote side asked us to wait; RetryAfter
	// carries the server-specified duration.
	KindRateLimited
	// KindPermanent means retrying cannot succeed (e.g. the locator is
	// permanently invalid).
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// Error is a transport failure tagged with its kind.
type Error struct {
	Kind       ErrorKind
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindRateLimited {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Op, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a permanent transport failure.
func IsPermanent(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindPermanent
}

// RetryAfter returns the server-specified wait duration if err is a
// rate-limit response.
func RetryAfter(err error) (time.Duration, bool) {
	var te *Error
	if errors.As(err, &te) && te.Kind == KindRateLimited {
		return te.RetryAfter, true
	}
	return 0, false
}
