package user

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoMatch        = errors.New("could not find or create user")
	ErrAmbiguousMatch = errors.New("multiple existing users match primary email")
)

// ValidationError marks a record that cannot be turned into a canonical User.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Reason)
}

// RateLimitError is the throttling signal from the remote identity service.
// It is not a failure: the dispatch engine pauses admission and retries the
// throttled record once.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// IsRateLimit reports whether err carries a throttling signal and returns it.
func IsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
