package cellstore

import (
	"errors"
	"time"

	"github.com/jpalmerr/cellstore/internal/pathops"
)

const (
	minFeedInterval = time.Second
	maxFeedInterval = time.Hour
)

type feedConfig struct {
	headers   map[string]string
	timeout   time.Duration
	interval  time.Duration
	path      pathops.Path
	transform func(any) (any, error)
}

// FeedOption configures a [Feed] during construction.
type FeedOption func(*feedConfig) error

// WithHeaders adds request headers as key-value pairs.
//
// Returns an error if an odd number of arguments is given.
//
//	cellstore.WithHeaders("Authorization", "Bearer "+token)
func WithHeaders(keyValues ...string) FeedOption {
	return func(cfg *feedConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout. Defaults to 10 seconds.
//
// Returns an error if d is not positive.
func WithTimeout(d time.Duration) FeedOption {
	return func(cfg *feedConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithInterval polls this feed on its own schedule instead of the global
// polling interval.
//
// Returns an error if d is below 1 second or above 1 hour.
func WithInterval(d time.Duration) FeedOption {
	return func(cfg *feedConfig) error {
		if d < minFeedInterval {
			return errors.New("interval must be at least 1 second")
		}
		if d > maxFeedInterval {
			return errors.New("interval must not exceed 1 hour")
		}
		cfg.interval = d
		return nil
	}
}

// WithPath dispatches only the value at a dot path of the response,
// e.g. "data.items.0". A poll whose response lacks the path fails.
//
// Returns an error if the path has an empty segment.
func WithPath(path string) FeedOption {
	return func(cfg *feedConfig) error {
		p, err := pathops.Parse(path)
		if err != nil {
			return err
		}
		cfg.path = p
		return nil
	}
}

// WithTransform rewrites each payload before dispatch. It runs after
// [WithPath]. A returned error or a panic fails the poll; panics are logged
// with a correlation id that also appears in the error.
//
// Returns an error if fn is nil.
func WithTransform(fn func(payload any) (any, error)) FeedOption {
	return func(cfg *feedConfig) error {
		if fn == nil {
			return errors.New("transform cannot be nil")
		}
		cfg.transform = fn
		return nil
	}
}
