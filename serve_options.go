package cellstore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultPollingInterval = 15 * time.Second
	defaultPort            = 8080
	defaultMaxConcurrency  = 10
)

// serveConfig holds mutable state while [Serve] applies its options.
type serveConfig struct {
	title           string
	port            int
	feeds           []Feed
	pollingInterval time.Duration
	maxConcurrency  int
	logger          *slog.Logger
	gatherer        prometheus.Gatherer
	metrics         *PrometheusRecorder
	feedCallbacks   []func(FeedResult)
}

func defaultServeConfig() *serveConfig {
	return &serveConfig{
		port:            defaultPort,
		pollingInterval: defaultPollingInterval,
		maxConcurrency:  defaultMaxConcurrency,
	}
}

// ServeOption configures [Serve].
//
// Built-in options: [WithPort], [WithTitle], [WithFeed], [WithFeeds],
// [WithPollingInterval], [WithMaxConcurrency], [WithServeLogger],
// [WithGatherer], [WithMetrics], [WithFeedCallback].
type ServeOption func(*serveConfig) error

// WithPort sets the HTTP port. Defaults to 8080.
//
// Returns an error if the port is outside 1-65535.
func WithPort(port int) ServeOption {
	return func(cfg *serveConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the inspector page title. Empty means "cellstore".
func WithTitle(title string) ServeOption {
	return func(cfg *serveConfig) error {
		cfg.title = title
		return nil
	}
}

// WithFeed adds one [Feed] to poll while serving.
func WithFeed(f Feed) ServeOption {
	return func(cfg *serveConfig) error {
		cfg.feeds = append(cfg.feeds, f)
		return nil
	}
}

// WithFeeds adds several feeds. Equivalent to repeated [WithFeed].
func WithFeeds(feeds ...Feed) ServeOption {
	return func(cfg *serveConfig) error {
		cfg.feeds = append(cfg.feeds, feeds...)
		return nil
	}
}

// WithPollingInterval sets how often feeds without their own interval are
// polled. Defaults to 15 seconds.
//
// Returns an error if d is not positive.
func WithPollingInterval(d time.Duration) ServeOption {
	return func(cfg *serveConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithMaxConcurrency bounds concurrent feed requests. Defaults to 10.
//
// Returns an error if n is not positive.
func WithMaxConcurrency(n int) ServeOption {
	return func(cfg *serveConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithServeLogger sets the logger for the server and feeds. If not
// specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithServeLogger(logger *slog.Logger) ServeOption {
	return func(cfg *serveConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithGatherer exposes g at /metrics. Without it /metrics is not served.
//
// Returns an error if g is nil.
func WithGatherer(g prometheus.Gatherer) ServeOption {
	return func(cfg *serveConfig) error {
		if g == nil {
			return errors.New("gatherer cannot be nil")
		}
		cfg.gatherer = g
		return nil
	}
}

// WithMetrics records connections, dropped pushes and feed polls on m.
// Pass the same recorder to [WithRecorder] to also count dispatches.
//
// Returns an error if m is nil.
func WithMetrics(m *PrometheusRecorder) ServeOption {
	return func(cfg *serveConfig) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		cfg.metrics = m
		return nil
	}
}

// WithFeedCallback registers fn to run after every feed poll, once the
// payload has been dispatched. Callbacks run sequentially in registration
// order on the goroutine that consumes poll results, so a slow callback
// delays later dispatches. A panicking callback is logged and skipped.
// A nil fn is ignored.
func WithFeedCallback(fn func(FeedResult)) ServeOption {
	return func(cfg *serveConfig) error {
		if fn != nil {
			cfg.feedCallbacks = append(cfg.feedCallbacks, fn)
		}
		return nil
	}
}
