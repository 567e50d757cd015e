package cellstore

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jpalmerr/cellstore/internal/feed"
	"github.com/jpalmerr/cellstore/internal/pathops"
)

const defaultFeedTimeout = 10 * time.Second

// Feed is a JSON URL polled while [Serve] runs. Each successful poll
// dispatches the feed's event with the decoded payload as its only argument.
//
// Feed is immutable after creation via [NewFeed].
type Feed struct {
	name      string
	url       string
	event     string
	headers   map[string]string
	timeout   time.Duration
	interval  time.Duration
	path      pathops.Path
	transform func(any) (any, error)
}

// Name returns the feed's name, unique within one [Serve] call.
func (f Feed) Name() string { return f.name }

// URL returns the polled URL.
func (f Feed) URL() string { return f.url }

// Event returns the event dispatched with each payload.
func (f Feed) Event() string { return f.event }

// Headers returns a copy of the request headers.
func (f Feed) Headers() map[string]string { return copyMap(f.headers) }

// Timeout returns the per-request timeout. Defaults to 10 seconds.
func (f Feed) Timeout() time.Duration { return f.timeout }

// Interval returns the feed's own polling interval, or 0 to use the one
// set with [WithPollingInterval].
func (f Feed) Interval() time.Duration { return f.interval }

// Path returns the dot path selected from each response, or "" for the
// whole document.
func (f Feed) Path() string { return f.path.String() }

// NewFeed creates a [Feed] that polls rawURL and dispatches event.
//
// Payloads are decoded JSON: objects are map[string]any, lists are []any
// and numbers are float64.
//
// Returns an error if name or event is empty or the URL is invalid.
//
// Example:
//
//	f, err := cellstore.NewFeed("btc", "https://api.example.com/ticker", "set-price",
//	    cellstore.WithPath("data.price"),
//	    cellstore.WithInterval(30*time.Second),
//	)
func NewFeed(name, rawURL, event string, opts ...FeedOption) (Feed, error) {
	if name == "" {
		return Feed{}, errors.New("feed name cannot be empty")
	}
	if event == "" {
		return Feed{}, errors.New("feed event cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Feed{}, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Feed{}, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &feedConfig{
		headers: make(map[string]string),
		timeout: defaultFeedTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Feed{}, err
		}
	}

	return Feed{
		name:      name,
		url:       rawURL,
		event:     event,
		headers:   cfg.headers,
		timeout:   cfg.timeout,
		interval:  cfg.interval,
		path:      cfg.path,
		transform: cfg.transform,
	}, nil
}

func (f Feed) source() feed.Source {
	return feed.Source{
		Name:      f.name,
		URL:       f.url,
		Event:     f.event,
		Headers:   copyMap(f.headers),
		Timeout:   f.timeout,
		Interval:  f.interval,
		Path:      f.path,
		Transform: f.transform,
	}
}

// FeedResult is the outcome of one feed poll, passed to callbacks
// registered with [WithFeedCallback].
type FeedResult struct {
	Feed       string
	URL        string
	Event      string
	Payload    any
	StatusCode int
	Latency    time.Duration
	PolledAt   time.Time

	// Err is set when the poll, the path lookup, the transform or the
	// dispatch failed. A failed poll dispatches nothing.
	Err error
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
