package feed

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/cellstore/internal/pathops"
)

// Transform rewrites a decoded payload before it is dispatched.
type Transform func(payload any) (any, error)

// Source is one feed to poll.
type Source struct {
	// Name identifies the feed in results, logs and metrics. Unique per
	// scheduler, since it keys interval tracking.
	Name string

	// URL is requested with GET on every poll.
	URL string

	// Event is the store event the payload is dispatched to. The scheduler
	// only carries it through to the [Result].
	Event string

	// Headers are added to every request.
	Headers map[string]string

	// Timeout bounds one request, including reading the body.
	Timeout time.Duration

	// Interval overrides the scheduler default when positive.
	Interval time.Duration

	// Path selects part of the decoded document. Empty keeps the whole body.
	Path pathops.Path

	// Transform, if set, runs after Path. Its panics are recovered and
	// reported as errors carrying a correlation id.
	Transform Transform
}

// Result is the outcome of polling one source.
type Result struct {
	// Feed is the source name.
	Feed string

	// URL is the address that was polled.
	URL string

	// Event is copied from the source.
	Event string

	// Payload is the decoded document after Path and Transform, with
	// numbers normalized to float64. Nil when Err is set.
	Payload any

	// StatusCode is the HTTP status code, or 0 if no response arrived.
	StatusCode int

	// Latency is the request round trip, including reading the body.
	Latency time.Duration

	// PolledAt is when the response arrived.
	PolledAt time.Time

	// Err is set when the request, decoding, path lookup or transform
	// failed.
	Err error
}

// Scheduler polls sources periodically on a worker pool. Start and Stop are
// safe for concurrent use and idempotent.
type Scheduler struct {
	sources        []Source
	interval       time.Duration
	maxConcurrency int
	client         *Client
	results        chan Result
	logger         *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	lastPolled map[string]time.Time
	tick       time.Duration
}

// NewScheduler creates a [Scheduler]. interval applies to sources without
// their own; maxConcurrency bounds in-flight requests.
func NewScheduler(sources []Source, interval time.Duration, maxConcurrency int, logger *slog.Logger) *Scheduler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Scheduler{
		sources:        sources,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		client:         NewClient(),
		results:        make(chan Result, len(sources)),
		logger:         logger,
	}
}

// Results emits one [Result] per poll. Closed when the scheduler stops.
func (s *Scheduler) Results() <-chan Result {
	return s.results
}

// tickInterval is the GCD of every effective source interval, at least 1s.
func (s *Scheduler) tickInterval() time.Duration {
	if len(s.sources) == 0 {
		return s.interval
	}

	tick := s.intervalFor(s.sources[0])
	for _, src := range s.sources[1:] {
		tick = gcd(tick, s.intervalFor(src))
	}
	if tick < time.Second {
		tick = time.Second
	}
	return tick
}

func (s *Scheduler) intervalFor(src Source) time.Duration {
	if src.Interval > 0 {
		return src.Interval
	}
	return s.interval
}

func gcd(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start polls every source immediately and then keeps polling in the
// background until Stop is called or ctx ends. A nil ctx means
// context.Background. Start after Stop is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastPolled = make(map[string]time.Time, len(s.sources))
	s.tick = s.tickInterval()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.pollDue(ctx, true)

		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pollDue(ctx, false)
			}
		}
	}()
}

// Stop cancels polling, waits for in-flight requests and closes Results.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.client.Close()
	s.closeOnce.Do(func() { close(s.results) })
}

// pollDue polls the sources whose interval has elapsed, or all of them when
// all is set. A source's clock restarts when its poll starts.
func (s *Scheduler) pollDue(ctx context.Context, all bool) {
	now := time.Now()
	due := make([]Source, 0, len(s.sources))

	s.mu.Lock()
	for _, src := range s.sources {
		last, seen := s.lastPolled[src.Name]
		if all || !seen || now.Sub(last) >= s.intervalFor(src) {
			due = append(due, src)
			s.lastPolled[src.Name] = now
		}
	}
	s.mu.Unlock()

	if len(due) > 0 {
		s.pollAll(ctx, due)
	}
}

// pollAll fans sources out to at most maxConcurrency workers.
func (s *Scheduler) pollAll(ctx context.Context, sources []Source) {
	jobs := make(chan Source, len(sources))

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				result := s.Poll(ctx, src)
				select {
				case s.results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, src := range sources {
		select {
		case jobs <- src:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}

// Poll fetches src once and builds its payload.
func (s *Scheduler) Poll(ctx context.Context, src Source) Result {
	resp := s.client.Get(ctx, src.URL, src.Headers, src.Timeout)
	result := Result{
		Feed:       src.Name,
		URL:        src.URL,
		Event:      src.Event,
		StatusCode: resp.StatusCode,
		Latency:    resp.Latency,
		PolledAt:   time.Now(),
	}

	doc, err := resp.Decode()
	if err != nil {
		result.Err = err
		return result
	}

	if len(src.Path) > 0 {
		v, ok := pathops.Get(doc, src.Path)
		if !ok {
			result.Err = fmt.Errorf("path %q not found in response", src.Path.String())
			return result
		}
		doc = v
	}

	if src.Transform != nil {
		doc, err = s.safeTransform(src, doc)
		if err != nil {
			result.Err = err
			return result
		}
	}

	result.Payload = pathops.Normalize(doc)
	return result
}

// safeTransform runs the source's transform, converting a panic into an
// error that carries a correlation id also written to the log.
func (s *Scheduler) safeTransform(src Source, doc any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			id := uuid.NewString()
			s.logger.Error("feed transform panic",
				"feed", src.Name,
				"correlation_id", id,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			out = nil
			err = fmt.Errorf("transform panic (correlation_id: %s)", id)
		}
	}()
	return src.Transform(doc)
}
