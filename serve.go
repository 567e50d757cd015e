package cellstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpalmerr/cellstore/dashboard"
	"github.com/jpalmerr/cellstore/internal/feed"
	"github.com/jpalmerr/cellstore/internal/hub"
	"github.com/jpalmerr/cellstore/internal/server"
)

// Serve exposes s over HTTP and feeds it from the configured feeds.
//
// Serve is a blocking call that runs until ctx is cancelled. During
// execution:
//
//   - Every feed is polled immediately, then on its interval, and each
//     payload is dispatched to the store
//   - The HTTP API, SSE and websocket streams, and the inspector page are
//     served on the configured port
//   - Connected clients receive every change of the values they subscribed
//     to, renewed automatically after each notification
//
// Arguments arriving over HTTP are decoded JSON, so numbers are float64 and
// objects are map[string]any. Reducers and selectors reached from the API
// should accept those shapes.
//
// The caller controls the lifecycle via context cancellation:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//	err := cellstore.Serve(ctx, st, cellstore.WithPort(9090))
//
// Returns nil on graceful shutdown. Returns an error if an option is
// invalid, two feeds share a name, or the HTTP server fails to start.
func Serve[T any](ctx context.Context, s *Store[T], opts ...ServeOption) error {
	if s == nil {
		return errors.New("store cannot be nil")
	}

	cfg := defaultServeConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return err
		}
	}

	// feed names key per-feed interval tracking
	seen := make(map[string]bool, len(cfg.feeds))
	for _, f := range cfg.feeds {
		if seen[f.name] {
			return fmt.Errorf("duplicate feed name: %q", f.name)
		}
		seen[f.name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("cellstore serving",
		"feed_count", len(cfg.feeds),
		"event_count", len(s.Events()),
		"subscription_count", len(s.Subscriptions()),
	)
	if len(cfg.feeds) > 0 {
		logger.Info("polling configured", "interval", cfg.pollingInterval.String())
	}
	logger.Info("inspector available", "url", fmt.Sprintf("http://localhost:%d", cfg.port))

	if ctx.Err() != nil {
		return nil
	}

	h := hub.New()
	if cfg.metrics != nil {
		h.OnDrop = cfg.metrics.PushDropped
	}

	sources := make([]feed.Source, len(cfg.feeds))
	for i, f := range cfg.feeds {
		sources[i] = f.source()
	}
	scheduler := feed.NewScheduler(sources, cfg.pollingInterval, cfg.maxConcurrency, logger)
	scheduler.Start(ctx)

	// track the results consumer goroutine to ensure clean shutdown
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range scheduler.Results() {
			consumeFeedResult(ctx, s, h, cfg, logger, result)
		}
	}()

	// stops the scheduler, which closes its results, then drains them
	cleanup := func() {
		scheduler.Stop()
		wg.Wait()
	}

	srvCfg := server.Config{
		Backend:  newStoreBackend(s, h),
		Hub:      h,
		Port:     cfg.port,
		Assets:   dashboard.Assets,
		Title:    cfg.title,
		Logger:   logger,
		Gatherer: cfg.gatherer,
	}
	if cfg.metrics != nil {
		srvCfg.OnConnect = cfg.metrics.ClientConnected
		srvCfg.OnDisconnect = cfg.metrics.ClientDisconnected
	}

	if err := server.NewServer(srvCfg).Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	logger.Info("cellstore stopped")
	return nil
}

// consumeFeedResult dispatches a successful poll, records the outcome for
// /api/feeds, then runs callbacks.
func consumeFeedResult[T any](ctx context.Context, s *Store[T], h *hub.Hub, cfg *serveConfig, logger *slog.Logger, r feed.Result) {
	err := r.Err
	if err == nil {
		err = s.DispatchContext(ctx, r.Event, r.Payload)
	}

	outcome := hub.Feed{
		Name:      r.Feed,
		URL:       r.URL,
		Event:     r.Event,
		OK:        err == nil,
		LatencyMs: r.Latency.Milliseconds(),
		PolledAt:  r.PolledAt,
	}
	if err != nil {
		outcome.Error = err.Error()
	}
	h.RecordFeed(outcome)

	if cfg.metrics != nil {
		cfg.metrics.FeedPolled(r.Feed, err)
	}

	logAttrs := []any{
		"feed", r.Feed,
		"event", r.Event,
		"status_code", r.StatusCode,
		"latency_ms", r.Latency.Milliseconds(),
	}
	if err != nil {
		logger.Warn("feed poll failed", append(logAttrs, "error", err.Error())...)
	} else {
		logger.Debug("feed dispatched", logAttrs...)
	}

	if len(cfg.feedCallbacks) == 0 {
		return
	}
	public := FeedResult{
		Feed:       r.Feed,
		URL:        r.URL,
		Event:      r.Event,
		Payload:    r.Payload,
		StatusCode: r.StatusCode,
		Latency:    r.Latency,
		PolledAt:   r.PolledAt,
		Err:        err,
	}
	for _, cb := range cfg.feedCallbacks {
		invokeCallbackSafe(cb, public, logger)
	}
}

// invokeCallbackSafe calls a feed callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(FeedResult), result FeedResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("feed callback panicked",
				"panic", r,
				"feed", result.Feed,
			)
		}
	}()
	cb(result)
}
