package cellstore

import (
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jpalmerr/cellstore/internal/memo"
)

const tracerName = "github.com/jpalmerr/cellstore"

// storeConfig holds mutable state during Store construction.
type storeConfig struct {
	logger       *slog.Logger
	tracer       trace.Tracer
	recorder     Recorder
	memoCapacity int
	valueEqual   func(a, b any) bool
}

func defaultStoreConfig() *storeConfig {
	return &storeConfig{
		logger:       slog.Default(),
		tracer:       otel.Tracer(tracerName),
		recorder:     nopRecorder{},
		memoCapacity: memo.DefaultCapacity,
		valueEqual:   defaultEqual[any],
	}
}

// Option is a function that configures a [Store] during construction.
//
// Options return an error if validation fails; [New] stops at the first one.
//
// Built-in options: [WithLogger], [WithTracer], [WithRecorder],
// [WithMemoCapacity], [WithValueEqual].
type Option func(*storeConfig) error

// WithLogger sets a custom [slog.Logger] for the store.
//
// The store logs registrations, dispatches and notifications at Debug level.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *storeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer used to create one span per
// dispatch. If not specified, the tracer comes from the global provider.
//
// Returns an error if the tracer is nil.
func WithTracer(tracer trace.Tracer) Option {
	return func(cfg *storeConfig) error {
		if tracer == nil {
			return errors.New("tracer cannot be nil")
		}
		cfg.tracer = tracer
		return nil
	}
}

// WithRecorder sets the [Recorder] that receives dispatch, retry and
// notification counts. See [NewPrometheusRecorder].
//
// Returns an error if the recorder is nil.
func WithRecorder(r Recorder) Option {
	return func(cfg *storeConfig) error {
		if r == nil {
			return errors.New("recorder cannot be nil")
		}
		cfg.recorder = r
		return nil
	}
}

// WithMemoCapacity bounds how many distinct (state, args) input pairs are
// remembered per reducer and per selector. Least recently used pairs are
// evicted first. Zero disables memoization. Defaults to 128.
//
// Returns an error if n is negative.
func WithMemoCapacity(n int) Option {
	return func(cfg *storeConfig) error {
		if n < 0 {
			return errors.New("memo capacity cannot be negative")
		}
		cfg.memoCapacity = n
		return nil
	}
}

// WithValueEqual sets the equality used to compare selector outputs before
// and after a mutation. The default compares scalars with == (treating two
// NaNs as equal) and everything else with reflect.DeepEqual.
//
// Returns an error if fn is nil.
func WithValueEqual(fn func(a, b any) bool) Option {
	return func(cfg *storeConfig) error {
		if fn == nil {
			return errors.New("equality function cannot be nil")
		}
		cfg.valueEqual = fn
		return nil
	}
}
