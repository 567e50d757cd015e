package server

import (
	"context"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/cellstore/internal/hub"
)

const (
	// writeTimeout bounds a single SSE or websocket write so a stalled
	// client cannot pin its handler. Must not exceed shutdownTimeout.
	writeTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	defaultTitle     = "cellstore"
	titlePlaceholder = "{{.Title}}"
)

// Spec names one subscription and the arguments to subscribe with.
type Spec struct {
	// Subscription is the selector name.
	Subscription string `json:"subscription"`

	// Args are the selector arguments, decoded from JSON.
	Args []any `json:"args,omitempty"`
}

// Backend is the store as seen by the server. State and derived values are
// JSON-encodable; args arrive decoded from JSON.
type Backend interface {
	// State returns the whole current state.
	State() any

	// Events and Subscriptions list registered names in registration order.
	Events() []string
	Subscriptions() []string

	// Dispatch applies event. Errors map to HTTP statuses by kind.
	Dispatch(ctx context.Context, event string, args []any) error

	// Query computes a derived value without subscribing.
	Query(sub string, args []any) (any, error)

	// Watch subscribes c to spec and returns the current value. Every later
	// change is pushed to c as a hub.TypeValue message until Release.
	Watch(c *hub.Client, spec Spec) (any, error)

	// Release drops every subscription held for c.
	Release(c *hub.Client)
}

// Config configures a [Server].
type Config struct {
	// Backend answers every API and streaming request. Required.
	Backend Backend

	// Hub tracks live connections and feed outcomes. A fresh hub is
	// created if nil.
	Hub *hub.Hub

	// Port is the TCP port to listen on.
	Port int

	// Assets holds assets/index.html. Nil disables the inspector page.
	Assets fs.FS

	// Title replaces {{.Title}} in the inspector page and is returned by
	// /api/meta.
	Title string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer

	// OnConnect and OnDisconnect, if set, observe live connections.
	OnConnect    func()
	OnDisconnect func()
}

// Server serves a store over HTTP.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a [Server]. It does not listen until [Server.Start].
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = hub.New()
	}
	return &Server{cfg: cfg, logger: cfg.Logger}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/meta", s.handleMeta)
		r.Get("/state", s.handleState)
		r.Post("/events/{event}", s.handleDispatch)
		r.Get("/subs/{sub}", s.handleQuery)
		r.Get("/feeds", s.handleFeeds)
		r.Get("/sse", s.handleSSE)
		r.Get("/ws", s.handleWS)
	})

	if s.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.cfg.Assets != nil {
		r.Get("/", s.handleDashboard)
	}
	return r
}

// Start listens on the configured port and serves in the background until
// ctx is cancelled. Returns an error if the port cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end with ctx, which releases long-lived streams
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	content, err := fs.ReadFile(s.cfg.Assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

func (s *Server) connected() {
	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect()
	}
}

func (s *Server) disconnected() {
	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect()
	}
}
