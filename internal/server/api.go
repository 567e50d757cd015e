package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jpalmerr/cellstore/internal/errs"
)

const maxBodySize = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps a store error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrUnknownEvent), errors.Is(err, errs.ErrUnknownSubscription):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidValue):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrInvalidArgs):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

// parseArgs decodes a JSON array of arguments. Blank input means no args.
func parseArgs(raw string) ([]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var args []any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: args must be a JSON array: %v", errs.ErrInvalidArgs, err)
	}
	return args, nil
}

// parseSpec reads "name" or "name:<json array>".
func parseSpec(raw string) (Spec, error) {
	name, args, _ := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return Spec{}, fmt.Errorf("%w: empty subscription name in %q", errs.ErrInvalidArgs, raw)
	}
	parsed, err := parseArgs(args)
	if err != nil {
		return Spec{}, err
	}
	return Spec{Subscription: name, Args: parsed}, nil
}

type metaBody struct {
	Title         string   `json:"title"`
	Events        []string `json:"events"`
	Subscriptions []string `json:"subscriptions"`
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	s.writeJSON(w, http.StatusOK, metaBody{
		Title:         title,
		Events:        s.cfg.Backend.Events(),
		Subscriptions: s.cfg.Backend.Subscriptions(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Backend.State())
}

type dispatchBody struct {
	Event string `json:"event"`
	State any    `json:"state"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: read body: %v", errs.ErrInvalidArgs, err))
		return
	}
	args, err := parseArgs(string(body))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.cfg.Backend.Dispatch(r.Context(), event, args); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dispatchBody{Event: event, State: s.cfg.Backend.State()})
}

type valueBody struct {
	Subscription string `json:"subscription"`
	Args         []any  `json:"args,omitempty"`
	Value        any    `json:"value"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	sub := chi.URLParam(r, "sub")
	args, err := parseArgs(r.URL.Query().Get("args"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	v, err := s.cfg.Backend.Query(sub, args)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, valueBody{Subscription: sub, Args: args, Value: v})
}

func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Hub.Feeds())
}
