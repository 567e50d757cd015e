package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/cellstore/internal/hub"
)

// watchAll registers a fresh hub client for specs and returns the initial
// value messages. On error nothing stays registered.
func (s *Server) watchAll(specs []Spec) (*hub.Client, []hub.Message, error) {
	c := s.cfg.Hub.Register()
	initial := make([]hub.Message, 0, len(specs))
	for _, spec := range specs {
		v, err := s.cfg.Backend.Watch(c, spec)
		if err != nil {
			s.cfg.Backend.Release(c)
			s.cfg.Hub.Unregister(c)
			return nil, nil, err
		}
		initial = append(initial, hub.Message{
			Type:         hub.TypeValue,
			Subscription: spec.Subscription,
			Args:         spec.Args,
			Value:        v,
			At:           time.Now(),
		})
	}
	return c, initial, nil
}

func (s *Server) release(c *hub.Client) {
	s.cfg.Backend.Release(c)
	s.cfg.Hub.Unregister(c)
	s.disconnected()
}

// handleSSE streams derived values via Server-Sent Events. Each sub query
// parameter adds one subscription; the current values are sent first, then
// one message per change.
//
// Writes carry a deadline so a stalled client cannot keep the handler from
// noticing disconnects or shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	var specs []Spec
	for _, raw := range r.URL.Query()["sub"] {
		spec, err := parseSpec(raw)
		if err != nil {
			s.writeError(w, err)
			return
		}
		specs = append(specs, spec)
	}

	c, initial, err := s.watchAll(specs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.connected()
	defer s.release(c)

	rc := http.NewResponseController(w)
	deadlines := true
	writeAndFlush := func(data []byte) error {
		if deadlines {
			if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlines = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	for _, msg := range initial {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warn("failed to encode push", "client", c.ID, "error", err)
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}
		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}

// Websocket ops sent by clients.
const (
	opSubscribe = "subscribe"
	opQuery     = "query"
	opDispatch  = "dispatch"
)

type wsCommand struct {
	Op           string `json:"op"`
	Subscription string `json:"subscription,omitempty"`
	Event        string `json:"event,omitempty"`
	Args         []any  `json:"args,omitempty"`
}

const (
	wsReadLimit   = 1 << 20
	wsIdleTimeout = 60 * time.Second
	wsPingPeriod  = wsIdleTimeout * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS serves one websocket. The handler goroutine is the only writer;
// a reader goroutine executes commands and queues replies on the client's
// outbox alongside change pushes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		return
	}

	c := s.cfg.Hub.Register()
	s.connected()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readCommands(r.Context(), conn, c)
	}()

	// closing the conn ends the reader; release only after it can no
	// longer subscribe on behalf of c
	defer func() {
		_ = conn.Close()
		<-done
		s.release(c)
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (s *Server) readCommands(ctx context.Context, conn *websocket.Conn, c *hub.Client) {
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	})

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "client", c.ID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		s.execute(ctx, c, cmd)
	}
}

func (s *Server) execute(ctx context.Context, c *hub.Client, cmd wsCommand) {
	reply := hub.Message{Type: hub.TypeValue, Subscription: cmd.Subscription, Args: cmd.Args}

	var err error
	switch cmd.Op {
	case opSubscribe:
		reply.Value, err = s.cfg.Backend.Watch(c, Spec{Subscription: cmd.Subscription, Args: cmd.Args})
	case opQuery:
		reply.Value, err = s.cfg.Backend.Query(cmd.Subscription, cmd.Args)
	case opDispatch:
		// changes reach the client through its subscriptions
		if err = s.cfg.Backend.Dispatch(ctx, cmd.Event, cmd.Args); err == nil {
			return
		}
	default:
		err = fmt.Errorf("unknown op %q", cmd.Op)
	}

	if err != nil {
		reply = hub.Message{Type: hub.TypeError, Subscription: cmd.Subscription, Args: cmd.Args, Error: err.Error()}
	}
	s.cfg.Hub.Deliver(c, reply)
}
