package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OutboxSize is the number of messages buffered per client.
const OutboxSize = 100

// Message types pushed to clients.
const (
	TypeValue = "value"
	TypeError = "error"
	TypeFeed  = "feed"
)

// Message is one push to a client, encoded as JSON on the wire.
type Message struct {
	// Type is one of TypeValue, TypeError or TypeFeed.
	Type string `json:"type"`

	// Subscription and Args name the watched value for value and error
	// messages.
	Subscription string `json:"subscription,omitempty"`
	Args         []any  `json:"args,omitempty"`

	// Value is the fresh derived value. Always encoded, so zero values and
	// null reach the client.
	Value any `json:"value"`

	// Feed is set for feed messages only.
	Feed *Feed `json:"feed,omitempty"`

	// Error describes why a value could not be computed.
	Error string `json:"error,omitempty"`

	// At is when the message was produced. Deliver fills it in if zero.
	At time.Time `json:"at"`
}

// Feed is the latest poll outcome of one feed.
type Feed struct {
	// Name is the feed name, unique per hub.
	Name string `json:"name"`

	// URL is the polled address.
	URL string `json:"url"`

	// Event is the event the feed dispatches to.
	Event string `json:"event"`

	// OK is true when the poll succeeded and the dispatch was accepted.
	OK bool `json:"ok"`

	// Error holds the poll or dispatch failure when OK is false.
	Error string `json:"error,omitempty"`

	// LatencyMs is the request round trip in milliseconds.
	LatencyMs int64 `json:"latency_ms"`

	// PolledAt is when the poll completed.
	PolledAt time.Time `json:"polled_at"`
}

// Client is one live connection.
type Client struct {
	// ID is a random UUID assigned by [Hub.Register]. Backends key
	// per-connection state on it.
	ID string

	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// Messages returns the client's outbox. It is closed on unregister.
func (c *Client) Messages() <-chan Message {
	return c.ch
}

// Send queues msg without blocking. It returns false if the outbox is full
// or the client was unregistered.
func (c *Client) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.ch <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// Hub is a registry of clients and feed outcomes. Safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	feedMu sync.RWMutex
	feeds  map[string]Feed

	// OnDrop, if set, is called once per message a full outbox discarded.
	OnDrop func()
}

// New creates an empty [Hub].
func New() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		feeds:   make(map[string]Feed),
	}
}

// Register adds a new client with a random id.
//
// Caller must call [Hub.Unregister] when the connection ends.
func (h *Hub) Register() *Client {
	c := &Client{
		ID: uuid.NewString(),
		ch: make(chan Message, OutboxSize),
	}

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	return c
}

// Unregister removes c and closes its outbox. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()

	c.close()
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver sends msg to c, reporting a drop through OnDrop.
func (h *Hub) Deliver(c *Client, msg Message) bool {
	if msg.At.IsZero() {
		msg.At = time.Now()
	}
	if c.Send(msg) {
		return true
	}
	if h.OnDrop != nil {
		h.OnDrop()
	}
	return false
}

// Broadcast sends msg to every client and returns how many accepted it.
func (h *Hub) Broadcast(msg Message) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if h.Deliver(c, msg) {
			sent++
		}
	}
	return sent
}

// RecordFeed stores f as the latest outcome for its feed and broadcasts it.
func (h *Hub) RecordFeed(f Feed) {
	h.feedMu.Lock()
	h.feeds[f.Name] = f
	h.feedMu.Unlock()

	h.Broadcast(Message{Type: TypeFeed, Feed: &f, At: f.PolledAt})
}

// Feeds returns the latest outcome of every feed, sorted by name.
func (h *Hub) Feeds() []Feed {
	h.feedMu.RLock()
	defer h.feedMu.RUnlock()

	out := make([]Feed, 0, len(h.feeds))
	for _, f := range h.feeds {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
