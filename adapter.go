package cellstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jpalmerr/cellstore/internal/hub"
	"github.com/jpalmerr/cellstore/internal/memo"
	"github.com/jpalmerr/cellstore/internal/server"
)

var errClientReleased = errors.New("client released")

// storeBackend exposes a Store to the HTTP server. Every connected client is
// bound to exactly one notifiable for its whole lifetime, so repeated
// subscriptions from the same connection never fan out into duplicate
// notifications.
type storeBackend[T any] struct {
	store *Store[T]
	hub   *hub.Hub

	mu      sync.Mutex
	clients map[string]*clientNotifiable[T]
}

func newStoreBackend[T any](s *Store[T], h *hub.Hub) *storeBackend[T] {
	return &storeBackend[T]{
		store:   s,
		hub:     h,
		clients: make(map[string]*clientNotifiable[T]),
	}
}

func (b *storeBackend[T]) State() any              { return b.store.Read() }
func (b *storeBackend[T]) Events() []string        { return b.store.Events() }
func (b *storeBackend[T]) Subscriptions() []string { return b.store.Subscriptions() }

func (b *storeBackend[T]) Dispatch(ctx context.Context, event string, args []any) error {
	return b.store.DispatchContext(ctx, event, args...)
}

func (b *storeBackend[T]) Query(sub string, args []any) (any, error) {
	return b.store.Query(sub, args...)
}

func (b *storeBackend[T]) Watch(c *hub.Client, spec server.Spec) (any, error) {
	return b.notifiableFor(c).watch(spec)
}

func (b *storeBackend[T]) Release(c *hub.Client) {
	b.mu.Lock()
	cn, ok := b.clients[c.ID]
	delete(b.clients, c.ID)
	b.mu.Unlock()
	if !ok {
		return
	}

	cn.mu.Lock()
	cn.released = true
	cn.mu.Unlock()
	b.store.Forget(cn)
}

func (b *storeBackend[T]) notifiableFor(c *hub.Client) *clientNotifiable[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	cn, ok := b.clients[c.ID]
	if !ok {
		cn = &clientNotifiable[T]{backend: b, client: c}
		b.clients[c.ID] = cn
	}
	return cn
}

// clientNotifiable renews every spec a client holds under a subscription
// name whenever that name fires, and pushes the fresh values to the client.
type clientNotifiable[T any] struct {
	backend *storeBackend[T]
	client  *hub.Client

	mu       sync.Mutex
	specs    []server.Spec
	released bool
}

func (n *clientNotifiable[T]) watch(spec server.Spec) (any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.released {
		return nil, errClientReleased
	}

	added := n.addSpec(spec)
	v, err := n.backend.store.Subscribe(n, spec.Subscription, spec.Args...)
	if err != nil && added {
		n.specs = n.specs[:len(n.specs)-1]
	}
	return v, err
}

func (n *clientNotifiable[T]) addSpec(spec server.Spec) bool {
	for _, s := range n.specs {
		if s.Subscription == spec.Subscription && memo.ArgsEqual(s.Args, spec.Args) {
			return false
		}
	}
	n.specs = append(n.specs, spec)
	return true
}

// Notify implements [Notifiable].
func (n *clientNotifiable[T]) Notify(sub string, _, _ T) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.released {
		return
	}

	for _, spec := range n.specs {
		if spec.Subscription != sub {
			continue
		}
		msg := hub.Message{
			Type:         hub.TypeValue,
			Subscription: sub,
			Args:         spec.Args,
			At:           time.Now(),
		}
		v, err := n.backend.store.Subscribe(n, sub, spec.Args...)
		if err != nil {
			msg.Type = hub.TypeError
			msg.Error = err.Error()
		} else {
			msg.Value = v
		}
		n.backend.hub.Deliver(n.client, msg)
	}
}
