// Package cellstore provides a reactive state container: one value of any
// type, changed only through named events, with derived values pushed to
// subscribers when they change.
//
// The package has two layers. A [Cell] holds a value and runs validators
// and watchers around every change. A [Store] wraps a cell and adds named
// reducers, named selectors and one-shot subscriptions. A [ReactiveCell]
// is a cell whose observers stay registered and hear about every change.
//
// # Quick Start
//
//	type Counter struct{ Count int }
//
//	st, _ := cellstore.New(Counter{})
//	cellstore.RegEventArg(st, "inc", func(s Counter, n int) Counter {
//	    return Counter{Count: s.Count + n}
//	})
//	cellstore.RegSubValue(st, "count", func(s Counter) int { return s.Count })
//
//	v, _ := st.Subscribe(view, "count") // view implements Notifiable
//	st.Dispatch("inc", 2)               // view.Notify("count", old, new)
//
// # Subscriptions
//
// A subscription is registered per notifiable, selector name and argument
// tuple. After a mutation the store re-runs each registered selector
// against the old and new states; if any tuple's output differs, the
// notifiable is told once and every tuple it held under that name is
// dropped. Subscribe again from Notify to keep observing.
//
// Selector outputs are memoized per (selector, state, args) in an LRU
// cache. See [WithMemoCapacity].
//
// # Configuration
//
// Stores and servers use the functional options pattern:
//
//	st, err := cellstore.New(initial,
//	    cellstore.WithLogger(logger),
//	    cellstore.WithRecorder(cellstore.NewPrometheusRecorder(reg)),
//	    cellstore.WithMemoCapacity(512),
//	)
//
// # Serving
//
// [Serve] exposes a store over HTTP with a JSON API, websocket and SSE
// pushes, and an embedded inspector page. Feeds poll JSON endpoints and
// dispatch the responses as events:
//
//	f, _ := cellstore.NewFeed("btc", "https://api.example.com/ticker", "set-price",
//	    cellstore.WithPath("data.price"),
//	)
//	cellstore.Serve(ctx, st, cellstore.WithFeeds(f)) // blocks until ctx is done
//
// # Architecture
//
// The internal packages (under internal/) are not part of the public API:
//
//   - internal/ordered: insertion-ordered maps for validators and watchers
//   - internal/memo: argument hashing and the selector LRU cache
//   - internal/pathops: dotted-path reads and copy-on-write writes on JSON documents
//   - internal/feed: concurrent HTTP polling with a worker pool
//   - internal/hub: connected clients and their outboxes
//   - internal/server: HTTP server with REST API, SSE and websockets
//   - internal/metrics: Prometheus collectors
//   - dashboard: embedded web UI assets
package cellstore
