// Package server exposes a store over HTTP.
//
// Routes:
//
//   - GET  /                       inspector page (embedded assets)
//   - GET  /api/meta               title, event and subscription names
//   - GET  /api/state              current state as JSON
//   - POST /api/events/{event}     dispatch; body is a JSON array of args
//   - GET  /api/subs/{sub}?args=   current derived value, args as JSON array
//   - GET  /api/feeds              latest outcome of every feed
//   - GET  /api/sse?sub=name[:args] live derived values over Server-Sent Events
//   - GET  /api/ws                 live values and dispatch over a websocket
//   - GET  /metrics                Prometheus metrics, when a gatherer is set
//
// Store errors map to status codes: unknown names are 404, rejected states
// are 422 and malformed arguments are 400.
//
// The server shuts down gracefully when its context is cancelled, giving
// in-flight requests 5 seconds to finish.
package server
