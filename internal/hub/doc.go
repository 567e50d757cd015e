// Package hub tracks the live connections a store server pushes to.
//
// Each SSE or websocket connection is one [Client] with a buffered outbox.
// Sends are non-blocking: a client that stops reading misses messages
// rather than stalling the dispatch that produced them.
//
// The hub also remembers the latest poll outcome of every feed so new
// connections can be shown feed health without waiting for the next poll.
package hub
