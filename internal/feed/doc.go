// Package feed polls JSON endpoints and turns each response into a payload
// for a store event.
//
// A [Scheduler] polls every [Source] once on start, then ticks at the
// greatest common divisor of all source intervals and polls only the
// sources that are due. Requests run on a bounded worker pool and results
// are emitted on a channel; the caller decides how to dispatch them.
//
// Users of the cellstore package configure feeds through cellstore.NewFeed
// and never touch this package directly.
package feed
