// Package memo memoizes pure reducers and selectors by the structural value
// of their inputs.
//
// A [Cache] is keyed by a 64-bit structural hash of (state, args) computed by
// [Hash]. Hash collisions are resolved by comparing the stored inputs with
// reflect.DeepEqual, so a lookup only hits when the inputs are structurally
// equal to a previous call. The cache is a bounded LRU: each distinct input
// pair occupies one slot and the least recently used pair is evicted first.
//
// Memoization is only correct for pure functions. Impure functions are not
// detected; they simply return stale results.
package memo
