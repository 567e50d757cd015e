package cellstore

// CellOption configures a [Cell] during construction.
type CellOption[T any] func(*Cell[T])

// WithEqual sets the structural equality used by [Cell.Update] to decide
// whether a value changed underneath a pending computation.
//
// The default compares scalars with == and falls back to reflect.DeepEqual.
// A nil fn is ignored.
func WithEqual[T any](fn func(a, b T) bool) CellOption[T] {
	return func(c *Cell[T]) {
		if fn != nil {
			c.equal = fn
		}
	}
}

// WithValidator registers a validator at construction time.
// Equivalent to calling [Cell.AddValidator] after [NewCell].
func WithValidator[T any](key string, fn Validator[T]) CellOption[T] {
	return func(c *Cell[T]) {
		c.validators.Set(key, fn)
	}
}

// WithWatcher registers a watcher at construction time.
// Equivalent to calling [Cell.AddWatcher] after [NewCell].
func WithWatcher[T any](key string, fn Watcher[T]) CellOption[T] {
	return func(c *Cell[T]) {
		c.watchers.Set(key, fn)
	}
}
