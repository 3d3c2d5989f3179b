// Package settle provides a one-shot completion cell. A Cell is written at
// most once; every later write is a no-op. It backs the "done" guards that
// keep a connect attempt from acting on more than one outcome.
package settle

import "sync"

// Cell holds a single value of type T that can be set exactly once.
// The zero value is not usable; create cells with New.
type Cell[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
}

func New[T any]() *Cell[T] {
	return &Cell[T]{done: make(chan struct{})}
}

// Settle stores v if the cell is still empty and reports whether this call
// was the one that settled it. Losers get false and their value is dropped.
func (c *Cell[T]) Settle(v T) bool {
	won := false
	c.once.Do(func() {
		c.val = v
		won = true
		close(c.done)
	})
	return won
}

// Done is closed once the cell has been settled.
func (c *Cell[T]) Done() <-chan struct{} {
	return c.done
}

// Settled reports whether the cell holds a value.
func (c *Cell[T]) Settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Value returns the settled value. It must only be called after Done is
// closed; calling it earlier returns the zero value.
func (c *Cell[T]) Value() T {
	select {
	case <-c.done:
		return c.val
	default:
		var zero T
		return zero
	}
}
