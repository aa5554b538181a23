// Package ringchan provides a bounded channel that never blocks producers.
//
// When the buffer is full the oldest element is discarded, which suits
// high-rate streams such as advertising reports where only recent values matter.
package ringchan

import (
	"context"
	"sync"
	"sync/atomic"
)

// Ring is a bounded channel with overwrite-oldest semantics.
//
//	r := ringchan.New[*pandora.ScanningResponse](64)
//	go func() { for { report, _ := scan.Recv(); r.Push(report) } }()
//	report, err := r.Recv(ctx)
type Ring[T any] struct {
	mu     sync.Mutex // serializes producers so drop-then-send stays atomic
	ch     chan T
	closed bool
	stats  Stats
}

// Stats are lock-free counters of a Ring.
type Stats struct {
	Pushed    int64
	Dropped   int64
	Delivered int64
}

// New creates a Ring with the given capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Reads through C are not counted as delivered.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Push inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped. Push after Close is a no-op.
func (r *Ring[T]) Push(v T) (dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	select {
	case r.ch <- v:
	default:
		select {
		case <-r.ch:
			dropped = true
			atomic.AddInt64(&r.stats.Dropped, 1)
		default:
		}
		r.ch <- v
	}
	atomic.AddInt64(&r.stats.Pushed, 1)
	return dropped
}

// Recv blocks until a value is available, the ring is closed (ok=false) or ctx ends.
func (r *Ring[T]) Recv(ctx context.Context) (v T, ok bool, err error) {
	select {
	case v, ok = <-r.ch:
		if ok {
			atomic.AddInt64(&r.stats.Delivered, 1)
		}
		return v, ok, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Close closes the receive side. Buffered values can still be drained.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}

// Stats returns a snapshot of the counters.
func (r *Ring[T]) Stats() Stats {
	return Stats{
		Pushed:    atomic.LoadInt64(&r.stats.Pushed),
		Dropped:   atomic.LoadInt64(&r.stats.Dropped),
		Delivered: atomic.LoadInt64(&r.stats.Delivered),
	}
}
