// Package coalesce batches rapid updates of a single value into one write
// after a quiet period.
package coalesce

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Writer keeps the latest value handed to Set and writes it once no new value
// has arrived for the quiet period. At most one write runs at a time; a value
// set while a write is in flight is written after it.
type Writer[T any] struct {
	quiet time.Duration
	write func(context.Context, T) error
	log   *zap.SugaredLogger

	mu      sync.Mutex
	value   T
	pending bool
	gen     uint64
	timer   *time.Timer
	writing bool
	again   bool
	done    chan struct{}
	closed  bool
}

// New returns a Writer calling write after quiet. log may be nil.
func New[T any](quiet time.Duration, write func(context.Context, T) error, log *zap.SugaredLogger) *Writer[T] {
	if write == nil {
		panic("coalesce: nil write func")
	}
	if log == nil {
		log = zap.S()
	}
	return &Writer[T]{quiet: quiet, write: write, log: log.With("method", "coalesce")}
}

// Set replaces the pending value and restarts the quiet period. It is ignored
// after Close.
func (w *Writer[T]) Set(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.log.Debug("set after close dropped")
		return
	}
	w.value = v
	w.pending = true
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
	}
	g := w.gen
	w.timer = time.AfterFunc(w.quiet, func() { w.fire(g) })
}

// Pending reports whether a value is waiting to be written.
func (w *Writer[T]) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

func (w *Writer[T]) fire(g uint64) {
	for {
		w.mu.Lock()
		if g != w.gen && !w.again {
			w.mu.Unlock()
			return
		}
		if w.writing {
			w.again = true
			w.mu.Unlock()
			return
		}
		w.again = false
		v, ok := w.take()
		w.mu.Unlock()
		if !ok {
			return
		}

		if err := w.write(context.Background(), v); err != nil {
			w.log.Errorf("write: %v", err)
		}
		if !w.finish() {
			return
		}
		g = w.currentGen()
	}
}

// take must be called with mu held and the writer idle.
func (w *Writer[T]) take() (T, bool) {
	var zero T
	if !w.pending {
		return zero, false
	}
	v := w.value
	w.value = zero
	w.pending = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.writing = true
	w.done = make(chan struct{})
	return v, true
}

// finish ends the in-flight write and reports whether a timer fired during it.
func (w *Writer[T]) finish() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writing = false
	close(w.done)
	again := w.again && w.pending
	w.again = false
	return again
}

func (w *Writer[T]) currentGen() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen
}

// Flush waits for any in-flight write and then writes the pending value
// without waiting for the quiet period.
func (w *Writer[T]) Flush(ctx context.Context) error {
	for {
		w.mu.Lock()
		if w.writing {
			done := w.done
			w.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		w.again = false
		v, ok := w.take()
		w.mu.Unlock()
		if !ok {
			return nil
		}

		err := w.write(ctx, v)
		w.finish()
		if err != nil {
			return err
		}
	}
}

// Close stops accepting values and flushes what is pending.
func (w *Writer[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.Flush(ctx)
}
