package worker

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrNotStarted means Schedule was called before Start
	ErrNotStarted = errors.New("worker not started")
	// ErrStopped means the worker no longer accepts tasks
	ErrStopped = errors.New("worker is stopped")
	// ErrQueueFull means the task buffer is at capacity
	ErrQueueFull = errors.New("worker queue is full")
)

// Runnable consumes the tasks scheduled on a Worker.
// Run is always called from the worker goroutine, one task at a time.
type Runnable[T any] interface {
	Run(task T)
}

// Dropper is implemented by runners that must see tasks discarded at
// shutdown. Drop runs on the worker goroutine after the last Run.
type Dropper[T any] interface {
	Drop(task T)
}

// RunnableFunc adapts a plain function to Runnable.
type RunnableFunc[T any] func(task T)

func (f RunnableFunc[T]) Run(task T) { f(task) }

// JoinHandle is returned by Stop and lets the owner wait for the goroutine.
type JoinHandle struct {
	name string
	done <-chan struct{}
	err  *error
}

// Join blocks until the worker goroutine exits. It returns an error if the
// runner panicked.
func (h *JoinHandle) Join() error {
	<-h.done
	if *h.err != nil {
		return errors.Wrapf(*h.err, "worker %s", h.name)
	}
	return nil
}
