// ============================================================================
// Store Resolver Worker - Single-Consumer Task Runner
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Serializes tasks from many producers onto one goroutine
//
// How it works:
//   A Worker owns one goroutine that runs the following loop:
//   1. Receive a task from taskCh (blocking wait)
//   2. Hand it to the Runnable
//   3. Repeat until stopCh is closed
//
// Execution Model:
//   ┌──────────────┐  Schedule()   ┌────────┐   ┌──────────────────────┐
//   │  producer 1  │──────────────▶│        │   │  Worker Goroutine    │
//   │  producer 2  │──────────────▶│ taskCh │──▶│  runner.Run(task)    │
//   │  producer N  │──────────────▶│        │   │                      │
//   └──────────────┘               └────────┘   └──────────────────────┘
//
// Shutdown:
//   Stop() marks the worker stopped, closes stopCh and returns a JoinHandle.
//   A task already handed to the runner always runs to completion. Tasks
//   still buffered when stopCh closes are not run; runners implementing
//   Dropper get each of them through Drop instead.
//
// Error Handling:
//   - Schedule never blocks: a full buffer returns ErrQueueFull
//   - A panicking runner stops the worker; Join reports the panic
//   - A panic in Drop is recovered and also reported by Join
//
// ============================================================================

package worker

import (
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Worker runs scheduled tasks of type T on a single goroutine
type Worker[T any] struct {
	name   string
	taskCh chan T        // buffered, multi-producer single-consumer
	stopCh chan struct{} // closed by Stop
	done   chan struct{} // closed when the goroutine exits
	err    error         // set by the goroutine before done is closed

	mu      sync.Mutex // guards the flags below; held across the non-blocking send
	started bool
	stopped bool // no more Schedule calls succeed
	handed  bool // a JoinHandle has been returned

	logger *zap.Logger
}

// New creates a Worker with a task buffer of the given capacity.
func New[T any](name string, capacity int, logger *zap.Logger) *Worker[T] {
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker[T]{
		name:   name,
		taskCh: make(chan T, capacity),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("worker", name)),
	}
}

// Name returns the worker's name
func (w *Worker[T]) Name() string { return w.name }

// Start launches the worker goroutine. It must be called exactly once.
func (w *Worker[T]) Start(runner Runnable[T]) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return errors.Newf("worker %s already started", w.name)
	}
	if w.stopped {
		return ErrStopped
	}
	w.started = true

	go w.loop(runner)
	w.logger.Debug("worker started")
	return nil
}

// Schedule enqueues a task without blocking the caller.
func (w *Worker[T]) Schedule(task T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return ErrNotStarted
	}
	if w.stopped {
		return ErrStopped
	}

	select {
	case w.taskCh <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of buffered tasks not yet picked up.
func (w *Worker[T]) Pending() int {
	return len(w.taskCh)
}

// Stop prevents further scheduling and signals the goroutine to exit.
// It returns nil when the worker was never started or a handle was already
// returned by an earlier call.
func (w *Worker[T]) Stop() *JoinHandle {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started || w.handed {
		w.stopped = true
		return nil
	}
	w.handed = true
	w.closeLocked()

	w.logger.Debug("worker stopping", zap.Int("pending", w.Pending()))
	return &JoinHandle{name: w.name, done: w.done, err: &w.err}
}

func (w *Worker[T]) closeLocked() {
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
}

func (w *Worker[T]) loop(runner Runnable[T]) {
	defer close(w.done)
	defer w.drain(runner)
	defer func() {
		if r := recover(); r != nil {
			w.err = errors.Newf("runner panicked: %v", r)
			w.logger.Error("worker runner panicked", zap.Any("panic", r))
			w.mu.Lock()
			w.closeLocked()
			w.mu.Unlock()
		}
	}()

	for {
		// Prefer the stop signal so a busy queue cannot delay shutdown forever.
		select {
		case <-w.stopCh:
			return
		default:
		}

		select {
		case <-w.stopCh:
			return
		case task := <-w.taskCh:
			runner.Run(task)
		}
	}
}

// drain hands tasks left in the buffer to the runner's Drop method, if any.
// Nothing can be scheduled once stopCh is closed, so the buffer only shrinks.
func (w *Worker[T]) drain(runner Runnable[T]) {
	dropper, ok := runner.(Dropper[T])
	for {
		select {
		case task := <-w.taskCh:
			if ok {
				w.drop(dropper, task)
			}
		default:
			return
		}
	}
}

// drop runs outside the loop's recover, so a panic in Drop is caught here.
// The first panic is kept for Join and the remaining tasks are still dropped.
func (w *Worker[T]) drop(dropper Dropper[T], task T) {
	defer func() {
		if r := recover(); r != nil {
			if w.err == nil {
				w.err = errors.Newf("runner panicked dropping task: %v", r)
			}
			w.logger.Error("worker runner panicked in drop", zap.Any("panic", r))
		}
	}()
	dropper.Drop(task)
}
