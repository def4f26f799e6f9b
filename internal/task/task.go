package task

import "context"

// Task is a unit of fallible work that may block on I/O or long-running
// computation. Implementations must honor context cancellation on their
// blocking paths.
type Task[T any] interface {
	Execute(ctx context.Context) (T, error)
}

// ExecError marks the terminal failures surfaced through task execution.
// The pipeline's externally visible errors implement it so callers can match
// the base shape without depending on concrete types.
type ExecError interface {
	error
	ExecMessage() string
}

// Future is a handle to a task launched with Go.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go launches the task on its own goroutine and returns a Future for the
// result.
func Go[T any](ctx context.Context, t Task[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = t.Execute(ctx)
	}()
	return f
}

// Wait blocks until the task finishes and returns its result or error
// unchanged. It is safe to call Wait multiple times.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Run executes the task to completion on a fresh background context and
// blocks for the result. It is the synchronous adapter for callers that
// cannot await a Future.
func Run[T any](t Task[T]) (T, error) {
	return Go(context.Background(), t).Wait()
}
