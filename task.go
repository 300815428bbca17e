package reqrs

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// Task is the future of a Thunk started with Go.
type Task struct {
	id   ulid.ULID
	done chan struct{}
	err  error
}

// Go runs t against d on a new goroutine. A panic inside the thunk is recovered
// and reported as the task error.
func Go(ctx context.Context, d Dispatcher, t Thunk) *Task {
	task := &Task{id: ulid.Make(), done: make(chan struct{})}
	go func() {
		defer close(task.done)
		defer func() {
			if r := recover(); r != nil {
				task.err = fmt.Errorf("reqrs: task %s panicked: %v", task.id, r)
			}
		}()
		task.err = t(ctx, d)
	}()
	return task
}

// ID identifies the task in logs.
func (t *Task) ID() string { return t.id.String() }

// Done is closed once the thunk returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the thunk returned and reports its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Err is the thunk result, or nil while it is still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// WaitAll waits for every task and returns the first error in argument order.
func WaitAll(tasks ...*Task) error {
	var first error
	for _, t := range tasks {
		if err := t.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
