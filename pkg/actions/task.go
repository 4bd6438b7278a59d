package actions

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoError is reported when an action signals failure without an error value.
var ErrNoError = errors.New("action reported failure without an error")

// Task is an in-flight action invocation. A task completes exactly once,
// either successfully or with an error; later completions are ignored.
type Task struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func (t *Task) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Done returns a channel closed when the task completes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task error once it has completed, nil before that.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task completes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Completed returns a task that has already completed with err.
func Completed(err error) *Task {
	t := newTask()
	t.complete(err)
	return t
}

// Go runs fn in its own goroutine and completes the task with its result.
// A panic in fn fails the task.
func Go(ctx context.Context, fn func(ctx context.Context) error) *Task {
	t := newTask()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.complete(fmt.Errorf("action panicked: %v", r))
			}
		}()
		t.complete(fn(ctx))
	}()
	return t
}

// FromCallback adapts continuation style code. fn receives a success and
// an error continuation and may call either, from any goroutine, at any
// time; only the first call counts. A task whose continuations are never
// called never completes.
func FromCallback(fn func(onSuccess func(), onError func(error))) *Task {
	t := newTask()
	onSuccess := func() { t.complete(nil) }
	onError := func(err error) {
		if err == nil {
			err = ErrNoError
		}
		t.complete(err)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				onError(fmt.Errorf("action panicked: %v", r))
			}
		}()
		fn(onSuccess, onError)
	}()
	return t
}
