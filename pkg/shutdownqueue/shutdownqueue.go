// Package shutdownqueue collects cleanup tasks and drains them in LIFO order
// when the process stops.
//
// A Queue can be created with New, or the package-level Add/Shutdown helpers
// can be used, which operate on a process-wide default queue:
//
//	defer func() {
//		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//		defer cancel()
//		_ = shutdownqueue.Shutdown(ctx)
//	}()
//
// Tasks run once. Panics are recovered and reported as errors.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task is a shutdown function. It should honor ctx.
type Task func(ctx context.Context) error

// Queue is a LIFO list of named shutdown tasks.
type Queue struct {
	mu     sync.Mutex
	tasks  []namedTask
	closed bool
}

type namedTask struct {
	name string
	run  Task
}

var defaultQueue = New()

// New returns an empty queue.
func New() *Queue {
	return &Queue{tasks: make([]namedTask, 0, 8)}
}

// Add registers t under name. Nil tasks and tasks added after Shutdown has
// started are ignored.
func (q *Queue) Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.tasks = append(q.tasks, namedTask{name: name, run: t})
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Shutdown drains the queue in reverse registration order. Repeated calls are
// no-ops. If ctx ends mid-drain the remaining tasks are skipped and the
// context error is joined with any task errors collected so far.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()

	if q.closed && len(q.tasks) == 0 {
		q.mu.Unlock()

		return nil
	}

	q.closed = true
	tasks := q.tasks
	q.tasks = nil

	q.mu.Unlock()

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("shutdown canceled before %q: %w", tasks[i].name, ctx.Err()))

			return errors.Join(errs...)
		default:
		}

		err := runTask(ctx, tasks[i])
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func runTask(ctx context.Context, t namedTask) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic in shutdown task %q: %v", t.name, r)
		}
	}()

	err = t.run(ctx)
	if err != nil {
		return fmt.Errorf("shutdown task %q: %w", t.name, err)
	}

	return nil
}

// Add registers a task on the default queue.
func Add(name string, t Task) {
	defaultQueue.Add(name, t)
}

// Shutdown drains the default queue.
func Shutdown(ctx context.Context) error {
	return defaultQueue.Shutdown(ctx)
}
