package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/tenantctl/tenantctl/pkg/util"
)

// BurstQueue is the admission controller for whole requests: a bounded FIFO
// executed by a single worker, so concurrent clients serialize instead of
// piling onto the device. A full queue rejects immediately with a
// retry-later error rather than growing unbounded.
type BurstQueue struct {
	tasks chan *burstTask

	closeOnce sync.Once
	done      chan struct{}
}

type burstTask struct {
	run      func() error
	finished chan error
}

// NewBurstQueue creates a queue with the given capacity and starts its
// worker.
func NewBurstQueue(capacity int) *BurstQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &BurstQueue{
		tasks: make(chan *burstTask, capacity),
		done:  make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *BurstQueue) worker() {
	for {
		select {
		case <-q.done:
			return
		case task := <-q.tasks:
			task.finished <- task.run()
		}
	}
}

// Do queues fn and waits for it to complete. A full queue fails immediately
// with util.ErrQueueFull. A cancelled context returns early, but the queued
// work still runs when its turn comes.
func (q *BurstQueue) Do(ctx context.Context, fn func() error) error {
	task := &burstTask{run: fn, finished: make(chan error, 1)}

	select {
	case q.tasks <- task:
	default:
		return fmt.Errorf("%d requests already queued: %w", cap(q.tasks), util.ErrQueueFull)
	}

	select {
	case err := <-task.finished:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return fmt.Errorf("queue closed: %w", util.ErrQueueFull)
	}
}

// Pending returns the number of queued requests not yet started.
func (q *BurstQueue) Pending() int {
	return len(q.tasks)
}

// Close stops the worker. Queued but unstarted requests are abandoned.
func (q *BurstQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
