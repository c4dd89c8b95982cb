// Package jobs is a background-jobs barrier: the writer submits each
// component file's close (fsync-then-close) to one Barrier and waits on it
// before sealing. Each Barrier is created per use, not shard-wide, and
// file deletes do not go through it. Adapted from the teacher's queue.IQueue (lib/go-sstable/queue/
// coordinator.go): same buffered-channel-plus-drain-goroutine shape, fixing
// the teacher's own documented defect (NewQueue never initialised c.wg,
// see coordinator_test.go's TestCoordinator_Fix_Init_Bug) rather than
// reproducing it.
package jobs

import "sync"

// Task is one background unit of work a Barrier runs and waits on.
type Task interface {
	Execute() error
}

// Barrier runs submitted tasks on a single background goroutine and lets
// Close block until every task submitted before it has finished, the way
// the teacher's coordinator drains its channel before returning from
// Close.
type Barrier interface {
	// Submit enqueues task; it blocks only if the internal queue is full.
	Submit(Task)
	// Close stops accepting new tasks, waits for all queued tasks to
	// finish, and returns the first error encountered (or the last one, if
	// ignoreErr was set at construction).
	Close() error
}

type barrier struct {
	ch        chan Task
	wg        sync.WaitGroup
	ignoreErr bool

	mu     sync.Mutex
	err    error
	closed bool
}

// New returns a Barrier with the given queue depth. When ignoreErr is
// false, the first task error wins and later tasks still run (mirroring
// the teacher) but are not allowed to overwrite it; when true, the last
// error observed wins.
func New(queueLen int, ignoreErr bool) Barrier {
	b := &barrier{
		ch:        make(chan Task, queueLen),
		ignoreErr: ignoreErr,
	}
	b.wg.Add(1)
	go b.drain()
	return b
}

func (b *barrier) drain() {
	defer b.wg.Done()
	for task := range b.ch {
		err := task.Execute()
		b.mu.Lock()
		if err != nil && (b.err == nil || b.ignoreErr) {
			b.err = err
		}
		b.mu.Unlock()
	}
}

func (b *barrier) Submit(t Task) {
	b.ch <- t
}

func (b *barrier) Close() error {
	b.mu.Lock()
	if b.closed {
		err := b.err
		b.mu.Unlock()
		return err
	}
	b.closed = true
	b.mu.Unlock()

	close(b.ch)
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

var _ Barrier = (*barrier)(nil)
