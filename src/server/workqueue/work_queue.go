package workqueue

import (
	"sync"
	"wserver/src/server/datastructures"
	"wserver/src/server/scheduler"

	"github.com/pkg/errors"
)

var (
	ErrInvalidCapacity = errors.New("queue capacity must be at least 1")
	ErrNoScheduler     = errors.New("queue needs a scheduler")
)

type entry[T any] struct {
	value    T
	sizeHint uint64
}

// Exposes the queued entries to the scheduler without letting it touch them.
type view[T any] struct {
	queue *datastructures.CircularQueue[entry[T]]
}

func (v view[T]) Len() int {
	return v.queue.Len()
}

func (v view[T]) SizeHint(i int) uint64 {
	return v.queue.At(i).sizeHint
}

// A bounded, thread-safe work queue.
//
// Enqueue blocks while the queue is full and Dequeue blocks while it is empty.
// Which entry Dequeue returns is decided by the scheduler. Nothing is ever
// dropped.
type WorkQueue[T any] struct {
	mutex    *sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	entries   datastructures.CircularQueue[entry[T]]
	scheduler scheduler.Scheduler

	capacity int // immutable
}

func New[T any](capacity int, sc scheduler.Scheduler) (*WorkQueue[T], error) {
	if capacity < 1 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "got %d", capacity)
	}
	if sc == nil {
		return nil, ErrNoScheduler
	}

	mutex := &sync.Mutex{}

	return &WorkQueue[T]{
		mutex:    mutex,
		notFull:  sync.NewCond(mutex),
		notEmpty: sync.NewCond(mutex),

		entries:   datastructures.NewCircularQueue[entry[T]](capacity),
		scheduler: sc,

		capacity: capacity,
	}, nil
}

// Adds a value to the tail of the queue, waiting for a free slot if needed.
//
// The size hint is only looked at by size based schedulers.
func (q *WorkQueue[T]) Enqueue(value T, sizeHint uint64) {
	q.mutex.Lock()

	for q.entries.IsFull() {
		q.notFull.Wait()
	}

	q.entries.Enqueue(entry[T]{
		value:    value,
		sizeHint: sizeHint,
	})

	q.mutex.Unlock()
	q.notEmpty.Signal()
}

// Removes the entry picked by the scheduler, waiting for one to arrive if the
// queue is empty.
func (q *WorkQueue[T]) Dequeue() T {
	q.mutex.Lock()

	for q.entries.IsEmpty() {
		q.notEmpty.Wait()
	}

	i := q.scheduler.Select(view[T]{queue: &q.entries})
	e, ok := q.entries.RemoveAt(i)
	if !ok {
		q.mutex.Unlock()
		panic("workqueue: scheduler selected an index out of range")
	}

	q.mutex.Unlock()
	q.notFull.Signal()

	return e.value
}

// Number of entries currently queued.
func (q *WorkQueue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.entries.Len()
}

func (q *WorkQueue[T]) Capacity() int {
	return q.capacity
}

func (q *WorkQueue[T]) Policy() scheduler.QueuePolicy {
	return q.scheduler.Policy()
}
