package datastructures

// A bounded circular queue.
//
// Items keep their arrival order. Besides the usual head removal, an item can
// be removed from any position without disturbing the order of the others.
type CircularQueue[T any] struct {
	buffer []T
	head   int
	len    int
}

// Create a new circular queue.
func NewCircularQueue[T any](capacity int) CircularQueue[T] {
	return CircularQueue[T]{
		buffer: make([]T, capacity),
	}
}

func (q *CircularQueue[T]) Enqueue(item T) bool {
	if q.IsFull() {
		return false
	}

	tail := (q.head + q.len) % len(q.buffer)
	q.buffer[tail] = item

	q.len++

	return true
}

func (q *CircularQueue[T]) Dequeue() (val T, ok bool) {
	return q.RemoveAt(0)
}

// Returns the i-th item in arrival order. The caller must ensure 0 <= i < Len().
func (q *CircularQueue[T]) At(i int) T {
	return q.buffer[q.slot(i)]
}

// Removes the i-th item in arrival order, keeping the relative order of the
// remaining items.
//
// Returns false if i is out of range.
func (q *CircularQueue[T]) RemoveAt(i int) (val T, ok bool) {
	if i < 0 || i >= q.len {
		ok = false
		return
	}

	val = q.At(i)
	ok = true

	var zero T
	if i < q.len/2 {
		// Shift the items in front of i one slot towards the tail.
		for j := i; j > 0; j-- {
			q.buffer[q.slot(j)] = q.buffer[q.slot(j-1)]
		}
		q.buffer[q.head] = zero // avoid memory leak
		q.head = (q.head + 1) % len(q.buffer)
	} else {
		// Shift the items behind i one slot towards the head.
		for j := i; j < q.len-1; j++ {
			q.buffer[q.slot(j)] = q.buffer[q.slot(j+1)]
		}
		q.buffer[q.slot(q.len-1)] = zero
	}
	q.len--

	return
}

func (q *CircularQueue[T]) Len() int {
	return q.len
}

func (q *CircularQueue[T]) Capacity() int {
	return len(q.buffer)
}

func (q *CircularQueue[T]) IsEmpty() bool {
	return q.len == 0
}

func (q *CircularQueue[T]) IsFull() bool {
	return q.len == len(q.buffer)
}

func (q *CircularQueue[T]) slot(i int) int {
	return (q.head + i) % len(q.buffer)
}
