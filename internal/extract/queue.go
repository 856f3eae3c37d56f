package extract

import "sync"

// DefaultBatchSize bounds how many items a parallel extractor drains from its
// work queue before evaluating them concurrently.
const DefaultBatchSize = 8192

// uniqueQueue is a FIFO queue that ignores items already waiting in it.
// Once an item is popped it may be inserted again.
//
// uniqueQueue is not safe for concurrent use; see batchQueue.
type uniqueQueue[T comparable] struct {
	items []T
	set   map[T]struct{}
}

func newUniqueQueue[T comparable]() *uniqueQueue[T] {
	return &uniqueQueue[T]{
		items: make([]T, 0, 64),
		set:   make(map[T]struct{}),
	}
}

// Insert appends t unless it is already queued.
func (q *uniqueQueue[T]) Insert(t T) {
	if _, queued := q.set[t]; queued {
		return
	}
	q.set[t] = struct{}{}
	q.items = append(q.items, t)
}

// Extend inserts every item in order.
func (q *uniqueQueue[T]) Extend(ts []T) {
	for _, t := range ts {
		q.Insert(t)
	}
}

// Pop removes and returns the front item.
func (q *uniqueQueue[T]) Pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	t := q.items[0]
	delete(q.set, t)

	// Clear the slot so the backing array does not pin popped values.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return t, true
}

// Drain pops up to max items. max <= 0 drains everything.
func (q *uniqueQueue[T]) Drain(max int) []T {
	n := len(q.items)
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, n)
	for i := range out {
		out[i], _ = q.Pop()
	}
	return out
}

// Len returns the number of queued items.
func (q *uniqueQueue[T]) Len() int {
	return len(q.items)
}

// batchQueue guards a uniqueQueue with a mutex. Parallel extractors drain a
// batch, evaluate it on many goroutines, then extend the queue with the
// parents of whatever improved.
//
// Thread-safety: all methods are safe for concurrent use.
type batchQueue[T comparable] struct {
	mu sync.Mutex
	q  *uniqueQueue[T]
}

func newBatchQueue[T comparable]() *batchQueue[T] {
	return &batchQueue[T]{q: newUniqueQueue[T]()}
}

// Extend inserts every item in order.
func (b *batchQueue[T]) Extend(ts []T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.q.Extend(ts)
}

// Drain pops up to max items.
func (b *batchQueue[T]) Drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Drain(max)
}

// Len returns the number of queued items.
func (b *batchQueue[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Len()
}
