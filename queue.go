package daide

// fifo is an unbounded first-in first-out queue.
type fifo[T any] struct {
	items []T
	head  int
}

func (q *fifo[T]) push(v T) {
	q.items = append(q.items, v)
}

func (q *fifo[T]) pop() (T, bool) {
	var zero T
	if q.head == len(q.items) {
		return zero, false
	}

	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	switch {
	case q.head == len(q.items):
		// Reuse the backing array once drained.
		q.items = q.items[:0]
		q.head = 0
	case q.head > len(q.items)/2:
		// Slide the live tail down so a queue that never drains stays
		// proportional to what it holds.
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}

func (q *fifo[T]) len() int {
	return len(q.items) - q.head
}

func (q *fifo[T]) clear() {
	clear(q.items)
	q.items = nil
	q.head = 0
}
