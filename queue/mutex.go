package queue

import (
	"sync"
)

type listNode[T any] struct {
	value T
	next  *listNode[T]
}

// Mutex is an unbounded list queue with one mutex. Any number of
// goroutines may push and pop. The zero value is an empty queue.
type Mutex[T any] struct {
	mu sync.Mutex

	len  int
	head *listNode[T] // sentinel, the front value is head.next
	tail *listNode[T]
}

func (q *Mutex[T]) lazyInit() {
	if q.head == nil {
		q.head = &listNode[T]{}
		q.tail = q.head
	}
}

func (q *Mutex[T]) Init() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lazyInit()
	head := q.head
	q.head = q.tail
	q.len = 0
	for head != q.tail {
		n := head
		head = n.next
		n.next = nil
	}
}

func (q *Mutex[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head == q.tail
}

func (q *Mutex[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len
}

// Push never fails.
func (q *Mutex[T]) Push(val T) error {
	q.mu.Lock()
	q.lazyInit()
	slot := &listNode[T]{value: val}
	q.tail.next = slot
	q.tail = slot
	q.len++
	q.mu.Unlock()
	return nil
}

func (q *Mutex[T]) Pop() (val T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == q.tail {
		return
	}
	old := q.head
	q.head = old.next
	val = q.head.value
	var zero T
	q.head.value = zero
	old.next = nil
	q.len--
	return val, true
}
