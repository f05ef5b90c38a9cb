package queue

import (
	"sync"
	"sync/atomic"

	"github.com/min1324/lockfree/arena"
	"github.com/pkg/errors"
)

// ErrRoleViolation is the panic value when a queue built with the
// lfdebug tag is pushed from a second producer or popped from a second
// consumer.
var ErrRoleViolation = errors.New("queue: single producer/consumer role violated")

type spscNode[T any] struct {
	value T
	next  uint32
}

// SPSC is a lock-free unbounded FIFO queue for exactly one producer
// goroutine and one consumer goroutine.
//
// There is always one more node than values: tail is an empty dummy
// the producer fills before publishing its successor. head == tail
// means empty.
//
// Push must only be called by the producer, and Pop, Empty and Init
// only by the consumer. Build with -tags lfdebug to have violations
// panic with ErrRoleViolation.
//
// The zero value is an empty queue backed by a default arena.
type SPSC[T any] struct {
	once  sync.Once
	opts  []arena.Option
	nodes *arena.Arena[spscNode[T]]
	roles roles

	// head is only accessed by the consumer.
	head uint32
	_    [cacheLinePad]byte
	// tail is written by the producer and read by the consumer, so
	// both sides access it atomically.
	tail atomic.Uint32
	_    [cacheLinePad]byte

	len atomic.Int64
}

const cacheLinePad = 64

// NewSPSC returns an empty queue whose nodes come from an arena configured by opts.
func NewSPSC[T any](opts ...arena.Option) *SPSC[T] {
	q := &SPSC[T]{opts: opts}
	q.onceInit()
	return q
}

func (q *SPSC[T]) onceInit() {
	q.once.Do(func() {
		q.init()
	})
}

func (q *SPSC[T]) init() {
	q.nodes = arena.New[spscNode[T]](q.opts...)
	q.opts = nil
	dummy, err := q.nodes.Alloc()
	if err != nil {
		// a fresh arena always has room for one slot
		panic(errors.Wrap(err, "queue: dummy node"))
	}
	q.head = dummy
	q.tail.Store(dummy)
}

// Push appends val. It fails only when no node can be allocated, in
// which case the queue is unchanged. Producer only.
func (q *SPSC[T]) Push(val T) error {
	q.onceInit()
	q.roles.producer()
	next, err := q.nodes.Alloc()
	if err != nil {
		return errors.Wrap(err, "queue push")
	}
	tail := q.tail.Load()
	slot := q.nodes.Get(tail)
	slot.value = val
	slot.next = next
	q.len.Add(1)
	// publishes value and next together with the new dummy
	q.tail.Store(next)
	return nil
}

// Pop removes and returns the value at the front of the queue.
// ok is false if the queue is empty. Consumer only.
func (q *SPSC[T]) Pop() (val T, ok bool) {
	q.onceInit()
	q.roles.consumer()
	head := q.head
	if head == q.tail.Load() {
		return
	}
	slot := q.nodes.Get(head)
	val = slot.value
	q.head = slot.next
	q.len.Add(-1)
	q.nodes.Free(head)
	return val, true
}

// Empty reports whether the consumer would find nothing to pop. Consumer only.
func (q *SPSC[T]) Empty() bool {
	q.onceInit()
	q.roles.consumer()
	return q.head == q.tail.Load()
}

// Size is the number of values pushed and not yet popped, as last
// published by either side.
func (q *SPSC[T]) Size() int {
	return int(q.len.Load())
}

// Init drains the queue. Consumer only.
func (q *SPSC[T]) Init() {
	for {
		if _, ok := q.Pop(); !ok {
			return
		}
	}
}

// Handoff forgets which goroutines own the producer and consumer
// roles, so either may move to another goroutine. The caller must
// order the old and new owners itself, e.g. through a channel or
// sync.WaitGroup. Without lfdebug it does nothing.
func (q *SPSC[T]) Handoff() {
	q.roles.release()
}

// Stats reports node traffic of the backing arena. The dummy node
// counts as live.
func (q *SPSC[T]) Stats() arena.Stats {
	q.onceInit()
	return q.nodes.Stats()
}
