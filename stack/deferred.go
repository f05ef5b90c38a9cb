package stack

import (
	"sync"
	"sync/atomic"

	"github.com/min1324/lockfree/arena"
	"github.com/pkg/errors"
)

type dnode[T any] struct {
	value T
	// next links the stack while the node is pushed, and the
	// pending list once it has been popped.
	next atomic.Uint32
}

// Deferred is a lock-free concurrent LIFO stack that reclaims popped
// nodes only when no other Pop is running. Nodes popped while other
// pops are in flight wait on a pending list; under sustained Pop
// contention that list can grow until the arena is exhausted, which is
// why Stack is preferred.
//
// The zero value is an empty stack backed by a default arena.
type Deferred[T any] struct {
	once  sync.Once
	opts  []arena.Option
	nodes *arena.Arena[dnode[T]]

	head atomic.Uint32
	len  atomic.Int64

	threadsInPop atomic.Int32
	toBeDeleted  atomic.Uint32
}

// NewDeferred returns an empty stack whose nodes come from an arena configured by opts.
func NewDeferred[T any](opts ...arena.Option) *Deferred[T] {
	s := &Deferred[T]{opts: opts}
	s.onceInit()
	return s
}

func (s *Deferred[T]) onceInit() {
	s.once.Do(func() {
		s.nodes = arena.New[dnode[T]](s.opts...)
		s.opts = nil
	})
}

// Init empties the stack. Nodes still pending are released as soon as
// the last concurrent Pop leaves.
func (s *Deferred[T]) Init() {
	for {
		if _, ok := s.Pop(); !ok {
			return
		}
	}
}

func (s *Deferred[T]) Empty() bool {
	return s.head.Load() == 0
}

func (s *Deferred[T]) Size() int {
	return int(s.len.Load())
}

func (s *Deferred[T]) Stats() arena.Stats {
	s.onceInit()
	return s.nodes.Stats()
}

// Pending is the number of popped nodes not yet returned to the arena.
// The count is only exact while no Pop is running.
func (s *Deferred[T]) Pending() int {
	s.onceInit()
	n := 0
	for idx := s.toBeDeleted.Load(); idx != 0; idx = s.nodes.Get(idx).next.Load() {
		n++
	}
	return n
}

// Push puts val at the top of the stack.
func (s *Deferred[T]) Push(val T) error {
	s.onceInit()
	idx, err := s.nodes.Alloc()
	if err != nil {
		return errors.Wrap(err, "stack push")
	}
	slot := s.nodes.Get(idx)
	slot.value = val
	for {
		top := s.head.Load()
		slot.next.Store(top)
		if s.head.CompareAndSwap(top, idx) {
			break
		}
	}
	s.len.Add(1)
	return nil
}

// Pop removes and returns the value at the top of the stack.
func (s *Deferred[T]) Pop() (val T, ok bool) {
	s.onceInit()
	s.threadsInPop.Add(1)
	var idx uint32
	for {
		idx = s.head.Load()
		if idx == 0 {
			break
		}
		// idx cannot be recycled while we are counted in threadsInPop
		if s.head.CompareAndSwap(idx, s.nodes.Get(idx).next.Load()) {
			break
		}
	}
	if idx != 0 {
		slot := s.nodes.Get(idx)
		val, ok = slot.value, true
		var zero T
		slot.value = zero
		s.len.Add(-1)
	}
	s.tryReclaim(idx)
	return
}

func (s *Deferred[T]) tryReclaim(idx uint32) {
	if s.threadsInPop.Load() == 1 {
		pending := s.toBeDeleted.Swap(0)
		if s.threadsInPop.Add(-1) == 0 {
			s.freeChain(pending)
		} else if pending != 0 {
			s.chainAll(pending)
		}
		// nobody else was popping when idx was unlinked
		if idx != 0 {
			s.nodes.Free(idx)
		}
		return
	}
	if idx != 0 {
		s.chain(idx, idx)
	}
	s.threadsInPop.Add(-1)
}

func (s *Deferred[T]) freeChain(idx uint32) {
	for idx != 0 {
		next := s.nodes.Get(idx).next.Load()
		s.nodes.Free(idx)
		idx = next
	}
}

func (s *Deferred[T]) chainAll(first uint32) {
	last := first
	for {
		next := s.nodes.Get(last).next.Load()
		if next == 0 {
			break
		}
		last = next
	}
	s.chain(first, last)
}

func (s *Deferred[T]) chain(first, last uint32) {
	tail := s.nodes.Get(last)
	for {
		old := s.toBeDeleted.Load()
		tail.next.Store(old)
		if s.toBeDeleted.CompareAndSwap(old, first) {
			return
		}
	}
}
