package stack

import (
	"sync"
	"sync/atomic"

	"github.com/min1324/lockfree/arena"
	"github.com/pkg/errors"
)

// Interface is satisfied by every stack in this package.
type Interface[T any] interface {
	Push(val T) error
	Pop() (val T, ok bool)
	Empty() bool
	Size() int
	Init()
}

// counted pointer: external count in the high half, node index in the low half.
func pack(count, idx uint32) uint64 {
	return uint64(count)<<32 | uint64(idx)
}

func unpack(p uint64) (count, idx uint32) {
	return uint32(p >> 32), uint32(p)
}

type node[T any] struct {
	value T
	// next is the head counted pointer as it was when this node was pushed.
	next atomic.Uint64
	// internal collects releases by pops that lost the race for this node.
	internal atomic.Int32
}

// Stack is a lock-free concurrent LIFO stack. Popped nodes are returned
// to the arena by split reference counting: the head carries an external
// count of pops currently reading the top node, each node carries an
// internal count of pops that gave up on it, and the node is freed when
// the two cancel out.
//
// The zero value is an empty stack backed by a default arena.
type Stack[T any] struct {
	once  sync.Once
	opts  []arena.Option
	nodes *arena.Arena[node[T]]

	head atomic.Uint64
	len  atomic.Int64
}

// New returns an empty stack whose nodes come from an arena configured by opts.
func New[T any](opts ...arena.Option) *Stack[T] {
	s := &Stack[T]{opts: opts}
	s.onceInit()
	return s
}

func (s *Stack[T]) onceInit() {
	s.once.Do(func() {
		s.nodes = arena.New[node[T]](s.opts...)
		s.opts = nil
	})
}

// Init empties the stack, releasing every node.
func (s *Stack[T]) Init() {
	for {
		if _, ok := s.Pop(); !ok {
			return
		}
	}
}

func (s *Stack[T]) Empty() bool {
	_, idx := unpack(s.head.Load())
	return idx == 0
}

// Size is the number of values pushed and not yet popped. Under
// contention it may lag the head by in-flight operations.
func (s *Stack[T]) Size() int {
	return int(s.len.Load())
}

// Stats reports node traffic of the backing arena.
func (s *Stack[T]) Stats() arena.Stats {
	s.onceInit()
	return s.nodes.Stats()
}

// Push puts val at the top of the stack. It fails only when no node can
// be allocated, in which case the stack is unchanged.
func (s *Stack[T]) Push(val T) error {
	s.onceInit()
	idx, err := s.nodes.Alloc()
	if err != nil {
		return errors.Wrap(err, "stack push")
	}
	slot := s.nodes.Get(idx)
	slot.value = val
	top := pack(1, idx)
	for {
		old := s.head.Load()
		slot.next.Store(old)
		if s.head.CompareAndSwap(old, top) {
			break
		}
	}
	s.len.Add(1)
	return nil
}

// Pop removes and returns the value at the top of the stack.
// ok is false if the stack is empty.
func (s *Stack[T]) Pop() (val T, ok bool) {
	s.onceInit()
	old := s.head.Load()
	for {
		old = s.acquire(old)
		count, idx := unpack(old)
		if idx == 0 {
			return
		}
		// the reference taken by acquire keeps slot from being freed
		slot := s.nodes.Get(idx)
		if s.head.CompareAndSwap(old, slot.next.Load()) {
			val = slot.value
			var zero T
			slot.value = zero
			s.len.Add(-1)
			// one reference is ours, one was the link from head
			if slot.internal.Add(int32(count)-2) == 0 {
				s.nodes.Free(idx)
			}
			return val, true
		}
		if slot.internal.Add(-1) == 0 {
			s.nodes.Free(idx)
		}
		old = s.head.Load()
	}
}

// acquire bumps the external count of the head node and returns the
// counted pointer now held. An empty head is returned untouched.
func (s *Stack[T]) acquire(old uint64) uint64 {
	for {
		count, idx := unpack(old)
		if idx == 0 {
			return old
		}
		held := pack(count+1, idx)
		if s.head.CompareAndSwap(old, held) {
			return held
		}
		old = s.head.Load()
	}
}
