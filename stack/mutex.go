package stack

import (
	"sync"
)

type listNode[T any] struct {
	value T
	next  *listNode[T]
}

// Mutex is an unbounded list stack guarded by a single mutex.
// The zero value is an empty stack.
type Mutex[T any] struct {
	mu  sync.Mutex
	len int
	top *listNode[T]
}

func (s *Mutex[T]) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	top := s.top
	s.top = nil
	s.len = 0
	for top != nil {
		n := top
		top = n.next
		n.next = nil
	}
}

func (s *Mutex[T]) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.top == nil
}

func (s *Mutex[T]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len
}

// Push never fails.
func (s *Mutex[T]) Push(val T) error {
	s.mu.Lock()
	s.top = &listNode[T]{value: val, next: s.top}
	s.len++
	s.mu.Unlock()
	return nil
}

func (s *Mutex[T]) Pop() (val T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.top == nil {
		return
	}
	n := s.top
	s.top = n.next
	s.len--
	n.next = nil
	return n.value, true
}
