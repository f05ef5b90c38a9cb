package stack_test

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/min1324/lockfree/arena"
	"github.com/min1324/lockfree/stack"
	"github.com/pkg/errors"
	"github.com/stvp/assert"
)

// race n goroutines on f, released together.
func race(n int, f func(i int)) {
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			f(i)
		}(i)
	}
	close(start)
	wg.Wait()
}

func TestSingleElementManyPoppers(t *testing.T) {
	t.Parallel()
	s := stack.New[int]()
	for round := 0; round < 2000; round++ {
		assert.Nil(t, s.Push(round))
		var got, empty int32
		race(3, func(int) {
			v, ok := s.Pop()
			if !ok {
				atomic.AddInt32(&empty, 1)
				return
			}
			if v != round {
				t.Errorf("round %d popped %d", round, v)
			}
			atomic.AddInt32(&got, 1)
		})
		if got != 1 || empty != 2 {
			t.Fatalf("round %d: value to %d poppers, empty to %d", round, got, empty)
		}
		// the node is freed exactly once, and before every popper returned
		st := s.Stats()
		if st.Live != 0 || st.Frees != int64(round+1) {
			t.Fatalf("round %d: stats %+v", round, st)
		}
	}
}

func TestPushPopOnEmpty(t *testing.T) {
	t.Parallel()
	s := stack.New[int]()
	var early, late int
	for round := 0; round < 2000; round++ {
		var popped int
		var ok bool
		race(2, func(i int) {
			if i == 0 {
				s.Push(42)
				return
			}
			popped, ok = s.Pop()
		})
		later, lok := s.Pop()
		switch {
		case ok && popped == 42 && !lok:
			early++
		case !ok && lok && later == 42:
			late++
		default:
			t.Fatalf("round %d: pop (%d,%v), later pop (%d,%v)", round, popped, ok, later, lok)
		}
	}
	t.Logf("pop saw the push %d times, missed it %d times", early, late)
	assert.Equal(t, s.Stats().Live, int64(0))
}

func TestStackFreesExactlyOnce(t *testing.T) {
	t.Parallel()
	// a small arena forces slot reuse, so a node freed while still
	// referenced would show up as a duplicate or a corrupted value.
	s := stack.New[int](arena.WithCapacity(arena.ChunkSize))
	procs := 4 * runtime.GOMAXPROCS(0)
	n := 5000
	seen := make([]int32, procs*n)
	race(procs, func(g int) {
		for j := 0; j < n; j++ {
			for {
				err := s.Push(g*n + j)
				if err == nil {
					break
				}
				if !errors.Is(err, arena.ErrAllocation) {
					t.Errorf("Push: %v", err)
					return
				}
				// full: make room
				if v, ok := s.Pop(); ok {
					atomic.AddInt32(&seen[v], 1)
				}
			}
			if j%3 != 0 {
				if v, ok := s.Pop(); ok {
					atomic.AddInt32(&seen[v], 1)
				}
			}
		}
	})
	for {
		v, ok := s.Pop()
		if !ok {
			break
		}
		seen[v]++
	}
	for v, c := range seen {
		if c != 1 {
			t.Fatalf("value %d popped %d times", v, c)
		}
	}
	st := s.Stats()
	assert.Equal(t, st.Live, int64(0))
	assert.Equal(t, st.Allocs, st.Frees)
}

func TestPushAllocationFailure(t *testing.T) {
	t.Parallel()
	for _, s := range []interface {
		stack.Interface[int]
		Stats() arena.Stats
	}{
		stack.New[int](arena.WithCapacity(1)),
		stack.NewDeferred[int](arena.WithCapacity(1)),
	} {
		for i := 0; i < arena.ChunkSize; i++ {
			assert.Nil(t, s.Push(i))
		}
		err := s.Push(-1)
		assert.True(t, errors.Is(err, arena.ErrAllocation))
		assert.Equal(t, s.Size(), arena.ChunkSize)

		// unchanged: the last successful push is still on top
		v, ok := s.Pop()
		assert.True(t, ok)
		assert.Equal(t, v, arena.ChunkSize-1)
		assert.Nil(t, s.Push(-1))
		v, _ = s.Pop()
		assert.Equal(t, v, -1)

		s.Init()
		assert.Equal(t, s.Stats().Live, int64(0))
	}
}

func TestDeferredPending(t *testing.T) {
	t.Parallel()
	s := stack.NewDeferred[int]()
	procs := 4 * runtime.GOMAXPROCS(0)
	race(procs, func(g int) {
		for j := 0; j < 1000; j++ {
			s.Push(j)
			s.Pop()
		}
	})
	// the goroutines' last pops may each have seen the others and left
	// their nodes pending; the next lone pop releases them.
	pending := s.Pending()
	live := s.Stats().Live
	assert.Equal(t, live, int64(pending+s.Size()))
	s.Init()
	assert.Equal(t, s.Pending(), 0)
	assert.Equal(t, s.Stats().Live, int64(0))
}
