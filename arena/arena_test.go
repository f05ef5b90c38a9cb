package arena_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/min1324/lockfree/arena"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stvp/assert"
)

type slot struct {
	owner int
	value int
}

func TestZeroValue(t *testing.T) {
	t.Parallel()
	var a arena.Arena[slot]
	assert.Equal(t, a.Cap(), arena.DefaultCapacity)
	assert.Nil(t, a.Get(0))

	idx, err := a.Alloc()
	assert.Nil(t, err)
	assert.Equal(t, idx, uint32(1))
	assert.True(t, a.Live(idx))

	a.Get(idx).value = 42
	a.Free(idx)
	assert.True(t, !a.Live(idx))

	// freed slots come back cleared, most recent first
	idx2, err := a.Alloc()
	assert.Nil(t, err)
	assert.Equal(t, idx2, idx)
	assert.Equal(t, a.Get(idx2).value, 0)

	a.Free(idx2)
	assert.Equal(t, a.Stats(), arena.Stats{Allocs: 2, Frees: 2, Live: 0})
}

func TestCapacityRounding(t *testing.T) {
	t.Parallel()
	assert.Equal(t, arena.New[slot](arena.WithCapacity(1)).Cap(), arena.ChunkSize)
	assert.Equal(t, arena.New[slot](arena.WithCapacity(arena.ChunkSize+1)).Cap(), 2*arena.ChunkSize)
	assert.Equal(t, arena.New[slot](arena.WithCapacity(0)).Cap(), arena.DefaultCapacity)
	assert.Equal(t, arena.New[slot](arena.WithCapacity(arena.MaxCapacity*2)).Cap(), arena.MaxCapacity)
}

func TestExhaustion(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	a := arena.New[slot](arena.WithCapacity(1), arena.WithLogger(&logger))

	idxs := make([]uint32, 0, a.Cap())
	for i := 0; i < a.Cap(); i++ {
		idx, err := a.Alloc()
		require.NoError(t, err)
		idxs = append(idxs, idx)
	}
	before := a.Stats()

	_, err := a.Alloc()
	assert.True(t, errors.Is(err, arena.ErrAllocation))
	assert.Equal(t, errors.Cause(err), arena.ErrAllocation)
	assert.Equal(t, a.Stats(), before)
	assert.True(t, bytes.Contains(buf.Bytes(), []byte("arena exhausted")))

	// one free makes room for exactly one more
	a.Free(idxs[7])
	idx, err := a.Alloc()
	assert.Nil(t, err)
	assert.Equal(t, idx, idxs[7])
	_, err = a.Alloc()
	assert.True(t, errors.Is(err, arena.ErrAllocation))
}

func TestDoubleFree(t *testing.T) {
	t.Parallel()
	a := arena.New[slot]()
	idx, err := a.Alloc()
	require.NoError(t, err)
	a.Free(idx)
	require.Panics(t, func() { a.Free(idx) })
	require.Panics(t, func() { a.Free(0) })
	require.Panics(t, func() { a.Free(uint32(a.Cap()) + 1) })
}

func TestConcurrentAllocFree(t *testing.T) {
	t.Parallel()
	a := arena.New[slot](arena.WithCapacity(4 * arena.ChunkSize))
	var wg sync.WaitGroup

	n := 1000
	m := 32
	for g := 1; g <= m; g++ {
		wg.Add(1)
		go func(owner int) {
			defer wg.Done()
			held := make([]uint32, 0, 8)
			for i := 0; i < n; i++ {
				idx, err := a.Alloc()
				if err != nil {
					t.Errorf("alloc: %v", err)
					return
				}
				s := a.Get(idx)
				if s.owner != 0 {
					t.Errorf("slot %d handed to %d while owned by %d", idx, owner, s.owner)
				}
				s.owner = owner
				held = append(held, idx)
				if len(held) == cap(held) {
					for _, h := range held {
						if o := a.Get(h).owner; o != owner {
							t.Errorf("slot %d owner want:%d, real:%d", h, owner, o)
						}
						a.Free(h)
					}
					held = held[:0]
				}
			}
			for _, h := range held {
				a.Free(h)
			}
		}(g)
	}
	wg.Wait()

	st := a.Stats()
	assert.Equal(t, st.Live, int64(0))
	assert.Equal(t, st.Allocs, int64(n*m))
	assert.Equal(t, st.Frees, int64(n*m))
}

func BenchmarkAllocFree(b *testing.B) {
	a := arena.New[slot]()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx, err := a.Alloc()
			if err != nil {
				b.Fatal(err)
			}
			a.Free(idx)
		}
	})
}
