package arena

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrAllocation is returned by Alloc once every slot of the arena is live.
var ErrAllocation = errors.New("arena: allocation failed")

const (
	slotFree uint32 = iota
	slotLive
)

// Stats counts slot traffic since the arena was created.
type Stats struct {
	Allocs int64
	Frees  int64
	Live   int64
}

type chunk[N any] struct {
	slots [ChunkSize]N
	link  [ChunkSize]atomic.Uint32 // next index on the free list
	state [ChunkSize]atomic.Uint32
}

// Arena is a bounded pool of N slots addressed by uint32 index.
// Index 0 is never handed out and stands for nil.
//
// Alloc and Free may be called from any number of goroutines.
// The zero value is an empty arena with DefaultCapacity.
type Arena[N any] struct {
	once sync.Once
	opts []Option
	log  zerolog.Logger

	capacity uint32
	chunks   []atomic.Pointer[chunk[N]]

	// free is the head of the free list: stamp<<32 | index.
	// The stamp is bumped on every push so a stale head never matches.
	free atomic.Uint64
	// top is the number of indices ever carved out of chunks.
	top atomic.Uint32

	allocs atomic.Int64
	frees  atomic.Int64
}

// New returns an arena configured by opts.
func New[N any](opts ...Option) *Arena[N] {
	a := &Arena[N]{opts: opts}
	a.onceInit()
	return a
}

func (a *Arena[N]) onceInit() {
	a.once.Do(func() {
		a.init()
	})
}

func (a *Arena[N]) init() {
	var c config
	c.apply(a.opts)
	a.opts = nil
	if c.logger != nil {
		a.log = *c.logger
	} else {
		a.log = zerolog.Nop()
	}
	a.capacity = uint32(c.capacity)
	a.chunks = make([]atomic.Pointer[chunk[N]], c.capacity/ChunkSize)
}

// Cap returns the maximum number of live slots.
func (a *Arena[N]) Cap() int {
	a.onceInit()
	return int(a.capacity)
}

func locate(idx uint32) (c, off uint32) {
	p := idx - 1
	return p >> chunkBits, p & chunkMask
}

func (a *Arena[N]) chunkOf(idx uint32) (*chunk[N], uint32) {
	c, off := locate(idx)
	return a.chunks[c].Load(), off
}

// Get returns the slot for idx, or nil for index 0. The pointer stays
// valid for the life of the arena; its contents belong to whoever
// allocated idx.
func (a *Arena[N]) Get(idx uint32) *N {
	if idx == 0 {
		return nil
	}
	a.onceInit()
	ch, off := a.chunkOf(idx)
	return &ch.slots[off]
}

// Alloc hands out an unused index. The slot holds the zero N.
func (a *Arena[N]) Alloc() (uint32, error) {
	a.onceInit()
	for {
		if idx, ok := a.reuse(); ok {
			return idx, nil
		}
		top := a.top.Load()
		if top >= a.capacity {
			// a concurrent Free may have refilled the list meanwhile
			if uint32(a.free.Load()) != 0 {
				continue
			}
			a.log.Warn().Uint32("capacity", a.capacity).Msg("arena exhausted")
			return 0, errors.Wrapf(ErrAllocation, "all %d slots live", a.capacity)
		}
		if a.top.CompareAndSwap(top, top+1) {
			idx := top + 1
			ch, off := a.grow(idx)
			a.markLive(ch, off, idx)
			return idx, nil
		}
	}
}

// reuse pops the free list.
func (a *Arena[N]) reuse() (uint32, bool) {
	for {
		tag := a.free.Load()
		idx := uint32(tag)
		if idx == 0 {
			return 0, false
		}
		ch, off := a.chunkOf(idx)
		next := ch.link[off].Load()
		if a.free.CompareAndSwap(tag, tag&^0xffffffff|uint64(next)) {
			a.markLive(ch, off, idx)
			return idx, true
		}
	}
}

// grow makes sure the chunk holding idx exists.
func (a *Arena[N]) grow(idx uint32) (*chunk[N], uint32) {
	c, off := locate(idx)
	if ch := a.chunks[c].Load(); ch != nil {
		return ch, off
	}
	fresh := new(chunk[N])
	if a.chunks[c].CompareAndSwap(nil, fresh) {
		a.log.Debug().Uint32("chunk", c).Int("slots", ChunkSize).Msg("arena grown")
		return fresh, off
	}
	return a.chunks[c].Load(), off
}

func (a *Arena[N]) markLive(ch *chunk[N], off, idx uint32) {
	if !ch.state[off].CompareAndSwap(slotFree, slotLive) {
		panic(errors.Errorf("arena: slot %d handed out twice", idx))
	}
	a.allocs.Add(1)
}

// Free returns idx to the arena and clears its slot. The caller must be
// the last holder of idx; freeing a slot that is not live panics.
func (a *Arena[N]) Free(idx uint32) {
	if idx == 0 {
		panic(errors.New("arena: free of nil index"))
	}
	a.onceInit()
	if idx > a.capacity {
		panic(errors.Errorf("arena: free of slot %d beyond capacity %d", idx, a.capacity))
	}
	ch, off := a.chunkOf(idx)
	if ch == nil || !ch.state[off].CompareAndSwap(slotLive, slotFree) {
		panic(errors.Errorf("arena: double free of slot %d", idx))
	}
	var zero N
	ch.slots[off] = zero
	a.frees.Add(1)
	for {
		tag := a.free.Load()
		ch.link[off].Store(uint32(tag))
		next := (tag>>32+1)<<32 | uint64(idx)
		if a.free.CompareAndSwap(tag, next) {
			return
		}
	}
}

// Live reports whether idx is currently allocated.
func (a *Arena[N]) Live(idx uint32) bool {
	if idx == 0 || idx > a.top.Load() {
		return false
	}
	ch, off := a.chunkOf(idx)
	return ch != nil && ch.state[off].Load() == slotLive
}

// Stats reports allocation counters. Live is Allocs minus Frees.
func (a *Arena[N]) Stats() Stats {
	allocs := a.allocs.Load()
	frees := a.frees.Load()
	return Stats{Allocs: allocs, Frees: frees, Live: allocs - frees}
}
