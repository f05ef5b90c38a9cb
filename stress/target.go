package stress

import (
	"github.com/min1324/lockfree/arena"
	"github.com/min1324/lockfree/queue"
	"github.com/min1324/lockfree/stack"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Structure names accepted by Config.Structure.
const (
	Stack      = "stack"
	Deferred   = "deferred"
	MutexStack = "mutex-stack"
	SPSC       = "spsc"
	MutexQueue = "mutex-queue"
)

// Structures lists every structure Run can drive.
func Structures() []string {
	return []string{Stack, Deferred, MutexStack, SPSC, MutexQueue}
}

// target adapts one structure to the harness.
type target struct {
	push  func(int) error
	pop   func() (int, bool)
	stats func() arena.Stats // nil when nodes are left to the GC
	// quiesce runs after all workers stopped, before the final drain.
	quiesce func()
	// fifo targets must hand out each producer's values in push order.
	fifo bool
	// resident is the number of nodes live in an empty structure.
	resident int64
}

func newTarget(cfg Config, log *zerolog.Logger) (*target, error) {
	opts := []arena.Option{arena.WithLogger(log)}
	if cfg.Capacity > 0 {
		opts = append(opts, arena.WithCapacity(cfg.Capacity))
	}
	nop := func() {}
	switch cfg.Structure {
	case Stack:
		s := stack.New[int](opts...)
		return &target{push: s.Push, pop: s.Pop, stats: s.Stats, quiesce: nop}, nil
	case Deferred:
		s := stack.NewDeferred[int](opts...)
		return &target{push: s.Push, pop: s.Pop, stats: s.Stats, quiesce: nop}, nil
	case MutexStack:
		var s stack.Mutex[int]
		return &target{push: s.Push, pop: s.Pop, quiesce: nop}, nil
	case SPSC:
		q := queue.NewSPSC[int](opts...)
		return &target{push: q.Push, pop: q.Pop, stats: q.Stats, quiesce: q.Handoff,
			fifo: true, resident: 1}, nil
	case MutexQueue:
		var q queue.Mutex[int]
		return &target{push: q.Push, pop: q.Pop, quiesce: nop, fifo: true}, nil
	}
	return nil, errors.Wrapf(ErrConfig, "unknown structure %q", cfg.Structure)
}
