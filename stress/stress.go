// Package stress drives a stack or queue from many goroutines and
// checks that every pushed value comes out exactly once, in order for
// queues, and that no node outlives the final drain.
package stress

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/min1324/lockfree/arena"
	"github.com/min1324/lockfree/set"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrConfig    = errors.New("stress: invalid config")
	ErrInvariant = errors.New("stress: invariant violated")
)

// how often workers look at the context
const checkEvery = 1 << 10

// maxReported bounds Report.Missing.
const maxReported = 16

type Config struct {
	Structure   string
	Producers   int
	Consumers   int
	PerProducer int
	// Capacity bounds the node arena; 0 keeps the arena default.
	Capacity int
}

func (c *Config) Validate() error {
	switch {
	case c.Producers < 1 || c.Consumers < 1:
		return errors.Wrapf(ErrConfig, "need at least one producer and one consumer, have %d/%d",
			c.Producers, c.Consumers)
	case c.PerProducer < 0:
		return errors.Wrapf(ErrConfig, "negative values per producer %d", c.PerProducer)
	case c.Structure == SPSC && (c.Producers != 1 || c.Consumers != 1):
		return errors.Wrapf(ErrConfig, "%s takes exactly one producer and one consumer", SPSC)
	case c.Capacity < 0 || c.Capacity > arena.MaxCapacity:
		return errors.Wrapf(ErrConfig, "capacity %d out of range", c.Capacity)
	}
	if c.Producers*c.PerProducer < 0 {
		return errors.Wrapf(ErrConfig, "%d producers x %d values overflows", c.Producers, c.PerProducer)
	}
	for _, s := range Structures() {
		if s == c.Structure {
			return nil
		}
	}
	return errors.Wrapf(ErrConfig, "unknown structure %q", c.Structure)
}

type Report struct {
	Structure string
	Pushed    int64
	Popped    int64
	// Full counts pushes retried because the arena was exhausted.
	Full int64

	Duplicates      int
	MissingCount    int
	Missing         []int // first few missing values
	OrderViolations int
	// Leaked is the number of nodes still live after the final drain.
	Leaked int64

	Stats   arena.Stats
	Elapsed time.Duration
}

// Err describes the first invariant the run broke, or returns nil.
func (r *Report) Err() error {
	switch {
	case r.Duplicates > 0:
		return errors.Wrapf(ErrInvariant, "%s: %d values popped more than once", r.Structure, r.Duplicates)
	case r.MissingCount > 0:
		return errors.Wrapf(ErrInvariant, "%s: %d values never popped, first %v", r.Structure, r.MissingCount, r.Missing)
	case r.OrderViolations > 0:
		return errors.Wrapf(ErrInvariant, "%s: %d values out of push order", r.Structure, r.OrderViolations)
	case r.Leaked != 0:
		return errors.Wrapf(ErrInvariant, "%s: %d nodes live after drain", r.Structure, r.Leaked)
	}
	return nil
}

type consumer struct {
	values     set.IntSet
	popped     int
	duplicates int
	// last value seen per producer, -1 before the first
	last            []int
	orderViolations int
}

func (c *consumer) record(v int, cfg *Config, fifo bool) {
	c.popped++
	if !c.values.Add(v) {
		c.duplicates++
	}
	if !fifo || cfg.PerProducer == 0 {
		return
	}
	p := v / cfg.PerProducer
	if v <= c.last[p] {
		c.orderViolations++
	}
	c.last[p] = v
}

// Run pushes PerProducer distinct values from each producer while the
// consumers pop until every producer finished and the structure is
// empty. The returned error reports configuration problems,
// cancellation and push failures; broken invariants are in Report.Err.
func Run(ctx context.Context, cfg Config, log zerolog.Logger) (Report, error) {
	rep := Report{Structure: cfg.Structure}
	if err := cfg.Validate(); err != nil {
		return rep, err
	}
	tgt, err := newTarget(cfg, &log)
	if err != nil {
		return rep, err
	}
	log = log.With().Str("structure", cfg.Structure).Logger()
	log.Info().Int("producers", cfg.Producers).Int("consumers", cfg.Consumers).
		Int("per_producer", cfg.PerProducer).Int("capacity", cfg.Capacity).Msg("stress run started")

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	var running atomic.Int32
	running.Store(int32(cfg.Producers))
	var pushed, popped, full atomic.Int64

	for p := 0; p < cfg.Producers; p++ {
		p := p
		g.Go(func() error {
			defer running.Add(-1)
			base := p * cfg.PerProducer
			for i := 0; i < cfg.PerProducer; i++ {
				if i%checkEvery == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				for {
					err := tgt.push(base + i)
					if err == nil {
						break
					}
					if !errors.Is(err, arena.ErrAllocation) {
						return errors.Wrapf(err, "producer %d", p)
					}
					full.Add(1)
					if gctx.Err() != nil {
						return gctx.Err()
					}
					runtime.Gosched()
				}
				pushed.Add(1)
			}
			log.Debug().Int("producer", p).Msg("producer done")
			return nil
		})
	}

	consumers := make([]consumer, cfg.Consumers)
	for c := range consumers {
		cs := &consumers[c]
		cs.last = make([]int, cfg.Producers)
		for i := range cs.last {
			cs.last[i] = -1
		}
		c := c
		g.Go(func() error {
			for i := 0; ; i++ {
				if i%checkEvery == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				// read before popping: an empty pop after the last push means drained
				done := running.Load() == 0
				v, ok := tgt.pop()
				if !ok {
					if done {
						break
					}
					runtime.Gosched()
					continue
				}
				popped.Add(1)
				cs.record(v, &cfg, tgt.fifo)
			}
			log.Debug().Int("consumer", c).Int("popped", cs.popped).Msg("consumer done")
			return nil
		})
	}

	err = g.Wait()
	rep.Pushed, rep.Popped, rep.Full = pushed.Load(), popped.Load(), full.Load()
	rep.Elapsed = time.Since(start)
	if err != nil {
		log.Error().Err(err).Msg("stress run aborted")
		return rep, errors.Wrap(err, "stress run")
	}

	// single goroutine from here on
	tgt.quiesce()
	late := consumer{last: make([]int, cfg.Producers)}
	for i := range late.last {
		late.last[i] = -1
	}
	for {
		v, ok := tgt.pop()
		if !ok {
			break
		}
		late.record(v, &cfg, tgt.fifo)
	}
	if late.popped > 0 {
		log.Warn().Int("values", late.popped).Msg("values left after consumers stopped")
		rep.Popped += int64(late.popped)
	}

	var seen set.IntSet
	for _, cs := range append(consumers, late) {
		rep.OrderViolations += cs.orderViolations
		rep.Duplicates += cs.duplicates + len(seen.UnionWith(&cs.values))
	}
	missing := seen.Missing(cfg.Producers * cfg.PerProducer)
	rep.MissingCount = len(missing)
	if len(missing) > maxReported {
		missing = missing[:maxReported]
	}
	rep.Missing = missing

	if tgt.stats != nil {
		rep.Stats = tgt.stats()
		rep.Leaked = rep.Stats.Live - tgt.resident
	}

	ev := log.Info()
	if rep.Err() != nil {
		ev = log.Error().Err(rep.Err())
	}
	ev.Int64("pushed", rep.Pushed).Int64("popped", rep.Popped).Int64("full", rep.Full).
		Int64("allocs", rep.Stats.Allocs).Int64("frees", rep.Stats.Frees).
		Dur("elapsed", rep.Elapsed).Msg("stress run finished")
	return rep, nil
}
