package arena

import (
	"github.com/rs/zerolog"
)

const (
	chunkBits = 10
	ChunkSize = 1 << chunkBits // slots per chunk
	chunkMask = ChunkSize - 1

	DefaultCapacity = 1 << 20 // slots, when no capacity is given
	MaxCapacity     = 1 << 28 // indices must leave the high half of a counted pointer free
)

// Option configures an Arena before first use.
type Option func(*config)

type config struct {
	capacity int
	logger   *zerolog.Logger
}

// WithCapacity bounds the number of live slots. It is rounded up to a
// whole chunk and clamped to MaxCapacity; n < 1 keeps DefaultCapacity.
func WithCapacity(n int) Option {
	return func(c *config) {
		c.capacity = n
	}
}

// WithLogger sets where growth and exhaustion are reported.
func WithLogger(l *zerolog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

func (c *config) apply(opts []Option) {
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	if c.capacity < 1 {
		c.capacity = DefaultCapacity
	}
	if c.capacity > MaxCapacity {
		c.capacity = MaxCapacity
	}
	c.capacity = (c.capacity + chunkMask) &^ chunkMask
}
