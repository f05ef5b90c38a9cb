//go:build lfdebug

package queue

import (
	"sync/atomic"

	"github.com/min1324/lockfree/internal/gid"
	"github.com/pkg/errors"
)

// roles pins the producer and consumer to the first goroutine that
// takes each role.
type roles struct {
	producerID atomic.Uint64
	consumerID atomic.Uint64
}

func (r *roles) producer() {
	claim(&r.producerID, "producer")
}

func (r *roles) consumer() {
	claim(&r.consumerID, "consumer")
}

func (r *roles) release() {
	r.producerID.Store(0)
	r.consumerID.Store(0)
}

func claim(owner *atomic.Uint64, role string) {
	id := gid.Get()
	if owner.CompareAndSwap(0, id) {
		return
	}
	if held := owner.Load(); held != id {
		panic(errors.Wrapf(ErrRoleViolation, "%s call from goroutine %d, role held by %d", role, id, held))
	}
}
