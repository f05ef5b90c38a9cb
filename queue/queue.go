package queue

// Interface is satisfied by every queue in this package. For SPSC the
// usual single producer/consumer restrictions apply.
type Interface[T any] interface {
	Push(val T) error
	Pop() (val T, ok bool)
	Empty() bool
	Size() int
	Init()
}

var (
	_ Interface[int] = (*SPSC[int])(nil)
	_ Interface[int] = (*Mutex[int])(nil)
)
