// Package queue provides FIFO queues: SPSC, a lock-free queue for one
// producer and one consumer, and Mutex, a lock-based queue used as its
// baseline.
package queue

/*
type Interface[T any] interface {
	Push(val T) error
	Pop() (val T, ok bool)
	Empty() bool
	Size() int
	Init()
}

队列满空条件：
名称				空						满
SPSC		head == tail			arena用完(Push返回ErrAllocation)
Mutex		head == tail				无

SPSC:
tail始终指向一个空的dummy node,只有producer修改。
head指向第一个值,只有consumer修改。

push:	分配新dummy n, tail.value=val, tail.next=n, 最后 tail.Store(n)。
		value和next必须在tail发布之前写入。
pop:	head == tail.Load() 则空。否则取出head.value, head=head.next, 释放旧head。

两边都不需要cas: 只有tail在两个goroutine之间传递。
producer从不读head, consumer从不读tail指向的node。

角色检查:
go build -tags lfdebug 时, 第一个调用Push的goroutine成为producer,
第一个调用Pop/Empty/Init的成为consumer, 其他goroutine调用则panic(ErrRoleViolation)。
Handoff()清除角色,以便在外部同步后换goroutine。
*/
