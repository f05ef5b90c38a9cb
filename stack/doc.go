// Package stack provides concurrent LIFO stacks whose nodes live in an
// index-addressed arena and are returned to it explicitly once no
// concurrent Pop can still read them.
package stack

/*
type Interface[T any] interface {
	Push(val T) error
	Pop() (val T, ok bool)
	Empty() bool
	Size() int
	Init()
}

实现:
名称			回收方式						说明
Stack		split reference counting	推荐
Deferred	threads-in-pop + 待删除链表	  	Pop并发持续时待删除链表可能一直增长
Mutex		GC							单锁链表栈,测试参照

Stack:
head:	external<<32 | index, 一次cas同时更新计数和节点。
node:	value, next(push时看到的head,含计数), internal计数。

push:	分配node, next=head, cas(head, next, 1<<32|node).
pop:	1. old=head
		2. cas(head, old, old+1<<32) 取得引用,head为空则直接返回。
		3. cas(head, old, node.next):
			成功: 取出value, internal += external-2, 结果为0则释放。
			失败: internal -= 1, 结果为0则释放, 回到1。

pop成功后head恢复为node.next原样(含计数), 不是(1,next):
下层节点被push盖住之前已被取得的引用仍然记在计数里。

Deferred:
threadsInPop: 正在pop的数量。
toBeDeleted:  已出栈但不能立即释放的node链表。
只有自己在pop时才释放待删除链表,否则挂到链表上。
*/
