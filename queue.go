// Copyright 2026 lfqueue contributors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lfqueue

import (
	"sync"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// dataKeepAlive roots every pushed value against the garbage collector,
// keyed by the same bit pattern a node's data field stores it under. A
// published value lives only as a uintptr inside an atomix.Uintptr
// between Push boxing it and TryPop unboxing it, which the precise
// collector does not see as a pointer; a value reachable solely through
// that bit pattern could otherwise be collected and its memory reused
// while it still sits in the queue. Push adds the entry before the
// value's address can become visible to any other goroutine; TryPop
// removes it the moment the value has been copied out and the bit
// pattern is no longer needed.
var dataKeepAlive sync.Map

// Queue is an unbounded, multi-producer multi-consumer lock-free FIFO.
//
// Queue is built on a linked list of nodes connected through counted
// references, with split-reference-count reclamation: a 2-bit external
// counter on every node tracks how many of head/tail still point at it,
// and a 30-bit internal counter absorbs the references other threads
// release as they finish using it. A node is freed by whichever
// decrement drives both counters to zero.
//
// Queue never bounds memory, never blocks, and provides no backpressure,
// iteration, length, or bulk operations — an arbitrary number of
// in-flight Push/TryPop calls from any number of goroutines always makes
// progress (the queue is lock-free, though not every individual
// goroutine is guaranteed to avoid starvation).
//
// The zero Queue is not usable; construct one with New.
type Queue[T any] struct {
	_    pad
	head atomix.Uint128 // counted reference {external_count, *node[T]}
	_    pad
	tail atomix.Uint128 // counted reference {external_count, *node[T]}
	_    pad
}

// New creates an empty queue. The queue starts with a single sentinel
// node referenced by both head and tail, each holding one external
// count against it.
func New[T any]() *Queue[T] {
	sentinel := newNode[T]()
	word := ptrToWord(sentinel)

	q := &Queue[T]{}
	q.head.StoreRelaxed(1, word)
	q.tail.StoreRelaxed(1, word)
	return q
}

// Push appends v to the logical tail. Push is lock-free and never
// blocks; it never fails except via whatever allocation-failure
// discipline the Go runtime itself uses (a panic on true memory
// exhaustion). The value cell and the first speculative next node are
// allocated up front, before any shared state is touched; a replacement
// next node is allocated each time Push helps another producer and
// retries.
func (q *Queue[T]) Push(v T) {
	newData := new(T)
	*newData = v
	dataWord := uintptr(unsafe.Pointer(newData))
	dataKeepAlive.Store(dataWord, newData)

	spare := newNode[T]()

	sw := spin.Wait{}
	for {
		oldTail := acquire[T](&q.tail)

		if oldTail.node.data.CompareAndSwapAcqRel(0, dataWord) {
			// We published the value. Install the successor (or adopt
			// the one a helper already installed) and advance tail.
			target := countedRef[T]{count: 1, node: spare}
			if !oldTail.node.next.CompareAndSwapAcqRel(0, 0, target.count, ptrToWord(target.node)) {
				discardNode(spare)
				count, word := oldTail.node.next.LoadAcquire()
				target = countedRef[T]{count: count, node: wordToPtr[T](word)}
			}
			swingTail(q, oldTail, target)
			return
		}

		// Another producer won the data race; help it along, then
		// retry publishing our own value.
		target := countedRef[T]{count: 1, node: spare}
		if oldTail.node.next.CompareAndSwapAcqRel(0, 0, target.count, ptrToWord(target.node)) {
			spare = newNode[T]() // our node is now live in the list; mint a new spare
		} else {
			discardNode(spare)
			count, word := oldTail.node.next.LoadAcquire()
			target = countedRef[T]{count: count, node: wordToPtr[T](word)}
			spare = newNode[T]()
		}
		swingTail(q, oldTail, target)
		sw.Once()
	}
}

// TryPop removes the oldest published element, if any. TryPop is
// lock-free and never blocks; ok is false only when the queue
// was observed empty (head and tail referring to the same node) at some
// point during the call — never an error condition.
func (q *Queue[T]) TryPop() (result T, ok bool) {
	sw := spin.Wait{}
	for {
		oldHead := acquire[T](&q.head)

		_, tailWord := q.tail.LoadAcquire()
		if ptrToWord(oldHead.node) == tailWord {
			releaseRef(oldHead.node)
			var zero T
			return zero, false
		}

		nextCount, nextWord := oldHead.node.next.LoadAcquire()

		if q.head.CompareAndSwapAcqRel(oldHead.count, ptrToWord(oldHead.node), nextCount, nextWord) {
			dataWord := exchangeToZero(&oldHead.node.data)
			value := *(*T)(unsafe.Pointer(dataWord))
			dataKeepAlive.Delete(dataWord)
			freeExternalCounter(oldHead)
			return value, true
		}

		releaseRef(oldHead.node)
		sw.Once()
	}
}

// Close destroys the queue. It drains every remaining element via
// TryPop and reclaims the last sentinel node. Close requires that no
// other goroutine is concurrently calling Push or TryPop on this queue;
// calling it under concurrent access is undefined behavior.
func (q *Queue[T]) Close() {
	for {
		if _, ok := q.TryPop(); !ok {
			break
		}
	}
	_, word := q.head.LoadAcquire()
	discardNode(wordToPtr[T](word))
}

// swingTail advances tail from oldTail to newTail exactly once across
// all concurrent helpers. It always consumes the acquisition behind
// oldTail.node: via freeExternalCounter if this call wins the race to
// retire the slot, or via releaseRef if another thread already advanced
// tail past it.
//
// The count passed to freeExternalCounter must be the external count
// actually swapped out by the winning CAS, not oldTail.count as
// captured at the top of the caller's retry loop: other threads may
// have called acquire on this same still-unswung node in the meantime,
// raising the count further before this call's own CAS succeeds. Using
// a stale count under-credits the node's internal counter by the gap
// between the two, letting the node hit {0,0} and get freed while
// another thread that legitimately still holds a reference to it has
// not released yet.
func swingTail[T any](q *Queue[T], oldTail, newTail countedRef[T]) {
	sw := spin.Wait{}
	for {
		lo, hi := q.tail.LoadAcquire()
		if hi != ptrToWord(oldTail.node) {
			releaseRef(oldTail.node)
			return
		}
		if q.tail.CompareAndSwapAcqRel(lo, hi, newTail.count, ptrToWord(newTail.node)) {
			freeExternalCounter[T](countedRef[T]{count: lo, node: oldTail.node})
			return
		}
		sw.Once()
	}
}

// exchangeToZero atomically swaps slot's value out for zero and returns
// the value that was there. By the time TryPop calls this, exactly one
// goroutine holds the right to do so (the one that just won the head
// CAS past this node), so the loop below always completes on its first
// iteration; it remains a CAS loop to match this package's uniform
// retry idiom rather than special-case the uncontended path.
func exchangeToZero(slot *atomix.Uintptr) uintptr {
	sw := spin.Wait{}
	for {
		old := slot.LoadAcquire()
		if slot.CompareAndSwapAcqRel(old, 0) {
			return old
		}
		sw.Once()
	}
}
