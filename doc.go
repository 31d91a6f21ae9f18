// Copyright 2026 lfqueue contributors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package lfqueue provides an unbounded, multi-producer multi-consumer
// lock-free FIFO queue.
//
// # Quick Start
//
//	q := lfqueue.New[int]()
//	q.Push(1)
//	q.Push(2)
//
//	v, ok := q.TryPop()
//	if !ok {
//	    // queue was empty at some point during the call
//	}
//
// # Algorithm
//
// Queue is a Michael & Scott-style linked list, with one addition that
// makes it safe to reclaim nodes without a garbage collector watching
// every pointer in the system: split reference counting. Every node
// carries a packed counter pair — a 2-bit external count of how many of
// the queue's two slots (head, tail) still point at it, and a 30-bit
// internal count that absorbs the acquisitions released by threads that
// passed through it. A node is freed the instant both halves reach
// zero, by whichever decrement got there.
//
// Push allocates the new element and a first speculative next sentinel
// before touching any shared state, so a Push whose initial allocation
// fails leaves the queue exactly as it was. After that, Push either wins
// the race to publish its value, or helps whichever producer did win
// finish installing a successor, allocates a replacement sentinel, and
// retries.
//
// The helping step is not an optimization. A producer that is preempted
// between publishing its data and installing the successor node would
// otherwise stall every consumer behind it — nobody else could ever pop
// that slot's predecessor. Any producer that observes the gap installs
// the successor itself, then the original publisher (once it resumes)
// simply discovers the job already done. That is what makes this queue
// lock-free rather than merely obstruction-free.
//
// # Thread Safety
//
// All operations are safe for any number of concurrent callers, with no
// access pattern restrictions — unlike the bounded ring-buffer family
// (SPSC/MPSC/SPMC/MPMC) this package's ecosystem sibling lfq provides,
// Queue has exactly one variant because an unbounded linked list has no
// capacity-driven reason to specialize by producer/consumer count.
//
// # Non-goals
//
// Queue never bounds memory and never applies backpressure: Push always
// succeeds (short of the Go runtime itself running out of memory).
// TryPop never blocks on an empty queue; it returns ok=false instead,
// which is not an error. There is no Len, no iteration, no Clear, and no
// bulk push/pop — accurate lengths and safe iteration both require
// synchronization this algorithm deliberately does not pay for. Track
// counts in application logic if you need them.
//
// # Destruction
//
// Close drains the queue and reclaims the final sentinel node. It
// assumes exclusive access: calling Close while another goroutine might
// still call Push or TryPop is undefined behavior, identical to freeing
// memory that's still in use.
package lfqueue
