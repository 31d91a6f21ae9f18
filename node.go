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

// node is one slot in the queue's linked list.
//
// data holds the bit pattern of a *T once a producer has published into
// this slot, or zero while unpublished. counter is the packed
// {internal_count, external_counters} pair (see packCounter). next is
// the counted reference to the successor node; its zero value {0, 0}
// means "no successor installed yet". next is the first field after the
// leading pad (offset 64), so it is 16-byte aligned whenever the node is,
// as the double-word CAS on it requires.
type node[T any] struct {
	_       pad
	next    atomix.Uint128
	_       pad
	data    atomix.Uintptr
	_       pad
	counter atomix.Int32
	_       pad
}

// liveNodes counts nodes that have been allocated but not yet reclaimed.
// It exists purely for white-box leak tests (see internal_test.go); no
// production code path reads it.
var liveNodes atomix.Int64

// nodeKeepAlive roots every live node against the garbage collector,
// keyed by the same bit pattern the atomic fields above store it under.
// head, tail, and next hold a *node[T] only as a uint64 inside an
// atomix.Uint128, which the precise collector does not scan as a
// pointer; without this table a node reachable solely through that bit
// pattern could be collected and its memory reused while the queue
// still points at it. Entries are added the moment a node is allocated
// and removed the moment it stops being reachable by any means (either
// discarded before ever going live, or reclaimed by freeNode), so a
// node is always rooted here for exactly as long as its bit pattern
// could still be dereferenced.
var nodeKeepAlive sync.Map

// newNode allocates a fresh, unpublished node owned by both queue slots:
// its external count starts at 2 (one per slot), its internal count at
// 0.
func newNode[T any]() *node[T] {
	n := &node[T]{}
	n.counter.StoreRelaxed(packCounter(0, 2))
	nodeKeepAlive.Store(ptrToWord(n), n)
	liveNodes.Add(1)
	return n
}

// discardNode reclaims a node that never became reachable from the
// queue (a speculative "next sentinel" allocation that a helper beat us
// to installing, or the final sentinel at Close, where the no-concurrent
// -access contract makes the refcount dance unnecessary).
func discardNode[T any](n *node[T]) {
	nodeKeepAlive.Delete(ptrToWord(n))
	liveNodes.Add(-1)
}

// freeNode is the terminal reclamation step: called exactly once, by
// whichever decrement (releaseRef or freeExternalCounter) drives the
// node's counter to {0, 0}. That transition is itself CAS-guarded, so
// exactly one caller ever observes it. Dropping the node from
// nodeKeepAlive here is what actually makes it collectible again; Go's
// garbage collector reclaims the node's memory once that happens and no
// other root remains.
func freeNode[T any](n *node[T]) {
	nodeKeepAlive.Delete(ptrToWord(n))
	liveNodes.Add(-1)
}

const (
	externalBits = 2
	internalBits = 32 - externalBits
	externalMask = int32(1)<<externalBits - 1
)

// packCounter packs the node counter's {internal_count:30,
// external_counters:2} bitfield pair into a single int32, matching the
// original C++ bitfield layout bit-for-bit.
func packCounter(internal, external int32) int32 {
	return (external&externalMask)<<internalBits | (internal & (1<<internalBits - 1))
}

// unpackCounter splits a packed node counter back into its fields,
// sign-extending the 30-bit internal count back to a full int32.
func unpackCounter(bits int32) (internal, external int32) {
	external = (bits >> internalBits) & externalMask
	internal = bits << externalBits >> externalBits
	return
}

// countedRef is the Go-side value of a counted reference
// {external_count, node pointer}. It is never stored atomically as a
// struct; atomic storage always goes through a raw atomix.Uint128 with
// the count in the low word and the node pointer's bit pattern in the
// high word.
type countedRef[T any] struct {
	count uint64
	node  *node[T]
}

func ptrToWord[T any](n *node[T]) uint64 {
	return uint64(uintptr(unsafe.Pointer(n)))
}

func wordToPtr[T any](w uint64) *node[T] {
	return (*node[T])(unsafe.Pointer(uintptr(w)))
}

// acquire increments slot's external count by one via a CAS loop and
// returns the post-increment counted reference. This is the only legal
// way to obtain a node pointer that will be dereferenced; the caller
// owes exactly one matching release, via releaseRef or
// freeExternalCounter.
func acquire[T any](slot *atomix.Uint128) countedRef[T] {
	sw := spin.Wait{}
	for {
		lo, hi := slot.LoadAcquire()
		newLo := lo + 1
		if slot.CompareAndSwapAcqRel(lo, hi, newLo, hi) {
			return countedRef[T]{count: newLo, node: wordToPtr[T](hi)}
		}
		sw.Once()
	}
}

// releaseRef CAS-decrements a node's internal count. Called by every
// thread that acquired a reference but did not retire the slot itself.
func releaseRef[T any](n *node[T]) {
	sw := spin.Wait{}
	for {
		old := n.counter.LoadAcquire()
		internal, external := unpackCounter(old)
		next := packCounter(internal-1, external)
		if n.counter.CompareAndSwapAcqRel(old, next) {
			newInternal, newExternal := unpackCounter(next)
			if newInternal == 0 && newExternal == 0 {
				freeNode(n)
			}
			return
		}
		sw.Once()
	}
}

// freeExternalCounter is called by the thread that successfully
// CAS-replaced a slot (head or tail) with a new counted reference. old
// holds the counted reference that was just retired; its count minus
// the 2-reference baseline (the slot's own live reference and the
// retiring thread's own acquisition) is folded into the internal count.
func freeExternalCounter[T any](old countedRef[T]) {
	n := old.node
	countIncrease := int32(old.count) - 2

	sw := spin.Wait{}
	for {
		oldBits := n.counter.LoadAcquire()
		internal, external := unpackCounter(oldBits)
		newBits := packCounter(internal+countIncrease, external-1)
		if n.counter.CompareAndSwapAcqRel(oldBits, newBits) {
			newInternal, newExternal := unpackCounter(newBits)
			if newInternal == 0 && newExternal == 0 {
				freeNode(n)
			}
			return
		}
		sw.Once()
	}
}
