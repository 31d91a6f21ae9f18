// Copyright 2026 lfqueue contributors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lfqueue

import (
	"sync"
	"testing"
)

// syncMapLen counts the entries in a sync.Map. Used only to check that
// nodeKeepAlive/dataKeepAlive are not leaking registrations.
func syncMapLen(m *sync.Map) int {
	n := 0
	m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// TestLeakFreedomSingleThreaded drains and closes a queue after a batch
// of pushes and pops and checks that every node allocated along the way
// (sentinels included) has been reclaimed, and that nodeKeepAlive holds
// no stale registrations for them. liveNodes and nodeKeepAlive are
// package-private bookkeeping that exist only for this kind of
// white-box check.
func TestLeakFreedomSingleThreaded(t *testing.T) {
	before := liveNodes.Load()
	beforeKeepAlive := syncMapLen(&nodeKeepAlive)

	q := New[int]()
	for i := range 1000 {
		q.Push(i)
	}
	for range 500 {
		if _, ok := q.TryPop(); !ok {
			t.Fatal("unexpected empty queue mid-drain")
		}
	}
	for i := 1000; i < 1500; i++ {
		q.Push(i)
	}
	q.Close()

	after := liveNodes.Load()
	if after != before {
		t.Fatalf("live node count changed: before=%d after=%d (leak or over-free)", before, after)
	}
	afterKeepAlive := syncMapLen(&nodeKeepAlive)
	if afterKeepAlive != beforeKeepAlive {
		t.Fatalf("nodeKeepAlive entry count changed: before=%d after=%d", beforeKeepAlive, afterKeepAlive)
	}
}

// TestLeakFreedomEmptyQueue checks that constructing and immediately
// closing a queue leaves no nodes outstanding and no stray
// nodeKeepAlive registration behind.
func TestLeakFreedomEmptyQueue(t *testing.T) {
	before := liveNodes.Load()
	beforeKeepAlive := syncMapLen(&nodeKeepAlive)

	q := New[string]()
	q.Close()

	after := liveNodes.Load()
	if after != before {
		t.Fatalf("live node count changed: before=%d after=%d", before, after)
	}
	afterKeepAlive := syncMapLen(&nodeKeepAlive)
	if afterKeepAlive != beforeKeepAlive {
		t.Fatalf("nodeKeepAlive entry count changed: before=%d after=%d", beforeKeepAlive, afterKeepAlive)
	}
}

// TestDataKeepAliveBalanced checks that pushing and fully draining a
// queue leaves no stray dataKeepAlive registration for any of the
// values that passed through it.
func TestDataKeepAliveBalanced(t *testing.T) {
	before := syncMapLen(&dataKeepAlive)

	q := New[int]()
	for i := range 2000 {
		q.Push(i)
	}
	for range 2000 {
		if _, ok := q.TryPop(); !ok {
			t.Fatal("unexpected empty queue mid-drain")
		}
	}
	q.Close()

	after := syncMapLen(&dataKeepAlive)
	if after != before {
		t.Fatalf("dataKeepAlive entry count changed: before=%d after=%d", before, after)
	}
}

// TestPackCounterRoundTrip exercises the bitfield packing the node
// counter relies on across the boundary values a 30-bit signed field and
// a 2-bit unsigned field can take.
func TestPackCounterRoundTrip(t *testing.T) {
	cases := []struct{ internal, external int32 }{
		{0, 0}, {0, 2}, {1, 2}, {-1, 2}, {-1, 1}, {-1, 0},
		{536870911, 3},   // max positive 30-bit value
		{-536870912, 3},  // min negative 30-bit value
		{12345, 1},
		{-12345, 1},
	}
	for _, c := range cases {
		bits := packCounter(c.internal, c.external)
		gotInternal, gotExternal := unpackCounter(bits)
		if gotInternal != c.internal || gotExternal != c.external {
			t.Fatalf("packCounter(%d,%d) round-trip: got (%d,%d)",
				c.internal, c.external, gotInternal, gotExternal)
		}
	}
}
