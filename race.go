// Copyright 2026 lfqueue contributors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build race

package lfqueue

// RaceEnabled is true when the race detector is active.
//
// Lock-free algorithms synchronized purely through atomic memory
// ordering produce apparent races that Go's race detector cannot
// distinguish from real bugs: it tracks explicit synchronization
// primitives (mutex, channel, WaitGroup) but not the happens-before
// relationships established by acquire/release fences on independent
// atomics. Concurrent tests are skipped under the race detector and
// rely on non-raced stress runs and manual memory-model review instead.
const RaceEnabled = true
