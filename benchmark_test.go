// Copyright 2026 lfqueue contributors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lfqueue_test

import (
	"sync"
	"testing"

	"code.hybscloud.com/atomix"
	"go.hybscloud.com/lfqueue"
)

// =============================================================================
// Single-threaded baseline
// =============================================================================

func BenchmarkSingleThreaded_PushPop(b *testing.B) {
	q := lfqueue.New[int]()

	b.ResetTimer()
	for i := range b.N {
		q.Push(i)
		q.TryPop()
	}
}

func BenchmarkSingleThreaded_PushBatch(b *testing.B) {
	q := lfqueue.New[int]()

	b.ResetTimer()
	for i := range b.N {
		q.Push(i)
	}
	b.StopTimer()
	for {
		if _, ok := q.TryPop(); !ok {
			break
		}
	}
}

// =============================================================================
// Contended MPMC
// =============================================================================

func benchmarkMPMC(b *testing.B, numP, numC int) {
	q := lfqueue.New[int]()
	perProducer := b.N / numP
	if perProducer == 0 {
		perProducer = 1
	}

	var producers sync.WaitGroup
	var consumers sync.WaitGroup
	var consumed atomix.Int64
	target := int64(perProducer * numP)

	b.ResetTimer()
	for range numP {
		producers.Add(1)
		go func() {
			defer producers.Done()
			for i := range perProducer {
				q.Push(i)
			}
		}()
	}
	for range numC {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				if _, ok := q.TryPop(); ok {
					if consumed.Add(1) >= target {
						return
					}
				} else if consumed.Load() >= target {
					return
				}
			}
		}()
	}
	producers.Wait()
	consumers.Wait()
}

func BenchmarkMPMC_2P2C(b *testing.B) { benchmarkMPMC(b, 2, 2) }
func BenchmarkMPMC_4P4C(b *testing.B) { benchmarkMPMC(b, 4, 4) }
func BenchmarkMPMC_8P1C(b *testing.B) { benchmarkMPMC(b, 8, 1) }
func BenchmarkMPMC_1P8C(b *testing.B) { benchmarkMPMC(b, 1, 8) }
