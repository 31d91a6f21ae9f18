// Copyright 2026 lfqueue contributors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build !race

package lfqueue

// RaceEnabled is false when the race detector is not active.
const RaceEnabled = false
