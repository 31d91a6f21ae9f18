// Copyright 2026 lfqueue contributors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lfqueue

// pad is cache line padding used between independently-contended atomic
// fields to prevent false sharing.
type pad [64]byte
