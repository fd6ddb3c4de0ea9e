// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build evering_debug

package driver

import "runtime"

// trackForLeakDetection arms a finalizer that reports an Op garbage
// collected without ever having its Release called — the closest Go
// analogue of the original's Drop-without-resolution panic, since a
// missed Release here only shows up when the GC happens to run the
// finalizer, not deterministically.
func trackForLeakDetection[P, E any](op *Op[P, E]) {
	runtime.SetFinalizer(op, func(o *Op[P, E]) {
		if !o.released {
			println("driver: Op finalized without Release — resource leak at", o.id.String())
		}
	})
}

func untrackForLeakDetection[P, E any](op *Op[P, E]) {
	runtime.SetFinalizer(op, nil)
}
