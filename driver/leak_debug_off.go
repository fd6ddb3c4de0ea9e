// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !evering_debug

package driver

func trackForLeakDetection[P, E any](op *Op[P, E])   {}
func untrackForLeakDetection[P, E any](op *Op[P, E]) {}
