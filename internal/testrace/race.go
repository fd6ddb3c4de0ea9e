// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package testrace

import "testing"

func skipUnderRace(tb testing.TB) {
	tb.Skip("skip: lock-free structure relies on cross-variable memory ordering the race detector cannot model")
}
