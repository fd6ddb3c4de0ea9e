// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package testrace provides a single SkipUnderRace helper shared by every
// package's tests, for the lock-free structures whose correctness depends
// on cross-variable acquire/release ordering the race detector cannot see
// (it tracks per-variable happens-before, not the store-release/load-acquire
// pairing a ring or a Treiber stack relies on).
package testrace

import "testing"

// SkipUnderRace skips tb when run under -race.
func SkipUnderRace(tb testing.TB) {
	tb.Helper()
	skipUnderRace(tb)
}
