// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package iox provides the non-blocking error sentinel and the adaptive
// backoff used where a ring or op-table operation would otherwise block:
// the ring's blocking Send/Recv wrappers and driver.Op.Wait. The driver's
// CAS loops retry immediately and use neither.
package iox

import (
	"errors"
	"runtime"
	"time"
)

// ErrWouldBlock is returned by a non-blocking operation that cannot make
// progress right now (ring full, ring empty).
var ErrWouldBlock = errors.New("iox: would block")

// IsWouldBlock reports whether err is or wraps ErrWouldBlock.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

// Backoff is a zero-value-usable adaptive wait: a handful of spins, then
// runtime.Gosched, then short sleeps with a capped exponential step. Used
// by every blocking wrapper that retries a non-blocking primitive until it
// succeeds, instead of busy-spinning forever or parking immediately.
type Backoff struct {
	n int
}

const (
	spinLimit   = 16
	schedLimit  = 32
	maxSleep    = 1 * time.Millisecond
	baseSleep   = 1 * time.Microsecond
)

// Wait advances the backoff by one step and sleeps/yields accordingly.
func (b *Backoff) Wait() {
	b.n++
	switch {
	case b.n <= spinLimit:
		// busy spin
	case b.n <= schedLimit:
		runtime.Gosched()
	default:
		step := b.n - schedLimit
		d := baseSleep << uint(min(step, 10))
		if d > maxSleep {
			d = maxSleep
		}
		time.Sleep(d)
	}
}

// Reset returns the backoff to its initial state after progress was made.
func (b *Backoff) Reset() {
	b.n = 0
}
