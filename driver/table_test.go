// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package driver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ringbound/evering/driver"
)

// tableCtors builds the two Table implementations under the same contract
// test suite, so Locked and Unlocked are verified to behave identically.
func tableCtors() map[string]func() driver.Table[string, int] {
	return map[string]func() driver.Table[string, int]{
		"Locked":   func() driver.Table[string, int] { return driver.NewLocked[string, int]() },
		"Unlocked": func() driver.Table[string, int] { return driver.NewUnlocked[string, int](16) },
	}
}

func TestTableRegisterCompletePoll(t *testing.T) {
	for name, ctor := range tableCtors() {
		t.Run(name, func(t *testing.T) {
			tbl := ctor()
			id := tbl.Register(driver.Noop)
			_, _, ok := tbl.Poll(id)
			require.False(t, ok, "Poll before Complete reports ok == true")

			tbl.Complete(id, "payload", 7)
			payload, ext, ok := tbl.Poll(id)
			require.True(t, ok)
			require.Equal(t, "payload", payload)
			require.Equal(t, 7, ext)
			if _, _, ok := tbl.Poll(id); ok {
				t.Fatal("Poll after the payload was already taken reports ok == true")
			}
		})
	}
}

func TestTableRemoveBeforeCompleteStashesCancellation(t *testing.T) {
	for name, ctor := range tableCtors() {
		t.Run(name, func(t *testing.T) {
			tbl := ctor()
			ran := false
			id := tbl.Register(func() driver.Cancellation {
				return driver.Recycle(func() { ran = true })
			})
			tbl.Remove(id)
			if ran {
				t.Fatal("cancellation ran before the matching Complete arrived")
			}
			tbl.Complete(id, "late", 1)
			if !ran {
				t.Fatal("late Complete did not run the stashed cancellation")
			}
			if _, _, ok := tbl.Poll(id); ok {
				t.Fatal("Poll succeeded for a cancelled-then-completed id")
			}
		})
	}
}

func TestTableRemoveAfterCompleteFreesImmediately(t *testing.T) {
	for name, ctor := range tableCtors() {
		t.Run(name, func(t *testing.T) {
			tbl := ctor()
			ran := false
			id := tbl.Register(func() driver.Cancellation {
				return driver.Recycle(func() { ran = true })
			})
			tbl.Complete(id, "v", 0)
			tbl.Remove(id)
			if ran {
				t.Fatal("cancellation for an already-completed op should never run")
			}
		})
	}
}

func TestTableLateCompleteOnUnknownIdIsNoop(t *testing.T) {
	for name, ctor := range tableCtors() {
		t.Run(name, func(t *testing.T) {
			tbl := ctor()
			id := tbl.Register(driver.Noop)
			tbl.Complete(id, "x", 0)
			tbl.Poll(id) // free the slot

			// Completing the now-freed id again must not panic or resurrect it.
			tbl.Complete(id, "y", 0)
		})
	}
}

func TestTableCloseRunsCancellationsIncludingWaitingSlots(t *testing.T) {
	t.Run("runs stashed cancellations", func(t *testing.T) {
		for name, ctor := range tableCtors() {
			t.Run(name, func(t *testing.T) {
				tbl := ctor()
				ran := false
				id := tbl.Register(func() driver.Cancellation {
					return driver.Recycle(func() { ran = true })
				})
				tbl.Remove(id)
				tbl.Close()
				if !ran {
					t.Fatal("Close did not run the stashed cancellation")
				}
			})
		}
	})
	t.Run("runs the register-time cancel for a still-waiting op", func(t *testing.T) {
		for name, ctor := range tableCtors() {
			t.Run(name, func(t *testing.T) {
				tbl := ctor()
				ran := false
				tbl.Register(func() driver.Cancellation {
					return driver.Recycle(func() { ran = true })
				})
				tbl.Close()
				if !ran {
					t.Fatal("Close did not run the cancellation for a leaked waiting op")
				}
			})
		}
	})
}

func TestOpPollAndRelease(t *testing.T) {
	tbl := driver.NewLocked[string, int]()
	id := tbl.Register(driver.Noop)
	op := driver.NewOp(tbl, id)

	if _, _, ok := op.Poll(); ok {
		t.Fatal("Poll before Complete reports ok == true")
	}
	tbl.Complete(id, "done", 3)
	payload, ext, ok := op.Poll()
	if !ok || payload != "done" || ext != 3 {
		t.Fatalf("Poll = (%q, %d, %v), want (done, 3, true)", payload, ext, ok)
	}
	op.Release()
}

func TestOpReleaseTwicePanics(t *testing.T) {
	tbl := driver.NewLocked[string, int]()
	id := tbl.Register(driver.Noop)
	op := driver.NewOp(tbl, id)
	op.Release()
	defer func() {
		if recover() == nil {
			t.Fatal("second Release did not panic")
		}
	}()
	op.Release()
}

func TestOpWaitContextCancellation(t *testing.T) {
	tbl := driver.NewLocked[string, int]()
	id := tbl.Register(driver.Noop)
	op := driver.NewOp(tbl, id)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := op.Wait(ctx); err == nil {
		t.Fatal("Wait on an already-canceled context returned nil error")
	}
	op.Release()
}

func TestOpWaitResolvesOnComplete(t *testing.T) {
	tbl := driver.NewLocked[string, int]()
	id := tbl.Register(driver.Noop)
	op := driver.NewOp(tbl, id)

	go tbl.Complete(id, "async", 9)

	payload, ext, err := op.Wait(context.Background())
	if err != nil || payload != "async" || ext != 9 {
		t.Fatalf("Wait = (%q, %d, %v), want (async, 9, nil)", payload, ext, err)
	}
}

func TestUnlockedTryRegisterExhaustion(t *testing.T) {
	tbl := driver.NewUnlocked[int, struct{}](2)
	tbl.Register(driver.Noop)
	tbl.Register(driver.Noop)
	if _, err := tbl.TryRegister(driver.Noop); err != driver.ErrTableFull {
		t.Fatalf("TryRegister on exhausted table error = %v, want ErrTableFull", err)
	}
}
