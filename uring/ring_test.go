// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uring_test

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"testing/quick"
	"time"

	"github.com/ringbound/evering/internal/testrace"
	"github.com/ringbound/evering/uring"
)

func TestNewHeapRejectsNonPow2Capacity(t *testing.T) {
	if _, err := uring.NewHeap[int](3); err != uring.ErrCapacity {
		t.Fatalf("NewHeap(3) error = %v, want ErrCapacity", err)
	}
	if _, err := uring.NewHeap[int](1); err != uring.ErrCapacity {
		t.Fatalf("NewHeap(1) error = %v, want ErrCapacity", err)
	}
}

func TestTrySendTryRecvFIFO(t *testing.T) {
	r, err := uring.NewHeap[int](4)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := r.TrySend(i); err != nil {
			t.Fatalf("TrySend(%d): %v", i, err)
		}
	}
	if err := r.TrySend(99); err != uring.ErrWouldBlock {
		t.Fatalf("TrySend on full ring error = %v, want ErrWouldBlock", err)
	}
	for i := 0; i < 4; i++ {
		got, err := r.TryRecv()
		if err != nil {
			t.Fatalf("TryRecv: %v", err)
		}
		if got != i {
			t.Fatalf("TryRecv = %d, want %d", got, i)
		}
	}
	if _, err := r.TryRecv(); err != uring.ErrWouldBlock {
		t.Fatalf("TryRecv on empty ring error = %v, want ErrWouldBlock", err)
	}
}

func TestTrySendBulkTryRecvBulk(t *testing.T) {
	r, err := uring.NewHeap[int](8)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	n := r.TrySendBulk(items)
	if n != 8 {
		t.Fatalf("TrySendBulk = %d, want 8 (ring capacity)", n)
	}
	out := make([]int, 10)
	got := r.TryRecvBulk(out)
	if got != 8 {
		t.Fatalf("TryRecvBulk = %d, want 8", got)
	}
	for i := 0; i < 8; i++ {
		if out[i] != i+1 {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], i+1)
		}
	}
}

func TestIsEmptyIsFull(t *testing.T) {
	r, _ := uring.NewHeap[int](2)
	if !r.IsEmpty() {
		t.Fatal("fresh ring reports not empty")
	}
	r.TrySend(1)
	r.TrySend(2)
	if !r.IsFull() {
		t.Fatal("ring at capacity reports not full")
	}
	r.TryRecv()
	if r.IsFull() || r.IsEmpty() {
		t.Fatal("half-full ring reports full or empty")
	}
}

func TestSyncRingSendRecvAcrossGoroutines(t *testing.T) {
	testrace.SkipUnderRace(t)
	r, _ := uring.NewHeap[int](2)
	sync_ := uring.Sync(r)

	const n = 1000
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			sync_.Send(i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if got := sync_.Recv(); got != i {
				t.Errorf("Recv = %d, want %d", got, i)
			}
		}
	}()
	wg.Wait()
}

func TestAsyncRingRecvCanceled(t *testing.T) {
	r, _ := uring.NewHeap[int](2)
	async := uring.Async(r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := async.Recv(ctx); err == nil {
		t.Fatal("Recv on empty ring with expiring ctx returned nil error")
	}
}

func TestAsyncRingSendSucceedsBeforeCancel(t *testing.T) {
	r, _ := uring.NewHeap[int](2)
	async := uring.Async(r)

	ctx := context.Background()
	if err := async.Send(ctx, 42); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := async.Recv(ctx)
	if err != nil || got != 42 {
		t.Fatalf("Recv = (%d, %v), want (42, nil)", got, err)
	}
}

func TestNewOverBufferLayout(t *testing.T) {
	buf := make([]byte, 8*8) // 8 int64-sized slots
	r, err := uring.NewOverBuffer[int64](buf, 8)
	if err != nil {
		t.Fatalf("NewOverBuffer: %v", err)
	}
	if err := r.TrySend(123); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	got, err := r.TryRecv()
	if err != nil || got != 123 {
		t.Fatalf("TryRecv = (%d, %v), want (123, nil)", got, err)
	}
}

// TestPropertyRingFIFO proves that for any arbitrarily generated sequence
// of integers, a ring sized to hold the whole sequence delivers it back
// in exactly the order it was sent: no loss, duplication, or reordering.
func TestPropertyRingFIFO(t *testing.T) {
	property := func(payload []int) bool {
		capacity := 2
		for capacity < len(payload)+1 {
			capacity *= 2
		}
		r, err := uring.NewHeap[int](capacity)
		if err != nil {
			return false
		}
		if n := r.TrySendBulk(payload); n != len(payload) {
			return false
		}
		out := make([]int, len(payload))
		if got := r.TryRecvBulk(out); got != len(payload) {
			return false
		}
		if len(payload) == 0 {
			return true
		}
		return reflect.DeepEqual(payload, out)
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

func TestNewOverBufferTooSmall(t *testing.T) {
	buf := make([]byte, 4)
	if _, err := uring.NewOverBuffer[int64](buf, 8); err == nil {
		t.Fatal("NewOverBuffer with undersized buffer returned nil error")
	}
}
