// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package evering is an io_uring-inspired asynchronous submit/complete
// substrate for request/response traffic between threads, goroutines, or
// separate processes sharing a memory-mapped region.
//
// # Architecture
//
//   - Transport: a paired ring buffer ([github.com/ringbound/evering/uring])
//     carrying tagged submissions one way and tagged completions the other.
//   - Matching: an operation driver ([github.com/ringbound/evering/driver])
//     that correlates a completion back to the caller awaiting it, with
//     explicit cancellation semantics when a caller stops waiting first.
//   - Memory: an offset-relative pointer and allocator layer
//     ([github.com/ringbound/evering/mem], [github.com/ringbound/evering/halloc])
//     so a payload can live in memory both sides can dereference, plus a
//     type-fingerprinted token layer ([github.com/ringbound/evering/token])
//     so a handle can be validated against the type the far side expects.
//   - Sharing: a shared-memory region layer ([github.com/ringbound/evering/shm])
//     that maps a named region, arbitrates first-creator-initializes, and
//     refcounts attachments so the last detacher unlinks it.
//
// A Bridge ties the transport and the driver together: SubmitBridge
// registers an operation and sends its payload, CompleteBridge drains
// submissions and resolves them, and the two halves can live in different
// goroutines of one process. Both halves share one in-process
// driver.Table and ring counters, so a Bridge does not span processes.
package evering
