// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package token

import (
	"reflect"
	"sync"

	"github.com/ringbound/evering/mem"
)

// Metadata discriminates a sized payload from an unsized slice payload,
// mirroring how a fat pointer's extra word (length) travels separately
// from the allocator offset.
type Metadata struct {
	isSlice bool
	length  int
}

// SizedMetadata describes a single, statically-sized value.
func SizedMetadata() Metadata { return Metadata{} }

// SliceMetadata describes a slice of length n.
func SliceMetadata(n int) Metadata { return Metadata{isSlice: true, length: n} }

// IsSlice reports whether the metadata describes a slice payload.
func (m Metadata) IsSlice() bool { return m.isSlice }

// Len returns the slice length; zero for sized metadata.
func (m Metadata) Len() int { return m.length }

var fingerprintCache sync.Map // reflect.Type -> Fingerprint

// Of computes (and caches) the fingerprint for T: T's own Fingerprint()
// when T implements Fingerprinter, otherwise a hash of its reflect type
// name. Distinct instantiations of a generic Go type produce distinct
// strings (reflect renders type arguments), so Of[Foo[int]]() and
// Of[Foo[string]]() never collide.
func Of[T any]() Fingerprint {
	var zero T
	rt := reflect.TypeOf(&zero).Elem()
	if v, ok := fingerprintCache.Load(rt); ok {
		return v.(Fingerprint)
	}
	fp := fingerprintString(rt.String())
	if f, ok := any(zero).(Fingerprinter); ok {
		fp = f.Fingerprint()
	}
	fingerprintCache.Store(rt, fp)
	return fp
}

// Token is a type-erased handle to a value allocated through an
// mem.Allocator: an offset-and-metadata pair plus the fingerprint of the
// type it was created from. Safe to copy across a ring transport; meant
// to be identified back into a TokenOf[T] by the receiver.
type Token struct {
	Off      int64
	Meta     mem.Meta
	Metadata Metadata
	TypeID   Fingerprint
}

// Null is the token denoting "no payload" (e.g. a Send with no body).
func Null() Token {
	return Token{TypeID: Of[struct{}]()}
}

// IsNull reports whether t carries no payload.
func (t Token) IsNull() bool { return t.TypeID == Of[struct{}]() && t.Off == mem.Null }

// TokenOf is a Token known, at the Go type level, to hold a T.
type TokenOf[T any] struct {
	Off      int64
	Meta     mem.Meta
	Metadata Metadata
}

// Erase discards T's static type, producing a Token suitable for sending
// across a ring to a receiver that will re-identify it.
func (t TokenOf[T]) Erase() Token {
	return Token{Off: t.Off, Meta: t.Meta, Metadata: t.Metadata, TypeID: Of[T]()}
}

// Box reconstructs a PBox[T] from the token's offset, given the same
// allocator that produced it.
func (t TokenOf[T]) Box(alloc mem.Allocator) mem.PBox[T] {
	return mem.NewPBoxFromOffset(alloc, mem.Rel[T](t.Off), t.Meta)
}

// NewTokenOf wraps a PBox's offset/meta as a TokenOf ready to be sent.
func NewTokenOf[T any](b *mem.PBox[T]) TokenOf[T] {
	return TokenOf[T]{Off: int64(b.Offset()), Meta: b.Meta(), Metadata: SizedMetadata()}
}

// Semantics marks how ownership of a message's payload transfers across
// a channel. Evering presently defines only Move; richer semantics
// (borrow, copy-on-send) are left for a future revision.
type Semantics interface{ semantics() }

// Move is the Semantics marker for full ownership transfer: once a
// TokenOf carrying Move crosses the ring, only the receiver may box it
// back and free it.
type Move struct{}

func (Move) semantics() {}

// Identify checks tok's fingerprint against T and, on match, narrows it
// back to a TokenOf[T]. Returns false (and the zero TokenOf) on mismatch
// — the caller must not guess at a type a token wasn't tagged with.
func Identify[T any](tok Token) (TokenOf[T], bool) {
	if tok.TypeID != Of[T]() {
		return TokenOf[T]{}, false
	}
	return TokenOf[T]{Off: tok.Off, Meta: tok.Meta, Metadata: tok.Metadata}, true
}
