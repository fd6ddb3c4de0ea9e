// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uring

// Either holds exactly one of a submission-side or completion-side value,
// for code that needs to pass either direction's payload through a
// single slot (a log, a test harness, a debug dump) without caring which
// ring it came from.
type Either[SQE, CQE any] struct {
	sqe   SQE
	cqe   CQE
	isCQE bool
}

// OfSQE wraps a submission value.
func OfSQE[SQE, CQE any](v SQE) Either[SQE, CQE] {
	return Either[SQE, CQE]{sqe: v}
}

// OfCQE wraps a completion value.
func OfCQE[SQE, CQE any](v CQE) Either[SQE, CQE] {
	return Either[SQE, CQE]{cqe: v, isCQE: true}
}

// IsCQE reports whether e holds a completion value.
func (e Either[SQE, CQE]) IsCQE() bool { return e.isCQE }

// SQE returns the wrapped submission value and true, or the zero value
// and false if e holds a completion value instead.
func (e Either[SQE, CQE]) SQE() (SQE, bool) {
	if e.isCQE {
		var zero SQE
		return zero, false
	}
	return e.sqe, true
}

// CQE returns the wrapped completion value and true, or the zero value
// and false if e holds a submission value instead.
func (e Either[SQE, CQE]) CQE() (CQE, bool) {
	if !e.isCQE {
		var zero CQE
		return zero, false
	}
	return e.cqe, true
}
