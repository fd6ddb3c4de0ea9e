// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !race

package testrace

import "testing"

func skipUnderRace(tb testing.TB) {}
