// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package invariants provides build-tag-gated assertion helpers for the
// backfill core. Under the "invariants" (or "race") build tag, a violated
// invariant panics immediately: these checks guard conditions that should
// be impossible and have no recovery path. Outside those tags the check is
// skipped so the hot traversal path pays nothing for it.
package invariants

import "github.com/cockroachdb/errors"

// Assert panics with an AssertionFailedf-wrapped error if cond is false and
// invariant checking is Enabled. It is a no-op otherwise.
func Assert(cond bool, format string, args ...interface{}) {
	if Enabled && !cond {
		panic(errors.AssertionFailedf(format, args...))
	}
}
