// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrAborted is returned by the public backfill entry points when a
// consumer callback returned Abort. It is not itself a failure, just a
// normal early-termination path, but is surfaced as an error at the
// package boundary so ordinary Go control flow (errors.Is) can distinguish
// it from ErrInterrupted.
var ErrAborted = errors.New("pebble-backfill: consumer aborted")

// ErrInterrupted is returned when the caller-supplied interruptor fired
// before the backfill completed. This is always caught silently inside
// worker tasks and only surfaced at the API boundary.
var ErrInterrupted = errors.New("pebble-backfill: interrupted")
