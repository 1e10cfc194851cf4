// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package backfill

import (
	"context"

	"github.com/cockroachdb/pebble-backfill/internal/keyrange"
	"github.com/cockroachdb/pebble-backfill/internal/traversal"
)

// PreRecordConsumer receives the pre phase's output: the recipient's own
// callback, or (in RunPreRecords' typical caller) whatever transport will
// ship pre-records to the sender.
type PreRecordConsumer interface {
	OnPreRecord(PreRecord) traversal.Continuation
	OnEmptyRange(threshold keyrange.RightBound) traversal.Continuation
}

// RecordConsumer receives the main phase's output on the sender side.
type RecordConsumer interface {
	OnRecord(Record) traversal.Continuation
	OnEmptyRange(threshold keyrange.RightBound) traversal.Continuation
}

// PreRecordProducer is the sender's view of the pre-record stream the
// recipient sent it (or, in a single-process test, a stream derived
// directly from RunPreRecords' output). The record preparer (C4) calls
// PeekRange once per edge and ConsumeRange exactly once per leaf-sized or
// skipped range, in traversal order; callers of this interface are expected
// to maintain that invariant.
type PreRecordProducer interface {
	PeekRange(leftExcl, rightIncl keyrange.Bound) (hasPreRecords bool, cont traversal.Continuation)
	ConsumeRange(leftExcl, rightIncl keyrange.Bound, sink func(PreRecord) traversal.Continuation) traversal.Continuation
}

// Priority is a scheduling hint passed down to a ValueCache, standing in
// for the reduced-priority cache account a real storage engine would read
// backfill values through rather than contending with foreground traffic
// at normal priority.
type Priority int

// DefaultPriority is the priority a backfill run uses unless Options
// overrides it: low enough that a real cache implementation can
// deprioritize it behind foreground reads.
const DefaultPriority Priority = 10

// ValueCache resolves one unresolved SlotRef into its live value bytes, at
// the given scheduling Priority. Stands in for a storage engine's block/
// value cache, which this package does not implement.
type ValueCache interface {
	CopyValue(ctx context.Context, ref SlotRef, priority Priority) ([]byte, error)
}
