// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package backfill

import (
	"context"
	"sort"

	"github.com/cockroachdb/pebble-backfill/internal/base"
	"github.com/cockroachdb/pebble-backfill/internal/btree"
	"github.com/cockroachdb/pebble-backfill/internal/keyrange"
	"github.com/cockroachdb/pebble-backfill/internal/traversal"
)

// preRecordProducerVisitor is C3: a traversal.Visitor that runs on the
// recipient and drives a serial traversal of the recipient's own tree,
// emitting PreRecords for everything that may have changed since sinceWhen.
type preRecordProducerVisitor struct {
	ctx         context.Context
	cmp         base.Compare
	sinceWhen   base.Timestamp
	consumer    PreRecordConsumer
	interrupted bool
}

var _ traversal.Visitor = (*preRecordProducerVisitor)(nil)

func thresholdFor(bound keyrange.Bound) keyrange.RightBound {
	if bound.Type == keyrange.Unbounded {
		return keyrange.UnboundedRight
	}
	return keyrange.Increment(bound.Key)
}

func (v *preRecordProducerVisitor) FilterRangeTS(leftExcl, rightIncl keyrange.Bound, subtreeMaxTimestamp base.Timestamp) (bool, traversal.Continuation) {
	if v.ctx.Err() != nil {
		v.interrupted = true
		return false, traversal.Abort
	}
	skip := v.sinceWhen.AtLeast(subtreeMaxTimestamp)
	if !skip {
		return false, traversal.Continue
	}
	cont := v.consumer.OnEmptyRange(thresholdFor(rightIncl))
	return true, cont
}

func (v *preRecordProducerVisitor) HandleLeaf(page *btree.PageHandle, leftExcl, rightIncl keyrange.Bound) traversal.Continuation {
	if v.ctx.Err() != nil {
		v.interrupted = true
		return traversal.Abort
	}
	node := page.Node()
	leafRange := keyrange.Range{Left: leftExcl, Right: rightIncl}

	if v.sinceWhen.Less(node.MinDeletionTimestamp()) {
		cont := v.consumer.OnPreRecord(PreRecord{Range: leafRange})
		if cont == traversal.Abort {
			return traversal.Abort
		}
		return v.consumer.OnEmptyRange(thresholdFor(rightIncl))
	}

	var stale []base.Key
	node.VisitEntries(func(e btree.Entry) bool {
		if v.sinceWhen.AtLeast(e.Recency) {
			return true
		}
		if !leafRange.ContainsKey(v.cmp, e.Key) {
			return true
		}
		stale = append(stale, e.Key)
		return true
	})
	sort.Slice(stale, func(i, j int) bool { return v.cmp(stale[i], stale[j]) < 0 })

	for _, key := range stale {
		cont := v.consumer.OnPreRecord(PreRecord{Range: keyrange.Single(key)})
		if cont == traversal.Abort {
			return traversal.Abort
		}
	}
	return v.consumer.OnEmptyRange(thresholdFor(rightIncl))
}

// RunPreRecords is the public entry point for the pre phase: it runs the
// serial traversal (C2) over root with C3's callbacks, restricted to rng,
// emitting PreRecords
// and empty-range milestones for everything in the recipient's tree that
// may have changed since sinceWhen. Returns Abort iff any consumer call
// returned Abort or ctx was cancelled; the latter is also reported as
// base.ErrInterrupted.
func RunPreRecords(ctx context.Context, root *btree.Node, cmp base.Compare, rng keyrange.Range, sinceWhen base.Timestamp, consumer PreRecordConsumer) (traversal.Continuation, error) {
	v := &preRecordProducerVisitor{ctx: ctx, cmp: cmp, sinceWhen: sinceWhen, consumer: consumer}
	cont := traversal.Walk(root, cmp, rng, v, traversal.Forward, traversal.ReleaseEager)
	if v.interrupted {
		return traversal.Abort, base.ErrInterrupted
	}
	return cont, nil
}
