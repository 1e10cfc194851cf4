// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package backfill

import (
	"context"

	"github.com/cockroachdb/pebble-backfill/internal/base"
	"github.com/cockroachdb/pebble-backfill/internal/btree"
	"github.com/cockroachdb/pebble-backfill/internal/keyrange"
	"github.com/cockroachdb/pebble-backfill/internal/traversal"
)

// recordPreparerVisitor is C4: a traversal.Visitor that runs on the sender
// and merges the recipient's pre-record stream with the sender's leaf
// contents into Records carrying still-unresolved value pointers, which it
// forwards to a Loader (C5).
type recordPreparerVisitor struct {
	cmp       base.Compare
	sinceWhen base.Timestamp
	preProd   PreRecordProducer
	loader    *Loader
}

var _ traversal.Visitor = (*recordPreparerVisitor)(nil)

func (v *recordPreparerVisitor) FilterRangeTS(leftExcl, rightIncl keyrange.Bound, subtreeMaxTimestamp base.Timestamp) (bool, traversal.Continuation) {
	if cont := v.loader.Continue(); cont == traversal.Abort {
		return false, traversal.Abort
	}

	hasPreRecords, cont := v.preProd.PeekRange(leftExcl, rightIncl)
	if cont == traversal.Abort {
		return false, traversal.Abort
	}

	skip := v.sinceWhen.AtLeast(subtreeMaxTimestamp) && !hasPreRecords
	if !skip {
		return false, traversal.Continue
	}

	// Still drain the pre-record stream for this range, with a no-op sink,
	// so it stays aligned with the sender's traversal even though this
	// subtree is being skipped.
	cont = v.preProd.ConsumeRange(leftExcl, rightIncl, func(PreRecord) traversal.Continuation { return traversal.Continue })
	if cont == traversal.Abort {
		return true, traversal.Abort
	}
	return true, v.loader.SubmitEmptyRange(thresholdFor(rightIncl))
}

func (v *recordPreparerVisitor) HandleLeaf(page *btree.PageHandle, leftExcl, rightIncl keyrange.Bound) traversal.Continuation {
	if cont := v.loader.Continue(); cont == traversal.Abort {
		return traversal.Abort
	}

	node := page.Node()
	leafRange := keyrange.Range{Left: leftExcl, Right: rightIncl}
	noop := func(PreRecord) traversal.Continuation { return traversal.Continue }

	if cutoff := node.DeletionCutoffTimestamp(); v.sinceWhen.Less(cutoff) {
		if cont := v.preProd.ConsumeRange(leftExcl, rightIncl, noop); cont == traversal.Abort {
			return traversal.Abort
		}
		rec := Record{Range: leafRange, MinDeletionTimestamp: cutoff}
		if cont := v.loader.SubmitRecord(rec, page); cont == traversal.Abort {
			return traversal.Abort
		}
		return v.loader.SubmitEmptyRange(thresholdFor(rightIncl))
	}

	var preAligned []*Record
	collect := func(pr PreRecord) traversal.Continuation {
		r := pr.Range.Intersection(v.cmp, leafRange)
		preAligned = append(preAligned, &Record{Range: r, MinDeletionTimestamp: node.MinDeletionTimestamp()})
		return traversal.Continue
	}
	if cont := v.preProd.ConsumeRange(leftExcl, rightIncl, collect); cont == traversal.Abort {
		return traversal.Abort
	}

	var timeAligned []*Record
	entryIdx := -1
	node.VisitEntries(func(e btree.Entry) bool {
		entryIdx++
		if !leafRange.ContainsKey(v.cmp, e.Key) {
			return true
		}
		target := findContaining(v.cmp, preAligned, e.Key)
		if target == nil {
			// An old entry not claimed by any pre-record needs no
			// representation in the diff at all.
			if v.sinceWhen.AtLeast(e.Recency) {
				return true
			}
			target = &Record{Range: keyrange.Single(e.Key), MinDeletionTimestamp: base.DistantPast}
			timeAligned = append(timeAligned, target)
		}
		var val PairValue
		if e.Tombstone {
			val = TombstoneValue()
		} else {
			val = MissingValue(SlotRef{Page: page, EntryIndex: entryIdx})
		}
		// The loader and consumer may still be holding this pair after the
		// leaf's page lock is released, so the key must not alias the leaf's
		// backing array.
		target.Pairs = append(target.Pairs, Pair{Key: e.Key.Clone(), Recency: e.Recency, Value: val})
		return true
	})

	merged := mergeByLeft(v.cmp, preAligned, timeAligned)
	for _, rec := range merged {
		if cont := v.loader.SubmitRecord(*rec, page); cont == traversal.Abort {
			return traversal.Abort
		}
	}
	return v.loader.SubmitEmptyRange(thresholdFor(rightIncl))
}

// RunRecords is the public entry point for the main phase: it runs the
// concurrent traversal (C2) over root
// with C4's callbacks, feeding a freshly constructed Loader (C5) which
// delivers to consumer. Returns Abort iff the traversal itself aborted;
// late failures are surfaced through consumer's own return codes or
// loader.Finish's error.
func RunRecords(ctx context.Context, root *btree.Node, cmp base.Compare, rng keyrange.Range, sinceWhen base.Timestamp, preProd PreRecordProducer, consumer RecordConsumer, opts Options) (traversal.Continuation, error) {
	loader := NewLoader(ctx, cmp, opts.valueCache(), consumer, opts.LoaderConcurrency, opts.logger(), opts.priority())
	v := &recordPreparerVisitor{cmp: cmp, sinceWhen: sinceWhen, preProd: preProd, loader: loader}

	cont, err := traversal.WalkConcurrent(ctx, root, cmp, rng, v, traversal.Forward, traversal.ReleaseEager)
	if err != nil {
		_ = loader.Finish()
		return traversal.Abort, err
	}
	finishErr := loader.Finish()
	if cont == traversal.Abort {
		return traversal.Abort, finishErr
	}
	return traversal.Continue, finishErr
}
