// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package traversal

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/pebble-backfill/internal/base"
	"github.com/cockroachdb/pebble-backfill/internal/btree"
	"github.com/cockroachdb/pebble-backfill/internal/keyrange"
	"github.com/cockroachdb/pebble-backfill/internal/ordergate"
	"golang.org/x/sync/errgroup"
)

// siblingFanout bounds how many leaf fetches may be outstanding at once.
// The benefit being modeled is overlapping one leaf's page-lock
// acquisition (and, in a real storage engine, its block fetch) with the
// previous leaf's visitor call, not raw parallelism, so this is kept
// small.
const siblingFanout = 4

// WalkConcurrent is the concurrent traversal variant: leaf fetches may run
// ahead of the visitor callback for an earlier leaf, but every
// FilterRangeTS/HandleLeaf call is still delivered to visitor in strict
// ascending (or, for Backward, descending) key order, enforced by an
// internal/ordergate ticket sequence. Internal-edge routing itself stays
// on the single calling goroutine — only leaf fetches are dispatched to
// the worker pool — which keeps ticket issuance trivially in depth-first
// order without a separate numbering pass. The sender's record preparer
// (C4) uses this variant; the recipient's pre-record producer (C3) uses
// the serial Walk.
//
// As with Walk, ReleaseHeldUntilDone pins root's read lock for the whole
// call instead of letting it be locked (if at all) the same way as any
// other node.
func WalkConcurrent(ctx context.Context, root *btree.Node, cmp base.Compare, rng keyrange.Range, visitor Visitor, dir Direction, policy ReleasePolicy) (Continuation, error) {
	if policy == ReleaseHeldUntilDone {
		pin := btree.AcquirePage(root)
		defer pin.Release()
	}
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(siblingFanout)
	r := &concurrentRun{
		ctx:     gctx,
		group:   group,
		src:     &ordergate.Source{},
		sink:    ordergate.NewSink(),
		cmp:     cmp,
		rng:     rng,
		visitor: visitor,
		dir:     dir,
	}
	r.visitSequential(root, keyrange.NoneLeft, keyrange.NoneRight)
	if err := group.Wait(); err != nil {
		return Abort, err
	}
	if r.aborted.Load() {
		return Abort, nil
	}
	return Continue, nil
}

type concurrentRun struct {
	ctx     context.Context
	group   *errgroup.Group
	src     *ordergate.Source
	sink    *ordergate.Sink
	cmp     base.Compare
	rng     keyrange.Range
	visitor Visitor
	dir     Direction
	aborted atomic.Bool
}

// visitSequential walks edges in depth-first order on the calling
// goroutine. Internal-edge FilterRangeTS calls happen directly, in their
// ticket's turn; leaf edges are dispatched to the worker pool but still
// reserve their ticket here, at the point they are discovered, so ticket
// order always matches DFS order regardless of how the dispatched work is
// later scheduled.
func (r *concurrentRun) visitSequential(n *btree.Node, left, right keyrange.Bound) {
	if r.aborted.Load() {
		return
	}
	clipped := keyrange.Range{Left: left, Right: right}.Intersection(r.cmp, r.rng)
	if clipped.Empty(r.cmp) {
		return
	}

	if n.IsLeaf() {
		ticket := r.src.Next()
		r.group.Go(func() error {
			return r.runLeaf(n, clipped, ticket)
		})
		return
	}

	ticket := r.src.Next()
	r.sink.Wait(ticket)
	if r.aborted.Load() {
		r.sink.Done(ticket)
		return
	}
	skip, cont := r.visitor.FilterRangeTS(clipped.Left, clipped.Right, n.SubtreeMaxTimestamp())
	r.sink.Done(ticket)
	if cont == Abort {
		r.aborted.Store(true)
		return
	}
	if skip {
		return
	}
	for _, i := range childOrder(n.NumChildren(), r.dir) {
		childLeft, childRight := childBounds(n, i, left, right)
		r.visitSequential(n.ChildAt(i), childLeft, childRight)
	}
}

func (r *concurrentRun) runLeaf(n *btree.Node, clipped keyrange.Range, ticket int) error {
	// The "fetch": acquiring the page's read lock. In a real storage
	// engine this is where an I/O-bound block read would happen, and it
	// runs concurrently with other tickets' fetches and with the previous
	// ticket's visitor call.
	page := btree.AcquirePage(n)
	subtreeMaxTS := n.SubtreeMaxTimestamp()

	r.sink.Wait(ticket)
	defer r.sink.Done(ticket)

	if r.aborted.Load() || r.ctx.Err() != nil {
		page.Release()
		return nil
	}
	skip, cont := r.visitor.FilterRangeTS(clipped.Left, clipped.Right, subtreeMaxTS)
	if cont == Abort {
		page.Release()
		r.aborted.Store(true)
		return nil
	}
	if skip {
		page.Release()
		return nil
	}
	result := r.visitor.HandleLeaf(page, clipped.Left, clipped.Right)
	page.Release()
	if result == Abort {
		r.aborted.Store(true)
	}
	return nil
}
