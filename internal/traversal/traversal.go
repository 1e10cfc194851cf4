// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package traversal implements C2, a generic depth-first B-tree traversal:
// it walks internal/leaf edges in key order, lets the visitor skip
// subtrees by recency, and hands leaf visitors a reference-counted page
// lock. Two variants are provided: Walk (serial, used by the pre-record
// producer) and WalkConcurrent (sibling leaf fetches may run in parallel
// while internal routing stays sequential, used by the sender's record
// preparer).
package traversal

import (
	"github.com/cockroachdb/pebble-backfill/internal/base"
	"github.com/cockroachdb/pebble-backfill/internal/btree"
	"github.com/cockroachdb/pebble-backfill/internal/keyrange"
)

// Continuation is the cooperative return code every visitor callback and
// every traversal entry point uses to control flow via CONTINUE/ABORT
// rather than errors or exceptions.
type Continuation int8

const (
	// Continue means keep traversing.
	Continue Continuation = iota
	// Abort means stop the traversal immediately.
	Abort
)

// Direction selects ascending (Forward) or descending (Backward) key
// order; the reverse direction is symmetrical to the forward one.
type Direction int8

const (
	Forward Direction = iota
	Backward
)

// ReleasePolicy controls how long the traverser holds the root page's read
// lock pinned: the eager-vs-held-until-done choice a real engine would make
// around its own superblock fetch. Since this core has no separate
// superblock-fetch step, the policy only affects the root: ReleaseEager
// takes no extra lock on the root, which is then locked (only if it is
// itself a leaf) like any other node (the normal case);
// ReleaseHeldUntilDone keeps the root pinned
// for the lifetime of the whole traversal call, which a caller might want
// if it needs a stable view of the tree's shape across the entire run.
type ReleasePolicy int8

const (
	ReleaseEager ReleasePolicy = iota
	ReleaseHeldUntilDone
)

// Visitor is the capability set the traverser talks to. A per-pair
// callback has no analogue here: both of this module's real visitors (the
// pre-record producer and the record preparer) always handle whole leaves,
// never individual out-of-leaf pairs, so it is omitted rather than
// implemented as an always-unreachable method.
type Visitor interface {
	// FilterRangeTS is called once per edge (internal subtree or leaf),
	// with the edge's own bounds and the subtree_max_timestamp cached for
	// it. Returning skip=true tells the traverser not to descend further
	// into that edge. Returning Abort stops the whole traversal.
	FilterRangeTS(leftExcl, rightIncl keyrange.Bound, subtreeMaxTimestamp base.Timestamp) (skip bool, cont Continuation)

	// HandleLeaf is called for a leaf edge that FilterRangeTS did not
	// skip. page is a reference-counted read lock on the leaf; the
	// visitor may call page.Acquire() to extend its lifetime past the
	// return of HandleLeaf (e.g. to attach it to an emitted record), but
	// must eventually Release() every reference it acquires.
	HandleLeaf(page *btree.PageHandle, leftExcl, rightIncl keyrange.Bound) Continuation
}

// Walk runs the serial depth-first traversal over the subtree rooted at
// root, restricted to rng, calling into
// visitor in ascending (or, for Backward, descending) key order. Under
// ReleaseHeldUntilDone, root's read lock is acquired before the first
// visitor call and held for the whole traversal, pinning the tree's shape
// at root even though individual leaves are still locked and released one
// at a time as they're visited; under ReleaseEager root is locked (if at
// all, which only happens when root is itself a leaf) the same way every
// other node is.
func Walk(root *btree.Node, cmp base.Compare, rng keyrange.Range, visitor Visitor, dir Direction, policy ReleasePolicy) Continuation {
	if policy == ReleaseHeldUntilDone {
		pin := btree.AcquirePage(root)
		defer pin.Release()
	}
	return visit(root, keyrange.NoneLeft, keyrange.NoneRight, rng, cmp, visitor, dir)
}

func visit(n *btree.Node, left, right keyrange.Bound, rng keyrange.Range, cmp base.Compare, visitor Visitor, dir Direction) Continuation {
	clipped := keyrange.Range{Left: left, Right: right}.Intersection(cmp, rng)
	if clipped.Empty(cmp) {
		return Continue
	}

	skip, cont := visitor.FilterRangeTS(clipped.Left, clipped.Right, n.SubtreeMaxTimestamp())
	if cont == Abort {
		return Abort
	}
	if skip {
		return Continue
	}

	if n.IsLeaf() {
		page := btree.AcquirePage(n)
		result := visitor.HandleLeaf(page, clipped.Left, clipped.Right)
		page.Release()
		return result
	}

	for _, i := range childOrder(n.NumChildren(), dir) {
		childLeft, childRight := childBounds(n, i, left, right)
		if c := visit(n.ChildAt(i), childLeft, childRight, rng, cmp, visitor, dir); c == Abort {
			return Abort
		}
	}
	return Continue
}

// childBounds computes the natural (left_excl, right_incl] bound of child
// i of internal node n, given n's own bound context.
func childBounds(n *btree.Node, i int, left, right keyrange.Bound) (childLeft, childRight keyrange.Bound) {
	childLeft = left
	if i > 0 {
		childLeft = keyrange.OpenLeft(n.SeparatorAt(i - 1))
	}
	childRight = right
	if i < n.NumChildren()-1 {
		childRight = keyrange.ClosedRight(n.SeparatorAt(i))
	}
	return childLeft, childRight
}

func childOrder(n int, dir Direction) []int {
	order := make([]int, n)
	if dir == Forward {
		for i := range order {
			order[i] = i
		}
	} else {
		for i := range order {
			order[i] = n - 1 - i
		}
	}
	return order
}
