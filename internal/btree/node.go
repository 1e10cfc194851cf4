// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package btree is the B-tree collaborator the backfill core traverses. It
// is deliberately a B+tree: internal nodes hold only separator keys and
// child pointers, leaves hold the actual entries, mirroring the split
// between internal subtrees (routed by FilterRangeTS) and leaves (read by
// HandleLeaf / the leaf entry iterator). Binary on-disk layout of a leaf is
// out of scope; this tree only needs to exist in memory for the traversal
// and backfill packages to exercise.
//
// Structurally this keeps a degree-bounded node capacity, split-on-overflow,
// and reference-counted page handles so a reader can pin a page across
// suspension points, adapted to hold replication entries instead of sstable internal
// keys and to maintain an eagerly maintained subtree-max-timestamp
// annotation.
package btree

import (
	"sync"

	"github.com/cockroachdb/pebble-backfill/internal/base"
)

// degree bounds node fanout: a node holds at most maxEntries items (or
// separators) before it must split.
const (
	degree     = 8
	maxEntries = 2*degree - 1
	minEntries = degree - 1
)

// Entry is one key's worth of content in a leaf: either a live value or an
// explicit tombstone.
type Entry struct {
	Key       base.Key
	Recency   base.Timestamp
	Value     []byte
	Tombstone bool
}

// Node is either an internal routing node or a leaf holding Entries. A Node
// is only ever mutated while building a tree (Insert); once a traversal
// begins, Nodes are read-only and are protected by mu the way a real
// storage engine's page cache protects a page with a read lock, so that
// concurrent traversal's sibling prefetch (internal/traversal) and a
// long-lived in-flight backfill record (internal/backfill) can all hold a
// consistent view of a leaf's contents.
type Node struct {
	mu   sync.RWMutex
	leaf bool

	// Leaf fields. entries is sorted by Key ascending.
	entries []Entry
	// minDeletionTS and deletionCutoffTS are leaf-derived timestamps:
	// minDeletionTS lower-bounds the recency of any tombstone still
	// guaranteed present in this leaf; deletionCutoffTS is the point
	// below which the leaf makes no tombstone guarantees at all. A real
	// storage engine derives both from how aggressively it has compacted
	// the leaf; here they are set directly through
	// BTree.SetLeafDeletionMetadata and copied to the new sibling when a
	// leaf splits. Insert itself never changes them.
	minDeletionTS    base.Timestamp
	deletionCutoffTS base.Timestamp

	// Internal fields. separators has one fewer entry than children:
	// children[i] covers keys <= separators[i] (and > separators[i-1]).
	separators []base.Key
	children   []*Node

	// subtreeMaxTS is an upper bound on the recency of any entry in the
	// node's subtree. Maintained eagerly on every Insert rather than cached
	// lazily, since this tree is built once per test/caller and then only
	// read.
	subtreeMaxTS base.Timestamp
}

// IsLeaf reports whether n is a leaf node.
func (n *Node) IsLeaf() bool { return n.leaf }

// SubtreeMaxTimestamp returns the upper bound on recency anywhere in n's
// subtree.
func (n *Node) SubtreeMaxTimestamp() base.Timestamp { return n.subtreeMaxTS }

// MinDeletionTimestamp returns the leaf's min-deletion timestamp. Valid
// only when n.IsLeaf().
func (n *Node) MinDeletionTimestamp() base.Timestamp { return n.minDeletionTS }

// DeletionCutoffTimestamp returns the leaf's deletion-cutoff timestamp.
// Valid only when n.IsLeaf().
func (n *Node) DeletionCutoffTimestamp() base.Timestamp { return n.deletionCutoffTS }

// VisitEntries calls fn for each entry in the leaf in the order they are
// stored (ascending by key), stopping early if fn returns false. This is
// the C1 leaf reader's entry iterator.
func (n *Node) VisitEntries(fn func(e Entry) bool) {
	for i := range n.entries {
		if !fn(n.entries[i]) {
			return
		}
	}
}

// NumEntries returns the number of entries in a leaf.
func (n *Node) NumEntries() int { return len(n.entries) }

// EntryAt returns the i'th entry of a leaf.
func (n *Node) EntryAt(i int) Entry { return n.entries[i] }

// NumChildren returns the number of children of an internal node.
func (n *Node) NumChildren() int { return len(n.children) }

// ChildAt returns the i'th child of an internal node.
func (n *Node) ChildAt(i int) *Node { return n.children[i] }

// SeparatorAt returns the i'th separator key of an internal node. Child i
// covers keys <= SeparatorAt(i); child i+1 covers keys > SeparatorAt(i).
func (n *Node) SeparatorAt(i int) base.Key { return n.separators[i] }

// TryLockForTesting attempts to take the node's write lock without
// blocking, for tests that need to assert no reader still holds the page
// locked (e.g. after a backfill run claims to have released everything).
func (n *Node) TryLockForTesting() bool { return n.mu.TryLock() }

// UnlockForTesting releases a write lock taken by TryLockForTesting.
func (n *Node) UnlockForTesting() { n.mu.Unlock() }

func newLeaf() *Node {
	return &Node{leaf: true}
}

func newInternal() *Node {
	return &Node{leaf: false}
}

func (n *Node) recomputeAggregate() {
	if n.leaf {
		max := base.DistantPast
		for _, e := range n.entries {
			max = base.Max(max, e.Recency)
		}
		n.subtreeMaxTS = max
		return
	}
	max := base.DistantPast
	for _, c := range n.children {
		max = base.Max(max, c.subtreeMaxTS)
	}
	n.subtreeMaxTS = max
}
