// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package btree

import (
	"sort"

	"github.com/cockroachdb/pebble-backfill/internal/base"
)

// BTree is the in-memory B+tree backing a single side (sender or
// recipient) of a backfill. Mutation beyond what is needed to build test
// fixtures and seed data is out of scope; BTree supports Insert but not
// Delete.
type BTree struct {
	cmp  base.Compare
	root *Node
}

// New returns an empty BTree ordered by cmp. A nil cmp defaults to
// base.DefaultCompare.
func New(cmp base.Compare) *BTree {
	if cmp == nil {
		cmp = base.DefaultCompare
	}
	return &BTree{cmp: cmp, root: newLeaf()}
}

// Compare returns the tree's key comparator.
func (t *BTree) Compare() base.Compare { return t.cmp }

// Root returns the tree's root node, for use by the traversal package.
func (t *BTree) Root() *Node { return t.root }

// Insert adds or overwrites the entry for key. value is ignored when
// tombstone is true.
func (t *BTree) Insert(key base.Key, recency base.Timestamp, value []byte, tombstone bool) {
	e := Entry{Key: key, Recency: recency, Value: value, Tombstone: tombstone}
	promoted, newRight := t.insert(t.root, e)
	if newRight != nil {
		left := t.root
		root := newInternal()
		root.separators = []base.Key{promoted}
		root.children = []*Node{left, newRight}
		root.recomputeAggregate()
		t.root = root
	}
}

// SetLeafDeletionMetadata overrides the min-deletion and deletion-cutoff
// timestamps of the leaf containing key, for tests that want to exercise
// tombstone-retention branches without having to build a leaf's worth of
// real tombstones. Because the tombstones those timestamps account for were
// entries of the leaf, it also raises the subtree-max-timestamp of the leaf
// and of every node above it to at least the larger of the two timestamps,
// so a traversal with an older since_when reaches the leaf instead of
// skipping it. A later Insert on the same path recomputes those aggregates
// from the entries alone.
func (t *BTree) SetLeafDeletionMetadata(key base.Key, minDeletionTS, deletionCutoffTS base.Timestamp) {
	bound := base.Max(minDeletionTS, deletionCutoffTS)
	n := t.root
	for {
		n.subtreeMaxTS = base.Max(n.subtreeMaxTS, bound)
		if n.leaf {
			break
		}
		n = n.children[childIndex(t.cmp, n, key)]
	}
	n.minDeletionTS = minDeletionTS
	n.deletionCutoffTS = deletionCutoffTS
}

// childIndex returns the index of the child of internal node n that key
// falls under.
func childIndex(cmp base.Compare, n *Node, key base.Key) int {
	i := sort.Search(len(n.separators), func(i int) bool {
		return cmp(key, n.separators[i]) <= 0
	})
	return i
}

// insert inserts e into the subtree rooted at n. If n had to split, it
// returns the separator key to promote to the parent and the new right
// sibling; otherwise both are zero-valued.
func (t *BTree) insert(n *Node, e Entry) (promoted base.Key, newRight *Node) {
	if n.leaf {
		i := sort.Search(len(n.entries), func(i int) bool {
			return t.cmp(e.Key, n.entries[i].Key) <= 0
		})
		if i < len(n.entries) && t.cmp(n.entries[i].Key, e.Key) == 0 {
			n.entries[i] = e
		} else {
			n.entries = append(n.entries, Entry{})
			copy(n.entries[i+1:], n.entries[i:])
			n.entries[i] = e
		}
		n.recomputeAggregate()
		if len(n.entries) <= maxEntries {
			return nil, nil
		}
		return t.splitLeaf(n)
	}

	i := childIndex(t.cmp, n, e.Key)
	childPromoted, childNewRight := t.insert(n.children[i], e)
	if childNewRight != nil {
		n.separators = append(n.separators, nil)
		copy(n.separators[i+1:], n.separators[i:])
		n.separators[i] = childPromoted

		n.children = append(n.children, nil)
		copy(n.children[i+2:], n.children[i+1:])
		n.children[i+1] = childNewRight
	}
	n.recomputeAggregate()
	if len(n.children) <= maxEntries+1 {
		return nil, nil
	}
	return t.splitInternal(n)
}

func (t *BTree) splitLeaf(n *Node) (promoted base.Key, newRight *Node) {
	mid := len(n.entries) / 2
	right := newLeaf()
	right.entries = append(right.entries, n.entries[mid:]...)
	right.minDeletionTS = n.minDeletionTS
	right.deletionCutoffTS = n.deletionCutoffTS
	n.entries = n.entries[:mid:mid]
	n.recomputeAggregate()
	right.recomputeAggregate()
	// children[i] covers keys <= separators[i], so the separator is the
	// left leaf's last key.
	return n.entries[mid-1].Key, right
}

func (t *BTree) splitInternal(n *Node) (promoted base.Key, newRight *Node) {
	mid := len(n.separators) / 2
	sepUp := n.separators[mid]

	right := newInternal()
	right.separators = append(right.separators, n.separators[mid+1:]...)
	right.children = append(right.children, n.children[mid+1:]...)

	n.separators = n.separators[:mid:mid]
	n.children = n.children[:mid+1 : mid+1]

	n.recomputeAggregate()
	right.recomputeAggregate()
	return sepUp, right
}
