// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package btree

import "sync/atomic"

// PageHandle is a reference-counted read lock on a Node, standing in for
// the pair of a lock and a buffer-cache read view a real storage engine
// would hold here: both are reference-counted and released only once the
// last record that extended their lifetime has been consumed. Since this
// tree lives wholly in memory there is no separate buffer-cache read view
// to distinguish from the lock itself, so the two collapse into one handle
// type here.
//
// refs is allocated fresh by AcquirePage, one per RLock call, and shared
// only by handles cloned from that call via Acquire. This keeps each
// checkout's ref count independent of any other concurrent checkout of the
// same node, so two independent traversal runs can each hold their own
// read lock on a shared, read-only node without one run's Release
// triggering the other's RUnlock.
type PageHandle struct {
	node *Node
	refs *atomic.Int32
}

// AcquirePage read-locks n and returns a PageHandle owning that lock. Must
// be paired with a Release. Only the traverser calls this directly; all
// other code extends an existing handle's lifetime via Acquire.
func AcquirePage(n *Node) *PageHandle {
	n.mu.RLock()
	refs := new(atomic.Int32)
	refs.Store(1)
	return &PageHandle{node: n, refs: refs}
}

// Node returns the page's underlying node.
func (p *PageHandle) Node() *Node { return p.node }

// Acquire increments the handle's reference count and returns a new handle
// sharing ownership of the same lock. Used by the record preparer (C4) to
// attach the page's lifetime to every record it emits that still needs to
// dereference the page's entries.
func (p *PageHandle) Acquire() *PageHandle {
	p.refs.Add(1)
	return &PageHandle{node: p.node, refs: p.refs}
}

// Release decrements the handle's reference count, unlocking the
// underlying page's read lock once the last owner has released it.
func (p *PageHandle) Release() {
	if p.refs.Add(-1) == 0 {
		p.node.mu.RUnlock()
	}
}
