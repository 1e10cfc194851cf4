// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package btree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/cockroachdb/pebble-backfill/internal/base"
	"github.com/stretchr/testify/require"
)

func TestInsertAndIterateOrder(t *testing.T) {
	tr := New(nil)
	keys := []string{"m", "c", "z", "a", "k", "b", "y", "q"}
	for i, k := range keys {
		tr.Insert(base.Key(k), base.Timestamp(i+1), []byte(k), false)
	}

	it := tr.NewIter()
	var got []string
	for it.Valid() {
		got = append(got, string(it.Entry().Key))
		it.Next()
	}
	require.Equal(t, []string{"a", "b", "c", "k", "m", "q", "y", "z"}, got)
}

func TestInsertOverwrites(t *testing.T) {
	tr := New(nil)
	tr.Insert(base.Key("a"), 1, []byte("A1"), false)
	tr.Insert(base.Key("a"), 2, []byte("A2"), false)

	it := tr.NewIter()
	require.True(t, it.Valid())
	require.Equal(t, base.Timestamp(2), it.Entry().Recency)
	require.Equal(t, []byte("A2"), it.Entry().Value)
	it.Next()
	require.False(t, it.Valid())
}

func TestSubtreeMaxTimestampAggregatesAcrossSplits(t *testing.T) {
	tr := New(nil)
	const n = 500
	r := rand.New(rand.NewSource(1))
	maxTS := base.DistantPast
	for i := 0; i < n; i++ {
		ts := base.Timestamp(r.Intn(1_000_000) + 1)
		if ts > maxTS {
			maxTS = ts
		}
		tr.Insert(base.Key(fmt.Sprintf("key-%05d", i)), ts, []byte("v"), false)
	}
	require.Equal(t, maxTS, tr.Root().SubtreeMaxTimestamp())
	require.False(t, tr.Root().IsLeaf(), "tree should have split into multiple levels")

	verifySubtreeMax(t, tr.Root())
}

func verifySubtreeMax(t *testing.T, n *Node) base.Timestamp {
	t.Helper()
	if n.IsLeaf() {
		max := base.DistantPast
		n.VisitEntries(func(e Entry) bool {
			max = base.Max(max, e.Recency)
			return true
		})
		require.Equal(t, max, n.SubtreeMaxTimestamp())
		return max
	}
	max := base.DistantPast
	for i := 0; i < n.NumChildren(); i++ {
		max = base.Max(max, verifySubtreeMax(t, n.ChildAt(i)))
	}
	require.Equal(t, max, n.SubtreeMaxTimestamp())
	return max
}

func TestPageHandleRefCounting(t *testing.T) {
	tr := New(nil)
	tr.Insert(base.Key("a"), 1, []byte("A"), false)

	h1 := AcquirePage(tr.Root())
	h2 := h1.Acquire()
	h3 := h2.Acquire()

	// All three handles must be released before the underlying RWMutex's
	// read lock is released; releasing out of acquisition order is fine
	// since the count, not ordering, determines the unlock point.
	h2.Release()
	h1.Release()

	// The lock should still be held by h3, so a non-blocking write-lock
	// attempt must fail.
	locked := tr.Root().mu.TryLock()
	require.False(t, locked, "page should still be read-locked by h3")

	h3.Release()
}

func TestAcquirePageIsIndependentAcrossConcurrentCheckouts(t *testing.T) {
	tr := New(nil)
	tr.Insert(base.Key("a"), 1, []byte("A"), false)

	// Two unrelated traversal runs checking out the same leaf concurrently
	// must not share a ref count: releasing one run's last handle must not
	// unlock the other run's still-live checkout.
	run1 := AcquirePage(tr.Root())
	run2 := AcquirePage(tr.Root())

	run1.Release()
	locked := tr.Root().mu.TryLock()
	require.False(t, locked, "run2's checkout should still hold the read lock")

	run2.Release()
	locked = tr.Root().TryLockForTesting()
	require.True(t, locked, "both checkouts released, write lock should succeed")
	if locked {
		tr.Root().UnlockForTesting()
	}
}
