// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package backfill

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/pebble-backfill/internal/base"
	"github.com/cockroachdb/pebble-backfill/internal/btree"
	"github.com/cockroachdb/pebble-backfill/internal/keyrange"
	"github.com/stretchr/testify/require"
)

// blockingCache lets a test observe how many CopyValue calls are
// outstanding at once, to exercise the loader's bounded-concurrency
// backpressure.
type blockingCache struct {
	release  chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (c *blockingCache) CopyValue(ctx context.Context, ref SlotRef, priority Priority) ([]byte, error) {
	n := c.inFlight.Add(1)
	for {
		old := c.maxSeen.Load()
		if n <= old || c.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	<-c.release
	c.inFlight.Add(-1)
	node := ref.Page.Node()
	return node.EntryAt(ref.EntryIndex).Value, nil
}

func TestLoaderBackpressureRespectsCapacity(t *testing.T) {
	tr := btree.New(nil)
	const n = 20
	for i := 0; i < n; i++ {
		tr.Insert([]byte{byte('a' + i)}, base.Timestamp(1), []byte{byte(i)}, false)
	}

	cache := &blockingCache{release: make(chan struct{})}
	consumer := &recordedConsumer{}
	const capacity = 3

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		preProd := newSliceProducer(tr.Compare(), nil)
		_, err := RunRecords(context.Background(), tr.Root(), tr.Compare(), keyrange.Everything(), 0, preProd, consumer, Options{LoaderConcurrency: capacity, Cache: cache})
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return cache.inFlight.Load() == capacity }, time.Second, time.Millisecond)
	require.LessOrEqual(t, int(cache.maxSeen.Load()), capacity)

	close(cache.release)
	wg.Wait()
	require.Len(t, consumer.records, n)
}

func TestLoaderFinishDoesNotLeakPageLocksOnAbort(t *testing.T) {
	tr := btree.New(nil)
	for i := 0; i < 4; i++ {
		tr.Insert([]byte{byte('a' + i)}, base.Timestamp(1), []byte{byte(i)}, false)
	}
	preProd := newSliceProducer(tr.Compare(), nil)
	consumer := &recordedConsumer{abortAfter: 1}

	_, err := RunRecords(context.Background(), tr.Root(), tr.Compare(), keyrange.Everything(), 0, preProd, consumer, Options{})
	require.ErrorIs(t, err, base.ErrAborted)

	// If any worker still held the root leaf's read lock, this non-blocking
	// write-lock attempt would fail.
	locked := tr.Root().TryLockForTesting()
	require.True(t, locked, "loader.Finish must release every page lock before returning")
	if locked {
		tr.Root().UnlockForTesting()
	}
}
