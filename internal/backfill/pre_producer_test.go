// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package backfill

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble-backfill/internal/base"
	"github.com/cockroachdb/pebble-backfill/internal/btree"
	"github.com/cockroachdb/pebble-backfill/internal/keyrange"
	"github.com/cockroachdb/pebble-backfill/internal/traversal"
	"github.com/stretchr/testify/require"
)

type recordedPreConsumer struct {
	preRecords []PreRecord
	thresholds []keyrange.RightBound
	abortAfter int
}

func (c *recordedPreConsumer) OnPreRecord(pr PreRecord) traversal.Continuation {
	c.preRecords = append(c.preRecords, pr)
	if c.abortAfter > 0 && len(c.preRecords) >= c.abortAfter {
		return traversal.Abort
	}
	return traversal.Continue
}

func (c *recordedPreConsumer) OnEmptyRange(threshold keyrange.RightBound) traversal.Continuation {
	c.thresholds = append(c.thresholds, threshold)
	return traversal.Continue
}

func TestRunPreRecordsEmptyDiff(t *testing.T) {
	tr := btree.New(nil)
	tr.Insert(base.Key("a"), 1, []byte("A"), false)
	tr.Insert(base.Key("c"), 1, []byte("C"), false)

	consumer := &recordedPreConsumer{}
	cont, err := RunPreRecords(context.Background(), tr.Root(), tr.Compare(), keyrange.Everything(), 1, consumer)
	require.NoError(t, err)
	require.Equal(t, traversal.Continue, cont)
	require.Empty(t, consumer.preRecords)
	require.Len(t, consumer.thresholds, 1)
	require.True(t, consumer.thresholds[0].Unbounded)
}

func TestRunPreRecordsSingleUpdate(t *testing.T) {
	tr := btree.New(nil)
	tr.Insert(base.Key("b"), 3, []byte("B1"), false)

	consumer := &recordedPreConsumer{}
	cont, err := RunPreRecords(context.Background(), tr.Root(), tr.Compare(), keyrange.Everything(), 3, consumer)
	require.NoError(t, err)
	require.Equal(t, traversal.Continue, cont)
	require.Empty(t, consumer.preRecords)

	consumer = &recordedPreConsumer{}
	cont, err = RunPreRecords(context.Background(), tr.Root(), tr.Compare(), keyrange.Everything(), 2, consumer)
	require.NoError(t, err)
	require.Equal(t, traversal.Continue, cont)
	require.Len(t, consumer.preRecords, 1)
	require.Equal(t, keyrange.Single(base.Key("b")), consumer.preRecords[0].Range)
}

func TestRunPreRecordsAbortMidStream(t *testing.T) {
	tr := btree.New(nil)
	for i := 0; i < 2*8; i++ {
		tr.Insert([]byte{byte('a' + i)}, base.Timestamp(10+i), nil, false)
	}
	consumer := &recordedPreConsumer{abortAfter: 2}
	cont, err := RunPreRecords(context.Background(), tr.Root(), tr.Compare(), keyrange.Everything(), 0, consumer)
	require.NoError(t, err)
	require.Equal(t, traversal.Abort, cont)
	require.Len(t, consumer.preRecords, 2)
}

func TestRunPreRecordsInterrupted(t *testing.T) {
	tr := btree.New(nil)
	tr.Insert(base.Key("a"), 5, []byte("A"), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	consumer := &recordedPreConsumer{}
	cont, err := RunPreRecords(ctx, tr.Root(), tr.Compare(), keyrange.Everything(), 0, consumer)
	require.ErrorIs(t, err, base.ErrInterrupted)
	require.Equal(t, traversal.Abort, cont)
}

func TestRunPreRecordsTombstoneRetentionForcesWholeLeaf(t *testing.T) {
	tr := btree.New(nil)
	tr.Insert(base.Key("a"), 1, []byte("A"), false)
	tr.Insert(base.Key("b"), 1, []byte("B"), false)
	tr.SetLeafDeletionMetadata(base.Key("a"), 20, 20)

	consumer := &recordedPreConsumer{}
	cont, err := RunPreRecords(context.Background(), tr.Root(), tr.Compare(), keyrange.Everything(), 5, consumer)
	require.NoError(t, err)
	require.Equal(t, traversal.Continue, cont)
	require.Len(t, consumer.preRecords, 1)
	require.Equal(t, keyrange.Everything(), consumer.preRecords[0].Range)
}
