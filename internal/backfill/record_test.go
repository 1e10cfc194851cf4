// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package backfill

import (
	"testing"

	"github.com/cockroachdb/pebble-backfill/internal/base"
	"github.com/cockroachdb/pebble-backfill/internal/keyrange"
	"github.com/stretchr/testify/require"
)

func TestRecordMaskInPlaceClipsRangeAndDropsPairs(t *testing.T) {
	rec := Record{
		Range: keyrange.LeftExclUpTo(base.Key("a"), base.Key("z")),
		Pairs: []Pair{
			{Key: base.Key("b"), Recency: 1, Value: ResolvedValue([]byte("B"))},
			{Key: base.Key("m"), Recency: 2, Value: ResolvedValue([]byte("M"))},
			{Key: base.Key("y"), Recency: 3, Value: ResolvedValue([]byte("Y"))},
		},
		MinDeletionTimestamp: 1,
	}

	m := keyrange.LeftExclUpTo(base.Key("k"), base.Key("n"))
	rec.MaskInPlace(base.DefaultCompare, m)

	require.Equal(t, m, rec.Range)
	require.Len(t, rec.Pairs, 1)
	require.Equal(t, base.Key("m"), rec.Pairs[0].Key)
}

func TestRecordMaskInPlaceDisjointMaskEmptiesPairs(t *testing.T) {
	rec := Record{
		Range: keyrange.LeftExclUpTo(base.Key("a"), base.Key("c")),
		Pairs: []Pair{
			{Key: base.Key("b"), Recency: 1, Value: ResolvedValue([]byte("B"))},
		},
	}

	m := keyrange.LeftExclUpTo(base.Key("x"), base.Key("z"))
	rec.MaskInPlace(base.DefaultCompare, m)

	require.Empty(t, rec.Pairs)
	require.True(t, rec.Range.Empty(base.DefaultCompare))
}
