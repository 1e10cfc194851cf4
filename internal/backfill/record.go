// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package backfill implements the replication backfill core: C3 (pre-record
// producer), C4 (record preparer), C5 (record loader), and C6 (the record
// value types defined in this file), built on top of internal/btree and
// internal/traversal. See RunRecords and RunPreRecords for the public entry
// points.
package backfill

import (
	"github.com/cockroachdb/pebble-backfill/internal/base"
	"github.com/cockroachdb/pebble-backfill/internal/btree"
	"github.com/cockroachdb/pebble-backfill/internal/keyrange"
)

// PreRecord is a recipient-produced hint naming a range of keys the sender
// should retransmit. Emitted in strict ascending Range.Left order with no
// two adjacent pre-records overlapping.
type PreRecord struct {
	Range keyrange.Range
}

// PairValueKind discriminates the three states a Pair's value can be in.
// This is design note §9's recommended replacement for the source's inline
// slot-pointer-in-a-byte-blob trick: Missing is passed from C4 to C5 but
// never from C5 into a RecordConsumer; only Resolved and Tombstone reach
// the consumer.
type PairValueKind int8

const (
	// Missing means the value has not yet been loaded; it carries a SlotRef
	// the loader resolves via a ValueCache. Never observed by a
	// RecordConsumer.
	Missing PairValueKind = iota
	// Resolved means Bytes holds the live value.
	Resolved
	// TombstoneKind means the entry is an explicit deletion marker; there is
	// no value to load.
	TombstoneKind
)

// SlotRef is an unresolved pointer into a locked leaf page, the in-memory
// analogue of the source's raw slot address. It stays valid only as long as
// Page's read lock is held, which the loader guarantees by acquiring its
// own reference to Page before dispatching a worker.
type SlotRef struct {
	Page       *btree.PageHandle
	EntryIndex int
}

// PairValue is a tagged union over the three states described by
// PairValueKind.
type PairValue struct {
	Kind  PairValueKind
	Bytes []byte
	Ref   SlotRef
}

// MissingValue returns a PairValue pointing at an as-yet-unloaded slot.
func MissingValue(ref SlotRef) PairValue { return PairValue{Kind: Missing, Ref: ref} }

// ResolvedValue returns a PairValue carrying a fully-loaded value.
func ResolvedValue(b []byte) PairValue { return PairValue{Kind: Resolved, Bytes: b} }

// TombstoneValue returns a PairValue denoting an explicit deletion.
func TombstoneValue() PairValue { return PairValue{Kind: TombstoneKind} }

// IsLive reports whether v carries (or will carry) a value, as opposed to a
// tombstone.
func (v PairValue) IsLive() bool { return v.Kind != TombstoneKind }

// Pair is one key's worth of content inside a Record.
type Pair struct {
	Key     base.Key
	Recency base.Timestamp
	Value   PairValue
}

// Record is the authoritative content the sender emits for one range: a
// synchronized diff covering Range, either explicit Pairs or an implicit
// guarantee (via MinDeletionTimestamp) that everything else in Range is
// unchanged.
type Record struct {
	Range                keyrange.Range
	Pairs                []Pair
	MinDeletionTimestamp base.Timestamp
}

// MaskInPlace re-clips rec against a narrower range m: Range becomes the
// intersection of rec.Range and m, and any Pair whose key falls outside m
// is dropped. The core traversal never needs this (every Record it emits
// is already clipped to its own range by construction), but a caller that
// re-slices a backfill against a sub-range it owns — a resharding caller,
// say — needs to re-clip records it did not produce itself.
func (rec *Record) MaskInPlace(cmp base.Compare, m keyrange.Range) {
	rec.Range = rec.Range.Intersection(cmp, m)
	kept := rec.Pairs[:0]
	for _, p := range rec.Pairs {
		if m.ContainsKey(cmp, p.Key) {
			kept = append(kept, p)
		}
	}
	rec.Pairs = kept
}

// mergeByLeft merges two slices of *Record, both already sorted ascending
// by Range.Left and mutually disjoint, into one ascending sequence. Used by
// the record preparer (C4) to interleave pre-aligned and time-aligned
// records, which are already sorted by construction and provably disjoint.
func mergeByLeft(cmp base.Compare, a, b []*Record) []*Record {
	out := make([]*Record, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if keyrange.CompareLeft(cmp, a[i].Range, b[j].Range) <= 0 {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// findContaining returns the record in records whose Range contains key, or
// nil. Linear scan; the number of pre-aligned records touching a single
// leaf is small enough that a cursor or index would be overkill.
func findContaining(cmp base.Compare, records []*Record, key base.Key) *Record {
	for _, r := range records {
		if r.Range.ContainsKey(cmp, key) {
			return r
		}
	}
	return nil
}
