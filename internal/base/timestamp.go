// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

// Timestamp is a monotone logical recency marker. It is not a wall-clock
// time; it is only ever compared to other
// Timestamps from the same replication stream.
type Timestamp uint64

// DistantPast is the least Timestamp value. An entry's recency is never
// less than DistantPast, and a Record whose min-deletion-timestamp is
// DistantPast makes no claim about deleted keys at all (nothing was ever
// pruned).
const DistantPast Timestamp = 0

// Less reports whether t occurred strictly before other.
func (t Timestamp) Less(other Timestamp) bool { return t < other }

// AtLeast reports whether t is not strictly before other.
func (t Timestamp) AtLeast(other Timestamp) bool { return t >= other }

// Max returns the later of t and other.
func Max(t, other Timestamp) Timestamp {
	if t > other {
		return t
	}
	return other
}
