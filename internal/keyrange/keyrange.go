// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package keyrange implements the half-open key ranges used throughout the
// backfill core.
package keyrange

import "github.com/cockroachdb/pebble-backfill/internal/base"

// BoundType classifies one endpoint of a Range.
type BoundType int8

const (
	// Unbounded means the endpoint extends to infinity in that direction.
	Unbounded BoundType = iota
	// Open means the endpoint's Key is excluded from the range.
	Open
	// Closed means the endpoint's Key is included in the range.
	Closed
)

// Bound is one endpoint of a Range.
type Bound struct {
	Type BoundType
	Key  base.Key
}

// NoneLeft is the left bound of a range with no lower limit.
var NoneLeft = Bound{Type: Unbounded}

// NoneRight is the right bound of a range with no upper limit.
var NoneRight = Bound{Type: Unbounded}

// OpenLeft returns an exclusive left bound at key. A nil key is equivalent
// to NoneLeft, matching the traverser's convention that the leftmost edge
// has a nil left_excl_or_null.
func OpenLeft(key base.Key) Bound {
	if key == nil {
		return NoneLeft
	}
	return Bound{Type: Open, Key: key}
}

// ClosedRight returns an inclusive right bound at key.
func ClosedRight(key base.Key) Bound {
	return Bound{Type: Closed, Key: key}
}

// Range is a half-open interval over keys, (left, right], with each
// endpoint independently Unbounded, Open, or Closed so that it
// can also represent the fully-unbounded, left-closed, or right-unbounded
// variants a caller's overall backfill range might need.
type Range struct {
	Left  Bound
	Right Bound
}

// Everything is the range covering the entire key space.
func Everything() Range {
	return Range{Left: NoneLeft, Right: NoneRight}
}

// Single returns the closed-closed range [key, key], used for pre-records
// and time-aligned records that cover exactly one key.
func Single(key base.Key) Range {
	return Range{
		Left:  Bound{Type: Closed, Key: key},
		Right: Bound{Type: Closed, Key: key},
	}
}

// LeftExclUpTo builds the range (leftExcl, rightIncl], matching the
// traverser's edge signature directly. leftExcl == nil means Unbounded.
func LeftExclUpTo(leftExcl, rightIncl base.Key) Range {
	return Range{Left: OpenLeft(leftExcl), Right: ClosedRight(rightIncl)}
}

func cmpBoundKey(cmp base.Compare, a, b base.Key) int {
	return cmp(a, b)
}

// compareLeft orders two left bounds for an ascending range.left ordering:
// Unbounded sorts before everything, and at equal
// keys Closed (inclusive of the key) sorts before Open (exclusive of it):
// both admit the same keys above k, but Open(k) excludes k itself, so as a
// *left* edge Open(k) starts "later" than Closed(k). We encode that
// ordering explicitly rather than relying on a derived key comparison.
func compareLeft(cmp base.Compare, a, b Bound) int {
	if a.Type == Unbounded && b.Type == Unbounded {
		return 0
	}
	if a.Type == Unbounded {
		return -1
	}
	if b.Type == Unbounded {
		return 1
	}
	if c := cmpBoundKey(cmp, a.Key, b.Key); c != 0 {
		return c
	}
	if a.Type == b.Type {
		return 0
	}
	if a.Type == Open {
		return 1
	}
	return -1
}

// CompareLeft orders two ranges by their left bound, implementing a strict
// ascending range.left ordering.
func CompareLeft(cmp base.Compare, a, b Range) int {
	return compareLeft(cmp, a.Left, b.Left)
}

// ContainsKey reports whether key falls within r under cmp.
func (r Range) ContainsKey(cmp base.Compare, key base.Key) bool {
	if r.Left.Type != Unbounded {
		c := cmp(key, r.Left.Key)
		if r.Left.Type == Closed && c < 0 {
			return false
		}
		if r.Left.Type == Open && c <= 0 {
			return false
		}
	}
	if r.Right.Type != Unbounded {
		c := cmp(key, r.Right.Key)
		if r.Right.Type == Closed && c > 0 {
			return false
		}
		if r.Right.Type == Open && c >= 0 {
			return false
		}
	}
	return true
}

// Empty reports whether r contains no keys at all under cmp.
func (r Range) Empty(cmp base.Compare) bool {
	return leftExceedsRight(cmp, r.Left, r.Right)
}

// Overlaps reports whether r and other share at least one key under cmp.
func (r Range) Overlaps(cmp base.Compare, other Range) bool {
	// Neither range's left bound may exceed the other's right bound.
	return !leftExceedsRight(cmp, r.Left, other.Right) && !leftExceedsRight(cmp, other.Left, r.Right)
}

func leftExceedsRight(cmp base.Compare, left, right Bound) bool {
	if left.Type == Unbounded || right.Type == Unbounded {
		return false
	}
	c := cmp(left.Key, right.Key)
	if c > 0 {
		return true
	}
	if c == 0 && (left.Type == Open || right.Type == Open) {
		return true
	}
	return false
}

// Intersection returns the overlap of r and other. The caller must check
// Overlaps first if an empty intersection is meaningful to distinguish from
// a degenerate single-point range; Intersection does not itself signal
// emptiness.
func (r Range) Intersection(cmp base.Compare, other Range) Range {
	return Range{
		Left:  maxLeft(cmp, r.Left, other.Left),
		Right: minRight(cmp, r.Right, other.Right),
	}
}

func maxLeft(cmp base.Compare, a, b Bound) Bound {
	if compareLeft(cmp, a, b) >= 0 {
		return a
	}
	return b
}

func minRight(cmp base.Compare, a, b Bound) Bound {
	if a.Type == Unbounded {
		return b
	}
	if b.Type == Unbounded {
		return a
	}
	c := cmp(a.Key, b.Key)
	switch {
	case c < 0:
		return a
	case c > 0:
		return b
	default:
		// Equal keys: Open is more restrictive than Closed.
		if a.Type == Open {
			return a
		}
		return b
	}
}

// RightBound is the upper endpoint of a range on its own, used for the
// empty-range milestones a consumer's OnEmptyRange receives. Unlike Bound,
// a RightBound that is not Unbounded is always
// treated as an exclusive threshold: "nothing more exists up to and
// including this bound" is expressed by incrementing an inclusive right_incl
// key into an exclusive RightBound first.
type RightBound struct {
	Unbounded bool
	Key       base.Key
}

// Increment returns the smallest RightBound that is strictly greater than
// the closed bound at key, i.e. it turns an inclusive "right_incl" key into
// an exclusive upper threshold. Grounded on pebble's own
// Comparer.ImmediateSuccessor idiom (internal/base/comparer.go): appending a
// single zero byte produces the smallest byte string that is a strict
// extension of, and therefore strictly greater than, key.
func Increment(key base.Key) RightBound {
	succ := make(base.Key, len(key)+1)
	copy(succ, key)
	succ[len(key)] = 0x00
	return RightBound{Key: succ}
}

// UnboundedRight is the threshold with no upper limit.
var UnboundedRight = RightBound{Unbounded: true}

// CompareThreshold orders two RightBound thresholds. Empty-range thresholds
// emitted by a single run are expected to be monotone non-decreasing.
func CompareThreshold(cmp base.Compare, a, b RightBound) int {
	if a.Unbounded && b.Unbounded {
		return 0
	}
	if a.Unbounded {
		return 1
	}
	if b.Unbounded {
		return -1
	}
	return cmp(a.Key, b.Key)
}
