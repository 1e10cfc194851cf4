// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "bytes"

// Key is an opaque, totally ordered byte string. The backfill core never
// interprets key contents; ordering is always delegated to a Compare
// function so that callers can plug in application-specific collation.
type Key []byte

// Compare orders two keys, returning a negative number if a < b, zero if
// a == b, and a positive number if a > b. DefaultCompare is bytewise; a
// caller embedding the core in a B-tree with different collation (e.g.
// case-insensitive, or secondary-index composite keys) supplies its own.
type Compare func(a, b []byte) int

// DefaultCompare orders keys lexicographically by byte value.
func DefaultCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Clone returns a copy of the key that does not alias the underlying
// storage. Used when a key must outlive the page read-lock it was read
// under.
func (k Key) Clone() Key {
	if k == nil {
		return nil
	}
	out := make(Key, len(k))
	copy(out, k)
	return out
}

func (k Key) String() string {
	return string(k)
}
