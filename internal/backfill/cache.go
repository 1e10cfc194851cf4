// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package backfill

import (
	"context"

	"github.com/cockroachdb/errors"
)

// InMemoryValueCache resolves a SlotRef by copying the entry's bytes
// directly out of the still-locked leaf page. It exists so tests and
// single-process callers don't need a real block cache: every entry is
// already resident, so "loading" a value is just a defensive copy out from
// under the page's read lock. A caller fronting an actual storage engine's
// cache supplies its own ValueCache instead.
type InMemoryValueCache struct{}

// CopyValue implements ValueCache. priority is accepted for interface
// conformance but otherwise unused: there is no contended foreground
// traffic to deprioritize against when every entry already lives in
// memory.
func (InMemoryValueCache) CopyValue(ctx context.Context, ref SlotRef, priority Priority) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	node := ref.Page.Node()
	if ref.EntryIndex < 0 || ref.EntryIndex >= node.NumEntries() {
		return nil, errors.AssertionFailedf("backfill: slot ref index %d out of range (leaf has %d entries)", ref.EntryIndex, node.NumEntries())
	}
	entry := node.EntryAt(ref.EntryIndex)
	if entry.Tombstone {
		return nil, errors.AssertionFailedf("backfill: CopyValue called on tombstone entry %q", entry.Key)
	}
	out := make([]byte, len(entry.Value))
	copy(out, entry.Value)
	return out, nil
}
