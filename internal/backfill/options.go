// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package backfill

import "github.com/cockroachdb/pebble-backfill/internal/base"

// Options configures a main-phase backfill run. The zero value is valid:
// every field defaults sensibly.
type Options struct {
	// LoaderConcurrency bounds how many pair values the record loader (C5)
	// may have outstanding at once. Zero selects DefaultLoaderConcurrency.
	LoaderConcurrency int

	// Cache resolves unresolved SlotRefs into value bytes. Nil selects
	// InMemoryValueCache, appropriate when the backing B-tree holds every
	// value resident (the common case for this package's own tests; a
	// caller fronting a real storage engine's block cache supplies its
	// own).
	Cache ValueCache

	// Logger receives progress and completion messages from a run. Nil
	// selects base.DefaultLogger.
	Logger base.Logger

	// Priority is the scheduling hint passed to Cache.CopyValue for every
	// pair value this run loads. Zero selects DefaultPriority.
	Priority Priority
}

func (o Options) valueCache() ValueCache {
	if o.Cache == nil {
		return InMemoryValueCache{}
	}
	return o.Cache
}

func (o Options) logger() base.Logger {
	if o.Logger == nil {
		return base.DefaultLogger{}
	}
	return o.Logger
}

func (o Options) priority() Priority {
	if o.Priority == 0 {
		return DefaultPriority
	}
	return o.Priority
}
