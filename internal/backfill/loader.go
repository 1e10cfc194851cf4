// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package backfill

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble-backfill/internal/base"
	"github.com/cockroachdb/pebble-backfill/internal/btree"
	"github.com/cockroachdb/pebble-backfill/internal/invariants"
	"github.com/cockroachdb/pebble-backfill/internal/keyrange"
	"github.com/cockroachdb/pebble-backfill/internal/ordergate"
	"github.com/cockroachdb/pebble-backfill/internal/traversal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultLoaderConcurrency is the counting semaphore capacity used when a
// caller does not override it via Options.
const DefaultLoaderConcurrency = 32

// Loader is C5: it receives prepared Records and empty-range milestones
// from the record preparer (C4) in strict key order, resolves unresolved
// Pair values via a ValueCache under bounded concurrency, and delivers them
// to a RecordConsumer preserving that same order, never running two
// consumer calls concurrently.
//
// It follows a channel/goroutine-per-task worker model with a drainer that
// blocks until every dispatched task has completed. The FIFO ordering
// device itself is internal/ordergate rather than a single channel per
// task, since here many pair loads inside one record must complete before
// the record's own token can be consumed, not just one.
type Loader struct {
	ctx      context.Context
	cmp      base.Compare
	cache    ValueCache
	consumer RecordConsumer
	log      base.Logger
	priority Priority

	sem   *semaphore.Weighted
	src   *ordergate.Source
	sink  *ordergate.Sink
	group *errgroup.Group

	aborted atomic.Bool
	emitted atomic.Int64

	// Ordering-invariant bookkeeping. SubmitRecord and
	// SubmitEmptyRange are only ever called synchronously, one at a time,
	// from the traversal's single active callback, so these fields need no
	// lock of their own.
	haveLastLeft  bool
	lastLeft      keyrange.Range
	haveThreshold bool
	lastThreshold keyrange.RightBound
}

// NewLoader constructs a Loader bound to ctx. concurrency <= 0 selects
// DefaultLoaderConcurrency. priority is passed to every cache.CopyValue
// call the loader makes; zero selects DefaultPriority.
func NewLoader(ctx context.Context, cmp base.Compare, cache ValueCache, consumer RecordConsumer, concurrency int, log base.Logger, priority Priority) *Loader {
	if concurrency <= 0 {
		concurrency = DefaultLoaderConcurrency
	}
	if log == nil {
		log = base.DefaultLogger{}
	}
	if priority == 0 {
		priority = DefaultPriority
	}
	// A plain errgroup.Group rather than errgroup.WithContext: the derived
	// context would be cancelled as soon as Finish's Wait returns, and Finish
	// reads ctx to tell a caller interruption apart from a clean run.
	group := &errgroup.Group{}
	return &Loader{
		ctx:      ctx,
		cmp:      cmp,
		cache:    cache,
		consumer: consumer,
		log:      log,
		priority: priority,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		src:      &ordergate.Source{},
		sink:     ordergate.NewSink(),
		group:    group,
	}
}

// Continue reports whether the loader has observed an abort yet. The
// preparer calls this at the top of every traversal callback so a pulsed
// abort signal (raised by a loader worker after the consumer returned
// Abort) stops the traversal promptly instead of only being noticed at the
// next submission.
func (l *Loader) Continue() traversal.Continuation {
	if l.aborted.Load() {
		return traversal.Abort
	}
	return traversal.Continue
}

// SubmitRecord hands rec to the loader. page must be a handle the caller
// already owns a reference to for rec's leaf; SubmitRecord acquires its
// own reference (released once rec is fully resolved and emitted, or
// dropped) so the caller's own Release is independent. Suspends acquiring
// len(rec.Pairs) semaphore permits before returning, which is how the
// loader applies backpressure back onto the traversal.
func (l *Loader) SubmitRecord(rec Record, page *btree.PageHandle) traversal.Continuation {
	if l.aborted.Load() {
		return traversal.Abort
	}
	l.checkSubmissionOrder(rec.Range)
	checkRecordInvariants(l.cmp, rec)
	permits := int64(len(rec.Pairs))
	if err := l.sem.Acquire(l.ctx, permits); err != nil {
		l.aborted.Store(true)
		return traversal.Abort
	}
	ticket := l.src.Next()
	owned := page.Acquire()
	l.group.Go(func() error {
		l.runRecord(rec, owned, ticket)
		return nil
	})
	return l.Continue()
}

// SubmitEmptyRange hands an OnEmptyRange milestone to the loader, in the
// same submission order as surrounding records.
func (l *Loader) SubmitEmptyRange(threshold keyrange.RightBound) traversal.Continuation {
	if l.aborted.Load() {
		return traversal.Abort
	}
	if l.haveThreshold {
		invariants.Assert(keyrange.CompareThreshold(l.cmp, l.lastThreshold, threshold) <= 0,
			"backfill: empty-range threshold must be monotone non-decreasing")
	}
	l.lastThreshold, l.haveThreshold = threshold, true
	if err := l.sem.Acquire(l.ctx, 1); err != nil {
		l.aborted.Store(true)
		return traversal.Abort
	}
	ticket := l.src.Next()
	l.group.Go(func() error {
		l.runEmptyRange(threshold, ticket)
		return nil
	})
	return l.Continue()
}

// checkSubmissionOrder asserts that successive records have strictly
// ascending range.left, and are therefore disjoint.
func (l *Loader) checkSubmissionOrder(rng keyrange.Range) {
	if l.haveLastLeft {
		invariants.Assert(keyrange.CompareLeft(l.cmp, l.lastLeft, rng) < 0,
			"backfill: record range.left did not strictly increase across submissions")
	}
	l.lastLeft, l.haveLastLeft = rng, true
}

// checkRecordInvariants asserts the per-record invariants that can be
// checked before pair values are resolved: pairs sorted ascending by
// key, each within the record's range, each recency at least the record's
// min_deletion_timestamp.
func checkRecordInvariants(cmp base.Compare, rec Record) {
	var prev base.Key
	havePrev := false
	for _, p := range rec.Pairs {
		invariants.Assert(rec.Range.ContainsKey(cmp, p.Key), "backfill: pair key %q outside record range", p.Key)
		invariants.Assert(p.Recency >= rec.MinDeletionTimestamp,
			"backfill: pair %q recency %d below min_deletion_timestamp %d", p.Key, p.Recency, rec.MinDeletionTimestamp)
		if havePrev {
			invariants.Assert(cmp(prev, p.Key) < 0, "backfill: record pairs not strictly ascending by key")
		}
		prev, havePrev = p.Key, true
	}
}

func (l *Loader) runRecord(rec Record, page *btree.PageHandle, ticket int) {
	defer page.Release()

	var wg sync.WaitGroup
	var failed atomic.Bool
	for i := range rec.Pairs {
		p := &rec.Pairs[i]
		if p.Value.Kind != Missing {
			l.sem.Release(1)
			continue
		}
		wg.Add(1)
		go func(p *Pair) {
			defer wg.Done()
			bytes, err := l.cache.CopyValue(l.ctx, p.Value.Ref, l.priority)
			l.sem.Release(1)
			if err != nil {
				l.log.Infof("backfill: value load for %q failed: %v", p.Key, err)
				failed.Store(true)
				return
			}
			p.Value = ResolvedValue(bytes)
		}(p)
	}
	wg.Wait()

	l.sink.Wait(ticket)
	defer l.sink.Done(ticket)

	if l.aborted.Load() || failed.Load() || l.ctx.Err() != nil {
		l.aborted.Store(true)
		return
	}
	if cont := l.consumer.OnRecord(rec); cont == traversal.Abort {
		l.aborted.Store(true)
		return
	}
	l.emitted.Add(1)
}

func (l *Loader) runEmptyRange(threshold keyrange.RightBound, ticket int) {
	l.sem.Release(1)

	l.sink.Wait(ticket)
	defer l.sink.Done(ticket)

	if l.aborted.Load() || l.ctx.Err() != nil {
		return
	}
	if cont := l.consumer.OnEmptyRange(threshold); cont == traversal.Abort {
		l.aborted.Store(true)
	}
}

// Finish waits for every dispatched worker to exit, releasing any page
// locks they still hold, then reports whether the run completed cleanly.
// Finish always waits for in-flight workers even when returning an abort
// error, so no page lock outlives the call.
func (l *Loader) Finish() error {
	_ = l.group.Wait()
	if l.ctx.Err() != nil {
		l.log.Infof("backfill: run interrupted after emitting %d record(s)", l.emitted.Load())
		return base.ErrInterrupted
	}
	if l.aborted.Load() {
		l.log.Infof("backfill: run aborted after emitting %d record(s)", l.emitted.Load())
		return base.ErrAborted
	}
	l.log.Infof("backfill: run completed, emitted %d record(s)", l.emitted.Load())
	return nil
}
