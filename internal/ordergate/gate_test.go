// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ordergate

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSinkReleasesInTicketOrder(t *testing.T) {
	const n = 50
	src := &Source{}
	sink := NewSink()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		ticket := src.Next()
		wg.Add(1)
		go func(ticket int) {
			defer wg.Done()
			time.Sleep(time.Duration(rand.Intn(500)) * time.Microsecond)
			sink.Wait(ticket)
			mu.Lock()
			order = append(order, ticket)
			mu.Unlock()
			sink.Done(ticket)
		}(ticket)
	}
	wg.Wait()

	require.Len(t, order, n)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}
