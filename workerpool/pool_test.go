//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package workerpool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestybox/resource-tuner/rterrors"
	"github.com/nestybox/resource-tuner/workerpool"
)

func TestPool_RunsSubmittedWork(t *testing.T) {
	p := workerpool.New("test", 4, 8, 16)
	defer p.Shutdown(context.Background())

	var n int64
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Enqueue(func() {
			atomic.AddInt64(&n, 1)
			wg.Done()
		}))
	}

	waitOrTimeout(t, &wg, time.Second)
	assert.Equal(t, int64(10), atomic.LoadInt64(&n))
}

func TestPool_EnqueueOverflowReturnsQueueFull(t *testing.T) {
	p := workerpool.New("test", 1, 1, 1)
	defer p.Shutdown(context.Background())

	block := make(chan struct{})
	require.NoError(t, p.Enqueue(func() { <-block }))

	// Queue depth 1: this one waits either in the channel buffer or in the
	// dispatch loop, which takes it off the channel and blocks on the only
	// worker slot...
	require.NoError(t, p.Enqueue(func() {}))

	// ... so within at most two more enqueues the buffered queue is full and
	// Enqueue overflows while the first task still holds the only slot.
	var err error
	for i := 0; i < 50; i++ {
		err = p.Enqueue(func() {})
		if err != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.ErrorIs(t, err, rterrors.ErrQueueFull)

	close(block)
}

func TestPool_ShutdownDrainsInFlightWork(t *testing.T) {
	p := workerpool.New("test", 2, 2, 4)

	var ran int32
	require.NoError(t, p.Enqueue(func() {
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&ran, 1)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))

	err := p.Enqueue(func() {})
	assert.ErrorIs(t, err, rterrors.ErrQueueFull, "no new work accepted after shutdown")
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for work to complete")
	}
}
