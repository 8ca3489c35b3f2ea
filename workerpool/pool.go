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

// Package workerpool implements a fixed-capacity dispatch pool with bounded
// burst scaling on top of golang.org/x/sync's semaphore and errgroup.
package workerpool

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nestybox/resource-tuner/domain"
	"github.com/nestybox/resource-tuner/rterrors"
)

// Pool is a bounded worker pool: a weighted semaphore of size `max` caps how
// many tasks run concurrently. `desired` does not lower that cap; there is
// no separate steady-state limit below `max`. Submissions queue FIFO on a
// buffered channel; when
// the channel is full, Enqueue returns rterrors.ErrQueueFull immediately
// rather than blocking the submitter -- the listener/arbiter goroutine must
// never block on a full queue.
type Pool struct {
	name string

	sem *semaphore.Weighted
	eg  *errgroup.Group
	ctx context.Context

	queue chan func()

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// New constructs a pool that runs up to `max` tasks concurrently (raised to
// `desired` when max < desired; `desired` has no other effect) with a FIFO
// queue of the given depth.
func New(name string, desired, max, queueDepth int) *Pool {
	if max < desired {
		max = desired
	}

	eg, ctx := errgroup.WithContext(context.Background())

	p := &Pool{
		name:  name,
		sem:   semaphore.NewWeighted(int64(max)),
		eg:    eg,
		ctx:   ctx,
		queue: make(chan func(), queueDepth),
	}

	p.wg.Add(1)
	go p.dispatch()

	return p
}

func (p *Pool) dispatch() {
	defer p.wg.Done()

	for fn := range p.queue {
		fn := fn

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			logrus.Debugf("workerpool %s: dispatch loop stopping: %v", p.name, err)
			return
		}

		p.eg.Go(func() error {
			defer p.sem.Release(1)
			fn()
			return nil
		})
	}
}

// Enqueue submits fn for asynchronous execution. Returns
// rterrors.ErrQueueFull if the pool's queue is saturated or the pool is
// shutting down. Callers receive ErrQueueFull itself; it is not translated
// to rterrors.ErrOverloaded anywhere on the submit path.
func (p *Pool) Enqueue(fn func()) error {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return rterrors.ErrQueueFull
	}
	p.mu.Unlock()

	select {
	case p.queue <- fn:
		return nil
	default:
		return rterrors.ErrQueueFull
	}
}

// Shutdown stops accepting new work and waits for in-flight tasks to drain
// or ctx to expire, whichever comes first.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return nil
	}
	p.draining = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		_ = p.eg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ domain.WorkerPoolIface = (*Pool)(nil)
