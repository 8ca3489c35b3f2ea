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

// Package timer implements a bounded, cancellable, optionally recurring
// wait, backed by a dedicated worker pool the way
// nsenter/reaper.go parks a goroutine on a channel rather than a
// free-standing thread. Semantics (deadline wait, cancel flag checked under
// the same lock the waiter holds on wake, re-arm for recurring timers)
// follow original_source/Core/Modula/Components/Timer.cpp's
// implementTimer() loop.
package timer

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nestybox/resource-tuner/domain"
)

// Service creates timers backed by a shared worker pool, the "timers" pool
// oversized by 2 to reserve slots so a burst of expirations never starves a
// fresh Start().
type Service struct {
	pool domain.WorkerPoolIface
}

func NewService(pool domain.WorkerPoolIface) *Service {
	return &Service{pool: pool}
}

var (
	_ domain.TimerServiceIface = (*Service)(nil)
	_ domain.TimerIface        = (*timer)(nil)
)

func (s *Service) NewTimer(onFire func(), recurring bool) domain.TimerIface {
	return &timer{
		pool:      s.pool,
		onFire:    onFire,
		recurring: recurring,
		killCh:    make(chan struct{}),
	}
}

type timer struct {
	pool domain.WorkerPoolIface

	onFire    func()
	recurring bool

	mu       sync.Mutex
	started  bool
	killed   bool
	killCh   chan struct{}
	duration time.Duration
}

// Start arms the timer. durationMs of -1 means "no expiry": Timer.cpp's
// convention for a request with no tune-out, so Start succeeds without
// scheduling anything. Any other non-positive duration is rejected.
func (t *timer) Start(durationMs int64) bool {
	if durationMs == -1 {
		return true
	}
	if durationMs <= 0 {
		return false
	}

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return false
	}
	t.started = true
	t.duration = time.Duration(durationMs) * time.Millisecond
	t.mu.Unlock()

	if err := t.pool.Enqueue(t.run); err != nil {
		logrus.Warnf("timer: failed to schedule: %v", err)
		return false
	}

	return true
}

// Kill cancels the timer and wakes it immediately if it is mid-wait. It is
// totally ordered with a concurrent natural wake: the deadline path checks
// the kill flag under t.mu before calling onFire, so a wake that takes the
// lock after Kill never fires and the callback runs 0 or 1 times per tick.
// A wake that took the lock just before Kill may still be running, or about
// to run, onFire when Kill returns.
func (t *timer) Kill() {
	t.mu.Lock()
	if !t.killed {
		t.killed = true
		close(t.killCh)
	}
	t.mu.Unlock()
}

// run executes on a worker-pool goroutine, re-arming itself for recurring
// timers until killed or (for one-shot timers) after firing once.
func (t *timer) run() {
	for {
		deadline := time.NewTimer(t.duration)

		select {
		case <-t.killCh:
			deadline.Stop()
			return

		case <-deadline.C:
			t.mu.Lock()
			fire := !t.killed
			recur := t.recurring
			t.mu.Unlock()

			if !fire {
				return
			}

			t.onFire()

			if !recur {
				return
			}
		}
	}
}
