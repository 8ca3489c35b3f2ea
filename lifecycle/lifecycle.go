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

// Package lifecycle assigns handles, validates inbound requests, dispatches
// to the arbiter, and tracks expiry, grounded on
// state/containerDB.go's id-table + per-entity-lock pattern (handleTable
// here instead of a container table). The per-entry lock is what actually
// closes the Queued/Applied race between the apply worker, a firing timer,
// and an explicit untune/retune -- all three go through withEntry, so only
// one of them is ever deciding a request's fate at a time.
package lifecycle

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nestybox/resource-tuner/domain"
	"github.com/nestybox/resource-tuner/internal/logfmt"
	"github.com/nestybox/resource-tuner/rterrors"
)

type service struct {
	registry  domain.RegistryIface
	arbiter   domain.ArbiterIface
	applyPool domain.WorkerPoolIface
	timerSvc  domain.TimerServiceIface

	table     *handleTable
	allocator *handleAllocator
}

// New builds the Request Lifecycle Manager. applyPool is the worker pool
// that runs the arbiter's apply path asynchronously; timerSvc creates the
// per-request expiry timer.
func New(registry domain.RegistryIface, arb domain.ArbiterIface, applyPool domain.WorkerPoolIface, timerSvc domain.TimerServiceIface) domain.LifecycleIface {
	return &service{
		registry:  registry,
		arbiter:   arb,
		applyPool: applyPool,
		timerSvc:  timerSvc,
		table:     newHandleTable(),
		allocator: newHandleAllocator(),
	}
}

// SubmitTune validates req, drops resources that fail per-resource checks
// (existence, support, range, mode gate), allocates a handle, enqueues the
// apply path, and arms the expiry timer. A System-only resource requested
// by a ThirdParty caller is fatal for the whole request.
func (s *service) SubmitTune(req *domain.Request) (uint64, error) {
	if req.DurationMs == 0 {
		return domain.InvalidHandle, rterrors.ErrValueOutOfRange
	}

	kept, err := s.filterResources(req)
	if err != nil {
		return domain.InvalidHandle, err
	}
	if len(kept) == 0 {
		return domain.InvalidHandle, rterrors.ErrNoViableResources
	}
	req.Resources = kept

	handle, err := s.allocator.allocate()
	if err != nil {
		return domain.InvalidHandle, err
	}
	req.Handle = handle
	s.table.put(handle, req)

	if err := s.applyPool.Enqueue(func() {
		s.table.withEntry(handle, func(req *domain.Request) {
			if !req.CompareAndSetState(domain.StateQueued, domain.StateApplied) {
				return
			}
			s.arbiter.Apply(req)
		})
	}); err != nil {
		s.table.remove(handle)
		return domain.InvalidHandle, err
	}

	timer := s.timerSvc.NewTimer(s.onExpire(handle), false)
	req.SetTimer(timer)
	if !timer.Start(req.DurationMs) {
		logrus.Warnf("lifecycle: failed to arm expiry timer for handle %v", logfmt.Handle(handle))
	}

	return handle, nil
}

// filterResources applies the per-resource existence/support/range/mode
// checks, dropping resources that fail instead of rejecting the whole
// request -- except a permission violation, which is fatal.
func (s *service) filterResources(req *domain.Request) ([]domain.Resource, error) {
	mode := s.registry.CurrentMode()

	kept := make([]domain.Resource, 0, len(req.Resources))
	for _, res := range req.Resources {
		d, err := s.registry.Lookup(res.Id)
		if err != nil {
			logrus.Debugf("lifecycle: dropping unknown resource %v: %v", logfmt.ResourceId(res.Id), err)
			continue
		}
		if !d.Supported {
			logrus.Debugf("lifecycle: dropping unsupported resource %v", logfmt.ResourceId(res.Id))
			continue
		}
		if res.Value.Len() == 0 || !d.InRange(res.Value.At(0)) {
			logrus.Debugf("lifecycle: dropping out-of-range value for resource %v", logfmt.ResourceId(res.Id))
			continue
		}
		if d.Permissions == domain.PermSystem && req.Permission == domain.PermThirdParty {
			return nil, rterrors.ErrPermissionDenied
		}
		if !req.Background && uint32(mode)&uint32(d.Modes) == 0 {
			logrus.Debugf("lifecycle: dropping mode-suppressed resource %v", logfmt.ResourceId(res.Id))
			continue
		}
		kept = append(kept, res)
	}

	return kept, nil
}

// onExpire returns the timer callback for handle: the natural-expiry tear
// path, or -- if the timer raced ahead of the apply worker -- a Queued ->
// Rejected transition that tears nothing down, since no holder was ever
// taken. Runs under the handle's entry lock, so it can never interleave
// with the apply worker's own Queued -> Applied transition.
func (s *service) onExpire(handle uint64) func() {
	return func() {
		s.table.withEntry(handle, func(req *domain.Request) {
			if req.CompareAndSetState(domain.StateApplied, domain.StateExpired) {
				s.arbiter.Tear(req)
				s.table.remove(handle)
				return
			}
			if req.CompareAndSetState(domain.StateQueued, domain.StateRejected) {
				s.table.remove(handle)
			}
		})
	}
}

// SubmitUntune enqueues the tear path for handle on the apply pool. A second
// untune for the same handle is an idempotent no-op returning nil; so is an
// untune for a handle the table no longer knows about. Returns the pool's
// error (rterrors.ErrQueueFull) if the tear work cannot be enqueued.
func (s *service) SubmitUntune(handle uint64) error {
	return s.applyPool.Enqueue(func() {
		s.table.withEntry(handle, func(req *domain.Request) {
			if t := req.Timer(); t != nil {
				t.Kill()
			}

			if req.CompareAndSetState(domain.StateApplied, domain.StateUntuned) {
				s.arbiter.Tear(req)
				s.table.remove(handle)
				return
			}
			if req.CompareAndSetState(domain.StateQueued, domain.StateRejected) {
				s.table.remove(handle)
			}
		})
	})
}

// SubmitRetune rejects a shrinking duration with RetuneNotExtending,
// otherwise kills the current timer and arms a fresh one without re-running
// the apply path.
func (s *service) SubmitRetune(handle uint64, newDurationMs int64) error {
	var rejectErr error

	ok := s.table.withEntry(handle, func(req *domain.Request) {
		nowMs := time.Now().UnixMilli()
		remaining := req.RemainingMs(nowMs)

		if remaining == -1 {
			if newDurationMs != -1 {
				rejectErr = rterrors.ErrRetuneNotExtending
				return
			}
		} else if newDurationMs != -1 && newDurationMs < remaining {
			rejectErr = rterrors.ErrRetuneNotExtending
			return
		}

		if t := req.Timer(); t != nil {
			t.Kill()
		}
		req.SetDuration(newDurationMs, nowMs)

		timer := s.timerSvc.NewTimer(s.onExpire(handle), false)
		req.SetTimer(timer)
		if !timer.Start(newDurationMs) {
			logrus.Warnf("lifecycle: failed to re-arm timer for handle %v on retune", logfmt.Handle(handle))
		}
	})
	if !ok {
		return rterrors.ErrHandleNotFound
	}

	return rejectErr
}

var _ domain.LifecycleIface = (*service)(nil)
