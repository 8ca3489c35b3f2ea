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

// Package arbiter resolves conflicts among concurrent holders of a
// resource and drives the apply/tear side effects, grounded on
// handler/implementations/kernelPanic.go's "check current state, else
// this is the first write" shape, generalized from a per-container data
// store to a per-resource holders multiset.
package arbiter

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nestybox/resource-tuner/config"
	"github.com/nestybox/resource-tuner/domain"
	"github.com/nestybox/resource-tuner/internal/logfmt"
	"github.com/nestybox/resource-tuner/registry"
)

type service struct {
	registry domain.RegistryIface
	sysfs    registry.SysfsIface
	target   *config.TargetCatalogue
}

// New builds the arbiter. sysfs is the same reader/writer instance passed
// to registry.NewRegistryService, since the registry is the source of
// catalogue entries but not itself responsible for driving apply/tear.
// target is the loaded target catalogue, or nil if the daemon was started
// without one; with no target, a resource instance's cluster is taken
// as-is from the wire instead of being derived from its logical core.
func New(reg domain.RegistryIface, sysfs registry.SysfsIface, target *config.TargetCatalogue) domain.ArbiterIface {
	return &service{registry: reg, sysfs: sysfs, target: target}
}

// scopeFor resolves the scope key for res against d, deriving the owning
// cluster from res's logical core through the target catalogue rather than
// trusting the client-supplied cluster bitfield directly. A core outside
// every declared cluster, or no target catalogue at all, falls back to the
// wire-supplied cluster so a daemon started without a target file still
// arbitrates per-core/per-cluster resources.
func (s *service) scopeFor(d *domain.ResourceDescriptor, res *domain.Resource) domain.ScopeKey {
	core, cluster := res.Core(), res.Cluster()

	if s.target != nil {
		if owner, ok := s.target.ClusterByCore(core); ok {
			if owner != cluster {
				logrus.Warnf("arbiter: resource %v core %d belongs to cluster %d, not client-supplied cluster %d -- using %d",
					logfmt.ResourceId(res.Id), core, owner, cluster, owner)
			}
			cluster = owner
		} else {
			logrus.Warnf("arbiter: resource %v core %d is not owned by any declared cluster -- using client-supplied cluster %d",
				logfmt.ResourceId(res.Id), core, cluster)
		}
	}

	return d.ScopeKeyFor(core, cluster)
}

// Apply arms every resource in req as a new holder and, per resource,
// recomputes the winner and invokes apply if it changed. Errors from
// individual resources are collected and returned together rather than
// aborting the loop -- a failure on one resource must not prevent siblings
// in the same request from being armed; a rejection is not rolled back
// across the whole request, only the one resource that failed.
func (s *service) Apply(req *domain.Request) []error {
	var errs []error

	for i := range req.Resources {
		res := &req.Resources[i]

		d, err := s.registry.Lookup(res.Id)
		if err != nil {
			errs = append(errs, fmt.Errorf("apply %v: %w", logfmt.ResourceId(res.Id), err))
			continue
		}

		scope := s.scopeFor(d, res)
		value := d.Clamp(res.Value.At(0))

		err = s.registry.WithState(res.Id, scope, func(st *domain.PerResourceState) {
			st.Holders = append(st.Holders, domain.Holder{
				Handle:      req.Handle,
				Value:       value,
				Priority:    req.Priority,
				Permission:  req.Permission,
				Core:        res.Core(),
				Cluster:     res.Cluster(),
				StartTimeMs: req.StartTimeMs,
			})

			winner, ok := computeWinner(st.Holders, d.Policy)
			if !ok {
				return // unreachable: we just appended a holder
			}
			winner = d.Clamp(winner)

			if winner == st.CurrentValue {
				return
			}

			if err := writeWinner(s.sysfs, d, scope, req.Handle, winner); err != nil {
				logrus.Warnf("arbiter: apply failed for resource %v at scope %+v: %v (holder kept, current_value unchanged)",
					logfmt.ResourceId(res.Id), scope, err)
				return
			}

			st.CurrentValue = winner
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("apply %v: %w", logfmt.ResourceId(res.Id), err))
		}
	}

	return errs
}

// Tear removes req's holder from every resource it touched, restoring
// default_value if it was the last holder, or re-arbitrating among the
// rest otherwise.
func (s *service) Tear(req *domain.Request) {
	for i := range req.Resources {
		res := &req.Resources[i]

		d, err := s.registry.Lookup(res.Id)
		if err != nil {
			logrus.Warnf("arbiter: tear: %v", err)
			continue
		}

		scope := s.scopeFor(d, res)

		err = s.registry.WithState(res.Id, scope, func(st *domain.PerResourceState) {
			st.Holders = removeHolder(st.Holders, req.Handle)

			winner, ok := computeWinner(st.Holders, d.Policy)
			if !ok {
				winner = d.DefaultValue
			}
			winner = d.Clamp(winner)

			if winner == st.CurrentValue {
				return
			}

			if err := writeTear(s.sysfs, d, scope, req.Handle, winner); err != nil {
				logrus.Warnf("arbiter: tear failed for resource %v at scope %+v: %v",
					logfmt.ResourceId(res.Id), scope, err)
				return
			}

			st.CurrentValue = winner
		})
		if err != nil {
			logrus.Warnf("arbiter: tear: %v", err)
		}
	}
}

func removeHolder(holders []domain.Holder, handle uint64) []domain.Holder {
	out := holders[:0]
	for _, h := range holders {
		if h.Handle != handle {
			out = append(out, h)
		}
	}
	return out
}

var _ domain.ArbiterIface = (*service)(nil)
