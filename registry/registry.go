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

// Package registry owns the immutable resource catalogue and the mutable
// per-resource arbitration state. It is the single point of
// mutual exclusion per resource: WithState hands the arbiter exclusive
// access to one (id, scope) PerResourceState for the duration of a
// function literal.
package registry

import (
	"fmt"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/sirupsen/logrus"

	"github.com/nestybox/resource-tuner/domain"
	"github.com/nestybox/resource-tuner/internal/logfmt"
	"github.com/nestybox/resource-tuner/rterrors"
)

type registryService struct {
	sync.RWMutex

	// Radix tree indexed by sysfs path, populated by RegisterDescriptor.
	// Mirrors handler/handlerDB.go's handlerTree, re-purposed from "FS path
	// -> handler" to "sysfs path -> descriptor". Lookups go through byId and
	// path templating through TemplatePath; neither reads this tree.
	pathTree *iradix.Tree

	byId map[domain.ResourceId]*domain.ResourceDescriptor

	// Per (id, scope) arbitration state and its guarding mutex. Lazily
	// created on first touch; never removed (a resource's scope set is
	// bounded by the target's core/cluster counts).
	stateMu sync.Mutex
	locks   map[string]*sync.Mutex
	states  map[string]*domain.PerResourceState

	sysfs SysfsIface

	frozen      bool
	currentMode domain.ModeSet
}

// NewRegistryService constructs an empty, unfrozen registry. sysfs is the
// reader/writer used for the built-in apply/tear path and for reading
// catalogue default values; pass a NewAferoSysfs(afero.NewMemMapFs()) in
// tests, the way handler/implementations tests wire an in-memory afero.Fs.
func NewRegistryService(sysfs SysfsIface) domain.RegistryIface {
	return &registryService{
		pathTree:    iradix.New(),
		byId:        make(map[domain.ResourceId]*domain.ResourceDescriptor),
		locks:       make(map[string]*sync.Mutex),
		states:      make(map[string]*domain.PerResourceState),
		sysfs:       sysfs,
		currentMode: domain.ModeSet(domain.ModeDisplayOn),
	}
}

func (rs *registryService) RegisterDescriptor(d *domain.ResourceDescriptor) error {
	rs.Lock()
	defer rs.Unlock()

	if rs.frozen {
		return rterrors.ErrRegistryFrozen
	}

	if d.LowThreshold > d.HighThreshold {
		return fmt.Errorf("%w: resource %v has low_threshold > high_threshold",
			rterrors.ErrMalformedCatalogue, logfmt.ResourceId(d.Id))
	}

	rs.byId[d.Id] = d

	if d.SysfsPath != "" {
		tree, _, _ := rs.pathTree.Insert([]byte(d.SysfsPath), d)
		rs.pathTree = tree
	}

	return nil
}

// Init validates and freezes the catalogue: for each supported entry with a
// sysfs path, the default value is read from sysfs. An entry whose read
// fails or whose value lies outside [low, high] stays in the catalogue but
// is marked unsupported (logged), never aborting startup.
func (rs *registryService) Init(customFilePresent bool) error {
	rs.Lock()
	defer rs.Unlock()

	for id, d := range rs.byId {
		if !d.Supported {
			continue
		}
		if d.SysfsPath == "" {
			continue
		}

		val, err := rs.sysfs.ReadInt(d.SysfsPath)
		if err != nil {
			logrus.Warnf("registry: failed to read default for resource %v at %s: %v -- marking unsupported",
				logfmt.ResourceId(id), d.SysfsPath, err)
			d.Supported = false
			continue
		}
		if !d.InRange(val) {
			logrus.Warnf("registry: sysfs default for resource %v at %s is %d, outside [%d,%d] -- marking unsupported",
				logfmt.ResourceId(id), d.SysfsPath, val, d.LowThreshold, d.HighThreshold)
			d.Supported = false
			continue
		}
		d.DefaultValue = val
	}

	rs.frozen = true
	return nil
}

func (rs *registryService) Frozen() bool {
	rs.RLock()
	defer rs.RUnlock()
	return rs.frozen
}

func (rs *registryService) Lookup(id domain.ResourceId) (*domain.ResourceDescriptor, error) {
	rs.RLock()
	defer rs.RUnlock()

	d, ok := rs.byId[id]
	if !ok {
		return nil, rterrors.ErrUnknownResource
	}
	return d, nil
}

func (rs *registryService) SetCallback(id domain.ResourceId, kind domain.CallbackKind, cb interface{}) error {
	rs.Lock()
	defer rs.Unlock()

	if rs.frozen {
		return rterrors.ErrRegistryFrozen
	}

	d, ok := rs.byId[id]
	if !ok {
		return rterrors.ErrUnknownResource
	}

	switch kind {
	case domain.CallbackApply:
		fn, ok := cb.(domain.ApplyCallback)
		if !ok {
			return fmt.Errorf("SetCallback: expected domain.ApplyCallback")
		}
		d.ApplyCb = fn
	case domain.CallbackTear:
		fn, ok := cb.(domain.TearCallback)
		if !ok {
			return fmt.Errorf("SetCallback: expected domain.TearCallback")
		}
		d.TearCb = fn
	default:
		return fmt.Errorf("SetCallback: unknown callback kind %v", kind)
	}

	return nil
}

func (rs *registryService) AllDescriptors() []*domain.ResourceDescriptor {
	rs.RLock()
	defer rs.RUnlock()

	out := make([]*domain.ResourceDescriptor, 0, len(rs.byId))
	for _, d := range rs.byId {
		out = append(out, d)
	}
	return out
}

func (rs *registryService) CurrentMode() domain.ModeSet {
	rs.RLock()
	defer rs.RUnlock()
	return rs.currentMode
}

func (rs *registryService) SetCurrentMode(m domain.ModeSet) {
	rs.Lock()
	defer rs.Unlock()
	rs.currentMode = m
}

func scopeKeyString(id domain.ResourceId, scope domain.ScopeKey) string {
	if scope.Global {
		return fmt.Sprintf("%d/global", id)
	}
	return fmt.Sprintf("%d/%d/%d", id, scope.Core, scope.Cluster)
}

// WithState locks the (id, scope) arbitration state and hands it to f.
// This is the single point of mutual exclusion per resource: all mutations
// to one resource's holders are totally ordered through this lock.
func (rs *registryService) WithState(id domain.ResourceId, scope domain.ScopeKey, f func(st *domain.PerResourceState)) error {
	d, err := rs.Lookup(id)
	if err != nil {
		return err
	}

	key := scopeKeyString(id, scope)

	rs.stateMu.Lock()
	lock, ok := rs.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		rs.locks[key] = lock
	}
	st, ok := rs.states[key]
	if !ok {
		st = &domain.PerResourceState{CurrentValue: d.DefaultValue}
		rs.states[key] = st
	}
	rs.stateMu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	f(st)

	return nil
}

func (rs *registryService) Sysfs() SysfsIface {
	return rs.sysfs
}
