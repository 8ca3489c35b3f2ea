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

// Package extension implements the explicit registration phase between
// daemon construction and catalogue init, replacing the source's
// constructor-time
// (__attribute__((constructor))) registration with the two-phase wiring
// handler/handlerDB.go already uses (RegisterHandler, then SetService).
//
// RegisterApply/RegisterTear run before the catalogue has been loaded, so
// the target resource's descriptor does not exist in the registry yet;
// callbacks are held in a pending map keyed by resource id, the way
// original_source/Core/Extensions/Include/Extensions.h keeps its own
// unordered_map<uint32_t, ResourceLifecycleCallback> independent of
// whether a descriptor has been loaded, and are drained into the registry
// by Drain once descriptors exist.
package extension

import (
	"fmt"
	"sync"

	"github.com/nestybox/resource-tuner/domain"
	"github.com/nestybox/resource-tuner/rterrors"
)

var validConfigTypes = map[string]bool{
	"Resource":    true,
	"Properties":  true,
	"Signals":     true,
	"Target":      true,
	"ExtFeatures": true,
	"Init":        true,
}

// Service is the registration-phase surface a host binary calls before the
// registry is frozen. RegisterApply/RegisterTear fail with
// rterrors.ErrRegistryFrozen once Init has run; RegisterConfig has no such
// restriction. The paths RegisterConfig records are returned by ConfigPath;
// daemon.InitCatalogue does not read them and loads its config files from
// the paths in daemon.Config.
type Service struct {
	registry domain.RegistryIface

	mu           sync.Mutex
	configPaths  map[string]string
	pendingApply map[domain.ResourceId]domain.ApplyCallback
	pendingTear  map[domain.ResourceId]domain.TearCallback
}

func New(registry domain.RegistryIface) *Service {
	return &Service{
		registry:     registry,
		configPaths:  make(map[string]string),
		pendingApply: make(map[domain.ResourceId]domain.ApplyCallback),
		pendingTear:  make(map[domain.ResourceId]domain.TearCallback),
	}
}

// RegisterApply records cb for id, to be pushed into the registry by Drain
// once id's descriptor exists. Does not require the descriptor to be
// registered yet.
func (s *Service) RegisterApply(id domain.ResourceId, cb domain.ApplyCallback) error {
	if s.registry.Frozen() {
		return rterrors.ErrRegistryFrozen
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingApply[id] = cb
	return nil
}

// RegisterTear records cb for id, to be pushed into the registry by Drain
// once id's descriptor exists. Does not require the descriptor to be
// registered yet.
func (s *Service) RegisterTear(id domain.ResourceId, cb domain.TearCallback) error {
	if s.registry.Frozen() {
		return rterrors.ErrRegistryFrozen
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingTear[id] = cb
	return nil
}

// Drain pushes every pending callback into the registry via SetCallback,
// for resources whose descriptor has since been registered. Must run after
// descriptors are loaded and before the registry freezes (daemon.
// InitCatalogue calls it between RegisterDescriptor and registry.Init).
// Returns the ids whose callback could not be resolved to a descriptor --
// the caller logs these rather than treating them as fatal, mirroring
// RegisterDescriptor's own tolerance for catalogue/extension-config skew.
func (s *Service) Drain() []domain.ResourceId {
	s.mu.Lock()
	defer s.mu.Unlock()

	var unresolved []domain.ResourceId

	for id, cb := range s.pendingApply {
		if err := s.registry.SetCallback(id, domain.CallbackApply, cb); err != nil {
			unresolved = append(unresolved, id)
			continue
		}
		delete(s.pendingApply, id)
	}
	for id, cb := range s.pendingTear {
		if err := s.registry.SetCallback(id, domain.CallbackTear, cb); err != nil {
			unresolved = append(unresolved, id)
			continue
		}
		delete(s.pendingTear, id)
	}

	return unresolved
}

func (s *Service) RegisterConfig(configType string, path string) error {
	if !validConfigTypes[configType] {
		return fmt.Errorf("extension: unknown config_type %q", configType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.configPaths[configType] = path
	return nil
}

// ConfigPath returns the path registered for configType, if any. The
// daemon's startup sequence does not call it.
func (s *Service) ConfigPath(configType string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.configPaths[configType]
	return p, ok
}

var _ domain.ExtensionIface = (*Service)(nil)
