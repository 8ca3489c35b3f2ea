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

// Package signal expands a declarative signal mapping into a synthetic
// tune/untune request, indistinguishable from an ordinary one from the
// request lifecycle manager downward. The mapping load
// itself (config.LoadSignalConfig) generalizes
// original_source/Signals/SignalExtFeatureMapper.cpp's signal-id ->
// feature-list map into signal-id -> resource-bundle.
package signal

import (
	"fmt"
	"time"

	"github.com/nestybox/resource-tuner/config"
	"github.com/nestybox/resource-tuner/domain"
	"github.com/nestybox/resource-tuner/rterrors"
)

// Adapter expands incoming signal ids against a loaded mapping table and
// submits the resulting synthetic request to the lifecycle manager.
type Adapter struct {
	lifecycle domain.LifecycleIface
	mappings  map[int]*config.SignalMapping
}

func New(lifecycle domain.LifecycleIface, mappings map[int]*config.SignalMapping) *Adapter {
	return &Adapter{lifecycle: lifecycle, mappings: mappings}
}

// SignalTune expands signalID into one synthetic tune request and submits
// it, returning the handle the lifecycle manager allocated. From here on
// the request is a normal Applied/Expired/Untuned request like any other.
func (a *Adapter) SignalTune(signalID int, background bool, pid, tid uint32, perm domain.Permission) (uint64, error) {
	m, ok := a.mappings[signalID]
	if !ok {
		return domain.InvalidHandle, fmt.Errorf("%w: unknown signal id %d", rterrors.ErrUnknownResource, signalID)
	}

	resources := make([]domain.Resource, 0, len(m.Resources))
	for _, entry := range m.Resources {
		id, err := config.ResourceIdFor(entry.ResType, entry.ResID, false)
		if err != nil {
			continue // malformed mapping entry: dropped the same way a malformed catalogue entry is
		}
		resources = append(resources, domain.Resource{Id: id, Value: domain.OneValue(entry.Value)})
	}

	req := domain.NewRequest(domain.InvalidHandle, domain.KindSignalTune, m.DurationMs, domain.PriorityHigh,
		background, pid, tid, perm, resources, time.Now().UnixMilli())

	return a.lifecycle.SubmitTune(req)
}

// SignalUntune expands into the handle's ordinary untune path -- by
// construction a signal-tuned request's handle is submitted through the
// same lifecycle manager, so untuning it is no different from untuning a
// plain resource request.
func (a *Adapter) SignalUntune(handle uint64) error {
	return a.lifecycle.SubmitUntune(handle)
}
