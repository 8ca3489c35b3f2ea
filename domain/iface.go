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

package domain

import "context"

// CallbackKind distinguishes which extension callback slot is being set.
type CallbackKind int

const (
	CallbackApply CallbackKind = iota
	CallbackTear
)

// RegistryIface is the Resource Registry service.
type RegistryIface interface {
	Init(customFilePresent bool) error
	Lookup(id ResourceId) (*ResourceDescriptor, error)
	SetCallback(id ResourceId, kind CallbackKind, cb interface{}) error
	WithState(id ResourceId, scope ScopeKey, f func(st *PerResourceState)) error

	// RegisterDescriptor adds/overwrites a catalogue entry; only valid
	// before Init.
	RegisterDescriptor(d *ResourceDescriptor) error
	AllDescriptors() []*ResourceDescriptor

	CurrentMode() ModeSet
	SetCurrentMode(ModeSet)

	Frozen() bool
}

// PerResourceState is the mutable arbitration state the registry owns per
// (resource id, scope key). The arbiter is the only consumer; it receives
// exclusive access to one instance of this via RegistryIface.WithState.
type PerResourceState struct {
	Holders      []Holder
	CurrentValue int32
}

// WorkerPoolIface is the bounded, FIFO-per-slot worker pool.
type WorkerPoolIface interface {
	// Enqueue submits fn to run asynchronously. Returns ErrQueueFull if the
	// pool's queue is saturated.
	Enqueue(fn func()) error
	Shutdown(ctx context.Context) error
}

// TimerServiceIface creates timers backed by the timer worker pool.
type TimerServiceIface interface {
	NewTimer(onFire func(), recurring bool) TimerIface
}

// TimerIface is a single cancellable, optionally recurring deadline wait.
type TimerIface interface {
	Start(durationMs int64) bool
	Kill()
}

// ArbiterIface resolves conflicts and drives apply/tear side effects.
type ArbiterIface interface {
	Apply(req *Request) []error
	Tear(req *Request)
}

// LifecycleIface is the Request Lifecycle Manager.
type LifecycleIface interface {
	SubmitTune(req *Request) (uint64, error)
	SubmitUntune(handle uint64) error
	SubmitRetune(handle uint64, newDurationMs int64) error
}

// ExtensionIface is the extension registration-phase contract.
type ExtensionIface interface {
	RegisterApply(id ResourceId, cb ApplyCallback) error
	RegisterTear(id ResourceId, cb TearCallback) error
	RegisterConfig(configType string, path string) error
}
