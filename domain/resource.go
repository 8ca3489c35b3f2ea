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

// ResourceId is a packed 32-bit identifier for a tunable resource.
//
// bits 0..15  = opcode
// bits 16..23 = optype
// bit  31     = custom flag
//
// Two resources with identical (optype, opcode, custom) refer to the same
// underlying tunable.
type ResourceId uint32

func NewResourceId(optype uint8, opcode uint16, custom bool) ResourceId {
	var id ResourceId = ResourceId(opcode) | ResourceId(optype)<<16
	if custom {
		id |= 1 << 31
	}
	return id
}

func (id ResourceId) Opcode() uint16 {
	return uint16(id & 0xFFFF)
}

func (id ResourceId) Optype() uint8 {
	return uint8((id >> 16) & 0xFF)
}

func (id ResourceId) Custom() bool {
	return id&(1<<31) != 0
}

// Permission identifies which class of caller may hold a resource.
type Permission int

const (
	PermSystem Permission = iota
	PermThirdParty
)

func (p Permission) String() string {
	if p == PermSystem {
		return "System"
	}
	return "ThirdParty"
}

// Mode is a bit in the device-mode bitset (DisplayOn, Doze, ...).
type Mode uint32

const (
	ModeDisplayOn Mode = 1 << iota
	ModeDoze
)

// ModeSet is a bitset of Mode values.
type ModeSet uint32

func (ms ModeSet) Has(m Mode) bool {
	return ModeSet(m)&ms != 0
}

// Policy selects how the arbiter picks a winner among concurrent holders.
type Policy int

const (
	PolicyHigherBetter Policy = iota
	PolicyLowerBetter
	PolicyInstant
)

func (p Policy) String() string {
	switch p {
	case PolicyHigherBetter:
		return "HigherBetter"
	case PolicyLowerBetter:
		return "LowerBetter"
	case PolicyInstant:
		return "Instant"
	default:
		return "Unknown"
	}
}

// ApplyType identifies the scope at which a built-in apply/tear writes a
// resource's winning value.
type ApplyType int

const (
	ApplyGlobal ApplyType = iota
	ApplyPerCluster
	ApplyPerCore
	ApplyPerCGroup
)

func (a ApplyType) String() string {
	switch a {
	case ApplyGlobal:
		return "Global"
	case ApplyPerCluster:
		return "PerCluster"
	case ApplyPerCore:
		return "PerCore"
	case ApplyPerCGroup:
		return "PerCGroup"
	default:
		return "Unknown"
	}
}

// ScopeKey partitions arbitration of a resource whose apply_type or
// core_level_conflict flag requires per-(core,cluster) conflict resolution.
// The global scope (ApplyGlobal, core_level_conflict=false) is GlobalScope(),
// which sets Global; the zero value is the (core 0, cluster 0) scope.
type ScopeKey struct {
	Core    int32
	Cluster int32
	Global  bool
}

func GlobalScope() ScopeKey {
	return ScopeKey{Global: true}
}

// ApplyContext carries the arguments passed to a registered apply/tear
// callback, in place of the built-in writer.
type ApplyContext struct {
	ResourceId ResourceId
	Scope      ScopeKey
	Value      int32
	Handle     uint64
}

// ApplyCallback and TearCallback are extension-provided side effects.
// A non-nil error is logged by the arbiter and never rolls back the holder
// that triggered it (spec: apply-callback failures are partial, not fatal).
type ApplyCallback func(ctx ApplyContext) error
type TearCallback func(ctx ApplyContext) error

// ResourceDescriptor is the immutable (post catalogue-load) per-resource
// entry of the Resource Registry.
type ResourceDescriptor struct {
	Id              ResourceId
	Name            string
	SysfsPath       string
	Supported       bool
	DefaultValue    int32
	HighThreshold   int32
	LowThreshold    int32
	Permissions     Permission
	Modes           ModeSet
	Policy          Policy
	ApplyType       ApplyType
	CoreLevelConflict bool

	ApplyCb ApplyCallback
	TearCb  TearCallback
}

func (d *ResourceDescriptor) InRange(v int32) bool {
	return v >= d.LowThreshold && v <= d.HighThreshold
}

func (d *ResourceDescriptor) Clamp(v int32) int32 {
	if v < d.LowThreshold {
		return d.LowThreshold
	}
	if v > d.HighThreshold {
		return d.HighThreshold
	}
	return v
}

// ScopeKeyFor derives the scope key used for arbitration of this resource,
// given a resource instance's packed core/cluster info.
func (d *ResourceDescriptor) ScopeKeyFor(core, cluster int32) ScopeKey {
	if d.CoreLevelConflict || d.ApplyType == ApplyPerCore || d.ApplyType == ApplyPerCluster {
		return ScopeKey{Core: core, Cluster: cluster}
	}
	return GlobalScope()
}

// ResourceValue is the tagged variant replacing the source's typed-union
// Resource.value (single int vs. vector of ints). The 1-vs-N inline
// optimisation in the source is an implementation detail, not part of the
// contract, so this is expressed as a simple slice with a single-value
// constructor for the common case.
type ResourceValue struct {
	values []int32
}

func OneValue(v int32) ResourceValue {
	return ResourceValue{values: []int32{v}}
}

func ManyValues(vs []int32) ResourceValue {
	return ResourceValue{values: append([]int32(nil), vs...)}
}

func (r ResourceValue) Len() int {
	return len(r.values)
}

func (r ResourceValue) At(i int) int32 {
	return r.values[i]
}

func (r ResourceValue) Values() []int32 {
	return append([]int32(nil), r.values...)
}

// Resource is a resource instance attached to a Request.
type Resource struct {
	Id           ResourceId
	Info         int32 // bits 0..7 = core, bits 8..15 = cluster
	OptionalInfo int32
	Value        ResourceValue
}

func (r *Resource) Core() int32 {
	return r.Info & 0xFF
}

func (r *Resource) Cluster() int32 {
	return (r.Info >> 8) & 0xFF
}
