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

// Package logfmt provides lazily-stringified log-field wrappers, mirroring
// a formatter.ContainerID{}-style logrus field: values only pay for their
// String() conversion when a log line at the active level is actually
// emitted.
package logfmt

import "fmt"

// Handle lazily formats a request handle for a logrus field.
type Handle uint64

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uint64(h))
}

// ResourceId lazily formats a packed resource id as optype/opcode/custom.
type ResourceId uint32

func (r ResourceId) String() string {
	opcode := uint32(r) & 0xFFFF
	optype := (uint32(r) >> 16) & 0xFF
	custom := uint32(r)&(1<<31) != 0
	return fmt.Sprintf("{optype=%d opcode=%d custom=%v}", optype, opcode, custom)
}
