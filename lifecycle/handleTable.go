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

package lifecycle

import (
	"sync"

	"github.com/nestybox/resource-tuner/domain"
)

// entry pairs a Request with its own mutex, the same per-entity-lock shape
// state/containerDB.go uses for its container table. Holding entry.mu
// serializes the three things that can act on one handle concurrently --
// the apply worker, a timer firing, and an explicit untune/retune -- into a
// single decide-then-act critical section, so "is this request still
// Queued/Applied" can never go stale between the check and the side effect.
type entry struct {
	mu  sync.Mutex
	req *domain.Request
}

// handleTable maps handle -> *entry with O(1) lookup, the same
// RWMutex-guarded map shape state/containerDB.go uses for its id table.
type handleTable struct {
	mu      sync.RWMutex
	entries map[uint64]*entry
}

func newHandleTable() *handleTable {
	return &handleTable{entries: make(map[uint64]*entry)}
}

func (t *handleTable) put(handle uint64, req *domain.Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[handle] = &entry{req: req}
}

func (t *handleTable) get(handle uint64) (*entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[handle]
	return e, ok
}

func (t *handleTable) remove(handle uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, handle)
}

func (t *handleTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// withEntry locks handle's entry (if present) and runs f against its
// Request, returning false if handle is unknown.
func (t *handleTable) withEntry(handle uint64, f func(req *domain.Request)) bool {
	e, ok := t.get(handle)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	f(e.req)
	return true
}
