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
	"github.com/nestybox/resource-tuner/rterrors"
)

// handleAllocator mints monotonic handles from a 64-bit counter incremented
// under a mutex. domain.InvalidHandle is never issued.
type handleAllocator struct {
	mu   sync.Mutex
	next uint64
}

func newHandleAllocator() *handleAllocator {
	return &handleAllocator{next: 1}
}

func (a *handleAllocator) allocate() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next == domain.InvalidHandle {
		return domain.InvalidHandle, rterrors.ErrHandleExhausted
	}

	h := a.next
	a.next++
	return h, nil
}
