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

package arbiter

import "github.com/nestybox/resource-tuner/domain"

// computeWinner returns the winning value among holders under policy, and
// ok=false if holders is empty (caller restores default_value instead).
//
// HigherBetter/LowerBetter pick the value extremum, breaking ties by (a)
// higher priority first, (b) earlier start_time_ms first, (c) smaller
// handle first. Instant is last-writer-wins: holders is
// maintained in insertion order, so the winner is simply its last element;
// removing the most recent holder on tear exposes the one before it.
func computeWinner(holders []domain.Holder, policy domain.Policy) (int32, bool) {
	if len(holders) == 0 {
		return 0, false
	}

	if policy == domain.PolicyInstant {
		return holders[len(holders)-1].Value, true
	}

	best := holders[0]
	for _, h := range holders[1:] {
		if betterThan(h, best, policy) {
			best = h
		}
	}
	return best.Value, true
}

// betterThan reports whether candidate should replace current as the
// winner under policy.
func betterThan(candidate, current domain.Holder, policy domain.Policy) bool {
	if candidate.Value != current.Value {
		if policy == domain.PolicyLowerBetter {
			return candidate.Value < current.Value
		}
		return candidate.Value > current.Value
	}

	if candidate.Priority != current.Priority {
		return candidate.Priority > current.Priority
	}
	if candidate.StartTimeMs != current.StartTimeMs {
		return candidate.StartTimeMs < current.StartTimeMs
	}
	return candidate.Handle < current.Handle
}
