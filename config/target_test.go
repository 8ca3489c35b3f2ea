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

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nestybox/resource-tuner/config"
)

func sampleTarget() *config.TargetCatalogue {
	return &config.TargetCatalogue{
		TotalCoreCount: 6,
		Clusters: []config.ClusterInfo{
			{Id: 0, Type: "little", CoreCount: 4},
			{Id: 1, Type: "big", CoreCount: 2},
		},
	}
}

func TestClusterByCore_ResolvesOwningCluster(t *testing.T) {
	tc := sampleTarget()

	id, ok := tc.ClusterByCore(0)
	assert.True(t, ok)
	assert.Equal(t, int32(0), id)

	id, ok = tc.ClusterByCore(3)
	assert.True(t, ok)
	assert.Equal(t, int32(0), id)

	id, ok = tc.ClusterByCore(4)
	assert.True(t, ok)
	assert.Equal(t, int32(1), id)

	id, ok = tc.ClusterByCore(5)
	assert.True(t, ok)
	assert.Equal(t, int32(1), id)
}

func TestClusterByCore_CoreBeyondDeclaredClustersIsUnowned(t *testing.T) {
	tc := sampleTarget()

	_, ok := tc.ClusterByCore(6)
	assert.False(t, ok)
}
