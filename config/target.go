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

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nestybox/resource-tuner/rterrors"
)

// ClusterInfo describes one cluster entry of the target catalogue.
type ClusterInfo struct {
	Id        int `yaml:"Id"`
	Type      string `yaml:"Type"`
	CoreCount int `yaml:"CoreCount"`
}

// TargetCatalogue supplies TotalCoreCount, the per-cluster (id,type)
// mapping, and per-cluster core counts, used by the arbiter to translate
// logical (core,cluster) into physical scope keys.
type TargetCatalogue struct {
	TotalCoreCount int           `yaml:"TotalCoreCount"`
	Clusters       []ClusterInfo `yaml:"Clusters"`
}

func LoadTargetConfig(path string) (*TargetCatalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading target config %s: %v", rterrors.ErrMalformedCatalogue, path, err)
	}

	var tc TargetCatalogue
	if err := yaml.Unmarshal(data, &tc); err != nil {
		return nil, fmt.Errorf("%w: parsing target config %s: %v", rterrors.ErrMalformedCatalogue, path, err)
	}

	return &tc, nil
}

// ClusterByCore returns the cluster id that owns a given logical core
// index, walking clusters in declaration order and accumulating core
// counts. Called by the arbiter once per scope-key resolution to derive
// the owning cluster from a client-supplied logical core, rather than
// trusting a client-supplied cluster bitfield outright.
func (tc *TargetCatalogue) ClusterByCore(core int32) (int32, bool) {
	var seen int32
	for _, c := range tc.Clusters {
		if core < seen+int32(c.CoreCount) {
			return int32(c.Id), true
		}
		seen += int32(c.CoreCount)
	}
	return 0, false
}
