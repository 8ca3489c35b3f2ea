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

// SignalResourceEntry is one resource request bundled under a signal,
// generalizing original_source/Signals/SignalExtFeatureMapper.cpp's
// signal-id -> feature-list map into signal-id -> resource-bundle.
type SignalResourceEntry struct {
	ResType string `yaml:"ResType"`
	ResID   int    `yaml:"ResID"`
	Value   int32  `yaml:"Value"`
}

// SignalMapping is one declarative "signal expands to these resources"
// entry: a signal request expands into a bundle of resource requests
// through this mapping rather than naming resources directly.
type SignalMapping struct {
	SignalID   int                    `yaml:"SignalID"`
	Name       string                 `yaml:"Name"`
	DurationMs int64                  `yaml:"DurationMs"`
	Resources  []SignalResourceEntry  `yaml:"Resources"`
}

type rawSignalConfig struct {
	Signals []SignalMapping `yaml:"Signals"`
}

// LoadSignalConfig parses a Signals YAML config file; daemon.InitCatalogue
// calls it with daemon.Config.SignalConfigPath.
func LoadSignalConfig(path string) (map[int]*SignalMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading signal config %s: %v", rterrors.ErrMalformedCatalogue, path, err)
	}

	var raw rawSignalConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing signal config %s: %v", rterrors.ErrMalformedCatalogue, path, err)
	}

	out := make(map[int]*SignalMapping, len(raw.Signals))
	for i := range raw.Signals {
		m := raw.Signals[i]
		out[m.SignalID] = &m
	}

	return out, nil
}
