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

// Package config loads the YAML catalogue, target, and signal-mapping
// files a deployment ships. Field-by-field defaulting follows
// original_source/Core/Framework/ResourceProcessor.cpp's
// safeExtract-with-default approach, translated into Go struct tags plus
// a post-decode defaulting pass.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nestybox/resource-tuner/domain"
	"github.com/nestybox/resource-tuner/rterrors"
)

// rawResourceEntry mirrors the catalogue file's YAML schema verbatim.
type rawResourceEntry struct {
	ResType           string   `yaml:"ResType"`
	ResID             int      `yaml:"ResID"`
	Supported         *bool    `yaml:"Supported"`
	Name              string   `yaml:"Name"`
	HighThreshold     *int32   `yaml:"HighThreshold"`
	LowThreshold      *int32   `yaml:"LowThreshold"`
	Permissions       string   `yaml:"Permissions"`
	Modes             []string `yaml:"Modes"`
	Policy            string   `yaml:"Policy"`
	CoreLevelConflict bool     `yaml:"CoreLevelConflict"`
	ApplyType         string   `yaml:"ApplyType"`
	Custom            bool     `yaml:"Custom"`
}

type rawCatalogue struct {
	Resources []rawResourceEntry `yaml:"Resources"`
}

// LoadCatalogue parses a resource catalogue YAML file. A malformed
// individual entry is logged and skipped; a malformed root (unparsable
// YAML, or no "Resources" sequence) is fatal.
func LoadCatalogue(path string) ([]*domain.ResourceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", rterrors.ErrMalformedCatalogue, path, err)
	}

	var raw rawCatalogue
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", rterrors.ErrMalformedCatalogue, path, err)
	}

	descriptors := make([]*domain.ResourceDescriptor, 0, len(raw.Resources))
	for i, entry := range raw.Resources {
		d, err := decodeEntry(entry)
		if err != nil {
			logrus.Warnf("config: skipping malformed resource at index %d: %v", i, err)
			continue
		}
		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}

func decodeEntry(e rawResourceEntry) (*domain.ResourceDescriptor, error) {
	optype, ok := parseOptype(e.ResType)
	if !ok {
		return nil, fmt.Errorf("invalid or missing ResType %q", e.ResType)
	}

	if e.ResID < 0 || e.ResID > 0xFFFF {
		return nil, fmt.Errorf("invalid or missing ResID %d", e.ResID)
	}

	if e.HighThreshold == nil || e.LowThreshold == nil {
		return nil, fmt.Errorf("missing HighThreshold/LowThreshold for resource %q", e.Name)
	}
	if *e.LowThreshold > *e.HighThreshold {
		return nil, fmt.Errorf("LowThreshold > HighThreshold for resource %q", e.Name)
	}

	supported := true
	if e.Supported != nil {
		supported = *e.Supported
	}

	id := domain.NewResourceId(optype, uint16(e.ResID), e.Custom)

	sysfsPath := ""
	if strings.HasPrefix(e.Name, "/") {
		sysfsPath = e.Name
	}

	d := &domain.ResourceDescriptor{
		Id:                id,
		Name:              e.Name,
		SysfsPath:         sysfsPath,
		Supported:         supported,
		HighThreshold:     *e.HighThreshold,
		LowThreshold:      *e.LowThreshold,
		Permissions:       parsePermission(e.Permissions),
		Modes:             parseModes(e.Modes),
		Policy:            parsePolicy(e.Policy),
		CoreLevelConflict: e.CoreLevelConflict,
		ApplyType:         parseApplyType(e.ApplyType),
	}

	return d, nil
}

// ResourceIdFor packs a catalogue-style (ResType, ResID) pair into a
// domain.ResourceId, shared with the signal package's mapping loader so
// both config consumers agree on the same encoding.
func ResourceIdFor(resType string, resID int, custom bool) (domain.ResourceId, error) {
	optype, ok := parseOptype(resType)
	if !ok {
		return 0, fmt.Errorf("invalid or missing ResType %q", resType)
	}
	if resID < 0 || resID > 0xFFFF {
		return 0, fmt.Errorf("invalid ResID %d", resID)
	}
	return domain.NewResourceId(optype, uint16(resID), custom), nil
}

// parseOptype decodes the catalogue's ResType field, a small decimal
// category code (bits 16..23 of the packed ResourceId).
func parseOptype(s string) (uint8, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > 0xFF {
		return 0, false
	}
	return uint8(v), true
}

func parsePermission(s string) domain.Permission {
	if s == "System" {
		return domain.PermSystem
	}
	return domain.PermThirdParty
}

func parseModes(modes []string) domain.ModeSet {
	if len(modes) == 0 {
		return domain.ModeSet(domain.ModeDisplayOn)
	}

	var ms domain.ModeSet
	for _, m := range modes {
		switch m {
		case "DisplayOn":
			ms |= domain.ModeSet(domain.ModeDisplayOn)
		case "Doze":
			ms |= domain.ModeSet(domain.ModeDoze)
		}
	}
	return ms
}

// parsePolicy defaults an unset/"LazyApply" policy to HigherBetter, per
// original_source/Core/Framework/ResourceProcessor.cpp's stated default
// (see DESIGN.md's Open Question (a) decision).
func parsePolicy(s string) domain.Policy {
	switch s {
	case "LowerBetter":
		return domain.PolicyLowerBetter
	case "Instant":
		return domain.PolicyInstant
	case "HigherBetter", "LazyApply", "":
		return domain.PolicyHigherBetter
	default:
		return domain.PolicyHigherBetter
	}
}

func parseApplyType(s string) domain.ApplyType {
	switch s {
	case "PerCluster":
		return domain.ApplyPerCluster
	case "PerCore":
		return domain.ApplyPerCore
	case "PerCGroup":
		return domain.ApplyPerCGroup
	case "Global", "":
		return domain.ApplyGlobal
	default:
		return domain.ApplyGlobal
	}
}
