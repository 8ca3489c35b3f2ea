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

package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/nestybox/resource-tuner/domain"
)

// SysfsIface abstracts reads/writes against sysfs/cgroup nodes, the same
// way handler/implementations tests wire an afero.Fs instead of touching
// the real host filesystem.
type SysfsIface interface {
	ReadInt(path string) (int32, error)
	WriteInt(path string, value int32) error
}

type aferoSysfs struct {
	fs afero.Fs
}

// NewAferoSysfs builds a SysfsIface over any afero.Fs. Production code
// passes afero.NewOsFs(); tests pass afero.NewMemMapFs().
func NewAferoSysfs(fs afero.Fs) SysfsIface {
	return &aferoSysfs{fs: fs}
}

func (a *aferoSysfs) ReadInt(path string) (int32, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return 0, fmt.Errorf("sysfs read %s: %w", path, err)
	}

	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("sysfs read %s: invalid integer content %q: %w", path, string(data), err)
	}

	return int32(v), nil
}

func (a *aferoSysfs) WriteInt(path string, value int32) error {
	data := []byte(strconv.FormatInt(int64(value), 10))

	if err := afero.WriteFile(a.fs, path, data, 0644); err != nil {
		return fmt.Errorf("sysfs write %s: %w", path, err)
	}

	return nil
}

// TemplatePath expands a resource's sysfs path template for per-core or
// per-cluster scope keys. Global and per-cgroup resources return the base
// path unchanged (the cgroup root is prefixed by the caller, not templated
// here). Templates use "{cluster}"/"{core}" placeholders the way the
// teacher's procSysNet* handlers build per-interface paths.
func TemplatePath(basePath string, applyType domain.ApplyType, scope domain.ScopeKey) string {
	switch applyType {
	case domain.ApplyPerCluster:
		return strings.ReplaceAll(basePath, "{cluster}", strconv.Itoa(int(scope.Cluster)))
	case domain.ApplyPerCore:
		return strings.ReplaceAll(basePath, "{core}", strconv.Itoa(int(scope.Core)))
	default:
		return basePath
	}
}
