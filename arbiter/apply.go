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

import (
	"fmt"
	"path"

	"github.com/nestybox/resource-tuner/domain"
	"github.com/nestybox/resource-tuner/registry"
)

// writeWinner applies the winning value for a resource at a scope key,
// either through the extension-registered callback (if any, called instead
// of the built-in writer) or the built-in sysfs writer.
func writeWinner(sysfs registry.SysfsIface, d *domain.ResourceDescriptor, scope domain.ScopeKey, handle uint64, winner int32) error {
	ctx := domain.ApplyContext{
		ResourceId: d.Id,
		Scope:      scope,
		Value:      winner,
		Handle:     handle,
	}

	if d.ApplyCb != nil {
		return d.ApplyCb(ctx)
	}

	return builtinApply(sysfs, d, scope, winner)
}

// writeTear mirrors writeWinner for the tear path, used when a request's
// duration elapses or it is untuned. It has the same callback-or-built-in
// dispatch; the value passed is the new winner (the restored default, or
// the next-best remaining holder's value).
func writeTear(sysfs registry.SysfsIface, d *domain.ResourceDescriptor, scope domain.ScopeKey, handle uint64, winner int32) error {
	ctx := domain.ApplyContext{
		ResourceId: d.Id,
		Scope:      scope,
		Value:      winner,
		Handle:     handle,
	}

	if d.TearCb != nil {
		return d.TearCb(ctx)
	}

	return builtinApply(sysfs, d, scope, winner)
}

// builtinApply writes winner to the resource's sysfs node, resolving a
// per-cluster/per-core/per-cgroup path template from the scope key:
// per-cluster/per-core variants write to a path templated by the scope key,
// cgroup variants write to a path under the resource's cgroup root.
func builtinApply(sysfs registry.SysfsIface, d *domain.ResourceDescriptor, scope domain.ScopeKey, winner int32) error {
	p := resolvePath(d, scope)
	if p == "" {
		return fmt.Errorf("resource %v: no sysfs path configured for built-in apply", d.Id)
	}
	return sysfs.WriteInt(p, winner)
}

func resolvePath(d *domain.ResourceDescriptor, scope domain.ScopeKey) string {
	switch d.ApplyType {
	case domain.ApplyPerCluster, domain.ApplyPerCore:
		return registry.TemplatePath(d.SysfsPath, d.ApplyType, scope)
	case domain.ApplyPerCGroup:
		if scope.Global {
			return d.SysfsPath
		}
		return path.Join(d.SysfsPath, fmt.Sprintf("cluster%d", scope.Cluster), fmt.Sprintf("core%d", scope.Core))
	default:
		return d.SysfsPath
	}
}
