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

package signal_test

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestybox/resource-tuner/arbiter"
	"github.com/nestybox/resource-tuner/config"
	"github.com/nestybox/resource-tuner/domain"
	"github.com/nestybox/resource-tuner/lifecycle"
	"github.com/nestybox/resource-tuner/registry"
	"github.com/nestybox/resource-tuner/rterrors"
	signalpkg "github.com/nestybox/resource-tuner/signal"
	"github.com/nestybox/resource-tuner/timer"
	"github.com/nestybox/resource-tuner/workerpool"
)

const testPath = "/sys/class/test/signal-resource"

func TestAdapter_SignalTuneExpandsAndApplies(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testPath, []byte("10"), 0644))
	sysfs := registry.NewAferoSysfs(fs)

	d := &domain.ResourceDescriptor{
		Id:            domain.NewResourceId(0, 42, false),
		Name:          "signal-resource",
		SysfsPath:     testPath,
		Supported:     true,
		DefaultValue:  10,
		HighThreshold: 100,
		LowThreshold:  0,
		Permissions:   domain.PermThirdParty,
		Modes:         domain.ModeSet(domain.ModeDisplayOn),
		Policy:        domain.PolicyHigherBetter,
		ApplyType:     domain.ApplyGlobal,
	}

	reg := registry.NewRegistryService(sysfs)
	require.NoError(t, reg.RegisterDescriptor(d))
	require.NoError(t, reg.Init(false))

	arb := arbiter.New(reg, sysfs, nil)
	applyPool := workerpool.New("apply", 2, 4, 8)
	timerPool := workerpool.New("timers", 4, 6, 8)
	defer applyPool.Shutdown(context.Background())
	defer timerPool.Shutdown(context.Background())

	lc := lifecycle.New(reg, arb, applyPool, timer.NewService(timerPool))

	mappings := map[int]*config.SignalMapping{
		7: {
			SignalID:   7,
			Name:       "boost",
			DurationMs: 5000,
			Resources: []config.SignalResourceEntry{
				{ResType: "0", ResID: 42, Value: 80},
			},
		},
	}

	adapter := signalpkg.New(lc, mappings)

	handle, err := adapter.SignalTune(7, false, 1, 1, domain.PermThirdParty)
	require.NoError(t, err)
	assert.NotEqual(t, domain.InvalidHandle, handle)

	require.Eventually(t, func() bool {
		v, _ := sysfs.ReadInt(testPath)
		return v == 80
	}, 200*time.Millisecond, 2*time.Millisecond)

	require.NoError(t, adapter.SignalUntune(handle))

	require.Eventually(t, func() bool {
		v, _ := sysfs.ReadInt(testPath)
		return v == 10
	}, 200*time.Millisecond, 2*time.Millisecond)
}

func TestAdapter_UnknownSignalIdReturnsError(t *testing.T) {
	reg := registry.NewRegistryService(registry.NewAferoSysfs(afero.NewMemMapFs()))
	require.NoError(t, reg.Init(false))
	arb := arbiter.New(reg, registry.NewAferoSysfs(afero.NewMemMapFs()), nil)
	pool := workerpool.New("apply", 1, 1, 1)
	defer pool.Shutdown(context.Background())
	lc := lifecycle.New(reg, arb, pool, timer.NewService(pool))

	adapter := signalpkg.New(lc, map[int]*config.SignalMapping{})

	_, err := adapter.SignalTune(99, false, 1, 1, domain.PermThirdParty)
	assert.ErrorIs(t, err, rterrors.ErrUnknownResource)
}
